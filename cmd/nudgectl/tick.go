package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

func init() {
	var token, at string
	tickCmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduler sweep on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if at != "" {
				t, err := parseAt(at)
				if err != nil {
					return err
				}
				body["at"] = t
			}
			data, err := doPostJSON(strings.TrimRight(apiFlag, "/")+"/scheduler/tick", token, body)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	tickCmd.Flags().StringVarP(&token, "token", "t", os.Getenv("CRON_TOKEN"), "Operator token (defaults to $CRON_TOKEN)")
	tickCmd.Flags().StringVar(&at, "at", "", "Replay a past sweep time, RFC3339 (defaults to server time)")
	rootCmd.AddCommand(tickCmd)
}

func doPostJSON(url, token string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}
