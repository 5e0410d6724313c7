package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Padu76/lifeOS-sub000/internal"
	"github.com/Padu76/lifeOS-sub000/internal/burnout"
	"github.com/Padu76/lifeOS-sub000/internal/predict"
)

func init() {
	var category, urgency, at string
	var quiet bool
	var gap time.Duration
	predictCmd := &cobra.Command{
		Use:   "predict",
		Short: "Suggest a delivery time for one notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			h, err := loadHistory(historyFlag)
			if err != nil {
				return err
			}
			d, err := predictFor(h, userFlag, category, urgency, gap, quiet, now)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, d)
		},
	}
	predictCmd.Flags().StringVarP(&historyFlag, "history", "f", "", "History JSON file (required)")
	predictCmd.Flags().StringVarP(&userFlag, "user", "u", "", "Only use records of this user")
	predictCmd.Flags().StringVarP(&category, "category", "c", "", "Intervention category (required)")
	predictCmd.Flags().StringVar(&urgency, "urgency", "medium", "low, medium, high or emergency")
	predictCmd.Flags().StringVar(&at, "at", "", "Prediction time, RFC3339 (defaults to now)")
	predictCmd.Flags().BoolVar(&quiet, "quiet-hours", true, "Respect the inferred sleep window")
	predictCmd.Flags().DurationVar(&gap, "min-gap", 2*time.Hour, "Minimum gap between deliveries")
	_ = predictCmd.MarkFlagRequired("history")
	_ = predictCmd.MarkFlagRequired("category")
	rootCmd.AddCommand(predictCmd)
}

func predictFor(h *historyFile, userID, category, urgency string, gap time.Duration, quiet bool, now time.Time) (internal.TimingDecision, error) {
	if gap < 0 {
		return internal.TimingDecision{}, fmt.Errorf("--min-gap must not be negative")
	}
	cat, err := internal.ParseCategory(category)
	if err != nil {
		return internal.TimingDecision{}, err
	}
	urg, err := internal.ParseUrgency(urgency)
	if err != nil {
		return internal.TimingDecision{}, err
	}
	p := analyze(h, userID, now)
	req := internal.NotificationRequest{
		UserID:            p.UserID,
		Category:          cat,
		Urgency:           urg,
		MinGap:            gap,
		RespectQuietHours: quiet,
	}
	return predict.NewPredictor(burnout.NewGuard()).Predict(req, p, now), nil
}
