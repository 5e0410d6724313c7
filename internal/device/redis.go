// Package device reads live device conditions and hands interventions to the
// push gateway. Both sides go through redis when it is configured.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Padu76/lifeOS-sub000/internal"
)

// ErrNoReceiver means the publish reached redis but no gateway was subscribed.
var ErrNoReceiver = errors.New("device: no push gateway subscribed")

func NewRedisClient(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// RedisStatus reads the hash device:<user id> that the mobile clients keep
// current. Fields: dnd, battery, foreground, network.
type RedisStatus struct {
	rdb *goredis.Client
}

func NewRedisStatus(rdb *goredis.Client) *RedisStatus {
	return &RedisStatus{rdb: rdb}
}

func StatusKey(userID string) string { return "device:" + userID }

func (s *RedisStatus) Snapshot(ctx context.Context, userID string) (internal.DeliveryContext, error) {
	fields, err := s.rdb.HGetAll(ctx, StatusKey(userID)).Result()
	if err != nil {
		return internal.DeliveryContext{}, fmt.Errorf("device status for %s: %w", userID, err)
	}
	return parseStatus(fields)
}

// Permissive is assumed for users whose device never reported.
var Permissive = internal.DeliveryContext{NetworkOnline: true, BatteryLevel: 1}

func parseStatus(fields map[string]string) (internal.DeliveryContext, error) {
	dc := Permissive
	if len(fields) == 0 {
		return dc, nil
	}
	var err error
	if v, ok := fields["dnd"]; ok {
		if dc.DoNotDisturb, err = parseFlag(v); err != nil {
			return internal.DeliveryContext{}, fmt.Errorf("dnd: %w", err)
		}
	}
	if v, ok := fields["foreground"]; ok {
		if dc.AppForeground, err = parseFlag(v); err != nil {
			return internal.DeliveryContext{}, fmt.Errorf("foreground: %w", err)
		}
	}
	if v, ok := fields["network"]; ok {
		if dc.NetworkOnline, err = parseFlag(v); err != nil {
			return internal.DeliveryContext{}, fmt.Errorf("network: %w", err)
		}
	}
	if v, ok := fields["battery"]; ok {
		b, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return internal.DeliveryContext{}, fmt.Errorf("battery: %w", err)
		}
		// clients report either a 0..1 fraction or a percentage
		if b > 1 {
			b /= 100
		}
		dc.BatteryLevel = min(max(b, 0), 1)
	}
	return dc, nil
}

func parseFlag(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "online", "on", "yes":
		return true, nil
	case "offline", "off", "no":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(v))
}

// Message is what the push gateway receives on the channel.
type Message struct {
	ID       string            `json:"id"`
	UserID   string            `json:"user_id"`
	Category internal.Category `json:"category"`
	Urgency  internal.Urgency  `json:"urgency"`
	Payload  json.RawMessage   `json:"payload,omitempty"`
	Attempt  int               `json:"attempt"`
	SentAt   time.Time         `json:"sent_at"`
}

func NewMessage(item internal.ScheduledIntervention, at time.Time) Message {
	return Message{
		ID:       item.ID,
		UserID:   item.UserID,
		Category: item.Category,
		Urgency:  item.Urgency,
		Payload:  item.Payload,
		Attempt:  item.Attempts + 1,
		SentAt:   at,
	}
}

type RedisTransport struct {
	rdb     *goredis.Client
	channel string
	logger  internal.Logger
}

func NewRedisTransport(rdb *goredis.Client, channel string, logger internal.Logger) *RedisTransport {
	if channel == "" {
		channel = "interventions"
	}
	return &RedisTransport{rdb: rdb, channel: channel, logger: logger.With("service", "RedisTransport")}
}

func (t *RedisTransport) Send(ctx context.Context, item internal.ScheduledIntervention) error {
	raw, err := json.Marshal(NewMessage(item, time.Now()))
	if err != nil {
		return err
	}
	n, err := t.rdb.Publish(ctx, t.channel, raw).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", item.ID, err)
	}
	if n == 0 {
		return ErrNoReceiver
	}
	t.logger.Debugf("published %s to %d receivers", item.ID, n)
	return nil
}
