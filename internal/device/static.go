package device

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Padu76/lifeOS-sub000/internal"
)

// StaticStatus reports the same conditions for every user. Used when redis is not configured.
type StaticStatus struct {
	Context internal.DeliveryContext
}

func (s StaticStatus) Snapshot(context.Context, string) (internal.DeliveryContext, error) {
	return s.Context, nil
}

// LogTransport "delivers" by logging the message.
type LogTransport struct {
	logger internal.Logger
}

func NewLogTransport(logger internal.Logger) *LogTransport {
	return &LogTransport{logger: logger.With("service", "LogTransport")}
}

func (t *LogTransport) Send(ctx context.Context, item internal.ScheduledIntervention) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(NewMessage(item, time.Now()))
	if err != nil {
		return err
	}
	t.logger.Infof("deliver %s", raw)
	return nil
}
