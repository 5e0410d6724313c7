package device

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Padu76/lifeOS-sub000/internal"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestParseStatus(t *testing.T) {
	cases := []struct {
		name    string
		fields  map[string]string
		want    internal.DeliveryContext
		wantErr bool
	}{
		{"never reported", nil, Permissive, false},
		{"all fields", map[string]string{"dnd": "1", "battery": "0.4", "foreground": "false", "network": "online"},
			internal.DeliveryContext{DoNotDisturb: true, BatteryLevel: 0.4, NetworkOnline: true}, false},
		{"battery as percent", map[string]string{"battery": "85"}, internal.DeliveryContext{NetworkOnline: true, BatteryLevel: 0.85}, false},
		{"offline", map[string]string{"network": "offline"}, internal.DeliveryContext{BatteryLevel: 1}, false},
		{"garbage flag", map[string]string{"dnd": "maybe"}, internal.DeliveryContext{}, true},
		{"garbage battery", map[string]string{"battery": "full"}, internal.DeliveryContext{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseStatus(tc.fields)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.want.BatteryLevel, got.BatteryLevel, 1e-9)
			got.BatteryLevel = tc.want.BatteryLevel
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRedisStatus_Snapshot(t *testing.T) {
	mr, rdb := setupRedis(t)
	status := NewRedisStatus(rdb)

	dc, err := status.Snapshot(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, Permissive, dc)

	mr.HSet(StatusKey("u1"), "dnd", "true", "foreground", "1")
	dc, err = status.Snapshot(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, dc.DoNotDisturb)
	assert.True(t, dc.AppForeground)
	assert.True(t, dc.NetworkOnline)

	// read fresh every time
	mr.HSet(StatusKey("u1"), "dnd", "false")
	dc, err = status.Snapshot(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, dc.DoNotDisturb)
}

func TestRedisStatus_ConnectionError(t *testing.T) {
	mr, rdb := setupRedis(t)
	mr.Close()
	_, err := NewRedisStatus(rdb).Snapshot(context.Background(), "u1")
	assert.Error(t, err)
}

func TestRedisTransport_Send(t *testing.T) {
	_, rdb := setupRedis(t)
	ctx := context.Background()
	tr := NewRedisTransport(rdb, "interventions", internal.NopLogger())
	item := internal.ScheduledIntervention{
		ID: "i1", UserID: "u1", Category: internal.CategoryStressRelief, Urgency: internal.UrgencyHigh,
		Payload: json.RawMessage(`{"title":"Breathe"}`), Attempts: 1,
	}

	assert.ErrorIs(t, tr.Send(ctx, item), ErrNoReceiver)

	sub := rdb.Subscribe(ctx, "interventions")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, tr.Send(ctx, item))
	select {
	case m := <-sub.Channel():
		var msg Message
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &msg))
		assert.Equal(t, "i1", msg.ID)
		assert.Equal(t, 2, msg.Attempt)
		assert.JSONEq(t, `{"title":"Breathe"}`, string(msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestStaticAndLogFallbacks(t *testing.T) {
	want := internal.DeliveryContext{NetworkOnline: true, BatteryLevel: 0.5}
	dc, err := StaticStatus{Context: want}.Snapshot(context.Background(), "anyone")
	require.NoError(t, err)
	assert.Equal(t, want, dc)

	tr := NewLogTransport(internal.NopLogger())
	assert.NoError(t, tr.Send(context.Background(), internal.ScheduledIntervention{ID: "i1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, tr.Send(ctx, internal.ScheduledIntervention{ID: "i1"}))
}
