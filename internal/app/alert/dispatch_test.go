package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewrweber/pi-air/internal/domain"
	"github.com/andrewrweber/pi-air/internal/ports"
)

type stubChannel struct {
	name  string
	err   error
	stall time.Duration
	sent  int
}

func (c *stubChannel) Name() string { return c.name }

func (c *stubChannel) Send(ctx context.Context, ev *domain.AlertEvent) error {
	c.sent++
	if c.stall > 0 {
		select {
		case <-time.After(c.stall):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.err
}

func testEvent() *domain.AlertEvent {
	return &domain.AlertEvent{
		ID:       "ev-1",
		RuleID:   "aqi-high",
		Category: domain.CategoryAirQuality,
		Severity: domain.SeverityWarning,
		Message:  "AQI 151",
	}
}

func TestDispatchRecordsOneResultPerChannel(t *testing.T) {
	chans := []stubChannel{
		{name: "log"},
		{name: "webhook", err: errors.New("status 500")},
		{name: "email"},
	}
	d := NewDispatcher([]ports.Channel{&chans[0], &chans[1], &chans[2]}, time.Second, testLogger(), nil)

	ev := testEvent()
	d.Dispatch(context.Background(), ev)

	require.Len(t, ev.Delivery, 3)
	byName := map[string]domain.DeliveryResult{}
	for _, res := range ev.Delivery {
		byName[res.Channel] = res
	}
	assert.True(t, byName["log"].OK)
	assert.True(t, byName["email"].OK)
	assert.False(t, byName["webhook"].OK)
	assert.Contains(t, byName["webhook"].Error, "status 500")
}

func TestDispatchFailureDoesNotBlockOthers(t *testing.T) {
	stalled := &stubChannel{name: "webhook", stall: 5 * time.Second}
	quick := &stubChannel{name: "log"}
	d := NewDispatcher([]ports.Channel{stalled, quick}, 50*time.Millisecond, testLogger(), nil)

	ev := testEvent()
	start := time.Now()
	d.Dispatch(context.Background(), ev)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second, "a stalled channel must be cut off by its timeout")

	require.Len(t, ev.Delivery, 2)
	byName := map[string]domain.DeliveryResult{}
	for _, res := range ev.Delivery {
		byName[res.Channel] = res
	}
	assert.True(t, byName["log"].OK)
	assert.False(t, byName["webhook"].OK)
	assert.Equal(t, 1, quick.sent)
}

func TestDispatchNoChannels(t *testing.T) {
	d := NewDispatcher(nil, time.Second, testLogger(), nil)
	ev := testEvent()
	d.Dispatch(context.Background(), ev)
	assert.Empty(t, ev.Delivery)
}
