package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pos-core/events"
)

type captureNotifier struct {
	events []events.Event
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return nil
}

func TestEmitFansOut(t *testing.T) {
	first := &captureNotifier{}
	second := &captureNotifier{}
	fixed := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	bus := events.Bus{
		Notifiers: []events.Notifier{first, second},
		Now:       func() time.Time { return fixed },
	}

	payload := map[string]any{"requestId": 42, "state": "APPROVED"}
	event, err := bus.Emit(context.Background(), events.TopicDiscountStateChanged, payload)
	require.NoError(t, err)
	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	require.Equal(t, event.ID, first.events[0].ID)
	require.Equal(t, fixed, event.OccurredAt)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "APPROVED", decoded["state"])
}

func TestEmitNotifierErrorDoesNotStopFanOut(t *testing.T) {
	boom := errors.New("boom")
	failing := events.NotifierFunc(func(context.Context, events.Event) error { return boom })
	capture := &captureNotifier{}
	bus := events.Bus{Notifiers: []events.Notifier{failing, capture}}

	_, err := bus.Emit(context.Background(), events.TopicCartChanged, nil)
	require.ErrorIs(t, err, boom)
	require.Len(t, capture.events, 1, "later notifiers still run")
}

func TestEmitValidatesTopicAndPayload(t *testing.T) {
	bus := events.Bus{}

	_, err := bus.Emit(context.Background(), "  ", nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicCartChanged, []byte("not json"))
	require.Error(t, err)

	event, err := bus.Emit(context.Background(), events.TopicCartChanged, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(event.Payload))
}

func TestNilBusDropsEvents(t *testing.T) {
	var bus *events.Bus
	_, err := bus.Emit(context.Background(), events.TopicDocumentIssued, map[string]int{"id": 1})
	require.NoError(t, err)
}
