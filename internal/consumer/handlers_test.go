package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/fitledger/internal/events"
)

type recordingInvalidator struct {
	users []string
	err   error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID string) error {
	r.users = append(r.users, userID)
	return r.err
}

func TestCacheHandlerInvalidatesTouchedUser(t *testing.T) {
	inv := &recordingInvalidator{}
	handler := NewCacheHandler(inv)

	recorded, err := json.Marshal(events.ActivityRecorded{ActivityID: "a1", UserID: "pawel", Minutes: 30, Steps: 4000})
	require.NoError(t, err)
	registered, err := json.Marshal(events.UserRegistered{UserID: "anna"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, handler.Handle(ctx, Message{EventType: events.TypeActivityRecorded, Payload: recorded}))
	require.NoError(t, handler.Handle(ctx, Message{EventType: events.TypeUserRegistered, Payload: registered}))
	require.NoError(t, handler.Handle(ctx, Message{EventType: "something.else", Payload: json.RawMessage(`{}`)}))

	require.Equal(t, []string{"pawel", "anna"}, inv.users)
}

func TestCacheHandlerRejectsPayloadWithoutUser(t *testing.T) {
	handler := NewCacheHandler(&recordingInvalidator{})

	err := handler.Handle(context.Background(), Message{EventType: events.TypeActivityRecorded, Payload: json.RawMessage(`{"activity_id":"a1"}`)})
	require.Error(t, err)

	err = handler.Handle(context.Background(), Message{EventType: events.TypeUserRegistered, Payload: json.RawMessage(`not json`)})
	require.Error(t, err)
}

func TestFanoutRunsEveryHandler(t *testing.T) {
	var calls []string
	first := HandlerFunc(func(context.Context, Message) error {
		calls = append(calls, "audit")
		return errors.New("db down")
	})
	second := HandlerFunc(func(context.Context, Message) error {
		calls = append(calls, "cache")
		return nil
	})

	err := Fanout{first, second}.Handle(context.Background(), Message{EventType: events.TypeUserRegistered})

	require.ErrorContains(t, err, "db down")
	require.Equal(t, []string{"audit", "cache"}, calls)
	require.NoError(t, Fanout{second}.Handle(context.Background(), Message{}))
}
