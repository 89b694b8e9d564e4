package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"example.com/fitledger/internal/cache"
	"example.com/fitledger/internal/events"
)

// CacheHandler invalidates the cached ledger view of the user an event touches.
type CacheHandler struct {
	invalidator cache.Invalidator
}

// NewCacheHandler constructs a CacheHandler.
func NewCacheHandler(invalidator cache.Invalidator) *CacheHandler {
	return &CacheHandler{invalidator: invalidator}
}

// Handle decodes the user from known event types. Unknown types are skipped.
func (h *CacheHandler) Handle(ctx context.Context, msg Message) error {
	var userID string
	switch msg.EventType {
	case events.TypeActivityRecorded:
		var evt events.ActivityRecorded
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		userID = evt.UserID
	case events.TypeUserRegistered:
		var evt events.UserRegistered
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		userID = evt.UserID
	default:
		return nil
	}
	if userID == "" {
		return fmt.Errorf("%s event without user_id", msg.EventType)
	}
	return h.invalidator.Invalidate(ctx, userID)
}
