// Package events defines the payloads the ledger publishes through the outbox.
package events

import "time"

// Event types written to the outbox.
const (
	TypeActivityRecorded = "activity.recorded"
	TypeUserRegistered   = "user.registered"
)

// ActivityRecorded is emitted when an activity is accepted into the ledger.
type ActivityRecorded struct {
	ActivityID string    `json:"activity_id"`
	Seq        uint64    `json:"seq"`
	UserID     string    `json:"user_id"`
	Minutes    uint32    `json:"minutes"`
	Steps      uint32    `json:"steps"`
	Date       string    `json:"date"`
	RecordedBy string    `json:"recorded_by"`
	RecordedAt time.Time `json:"recorded_at"`
	Score      uint32    `json:"score"`
}

// UserRegistered is emitted when a user is registered or re-registered. Consumers must treat
// it as a score reset.
type UserRegistered struct {
	UserID       string    `json:"user_id"`
	RegisteredAt time.Time `json:"registered_at"`
}
