package domain

import (
	"fmt"
	"strings"
	"time"
)

// ActivityRecord is an accepted activity. Records are never edited once appended.
type ActivityRecord struct {
	ID         string
	Seq        uint64
	UserID     UserID
	Minutes    uint32
	Steps      uint32
	Date       string
	RecordedBy Principal
	RecordedAt time.Time
}

// String renders the record for display. It is never used for lookups.
func (r ActivityRecord) String() string {
	return fmt.Sprintf("%s %s %d mins %d steps", r.UserID, r.Date, r.Minutes, r.Steps)
}

// ActivityLog is the append-only store of accepted records, indexed by user.
type ActivityLog struct {
	records []ActivityRecord
	byUser  map[UserID][]int
}

// NewActivityLog returns an empty log.
func NewActivityLog() ActivityLog {
	return ActivityLog{byUser: make(map[UserID][]int)}
}

// Append adds rec to the end of the log. Preconditions are the caller's responsibility.
func (l *ActivityLog) Append(rec ActivityRecord) {
	l.byUser[rec.UserID] = append(l.byUser[rec.UserID], len(l.records))
	l.records = append(l.records, rec)
}

// Query returns the records of user in insertion order.
func (l *ActivityLog) Query(user UserID) []ActivityRecord {
	idx := l.byUser[user]
	out := make([]ActivityRecord, 0, len(idx))
	for _, i := range idx {
		out = append(out, l.records[i])
	}
	return out
}

// Search returns every record whose display string contains fragment, in insertion order.
// Unlike Query this is a text match: "al" also matches records of "alice".
func (l *ActivityLog) Search(fragment string) []ActivityRecord {
	out := make([]ActivityRecord, 0)
	for _, rec := range l.records {
		if strings.Contains(rec.String(), fragment) {
			out = append(out, rec)
		}
	}
	return out
}

// Len returns the total number of records.
func (l *ActivityLog) Len() int {
	return len(l.records)
}

// CountFor returns the number of records attributed to user.
func (l *ActivityLog) CountFor(user UserID) int {
	return len(l.byUser[user])
}

func (l *ActivityLog) nextSeq() uint64 {
	return uint64(len(l.records)) + 1
}

func (l *ActivityLog) all() []ActivityRecord {
	out := make([]ActivityRecord, len(l.records))
	copy(out, l.records)
	return out
}
