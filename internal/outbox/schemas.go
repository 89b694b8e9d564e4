package outbox

import "example.com/fitledger/internal/events"

const activityRecordedSchema = `{
  "type": "object",
  "title": "ActivityRecorded",
  "properties": {
    "activity_id": {"type": "string"},
    "seq": {"type": "integer", "minimum": 1},
    "user_id": {"type": "string"},
    "minutes": {"type": "integer", "minimum": 0},
    "steps": {"type": "integer", "minimum": 0},
    "date": {"type": "string"},
    "recorded_by": {"type": "string"},
    "recorded_at": {"type": "string", "format": "date-time"},
    "score": {"type": "integer", "minimum": 1}
  },
  "required": ["activity_id", "seq", "user_id", "minutes", "steps", "date", "recorded_by", "recorded_at", "score"],
  "additionalProperties": false
}`

const userRegisteredSchema = `{
  "type": "object",
  "title": "UserRegistered",
  "properties": {
    "user_id": {"type": "string"},
    "registered_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "registered_at"],
  "additionalProperties": false
}`

// eventSchemas maps each published event type to the JSON schema registered for its subject.
var eventSchemas = map[string]string{
	events.TypeActivityRecorded: activityRecordedSchema,
	events.TypeUserRegistered:   userRegisteredSchema,
}
