package consumer

import (
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"example.com/fitledger/internal/events"
)

var errMissingEventType = errors.New("missing " + events.HeaderEventType + " header")

func decodeMessage(msg kafka.Message) (Message, error) {
	schemaID, payload, err := events.Unframe(msg.Value)
	if err != nil {
		return Message{}, fmt.Errorf("decode %s/%d@%d: %w", msg.Topic, msg.Partition, msg.Offset, err)
	}

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		if _, seen := headers[h.Key]; !seen {
			headers[h.Key] = string(h.Value)
		}
	}
	eventType := headers[events.HeaderEventType]
	if eventType == "" {
		return Message{}, errMissingEventType
	}

	return Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     eventType,
		AggregateID:   headers[events.HeaderAggregateID],
		SchemaSubject: headers[events.HeaderSchemaSubject],
		SchemaID:      schemaID,
		Payload:       payload,
	}, nil
}
