package events

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Kafka header keys set on every published ledger event.
const (
	HeaderEventType     = "event_type"
	HeaderSchemaSubject = "schema_subject"
	HeaderAggregateID   = "aggregate_id"
)

const (
	magicByte   = 0
	frameHeader = 5
)

// ErrMalformedFrame reports a record value that does not carry the schema registry framing.
var ErrMalformedFrame = errors.New("malformed event frame")

// Frame prefixes payload with the schema registry wire header: a zero magic byte followed by
// the big-endian schema ID.
func Frame(schemaID int, payload []byte) []byte {
	buf := make([]byte, frameHeader+len(payload))
	buf[0] = magicByte
	binary.BigEndian.PutUint32(buf[1:frameHeader], uint32(schemaID))
	copy(buf[frameHeader:], payload)
	return buf
}

// Unframe splits a framed value into its schema ID and a copy of the payload.
func Unframe(value []byte) (int, []byte, error) {
	if len(value) < frameHeader {
		return 0, nil, fmt.Errorf("%w: length %d", ErrMalformedFrame, len(value))
	}
	if value[0] != magicByte {
		return 0, nil, fmt.Errorf("%w: magic byte %d", ErrMalformedFrame, value[0])
	}
	schemaID := int(binary.BigEndian.Uint32(value[1:frameHeader]))
	return schemaID, append([]byte(nil), value[frameHeader:]...), nil
}
