// Package persistence contains helpers shared by the ledger stores and their readers.
package persistence

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"example.com/fitledger/internal/domain"
)

const cursorPrefix = "seq:"

// EncodeCursor serialises the sequence number of the last record a page returned.
// A zero sequence means there is no further page.
func EncodeCursor(seq uint64) string {
	if seq == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(cursorPrefix + strconv.FormatUint(seq, 10)))
}

// DecodeCursor parses the encoded cursor token. An empty token starts from the beginning.
func DecodeCursor(token string) (uint64, error) {
	if strings.TrimSpace(token) == "" {
		return 0, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return 0, err
	}
	raw, ok := strings.CutPrefix(string(decoded), cursorPrefix)
	if !ok {
		return 0, fmt.Errorf("invalid cursor format")
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor sequence: %w", err)
	}
	return seq, nil
}

// Page returns up to limit records with a sequence number greater than after, plus the
// cursor sequence for the following page. records must be in insertion order.
func Page(records []domain.ActivityRecord, after uint64, limit int) ([]domain.ActivityRecord, uint64) {
	start := 0
	for start < len(records) && records[start].Seq <= after {
		start++
	}
	rest := records[start:]
	if limit <= 0 || len(rest) <= limit {
		return rest, 0
	}
	page := rest[:limit]
	return page, page[len(page)-1].Seq
}
