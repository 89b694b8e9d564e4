package persistence

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/fitledger/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	token := EncodeCursor(42)
	require.NotEmpty(t, token)

	seq, err := DecodeCursor(token)
	require.NoError(t, err)
	require.Equal(t, uint64(42), seq)

	require.Empty(t, EncodeCursor(0))
	seq, err = DecodeCursor("  ")
	require.NoError(t, err)
	require.Zero(t, seq)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	require.Error(t, err)

	_, err = DecodeCursor(base64.StdEncoding.EncodeToString([]byte("2025-01-01|abc")))
	require.Error(t, err)

	_, err = DecodeCursor(base64.StdEncoding.EncodeToString([]byte("seq:-1")))
	require.Error(t, err)
}

func TestPageWalksRecordsInOrder(t *testing.T) {
	records := []domain.ActivityRecord{{Seq: 2}, {Seq: 5}, {Seq: 7}, {Seq: 9}, {Seq: 12}}

	page, next := Page(records, 0, 2)
	require.Equal(t, []domain.ActivityRecord{{Seq: 2}, {Seq: 5}}, page)
	require.Equal(t, uint64(5), next)

	page, next = Page(records, next, 2)
	require.Equal(t, []domain.ActivityRecord{{Seq: 7}, {Seq: 9}}, page)
	require.Equal(t, uint64(9), next)

	page, next = Page(records, next, 2)
	require.Equal(t, []domain.ActivityRecord{{Seq: 12}}, page)
	require.Zero(t, next)

	page, next = Page(records, 0, 0)
	require.Len(t, page, 5)
	require.Zero(t, next)

	page, _ = Page(records, 12, 10)
	require.Empty(t, page)
}
