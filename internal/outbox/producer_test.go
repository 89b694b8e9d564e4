package outbox

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestKafkaProducerReusesWriterPerTopic(t *testing.T) {
	p := NewKafkaProducer([]string{"localhost:9092"}, WithBatchTimeout(5*time.Millisecond), WithCompression(kafka.Lz4))

	first := p.writer("ledger_activities")
	require.Same(t, first, p.writer("ledger_activities"))
	require.NotSame(t, first, p.writer("ledger_users"))
	require.Equal(t, 5*time.Millisecond, first.BatchTimeout)
	require.Equal(t, kafka.Lz4, first.Compression)
	require.IsType(t, &kafka.Hash{}, first.Balancer)

	require.NoError(t, p.Close())
	require.Empty(t, p.writers)
}

func TestKafkaProducerCloseWithoutWriters(t *testing.T) {
	p := NewKafkaProducer(nil)
	require.NoError(t, p.Close())
}
