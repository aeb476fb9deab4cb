package kafka

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, Brokers(" a:9092, ,b:9092 "))
	assert.Empty(t, Brokers(""))
}

func TestNewWriterHashesByKey(t *testing.T) {
	w := NewWriter("a:9092,b:9092", "")
	defer w.Close()

	assert.Equal(t, "", w.Topic)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
}
