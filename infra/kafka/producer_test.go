package kafka

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaramaPublisherSends(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	sp := mocks.NewSyncProducer(t, cfg)

	var got *sarama.ProducerMessage
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		got = m
		return nil
	})

	p := NewSaramaPublisherWithProducer(sp, "ladder.events")
	require.NoError(t, p.Publish(context.Background(), []byte("LDR-USD"), []byte(`{"seq":1}`)))
	require.NoError(t, p.Close())

	require.NotNil(t, got)
	assert.Equal(t, "ladder.events", got.Topic)
	key, err := got.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "LDR-USD", string(key))
	val, err := got.Value.Encode()
	require.NoError(t, err)
	assert.Equal(t, `{"seq":1}`, string(val))
}

func TestSaramaPublisherFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	boom := errors.New("broker down")
	sp.ExpectSendMessageAndFail(boom)

	p := NewSaramaPublisherWithProducer(sp, "ladder.events")
	err := p.Publish(context.Background(), nil, []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	require.NoError(t, p.Close())
}

func TestWriterPublisherConfig(t *testing.T) {
	p := NewWriterPublisher([]string{"localhost:9092"}, "ladder.events")
	assert.Equal(t, "ladder.events", p.writer.Topic)
	assert.False(t, p.writer.Async)
	require.NoError(t, p.Close())
}
