package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *stubReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.pending[0]
	r.pending = r.pending[1:]
	return msg, nil
}

func (r *stubReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *stubReader) Config() kafka.ReaderConfig { return kafka.ReaderConfig{Topic: "payments"} }

func (r *stubReader) Close() error { return nil }

func newStubConsumer(offsets ...int64) (*Consumer, *stubReader, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &stubReader{cancel: cancel}
	for _, off := range offsets {
		reader.pending = append(reader.pending, kafka.Message{Offset: off})
	}
	return newConsumer(reader, time.Millisecond, 4*time.Millisecond), reader, ctx
}

func TestConsumerRetriesBeforeCommittingLaterOffsets(t *testing.T) {
	c, reader, ctx := newStubConsumer(10, 11)

	var handled []int64
	failures := 2
	err := c.StartConsuming(ctx, func(ctx context.Context, msg kafka.Message) error {
		handled = append(handled, msg.Offset)
		if msg.Offset == 10 && failures > 0 {
			failures--
			return errors.New("db unavailable")
		}
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int64{10, 10, 10, 11}, handled)
	assert.Equal(t, []int64{10, 11}, reader.committed)
}

func TestConsumerCommitsPastMalformedMessages(t *testing.T) {
	c, reader, ctx := newStubConsumer(3, 4)

	attempts := 0
	err := c.StartConsuming(ctx, func(ctx context.Context, msg kafka.Message) error {
		attempts++
		if msg.Offset == 3 {
			return ErrMalformedMessage
		}
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []int64{3, 4}, reader.committed)
}

func TestConsumerStopsRetryingOnCancel(t *testing.T) {
	c, reader, ctx := newStubConsumer(7)
	ctx, cancel := context.WithCancel(ctx)

	err := c.StartConsuming(ctx, func(ctx context.Context, msg kafka.Message) error {
		cancel()
		return errors.New("still failing")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reader.committed)
}
