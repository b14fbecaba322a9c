package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLocalBus_DeliversToSubjectSubscribers(t *testing.T) {
	bus := NewLocalBus()

	var got [][]byte
	unsubscribe, err := bus.Subscribe("alerts.broadcast", func(p []byte) { got = append(got, p) })
	require.NoError(t, err)

	var other int
	_, err = bus.Subscribe("alerts.user.u1", func([]byte) { other++ })
	require.NoError(t, err)

	require.NoError(t, bus.Publish("alerts.broadcast", []byte(`{"n":1}`)))
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"n":1}`, string(got[0]))
	assert.Zero(t, other)

	unsubscribe()
	unsubscribe()
	require.NoError(t, bus.Publish("alerts.broadcast", []byte(`{"n":2}`)))
	assert.Len(t, got, 1)
}

func TestLocalBus_PublishWithoutSubscribers(t *testing.T) {
	assert.NoError(t, NewLocalBus().Publish("nobody.listens", []byte("x")))
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestAuditMessage(t *testing.T) {
	at := time.Date(2025, 1, 14, 3, 30, 0, 0, time.UTC)

	msg := auditMessage("alerts.user.u1", []byte(`{"type":"targeted_alert"}`), at)

	assert.Equal(t, []byte("alerts.user.u1"), msg.Key)
	assert.JSONEq(t, `{"type":"targeted_alert"}`, string(msg.Value))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "subject", msg.Headers[0].Key)
	assert.Equal(t, []byte("alerts.user.u1"), msg.Headers[0].Value)
	assert.Equal(t, "published_at", msg.Headers[1].Key)
	assert.Equal(t, []byte("2025-01-14T03:30:00Z"), msg.Headers[1].Value)
}

func TestKafkaAudit_Publish(t *testing.T) {
	w := &fakeWriter{}
	audit := NewKafkaAudit(w, time.Second)

	require.NoError(t, audit.Publish("alerts.broadcast", []byte(`{}`)))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("alerts.broadcast"), w.msgs[0].Key)

	require.NoError(t, audit.Close())
	assert.True(t, w.closed)
}

func TestKafkaAudit_PublishError(t *testing.T) {
	audit := NewKafkaAudit(&fakeWriter{err: errors.New("leader not available")}, time.Second)

	err := audit.Publish("alerts.broadcast", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream: write audit record for alerts.broadcast")
}

type failPublisher struct{ err error }

func (p failPublisher) Publish(string, []byte) error { return p.err }

func TestTee_MirrorsToSecondary(t *testing.T) {
	bus := NewLocalBus()
	var delivered int
	_, err := bus.Subscribe("alerts.broadcast", func([]byte) { delivered++ })
	require.NoError(t, err)

	w := &fakeWriter{}
	tee := NewTee(bus, NewKafkaAudit(w, time.Second), nil)

	require.NoError(t, tee.Publish("alerts.broadcast", []byte(`{}`)))
	assert.Equal(t, 1, delivered)
	assert.Len(t, w.msgs, 1)
}

func TestTee_SecondaryFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	tee := NewTee(NewLocalBus(), failPublisher{err: errors.New("broker down")}, zap.New(core))

	require.NoError(t, tee.Publish("alerts.broadcast", []byte(`{}`)))
	assert.Equal(t, 1, logs.FilterMessage("failed to mirror message").Len())
}

func TestTee_PrimaryFailureSkipsSecondary(t *testing.T) {
	w := &fakeWriter{}
	tee := NewTee(failPublisher{err: errors.New("nats: connection closed")}, NewKafkaAudit(w, time.Second), nil)

	assert.Error(t, tee.Publish("alerts.broadcast", []byte(`{}`)))
	assert.Empty(t, w.msgs)
}
