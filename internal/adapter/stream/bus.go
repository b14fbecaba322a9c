// internal/adapter/stream/bus.go

package stream

import (
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
)

// Handler receives the payload of one message.
type Handler func(payload []byte)

// Bus publishes messages on subjects and delivers them to subscribers.
type Bus interface {
	Publish(subject string, payload []byte) error
	Subscribe(subject string, handler Handler) (unsubscribe func(), err error)
}

// NATSBus is a Bus on a NATS connection
type NATSBus struct {
	conn *nats.Conn
}

// NewNATSBus wraps an established NATS connection.
func NewNATSBus(conn *nats.Conn) *NATSBus {
	return &NATSBus{conn: conn}
}

// Publish sends payload on subject.
func (b *NATSBus) Publish(subject string, payload []byte) error {
	if err := b.conn.Publish(subject, payload); err != nil {
		return eris.Wrapf(err, "stream: publish to %s", subject)
	}
	return nil
}

// Subscribe registers handler for subject.
func (b *NATSBus) Subscribe(subject string, handler Handler) (func(), error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "stream: subscribe to %s", subject)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// LocalBus is an in-process Bus for single instance deployments without a
// NATS server. Handlers run synchronously on the publishing goroutine.
type LocalBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

// NewLocalBus creates an empty local bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[int]Handler)}
}

// Publish delivers payload to every current subscriber of subject.
func (b *LocalBus) Publish(subject string, payload []byte) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[subject]))
	for _, h := range b.subs[subject] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(append([]byte(nil), payload...))
	}
	return nil
}

// Subscribe registers handler for subject.
func (b *LocalBus) Subscribe(subject string, handler Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.subs[subject] == nil {
		b.subs[subject] = make(map[int]Handler)
	}
	b.subs[subject][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[subject], id)
			if len(b.subs[subject]) == 0 {
				delete(b.subs, subject)
			}
		})
	}, nil
}
