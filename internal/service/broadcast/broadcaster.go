// internal/service/broadcast/broadcaster.go

package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"regionalert/internal/domain/alert"
	"regionalert/internal/domain/geo"
	"regionalert/internal/domain/location"
	"regionalert/internal/observability"
)

// Publisher is the fan-out channel. *nats.Conn satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// LocationFinder returns the non-private location records inside a radius.
type LocationFinder interface {
	FindWithinRadius(ctx context.Context, center geo.Coordinate, radiusKm float64) ([]location.Record, error)
}

// Config contains configuration for the broadcaster
type Config struct {
	// Concurrency bounds the number of in-flight per-recipient publishes.
	Concurrency int
}

// Delivery is the outcome of publishing to one recipient
type Delivery struct {
	UserID     string
	DistanceKm float64
	Err        error
}

// Result summarises a broadcast. Affected counts every targeted user whether
// or not their publish succeeded.
type Result struct {
	Affected   int
	Deliveries []Delivery
}

// Delivered returns the number of successful per-recipient publishes.
func (r Result) Delivered() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the deliveries that did not go out.
func (r Result) Failed() []Delivery {
	var failed []Delivery
	for _, d := range r.Deliveries {
		if d.Err != nil {
			failed = append(failed, d)
		}
	}
	return failed
}

// Broadcaster targets alerts at users inside the alert radius
type Broadcaster struct {
	finder    LocationFinder
	publisher Publisher
	clock     clockwork.Clock
	config    Config
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewBroadcaster creates a new broadcaster
func NewBroadcaster(
	finder LocationFinder,
	publisher Publisher,
	clock clockwork.Clock,
	config Config,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Broadcaster {
	if config.Concurrency <= 0 {
		config.Concurrency = 16
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		finder:    finder,
		publisher: publisher,
		clock:     clock,
		config:    config,
		metrics:   metrics,
		logger:    logger,
	}
}

// Broadcast publishes a to the global topic and to every user whose last known
// location lies within the alert radius. Only a failed recipient lookup is an
// error; publish failures are recorded in the result.
func (b *Broadcaster) Broadcast(ctx context.Context, a alert.EmergencyAlert) (Result, error) {
	recipients, err := b.finder.FindWithinRadius(ctx, a.Location.Coordinates, a.Location.RadiusKm)
	if err != nil {
		return Result{}, eris.Wrap(err, "broadcast: find recipients")
	}

	now := b.clock.Now()
	if err := b.publishJSON(alert.BroadcastTopic, alert.CreatedEvent{
		Type:  alert.EventAlertCreated,
		Alert: a,
		Time:  now,
	}); err != nil {
		b.logger.Error("failed to publish alert on global topic",
			zap.String("alert_id", a.ID),
			zap.Error(err),
		)
	}

	result := Result{
		Affected:   len(recipients),
		Deliveries: make([]Delivery, len(recipients)),
	}
	b.metrics.BroadcastRecipients.Observe(float64(len(recipients)))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(b.config.Concurrency)

	for i, rec := range recipients {
		g.Go(func() error {
			d := Delivery{
				UserID:     rec.UserID,
				DistanceKm: geo.Distance(a.Location.Coordinates, rec.Coordinates),
			}
			d.Err = alert.ValidateTopicID(rec.UserID)
			if d.Err == nil {
				d.Err = b.publishJSON(alert.UserTopic(rec.UserID), alert.TargetedEvent{
					Type:       alert.EventTargetedAlert,
					Alert:      a,
					DistanceKm: d.DistanceKm,
					Time:       now,
				})
			}
			if d.Err != nil {
				b.metrics.BroadcastDeliveries.WithLabelValues("failed").Inc()
				b.logger.Warn("failed to deliver alert to recipient",
					zap.String("alert_id", a.ID),
					zap.String("user_id", rec.UserID),
					zap.Error(d.Err),
				)
			} else {
				b.metrics.BroadcastDeliveries.WithLabelValues("delivered").Inc()
			}
			result.Deliveries[i] = d
			return nil
		})
	}
	_ = g.Wait()

	b.logger.Info("alert broadcast",
		zap.String("alert_id", a.ID),
		zap.Int("affected", result.Affected),
		zap.Int("delivered", result.Delivered()),
	)

	return result, nil
}

// PublishStatusChange announces a status transition on the alert's status topic.
func (b *Broadcaster) PublishStatusChange(a alert.EmergencyAlert, previous alert.Status, reason string) error {
	err := b.publishJSON(alert.StatusTopic(a.ID), alert.StatusChangedEvent{
		Type:               alert.EventStatusChanged,
		AlertID:            a.ID,
		PreviousStatus:     previous,
		Status:             a.Status,
		VerificationStatus: a.Source.VerificationStatus,
		Reason:             reason,
		Time:               b.clock.Now(),
	})
	if err != nil {
		return eris.Wrap(err, "broadcast: publish status change")
	}
	return nil
}

// PublishResponseCounts announces the current response tally of an alert.
func (b *Broadcaster) PublishResponseCounts(a alert.EmergencyAlert) error {
	err := b.publishJSON(alert.ResponsesTopic(a.ID), alert.ResponseCountsEvent{
		Type:    alert.EventResponseCounts,
		AlertID: a.ID,
		Total:   len(a.Responses),
		Counts:  a.ResponseCounts(),
		Time:    b.clock.Now(),
	})
	if err != nil {
		return eris.Wrap(err, "broadcast: publish response counts")
	}
	return nil
}

func (b *Broadcaster) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "broadcast: encode event for %s", topic)
	}
	return b.publisher.Publish(topic, payload)
}

// Recorder is an in-memory Publisher that keeps every message. It backs the
// publisher when no NATS server is configured.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Message is one published payload
type Message struct {
	Topic   string
	Payload []byte
}

// Publish records the message.
func (r *Recorder) Publish(topic string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Topic: topic, Payload: append([]byte(nil), payload...)})
	return nil
}

// Messages returns the recorded messages, optionally filtered by topic.
func (r *Recorder) Messages(topic string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if topic == "" || m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
