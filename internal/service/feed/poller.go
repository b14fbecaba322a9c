// internal/service/feed/poller.go

package feed

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"regionalert/internal/domain/alert"
	"regionalert/internal/domain/feed"
	"regionalert/internal/observability"
	"regionalert/internal/service/broadcast"
)

// AlertCreator turns candidates into broadcast alerts
type AlertCreator interface {
	CreateAlert(ctx context.Context, c alert.Candidate) (*alert.EmergencyAlert, broadcast.Result, error)
}

// PollerConfig contains configuration for the official feed poller
type PollerConfig struct {
	Interval      time.Duration
	AlertLifetime time.Duration
	Accounts      []feed.Account
}

// Poller turns posts from official emergency accounts into alerts
type Poller struct {
	source  feed.TimelineSource
	creator AlertCreator
	clock   clockwork.Clock
	config  PollerConfig
	metrics *observability.Metrics
	logger  *zap.Logger

	mu       sync.Mutex
	sinceIDs map[string]string
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewPoller creates a new feed poller
func NewPoller(
	source feed.TimelineSource,
	creator AlertCreator,
	clock clockwork.Clock,
	config PollerConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Poller {
	if config.Interval <= 0 {
		config.Interval = 2 * time.Minute
	}
	if config.AlertLifetime <= 0 {
		config.AlertLifetime = 12 * time.Hour
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		source:   source,
		creator:  creator,
		clock:    clock,
		config:   config,
		metrics:  metrics,
		logger:   logger,
		sinceIDs: make(map[string]string),
	}
}

// Start polls once immediately and then on every interval until Stop is
// called or ctx is done.
func (p *Poller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := p.clock.NewTicker(p.config.Interval)
		defer ticker.Stop()

		p.PollOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				p.PollOnce(ctx)
			}
		}
	}()

	p.logger.Info("feed poller started",
		zap.Int("accounts", len(p.config.Accounts)),
		zap.Duration("interval", p.config.Interval),
	)
}

// Stop halts polling and waits for an in-flight poll to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// PollOnce checks every account for new posts. Failures are logged per
// account and never stop the other accounts.
func (p *Poller) PollOnce(ctx context.Context) {
	for _, acct := range p.config.Accounts {
		if ctx.Err() != nil {
			return
		}
		p.pollAccount(ctx, acct)
	}
}

func (p *Poller) pollAccount(ctx context.Context, acct feed.Account) {
	since := p.sinceID(acct.AccountID)

	entries, err := p.source.Timeline(ctx, acct.AccountID, since)
	if err != nil {
		p.metrics.FeedEntries.WithLabelValues(acct.Organization, "error").Inc()
		p.logger.Warn("failed to read official feed",
			zap.String("organization", acct.Organization),
			zap.String("account_id", acct.AccountID),
			zap.Error(err),
		)
		return
	}

	newest := since
	for _, e := range entries {
		if since != "" && !feed.NewerID(e.ID, since) {
			continue
		}

		if err := p.ingest(ctx, acct, e); err != nil {
			// Leave the cursor before this entry so it is retried next poll.
			break
		}
		if feed.NewerID(e.ID, newest) {
			newest = e.ID
		}
	}

	p.setSinceID(acct.AccountID, newest)
}

func (p *Poller) ingest(ctx context.Context, acct feed.Account, e feed.Entry) error {
	class := Classify(e.Text)
	if !class.Relevant() {
		p.metrics.FeedEntries.WithLabelValues(acct.Organization, "skipped").Inc()
		return nil
	}

	expires := p.clock.Now().Add(p.config.AlertLifetime)
	c := alert.Candidate{
		Title:               titleFrom(e.Text),
		Description:         e.Text,
		Type:                class.Type,
		Severity:            class.Severity,
		Coordinates:         acct.Coordinates(),
		RadiusKm:            acct.RadiusKm,
		LocationDescription: acct.Organization + " area",
		SourceType:          alert.SourceOfficial,
		Organization:        acct.Organization,
		ContactInfo:         acct.ContactInfo,
		ExpiresAt:           &expires,
	}

	a, res, err := p.creator.CreateAlert(ctx, c)
	if err != nil {
		p.logger.Error("failed to create alert from official feed",
			zap.String("organization", acct.Organization),
			zap.String("entry_id", e.ID),
			zap.Error(err),
		)
		// A returned alert was saved; only its broadcast failed.
		if a == nil {
			p.metrics.FeedEntries.WithLabelValues(acct.Organization, "error").Inc()
			return err
		}
	}

	p.metrics.FeedEntries.WithLabelValues(acct.Organization, "created").Inc()
	p.logger.Info("official alert created",
		zap.String("organization", acct.Organization),
		zap.String("entry_id", e.ID),
		zap.String("alert_id", a.ID),
		zap.Int("affected", res.Affected),
	)
	return nil
}

func (p *Poller) sinceID(accountID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sinceIDs[accountID]
}

func (p *Poller) setSinceID(accountID, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id != "" {
		p.sinceIDs[accountID] = id
	}
}
