package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/warp/paa-engine/budget"
	"github.com/warp/paa-engine/log"
)

// TemplateUsagePublisher is the publishing half of Client.
type TemplateUsagePublisher interface {
	PublishTemplateUsage(ctx context.Context, msg *TemplateUsageMessage) error
}

type publishCloser interface {
	TemplateUsagePublisher
	Close() error
}

var errBrokerUnavailable = errors.New("AMQP broker unavailable")

// Publisher is a budget.UsageRecorder that hands usage to the broker
// instead of writing templates inline.
//
// A connection that drops is closed and redialled on a later call. Failed
// dials back off exponentially; while no connection is up, usage goes to
// Fallback when it is set.
type Publisher struct {
	Fallback budget.UsageRecorder

	cfg    BrokerConfig
	logger *log.Logger

	// dial and now are replaced in tests.
	dial func(cfg BrokerConfig, logger *log.Logger) (publishCloser, error)
	now  func() time.Time

	mu       sync.Mutex
	client   publishCloser
	failures int
	nextDial time.Time
}

func NewPublisher(cfg BrokerConfig, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Discard()
	}
	return &Publisher{
		cfg:    cfg,
		logger: logger,
		dial: func(cfg BrokerConfig, logger *log.Logger) (publishCloser, error) {
			return NewClient(cfg.URL, cfg.Exchange, cfg.Queue, logger)
		},
		now: time.Now,
	}
}

// Connect dials the broker now instead of on first use.
func (p *Publisher) Connect() error {
	_, err := p.connected()
	return err
}

func (p *Publisher) RecordUsage(ctx context.Context, centerID string, lines []budget.ExpenseLine) error {
	if len(lines) == 0 {
		return nil
	}

	client, err := p.connected()
	if err == nil {
		if err = client.PublishTemplateUsage(ctx, NewTemplateUsageMessage(centerID, lines)); err == nil {
			return nil
		}
		if isConnectionError(err) {
			p.drop(client)
		}
	}

	if p.Fallback == nil {
		return err
	}
	p.logger.WarnContext(ctx, "Publishing template usage failed, recording directly",
		log.FieldCenterID, centerID,
		log.FieldLines, len(lines),
		log.FieldError, err)
	return p.Fallback.RecordUsage(ctx, centerID, lines)
}

// Close closes the current connection, if any.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

func (p *Publisher) connected() (publishCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	if p.now().Before(p.nextDial) {
		return nil, errBrokerUnavailable
	}

	client, err := p.dial(p.cfg, p.logger)
	if err != nil {
		wait := exponentialBackoff(p.failures)
		p.failures++
		p.nextDial = p.now().Add(wait)
		p.logger.Warn("AMQP dial failed",
			log.FieldError, err,
			log.FieldAttempt, p.failures,
			"backoff", wait.String())
		return nil, err
	}
	p.client = client
	p.failures = 0
	return client, nil
}

// drop forgets client so the next call redials.
func (p *Publisher) drop(client publishCloser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != client {
		return
	}
	p.client.Close()
	p.client = nil
	p.nextDial = time.Time{}
}

// ApplyTo returns a Handler that records each message into templates.
func ApplyTo(templates budget.TemplateStore) Handler {
	recorder := &budget.DirectRecorder{Templates: templates}
	return func(ctx context.Context, msg *TemplateUsageMessage) error {
		if msg.CenterID == "" {
			return &budget.ContentError{Field: "center_id", Message: "must not be empty"}
		}
		return recorder.RecordUsage(ctx, msg.CenterID, msg.ExpenseLines())
	}
}

var _ budget.UsageRecorder = (*Publisher)(nil)
