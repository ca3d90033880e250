package events

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/warp/paa-engine/log"
)

const maxBackoff = 30 * time.Second

// BrokerConfig names the broker a Consumer or Publisher connects to.
type BrokerConfig struct {
	URL      string
	Exchange string
	Queue    string
}

// Consumer keeps a template usage subscription alive across broker restarts.
type Consumer struct {
	cfg     BrokerConfig
	handler Handler
	logger  *log.Logger

	// dial is replaced in tests.
	dial  func(cfg BrokerConfig, logger *log.Logger) (subscription, error)
	sleep func(ctx context.Context, d time.Duration) error
}

type subscription interface {
	ConsumeTemplateUsage(ctx context.Context, handler Handler) error
	Close() error
}

func NewConsumer(cfg BrokerConfig, handler Handler, logger *log.Logger) *Consumer {
	if logger == nil {
		logger = log.Discard()
	}
	return &Consumer{
		cfg:     cfg,
		handler: handler,
		logger:  logger.WithComponent(log.ComponentWorker),
		dial: func(cfg BrokerConfig, logger *log.Logger) (subscription, error) {
			return NewClient(cfg.URL, cfg.Exchange, cfg.Queue, logger)
		},
		sleep: sleepContext,
	}
}

// Run consumes until ctx is cancelled, reconnecting with exponential backoff
// when the connection drops. The backoff starts over after a session that
// handled at least one delivery. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	attempt := 0
	for {
		consumed, err := c.consumeOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !isConnectionError(err) {
			return err
		}
		if consumed {
			attempt = 0
		}

		wait := exponentialBackoff(attempt)
		c.logger.WarnContext(ctx, "AMQP connection lost, reconnecting",
			log.FieldError, err,
			log.FieldAttempt, attempt+1,
			"backoff", wait.String())
		if err := c.sleep(ctx, wait); err != nil {
			return nil
		}
		attempt++
	}
}

// consumeOnce runs one session and reports whether it handled anything.
func (c *Consumer) consumeOnce(ctx context.Context) (bool, error) {
	sub, err := c.dial(c.cfg, c.logger)
	if err != nil {
		return false, err
	}
	defer sub.Close()

	var consumed atomic.Bool
	err = sub.ConsumeTemplateUsage(ctx, func(ctx context.Context, msg *TemplateUsageMessage) error {
		consumed.Store(true)
		return c.handler(ctx, msg)
	})
	return consumed.Load(), err
}

// exponentialBackoff returns 1s, 2s, 4s... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection closed",
		"channel closed",
		"dial amqp",
		"eof",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
