package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/parrot-tester/internal/capture"
	"github.com/tphakala/parrot-tester/internal/errors"
	"github.com/tphakala/parrot-tester/internal/logger"
	"github.com/tphakala/parrot-tester/internal/observability/metrics"
)

// DefaultQueueSize bounds the number of summaries waiting to be published.
const DefaultQueueSize = 64

// Message is the payload published for every finalized capture.
type Message struct {
	SessionID   string    `json:"session_id"`
	PublishedAt time.Time `json:"published_at"`
	capture.Summary
}

// Publisher forwards finalized capture summaries to the broker. Hook is
// called from the pipeline goroutine and never blocks; Run drains the queue
// on its own goroutine.
type Publisher struct {
	client    Client
	topic     string
	sessionID string
	queue     chan capture.Summary
	limiter   *rate.Limiter
	metrics   *metrics.MQTTMetrics
	log       logger.Logger
	now       func() time.Time
}

// NewPublisher creates a publisher. ratePerSecond <= 0 disables rate limiting.
func NewPublisher(c Client, topic, sessionID string, ratePerSecond float64, m *metrics.MQTTMetrics, log logger.Logger) *Publisher {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &Publisher{
		client:    c,
		topic:     topic,
		sessionID: sessionID,
		queue:     make(chan capture.Summary, DefaultQueueSize),
		limiter:   rate.NewLimiter(limit, 1),
		metrics:   m,
		log:       log.Module("mqtt"),
		now:       time.Now,
	}
}

// SetSessionID sets the session id stamped on every message. It must be
// called before Run.
func (p *Publisher) SetSessionID(id string) {
	p.sessionID = id
}

// Hook returns the finalize hook to register with the session.
func (p *Publisher) Hook() capture.FinalizeFunc {
	return p.enqueue
}

func (p *Publisher) enqueue(s capture.Summary) {
	select {
	case p.queue <- s:
	default:
		p.metrics.IncrementMessagesDropped()
		p.log.Debug("capture summary dropped, publish queue full", logger.String("capture_id", s.ID))
	}
}

// Run connects to the broker and publishes queued summaries until ctx is
// done. A failed connection is logged and retried on the next summary.
func (p *Publisher) Run(ctx context.Context) error {
	if err := p.client.Connect(ctx); err != nil {
		p.log.Warn("MQTT broker unreachable, captures will not be published until it recovers",
			logger.Error(err))
	}
	defer p.client.Disconnect()

	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-p.queue:
			if err := p.limiter.Wait(ctx); err != nil {
				return nil
			}
			if err := p.publish(ctx, s); err != nil {
				p.metrics.IncrementErrors()
				p.log.Warn("failed to publish capture summary",
					logger.String("capture_id", s.ID),
					logger.Error(err))
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, s capture.Summary) error {
	if !p.client.IsConnected() {
		if err := p.client.Connect(ctx); err != nil {
			return err
		}
	}
	payload, err := json.Marshal(Message{
		SessionID:   p.sessionID,
		PublishedAt: p.now().UTC(),
		Summary:     s,
	})
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("operation", "marshal_summary").
			Build()
	}
	return p.client.Publish(ctx, p.topic, payload)
}
