// Package service holds outbound integrations used by the purchase flow.
package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/growfi/growfi-server/internal/queue"
)

// DefaultDialTimeout bounds the TCP connect and AMQP handshake when the
// context carries no earlier deadline.
const DefaultDialTimeout = 5 * time.Second

// QueuePublisher publishes purchase events to RabbitMQ.  Each publish opens
// its own connection; errors are logged and returned so callers can treat
// the event as best effort.
type QueuePublisher struct {
	URL         string
	Log         *zap.Logger
	DialTimeout time.Duration
}

// NewQueuePublisher returns a publisher for the broker at url.
func NewQueuePublisher(url string, log *zap.Logger) *QueuePublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &QueuePublisher{URL: url, Log: log.Named("rabbitmq")}
}

// PublishPlotsPurchased publishes ev to the plots.purchased queue as a
// persistent message.
func (p *QueuePublisher) PublishPlotsPurchased(ctx context.Context, ev queue.PlotsPurchasedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		p.Log.Error("marshal event failed", zap.Error(err))
		return err
	}

	timeout, err := p.dialTimeout(ctx)
	if err != nil {
		return err
	}
	conn, err := amqp.DialConfig(p.URL, amqp.Config{
		Locale: "en_US",
		Dial:   amqp.DefaultDial(timeout),
	})
	if err != nil {
		p.Log.Warn("dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.Log.Warn("channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	// durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(queue.PlotsPurchasedQueue, true, false, false, false, nil); err != nil {
		p.Log.Warn("queue declare failed", zap.Error(err))
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue.PlotsPurchasedQueue, false, false, pub); err != nil {
		p.Log.Warn("publish failed", zap.Error(err), zap.String("event_id", ev.EventID))
		return err
	}
	p.Log.Debug("event published", zap.String("event_id", ev.EventID), zap.String("farm_id", ev.FarmID))
	return nil
}

// dialTimeout is DialTimeout, or DefaultDialTimeout, shortened to the
// context deadline.
func (p *QueuePublisher) dialTimeout(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	if dl, ok := ctx.Deadline(); ok {
		left := time.Until(dl)
		if left <= 0 {
			return 0, context.DeadlineExceeded
		}
		if left < timeout {
			timeout = left
		}
	}
	return timeout, nil
}
