package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/rabbitmq/amqp091-go"
)

// Producer publishes JSON messages to a durable topic exchange.
type Producer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

// Fallback drops every event. Used when no broker is configured or reachable.
type Fallback struct{}

func (Fallback) Publish(_ context.Context, routingKey string, _ interface{}) error {
	log.Debugf("[Events] broker unavailable, skipped %s", routingKey)
	return nil
}

func (Fallback) Close() {}

// New connects to amqpURL. An empty URL or a failed dial yields Fallback so
// the service starts without a broker.
func New(amqpURL, exchange string) Publisher {
	if strings.TrimSpace(amqpURL) == "" {
		log.Info("[Events] AMQP_URL not set, events are disabled")
		return Fallback{}
	}
	p, err := NewProducer(amqpURL, exchange)
	if err != nil {
		log.Warnf("[Events] Could not connect to broker, events are disabled: %v", err)
		return Fallback{}
	}
	log.Infof("[Events] Publishing to exchange %s", exchange)
	return p
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

func NewProducer(amqpURL, exchange string) (*Producer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	p := &Producer{conn: conn, exchange: exchange}
	if err := p.open(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// open (re)creates the channel and declares the exchange. Callers hold mu or
// own p exclusively.
func (p *Producer) open() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return err
	}
	p.channel = ch
	return nil
}

func (p *Producer) Publish(ctx context.Context, routingKey string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}

	// one retry on a fresh channel
	log.Warnf("[Events] publish %s failed, reopening channel: %v", routingKey, err)
	if openErr := p.open(); openErr != nil {
		return errors.Join(err, openErr)
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
