package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"referral-service/internal/config"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

// Message is the body published for every notification.
type Message struct {
	UserID  uint      `json:"user_id"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends notifications to a RabbitMQ exchange. A closed channel is
// reopened on the next publish.
type Publisher struct {
	cfg config.RabbitConfig
	log *logrus.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel channel
	dial    func() (channel, error)
}

func NewPublisher(cfg config.RabbitConfig, log *logrus.Logger) (*Publisher, error) {
	p := &Publisher{
		cfg: cfg,
		log: log,
	}
	p.dial = p.connect

	ch, err := p.dial()
	if err != nil {
		return nil, err
	}
	p.channel = ch

	return p, nil
}

func (p *Publisher) connect() (channel, error) {
	conn, err := amqp.Dial(p.cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.cfg.NotifyExchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	if p.conn != nil {
		p.conn.Close()
	}
	p.conn = conn

	p.log.WithFields(logrus.Fields{
		"host":     p.cfg.Host,
		"exchange": p.cfg.NotifyExchange,
	}).Info("notification publisher connected")

	return ch, nil
}

func (p *Publisher) Notify(ctx context.Context, userID uint, title, message string) error {
	body, err := json.Marshal(Message{
		UserID:  userID,
		Title:   title,
		Message: message,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		ch, err := p.dial()
		if err != nil {
			return err
		}
		p.channel = ch
	}

	err = p.channel.PublishWithContext(ctx,
		p.cfg.NotifyExchange,
		p.cfg.NotifyRoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if errors.Is(err, amqp.ErrClosed) {
		p.log.Warn("notification channel closed, reconnecting on next publish")
		p.channel = nil
	}
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}

	p.log.Info("notification publisher closed")
}
