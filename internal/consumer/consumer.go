package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"referral-service/internal/config"
	"referral-service/internal/processor"

	"github.com/go-playground/validator/v10"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	reconnectDelay       = 5 * time.Second
	maxReconnectAttempts = 10
	handoffTimeout       = 30 * time.Second
)

type Consumer struct {
	cfg      config.RabbitConfig
	log      *logrus.Logger
	updates  chan<- processor.IncomingUpdate
	validate *validator.Validate

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func New(cfg config.RabbitConfig, log *logrus.Logger, updates chan<- processor.IncomingUpdate) (*Consumer, error) {
	c := &Consumer{
		cfg:      cfg,
		log:      log,
		updates:  updates,
		validate: validator.New(),
	}

	if err := c.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return c, nil
}

func (c *Consumer) connect() error {
	conn, err := amqp.Dial(c.cfg.URL())
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		c.cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"host":  c.cfg.Host,
		"queue": c.cfg.Queue,
	}).Info("connected to RabbitMQ")

	return nil
}

func (c *Consumer) reconnect(ctx context.Context) error {
	c.closeConn()

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		c.log.WithField("attempt", attempt).Info("attempting to reconnect to RabbitMQ")

		if err := c.connect(); err == nil {
			c.log.Info("successfully reconnected to RabbitMQ")
			return nil
		}

		delay := reconnectDelay * time.Duration(attempt)
		c.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Warn("reconnection failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("gave up after %d reconnection attempts", maxReconnectAttempts)
}

// Start consumes the queue until ctx is done. A dropped connection is
// re-established and consumption resumes.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		c.mu.Lock()
		channel := c.channel
		c.mu.Unlock()

		if channel == nil {
			return fmt.Errorf("channel is not initialized")
		}

		msgs, err := channel.Consume(
			c.cfg.Queue,
			"",    // consumer tag
			false, // auto-ack
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to start consuming: %w", err)
		}

		c.log.WithField("workers", c.cfg.Workers).Info("starting consumer workers")
		c.runWorkers(ctx, msgs)

		if ctx.Err() != nil {
			c.log.Info("stopping consumer workers")
			return nil
		}

		c.log.Error("RabbitMQ delivery channel closed unexpectedly")
		if err := c.reconnect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *Consumer) runWorkers(ctx context.Context, msgs <-chan amqp.Delivery) {
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.worker(ctx, msgs, workerID)
		}(i)
	}
	wg.Wait()
}

func (c *Consumer) worker(ctx context.Context, msgs <-chan amqp.Delivery, workerID int) {
	c.log.WithField("worker_id", workerID).Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			c.log.WithField("worker_id", workerID).Debug("worker stopped")
			return

		case msg, ok := <-msgs:
			if !ok {
				c.log.WithField("worker_id", workerID).Warn("message channel closed")
				return
			}

			c.processMessage(ctx, msg, workerID)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg amqp.Delivery, workerID int) {
	ctx, cancel := context.WithTimeout(ctx, handoffTimeout)
	defer cancel()

	var payload processor.CommerceEvent
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		c.log.WithFields(logrus.Fields{
			"worker_id": workerID,
			"error":     err,
			"body":      string(msg.Body),
		}).Error("failed to unmarshal message")

		// Reject and don't requeue malformed messages
		_ = msg.Nack(false, false)
		return
	}

	if err := c.validate.Struct(payload); err != nil {
		c.log.WithFields(logrus.Fields{
			"worker_id": workerID,
			"error":     err,
			"event_id":  payload.EventID,
			"type":      payload.Type,
		}).Error("invalid commerce event")
		_ = msg.Nack(false, false)
		return
	}

	if payload.EventID == "" {
		payload.EventID = msg.MessageId
	}

	select {
	case c.updates <- processor.IncomingUpdate{
		Payload:  payload,
		Delivery: msg,
	}:
		c.log.WithFields(logrus.Fields{
			"worker_id": workerID,
			"event_id":  payload.EventID,
			"type":      payload.Type,
		}).Debug("message sent to processor")
	case <-ctx.Done():
		c.log.WithField("worker_id", workerID).Warn("context cancelled while sending message")
		_ = msg.Nack(false, true)
	}
}

func (c *Consumer) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Consumer) Close() {
	c.closeConn()
	c.log.Info("consumer closed")
}
