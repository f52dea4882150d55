package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"referral-service/internal/commission"
	"referral-service/internal/metrics"
	"referral-service/internal/model"
	"referral-service/internal/repository"
	"referral-service/internal/service"

	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const dispatchTimeout = 30 * time.Second

const (
	TypeOrderCompleted        = "order.completed"
	TypeSubscriptionApproved  = "subscription.approved"
	TypeUserRegistered        = "user.registered"
	TypeSubscriptionRequested = "subscription.requested"
	TypeSubscriptionPaid      = "subscription.paid"
)

// OutcomeRecorded is reported for events that change state without paying
// commission.
const OutcomeRecorded commission.Outcome = "recorded"

// CommerceEvent is a storefront message about a member, an order or a prime
// subscription.
type CommerceEvent struct {
	EventID        string          `json:"event_id"`
	Type           string          `json:"type" validate:"required,oneof=order.completed subscription.approved user.registered subscription.requested subscription.paid"`
	OrderID        uint            `json:"order_id" validate:"required_if=Type order.completed"`
	SubscriptionID uint            `json:"subscription_id" validate:"required_if=Type subscription.approved,required_if=Type subscription.paid"`
	UserID         uint            `json:"user_id" validate:"required_if=Type order.completed,required_if=Type user.registered,required_if=Type subscription.requested"`
	Amount         decimal.Decimal `json:"amount"`
	Username       string          `json:"username" validate:"required_if=Type user.registered,max=150"`
	ReferralCode   string          `json:"referral_code" validate:"max=10"`
	AgreedTerms    bool            `json:"agreed_terms"`
	Timestamp      string          `json:"timestamp"`
}

// ParseTimestamp parses the timestamp string to time.Time
func (m *CommerceEvent) ParseTimestamp() (time.Time, error) {
	if m.Timestamp == "" {
		return time.Now(), nil
	}

	formats := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	}
	var err error
	for _, format := range formats {
		var t time.Time
		if t, err = time.Parse(format, m.Timestamp); err == nil {
			return t, nil
		}
	}
	return time.Now(), err
}

type IncomingUpdate struct {
	Payload  CommerceEvent
	Delivery amqp091.Delivery
}

type Dispatcher interface {
	Dispatch(ctx context.Context, ev CommerceEvent) (*commission.Result, error)
}

type OrderCompleter interface {
	Complete(ctx context.Context, order service.OrderCompleted) (*commission.Result, error)
}

type SubscriptionWorkflow interface {
	Request(ctx context.Context, userID uint, agreedTerms bool) (*model.PrimeSubscription, error)
	MarkPaid(ctx context.Context, id uint) (*model.PrimeSubscription, error)
	Approve(ctx context.Context, id uint) (*commission.Result, error)
}

type Registrar interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.Profile, error)
}

// Router sends each event type to its workflow.
type Router struct {
	Orders        OrderCompleter
	Subscriptions SubscriptionWorkflow
	Profiles      Registrar
}

var ErrUnknownType = errors.New("unknown event type")

func (r Router) Dispatch(ctx context.Context, ev CommerceEvent) (*commission.Result, error) {
	switch ev.Type {
	case TypeOrderCompleted:
		return r.Orders.Complete(ctx, service.OrderCompleted{
			OrderID: ev.OrderID,
			UserID:  ev.UserID,
			Total:   ev.Amount,
		})
	case TypeSubscriptionApproved:
		return r.Subscriptions.Approve(ctx, ev.SubscriptionID)
	case TypeSubscriptionRequested:
		if _, err := r.Subscriptions.Request(ctx, ev.UserID, ev.AgreedTerms); err != nil {
			return nil, err
		}
	case TypeSubscriptionPaid:
		if _, err := r.Subscriptions.MarkPaid(ctx, ev.SubscriptionID); err != nil {
			return nil, err
		}
	case TypeUserRegistered:
		if _, err := r.Profiles.Register(ctx, service.RegisterInput{
			UserID:       ev.UserID,
			Username:     ev.Username,
			ReferralCode: ev.ReferralCode,
		}); err != nil {
			return nil, err
		}
	default:
		return nil, ErrUnknownType
	}
	return &commission.Result{Outcome: OutcomeRecorded, EventID: ev.EventID, BuyerID: ev.UserID}, nil
}

// StartPool runs workers that dispatch incoming events until ctx is done or
// updates is closed. Handled events are acked. Failed events are requeued
// once; a redelivered event that fails again is dropped.
func StartPool(
	ctx context.Context,
	updates <-chan IncomingUpdate,
	workers int,
	dispatcher Dispatcher,
	log *logrus.Logger,
) {
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case upd, ok := <-updates:
					if !ok {
						return
					}
					handle(ctx, dispatcher, upd, log.WithField("worker_id", workerID))
				}
			}
		}(i)
	}

	wg.Wait()
	log.Info("processor workers stopped")
}

// handle finishes an event that was already taken even when ctx is cancelled,
// so shutdown never rolls back a distribution halfway through the queue.
func handle(ctx context.Context, dispatcher Dispatcher, upd IncomingUpdate, log *logrus.Entry) {
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()

	ev := upd.Payload
	log = log.WithFields(logrus.Fields{
		"event_id": ev.EventID,
		"type":     ev.Type,
		"user_id":  ev.UserID,
	})
	if ts, err := ev.ParseTimestamp(); err == nil {
		log = log.WithField("lag", time.Since(ts).String())
	}

	res, err := dispatcher.Dispatch(dispatchCtx, ev)
	switch {
	case err == nil:
		metrics.EventsProcessed.WithLabelValues(ev.Type, string(res.Outcome)).Inc()
		if err := upd.Delivery.Ack(false); err != nil {
			log.WithError(err).Warn("failed to ack message")
		}
		log.WithField("outcome", res.Outcome).Debug("event processed")

	case interrupted(ctx, err):
		metrics.EventsProcessed.WithLabelValues(ev.Type, "requeued").Inc()
		log.WithError(err).Warn("event interrupted by shutdown, requeueing message")
		if err := upd.Delivery.Nack(false, true); err != nil {
			log.WithError(err).Warn("failed to nack message")
		}

	case permanent(err) || upd.Delivery.Redelivered:
		metrics.EventsProcessed.WithLabelValues(ev.Type, "dropped").Inc()
		log.WithError(err).Error("event failed, dropping message")
		if err := upd.Delivery.Nack(false, false); err != nil {
			log.WithError(err).Warn("failed to nack message")
		}

	default:
		metrics.EventsProcessed.WithLabelValues(ev.Type, "requeued").Inc()
		log.WithError(err).Warn("event failed, requeueing message")
		if err := upd.Delivery.Nack(false, true); err != nil {
			log.WithError(err).Warn("failed to nack message")
		}
	}
}

// interrupted reports failures caused by shutdown rather than by the event.
// They are always requeued, even on redelivery.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

// permanent errors fail the same way on every retry.
func permanent(err error) bool {
	return errors.Is(err, ErrUnknownType) ||
		errors.Is(err, commission.ErrInvalidAmount) ||
		errors.Is(err, commission.ErrInvalidRate) ||
		errors.Is(err, repository.ErrSubscriptionNotFound) ||
		errors.Is(err, repository.ErrProfileNotFound) ||
		errors.Is(err, service.ErrInvalidProfile) ||
		errors.Is(err, service.ErrTermsNotAgreed) ||
		errors.Is(err, service.ErrAlreadyPrime)
}
