package service

import (
	"context"
	"strconv"

	"referral-service/internal/commission"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// OutcomeSkipped marks orders that never reached the engine.
const OutcomeSkipped commission.Outcome = "skipped"

type Distributor interface {
	Distribute(ctx context.Context, ev commission.Event) (*commission.Result, error)
}

type OrderCompleted struct {
	OrderID uint
	UserID  uint
	Total   decimal.Decimal
}

type OrderService struct {
	engine Distributor
	log    *logrus.Logger
}

func NewOrderService(engine Distributor, log *logrus.Logger) *OrderService {
	return &OrderService{
		engine: engine,
		log:    log,
	}
}

// Complete pays referral commission for a completed order. Each order is
// paid at most once, so a failed call may be retried.
func (s *OrderService) Complete(ctx context.Context, order OrderCompleted) (*commission.Result, error) {
	eventID := OrderEventID(order.OrderID)

	if order.UserID == 0 || !order.Total.IsPositive() {
		s.log.WithFields(logrus.Fields{
			"order_id": order.OrderID,
			"user_id":  order.UserID,
			"total":    order.Total.String(),
		}).Info("order does not qualify for commission")
		return &commission.Result{Outcome: OutcomeSkipped, EventID: eventID, BuyerID: order.UserID}, nil
	}

	return s.engine.Distribute(ctx, commission.Event{
		ID:      eventID,
		BuyerID: order.UserID,
		Amount:  order.Total,
	})
}

func OrderEventID(orderID uint) string {
	return "order:" + strconv.FormatUint(uint64(orderID), 10)
}
