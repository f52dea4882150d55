package service

import (
	"context"
	"errors"
	"fmt"

	"referral-service/internal/commission"
	"referral-service/internal/metrics"
	"referral-service/internal/model"
	"referral-service/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	approvedTitle   = "Prime Subscription Approved"
	approvedMessage = "Your Prime membership is now active! Enjoy exclusive benefits!"
	rejectedTitle   = "Prime Subscription Rejected"
	rejectedMessage = "Your Prime subscription request has been rejected by the admin."
)

var (
	ErrTermsNotAgreed = errors.New("terms and conditions must be agreed")
	ErrAlreadyPrime   = errors.New("user is already a prime member")
)

type SubscriptionService struct {
	store         *repository.Store
	subscriptions *repository.SubscriptionRepository
	engine        Distributor
	notifier      commission.Notifier
	price         decimal.Decimal
	log           *logrus.Logger
}

func NewSubscriptionService(
	store *repository.Store,
	subscriptions *repository.SubscriptionRepository,
	engine Distributor,
	notifier commission.Notifier,
	price decimal.Decimal,
	log *logrus.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		store:         store,
		subscriptions: subscriptions,
		engine:        engine,
		notifier:      notifier,
		price:         price,
		log:           log,
	}
}

// Request files a prime membership request, or resets an earlier one that
// was not approved back to pending. Filing again after a rejection starts a
// new cycle, which is paid commission on its own approval.
func (s *SubscriptionService) Request(ctx context.Context, userID uint, agreedTerms bool) (*model.PrimeSubscription, error) {
	if !agreedTerms {
		return nil, ErrTermsNotAgreed
	}

	sub, err := s.subscriptions.GetByUserID(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrSubscriptionNotFound):
		sub = &model.PrimeSubscription{
			UserID:      userID,
			Status:      model.SubscriptionPending,
			AgreedTerms: true,
			Amount:      s.price,
			Cycle:       1,
		}
		if err := s.subscriptions.Create(ctx, sub); err != nil {
			return nil, fmt.Errorf("failed to create subscription: %w", err)
		}
	case err != nil:
		return nil, err
	case sub.Status == model.SubscriptionApproved:
		return nil, ErrAlreadyPrime
	default:
		if sub.Status == model.SubscriptionRejected {
			sub.Cycle++
		}
		sub.Status = model.SubscriptionPending
		sub.AgreedTerms = true
		sub.PaymentStatus = false
		sub.Amount = s.price
		if err := s.subscriptions.Save(ctx, sub); err != nil {
			return nil, err
		}
	}

	s.log.WithFields(logrus.Fields{
		"user_id":         userID,
		"subscription_id": sub.ID,
	}).Info("prime subscription requested")
	return sub, nil
}

// MarkPaid records the payment flag. No payment is taken here.
func (s *SubscriptionService) MarkPaid(ctx context.Context, id uint) (*model.PrimeSubscription, error) {
	sub, err := s.subscriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == model.SubscriptionApproved {
		return nil, ErrAlreadyPrime
	}

	sub.PaymentStatus = true
	sub.Status = model.SubscriptionPending
	if err := s.subscriptions.Save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Approve activates prime membership and pays referral commission on the
// subscription price. Approving again retries a failed payout without
// paying twice, and the member is only told about the first approval.
func (s *SubscriptionService) Approve(ctx context.Context, id uint) (*commission.Result, error) {
	var (
		sub             *model.PrimeSubscription
		alreadyApproved bool
	)
	err := s.store.Transaction(ctx, func(tx *repository.Tx) error {
		var err error
		sub, err = tx.Subscriptions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		alreadyApproved = sub.Status == model.SubscriptionApproved

		sub.Status = model.SubscriptionApproved
		if err := tx.Subscriptions.Save(ctx, sub); err != nil {
			return err
		}
		return tx.Profiles.SetPrime(ctx, sub.UserID, true)
	})
	if err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		"user_id":         sub.UserID,
		"subscription_id": sub.ID,
	})
	if alreadyApproved {
		log.Info("prime subscription approval repeated, retrying payout")
	} else {
		log.Info("prime subscription approved")
		s.notify(ctx, sub.UserID, approvedTitle, approvedMessage, log)
	}

	return s.engine.Distribute(ctx, commission.Event{
		ID:      sub.EventID(),
		BuyerID: sub.UserID,
		Amount:  sub.Amount,
	})
}

// Reject declines the request and revokes prime membership.
func (s *SubscriptionService) Reject(ctx context.Context, id uint) (*model.PrimeSubscription, error) {
	var sub *model.PrimeSubscription
	err := s.store.Transaction(ctx, func(tx *repository.Tx) error {
		var err error
		sub, err = tx.Subscriptions.GetByID(ctx, id)
		if err != nil {
			return err
		}

		sub.Status = model.SubscriptionRejected
		if err := tx.Subscriptions.Save(ctx, sub); err != nil {
			return err
		}

		err = tx.Profiles.SetPrime(ctx, sub.UserID, false)
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		"user_id":         sub.UserID,
		"subscription_id": sub.ID,
	})
	log.Info("prime subscription rejected")
	s.notify(ctx, sub.UserID, rejectedTitle, rejectedMessage, log)

	return sub, nil
}

func (s *SubscriptionService) Get(ctx context.Context, id uint) (*model.PrimeSubscription, error) {
	return s.subscriptions.GetByID(ctx, id)
}

// ListByStatus returns the subscriptions awaiting or past review.
func (s *SubscriptionService) ListByStatus(ctx context.Context, status model.SubscriptionStatus) ([]model.PrimeSubscription, error) {
	return s.subscriptions.ListByStatus(ctx, status)
}

func (s *SubscriptionService) GetByUser(ctx context.Context, userID uint) (*model.PrimeSubscription, error) {
	return s.subscriptions.GetByUserID(ctx, userID)
}

func (s *SubscriptionService) notify(ctx context.Context, userID uint, title, message string, log *logrus.Entry) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, title, message); err != nil {
		metrics.NotificationFailures.Inc()
		log.WithError(err).Warn("subscription notification skipped")
	}
}
