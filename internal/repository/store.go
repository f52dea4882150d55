package repository

import (
	"context"

	"referral-service/internal/commission"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Store opens transactions that span several repositories.
type Store struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewStore(db *gorm.DB, log *logrus.Logger) *Store {
	return &Store{
		db:  db,
		log: log,
	}
}

// Tx groups repositories bound to one transaction.
type Tx struct {
	Profiles      *ProfileRepository
	Ledger        *LedgerRepository
	Events        *EventRepository
	Subscriptions *SubscriptionRepository
	Notifications *NotificationRepository
}

// Transaction runs fn in one database transaction. Returning an error rolls
// every write back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&Tx{
			Profiles:      NewProfileRepository(db, s.log),
			Ledger:        NewLedgerRepository(db, s.log),
			Events:        NewEventRepository(db, s.log),
			Subscriptions: NewSubscriptionRepository(db, s.log),
			Notifications: NewNotificationRepository(db, s.log),
		})
	})
}

// Within implements commission.UnitOfWork.
func (s *Store) Within(ctx context.Context, fn func(commission.Scope) error) error {
	return s.Transaction(ctx, func(tx *Tx) error {
		return fn(commission.Scope{
			Registry: tx.Profiles,
			Ledger:   tx.Ledger,
			Events:   tx.Events,
		})
	})
}
