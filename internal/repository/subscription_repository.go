package repository

import (
	"context"
	"errors"

	"referral-service/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

type SubscriptionRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewSubscriptionRepository(db *gorm.DB, log *logrus.Logger) *SubscriptionRepository {
	return &SubscriptionRepository{
		db:  db,
		log: log,
	}
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *model.PrimeSubscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

// Save writes every field of an existing subscription.
func (r *SubscriptionRepository) Save(ctx context.Context, sub *model.PrimeSubscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id uint) (*model.PrimeSubscription, error) {
	var sub model.PrimeSubscription
	err := r.db.WithContext(ctx).First(&sub, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) GetByUserID(ctx context.Context, userID uint) (*model.PrimeSubscription, error) {
	var sub model.PrimeSubscription
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListByStatus returns subscriptions with the given status, newest first.
func (r *SubscriptionRepository) ListByStatus(ctx context.Context, status model.SubscriptionStatus) ([]model.PrimeSubscription, error) {
	var list []model.PrimeSubscription
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC, id DESC").
		Find(&list).Error

	return list, err
}
