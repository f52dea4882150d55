package repository

import (
	"context"

	"referral-service/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EventRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewEventRepository(db *gorm.DB, log *logrus.Logger) *EventRepository {
	return &EventRepository{
		db:  db,
		log: log,
	}
}

// Claim records a commission event. It reports false when an event with the
// same event_id was recorded before.
func (r *EventRepository) Claim(ctx context.Context, event *model.CommissionEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected == 1, nil
}

// EventExists checks if an event with given event_id already exists
func (r *EventRepository) EventExists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.CommissionEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error

	return count > 0, err
}
