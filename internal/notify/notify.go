// Package notify delivers user notifications to the in-app inbox and to the
// message broker.
package notify

import (
	"context"
	"errors"

	"referral-service/internal/commission"
	"referral-service/internal/model"

	"github.com/sirupsen/logrus"
)

type NotificationWriter interface {
	Create(ctx context.Context, n *model.Notification) error
}

// Store saves notifications to the user's inbox.
type Store struct {
	repo NotificationWriter
	log  *logrus.Logger
}

func NewStore(repo NotificationWriter, log *logrus.Logger) *Store {
	return &Store{
		repo: repo,
		log:  log,
	}
}

func (s *Store) Notify(ctx context.Context, userID uint, title, message string) error {
	err := s.repo.Create(ctx, &model.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"title":   title,
	}).Debug("notification stored")
	return nil
}

// Fanout delivers to every sink, even when an earlier one fails.
type Fanout []commission.Notifier

func (f Fanout) Notify(ctx context.Context, userID uint, title, message string) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, userID, title, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
