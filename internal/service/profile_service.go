package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"referral-service/internal/model"
	"referral-service/internal/repository"

	"github.com/sirupsen/logrus"
)

var ErrInvalidProfile = errors.New("user id and username are required")

type RegisterInput struct {
	UserID       uint
	Username     string
	ReferralCode string
}

type Wallet struct {
	Profile      *model.Profile            `json:"profile"`
	Transactions []model.WalletTransaction `json:"transactions"`
}

type ProfileService struct {
	store    *repository.Store
	profiles *repository.ProfileRepository
	ledger   *repository.LedgerRepository
	log      *logrus.Logger
}

func NewProfileService(
	store *repository.Store,
	profiles *repository.ProfileRepository,
	ledger *repository.LedgerRepository,
	log *logrus.Logger,
) *ProfileService {
	return &ProfileService{
		store:    store,
		profiles: profiles,
		ledger:   ledger,
		log:      log,
	}
}

// Register creates the profile of a new identity and links the referrer
// named by the code. Registering an identity twice returns the existing
// profile untouched. Codes that resolve to nothing are ignored.
func (s *ProfileService) Register(ctx context.Context, in RegisterInput) (*model.Profile, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.UserID == 0 || in.Username == "" {
		return nil, ErrInvalidProfile
	}

	log := s.log.WithFields(logrus.Fields{
		"user_id":       in.UserID,
		"referral_code": in.ReferralCode,
	})

	existing, err := s.profiles.GetByUserID(ctx, in.UserID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrProfileNotFound) {
		return nil, err
	}

	var profile *model.Profile
	err = s.store.Transaction(ctx, func(tx *repository.Tx) error {
		profile = &model.Profile{UserID: in.UserID, Username: in.Username}
		if err := tx.Profiles.Create(ctx, profile); err != nil {
			return err
		}

		if strings.TrimSpace(in.ReferralCode) == "" {
			return nil
		}

		referrer, err := tx.Profiles.GetByReferralCode(ctx, in.ReferralCode)
		if errors.Is(err, repository.ErrProfileNotFound) {
			log.Warn("unknown referral code, registering without referrer")
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.Profiles.AssignReferrer(ctx, profile, referrer); err != nil {
			return fmt.Errorf("failed to link referrer: %w", err)
		}
		log.WithField("referrer_id", referrer.UserID).Info("referrer linked")
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithField("code", profile.ReferralCode).Info("profile registered")
	return profile, nil
}

// Wallet returns the profile with a page of its ledger, newest first.
func (s *ProfileService) Wallet(ctx context.Context, userID uint, limit, offset int) (*Wallet, error) {
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	txs, err := s.ledger.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	return &Wallet{Profile: profile, Transactions: txs}, nil
}

// Referrals returns the profiles the user referred directly.
func (s *ProfileService) Referrals(ctx context.Context, userID uint) ([]model.Profile, error) {
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.profiles.ListReferrals(ctx, profile.ID)
}
