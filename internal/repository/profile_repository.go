package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"referral-service/internal/commission"
	"referral-service/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	referralCodeLength   = 8
	referralCodeAttempts = 5
)

var (
	ErrProfileNotFound = commission.ErrProfileNotFound

	ErrSelfReferral       = errors.New("a profile cannot refer itself")
	ErrReferrerAlreadySet = errors.New("referrer is already set")
	ErrReferralCycle      = errors.New("referral would create a cycle")
	ErrInvalidCredit      = errors.New("credit amount must be positive")
	ErrCodeExhausted      = errors.New("could not generate a unique referral code")
)

type ProfileRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewProfileRepository(db *gorm.DB, log *logrus.Logger) *ProfileRepository {
	return &ProfileRepository{
		db:  db,
		log: log,
	}
}

// GetByUserID returns the profile of an identity or ErrProfileNotFound.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID uint) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *ProfileRepository) GetByID(ctx context.Context, id uint) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.WithContext(ctx).First(&profile, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetByReferralCode looks a code up ignoring case and surrounding spaces.
func (r *ProfileRepository) GetByReferralCode(ctx context.Context, code string) (*model.Profile, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, ErrProfileNotFound
	}

	var profile model.Profile
	err := r.db.WithContext(ctx).Where("referral_code = ?", code).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetReferrer returns the direct upline of profile, or nil when it has none.
// A link to a profile that no longer exists is treated as no referrer.
func (r *ProfileRepository) GetReferrer(ctx context.Context, profile *model.Profile) (*model.Profile, error) {
	if !profile.HasReferrer() {
		return nil, nil
	}

	referrer, err := r.GetByID(ctx, *profile.ReferredByID)
	if errors.Is(err, ErrProfileNotFound) {
		r.log.WithFields(logrus.Fields{
			"profile_id":     profile.ID,
			"referred_by_id": *profile.ReferredByID,
		}).Warn("referrer profile is missing")
		return nil, nil
	}
	return referrer, err
}

// CreditWallet adds amount to the profile's balance under a row lock and
// returns the new balance. The caller's struct is refreshed.
func (r *ProfileRepository) CreditWallet(ctx context.Context, profile *model.Profile, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidCredit
	}

	var balance decimal.Decimal
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked model.Profile
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, profile.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProfileNotFound
		}
		if err != nil {
			return err
		}

		balance = locked.WalletBalance.Add(amount).Round(2)
		res := tx.Model(&model.Profile{}).
			Where("id = ?", locked.ID).
			Update("wallet_balance", balance)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("wallet of profile %d not updated", locked.ID)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	profile.WalletBalance = balance
	return balance, nil
}

// Create inserts a profile. A referral code is generated when none is set.
func (r *ProfileRepository) Create(ctx context.Context, profile *model.Profile) error {
	profile.ReferralCode = normalizeCode(profile.ReferralCode)
	if profile.ReferralCode == "" {
		code, err := r.uniqueCode(ctx)
		if err != nil {
			return err
		}
		profile.ReferralCode = code
	}

	if err := r.db.WithContext(ctx).Create(profile).Error; err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (r *ProfileRepository) uniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		code := strings.ToUpper(uuid.NewString()[:referralCodeLength])

		var count int64
		err := r.db.WithContext(ctx).
			Model(&model.Profile{}).
			Where("referral_code = ?", code).
			Count(&count).Error
		if err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}

		r.log.WithField("attempt", attempt+1).Debug("referral code collision, regenerating")
	}
	return "", ErrCodeExhausted
}

// AssignReferrer links profile to its upline once. The link is refused when
// the referrer is the profile itself or already sits below it.
func (r *ProfileRepository) AssignReferrer(ctx context.Context, profile, referrer *model.Profile) error {
	if profile.ID == referrer.ID {
		return ErrSelfReferral
	}
	if profile.HasReferrer() {
		return ErrReferrerAlreadySet
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := &ProfileRepository{db: tx, log: r.log}

		visited := map[uint]struct{}{}
		for cur := referrer; cur != nil; {
			if cur.ID == profile.ID {
				return ErrReferralCycle
			}
			if _, seen := visited[cur.ID]; seen {
				return ErrReferralCycle
			}
			visited[cur.ID] = struct{}{}

			next, err := repo.GetReferrer(ctx, cur)
			if err != nil {
				return err
			}
			cur = next
		}

		res := tx.Model(&model.Profile{}).
			Where("id = ? AND referred_by_id IS NULL", profile.ID).
			Update("referred_by_id", referrer.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrReferrerAlreadySet
		}

		id := referrer.ID
		profile.ReferredByID = &id
		return nil
	})
}

// ListReferrals returns the direct downline of a profile.
func (r *ProfileRepository) ListReferrals(ctx context.Context, profileID uint) ([]model.Profile, error) {
	var profiles []model.Profile
	err := r.db.WithContext(ctx).
		Where("referred_by_id = ?", profileID).
		Order("id").
		Find(&profiles).Error

	return profiles, err
}

func (r *ProfileRepository) SetPrime(ctx context.Context, userID uint, prime bool) error {
	res := r.db.WithContext(ctx).
		Model(&model.Profile{}).
		Where("user_id = ?", userID).
		Update("is_prime", prime)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// ListPage pages through all profiles in id order.
func (r *ProfileRepository) ListPage(ctx context.Context, limit, offset int) ([]model.Profile, error) {
	var profiles []model.Profile
	err := r.db.WithContext(ctx).
		Select("id", "user_id", "username", "wallet_balance").
		Order("id").
		Limit(limit).
		Offset(offset).
		Find(&profiles).Error

	return profiles, err
}

func (r *ProfileRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Profile{}).Count(&count).Error
	return count, err
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
