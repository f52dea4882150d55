package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Profile carries the referral and wallet state of one identity.
// ReferredByID points at the direct upline; the relation must stay acyclic.
type Profile struct {
	ID            uint            `gorm:"primarykey" json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	UserID        uint            `gorm:"uniqueIndex:idx_profiles_user_id;not null" json:"user_id"`
	Username      string          `gorm:"size:150;not null" json:"username"`
	WalletBalance decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"wallet_balance"`
	ReferredByID  *uint           `gorm:"index:idx_profiles_referred_by" json:"referred_by_id,omitempty"`
	ReferralCode  string          `gorm:"uniqueIndex:idx_profiles_referral_code;size:10;not null" json:"referral_code"`
	IsPrime       bool            `gorm:"not null;default:false" json:"is_prime"`
}

// TableName specifies the table name
func (Profile) TableName() string {
	return "profiles"
}

// HasReferrer reports whether the profile has a direct upline.
func (p *Profile) HasReferrer() bool {
	return p.ReferredByID != nil && *p.ReferredByID != 0
}
