package model

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type SubscriptionStatus string

const (
	SubscriptionPending  SubscriptionStatus = "pending"
	SubscriptionApproved SubscriptionStatus = "approved"
	SubscriptionRejected SubscriptionStatus = "rejected"
)

// PrimeSubscription is a member's request for the paid prime membership.
// Approval is an administrator decision; payment is only a flag.
type PrimeSubscription struct {
	ID            uint               `gorm:"primarykey" json:"id"`
	CreatedAt     time.Time          `json:"subscribed_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	UserID        uint               `gorm:"uniqueIndex:idx_prime_subscriptions_user_id;not null" json:"user_id"`
	Status        SubscriptionStatus `gorm:"size:10;not null;default:pending" json:"status"`
	AgreedTerms   bool               `gorm:"not null;default:false" json:"agreed_terms"`
	PaymentStatus bool               `gorm:"not null;default:false" json:"payment_status"`
	Amount        decimal.Decimal    `gorm:"type:decimal(12,2);not null" json:"amount"`
	// Cycle counts the requests filed again after a rejection. Each cycle is
	// a separate purchase of the membership.
	Cycle         uint               `gorm:"not null;default:1" json:"cycle"`
}

// TableName specifies the table name
func (PrimeSubscription) TableName() string {
	return "prime_subscriptions"
}

// EventID identifies the commission event raised by approving the current
// cycle. The first cycle keeps the plain "subscription:{id}" form.
func (s *PrimeSubscription) EventID() string {
	id := "subscription:" + strconv.FormatUint(uint64(s.ID), 10)
	if s.Cycle <= 1 {
		return id
	}
	return id + ":" + strconv.FormatUint(uint64(s.Cycle), 10)
}
