package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrLedgerImmutable = errors.New("wallet transactions are append-only")

type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// WalletTransaction is one immutable ledger entry. Amount is always positive;
// Type carries the direction.
type WalletTransaction struct {
	ID          uint            `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time       `gorm:"index:idx_wallet_tx_user_created,priority:2" json:"created_at"`
	UserID      uint            `gorm:"index:idx_wallet_tx_user_created,priority:1;not null" json:"user_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Type        TransactionType `gorm:"size:10;not null" json:"transaction_type"`
	Description string          `gorm:"type:text" json:"description"`
	EventID     string          `gorm:"index:idx_wallet_tx_event_id;size:255" json:"event_id,omitempty"`
}

// TableName specifies the table name
func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}

// Signed returns the amount with the sign of its direction.
func (t WalletTransaction) Signed() decimal.Decimal {
	if t.Type == TransactionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

func (t *WalletTransaction) BeforeUpdate(*gorm.DB) error {
	return ErrLedgerImmutable
}

func (t *WalletTransaction) BeforeDelete(*gorm.DB) error {
	return ErrLedgerImmutable
}
