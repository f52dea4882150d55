package repository

import (
	"context"
	"errors"

	"referral-service/internal/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrInvalidEntry = errors.New("ledger entry amount must be positive")

type LedgerRepository struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewLedgerRepository(db *gorm.DB, log *logrus.Logger) *LedgerRepository {
	return &LedgerRepository{
		db:  db,
		log: log,
	}
}

// Append records a wallet transaction and returns its id.
func (r *LedgerRepository) Append(ctx context.Context, entry *model.WalletTransaction) (uint, error) {
	if !entry.Amount.IsPositive() {
		return 0, ErrInvalidEntry
	}
	if entry.Type == "" {
		entry.Type = model.TransactionCredit
	}

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return 0, err
	}
	return entry.ID, nil
}

// ListByUser returns a user's transactions, newest first.
func (r *LedgerRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]model.WalletTransaction, error) {
	var entries []model.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error

	return entries, err
}

// BalanceOf sums a user's ledger. The sum is taken in decimal rather than in
// SQL so the result does not depend on the column's storage class.
func (r *LedgerRepository) BalanceOf(ctx context.Context, userID uint) (decimal.Decimal, error) {
	balances, err := r.BalancesOf(ctx, []uint{userID})
	if err != nil {
		return decimal.Zero, err
	}
	return balances[userID], nil
}

// BalancesOf sums the ledgers of several users. Users without entries map
// to zero.
func (r *LedgerRepository) BalancesOf(ctx context.Context, userIDs []uint) (map[uint]decimal.Decimal, error) {
	balances := make(map[uint]decimal.Decimal, len(userIDs))
	if len(userIDs) == 0 {
		return balances, nil
	}
	for _, id := range userIDs {
		balances[id] = decimal.Zero
	}

	var entries []model.WalletTransaction
	err := r.db.WithContext(ctx).
		Select("user_id", "amount", "type").
		Where("user_id IN ?", userIDs).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		balances[e.UserID] = balances[e.UserID].Add(e.Signed())
	}
	return balances, nil
}
