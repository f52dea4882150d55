package commission

import (
	"context"

	"referral-service/internal/model"

	"github.com/shopspring/decimal"
)

// Event is one qualifying purchase. ID is optional; when set, the event is
// distributed at most once.
type Event struct {
	ID        string
	BuyerID   uint
	Amount    decimal.Decimal
	BaseRate  *decimal.Decimal // percent, nil means the engine default
	FloorRate *decimal.Decimal // percent, nil means the engine default
}

// Registry resolves profiles and credits wallets. CreditWallet must be an
// atomic read-modify-write scoped to the single profile it credits.
type Registry interface {
	GetByUserID(ctx context.Context, userID uint) (*model.Profile, error)
	GetReferrer(ctx context.Context, profile *model.Profile) (*model.Profile, error)
	CreditWallet(ctx context.Context, profile *model.Profile, amount decimal.Decimal) (decimal.Decimal, error)
}

// Ledger is the append-only wallet transaction log.
type Ledger interface {
	Append(ctx context.Context, entry *model.WalletTransaction) (uint, error)
}

// EventLog remembers distributed events. Claim reports false when the
// event was already claimed.
type EventLog interface {
	Claim(ctx context.Context, event *model.CommissionEvent) (bool, error)
}

// Scope groups collaborators bound to one transaction.
type Scope struct {
	Registry Registry
	Ledger   Ledger
	Events   EventLog
}

// UnitOfWork runs fn inside a single all-or-nothing transaction. A non-nil
// error from fn rolls back every write made through the scope.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(s Scope) error) error
}

// Notifier delivers a message to a user. Errors are reported to the engine,
// which logs and drops them.
type Notifier interface {
	Notify(ctx context.Context, userID uint, title, message string) error
}
