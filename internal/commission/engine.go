package commission

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"referral-service/internal/metrics"
	"referral-service/internal/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	rewardTitle = "Referral Reward Earned"
)

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

type Options struct {
	// BaseRate is the level 1 commission in percent. Each further level
	// earns half of the previous one.
	BaseRate decimal.Decimal
	// FloorRate stops the walk once the level rate drops below it.
	FloorRate decimal.Decimal
	// MaxLevels caps the walk regardless of rates; 0 disables the cap.
	MaxLevels int
	Currency  string
}

func DefaultOptions() Options {
	return Options{
		BaseRate:  decimal.NewFromInt(10),
		FloorRate: decimal.NewFromInt(1),
		MaxLevels: 16,
		Currency:  "INR",
	}
}

// Engine distributes referral commission up a buyer's referral chain.
type Engine struct {
	uow      UnitOfWork
	notifier Notifier
	opts     Options
	log      *logrus.Logger
}

// New validates the configured rates and builds an engine. Rates are never
// defaulted: a zero base or floor rate is rejected with ErrInvalidRate.
func New(uow UnitOfWork, notifier Notifier, log *logrus.Logger, opts Options) (*Engine, error) {
	if !opts.BaseRate.IsPositive() || !opts.FloorRate.IsPositive() {
		return nil, fmt.Errorf("%w: base %s floor %s", ErrInvalidRate, opts.BaseRate, opts.FloorRate)
	}
	if opts.MaxLevels < 0 {
		return nil, fmt.Errorf("max levels must not be negative: %d", opts.MaxLevels)
	}
	if opts.Currency == "" {
		opts.Currency = DefaultOptions().Currency
	}

	return &Engine{
		uow:      uow,
		notifier: notifier,
		opts:     opts,
		log:      log,
	}, nil
}

// Amount returns the commission for one level: amount * rate / 100 rounded
// half-up to two decimal places.
func Amount(purchase, rate decimal.Decimal) decimal.Decimal {
	return purchase.Mul(rate).Div(hundred).Round(2)
}

// Distribute credits every eligible upline of the buyer inside one
// transaction. A buyer without a profile, a buyer without a referrer and
// an already distributed event are reported through Result.Outcome with a
// nil error. Any failure to credit a wallet or record its ledger entry
// rolls back the whole walk and is returned.
//
// Distribute is not idempotent for events without an ID.
func (e *Engine) Distribute(ctx context.Context, ev Event) (*Result, error) {
	base, floor := e.rates(ev)
	if ev.Amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	// A zero base rate is below any floor, so nothing is paid.
	if base.IsNegative() || !floor.IsPositive() {
		return nil, ErrInvalidRate
	}

	log := e.log.WithFields(logrus.Fields{
		"buyer_id": ev.BuyerID,
		"amount":   ev.Amount.StringFixed(2),
		"event_id": ev.ID,
	})

	res := &Result{EventID: ev.ID, BuyerID: ev.BuyerID}

	err := e.uow.Within(ctx, func(s Scope) error {
		res.Outcome = ""
		res.Credits = nil

		buyer, err := s.Registry.GetByUserID(ctx, ev.BuyerID)
		if errors.Is(err, ErrProfileNotFound) {
			res.Outcome = OutcomeNoProfile
			return nil
		}
		if err != nil {
			return fmt.Errorf("resolve buyer %d: %w", ev.BuyerID, err)
		}
		res.BuyerName = buyer.Username

		if ev.ID != "" {
			claimed, err := s.Events.Claim(ctx, &model.CommissionEvent{
				EventID: ev.ID,
				BuyerID: ev.BuyerID,
				Amount:  ev.Amount.Round(2),
			})
			if err != nil {
				return fmt.Errorf("claim event %s: %w", ev.ID, err)
			}
			if !claimed {
				res.Outcome = OutcomeDuplicate
				return nil
			}
		}

		referrer, err := s.Registry.GetReferrer(ctx, buyer)
		if err != nil {
			return fmt.Errorf("%w: resolve referrer of profile %d: %w", ErrWalletUpdate, buyer.ID, err)
		}
		if referrer == nil {
			res.Outcome = OutcomeNoReferrer
			return nil
		}

		credits, err := e.walk(ctx, s, buyer, referrer, ev, base, floor, log)
		if err != nil {
			return err
		}

		res.Credits = credits
		res.Outcome = OutcomeDistributed
		return nil
	})
	if err != nil {
		metrics.Failures.WithLabelValues(failureReason(err)).Inc()
		log.WithError(err).Error("commission distribution rolled back")
		return nil, err
	}

	metrics.Distributions.WithLabelValues(string(res.Outcome)).Inc()
	switch res.Outcome {
	case OutcomeNoProfile:
		log.Warn("buyer has no profile, skipping commission")
		return res, nil
	case OutcomeDuplicate:
		log.Info("commission event already distributed, skipping")
		return res, nil
	}

	for _, c := range res.Credits {
		metrics.Credits.WithLabelValues(strconv.Itoa(c.Level)).Inc()
		metrics.CommissionPaid.Add(c.Amount.InexactFloat64())
	}

	res.NotifyFailures = e.notifyCredits(ctx, res.Credits, res.BuyerName, log)

	log.WithFields(logrus.Fields{
		"levels": len(res.Credits),
		"total":  res.Total().StringFixed(2),
	}).Info("commission distribution completed")

	return res, nil
}

func (e *Engine) walk(
	ctx context.Context,
	s Scope,
	buyer, referrer *model.Profile,
	ev Event,
	base, floor decimal.Decimal,
	log *logrus.Entry,
) ([]Credit, error) {
	var credits []Credit
	visited := map[uint]struct{}{buyer.ID: {}}
	rate := base

	for level := 1; referrer != nil && rate.GreaterThanOrEqual(floor); level++ {
		if e.opts.MaxLevels > 0 && level > e.opts.MaxLevels {
			log.WithField("max_levels", e.opts.MaxLevels).Warn("referral chain exceeds level cap, stopping")
			break
		}
		if _, seen := visited[referrer.ID]; seen {
			log.WithField("profile_id", referrer.ID).Error("referral cycle detected, stopping")
			break
		}
		visited[referrer.ID] = struct{}{}

		amount := Amount(ev.Amount, rate)
		if amount.IsPositive() {
			balance, err := s.Registry.CreditWallet(ctx, referrer, amount)
			if err != nil {
				return nil, fmt.Errorf("%w: level %d profile %d: %w", ErrWalletUpdate, level, referrer.ID, err)
			}

			entry := &model.WalletTransaction{
				UserID:      referrer.UserID,
				Amount:      amount,
				Type:        model.TransactionCredit,
				Description: fmt.Sprintf("Referral Level %d: %s%% from %s", level, formatRate(rate), buyer.Username),
				EventID:     ev.ID,
			}
			txID, err := s.Ledger.Append(ctx, entry)
			if err != nil {
				return nil, fmt.Errorf("%w: level %d profile %d: %w", ErrLedgerAppend, level, referrer.ID, err)
			}

			credits = append(credits, Credit{
				Level:         level,
				ProfileID:     referrer.ID,
				UserID:        referrer.UserID,
				Username:      referrer.Username,
				Rate:          rate,
				Amount:        amount,
				Balance:       balance,
				TransactionID: txID,
			})

			log.WithFields(logrus.Fields{
				"level":   level,
				"user_id": referrer.UserID,
				"rate":    rate.String(),
				"credit":  amount.StringFixed(2),
			}).Debug("credited upline wallet")
		}

		next, err := s.Registry.GetReferrer(ctx, referrer)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve referrer of profile %d: %w", ErrWalletUpdate, referrer.ID, err)
		}
		referrer = next
		rate = rate.Div(two)
	}

	return credits, nil
}

// notifyCredits runs after commit. Delivery problems are logged and counted
// but never change the outcome of the distribution.
func (e *Engine) notifyCredits(ctx context.Context, credits []Credit, buyer string, log *logrus.Entry) int {
	if e.notifier == nil {
		return 0
	}

	failures := 0
	for _, c := range credits {
		msg := fmt.Sprintf("You earned %s %s (%s%% from %s's purchase).",
			c.Amount.StringFixed(2), e.opts.Currency, formatRate(c.Rate), buyer)

		if err := e.notifier.Notify(ctx, c.UserID, rewardTitle, msg); err != nil {
			failures++
			metrics.NotificationFailures.Inc()
			log.WithError(err).WithField("user_id", c.UserID).Warn("reward notification skipped")
		}
	}
	return failures
}

func (e *Engine) rates(ev Event) (decimal.Decimal, decimal.Decimal) {
	base, floor := e.opts.BaseRate, e.opts.FloorRate
	if ev.BaseRate != nil {
		base = *ev.BaseRate
	}
	if ev.FloorRate != nil {
		floor = *ev.FloorRate
	}
	return base, floor
}

// formatRate renders a level rate in its shortest exact form: 10, 5, 2.5,
// 1.25. Halving a terminating decimal stays terminating, so no precision is
// lost in the ledger description.
func formatRate(rate decimal.Decimal) string {
	return rate.String()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrWalletUpdate):
		return "wallet_update"
	case errors.Is(err, ErrLedgerAppend):
		return "ledger_append"
	default:
		return "other"
	}
}
