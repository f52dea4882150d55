// Package reconcile checks that every wallet balance equals the sum of its
// ledger entries.
package reconcile

import (
	"context"
	"time"

	"referral-service/internal/metrics"
	"referral-service/internal/model"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const passTimeout = 30 * time.Second

type Profiles interface {
	Count(ctx context.Context) (int64, error)
	ListPage(ctx context.Context, limit, offset int) ([]model.Profile, error)
}

type Ledger interface {
	BalancesOf(ctx context.Context, userIDs []uint) (map[uint]decimal.Decimal, error)
}

type Mismatch struct {
	UserID uint            `json:"user_id"`
	Wallet decimal.Decimal `json:"wallet"`
	Ledger decimal.Decimal `json:"ledger"`
}

type Report struct {
	Checked    int64      `json:"checked"`
	Mismatches []Mismatch `json:"mismatches"`
}

// Run reconciles once at start and then every interval until ctx is done.
func Run(
	ctx context.Context,
	profiles Profiles,
	ledger Ledger,
	batchSize int,
	interval time.Duration,
	log *logrus.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runPass(ctx, profiles, ledger, batchSize, log)

	for {
		select {
		case <-ctx.Done():
			log.Info("stopping wallet reconciler")
			return
		case <-ticker.C:
			runPass(ctx, profiles, ledger, batchSize, log)
		}
	}
}

func runPass(ctx context.Context, profiles Profiles, ledger Ledger, batchSize int, log *logrus.Logger) {
	ctx, cancel := context.WithTimeout(ctx, passTimeout)
	defer cancel()

	if _, err := Pass(ctx, profiles, ledger, batchSize, log); err != nil {
		log.WithError(err).Error("wallet reconciliation failed")
	}
}

// Pass pages through every profile and compares its wallet balance with its
// ledger. The mismatch gauge is updated when the pass completes.
func Pass(ctx context.Context, profiles Profiles, ledger Ledger, batchSize int, log *logrus.Logger) (*Report, error) {
	total, err := profiles.Count(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	if total == 0 {
		metrics.ReconcileMismatches.Set(0)
		log.Debug("no wallets to reconcile")
		return report, nil
	}

	log.WithField("total", total).Debug("starting wallet reconciliation")

	offset := 0
	for {
		page, err := profiles.ListPage(ctx, batchSize, offset)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		ids := make([]uint, 0, len(page))
		for _, p := range page {
			ids = append(ids, p.UserID)
		}

		sums, err := ledger.BalancesOf(ctx, ids)
		if err != nil {
			return nil, err
		}

		for _, p := range page {
			report.Checked++
			sum := sums[p.UserID]
			if p.WalletBalance.Round(2).Equal(sum.Round(2)) {
				continue
			}

			report.Mismatches = append(report.Mismatches, Mismatch{
				UserID: p.UserID,
				Wallet: p.WalletBalance,
				Ledger: sum,
			})
			log.WithFields(logrus.Fields{
				"user_id": p.UserID,
				"wallet":  p.WalletBalance.StringFixed(2),
				"ledger":  sum.StringFixed(2),
			}).Error("wallet balance disagrees with ledger")
		}

		offset += len(page)
		if len(page) < batchSize {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	metrics.ReconcileMismatches.Set(float64(len(report.Mismatches)))
	log.WithFields(logrus.Fields{
		"checked":    report.Checked,
		"mismatches": len(report.Mismatches),
	}).Info("wallet reconciliation completed")

	return report, nil
}
