package service

import (
	"context"
	"errors"
	"testing"

	"referral-service/internal/commission"
	"referral-service/internal/dbtest"
	"referral-service/internal/model"
	"referral-service/internal/notify"
	"referral-service/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type env struct {
	profiles      *ProfileService
	orders        *OrderService
	subscriptions *SubscriptionService
	notifications *repository.NotificationRepository
	profileRepo   *repository.ProfileRepository
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := dbtest.New(t)
	log := dbtest.Logger()
	store := repository.NewStore(db, log)
	profileRepo := repository.NewProfileRepository(db, log)
	notifications := repository.NewNotificationRepository(db, log)
	inbox := notify.NewStore(notifications, log)
	engine, err := commission.New(store, inbox, log, commission.DefaultOptions())
	require.NoError(t, err)

	return &env{
		profiles:      NewProfileService(store, profileRepo, repository.NewLedgerRepository(db, log), log),
		orders:        NewOrderService(engine, log),
		subscriptions: NewSubscriptionService(store, repository.NewSubscriptionRepository(db, log), engine, inbox, decimal.RequireFromString("999.00"), log),
		notifications: notifications,
		profileRepo:   profileRepo,
	}
}

func (e *env) register(t *testing.T, userID uint, name, code string) *model.Profile {
	t.Helper()
	p, err := e.profiles.Register(context.Background(), RegisterInput{UserID: userID, Username: name, ReferralCode: code})
	require.NoError(t, err)
	return p
}

func TestRegisterLinksReferrer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	alice := e.register(t, 1, "alice", "")
	bob := e.register(t, 2, "bob", " "+alice.ReferralCode+" ")
	require.NotNil(t, bob.ReferredByID)
	require.Equal(t, alice.ID, *bob.ReferredByID)

	again := e.register(t, 2, "bob", "")
	require.Equal(t, bob.ID, again.ID)
	require.Equal(t, bob.ReferralCode, again.ReferralCode)

	carol := e.register(t, 3, "carol", "UNKNOWN")
	require.Nil(t, carol.ReferredByID)

	downline, err := e.profiles.Referrals(ctx, 1)
	require.NoError(t, err)
	require.Len(t, downline, 1)
	require.Equal(t, "bob", downline[0].Username)

	_, err = e.profiles.Register(ctx, RegisterInput{UserID: 4})
	require.ErrorIs(t, err, ErrInvalidProfile)
}

func TestOrderCompletePaysOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	alice := e.register(t, 1, "alice", "")
	e.register(t, 2, "bob", alice.ReferralCode)

	order := OrderCompleted{OrderID: 10, UserID: 2, Total: decimal.RequireFromString("250.00")}
	res, err := e.orders.Complete(ctx, order)
	require.NoError(t, err)
	require.Equal(t, commission.OutcomeDistributed, res.Outcome)
	require.Equal(t, "order:10", res.EventID)

	res, err = e.orders.Complete(ctx, order)
	require.NoError(t, err)
	require.Equal(t, commission.OutcomeDuplicate, res.Outcome)

	w, err := e.profiles.Wallet(ctx, 1, 10, 0)
	require.NoError(t, err)
	require.Equal(t, "25.00", w.Profile.WalletBalance.StringFixed(2))
	require.Len(t, w.Transactions, 1)
	require.Equal(t, "Referral Level 1: 10% from bob", w.Transactions[0].Description)

	unread, err := e.notifications.CountUnread(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, unread)
}

func TestOrderCompleteSkipsEmptyOrders(t *testing.T) {
	e := newEnv(t)

	res, err := e.orders.Complete(context.Background(), OrderCompleted{OrderID: 1, UserID: 2, Total: decimal.Zero})
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, res.Outcome)

	res, err = e.orders.Complete(context.Background(), OrderCompleted{OrderID: 2, Total: decimal.NewFromInt(5)})
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, res.Outcome)
}

type failingDistributor struct {
	calls int
}

func (d *failingDistributor) Distribute(context.Context, commission.Event) (*commission.Result, error) {
	d.calls++
	return nil, commission.ErrWalletUpdate
}

func TestOrderCompletePropagatesHardFailure(t *testing.T) {
	d := &failingDistributor{}
	s := NewOrderService(d, dbtest.Logger())

	_, err := s.Complete(context.Background(), OrderCompleted{OrderID: 1, UserID: 1, Total: decimal.NewFromInt(10)})
	require.True(t, commission.IsHardFailure(err))
	require.Equal(t, 1, d.calls)
}

func TestSubscriptionLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	alice := e.register(t, 1, "alice", "")
	bob := e.register(t, 2, "bob", alice.ReferralCode)
	e.register(t, 3, "carol", bob.ReferralCode)

	_, err := e.subscriptions.Request(ctx, 3, false)
	require.ErrorIs(t, err, ErrTermsNotAgreed)

	sub, err := e.subscriptions.Request(ctx, 3, true)
	require.NoError(t, err)
	require.Equal(t, model.SubscriptionPending, sub.Status)
	require.Equal(t, "999.00", sub.Amount.StringFixed(2))

	sub, err = e.subscriptions.MarkPaid(ctx, sub.ID)
	require.NoError(t, err)
	require.True(t, sub.PaymentStatus)

	res, err := e.subscriptions.Approve(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, commission.OutcomeDistributed, res.Outcome)
	require.Len(t, res.Credits, 2)

	carol, err := e.profileRepo.GetByUserID(ctx, 3)
	require.NoError(t, err)
	require.True(t, carol.IsPrime)

	// Approving twice must not pay twice.
	res, err = e.subscriptions.Approve(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, commission.OutcomeDuplicate, res.Outcome)

	bobWallet, err := e.profiles.Wallet(ctx, 2, 10, 0)
	require.NoError(t, err)
	require.Equal(t, "99.90", bobWallet.Profile.WalletBalance.StringFixed(2))

	aliceWallet, err := e.profiles.Wallet(ctx, 1, 10, 0)
	require.NoError(t, err)
	require.Equal(t, "49.95", aliceWallet.Profile.WalletBalance.StringFixed(2))

	_, err = e.subscriptions.Request(ctx, 3, true)
	require.ErrorIs(t, err, ErrAlreadyPrime)

	inbox, err := e.notifications.ListByUser(ctx, 3, 10, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.Equal(t, approvedTitle, inbox[0].Title)
}

func TestSubscriptionRenewalAfterRejectionPaysAgain(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	alice := e.register(t, 1, "alice", "")
	e.register(t, 2, "bob", alice.ReferralCode)

	sub, err := e.subscriptions.Request(ctx, 2, true)
	require.NoError(t, err)
	first := sub.EventID()

	res, err := e.subscriptions.Approve(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, commission.OutcomeDistributed, res.Outcome)

	_, err = e.subscriptions.Reject(ctx, sub.ID)
	require.NoError(t, err)

	sub, err = e.subscriptions.Request(ctx, 2, true)
	require.NoError(t, err)
	require.EqualValues(t, 2, sub.Cycle)
	require.NotEqual(t, first, sub.EventID())

	res, err = e.subscriptions.Approve(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, commission.OutcomeDistributed, res.Outcome)
	require.Equal(t, sub.EventID(), res.EventID)

	wallet, err := e.profiles.Wallet(ctx, 1, 10, 0)
	require.NoError(t, err)
	require.Equal(t, "199.80", wallet.Profile.WalletBalance.StringFixed(2))

	inbox, err := e.notifications.ListByUser(ctx, 2, 10, 0)
	require.NoError(t, err)
	titles := make([]string, 0, len(inbox))
	for _, n := range inbox {
		titles = append(titles, n.Title)
	}
	require.ElementsMatch(t, []string{approvedTitle, rejectedTitle, approvedTitle}, titles)
}

func TestSubscriptionReject(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.register(t, 1, "alice", "")
	sub, err := e.subscriptions.Request(ctx, 1, true)
	require.NoError(t, err)

	sub, err = e.subscriptions.Reject(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, model.SubscriptionRejected, sub.Status)

	alice, err := e.profileRepo.GetByUserID(ctx, 1)
	require.NoError(t, err)
	require.False(t, alice.IsPrime)

	// A rejected request can be filed again.
	sub, err = e.subscriptions.Request(ctx, 1, true)
	require.NoError(t, err)
	require.Equal(t, model.SubscriptionPending, sub.Status)

	got, err := e.subscriptions.GetByUser(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, sub.ID, got.ID)

	_, err = e.subscriptions.Get(ctx, 99)
	require.ErrorIs(t, err, repository.ErrSubscriptionNotFound)
}

func TestApproveWithoutProfileRollsBack(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	sub, err := e.subscriptions.Request(ctx, 5, true)
	require.NoError(t, err)

	_, err = e.subscriptions.Approve(ctx, sub.ID)
	require.True(t, errors.Is(err, repository.ErrProfileNotFound))

	got, err := e.subscriptions.Get(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, model.SubscriptionPending, got.Status)
}
