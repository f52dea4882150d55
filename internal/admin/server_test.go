package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"referral-service/internal/commission"
	"referral-service/internal/dbtest"
	"referral-service/internal/metrics"
	"referral-service/internal/notify"
	"referral-service/internal/repository"
	"referral-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type pinger struct {
	err error
}

func (p pinger) Ping(context.Context) error {
	return p.err
}

type testServer struct {
	router        *gin.Engine
	profiles      *service.ProfileService
	subscriptions *service.SubscriptionService
}

func setup(t *testing.T, db Pinger) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn := dbtest.New(t)
	log := dbtest.Logger()
	store := repository.NewStore(conn, log)
	inbox := repository.NewNotificationRepository(conn, log)
	notifier := notify.NewStore(inbox, log)
	engine, err := commission.New(store, notifier, log, commission.DefaultOptions())
	require.NoError(t, err)

	s := &testServer{
		profiles: service.NewProfileService(store, repository.NewProfileRepository(conn, log), repository.NewLedgerRepository(conn, log), log),
		subscriptions: service.NewSubscriptionService(store, repository.NewSubscriptionRepository(conn, log),
			engine, notifier, decimal.RequireFromString("999.00"), log),
	}
	s.router = NewRouter(Deps{
		DB:            db,
		Profiles:      s.profiles,
		Inbox:         inbox,
		Subscriptions: s.subscriptions,
	}, log)
	return s
}

func (s *testServer) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestHealthz(t *testing.T) {
	w := setup(t, pinger{}).do(http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"ok"`)

	w = setup(t, pinger{err: errors.New("connection refused")}).do(http.MethodGet, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	s := setup(t, pinger{})
	metrics.Distributions.WithLabelValues("distributed").Inc()

	w := s.do(http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "referral_commission_distributions_total")
}

func TestWalletAndReferrals(t *testing.T) {
	s := setup(t, pinger{})
	ctx := context.Background()

	alice, err := s.profiles.Register(ctx, service.RegisterInput{UserID: 1, Username: "alice"})
	require.NoError(t, err)
	_, err = s.profiles.Register(ctx, service.RegisterInput{UserID: 2, Username: "bob", ReferralCode: alice.ReferralCode})
	require.NoError(t, err)

	w := s.do(http.MethodGet, "/wallets/1")
	require.Equal(t, http.StatusOK, w.Code)
	var wallet struct {
		Profile struct {
			Username      string          `json:"username"`
			WalletBalance decimal.Decimal `json:"wallet_balance"`
		} `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wallet))
	require.Equal(t, "alice", wallet.Profile.Username)
	require.True(t, wallet.Profile.WalletBalance.IsZero())

	w = s.do(http.MethodGet, "/referrals/1")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"bob"`)

	require.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/wallets/99").Code)
	require.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/wallets/abc").Code)
}

func TestSubscriptionReview(t *testing.T) {
	s := setup(t, pinger{})
	ctx := context.Background()

	alice, err := s.profiles.Register(ctx, service.RegisterInput{UserID: 1, Username: "alice"})
	require.NoError(t, err)
	_, err = s.profiles.Register(ctx, service.RegisterInput{UserID: 2, Username: "bob", ReferralCode: alice.ReferralCode})
	require.NoError(t, err)

	sub, err := s.subscriptions.Request(ctx, 2, true)
	require.NoError(t, err)

	w := s.do(http.MethodGet, "/subscriptions?status=pending")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"count":1`)

	w = s.do(http.MethodPost, "/subscriptions/1/approve")
	require.Equal(t, http.StatusOK, w.Code)
	var res commission.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, commission.OutcomeDistributed, res.Outcome)
	require.Equal(t, sub.EventID(), res.EventID)
	require.Len(t, res.Credits, 1)
	require.Equal(t, "99.90", res.Credits[0].Amount.StringFixed(2))

	w = s.do(http.MethodGet, "/subscriptions/1")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"approved"`)

	require.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/subscriptions/9/reject").Code)
}

func TestNotificationInbox(t *testing.T) {
	s := setup(t, pinger{})
	ctx := context.Background()

	_, err := s.profiles.Register(ctx, service.RegisterInput{UserID: 1, Username: "alice"})
	require.NoError(t, err)
	sub, err := s.subscriptions.Request(ctx, 1, true)
	require.NoError(t, err)
	_, err = s.subscriptions.Reject(ctx, sub.ID)
	require.NoError(t, err)

	w := s.do(http.MethodGet, "/notifications/1")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"unread":1`)
	require.Contains(t, w.Body.String(), "Prime Subscription Rejected")

	require.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/notifications/1/read?id=42").Code)

	w = s.do(http.MethodPost, "/notifications/1/read")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"marked":1`)
}
