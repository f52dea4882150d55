// Package admin serves the operational endpoints: health, metrics, wallet
// lookups and prime subscription review.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"referral-service/internal/commission"
	"referral-service/internal/model"
	"referral-service/internal/repository"
	"referral-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const pingTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type ProfileReader interface {
	Wallet(ctx context.Context, userID uint, limit, offset int) (*service.Wallet, error)
	Referrals(ctx context.Context, userID uint) ([]model.Profile, error)
}

type Inbox interface {
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]model.Notification, error)
	CountUnread(ctx context.Context, userID uint) (int64, error)
	MarkRead(ctx context.Context, userID, id uint) error
	MarkAllRead(ctx context.Context, userID uint) (int64, error)
}

type Subscriptions interface {
	Get(ctx context.Context, id uint) (*model.PrimeSubscription, error)
	ListByStatus(ctx context.Context, status model.SubscriptionStatus) ([]model.PrimeSubscription, error)
	Approve(ctx context.Context, id uint) (*commission.Result, error)
	Reject(ctx context.Context, id uint) (*model.PrimeSubscription, error)
}

type Deps struct {
	DB            Pinger
	Profiles      ProfileReader
	Inbox         Inbox
	Subscriptions Subscriptions
}

type handler struct {
	Deps
	log *logrus.Logger
}

func NewRouter(deps Deps, log *logrus.Logger) *gin.Engine {
	h := &handler{Deps: deps, log: log}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/wallets/:user_id", h.wallet)
	r.GET("/referrals/:user_id", h.referrals)

	r.GET("/notifications/:user_id", h.notifications)
	r.POST("/notifications/:user_id/read", h.markRead)

	r.GET("/subscriptions", h.listSubscriptions)
	r.GET("/subscriptions/:id", h.subscription)
	r.POST("/subscriptions/:id/approve", h.approve)
	r.POST("/subscriptions/:id/reject", h.reject)

	return r
}

func (h *handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	if err := h.DB.Ping(ctx); err != nil {
		h.log.WithError(err).Warn("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) wallet(c *gin.Context) {
	userID, ok := idParam(c, "user_id")
	if !ok {
		return
	}

	wallet, err := h.Profiles.Wallet(c.Request.Context(), userID, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

func (h *handler) referrals(c *gin.Context) {
	userID, ok := idParam(c, "user_id")
	if !ok {
		return
	}

	list, err := h.Profiles.Referrals(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"referrals": list, "count": len(list)})
}

func (h *handler) notifications(c *gin.Context) {
	userID, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	list, err := h.Inbox.ListByUser(ctx, userID, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		h.writeError(c, err)
		return
	}
	unread, err := h.Inbox.CountUnread(ctx, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "unread": unread})
}

// markRead marks the notification named by ?id= as read, or every unread
// notification when no id is given.
func (h *handler) markRead(c *gin.Context) {
	userID, ok := idParam(c, "user_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if c.Query("id") == "" {
		changed, err := h.Inbox.MarkAllRead(ctx, userID)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"marked": changed})
		return
	}

	id, err := strconv.ParseUint(c.Query("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.Inbox.MarkRead(ctx, userID, uint(id)); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": 1})
}

func (h *handler) listSubscriptions(c *gin.Context) {
	status := model.SubscriptionStatus(c.DefaultQuery("status", string(model.SubscriptionPending)))

	list, err := h.Subscriptions.ListByStatus(c.Request.Context(), status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": list, "count": len(list)})
}

func (h *handler) subscription(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	sub, err := h.Subscriptions.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *handler) approve(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	res, err := h.Subscriptions.Approve(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) reject(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	sub, err := h.Subscriptions.Reject(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func (h *handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrProfileNotFound),
		errors.Is(err, repository.ErrSubscriptionNotFound),
		errors.Is(err, repository.ErrNotificationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case commission.IsHardFailure(err):
		h.log.WithError(err).Error("commission distribution failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "commission distribution failed, retry the request"})
	default:
		h.log.WithError(err).Error("admin request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Serve runs the admin server until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler, log *logrus.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("admin server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
