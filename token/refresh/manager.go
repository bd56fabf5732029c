package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/readit-web/internal/config"
	apperrors "github.com/jrsteele09/readit-web/internal/errors"
	"github.com/jrsteele09/readit-web/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "readit_token_refresh_total",
	Help: "Access token refresh attempts by outcome.",
}, []string{"outcome"})

const flightKey = "refresh"

// Exchanger performs the backend's refresh exchange and returns the new access-token expiry
type Exchanger interface {
	ExchangeRefresh(ctx context.Context) (time.Time, error)
}

// Coordinator runs at most one refresh exchange at a time for one session store and
// skips exchanges that follow a successful one within the cooldown window.
type Coordinator struct {
	exchanger Exchanger
	store     *sessions.Store
	config    config.SessionConfig

	group singleflight.Group

	mu          sync.Mutex
	lastSuccess time.Time
}

// NewCoordinator creates a coordinator writing its results to store
func NewCoordinator(exchanger Exchanger, store *sessions.Store, cfg config.SessionConfig) *Coordinator {
	return &Coordinator{
		exchanger: exchanger,
		store:     store,
		config:    cfg,
	}
}

// Refresh renews the access token and returns its new expiry. Concurrent callers share
// one exchange and its outcome. The exchange is detached from the caller's
// cancellation and bounded by the refresh timeout; a caller whose ctx ends stops
// waiting but the exchange still completes for everyone else.
func (c *Coordinator) Refresh(ctx context.Context) (time.Time, error) {
	if expiry, ok := c.cooledDown(); ok {
		refreshTotal.WithLabelValues("cooldown").Inc()
		return expiry, nil
	}

	var executed bool
	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		executed = true
		return c.exchange(ctx)
	})

	select {
	case res := <-ch:
		if !executed {
			refreshTotal.WithLabelValues("shared").Inc()
		}
		if res.Err != nil {
			return time.Time{}, res.Err
		}
		return res.Val.(time.Time), nil
	case <-ctx.Done():
		return time.Time{}, apperrors.Session(apperrors.ErrRefreshFailed, ctx.Err())
	}
}

// Forget drops the cooldown so the next Refresh contacts the backend
func (c *Coordinator) Forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSuccess = time.Time{}
}

func (c *Coordinator) exchange(ctx context.Context) (time.Time, error) {
	// a flight that settled just before this one started may already have refreshed
	if expiry, ok := c.cooledDown(); ok {
		refreshTotal.WithLabelValues("cooldown").Inc()
		return expiry, nil
	}

	exctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.GetRefreshTimeout())
	defer cancel()

	expiry, err := c.exchanger.ExchangeRefresh(exctx)
	if err != nil {
		refreshTotal.WithLabelValues("failed").Inc()
		zerolog.Ctx(ctx).Warn().Err(err).Msg("access token refresh failed")
		c.store.Clear()
		return time.Time{}, apperrors.Session(apperrors.ErrRefreshFailed, err)
	}

	refreshTotal.WithLabelValues("exchanged").Inc()
	c.store.Set(sessions.Patch{AccessTokenExpiresAt: &expiry})

	c.mu.Lock()
	c.lastSuccess = NowTimeFunc()
	c.mu.Unlock()
	return expiry, nil
}

func (c *Coordinator) cooledDown() (time.Time, bool) {
	c.mu.Lock()
	last := c.lastSuccess
	c.mu.Unlock()

	if last.IsZero() || NowTimeFunc().Sub(last) >= c.config.GetRefreshCooldown() {
		return time.Time{}, false
	}
	s := c.store.Get()
	if !s.HasAccessTokenExpiry() {
		return time.Time{}, false
	}
	return s.AccessTokenExpiresAt, true
}
