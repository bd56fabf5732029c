package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/readit-web/internal/config"
	"github.com/jrsteele09/readit-web/sessions"
	"github.com/rs/zerolog"
)

// Application paths the guards route between
const (
	PathLogin              = "/login"
	PathSignup             = "/signup"
	PathDashboard          = "/dashboard"
	PathVerifyEmail        = "/verify-email"
	PathUsers              = "/users/"
	PathMe                 = "/users/me"
	PathChangePasswordCode = "/settings/change-password/code"
	PathChangePasswordNew  = "/settings/change-password/new"
)

var gatedPaths = map[string]sessions.AccessFlag{
	PathChangePasswordCode: sessions.FlagChangePasswordCode,
	PathChangePasswordNew:  sessions.FlagChangePasswordNew,
}

// State is the resolved session state of one navigation
type State int

const (
	StateUnresolved State = iota
	StateVerified
	StateUnverified
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateVerified:
		return "verified"
	case StateUnverified:
		return "unverified"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unresolved"
	}
}

// Destination is where a navigation is headed. Method is the HTTP method of the
// navigation; an empty Method is a page load.
type Destination struct {
	Path   string
	Method string
}

func (d Destination) pageLoad() bool {
	return d.Method == "" || d.Method == http.MethodGet || d.Method == http.MethodHead
}

// Decision is the outcome of a guard check. Location is set when Allow is false.
type Decision struct {
	Allow    bool
	Location string
	State    State
}

func allow(state State) Decision {
	return Decision{Allow: true, State: state}
}

func redirect(location string, state State) Decision {
	return Decision{Location: location, State: state}
}

// VerifyEmailLocation is the verification page for userID
func VerifyEmailLocation(userID string) string {
	return PathVerifyEmail + "?" + url.Values{"userId": {userID}}.Encode()
}

// Guard gates navigation to the authenticated part of the application
type Guard struct {
	store   *sessions.Store
	service *Service
	config  config.SessionConfig
}

func NewGuard(store *sessions.Store, service *Service, cfg config.SessionConfig) *Guard {
	return &Guard{store: store, service: service, config: cfg}
}

// Check resolves the session and decides the navigation. Identity confirmation always
// completes before the decision; any failure there is treated as unauthenticated.
func (g *Guard) Check(ctx context.Context, dest Destination) Decision {
	state := resolve(ctx, g.store, g.service, g.config)
	log := zerolog.Ctx(ctx).Debug().Str("path", dest.Path).Stringer("state", state)

	switch state {
	case StateVerified:
		d := g.verified(dest)
		log.Bool("allow", d.Allow).Str("location", d.Location).Msg("route guard")
		return d

	case StateUnverified:
		log.Msg("route guard")
		if dest.Path == PathVerifyEmail {
			return allow(state)
		}
		return redirect(VerifyEmailLocation(g.store.Get().UserID), state)

	default:
		log.Msg("route guard")
		g.store.Clear()
		if dest.Path == PathLogin {
			return allow(StateUnauthenticated)
		}
		return redirect(PathLogin, StateUnauthenticated)
	}
}

func (g *Guard) verified(dest Destination) Decision {
	sess := g.store.Get()

	if id, ok := strings.CutPrefix(dest.Path, PathUsers); ok && id == sess.UserID && !strings.Contains(id, "/") {
		return redirect(PathMe, StateVerified)
	}

	flag, gated := gatedPaths[dest.Path]
	if !gated || !dest.pageLoad() {
		return allow(StateVerified)
	}
	// google accounts have no password to change
	if sess.AuthProvider == sessions.AuthProviderGoogle {
		return redirect(PathDashboard, StateVerified)
	}
	if !g.store.Consume(flag) {
		return redirect(PathDashboard, StateVerified)
	}
	return allow(StateVerified)
}

// GuestGuard keeps signed-in users out of the login and signup pages
type GuestGuard struct {
	store   *sessions.Store
	service *Service
	config  config.SessionConfig
}

func NewGuestGuard(store *sessions.Store, service *Service, cfg config.SessionConfig) *GuestGuard {
	return &GuestGuard{store: store, service: service, config: cfg}
}

// Check sends verified users to the dashboard. An unverified session is logged out
// first, so no half-authenticated state lingers in the guest area, and then lands on
// the login page.
func (g *GuestGuard) Check(ctx context.Context, dest Destination) Decision {
	state := resolve(ctx, g.store, g.service, g.config)
	zerolog.Ctx(ctx).Debug().Str("path", dest.Path).Stringer("state", state).Msg("guest guard")

	switch state {
	case StateVerified:
		return redirect(PathDashboard, state)

	case StateUnverified:
		if err := g.service.Logout(ctx); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("logout of unverified session failed")
		}
		if dest.Path == PathLogin {
			return allow(StateUnauthenticated)
		}
		return redirect(PathLogin, StateUnauthenticated)

	default:
		return allow(StateUnauthenticated)
	}
}

// resolve uses a cached authenticated session whose token is outside the safety margin
// and otherwise confirms the identity with the backend
func resolve(ctx context.Context, store *sessions.Store, service *Service, cfg config.SessionConfig) State {
	sess := store.Get()
	if !sess.IsAuthenticated || sess.NeedsRefresh(NowTimeFunc(), cfg.GetRefreshSafetyMargin()) {
		if err := service.ConfirmIdentity(ctx); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("identity not confirmed")
			return StateUnauthenticated
		}
		sess = store.Get()
	}

	switch {
	case !sess.IsAuthenticated:
		return StateUnauthenticated
	case sess.IsEmailVerified:
		return StateVerified
	default:
		return StateUnverified
	}
}
