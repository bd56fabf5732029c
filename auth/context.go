package auth

import (
	"context"

	"github.com/jrsteele09/readit-web/apiclient"
	"github.com/jrsteele09/readit-web/internal/config"
	"github.com/jrsteele09/readit-web/sessions"
	"github.com/jrsteele09/readit-web/token/refresh"
	"github.com/jrsteele09/readit-web/users"
)

// ExecutionContext owns the session state of one inbound request on the web server, or
// of one terminal client process. Nothing in it is shared with other contexts.
type ExecutionContext struct {
	Store       *sessions.Store
	Client      *apiclient.Client
	Coordinator *refresh.Coordinator
	Users       *users.API
	Service     *Service
	Guard       *Guard
	GuestGuard  *GuestGuard
}

// NewExecutionContext wires a fresh session store to client. The client's refresher
// is bound to the new coordinator, so client must not be shared between contexts.
func NewExecutionContext(client *apiclient.Client, cfg config.SessionConfig) *ExecutionContext {
	store := sessions.New()
	api := users.NewAPI(client)
	coordinator := refresh.NewCoordinator(api, store, cfg)
	client.SetRefresher(coordinator)

	var options []ServiceOption
	if fwd, ok := client.Credentials().(*apiclient.Forwarded); ok {
		options = append(options, WithCredentialCheck(func() bool { return !fwd.Empty() }))
	}
	service := NewService(store, api, coordinator, cfg, options...)

	return &ExecutionContext{
		Store:       store,
		Client:      client,
		Coordinator: coordinator,
		Users:       api,
		Service:     service,
		Guard:       NewGuard(store, service, cfg),
		GuestGuard:  NewGuestGuard(store, service, cfg),
	}
}

// Close tears the context down; the store is cleared and ignores later writes
func (ec *ExecutionContext) Close() {
	ec.Store.Destroy()
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying ec and its session store
func NewContext(ctx context.Context, ec *ExecutionContext) context.Context {
	ctx = sessions.NewContext(ctx, ec.Store)
	return context.WithValue(ctx, contextKey{}, ec)
}

// FromContext returns the execution context attached to ctx, if any
func FromContext(ctx context.Context) (*ExecutionContext, bool) {
	ec, ok := ctx.Value(contextKey{}).(*ExecutionContext)
	return ec, ok
}
