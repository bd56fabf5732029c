// Package fakeapi is an in-process stand-in for the Readit backend used by tests.
// It issues cookie-based sessions the way the real backend does (a short-lived JWT
// access cookie and an opaque refresh cookie) and counts calls per route.
package fakeapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	AccessCookie  = "access_token_cookie"
	RefreshCookie = "refresh_token_cookie"

	// ValidCode is accepted by every code-verification endpoint
	ValidCode = "123456"

	// InvoiceURL prefixes the payment page returned for a Readits top-up
	InvoiceURL = "https://pay.readit.example/invoice/"
)

// Account is a user known to the fake backend
type Account struct {
	UserID        string
	Username      string
	Email         string
	Password      string
	EmailVerified bool
	Provider      string
}

// Backend is a fake Readit API server
type Backend struct {
	*httptest.Server

	mu          sync.Mutex
	accessTTL   time.Duration
	calls       map[string]int
	bodies      map[string][]byte
	queries     map[string]string
	accounts    map[string]*Account // by email
	access      map[string]string   // access token -> user id
	refresh     map[string]string   // refresh token -> user id
	googleCodes map[string]string   // auth code -> email
	overrides   map[string]http.HandlerFunc
	refreshGate chan struct{}

	rentalRequests map[string]bool // book id -> requested
}

// New starts a fake backend that is closed when the test ends
func New(t testing.TB) *Backend {
	b := &Backend{
		accessTTL:   15 * time.Minute,
		calls:       make(map[string]int),
		bodies:      make(map[string][]byte),
		queries:     make(map[string]string),
		accounts:    make(map[string]*Account),
		access:      make(map[string]string),
		refresh:     make(map[string]string),
		googleCodes: make(map[string]string),
		overrides:   make(map[string]http.HandlerFunc),

		rentalRequests: make(map[string]bool),
	}
	b.Server = httptest.NewServer(b.routes())
	t.Cleanup(b.Server.Close)
	return b
}

// AddAccount registers an account; Provider defaults to password
func (b *Backend) AddAccount(a Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a.Provider == "" {
		a.Provider = "password"
	}
	acc := a
	b.accounts[a.Email] = &acc
}

// AddGoogleCode makes code exchangeable for the account registered under email
func (b *Backend) AddGoogleCode(code, email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.googleCodes[code] = email
}

// SetAccessTTL changes the lifetime of access tokens issued from now on
func (b *Backend) SetAccessTTL(ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accessTTL = ttl
}

// Calls returns how often route ("METHOD /path") was hit
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// LastBody returns the last request body received on route
func (b *Backend) LastBody(route string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bodies[route]
}

// LastQuery returns the last raw query string received on route
func (b *Backend) LastQuery(route string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queries[route]
}

// Override replaces the handler for route
func (b *Backend) Override(route string, h http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.overrides[route] = h
}

// BlockRefresh holds every refresh call until the returned release func is called
func (b *Backend) BlockRefresh() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.refreshGate = gate
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.refreshGate = nil
			b.mu.Unlock()
			close(gate)
		})
	}
}

// ExpireAccessTokens invalidates every access token issued so far
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.access = make(map[string]string)
}

// RevokeRefreshTokens invalidates every refresh token issued so far
func (b *Backend) RevokeRefreshTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh = make(map[string]string)
}

// SessionCookies signs email in directly and returns the cookies a browser would hold
func (b *Backend) SessionCookies(t testing.TB, email string) []*http.Cookie {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[email]
	if !ok {
		t.Fatalf("fakeapi: unknown account %q", email)
	}
	accessToken, _ := b.issueAccessLocked(acc.UserID)
	refreshToken := b.issueRefreshLocked(acc.UserID)
	return []*http.Cookie{
		{Name: AccessCookie, Value: accessToken},
		{Name: RefreshCookie, Value: refreshToken},
	}
}

func (b *Backend) record(r *http.Request) (route string, body []byte) {
	route = r.Method + " " + r.URL.Path
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[route]++
	b.bodies[route] = body
	b.queries[route] = r.URL.RawQuery
	return route, body
}

func (b *Backend) issueAccessLocked(userID string) (string, time.Time) {
	exp := time.Now().Add(b.accessTTL)
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": userID,
		"jti": uuid.NewString(),
		"exp": exp.Unix(),
	}).SignedString([]byte("fakeapi-secret"))
	if err != nil {
		panic(err)
	}
	b.access[token] = userID
	return token, exp
}

func (b *Backend) issueRefreshLocked(userID string) string {
	token := uuid.NewString()
	b.refresh[token] = userID
	return token
}

func (b *Backend) accountByIDLocked(userID string) *Account {
	for _, acc := range b.accounts {
		if acc.UserID == userID {
			return acc
		}
	}
	return nil
}

// authenticated returns the account behind the request's access cookie
func (b *Backend) authenticated(r *http.Request) *Account {
	c, err := r.Cookie(AccessCookie)
	if err != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	userID, ok := b.access[c.Value]
	if !ok {
		return nil
	}
	return b.accountByIDLocked(userID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func message(title, msg string) map[string]any {
	return map[string]any{"messageTitle": title, "message": msg}
}

func setSessionCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{Name: AccessCookie, Value: accessToken, Path: "/", HttpOnly: true})
	if refreshToken != "" {
		http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: refreshToken, Path: "/", HttpOnly: true})
	}
}

func clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: AccessCookie, Value: "", Path: "/", MaxAge: -1})
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: "", Path: "/", MaxAge: -1})
}
