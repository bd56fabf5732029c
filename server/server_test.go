package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jrsteele09/readit-web/internal/config"
	"github.com/jrsteele09/readit-web/internal/fakeapi"
	"github.com/jrsteele09/readit-web/server"
	"github.com/stretchr/testify/require"
)

const (
	readerEmail  = "reader@example.com"
	newbieEmail  = "newbie@example.com"
	googlerEmail = "googler@example.com"
	password     = "Sup3r$ecret"
)

type harness struct {
	backend *fakeapi.Backend
	web     *httptest.Server
	jar     *cookiejar.Jar
	client  *http.Client
}

// newHarness starts the fake backend and the web server in front of it. env is applied
// on top of test defaults before the configuration is read.
func newHarness(t *testing.T, env map[string]string) *harness {
	t.Helper()
	backend := fakeapi.New(t)
	backend.AddAccount(fakeapi.Account{UserID: "user-1", Username: "reader", Email: readerEmail, Password: password, EmailVerified: true})
	backend.AddAccount(fakeapi.Account{UserID: "user-2", Username: "newbie", Email: newbieEmail, Password: password})
	backend.AddAccount(fakeapi.Account{UserID: "user-3", Username: "googler", Email: googlerEmail, Provider: "google", EmailVerified: true})

	t.Setenv("API_BASE_URL", backend.URL)
	t.Setenv("ENV", "TEST")
	t.Setenv("LOGIN_RATE_LIMIT_BURST", "100")
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.New()
	require.NoError(t, err)

	s, err := server.New(cfg)
	require.NoError(t, err)
	web := httptest.NewServer(s)
	t.Cleanup(web.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &harness{
		backend: backend,
		web:     web,
		jar:     jar,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// signIn puts a live backend session for email into the browser's jar
func (h *harness) signIn(t *testing.T, email string) {
	t.Helper()
	u, err := url.Parse(h.web.URL + "/")
	require.NoError(t, err)
	h.jar.SetCookies(u, h.backend.SessionCookies(t, email))
}

func (h *harness) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := h.client.Get(h.web.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (h *harness) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := h.client.PostForm(h.web.URL+path, form)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func requireRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, location, resp.Header.Get("Location"))
}

func requireRedirectPrefix(t *testing.T, resp *http.Response, prefix string) {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Location"), prefix), "location %q", resp.Header.Get("Location"))
}

func TestServer_HealthAndMetrics(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.get(t, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, body)

	h.get(t, "/login")
	resp, body = h.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `readit_web_requests_total{route="GET /login",status="200"}`)
}

func TestServer_RouteGuard(t *testing.T) {
	t.Run("visitors are sent to the login page", func(t *testing.T) {
		h := newHarness(t, nil)

		resp, _ := h.get(t, "/")
		requireRedirect(t, resp, "/dashboard")

		resp, _ = h.get(t, "/dashboard")
		requireRedirect(t, resp, "/login")
		require.Zero(t, h.backend.Calls("GET /api/users/me"))
	})

	t.Run("signed-in users skip the guest pages", func(t *testing.T) {
		h := newHarness(t, nil)
		h.signIn(t, readerEmail)

		resp, _ := h.get(t, "/login")
		requireRedirect(t, resp, "/dashboard")
		resp, _ = h.get(t, "/signup")
		requireRedirect(t, resp, "/dashboard")
	})

	t.Run("own profile id goes to the profile page", func(t *testing.T) {
		h := newHarness(t, nil)
		h.signIn(t, readerEmail)

		resp, _ := h.get(t, "/users/user-1")
		requireRedirect(t, resp, "/users/me")

		resp, body := h.get(t, "/users/user-2")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body, "newbie")
	})

	t.Run("unverified sessions are logged out of the guest pages", func(t *testing.T) {
		h := newHarness(t, nil)
		h.signIn(t, newbieEmail)

		resp, _ := h.get(t, "/signup")
		requireRedirect(t, resp, "/login")
		require.Equal(t, 1, h.backend.Calls("POST /api/users/logout"))
	})
}

func TestServer_Login(t *testing.T) {
	t.Run("verified account reaches the dashboard", func(t *testing.T) {
		h := newHarness(t, nil)

		resp, _ := h.post(t, "/login", url.Values{"emailAddress": {readerEmail}, "password": {password}})
		requireRedirect(t, resp, "/dashboard")

		resp, body := h.get(t, "/dashboard")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body, "Welcome back, reader")
		require.Contains(t, body, "210.00 Readits available")
	})

	t.Run("wrong password", func(t *testing.T) {
		h := newHarness(t, nil)

		resp, body := h.post(t, "/login", url.Values{"emailAddress": {readerEmail}, "password": {"Wr0ng$pass"}})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Contains(t, body, "Invalid email or password.")
	})

	t.Run("invalid fields never reach the backend", func(t *testing.T) {
		h := newHarness(t, nil)

		resp, _ := h.post(t, "/login", url.Values{"emailAddress": {"reader@example"}, "password": {"short"}})
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		require.Zero(t, h.backend.Calls("POST /api/users/login"))
	})

	t.Run("htmx submissions redirect by header", func(t *testing.T) {
		h := newHarness(t, nil)

		req, err := http.NewRequest(http.MethodPost, h.web.URL+"/login",
			strings.NewReader(url.Values{"emailAddress": {readerEmail}, "password": {password}}.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("HX-Request", "true")
		resp, err := h.client.Do(req)
		require.NoError(t, err)
		readBody(t, resp)

		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		require.Equal(t, "/dashboard", resp.Header.Get("HX-Redirect"))
	})

	t.Run("unverified account verifies its email first", func(t *testing.T) {
		h := newHarness(t, nil)

		resp, _ := h.post(t, "/login", url.Values{"emailAddress": {newbieEmail}, "password": {password}})
		requireRedirect(t, resp, "/dashboard")
		require.Equal(t, 1, h.backend.Calls("POST /api/users/send-verification-email"))

		resp, _ = h.get(t, "/dashboard")
		requireRedirect(t, resp, "/verify-email?userId=user-2")

		resp, body := h.get(t, "/verify-email?userId=user-2")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body, "Verify your email address")

		resp, _ = h.post(t, "/verify-email", url.Values{"action": {"resend"}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, 1, h.backend.Calls("POST /api/users/resend-verification-code"))

		resp, body = h.post(t, "/verify-email", url.Values{"code": {"000000"}})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Contains(t, body, "The code is invalid or has expired.")

		resp, _ = h.post(t, "/verify-email", url.Values{"code": {fakeapi.ValidCode}})
		requireRedirect(t, resp, "/dashboard")

		resp, _ = h.get(t, "/dashboard")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("logout clears the browser session", func(t *testing.T) {
		h := newHarness(t, nil)
		h.signIn(t, readerEmail)

		resp, _ := h.post(t, "/logout", nil)
		requireRedirect(t, resp, "/login")
		require.Equal(t, 1, h.backend.Calls("POST /api/users/logout"))

		resp, _ = h.get(t, "/dashboard")
		requireRedirect(t, resp, "/login")
	})
}

func TestServer_LoginRateLimit(t *testing.T) {
	h := newHarness(t, map[string]string{"LOGIN_RATE_LIMIT_RPS": "0.001", "LOGIN_RATE_LIMIT_BURST": "2"})
	form := url.Values{"emailAddress": {readerEmail}, "password": {"Wr0ng$pass"}}

	for range 2 {
		resp, _ := h.post(t, "/login", form)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp, _ := h.post(t, "/login", form)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "1", resp.Header.Get("Retry-After"))
	require.Equal(t, 2, h.backend.Calls("POST /api/users/login"))
}

func TestServer_LoginRateLimitForwardedFor(t *testing.T) {
	form := url.Values{"emailAddress": {readerEmail}, "password": {"Wr0ng$pass"}}
	postFrom := func(t *testing.T, h *harness, forwardedFor string) int {
		t.Helper()
		req, err := http.NewRequest(http.MethodPost, h.web.URL+"/login", strings.NewReader(form.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Forwarded-For", forwardedFor)
		req.Header.Set("X-Real-IP", forwardedFor)
		resp, err := h.client.Do(req)
		require.NoError(t, err)
		readBody(t, resp)
		return resp.StatusCode
	}

	t.Run("spoofed headers are ignored without a trusted proxy", func(t *testing.T) {
		h := newHarness(t, map[string]string{"LOGIN_RATE_LIMIT_RPS": "0.001", "LOGIN_RATE_LIMIT_BURST": "2"})
		require.Equal(t, http.StatusUnauthorized, postFrom(t, h, "203.0.113.1"))
		require.Equal(t, http.StatusUnauthorized, postFrom(t, h, "203.0.113.2"))
		require.Equal(t, http.StatusTooManyRequests, postFrom(t, h, "203.0.113.3"))
		require.Equal(t, 2, h.backend.Calls("POST /api/users/login"))
	})

	t.Run("a trusted proxy names the client", func(t *testing.T) {
		h := newHarness(t, map[string]string{
			"LOGIN_RATE_LIMIT_RPS":   "0.001",
			"LOGIN_RATE_LIMIT_BURST": "2",
			"TRUSTED_PROXIES":        "127.0.0.0/8,::1",
		})
		require.Equal(t, http.StatusUnauthorized, postFrom(t, h, "203.0.113.1"))
		require.Equal(t, http.StatusUnauthorized, postFrom(t, h, "203.0.113.2"))
		require.Equal(t, http.StatusUnauthorized, postFrom(t, h, "198.51.100.9, 203.0.113.3"))

		require.Equal(t, http.StatusUnauthorized, postFrom(t, h, "198.51.100.9, 203.0.113.3"))
		require.Equal(t, http.StatusTooManyRequests, postFrom(t, h, "203.0.113.3"))
		require.Equal(t, 4, h.backend.Calls("POST /api/users/login"))
	})
}

func TestServer_Signup(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.post(t, "/signup", url.Values{"username": {"a"}, "emailAddress": {"new@example.com"}, "password": {"Sup3r$ecret"}})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Contains(t, body, "new@example.com")
	require.Zero(t, h.backend.Calls("POST /api/users/signup"))

	resp, _ = h.post(t, "/signup", url.Values{"username": {"bookworm"}, "emailAddress": {"new@example.com"}, "password": {"Sup3r$ecret"}})
	requireRedirectPrefix(t, resp, "/login?")

	resp, body = h.post(t, "/signup", url.Values{"username": {"bookworm"}, "emailAddress": {"new@example.com"}, "password": {"Sup3r$ecret"}})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Contains(t, body, "Email address is already registered.")
}

func TestServer_PasswordReset(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.post(t, "/forgot-password", url.Values{"emailAddress": {readerEmail}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, `value="user-1"`)
	require.Contains(t, body, `action="/reset-password/resend"`)

	resp, body = h.post(t, "/reset-password/resend", url.Values{"userId": {"user-1"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "We sent a new reset code")
	require.Contains(t, body, `value="user-1"`)
	require.JSONEq(t, `{"userId":"user-1"}`, string(h.backend.LastBody("POST /api/users/resend-reset-code")))

	resp, _ = h.post(t, "/reset-password", url.Values{"userId": {"user-1"}, "code": {fakeapi.ValidCode}, "newPassword": {"weak"}})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Zero(t, h.backend.Calls("POST /api/users/reset-password"))

	resp, _ = h.post(t, "/reset-password", url.Values{"userId": {"user-1"}, "code": {fakeapi.ValidCode}, "newPassword": {"N3w&Improved!"}})
	requireRedirectPrefix(t, resp, "/login?notice=")
	require.Equal(t, 1, h.backend.Calls("POST /api/users/reset-password"))
}

func TestServer_ValidatePassword(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.post(t, "/api/validate-password", url.Values{"password": {"abc"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "strength-weak")
	require.Contains(t, body, "Password must be at least 8 characters long")

	_, body = h.post(t, "/api/validate-password", url.Values{"password": {"Tr0ub4dor&3-Horse!"}})
	require.Contains(t, body, "strength-strong")
	require.NotContains(t, body, "field-error")
}

func TestServer_SessionRenewal(t *testing.T) {
	t.Run("renewed cookie reaches the browser", func(t *testing.T) {
		h := newHarness(t, nil)
		h.signIn(t, readerEmail)
		h.backend.ExpireAccessTokens()

		resp, _ := h.get(t, "/dashboard")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, 1, h.backend.Calls("POST /api/users/refresh"))

		var renewed bool
		for _, c := range resp.Cookies() {
			renewed = renewed || (c.Name == fakeapi.AccessCookie && c.Value != "")
		}
		require.True(t, renewed, "response carries the renewed access cookie")

		// the jar now holds the renewed cookie, so no second refresh is needed
		resp, _ = h.get(t, "/dashboard")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, 1, h.backend.Calls("POST /api/users/refresh"))
	})

	t.Run("revoked session goes back to login", func(t *testing.T) {
		h := newHarness(t, nil)
		h.signIn(t, readerEmail)
		h.backend.ExpireAccessTokens()
		h.backend.RevokeRefreshTokens()

		resp, _ := h.get(t, "/dashboard")
		requireRedirect(t, resp, "/login")
		require.Zero(t, h.backend.Calls("GET /api/dashboard/summary"))
	})

	t.Run("session lost during a page load", func(t *testing.T) {
		h := newHarness(t, nil)
		h.signIn(t, readerEmail)
		h.backend.Override("GET /api/rentals/my-rentals", func(w http.ResponseWriter, _ *http.Request) {
			h.backend.RevokeRefreshTokens()
			w.WriteHeader(http.StatusUnauthorized)
		})

		resp, _ := h.get(t, "/rentals")
		requireRedirectPrefix(t, resp, "/login?error=")
	})

	formPosts := []struct {
		name    string
		backend string
		path    string
		form    url.Values
	}{
		{name: "approve rental", backend: "POST /api/rentals/r1/approve", path: "/rentals/r1/approve", form: url.Values{"meetupTime": {"10:00"}}},
		{name: "reject rental", backend: "POST /api/rentals/r1/reject", path: "/rentals/r1/reject"},
		{name: "rate rental", backend: "POST /api/ratings/r1/rate", path: "/rentals/r1/rate", form: url.Values{"rating": {"5"}, "from": {"rental"}}},
		{name: "purchase", backend: "POST /api/purchases/create", path: "/books/book-2/purchase", form: url.Values{"totalBuyCost": {"300"}}},
		{name: "rent", backend: "POST /api/rentals/create", path: "/books/book-1/rent",
			form: url.Values{"rentalDurationDays": {"3"}, "dailyRentPrice": {"5"}, "securityDeposit": {"50"}}},
		{name: "readits top-up", backend: "POST /api/wallets/buy-readits", path: "/wallet/buy", form: url.Values{"pack": {"starter"}}},
		{name: "confirm pickup", backend: "POST /api/rentals/r1/confirm-pickup", path: "/rentals/r1/pickup"},
		{name: "change password code", backend: "POST /api/users/change-password/request-code", path: "/settings/change-password"},
		{name: "change password", backend: "POST /api/users/change-password", path: "/settings/change-password/new",
			form: url.Values{"code": {fakeapi.ValidCode}, "currentPassword": {password}, "newPassword": {"An0ther$ecret"}}},
	}
	for _, tc := range formPosts {
		t.Run("session lost during "+tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.signIn(t, readerEmail)
			h.backend.Override(tc.backend, func(w http.ResponseWriter, _ *http.Request) {
				h.backend.RevokeRefreshTokens()
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"message":"Token has expired"}`))
			})

			resp, _ := h.post(t, tc.path, tc.form)
			requireRedirectPrefix(t, resp, "/login?error=")
			require.Equal(t, 1, h.backend.Calls("POST /api/users/refresh"))
		})
	}
}

func TestServer_ChangePassword(t *testing.T) {
	t.Run("each step unlocks the next page", func(t *testing.T) {
		h := newHarness(t, nil)
		h.signIn(t, readerEmail)

		resp, _ := h.get(t, "/settings/change-password/code")
		requireRedirect(t, resp, "/dashboard")

		resp, body := h.post(t, "/settings/change-password", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body, "Enter your code")
		require.Equal(t, 1, h.backend.Calls("POST /api/users/change-password/request-code"))

		resp, body = h.post(t, "/settings/change-password/code", url.Values{"code": {"999999"}})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Contains(t, body, "Enter your code")

		resp, body = h.post(t, "/settings/change-password/code", url.Values{"code": {fakeapi.ValidCode}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body, "Choose a new password")
		require.Contains(t, body, `value="`+fakeapi.ValidCode+`"`)

		resp, _ = h.post(t, "/settings/change-password/new", url.Values{
			"code": {fakeapi.ValidCode}, "currentPassword": {password}, "newPassword": {"reader"},
		})
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		resp, _ = h.post(t, "/settings/change-password/new", url.Values{
			"code": {fakeapi.ValidCode}, "currentPassword": {password}, "newPassword": {"N3w&Improved!"},
		})
		requireRedirectPrefix(t, resp, "/settings?notice=")
		require.Equal(t, 1, h.backend.Calls("POST /api/users/change-password"))
	})

	t.Run("resend over htmx", func(t *testing.T) {
		h := newHarness(t, nil)
		h.signIn(t, readerEmail)

		req, err := http.NewRequest(http.MethodPost, h.web.URL+"/settings/change-password/resend", nil)
		require.NoError(t, err)
		req.Header.Set("HX-Request", "true")
		resp, err := h.client.Do(req)
		require.NoError(t, err)
		readBody(t, resp)

		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		require.Equal(t, 1, h.backend.Calls("POST /api/users/change-password/resend-code"))
	})

	t.Run("google accounts have no password", func(t *testing.T) {
		h := newHarness(t, nil)
		h.signIn(t, googlerEmail)

		resp, _ := h.post(t, "/settings/change-password", nil)
		requireRedirectPrefix(t, resp, "/settings?error=")
		require.Zero(t, h.backend.Calls("POST /api/users/change-password/request-code"))
	})
}

func TestServer_Marketplace(t *testing.T) {
	t.Run("books are filtered and purchased once", func(t *testing.T) {
		h := newHarness(t, nil)
		h.signIn(t, readerEmail)

		resp, body := h.get(t, "/books?search=rizal&genre=Classic&page=2")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body, "Noli Me Tangere")
		query, err := url.ParseQuery(h.backend.LastQuery("GET /api/books/"))
		require.NoError(t, err)
		require.Equal(t, "rizal", query.Get("searchValue"))
		require.Equal(t, "Classic", query.Get("bookGenre"))
		require.Equal(t, "2", query.Get("pageNumber"))
		require.Equal(t, "12", query.Get("booksPerPage"))

		form := url.Values{"totalBuyCost": {"300"}, "meetupLocation": {"Library"}, "meetupDate": {"2026-11-02"}, "meetupTimeWindow": {"10:00-12:00"}}
		resp, _ = h.post(t, "/books/book-2/purchase", form)
		requireRedirectPrefix(t, resp, "/books?notice=")

		var purchase map[string]any
		require.NoError(t, json.Unmarshal(h.backend.LastBody("POST /api/purchases/create"), &purchase))
		require.Equal(t, "book-2", purchase["book_id"])
		require.Equal(t, "Library", purchase["meetup_location"])

		resp, _ = h.post(t, "/books/book-2/purchase", form)
		requireRedirectPrefix(t, resp, "/books?error=")
		require.Equal(t, 1, h.backend.Calls("POST /api/purchases/create"))
	})

	t.Run("books are rented once", func(t *testing.T) {
		h := newHarness(t, nil)
		h.signIn(t, readerEmail)

		resp, body := h.get(t, "/books")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body, `action="/books/book-1/rent"`)

		form := url.Values{
			"ownerId":            {"owner-2"},
			"dailyRentPrice":     {"5"},
			"securityDeposit":    {"50"},
			"rentalDurationDays": {"4"},
			"meetupLocation":     {"Library"},
			"meetupDate":         {"2026-11-02"},
			"meetupTimeWindow":   {"10:00-12:00"},
		}
		resp, _ = h.post(t, "/books/book-1/rent", form)
		requireRedirectPrefix(t, resp, "/books?notice=")
		require.JSONEq(t, `{"amount_to_reserve":70}`, string(h.backend.LastBody("PATCH /api/wallets/update-reserved-amount")))

		var rental map[string]any
		require.NoError(t, json.Unmarshal(h.backend.LastBody("POST /api/rentals/create"), &rental))
		require.Equal(t, "book-1", rental["bookId"])
		require.Equal(t, "owner-2", rental["ownerUserId"])
		require.EqualValues(t, 4, rental["rentalDurationDays"])
		require.Equal(t, "10:00-12:00", rental["meetupTimeWindow"])

		resp, _ = h.post(t, "/books/book-1/rent", form)
		requireRedirectPrefix(t, resp, "/books?error=")
		require.Equal(t, 1, h.backend.Calls("POST /api/rentals/create"))
	})

	t.Run("rental period is checked before the backend", func(t *testing.T) {
		h := newHarness(t, nil)
		h.signIn(t, readerEmail)

		for _, days := range []string{"0", "31", "soon"} {
			resp, _ := h.post(t, "/books/book-1/rent", url.Values{"rentalDurationDays": {days}, "dailyRentPrice": {"5"}, "securityDeposit": {"50"}})
			requireRedirectPrefix(t, resp, "/books?error=")
		}
		resp, _ := h.post(t, "/books/book-2/rent", url.Values{"rentalDurationDays": {"3"}, "dailyRentPrice": {"0"}})
		requireRedirectPrefix(t, resp, "/books?error=")
		require.Zero(t, h.backend.Calls("GET /api/rentals/check/book-1"))
		require.Zero(t, h.backend.Calls("POST /api/rentals/create"))
	})

	t.Run("readits top-up goes to the invoice", func(t *testing.T) {
		h := newHarness(t, nil)
		h.signIn(t, readerEmail)

		resp, body := h.get(t, "/dashboard")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body, `action="/wallet/buy"`)

		resp, _ = h.post(t, "/wallet/buy", url.Values{"pack": {"bookworm"}})
		requireRedirect(t, resp, fakeapi.InvoiceURL+"bookworm")

		resp, _ = h.post(t, "/wallet/buy", url.Values{"pack": {"whale"}})
		requireRedirectPrefix(t, resp, "/dashboard?error=")
		require.Equal(t, 1, h.backend.Calls("POST /api/wallets/buy-readits"))
	})

	t.Run("rejected top-up keeps the backend message", func(t *testing.T) {
		h := newHarness(t, nil)
		h.signIn(t, readerEmail)
		h.backend.Override("POST /api/wallets/buy-readits", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"messageTitle":"Top-up failed","message":"Payments are paused."}`))
		})

		resp, _ := h.post(t, "/wallet/buy", url.Values{"pack": {"starter"}})
		requireRedirect(t, resp, "/dashboard?error="+url.QueryEscape("Payments are paused."))
	})

	t.Run("rental lifecycle", func(t *testing.T) {
		h := newHarness(t, nil)
		h.signIn(t, readerEmail)

		resp, _ := h.post(t, "/rentals/r-2/cancel", nil)
		requireRedirectPrefix(t, resp, "/rentals?notice=")
		resp, _ = h.post(t, "/rentals/r-1/pickup", nil)
		requireRedirectPrefix(t, resp, "/rentals?notice=")
		resp, _ = h.post(t, "/rentals/r-1/return", nil)
		requireRedirectPrefix(t, resp, "/rentals?notice=")
		resp, _ = h.post(t, "/rentals/r-3/reject", url.Values{"reason": {"Book is damaged"}})
		requireRedirectPrefix(t, resp, "/rentals?notice=")

		require.Equal(t, 1, h.backend.Calls("POST /api/rentals/r-2/cancel"))
		require.Equal(t, 1, h.backend.Calls("POST /api/rentals/r-1/confirm-pickup"))
		require.Equal(t, 1, h.backend.Calls("POST /api/rentals/r-1/confirm-return"))
		require.JSONEq(t, `{"reason":"Book is damaged"}`, string(h.backend.LastBody("POST /api/rentals/r-3/reject")))
	})

	t.Run("notifications and rentals", func(t *testing.T) {
		h := newHarness(t, nil)
		h.signIn(t, readerEmail)

		resp, _ := h.get(t, "/notifications?status=unread")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		query, err := url.ParseQuery(h.backend.LastQuery("GET /api/notifications"))
		require.NoError(t, err)
		require.Equal(t, "unread", query.Get("readStatus"))
		require.Equal(t, "newest", query.Get("order"))

		resp, _ = h.post(t, "/notifications/n-1/read", nil)
		requireRedirect(t, resp, "/notifications")
		require.Equal(t, 1, h.backend.Calls("PATCH /api/notifications/n-1/mark-as-read"))

		resp, _ = h.get(t, "/rentals")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = h.post(t, "/rentals/r-1/approve", url.Values{"meetupTime": {"14:00"}})
		requireRedirectPrefix(t, resp, "/rentals?notice=")
		require.JSONEq(t, `{"meetupTime":"14:00"}`, string(h.backend.LastBody("POST /api/rentals/r-1/approve")))

		resp, _ = h.post(t, "/rentals/r-1/rate", url.Values{"rating": {"9"}, "from": {"rental"}})
		requireRedirectPrefix(t, resp, "/rentals?error=")
		require.Zero(t, h.backend.Calls("POST /api/ratings/r-1/rate"))

		resp, _ = h.post(t, "/rentals/r-1/rate", url.Values{"rating": {"5"}, "from": {"lending"}, "review": {"Prompt and friendly"}})
		requireRedirectPrefix(t, resp, "/rentals?notice=")
		require.JSONEq(t, `{"rating":5,"review":"Prompt and friendly","from":"lending"}`,
			string(h.backend.LastBody("POST /api/ratings/r-1/rate")))
	})

	t.Run("backend outage renders an error page", func(t *testing.T) {
		h := newHarness(t, nil)
		h.signIn(t, readerEmail)
		h.backend.Override("GET /api/dashboard/summary", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		resp, body := h.get(t, "/dashboard")
		require.Equal(t, http.StatusBadGateway, resp.StatusCode)
		require.Contains(t, body, "The Readit service is unavailable right now")
	})
}
