package auth_test

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/jrsteele09/readit-web/apiclient"
	"github.com/jrsteele09/readit-web/auth"
	"github.com/jrsteele09/readit-web/internal/config"
	"github.com/jrsteele09/readit-web/internal/fakeapi"
	"github.com/jrsteele09/readit-web/internal/utils"
	"github.com/jrsteele09/readit-web/sessions"
	"github.com/stretchr/testify/require"
)

const (
	verifiedEmail   = "reader@example.com"
	unverifiedEmail = "newbie@example.com"
	googleEmail     = "gmail@example.com"
	password        = "Sup3r$ecret"
)

func newBackend(t *testing.T) *fakeapi.Backend {
	t.Helper()
	backend := fakeapi.New(t)
	backend.AddAccount(fakeapi.Account{UserID: "user-1", Username: "reader", Email: verifiedEmail, Password: password, EmailVerified: true})
	backend.AddAccount(fakeapi.Account{UserID: "user-2", Username: "newbie", Email: unverifiedEmail, Password: password})
	backend.AddAccount(fakeapi.Account{UserID: "user-3", Username: "gmailer", Email: googleEmail, EmailVerified: true, Provider: "google"})
	return backend
}

// browser returns a factory of execution contexts that share one cookie jar, like
// tabs of the same browser
func browser(t *testing.T, backend *fakeapi.Backend) func() *auth.ExecutionContext {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	hc := &http.Client{Jar: jar, Timeout: 5 * time.Second}

	return func() *auth.ExecutionContext {
		client := apiclient.New(apiclient.Config{BaseURL: backend.URL}, apiclient.Ambient{}, apiclient.WithHTTPClient(hc))
		ec := auth.NewExecutionContext(client, config.DefaultSession())
		t.Cleanup(ec.Close)
		return ec
	}
}

func login(t *testing.T, ec *auth.ExecutionContext, email string) {
	t.Helper()
	_, fieldErrs, err := ec.Service.Login(context.Background(), auth.LoginForm{EmailAddress: email, Password: password})
	require.NoError(t, err)
	require.Empty(t, fieldErrs)
}

func page(path string) auth.Destination {
	return auth.Destination{Path: path, Method: http.MethodGet}
}

func TestGuard_OwnProfileRewritesToMe(t *testing.T) {
	backend := newBackend(t)
	ec := browser(t, backend)()
	login(t, ec, verifiedEmail)

	d := ec.Guard.Check(context.Background(), page("/users/user-1"))
	require.False(t, d.Allow)
	require.Equal(t, auth.PathMe, d.Location)

	d = ec.Guard.Check(context.Background(), page("/users/user-2"))
	require.True(t, d.Allow)

	d = ec.Guard.Check(context.Background(), page(auth.PathMe))
	require.True(t, d.Allow)
}

func TestGuard_OneTimeAccessFlags(t *testing.T) {
	tests := []struct {
		name string
		path string
		flag sessions.AccessFlag
	}{
		{name: "code page", path: auth.PathChangePasswordCode, flag: sessions.FlagChangePasswordCode},
		{name: "new password page", path: auth.PathChangePasswordNew, flag: sessions.FlagChangePasswordNew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newBackend(t)
			ec := browser(t, backend)()
			login(t, ec, verifiedEmail)

			d := ec.Guard.Check(context.Background(), page(tt.path))
			require.False(t, d.Allow)
			require.Equal(t, auth.PathDashboard, d.Location)
			require.False(t, ec.Store.HasFlag(tt.flag))

			ec.Store.Grant(tt.flag)
			d = ec.Guard.Check(context.Background(), page(tt.path))
			require.True(t, d.Allow)
			require.False(t, ec.Store.HasFlag(tt.flag))

			d = ec.Guard.Check(context.Background(), page(tt.path))
			require.False(t, d.Allow)
			require.Equal(t, auth.PathDashboard, d.Location)
		})
	}

	t.Run("form posts do not consume the flag", func(t *testing.T) {
		backend := newBackend(t)
		ec := browser(t, backend)()
		login(t, ec, verifiedEmail)
		ec.Store.Grant(sessions.FlagChangePasswordNew)

		d := ec.Guard.Check(context.Background(), auth.Destination{Path: auth.PathChangePasswordNew, Method: http.MethodPost})
		require.True(t, d.Allow)
		require.True(t, ec.Store.HasFlag(sessions.FlagChangePasswordNew))
	})

	t.Run("granted by the change password actions", func(t *testing.T) {
		backend := newBackend(t)
		ec := browser(t, backend)()
		login(t, ec, verifiedEmail)

		require.NoError(t, ec.Service.RequestChangePasswordCode(context.Background()))
		require.True(t, ec.Guard.Check(context.Background(), page(auth.PathChangePasswordCode)).Allow)

		require.Error(t, ec.Service.VerifyChangePasswordCode(context.Background(), "000000"))
		require.False(t, ec.Store.HasFlag(sessions.FlagChangePasswordNew))

		require.NoError(t, ec.Service.VerifyChangePasswordCode(context.Background(), fakeapi.ValidCode))
		require.True(t, ec.Guard.Check(context.Background(), page(auth.PathChangePasswordNew)).Allow)
	})

	t.Run("google accounts never enter", func(t *testing.T) {
		backend := newBackend(t)
		backend.AddGoogleCode("google-code", googleEmail)
		ec := browser(t, backend)()
		_, err := ec.Service.GoogleLogin(context.Background(), "google-code")
		require.NoError(t, err)

		require.ErrorIs(t, ec.Service.RequestChangePasswordCode(context.Background()), auth.ErrNoPassword)

		ec.Store.Grant(sessions.FlagChangePasswordCode)
		d := ec.Guard.Check(context.Background(), page(auth.PathChangePasswordCode))
		require.False(t, d.Allow)
		require.Equal(t, auth.PathDashboard, d.Location)
	})
}

func TestGuard_RefreshesInsideSafetyMargin(t *testing.T) {
	backend := newBackend(t)
	ec := browser(t, backend)()
	login(t, ec, verifiedEmail)

	soon := time.Now().Add(20 * time.Second)
	ec.Store.Set(sessions.Patch{AccessTokenExpiresAt: &soon})

	d := ec.Guard.Check(context.Background(), page(auth.PathDashboard))
	require.True(t, d.Allow)
	require.Equal(t, 1, backend.Calls("POST /api/users/refresh"))
	require.True(t, ec.Store.Get().AccessTokenExpiresAt.After(soon))
}

func TestGuard_CachedSessionSkipsIdentityCheck(t *testing.T) {
	backend := newBackend(t)
	ec := browser(t, backend)()
	login(t, ec, verifiedEmail)

	d := ec.Guard.Check(context.Background(), page(auth.PathDashboard))
	require.True(t, d.Allow)
	require.Zero(t, backend.Calls("GET /api/users/me"))
	require.Zero(t, backend.Calls("POST /api/users/refresh"))
}

func TestGuard_IdentityCheckFailureIsUnauthenticated(t *testing.T) {
	backend := newBackend(t)
	newTab := browser(t, backend)
	login(t, newTab(), verifiedEmail)

	backend.Override("GET /api/users/me", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	ec := newTab()
	ec.Store.Set(sessions.Patch{UserID: utils.Ptr("stale"), Username: utils.Ptr("stale")})

	d := ec.Guard.Check(context.Background(), page(auth.PathDashboard))
	require.False(t, d.Allow)
	require.Equal(t, auth.PathLogin, d.Location)
	require.Equal(t, auth.StateUnauthenticated, d.State)

	s := ec.Store.Get()
	require.False(t, s.IsAuthenticated)
	require.Empty(t, s.UserID)
	require.Empty(t, s.Username)
	require.False(t, s.HasAccessTokenExpiry())
}

func TestGuard_Unauthenticated(t *testing.T) {
	backend := newBackend(t)
	ec := browser(t, backend)()

	d := ec.Guard.Check(context.Background(), page(auth.PathDashboard))
	require.False(t, d.Allow)
	require.Equal(t, auth.PathLogin, d.Location)

	d = ec.Guard.Check(context.Background(), page(auth.PathLogin))
	require.True(t, d.Allow)
}

func TestGuard_UnverifiedLoginRedirectsToVerifyEmail(t *testing.T) {
	backend := newBackend(t)
	ec := browser(t, backend)()

	resp, _, err := ec.Service.Login(context.Background(), auth.LoginForm{EmailAddress: unverifiedEmail, Password: password})
	require.NoError(t, err)
	require.False(t, resp.IsEmailVerified)

	d := ec.Guard.Check(context.Background(), page(auth.PathDashboard))
	require.False(t, d.Allow)
	require.Equal(t, "/verify-email?userId=user-2", d.Location)
	require.Equal(t, auth.StateUnverified, d.State)

	d = ec.Guard.Check(context.Background(), page(auth.PathVerifyEmail))
	require.True(t, d.Allow)

	require.NoError(t, ec.Service.VerifyEmail(context.Background(), "user-2", fakeapi.ValidCode))
	require.True(t, ec.Guard.Check(context.Background(), page(auth.PathDashboard)).Allow)
}

func TestGuestGuard(t *testing.T) {
	t.Run("verified session goes to the dashboard", func(t *testing.T) {
		backend := newBackend(t)
		ec := browser(t, backend)()
		login(t, ec, verifiedEmail)

		d := ec.GuestGuard.Check(context.Background(), page(auth.PathSignup))
		require.False(t, d.Allow)
		require.Equal(t, auth.PathDashboard, d.Location)
	})

	t.Run("unverified session is logged out and lands on login", func(t *testing.T) {
		backend := newBackend(t)
		ec := browser(t, backend)()
		login(t, ec, unverifiedEmail)

		d := ec.GuestGuard.Check(context.Background(), page(auth.PathLogin))
		require.True(t, d.Allow)
		require.Equal(t, 1, backend.Calls("POST /api/users/logout"))

		s := ec.Store.Get()
		require.False(t, s.IsAuthenticated)
		require.Empty(t, s.UserID)
	})

	t.Run("unverified session heading to signup is sent to login", func(t *testing.T) {
		backend := newBackend(t)
		ec := browser(t, backend)()
		login(t, ec, unverifiedEmail)

		d := ec.GuestGuard.Check(context.Background(), page(auth.PathSignup))
		require.False(t, d.Allow)
		require.Equal(t, auth.PathLogin, d.Location)
		require.Equal(t, 1, backend.Calls("POST /api/users/logout"))
	})

	t.Run("guest stays", func(t *testing.T) {
		backend := newBackend(t)
		ec := browser(t, backend)()

		d := ec.GuestGuard.Check(context.Background(), page(auth.PathLogin))
		require.True(t, d.Allow)
		require.Zero(t, backend.Calls("POST /api/users/logout"))
	})
}

func TestServerContext_NoCookiesSkipsBackend(t *testing.T) {
	backend := newBackend(t)
	client := apiclient.New(apiclient.Config{BaseURL: backend.URL}, apiclient.NewForwarded(nil, http.Header{}))
	ec := auth.NewExecutionContext(client, config.DefaultSession())
	defer ec.Close()

	d := ec.Guard.Check(context.Background(), page(auth.PathDashboard))
	require.False(t, d.Allow)
	require.Equal(t, auth.PathLogin, d.Location)
	require.Zero(t, backend.Calls("POST /api/users/refresh"))
	require.Zero(t, backend.Calls("GET /api/users/me"))
}

func TestServerContext_ForwardedCookiesConfirmIdentity(t *testing.T) {
	backend := newBackend(t)
	outbound := http.Header{}
	creds := apiclient.NewForwarded(backend.SessionCookies(t, verifiedEmail), outbound)
	ec := auth.NewExecutionContext(apiclient.New(apiclient.Config{BaseURL: backend.URL}, creds), config.DefaultSession())
	defer ec.Close()

	d := ec.Guard.Check(context.Background(), page(auth.PathDashboard))
	require.True(t, d.Allow)
	require.Equal(t, "user-1", ec.Store.Get().UserID)
	// no cached expiry, so the guard refreshed and the renewed cookie goes back to the browser
	require.Equal(t, 1, backend.Calls("POST /api/users/refresh"))
	require.NotEmpty(t, outbound.Values("Set-Cookie"))
}

func TestExecutionContext_CloseIgnoresLaterWrites(t *testing.T) {
	backend := newBackend(t)
	ec := browser(t, backend)()
	login(t, ec, verifiedEmail)

	ec.Close()
	require.False(t, ec.Store.Get().IsAuthenticated)

	ctx := auth.NewContext(context.Background(), ec)
	got, ok := auth.FromContext(ctx)
	require.True(t, ok)
	require.Same(t, ec, got)
	store, ok := sessions.FromContext(ctx)
	require.True(t, ok)
	require.Same(t, ec.Store, store)
}
