package users

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/readit-web/apiclient"
	apperrors "github.com/jrsteele09/readit-web/internal/errors"
)

// Client is the subset of apiclient.Client the account endpoints need
type Client interface {
	// Request refreshes and retries once on 401
	Request(ctx context.Context, req apiclient.Request, out any) error
	// Do is a single attempt
	Do(ctx context.Context, req apiclient.Request, out any) error
}

// API calls the backend's /api/users endpoints
type API struct {
	client Client
}

func NewAPI(client Client) *API {
	return &API{client: client}
}

func post(path string, body any) apiclient.Request {
	return apiclient.Request{Method: http.MethodPost, Path: path, Body: body}
}

// Me performs the identity check
func (a *API) Me(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := a.client.Request(ctx, apiclient.Request{Method: http.MethodGet, Path: "/api/users/me"}, &id); err != nil {
		return nil, apperrors.Wrapf(err, "[users Me] identity check")
	}
	return &id, nil
}

// ExchangeRefresh asks the backend for a new access token. It is a single attempt: a
// 401 here means the refresh credential itself is gone.
func (a *API) ExchangeRefresh(ctx context.Context) (time.Time, error) {
	var resp refreshResponse
	if err := a.client.Do(ctx, post("/api/users/refresh", nil), &resp); err != nil {
		return time.Time{}, apperrors.Wrapf(err, "[users ExchangeRefresh] refresh")
	}
	if resp.AccessTokenExpiresAt.IsZero() {
		return time.Time{}, apperrors.Wrapf(apperrors.ErrInternal, "[users ExchangeRefresh] response has no accessTokenExpiresAt")
	}
	return resp.AccessTokenExpiresAt.Time, nil
}

func (a *API) Login(ctx context.Context, creds Credentials) (*LoginResponse, error) {
	var resp LoginResponse
	if err := a.client.Do(ctx, post("/api/users/login", creds), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GoogleLogin exchanges a Google authorization code for a backend session
func (a *API) GoogleLogin(ctx context.Context, code string) (*LoginResponse, error) {
	var resp LoginResponse
	if err := a.client.Do(ctx, post("/api/users/google-login", map[string]string{"code": code}), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *API) Logout(ctx context.Context) (*Message, error) {
	var resp Message
	if err := a.client.Do(ctx, post("/api/users/logout", nil), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *API) Signup(ctx context.Context, s Signup) (*UserRef, error) {
	var resp UserRef
	if err := a.client.Do(ctx, post("/api/users/signup", s), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *API) message(ctx context.Context, retry bool, path string, body any) (*Message, error) {
	var resp Message
	call := a.client.Do
	if retry {
		call = a.client.Request
	}
	if err := call(ctx, post(path, body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *API) SendVerificationEmail(ctx context.Context, userID string) (*Message, error) {
	return a.message(ctx, false, "/api/users/send-verification-email", map[string]string{"userId": userID})
}

func (a *API) VerifyEmail(ctx context.Context, userID, code string) (*Message, error) {
	return a.message(ctx, false, "/api/users/verify-email", map[string]string{"userId": userID, "code": code})
}

func (a *API) ResendVerificationCode(ctx context.Context, userID string) (*Message, error) {
	return a.message(ctx, false, "/api/users/resend-verification-code", map[string]string{"userId": userID})
}

// RequestPasswordReset starts the forgotten-password flow; the reply names the user
func (a *API) RequestPasswordReset(ctx context.Context, emailAddress string) (*UserRef, error) {
	var resp UserRef
	if err := a.client.Request(ctx, post("/api/users/forgot-password", map[string]string{"emailAddress": emailAddress}), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (a *API) VerifyResetCode(ctx context.Context, userID, code string) (*Message, error) {
	return a.message(ctx, true, "/api/users/verify-reset-code", map[string]string{"userId": userID, "code": code})
}

func (a *API) ResetPassword(ctx context.Context, userID, code, newPassword string) (*Message, error) {
	return a.message(ctx, true, "/api/users/reset-password", map[string]string{
		"userId":      userID,
		"code":        code,
		"newPassword": newPassword,
	})
}

func (a *API) ResendResetCode(ctx context.Context, userID string) (*Message, error) {
	return a.message(ctx, true, "/api/users/resend-reset-code", map[string]string{"userId": userID})
}

func (a *API) RequestChangePasswordCode(ctx context.Context) (*Message, error) {
	return a.message(ctx, true, "/api/users/change-password/request-code", nil)
}

func (a *API) VerifyChangePasswordCode(ctx context.Context, code string) (*Message, error) {
	return a.message(ctx, true, "/api/users/change-password/verify-code", map[string]string{"code": code})
}

func (a *API) ChangePassword(ctx context.Context, code, currentPassword, newPassword string) (*Message, error) {
	return a.message(ctx, true, "/api/users/change-password", map[string]string{
		"code":            code,
		"currentPassword": currentPassword,
		"newPassword":     newPassword,
	})
}

func (a *API) ResendChangePasswordCode(ctx context.Context) (*Message, error) {
	return a.message(ctx, true, "/api/users/change-password/resend-code", nil)
}

// UsernameFromUserID resolves a user id to its display name
func (a *API) UsernameFromUserID(ctx context.Context, userID string) (string, error) {
	var resp struct {
		Username string `json:"username"`
	}
	path := "/api/users/username/" + url.PathEscape(userID)
	if err := a.client.Request(ctx, apiclient.Request{Method: http.MethodGet, Path: path}, &resp); err != nil {
		return "", err
	}
	return resp.Username, nil
}
