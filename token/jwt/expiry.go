package jwt

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// DefaultAccessCookieName is the cookie the backend stores the access token in
const DefaultAccessCookieName = "access_token_cookie"

var ErrNoExpiry = errors.New("token has no expiry")

// ExpiryFromToken reads the exp claim of the backend's access token. The signature is
// not verified: the backend owns the key and the value only seeds the cached expiry,
// it never grants access on its own.
func ExpiryFromToken(rawToken string) (time.Time, error) {
	if strings.TrimSpace(rawToken) == "" {
		return time.Time{}, ErrNoExpiry
	}

	token, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("[jwt ExpiryFromToken] parse token: %w", err)
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("[jwt ExpiryFromToken] read exp: %w", err)
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// ExpiryFromCookies finds the named access-token cookie and returns its expiry
func ExpiryFromCookies(cookies []*http.Cookie, name string) (time.Time, error) {
	if name == "" {
		name = DefaultAccessCookieName
	}
	for _, c := range cookies {
		if c.Name == name {
			return ExpiryFromToken(c.Value)
		}
	}
	return time.Time{}, ErrNoExpiry
}
