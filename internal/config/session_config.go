package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

type SessionConfig interface {
	GetRefreshSafetyMargin() time.Duration
	GetRefreshCooldown() time.Duration
	GetRefreshTimeout() time.Duration
	GetIdentityTimeout() time.Duration
	GetLoginRateLimit() (rps float64, burst int)
	GetTrustedProxies() []netip.Prefix
}

type Session struct {
	// Refresh when the access token expires within this margin
	RefreshSafetyMargin time.Duration `env:"REFRESH_SAFETY_MARGIN" envDefault:"30s"`
	// Skip refreshes that follow a completed refresh within this window
	RefreshCooldown time.Duration `env:"REFRESH_COOLDOWN" envDefault:"10s"`
	RefreshTimeout  time.Duration `env:"REFRESH_TIMEOUT" envDefault:"10s"`
	IdentityTimeout time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"10s"`

	LoginRateLimitRPS   float64 `env:"LOGIN_RATE_LIMIT_RPS" envDefault:"1"`
	LoginRateLimitBurst int     `env:"LOGIN_RATE_LIMIT_BURST" envDefault:"5"`

	// Addresses or CIDRs of reverse proxies allowed to name the client in
	// X-Forwarded-For and X-Real-IP. Empty trusts no one.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

var _ SessionConfig = Session{}

func (s Session) GetRefreshSafetyMargin() time.Duration {
	return s.RefreshSafetyMargin
}

func (s Session) GetRefreshCooldown() time.Duration {
	return s.RefreshCooldown
}

func (s Session) GetRefreshTimeout() time.Duration {
	return s.RefreshTimeout
}

func (s Session) GetIdentityTimeout() time.Duration {
	return s.IdentityTimeout
}

func (s Session) GetLoginRateLimit() (float64, int) {
	return s.LoginRateLimitRPS, s.LoginRateLimitBurst
}

// GetTrustedProxies returns the parsed TRUSTED_PROXIES; New has already rejected
// malformed entries
func (s Session) GetTrustedProxies() []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, entry := range s.TrustedProxies {
		if p, err := parseProxy(entry); err == nil {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}

// parseProxy accepts a CIDR or a bare address
func parseProxy(entry string) (netip.Prefix, error) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		return p.Masked(), err
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (s Session) validateProxies() error {
	for _, entry := range s.TrustedProxies {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		if _, err := parseProxy(entry); err != nil {
			return fmt.Errorf("[config validate] TRUSTED_PROXIES entry %q: %w", entry, err)
		}
	}
	return nil
}

// DefaultSession returns the session tunables used when no environment is loaded
func DefaultSession() Session {
	return Session{
		RefreshSafetyMargin: 30 * time.Second,
		RefreshCooldown:     10 * time.Second,
		RefreshTimeout:      10 * time.Second,
		IdentityTimeout:     10 * time.Second,
		LoginRateLimitRPS:   1,
		LoginRateLimitBurst: 5,
	}
}
