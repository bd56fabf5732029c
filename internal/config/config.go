package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config interface {
	EnvConfig
	BackendConfig
	SessionConfig
	GoogleConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetBaseURL() string
	GetRealtimeURL() string
	GetGeocodingKey() string
	GetObjectStorageURL() string
}

type BackendConfig interface {
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
	GetAccessCookieName() string
	GetBreakerTimeout() time.Duration
	GetBreakerFailureRatio() float64
	GetBreakerMinRequests() uint32
}

type mainConfig struct {
	EnvVars
	Backend
	Session
	Google
}

var _ Config = mainConfig{}

// GetRealtimeURL returns REALTIME_URL, or the API base URL when it is unset: the backend
// serves its notification channel itself unless told otherwise
func (c mainConfig) GetRealtimeURL() string {
	if u := strings.TrimSuffix(c.RealtimeURL, "/"); u != "" {
		return u
	}
	return c.GetAPIBaseURL()
}

// New reads the configuration from the environment
func New() (Config, error) {
	c := mainConfig{}
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("[config New] parse environment: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c mainConfig) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("[config validate] API_BASE_URL is required")
	}
	if c.RefreshSafetyMargin < 0 || c.RefreshCooldown < 0 {
		return fmt.Errorf("[config validate] refresh margin and cooldown must not be negative")
	}
	if c.RefreshTimeout <= 0 || c.IdentityTimeout <= 0 {
		return fmt.Errorf("[config validate] refresh and identity timeouts must be positive")
	}
	return c.validateProxies()
}
