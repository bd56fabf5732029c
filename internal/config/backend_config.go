package config

import (
	"strings"
	"time"
)

type Backend struct {
	APIBaseURL       string        `env:"API_BASE_URL" envDefault:"http://localhost:5000"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	AccessCookieName string        `env:"ACCESS_COOKIE_NAME" envDefault:"access_token_cookie"`

	BreakerTimeout      time.Duration `env:"BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerFailureRatio float64       `env:"BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests  uint32        `env:"BREAKER_MIN_REQUESTS" envDefault:"5"`
}

var _ BackendConfig = Backend{}

func (b Backend) GetAPIBaseURL() string {
	return strings.TrimSuffix(b.APIBaseURL, "/")
}

func (b Backend) GetRequestTimeout() time.Duration {
	return b.RequestTimeout
}

func (b Backend) GetAccessCookieName() string {
	return b.AccessCookieName
}

func (b Backend) GetBreakerTimeout() time.Duration {
	return b.BreakerTimeout
}

func (b Backend) GetBreakerFailureRatio() float64 {
	return b.BreakerFailureRatio
}

func (b Backend) GetBreakerMinRequests() uint32 {
	return b.BreakerMinRequests
}
