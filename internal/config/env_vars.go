package config

import (
	"fmt"
	"strings"
)

type EnvVars struct {
	Port             string `env:"PORT" envDefault:"8080"`
	AppName          string `env:"APP_NAME" envDefault:"Readit"`
	Env              string `env:"ENV" envDefault:"DEV"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	BaseURL          string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	RealtimeURL      string `env:"REALTIME_URL"`
	GeocodingKey     string `env:"GEOCODING_KEY"`
	ObjectStorageURL string `env:"OBJECT_STORAGE_URL"`
}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port == "" {
		port = "8080"
	}
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return e.Env
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

// GetBaseURL returns the public URL of this web front (e.g., "https://readit.example.com")
// It is used to build the Google sign-in redirect URL
func (e EnvVars) GetBaseURL() string {
	return strings.TrimSuffix(e.BaseURL, "/")
}

func (e EnvVars) GetGeocodingKey() string {
	return e.GeocodingKey
}

func (e EnvVars) GetObjectStorageURL() string {
	return e.ObjectStorageURL
}
