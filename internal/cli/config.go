package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.yaml"
	cookieFileName = "cookies.json"

	// APIURLEnv overrides the configured backend URL
	APIURLEnv = "READIT_API_URL"

	defaultAPIURL = "http://localhost:5000"
)

// Config is the terminal client's settings file
type Config struct {
	APIURL  string        `yaml:"api_url"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// WebURL is shown in notices that send the user to the browser
	WebURL string `yaml:"web_url,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		APIURL:  defaultAPIURL,
		Timeout: 30 * time.Second,
		WebURL:  "http://localhost:8080",
	}
}

// DefaultDir is ~/.readit
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".readit"
	}
	return filepath.Join(home, ".readit")
}

// LoadConfig reads dir/config.yaml. A missing file yields the defaults; READIT_API_URL
// wins over the file.
func LoadConfig(dir string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filepath.Join(dir, configFileName))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("[cli LoadConfig] read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("[cli LoadConfig] parse %s: %w", configFileName, err)
		}
	}

	if url := os.Getenv(APIURLEnv); url != "" {
		cfg.APIURL = url
	}
	cfg.APIURL = strings.TrimSuffix(cfg.APIURL, "/")
	if cfg.APIURL == "" {
		return Config{}, fmt.Errorf("[cli LoadConfig] api_url is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return cfg, nil
}

// SaveConfig writes cfg to dir/config.yaml
func SaveConfig(dir string, cfg Config) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("[cli SaveConfig] create %s: %w", dir, err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("[cli SaveConfig] encode: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, configFileName), data, 0o600); err != nil {
		return fmt.Errorf("[cli SaveConfig] write: %w", err)
	}
	return nil
}
