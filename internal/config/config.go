// Package config loads client settings with the precedence
// defaults < lantern.yaml < .env/environment. Flags on top are the caller's
// business.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultServerURL    = "http://127.0.0.1:5000"
	defaultPollSeconds  = 2
	defaultHTTPTimeout  = 10
	defaultConfigFile   = "lantern.yaml"
	envServerURL        = "LANTERN_SERVER_URL"
	envPollSeconds      = "LANTERN_POLL_INTERVAL"
	envHTTPTimeout      = "LANTERN_HTTP_TIMEOUT"
	envPhoneNumber      = "LANTERN_PHONE_NUMBER"
	envAltScreen        = "LANTERN_ALT_SCREEN"
	envConfigFileEnvVar = "LANTERN_CONFIG"
)

// Config holds everything the client needs to reach the collaborator.
type Config struct {
	ServerURL          string `yaml:"server_url"`
	PollSeconds        int    `yaml:"poll_interval_seconds"`
	HTTPTimeoutSeconds int    `yaml:"http_timeout_seconds"`
	PhoneNumber        string `yaml:"phone_number"`
	AltScreen          *bool  `yaml:"alt_screen"`
}

// Load reads the optional config file, then .env, then the environment.
// A missing config file is fine; a malformed one is an error.
func Load() (Config, error) {
	cfg := Config{
		ServerURL:          defaultServerURL,
		PollSeconds:        defaultPollSeconds,
		HTTPTimeoutSeconds: defaultHTTPTimeout,
	}

	path := EnvOr(envConfigFileEnvVar, defaultConfigFile)
	if err := loadFile(path, &cfg); err != nil {
		return Config{}, err
	}

	// .env entries become environment variables for the reads below.
	_ = godotenv.Load()

	cfg.ServerURL = EnvOr(envServerURL, cfg.ServerURL)
	cfg.PollSeconds = EnvOrInt(envPollSeconds, cfg.PollSeconds)
	cfg.HTTPTimeoutSeconds = EnvOrInt(envHTTPTimeout, cfg.HTTPTimeoutSeconds)
	cfg.PhoneNumber = EnvOr(envPhoneNumber, cfg.PhoneNumber)
	if value := strings.TrimSpace(os.Getenv(envAltScreen)); value != "" {
		alt := EnvOrBool(envAltScreen, true)
		cfg.AltScreen = &alt
	}

	if cfg.PollSeconds < 1 {
		cfg.PollSeconds = defaultPollSeconds
	}
	if cfg.HTTPTimeoutSeconds < 1 {
		cfg.HTTPTimeoutSeconds = defaultHTTPTimeout
	}
	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// EnvOr returns the trimmed environment value or the fallback when unset.
func EnvOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func EnvOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func EnvOrBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
