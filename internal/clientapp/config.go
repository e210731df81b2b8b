package clientapp

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/phillip-england/popsuite/internal/backend"
	"github.com/phillip-england/popsuite/internal/cascade"
)

const (
	defaultSessionCookie = "popsuite_session"
	sweepInterval        = time.Minute
)

type Config struct {
	Addr          string
	APIBaseURL    string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	FetchTimeout  time.Duration
	SubmitTimeout time.Duration
	RetryMax      int
	SessionCookie string
	BackendCookie string
	SessionIdle   time.Duration
	SubmitAction  string
	Logger        logrus.FieldLogger
}

func DefaultConfigFromEnv() Config {
	return Config{
		Addr:          envOrDefault("POPSUITE_ADDR", ":3000"),
		APIBaseURL:    envOrDefault("POPSUITE_API_BASE_URL", "http://localhost:5000"),
		ReadTimeout:   envDuration("POPSUITE_READ_TIMEOUT", 5*time.Second),
		WriteTimeout:  envDuration("POPSUITE_WRITE_TIMEOUT", 30*time.Second),
		FetchTimeout:  envDuration("POPSUITE_FETCH_TIMEOUT", cascade.DefaultFetchTimeout),
		SubmitTimeout: envDuration("POPSUITE_SUBMIT_TIMEOUT", 0),
		RetryMax:      parsePositiveInt(os.Getenv("POPSUITE_RETRY_MAX"), 2),
		SessionCookie: envOrDefault("POPSUITE_SESSION_COOKIE", defaultSessionCookie),
		BackendCookie: envOrDefault("POPSUITE_BACKEND_COOKIE", backend.DefaultSessionCookie),
		SessionIdle:   envDuration("POPSUITE_SESSION_IDLE", 30*time.Minute),
		SubmitAction:  envOrDefault("POPSUITE_SUBMIT_ACTION", backend.DefaultSubmitPath),
	}
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = cascade.DefaultFetchTimeout
	}
	if c.SessionCookie == "" {
		c.SessionCookie = defaultSessionCookie
	}
	if c.BackendCookie == "" {
		c.BackendCookie = backend.DefaultSessionCookie
	}
	if c.SessionIdle <= 0 {
		c.SessionIdle = 30 * time.Minute
	}
	if c.SubmitAction == "" {
		c.SubmitAction = backend.DefaultSubmitPath
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(strings.TrimSpace(os.Getenv(name)))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parsePositiveInt(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
