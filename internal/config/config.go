package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	Auth     AuthConfig
	Provider ProviderConfig
	Redis    RedisConfig
	Calls    CallsConfig
	HTTP     HTTPConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// ProviderConfig configures the upstream telephony provider REST API.
type ProviderConfig struct {
	// BaseURL is the provider API root, e.g. https://api.example.com/v1.
	BaseURL string

	// SubscriberToken is the bearer token for provider requests.
	// Never log this value.
	SubscriberToken string

	// Timeout bounds every provider round trip.
	Timeout time.Duration

	// CallbackBaseURL is this gateway's externally reachable base URL,
	// used to build the status callback target passed at call creation.
	// Optional; when empty no callback URL is sent and status discovery
	// relies on polling alone.
	CallbackBaseURL string
}

type RedisConfig struct {
	Host string
	Port int
}

// CallsConfig tunes the call lifecycle engine.
type CallsConfig struct {
	// PollInterval is how often active sessions are polled for status.
	PollInterval time.Duration

	// EndConfirmTimeout bounds how long a session may sit in Ending
	// before it is force-completed.
	EndConfirmTimeout time.Duration

	// PollFailureThreshold is the number of consecutive transient poll
	// failures before a session is marked Failed.
	PollFailureThreshold int

	// SessionRetention is how long terminal sessions stay queryable
	// before eviction.
	SessionRetention time.Duration
}

type HTTPConfig struct {
	CORSOrigin      string
	RateLimitWindow time.Duration
	RateLimitMax    int
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = optDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = optDuration("JWT_REFRESH_TTL")

	c.Provider.BaseURL = strings.TrimSpace(os.Getenv("PROVIDER_API_URL"))
	c.Provider.SubscriberToken = os.Getenv("PROVIDER_SUBSCRIBER_TOKEN")
	c.Provider.Timeout = optDuration("PROVIDER_TIMEOUT")
	c.Provider.CallbackBaseURL = strings.TrimSpace(os.Getenv("GATEWAY_BASE_URL"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Calls.PollInterval = optDuration("POLL_INTERVAL")
	c.Calls.EndConfirmTimeout = optDuration("END_CONFIRM_TIMEOUT")
	c.Calls.PollFailureThreshold = optInt("POLL_FAILURE_THRESHOLD")
	c.Calls.SessionRetention = optDuration("SESSION_RETENTION")

	c.HTTP.CORSOrigin = strings.TrimSpace(os.Getenv("CORS_ORIGIN"))
	c.HTTP.RateLimitWindow = optDuration("RATE_LIMIT_WINDOW")
	c.HTTP.RateLimitMax = optInt("RATE_LIMIT_MAX")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Provider.BaseURL == "" {
		errs = append(errs, errors.New("PROVIDER_API_URL is required"))
	} else if _, err := url.ParseRequestURI(c.Provider.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("PROVIDER_API_URL must be a valid URL, got %q", c.Provider.BaseURL))
	}
	if c.Provider.SubscriberToken == "" {
		errs = append(errs, errors.New("PROVIDER_SUBSCRIBER_TOKEN is required"))
	}
	if c.Provider.Timeout <= 0 {
		c.Provider.Timeout = 10 * time.Second
	}
	if c.Provider.CallbackBaseURL != "" {
		if _, err := url.ParseRequestURI(c.Provider.CallbackBaseURL); err != nil {
			errs = append(errs, fmt.Errorf("GATEWAY_BASE_URL must be a valid URL, got %q", c.Provider.CallbackBaseURL))
		}
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Calls.PollInterval <= 0 {
		c.Calls.PollInterval = 2 * time.Second
	}
	if c.Calls.EndConfirmTimeout <= 0 {
		c.Calls.EndConfirmTimeout = 30 * time.Second
	}
	if c.Calls.PollFailureThreshold <= 0 {
		c.Calls.PollFailureThreshold = 3
	}
	if c.Calls.SessionRetention <= 0 {
		c.Calls.SessionRetention = 5 * time.Minute
	}

	if c.HTTP.RateLimitWindow <= 0 {
		c.HTTP.RateLimitWindow = 15 * time.Minute
	}
	if c.HTTP.RateLimitMax <= 0 {
		c.HTTP.RateLimitMax = 100
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
