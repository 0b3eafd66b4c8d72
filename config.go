package authclient

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultWatchInterval is how often the Watcher compares the provider
	// flag with the cached session.
	DefaultWatchInterval = 500 * time.Millisecond

	// DefaultRequestLeeway is the remaining validity under which a token is
	// refreshed before being attached to a request.
	DefaultRequestLeeway = 20 * time.Second

	// DefaultExpiredLeeway is the leeway used when the provider reports the
	// token as expired.
	DefaultExpiredLeeway = 60 * time.Second

	// EnvNonInteractive forces non-interactive startup when set to "1".
	EnvNonInteractive = "AUTH_NON_INTERACTIVE"
)

// Config is the file level configuration.
type Config struct {
	Session   SessionConfig   `yaml:"session"`
	Provider  ProviderConfig  `yaml:"provider"`
	Customers CustomersConfig `yaml:"customers"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SessionConfig tunes the session engine. The intervals are configuration,
// not invariants: keep RequestLeeway above the worst request latency and
// WatchInterval well below the token lifetime.
type SessionConfig struct {
	WatchInterval  time.Duration `yaml:"-"`
	RequestLeeway  time.Duration `yaml:"-"`
	ExpiredLeeway  time.Duration `yaml:"-"`
	NonInteractive bool          `yaml:"non_interactive"`
	// RoleClientID limits client scoped roles to one client. Empty merges
	// the roles of every client.
	RoleClientID string `yaml:"role_client_id"`

	// Raw string values for YAML unmarshaling
	WatchIntervalRaw string `yaml:"watch_interval"`
	RequestLeewayRaw string `yaml:"request_leeway"`
	ExpiredLeewayRaw string `yaml:"expired_leeway"`
}

// ProviderConfig holds the identity provider settings.
type ProviderConfig struct {
	Issuer                string   `yaml:"issuer"`
	ClientID              string   `yaml:"client_id"`
	ClientSecret          string   `yaml:"client_secret"`
	RedirectURL           string   `yaml:"redirect_url"`
	PostLogoutRedirectURL string   `yaml:"post_logout_redirect_url"`
	Scopes                []string `yaml:"scopes"`
	// CredentialsFile stores credentials as JSON. Ignored when
	// CredentialsDatabase is set.
	CredentialsFile string `yaml:"credentials_file"`
	// CredentialsDatabase is a SQLite DSN used to store credentials.
	CredentialsDatabase string `yaml:"credentials_database"`
}

// CustomersConfig configures the backend customer sync collaborator.
type CustomersConfig struct {
	Enabled    bool   `yaml:"enabled"`
	GatewayURL string `yaml:"gateway_url"`
	Path       string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		WatchInterval: DefaultWatchInterval,
		RequestLeeway: DefaultRequestLeeway,
		ExpiredLeeway: DefaultExpiredLeeway,
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Session: DefaultSessionConfig(),
		Provider: ProviderConfig{
			Scopes: []string{"openid", "profile", "email", "offline_access"},
		},
		Customers: CustomersConfig{
			Path: "/customer-service/api/customers/me",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "pretty",
		},
	}
}

// Validate checks the session settings.
func (c SessionConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.WatchInterval, validation.By(positiveDuration)),
		validation.Field(&c.RequestLeeway, validation.By(positiveDuration)),
		validation.Field(&c.ExpiredLeeway, validation.By(positiveDuration)),
	)
}

// Validate checks the provider settings.
func (c ProviderConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Issuer, validation.Required, is.URL),
		validation.Field(&c.ClientID, validation.Required),
		validation.Field(&c.RedirectURL, is.URL),
		validation.Field(&c.PostLogoutRedirectURL, is.URL),
	)
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Provider.Validate(); err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	if c.Customers.Enabled {
		err := validation.ValidateStruct(&c.Customers,
			validation.Field(&c.Customers.GatewayURL, validation.Required, is.URL),
		)
		if err != nil {
			return fmt.Errorf("customers: %w", err)
		}
	}
	return nil
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration data on top of DefaultConfig.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Session.parseDurations(); err != nil {
		return nil, err
	}

	if os.Getenv(EnvNonInteractive) == "1" {
		cfg.Session.NonInteractive = true
	}

	return cfg, nil
}

func (c *SessionConfig) parseDurations() error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"watch_interval", c.WatchIntervalRaw, &c.WatchInterval},
		{"request_leeway", c.RequestLeewayRaw, &c.RequestLeeway},
		{"expired_leeway", c.ExpiredLeewayRaw, &c.ExpiredLeeway},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing session.%s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.WatchInterval <= 0 {
		c.WatchInterval = DefaultWatchInterval
	}
	if c.RequestLeeway <= 0 {
		c.RequestLeeway = DefaultRequestLeeway
	}
	if c.ExpiredLeeway <= 0 {
		c.ExpiredLeeway = DefaultExpiredLeeway
	}
	return c
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

func positiveDuration(value any) error {
	d, ok := value.(time.Duration)
	if !ok {
		return errors.New("must be a duration")
	}
	if d <= 0 {
		return errors.New("must be positive")
	}
	return nil
}
