package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/skytap/internal/privacy"
)

const (
	DefaultConfigFile      = "config.yaml"
	DefaultEnvFile         = ".env"
	DefaultPasswordEnv     = "BLUESKY_APP_PASSWORD"
	DefaultSearchTerm      = "bluesky"
	DefaultAPIURL          = "https://bsky.social/xrpc"
	DefaultPollInterval    = time.Minute
	MinPollInterval        = 30 * time.Second
	DefaultInitialDelay    = 5 * time.Second
	DefaultRefreshInterval = 2 * time.Minute
	DefaultRequestTimeout  = 30 * time.Second
	DefaultPageSize        = 100
	MaxPageSize            = 100
	DefaultMaxPages        = 50
	DefaultRateLimit       = 2.0
	DefaultTopic           = "bluesky"
	DefaultSink            = "store"
	DefaultPollEvery       = time.Second
	DefaultDriver          = "sqlite"
	DefaultStoragePath     = ".skytap/skytap.db"
	DefaultDSNEnv          = "SKYTAP_POSTGRES_DSN"
	DefaultRetainDays      = 30
	DefaultMetricsAddr     = ":9090"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Duration wraps time.Duration for YAML unmarshaling from strings like "90s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Bluesky BlueskyConfig `yaml:"bluesky"`
	Output  OutputConfig  `yaml:"output"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
	Privacy PrivacyConfig `yaml:"privacy"`
}

type BlueskyConfig struct {
	Identity        string    `yaml:"identity"`
	PasswordEnv     string    `yaml:"password_env"`
	PasswordKeyring bool      `yaml:"password_keyring"`
	SearchTerm      string    `yaml:"search_term"`
	APIURL          string    `yaml:"api_url"`
	PollInterval    Duration  `yaml:"poll_interval"`
	InitialDelay    *Duration `yaml:"initial_delay"`
	RefreshInterval Duration  `yaml:"refresh_interval"`
	RequestTimeout  Duration  `yaml:"request_timeout"`
	PageSize        int       `yaml:"page_size"`
	MaxPages        *int      `yaml:"max_pages"`
	RateLimit       *float64  `yaml:"rate_limit"`

	// Resolved at load time.
	Password       string `yaml:"-"`
	PasswordSource string `yaml:"-"` // "env", "keyring" or ""
}

type OutputConfig struct {
	Topic     string   `yaml:"topic"`
	Sink      string   `yaml:"sink"`
	PollEvery Duration `yaml:"poll_every"`
}

type StorageConfig struct {
	Driver     string `yaml:"driver"`
	Path       string `yaml:"path"`
	DSNEnv     string `yaml:"dsn_env"`
	RetainDays *int   `yaml:"retain_days"` // 0 keeps everything

	// Resolved from DSNEnv at load time.
	DSN string `yaml:"-"`
}

type MetricsConfig struct {
	Addr *string `yaml:"addr"`
}

type PrivacyConfig struct {
	Redact RedactConfig `yaml:"redact"`
}

type RedactConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Patterns []string `yaml:"patterns"`
}

// MetricsAddr returns the listen address, "" when disabled.
func (c *Config) MetricsAddr() string {
	if c.Metrics.Addr == nil {
		return DefaultMetricsAddr
	}
	return *c.Metrics.Addr
}

// Load reads .env and config.yaml from dir, applies defaults, resolves
// secrets, and validates.
func Load(dir string) (*Config, error) {
	return load(dir, true)
}

// LoadStorage is Load for commands that only touch storage: Bluesky
// credentials are resolved but not required.
func LoadStorage(dir string) (*Config, error) {
	return load(dir, false)
}

func load(dir string, needCredentials bool) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	// Variables already set in the environment win over .env.
	envPath := filepath.Join(dir, DefaultEnvFile)
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envPath, err)
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	resolveSecrets(&cfg, needCredentials)

	if err := validate(&cfg, needCredentials); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	b := &cfg.Bluesky
	if b.PasswordEnv == "" {
		b.PasswordEnv = DefaultPasswordEnv
	}
	if b.SearchTerm == "" {
		b.SearchTerm = DefaultSearchTerm
	}
	if b.APIURL == "" {
		b.APIURL = DefaultAPIURL
	}
	b.APIURL = strings.TrimRight(b.APIURL, "/")
	if b.PollInterval.Duration == 0 {
		b.PollInterval.Duration = DefaultPollInterval
	}
	if b.InitialDelay == nil {
		b.InitialDelay = &Duration{Duration: DefaultInitialDelay}
	}
	if b.RefreshInterval.Duration == 0 {
		b.RefreshInterval.Duration = DefaultRefreshInterval
	}
	if b.RequestTimeout.Duration == 0 {
		b.RequestTimeout.Duration = DefaultRequestTimeout
	}
	if b.PageSize == 0 {
		b.PageSize = DefaultPageSize
	}
	if b.MaxPages == nil {
		n := DefaultMaxPages
		b.MaxPages = &n
	}
	if b.RateLimit == nil {
		r := DefaultRateLimit
		b.RateLimit = &r
	}

	if cfg.Output.Topic == "" {
		cfg.Output.Topic = DefaultTopic
	}
	if cfg.Output.Sink == "" {
		cfg.Output.Sink = DefaultSink
	}
	if cfg.Output.PollEvery.Duration == 0 {
		cfg.Output.PollEvery.Duration = DefaultPollEvery
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DefaultDriver
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.DSNEnv == "" {
		cfg.Storage.DSNEnv = DefaultDSNEnv
	}
	if cfg.Storage.RetainDays == nil {
		n := DefaultRetainDays
		cfg.Storage.RetainDays = &n
	}
}

func validate(cfg *Config, needCredentials bool) error {
	b := cfg.Bluesky
	if needCredentials {
		if err := validateCredentials(b); err != nil {
			return err
		}
	}
	if strings.TrimSpace(b.SearchTerm) == "" {
		return invalid("bluesky.search_term must not be blank")
	}
	if u, err := url.Parse(b.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("bluesky.api_url %q is not an http(s) URL", b.APIURL)
	}
	if b.PollInterval.Duration < MinPollInterval {
		return invalid("bluesky.poll_interval %s is below the minimum %s", b.PollInterval.Duration, MinPollInterval)
	}
	if b.InitialDelay.Duration < 0 || b.RefreshInterval.Duration < 0 || b.RequestTimeout.Duration < 0 {
		return invalid("bluesky durations must not be negative")
	}
	if b.PageSize < 1 || b.PageSize > MaxPageSize {
		return invalid("bluesky.page_size %d out of range 1..%d", b.PageSize, MaxPageSize)
	}
	if *b.MaxPages < 0 {
		return invalid("bluesky.max_pages must not be negative")
	}
	if *b.RateLimit < 0 {
		return invalid("bluesky.rate_limit must not be negative")
	}

	switch cfg.Output.Sink {
	case "store", "stdout":
	default:
		return invalid("output.sink: unknown sink %q (want store or stdout)", cfg.Output.Sink)
	}
	if cfg.Output.PollEvery.Duration < 0 {
		return invalid("output.poll_every must not be negative")
	}

	switch cfg.Storage.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Storage.DSN == "" {
			return invalid("storage.driver postgres needs a DSN in $%s", cfg.Storage.DSNEnv)
		}
	default:
		return invalid("storage.driver: unknown driver %q (want sqlite or postgres)", cfg.Storage.Driver)
	}
	if *cfg.Storage.RetainDays < 0 {
		return invalid("storage.retain_days must not be negative")
	}

	if cfg.Privacy.Redact.Enabled {
		if _, err := privacy.Compile(cfg.Privacy.Redact.Patterns); err != nil {
			return invalid("privacy.redact.patterns: %v", err)
		}
	}

	return nil
}

func validateCredentials(b BlueskyConfig) error {
	if strings.TrimSpace(b.Identity) == "" {
		return invalid("bluesky.identity is required")
	}
	if b.Password == "" {
		if b.PasswordKeyring {
			return invalid("bluesky password not found in $%s or the OS keyring (run skytap login)", b.PasswordEnv)
		}
		return invalid("bluesky password not set: export %s or enable password_keyring", b.PasswordEnv)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
