package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/errprop/errprop/pkg/propagation"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort          = 8080
	DefaultSessionTTL        = 30 * time.Minute
	DefaultMaxSessions       = 1000
	DefaultMaxTerms          = 64
	DefaultUnit              = "cm"
	DefaultBroadcastInterval = 5 * time.Second
	DefaultAPIKeyHeader      = "X-API-Key"
	DefaultLogLevel          = "info"
)

// Config holds the errprop-server configuration. The same struct is decoded
// from YAML or, for *.toml paths, from TOML.
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Session    SessionConfig    `yaml:"session" toml:"session"`
	Calculator CalculatorConfig `yaml:"calculator" toml:"calculator"`
	Display    DisplayConfig    `yaml:"display" toml:"display"`
	WS         WSConfig         `yaml:"ws" toml:"ws"`
	Log        LogConfig        `yaml:"log" toml:"log"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	// HTTPPort serves the UI, the REST API, the WebSocket hub and /metrics
	// (default 8080).
	HTTPPort int `yaml:"http_port" toml:"http_port"`

	// Auth configures how /api/ clients authenticate.
	Auth AuthConfig `yaml:"auth" toml:"auth"`

	// CORS lists the browser origins allowed to call /api/.
	CORS CORSConfig `yaml:"cors" toml:"cors"`
}

// AuthConfig controls client authentication on the REST API.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode" toml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env" toml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "X-API-Key".
	Header string `yaml:"header" toml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "X-API-Key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAPIKeyHeader
}

// CORSConfig holds cross-origin settings for the REST API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// SessionConfig controls in-memory session retention.
type SessionConfig struct {
	// TTL is how long an untouched session survives. Default: 30m.
	TTL time.Duration `yaml:"ttl" toml:"ttl"`

	// MaxSessions caps live sessions; creation fails beyond it.
	MaxSessions int `yaml:"max_sessions" toml:"max_sessions"`

	// MaxTerms caps the length of a single session's term list.
	MaxTerms int `yaml:"max_terms" toml:"max_terms"`
}

// CalculatorConfig holds the append policy and the seed term.
type CalculatorConfig struct {
	// DefaultUnit pre-fills the unit field of the add form.
	DefaultUnit string `yaml:"default_unit" toml:"default_unit"`

	// InitialTerm seeds every new session.
	InitialTerm TermConfig `yaml:"initial_term" toml:"initial_term"`

	// StrictUnits rejects terms whose unit differs from the first term.
	StrictUnits bool `yaml:"strict_units" toml:"strict_units"`

	// AllowNegativeErrors accepts negative absolute errors as typed.
	AllowNegativeErrors bool `yaml:"allow_negative_errors" toml:"allow_negative_errors"`
}

// TermConfig is a term literal in the config file.
type TermConfig struct {
	Value float64 `yaml:"value" toml:"value"`
	Error float64 `yaml:"error" toml:"error"`
	Unit  string  `yaml:"unit" toml:"unit"`
}

// Input converts tc into a propagation.Input.
func (tc TermConfig) Input() propagation.Input {
	return propagation.Input{Value: tc.Value, Error: tc.Error, Unit: tc.Unit, Operation: propagation.OpAdd}
}

// DisplayConfig sets the decimals of each rendered number.
type DisplayConfig struct {
	HeadlineDecimals int `yaml:"headline_decimals" toml:"headline_decimals"`
	DetailDecimals   int `yaml:"detail_decimals" toml:"detail_decimals"`
	RelativeDecimals int `yaml:"relative_decimals" toml:"relative_decimals"`
}

// Precision converts d into a propagation.Precision.
func (d DisplayConfig) Precision() propagation.Precision {
	return propagation.Precision{
		Headline: d.HeadlineDecimals,
		Detail:   d.DetailDecimals,
		Relative: d.RelativeDecimals,
	}
}

// WSConfig controls the WebSocket hub.
type WSConfig struct {
	// BroadcastInterval is how often connected clients get a refresh even
	// when nothing changed. Default: 5s.
	BroadcastInterval time.Duration `yaml:"broadcast_interval" toml:"broadcast_interval"`
}

// LogConfig controls the slog level.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level" toml:"level"`
}

// SlogLevel maps Level onto slog. Unknown values fall back to info; validate
// rejects them before that can happen.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Policy returns the append policy the session store applies.
func (c *Config) Policy() propagation.Policy {
	return propagation.Policy{
		StrictUnits:         c.Calculator.StrictUnits,
		AllowNegativeErrors: c.Calculator.AllowNegativeErrors,
		MaxTerms:            c.Session.MaxTerms,
	}
}

// Load reads and parses the config file at path. Paths ending in .toml are
// decoded as TOML, everything else as YAML. Missing fields are filled with
// defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := Defaults()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("server config: parse toml: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values. The server
// runs on it when no config file is given.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			Auth:     AuthConfig{Mode: "none"},
			CORS: CORSConfig{
				AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
			},
		},
		Session: SessionConfig{
			TTL:         DefaultSessionTTL,
			MaxSessions: DefaultMaxSessions,
			MaxTerms:    DefaultMaxTerms,
		},
		Calculator: CalculatorConfig{
			DefaultUnit: DefaultUnit,
			InitialTerm: TermConfig{Value: 3.2, Error: 0.5, Unit: DefaultUnit},
		},
		Display: DisplayConfig{
			HeadlineDecimals: propagation.DefaultPrecision.Headline,
			DetailDecimals:   propagation.DefaultPrecision.Detail,
			RelativeDecimals: propagation.DefaultPrecision.Relative,
		},
		WS:  WSConfig{BroadcastInterval: DefaultBroadcastInterval},
		Log: LogConfig{Level: DefaultLogLevel},
	}
}

// validate checks structural constraints on the parsed configuration and
// reports every violation at once.
func validate(cfg *Config) error {
	var errs *multierror.Error
	add := func(format string, args ...any) {
		errs = multierror.Append(errs, fmt.Errorf(format, args...))
	}

	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		add("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		add("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Session.TTL <= 0 {
		add("session.ttl must be positive")
	}
	if cfg.Session.MaxSessions < 0 {
		add("session.max_sessions must not be negative")
	}
	if cfg.Session.MaxTerms < 0 {
		add("session.max_terms must not be negative")
	}
	if cfg.Calculator.InitialTerm.Error < 0 && !cfg.Calculator.AllowNegativeErrors {
		add("calculator.initial_term.error must not be negative")
	}
	for name, d := range map[string]int{
		"display.headline_decimals": cfg.Display.HeadlineDecimals,
		"display.detail_decimals":   cfg.Display.DetailDecimals,
		"display.relative_decimals": cfg.Display.RelativeDecimals,
	} {
		if d < 0 || d > 12 {
			add("%s %d is out of range [0, 12]", name, d)
		}
	}
	if cfg.WS.BroadcastInterval <= 0 {
		add("ws.broadcast_interval must be positive")
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		add("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}

	if errs == nil {
		return nil
	}
	errs.ErrorFormat = func(es []error) string {
		msgs := make([]string, len(es))
		for i, e := range es {
			msgs[i] = e.Error()
		}
		return strings.Join(msgs, "; ")
	}
	return errs
}
