package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g.
// FINANZEN_FIREBASE_DATABASEURL sets firebase.databaseurl.
const EnvPrefix = "FINANZEN_"

// Backends and auth modes.
const (
	BackendFirebase = "firebase"
	BackendMemory   = "memory"

	AuthFirebase = "firebase"
	AuthLocal    = "local"
)

// Config holds all application configuration.
// Precedence: struct defaults < YAML file < environment.
type Config struct {
	Server     Server     `koanf:"server"`
	Store      Store      `koanf:"store"`
	Firebase   Firebase   `koanf:"firebase"`
	Auth       Auth       `koanf:"auth"`
	Google     Google     `koanf:"google"`
	Gemini     Gemini     `koanf:"gemini"`
	Greeting   Greeting   `koanf:"greeting"`
	HTTP       HTTP       `koanf:"http"`
	Resilience Resilience `koanf:"resilience"`
	Session    Session    `koanf:"session"`
	Telemetry  Telemetry  `koanf:"telemetry"`
}

type Server struct {
	Port            int           `koanf:"port"`
	LogLevel        string        `koanf:"loglevel"`
	Timezone        string        `koanf:"timezone"`
	ShutdownTimeout time.Duration `koanf:"shutdowntimeout"`
	CORSOrigin      string        `koanf:"corsorigin"`
}

type Store struct {
	// Backend is "firebase" or "memory".
	Backend string `koanf:"backend"`
}

type Firebase struct {
	DatabaseURL     string `koanf:"databaseurl"`
	APIKey          string `koanf:"apikey"`
	ProjectID       string `koanf:"projectid"`
	CredentialsFile string `koanf:"credentialsfile"`
	DatabaseSecret  string `koanf:"databasesecret"`
	IdentityURL     string `koanf:"identityurl"`
	SecureTokenURL  string `koanf:"securetokenurl"`
	CertsURL        string `koanf:"certsurl"`
	MaxStreams      int    `koanf:"maxstreams"`
}

type Auth struct {
	// Mode is "firebase" or "local".
	Mode       string        `koanf:"mode"`
	JWTSecret  string        `koanf:"jwtsecret"`
	AccessTTL  time.Duration `koanf:"accessttl"`
	RefreshTTL time.Duration `koanf:"refreshttl"`
	RateLimit  float64       `koanf:"ratelimit"`
	RateBurst  int           `koanf:"rateburst"`
}

type Google struct {
	ClientID     string `koanf:"clientid"`
	ClientSecret string `koanf:"clientsecret"`
	RedirectURL  string `koanf:"redirecturl"`
}

type Gemini struct {
	APIKey string `koanf:"apikey"`
	Model  string `koanf:"model"`
}

type Greeting struct {
	URL string `koanf:"url"`
}

type HTTP struct {
	Timeout time.Duration `koanf:"timeout"`
}

type Resilience struct {
	MaxRetries      int           `koanf:"maxretries"`
	ModelMaxRetries int           `koanf:"modelmaxretries"`
	InitialBackoff  time.Duration `koanf:"initialbackoff"`
	MaxConcurrency  int           `koanf:"maxconcurrency"`
}

type Session struct {
	TTL             time.Duration `koanf:"ttl"`
	CleanupInterval time.Duration `koanf:"cleanupinterval"`
	CertCacheTTL    time.Duration `koanf:"certcachettl"`
}

type Telemetry struct {
	ServiceName  string `koanf:"servicename"`
	OTLPEndpoint string `koanf:"otlpendpoint"`
}

// Defaults returns the configuration used when nothing else is provided.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:            8080,
			LogLevel:        "info",
			Timezone:        "America/Sao_Paulo",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: Store{Backend: BackendMemory},
		Firebase: Firebase{
			IdentityURL:    "https://identitytoolkit.googleapis.com/v1",
			SecureTokenURL: "https://securetoken.googleapis.com/v1",
			CertsURL:       "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com",
			MaxStreams:     500,
		},
		Auth: Auth{
			Mode:       AuthLocal,
			JWTSecret:  "finanzen-default-dev-secret-change-me",
			AccessTTL:  time.Hour,
			RefreshTTL: 30 * 24 * time.Hour,
			RateLimit:  5,
			RateBurst:  10,
		},
		Gemini: Gemini{Model: "gemini-2.0-flash"},
		HTTP:   HTTP{Timeout: 15 * time.Second},
		Resilience: Resilience{
			MaxRetries:      3,
			ModelMaxRetries: 0,
			InitialBackoff:  100 * time.Millisecond,
			MaxConcurrency:  50,
		},
		Session: Session{
			TTL:             30 * time.Minute,
			CleanupInterval: time.Minute,
			CertCacheTTL:    time.Hour,
		},
		Telemetry: Telemetry{ServiceName: "finanzen-bfa"},
	}
}

// Load reads configuration from struct defaults, the optional YAML file at
// path and FINANZEN_* environment variables. A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, EnvPrefix)), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the combinations that cannot work at runtime.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendFirebase:
		if c.Firebase.DatabaseURL == "" {
			return errors.New("store.backend=firebase requires firebase.databaseurl")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}

	switch c.Auth.Mode {
	case AuthLocal:
		if c.Auth.JWTSecret == "" {
			return errors.New("auth.mode=local requires auth.jwtsecret")
		}
	case AuthFirebase:
		if c.Firebase.APIKey == "" || c.Firebase.ProjectID == "" {
			return errors.New("auth.mode=firebase requires firebase.apikey and firebase.projectid")
		}
	default:
		return fmt.Errorf("unknown auth.mode %q", c.Auth.Mode)
	}
	return nil
}

// Location resolves the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GoogleOAuthEnabled reports whether the Google code flow can be offered.
func (c *Config) GoogleOAuthEnabled() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != "" && c.Google.RedirectURL != ""
}
