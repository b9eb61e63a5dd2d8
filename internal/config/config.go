// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads the account service configuration. Sources are
// layered lowest first: built-in defaults, a YAML file, environment
// variables, then command-line flags the user actually set.
package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Mail drivers.
const (
	MailSMTP = "smtp"
	MailLog  = "log"
)

// Config is the complete service configuration.
type Config struct {
	Port        int    `koanf:"port"`
	BaseURL     string `koanf:"base_url"`
	LogFormat   string `koanf:"log_format"`
	LogLevel    string `koanf:"log_level"`
	MetricsAddr string `koanf:"metrics_addr"`

	Store StoreConfig `koanf:"store"`
	Mail  MailConfig  `koanf:"mail"`
	Reset ResetConfig `koanf:"reset"`
}

// StoreConfig selects and reaches the Record Store.
type StoreConfig struct {
	Driver          string        `koanf:"driver"`
	DatabaseURL     string        `koanf:"database_url"`
	MongoURI        string        `koanf:"mongo_uri"`
	MongoDatabase   string        `koanf:"mongo_database"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// MailConfig selects the Notifier.
type MailConfig struct {
	Driver   string `koanf:"driver"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	TLS      string `koanf:"tls"`
}

// ResetConfig tunes password reset links.
type ResetConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:        3000,
		LogFormat:   "json",
		LogLevel:    "info",
		MetricsAddr: "127.0.0.1:9100",
		Store: StoreConfig{
			Driver:          DriverPostgres,
			MongoURI:        "mongodb://localhost:27017",
			MongoDatabase:   "web_app_db",
			ConnectAttempts: 1,
			ConnectBackoff:  time.Second,
		},
		Mail: MailConfig{
			Driver: MailLog,
			Port:   587,
			TLS:    "opportunistic",
		},
		Reset: ResetConfig{TTL: time.Hour},
	}
}

// envKeys maps environment variables to configuration keys.
var envKeys = map[string]string{
	"PORT":           "port",
	"BASE_URL":       "base_url",
	"LOG_FORMAT":     "log_format",
	"LOG_LEVEL":      "log_level",
	"METRICS_ADDR":   "metrics_addr",
	"STORE_DRIVER":   "store.driver",
	"DATABASE_URL":   "store.database_url",
	"MONGO_URI":      "store.mongo_uri",
	"MONGO_DATABASE": "store.mongo_database",
	"MAIL_DRIVER":    "mail.driver",
	"SMTP_HOST":      "mail.host",
	"SMTP_PORT":      "mail.port",
	"SMTP_USERNAME":  "mail.username",
	"SMTP_PASSWORD":  "mail.password",
	"SMTP_TLS":       "mail.tls",
	"MAIL_FROM":      "mail.from",
	"RESET_TTL":      "reset.ttl",
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"port":             "port",
	"base-url":         "base_url",
	"log-format":       "log_format",
	"log-level":        "log_level",
	"metrics-addr":     "metrics_addr",
	"store-driver":     "store.driver",
	"database-url":     "store.database_url",
	"mongo-uri":        "store.mongo_uri",
	"connect-attempts": "store.connect_attempts",
	"auto-migrate":     "store.auto_migrate",
	"mail-driver":      "mail.driver",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Int("port", d.Port, "HTTP listen port")
	fs.String("base-url", "", "public base URL used in reset links (default http://localhost:<port>)")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.String("metrics-addr", d.MetricsAddr, "metrics and health listen address (empty disables)")
	fs.String("store-driver", d.Store.Driver, "record store driver (postgres, mongo, memory)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("mongo-uri", d.Store.MongoURI, "MongoDB connection URI")
	fs.Int("connect-attempts", d.Store.ConnectAttempts, "record store connection attempts before giving up")
	fs.Bool("auto-migrate", d.Store.AutoMigrate, "apply database migrations on startup")
	fs.String("mail-driver", d.Mail.Driver, "reset email driver (smtp, log)")
}

// Load builds the configuration from the YAML file at path (skipped when
// empty), the process environment and the changed flags in fs (may be nil).
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	return load(path, fs, os.Environ)
}

func load(path string, fs *pflag.FlagSet, environ func() []string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		EnvironFunc: environ,
		TransformFunc: func(name, value string) (string, any) {
			key, ok := envKeys[name]
			if !ok || value == "" {
				return "", nil
			}
			return key, value
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode").Wrap(err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("field", field).Errorf(format, args...)
	}

	if c.Port < 1 || c.Port > 65535 {
		return invalid("port", "port must be between 1 and 65535, got %d", c.Port)
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("base_url", "base URL must be absolute, got %q", c.BaseURL)
	}
	if !slices.Contains([]string{"json", "text"}, c.LogFormat) {
		return invalid("log_format", "log format must be json or text, got %q", c.LogFormat)
	}

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return invalid("store.database_url", "database URL is required for the postgres driver")
		}
	case DriverMongo:
		if c.Store.MongoURI == "" {
			return invalid("store.mongo_uri", "mongo URI is required for the mongo driver")
		}
	case DriverMemory:
	default:
		return invalid("store.driver", "unknown store driver %q", c.Store.Driver)
	}
	if c.Store.ConnectAttempts < 1 {
		return invalid("store.connect_attempts", "connect attempts must be at least 1, got %d", c.Store.ConnectAttempts)
	}

	switch c.Mail.Driver {
	case MailLog:
	case MailSMTP:
		if c.Mail.Host == "" {
			return invalid("mail.host", "SMTP host is required for the smtp mail driver")
		}
		if c.Mail.From == "" {
			return invalid("mail.from", "sender address is required for the smtp mail driver")
		}
	default:
		return invalid("mail.driver", "unknown mail driver %q", c.Mail.Driver)
	}

	if c.Reset.TTL <= 0 {
		return invalid("reset.ttl", "reset TTL must be positive, got %s", c.Reset.TTL)
	}
	return nil
}

// ListenAddr is the web server listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// LoginURL is the login page address announced at startup.
func (c *Config) LoginURL() string {
	return fmt.Sprintf("http://localhost:%d/login", c.Port)
}
