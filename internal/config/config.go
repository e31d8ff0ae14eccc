// Package config loads the server configuration: an HCL file, then
// HEARTS_* environment variables on top, then command line flags applied by
// the caller.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/heartsrealm/internal/realm"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HEARTS_"

// Broker kinds.
const (
	BrokerMemory = "memory"
	BrokerAMQP   = "amqp"
)

// Config is the complete server configuration.
type Config struct {
	Server ServerSettings `envPrefix:"SERVER_"`
	Broker BrokerSettings `envPrefix:"BROKER_"`
	Realm  RealmSettings  `envPrefix:"REALM_"`
}

// ServerSettings configures the websocket bridge and logging.
type ServerSettings struct {
	Address   string `hcl:"address,optional" env:"ADDRESS"`
	Port      int    `hcl:"port,optional" env:"PORT"`
	LogLevel  string `hcl:"log_level,optional" env:"LOG_LEVEL"`
	JWTSecret string `hcl:"jwt_secret,optional" env:"JWT_SECRET"`
}

// BrokerSettings selects and configures the message broker.
type BrokerSettings struct {
	Kind          string `hcl:"kind,optional" env:"KIND"`
	URL           string `hcl:"url,optional" env:"URL"`
	QueueCapacity int    `hcl:"queue_capacity,optional" env:"QUEUE_CAPACITY"`
}

// RealmSettings configures the director and its sequencers.
type RealmSettings struct {
	Seed           int64         `env:"SEED"`
	StallTimeout   time.Duration `env:"STALL_TIMEOUT"`
	RestartBackoff time.Duration `env:"RESTART_BACKOFF"`
	MaxRestarts    int           `env:"MAX_RESTARTS"`
}

// realmBlock is the file form of RealmSettings; durations are strings such
// as "30s".
type realmBlock struct {
	Seed           *int64 `hcl:"seed,optional"`
	StallTimeout   string `hcl:"stall_timeout,optional"`
	RestartBackoff string `hcl:"restart_backoff,optional"`
	MaxRestarts    *int   `hcl:"max_restarts,optional"`
}

type fileConfig struct {
	Server *ServerSettings `hcl:"server,block"`
	Broker *BrokerSettings `hcl:"broker,block"`
	Realm  *realmBlock     `hcl:"realm,block"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	r := realm.DefaultConfig()
	return &Config{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Broker: BrokerSettings{
			Kind:          BrokerMemory,
			QueueCapacity: 1024,
		},
		Realm: RealmSettings{
			StallTimeout:   r.StallTimeout,
			RestartBackoff: r.RestartBackoff,
			MaxRestarts:    r.MaxRestarts,
		},
	}
}

// Load reads filename, falling back to defaults when it does not exist, and
// applies environment overrides.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			if err := cfg.decodeFile(filename); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config: %w", err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) decodeFile(filename string) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var fc fileConfig
	diags = gohcl.DecodeBody(file.Body, nil, &fc)
	if diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	if s := fc.Server; s != nil {
		if s.Address != "" {
			c.Server.Address = s.Address
		}
		if s.Port != 0 {
			c.Server.Port = s.Port
		}
		if s.LogLevel != "" {
			c.Server.LogLevel = s.LogLevel
		}
		c.Server.JWTSecret = s.JWTSecret
	}

	if b := fc.Broker; b != nil {
		if b.Kind != "" {
			c.Broker.Kind = b.Kind
		}
		c.Broker.URL = b.URL
		if b.QueueCapacity != 0 {
			c.Broker.QueueCapacity = b.QueueCapacity
		}
	}

	if r := fc.Realm; r != nil {
		if r.Seed != nil {
			c.Realm.Seed = *r.Seed
		}
		if r.MaxRestarts != nil {
			c.Realm.MaxRestarts = *r.MaxRestarts
		}
		var err error
		if c.Realm.StallTimeout, err = duration("stall_timeout", r.StallTimeout, c.Realm.StallTimeout); err != nil {
			return err
		}
		if c.Realm.RestartBackoff, err = duration("restart_backoff", r.RestartBackoff, c.Realm.RestartBackoff); err != nil {
			return err
		}
	}
	return nil
}

func duration(name, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("realm.%s: %w", name, err)
	}
	return d, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if _, err := log.ParseLevel(c.Server.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.Server.LogLevel)
	}

	switch c.Broker.Kind {
	case BrokerMemory:
	case BrokerAMQP:
		if c.Broker.URL == "" {
			return fmt.Errorf("broker url is required for amqp")
		}
	default:
		return fmt.Errorf("unknown broker kind %q", c.Broker.Kind)
	}
	if c.Broker.QueueCapacity < 1 {
		return fmt.Errorf("queue capacity must be positive")
	}

	if c.Realm.StallTimeout < 0 {
		return fmt.Errorf("stall timeout must not be negative")
	}
	if c.Realm.RestartBackoff < 0 {
		return fmt.Errorf("restart backoff must not be negative")
	}
	if c.Realm.MaxRestarts < 0 {
		return fmt.Errorf("max restarts must not be negative")
	}
	return nil
}

// ListenAddress returns the address the bridge listens on.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// Level returns the configured log level, info when it does not parse.
func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.Server.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// RealmConfig converts the realm block for the director.
func (c *Config) RealmConfig() realm.Config {
	return realm.Config{
		Seed:           c.Realm.Seed,
		StallTimeout:   c.Realm.StallTimeout,
		RestartBackoff: c.Realm.RestartBackoff,
		MaxRestarts:    c.Realm.MaxRestarts,
	}
}
