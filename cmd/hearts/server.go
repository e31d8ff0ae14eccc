package main

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/lox/heartsrealm/cmd/hearts/shared"
	"github.com/lox/heartsrealm/internal/bridge"
	"github.com/lox/heartsrealm/internal/broker"
	"github.com/lox/heartsrealm/internal/broker/amqp"
	"github.com/lox/heartsrealm/internal/config"
	"github.com/lox/heartsrealm/internal/realm"
)

// ServerCmd runs the realm behind the websocket bridge.
type ServerCmd struct {
	Config    string `short:"c" default:"hearts.hcl" help:"Path to HCL configuration file"`
	Addr      string `short:"a" help:"Address to bind to (overrides config)"`
	Port      int    `short:"p" help:"Port to bind to (overrides config)"`
	LogLevel  string `short:"l" help:"Log level (overrides config)"`
	Broker    string `help:"Broker kind, memory or amqp (overrides config)"`
	BrokerURL string `name:"broker-url" help:"AMQP URL (overrides config)"`
	Seed      *int64 `help:"Deterministic dealing seed (overrides config)"`
}

func (c *ServerCmd) Run() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := shared.SetupLogger(cfg.Level())
	ctx := shared.SetupSignalHandler(logger)

	b, err := openBroker(cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	director, err := realm.New(ctx, b, logger, cfg.RealmConfig())
	if err != nil {
		return fmt.Errorf("starting realm: %w", err)
	}
	defer director.Stop()

	srv := bridge.NewServer(cfg.ListenAddress(), b, director, logger, bridge.WithJWTSecret(cfg.Server.JWTSecret))

	logger.Info("Starting Hearts server",
		"addr", cfg.ListenAddress(),
		"broker", cfg.Broker.Kind,
		"stallTimeout", cfg.Realm.StallTimeout,
		"maxRestarts", cfg.Realm.MaxRestarts)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
		return srv.Stop()
	case err := <-errCh:
		return err
	}
}

func (c *ServerCmd) apply(cfg *config.Config) {
	if c.Addr != "" {
		cfg.Server.Address = c.Addr
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if c.Broker != "" {
		cfg.Broker.Kind = c.Broker
	}
	if c.BrokerURL != "" {
		cfg.Broker.URL = c.BrokerURL
	}
	if c.Seed != nil {
		cfg.Realm.Seed = *c.Seed
	}
}

func openBroker(cfg *config.Config, logger *log.Logger) (broker.Broker, error) {
	switch cfg.Broker.Kind {
	case config.BrokerAMQP:
		b, err := amqp.Dial(cfg.Broker.URL, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to broker: %w", err)
		}
		return b, nil
	default:
		return broker.NewMemory(cfg.Broker.QueueCapacity, logger), nil
	}
}

