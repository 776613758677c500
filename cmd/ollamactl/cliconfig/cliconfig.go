// Package cliconfig holds the flags shared by every ollamactl subcommand and
// turns them into a config, a logger and a client.
package cliconfig

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/ollama-go/pkg/config"
	"github.com/papercomputeco/ollama-go/pkg/logger"
	"github.com/papercomputeco/ollama-go/pkg/ollama"
)

// Flags are the root command's persistent flags. Set values win over the
// config file and the environment.
type Flags struct {
	ConfigPath string
	Host       string
	Model      string
	Debug      bool
}

// Register adds the flags to cmd as persistent flags.
func (f *Flags) Register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.ConfigPath, "config", "", "Path to config file (default "+config.DefaultPath()+")")
	cmd.PersistentFlags().StringVar(&f.Host, "host", "", "Ollama server address (overrides "+config.EnvHost+")")
	cmd.PersistentFlags().StringVarP(&f.Model, "model", "m", "", "Model name (default from config, else "+config.DefaultModel+")")
	cmd.PersistentFlags().BoolVar(&f.Debug, "debug", false, "Enable debug logging")
}

// Load reads the config file and applies the flags on top of it.
func (f *Flags) Load() (*config.Config, error) {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := f.Apply(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Apply sets the flags that were given on cfg.
func (f *Flags) Apply(cfg *config.Config) error {
	if f.Host != "" {
		host, err := config.NormalizeHost(f.Host)
		if err != nil {
			return fmt.Errorf("invalid --host: %w", err)
		}
		if cfg.Proxy.Upstream == cfg.Host {
			cfg.Proxy.Upstream = host
		}
		cfg.Host = host
	}
	if f.Model != "" {
		cfg.Model = f.Model
	}
	if f.Debug {
		cfg.Debug = true
	}
	return nil
}

// Logger returns the console logger for cfg.
func Logger(cfg *config.Config) *zap.Logger {
	return logger.NewLogger(cfg.Debug)
}

// Setup loads the config and builds a logger and client from it. The caller
// should Sync the logger when done.
func (f *Flags) Setup(opts ...ollama.Option) (*config.Config, *ollama.Client, *zap.Logger, error) {
	cfg, err := f.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	log := Logger(cfg)

	clientOpts := []ollama.Option{
		ollama.WithConfig(cfg),
		ollama.WithLogger(log.Named("client")),
	}
	client, err := ollama.New(append(clientOpts, opts...)...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("could not create client: %w", err)
	}
	return cfg, client, log, nil
}
