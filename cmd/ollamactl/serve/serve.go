package servecmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/ollama-go/cmd/ollamactl/cliconfig"
	"github.com/papercomputeco/ollama-go/pkg/config"
	"github.com/papercomputeco/ollama-go/pkg/logger"
	"github.com/papercomputeco/ollama-go/proxy"
)

const serveLongDesc string = `Run a recording proxy in front of an Ollama server.

Chat and generate requests are forwarded upstream and relayed back,
streamed or not, while every exchange is stored as a content-addressed
transcript. The transcripts can be browsed under /dag and receive
nodes pushed by 'ollamactl push'.

The config file is watched while serving. A change to debug takes
effect immediately; listen, upstream and sqlite changes need a restart.

Examples:
  ollamactl serve
  ollamactl serve --listen :6061 --upstream http://gpu-box:11434 --sqlite ./proxy.db`

const serveShortDesc string = "Run the recording proxy"

type serveCommander struct {
	flags *cliconfig.Flags

	listen     string
	upstream   string
	sqlitePath string
	jsonLogs   bool
}

func NewServeCmd(flags *cliconfig.Flags) *cobra.Command {
	cmder := &serveCommander{flags: flags}

	cmd := &cobra.Command{
		Use:          "serve",
		Short:        serveShortDesc,
		SilenceUsage: true,
		Long:         serveLongDesc,
		Args:         cobra.NoArgs,
		RunE:         func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&cmder.listen, "listen", "", "Address to listen on (default from config, else :8080)")
	cmd.Flags().StringVar(&cmder.upstream, "upstream", "", "Upstream Ollama server (default --host)")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to SQLite database (default: in-memory)")
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Write logs as JSON")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	cfg, err := c.flags.Load()
	if err != nil {
		return err
	}

	level := zap.NewAtomicLevelAt(logger.LevelFor(cfg.Debug))
	log := logger.New(logger.Options{JSON: c.jsonLogs, Level: &level})
	defer log.Sync()

	pc := c.proxyConfig(cfg)

	log.Info("ollamactl proxy starting",
		zap.String("listen", pc.ListenAddr),
		zap.String("upstream", pc.UpstreamURL),
		zap.Bool("debug", cfg.Debug),
	)

	p, err := proxy.New(pc, log)
	if err != nil {
		return fmt.Errorf("could not create proxy: %w", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.watchConfig(ctx, pc, level, log)

	if err := p.Run(ctx); err != nil {
		return fmt.Errorf("proxy server failed: %w", err)
	}
	return nil
}

// proxyConfig builds the proxy settings from cfg and the flags.
func (c *serveCommander) proxyConfig(cfg *config.Config) proxy.Config {
	pc := proxy.Config{
		ListenAddr:    cfg.Proxy.Listen,
		UpstreamURL:   cfg.Proxy.Upstream,
		APIKey:        cfg.APIKey,
		DBPath:        cfg.Proxy.SQLite,
		MaxRecordSize: cfg.MaxRecordSize,
	}
	if c.listen != "" {
		pc.ListenAddr = c.listen
	}
	if c.upstream != "" {
		pc.UpstreamURL = c.upstream
	}
	if c.sqlitePath != "" {
		pc.DBPath = c.sqlitePath
	}
	return pc
}

// watchConfig reloads the config file in the background until ctx is done.
// Serving goes on unwatched when the file cannot be watched.
func (c *serveCommander) watchConfig(ctx context.Context, running proxy.Config, level zap.AtomicLevel, log *zap.Logger) {
	path := c.flags.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	if path == "" {
		return
	}

	w, err := config.NewWatcher(path)
	if err != nil {
		log.Debug("not watching config", zap.String("path", path), zap.Error(err))
		return
	}
	log.Debug("watching config", zap.String("path", w.Path()))

	go func() {
		defer w.Close()
		w.Run(ctx,
			func(cfg *config.Config) { c.applyConfig(cfg, running, level, log) },
			func(err error) { log.Warn("could not reload config", zap.Error(err)) },
		)
	}()
}

// applyConfig applies a reloaded config to the running proxy.
func (c *serveCommander) applyConfig(cfg *config.Config, running proxy.Config, level zap.AtomicLevel, log *zap.Logger) {
	if err := c.flags.Apply(cfg); err != nil {
		log.Warn("could not reload config", zap.Error(err))
		return
	}
	level.SetLevel(logger.LevelFor(cfg.Debug))
	log.Info("config reloaded", zap.Bool("debug", cfg.Debug))

	if next := c.proxyConfig(cfg); next != running {
		log.Warn("proxy settings changed, restart serve to apply them",
			zap.String("listen", next.ListenAddr),
			zap.String("upstream", next.UpstreamURL),
		)
	}
}
