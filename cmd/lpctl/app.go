package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/coldbell/lp-pricer/internal/chain"
	"github.com/coldbell/lp-pricer/internal/config"
	"github.com/coldbell/lp-pricer/internal/logging"
	"github.com/coldbell/lp-pricer/internal/pricing"
)

type app struct {
	registry *config.Registry
	source   chain.AccountSource
	engine   *pricing.Engine
	logger   *slog.Logger
	timeout  time.Duration
	format   string
	out      io.Writer
}

type appFactory func(cmd *cobra.Command) (*app, func() error, error)

func newApp(registry *config.Registry, source chain.AccountSource, logger *slog.Logger, timeout time.Duration, format string, out io.Writer) (*app, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "text" && format != "json" {
		return nil, fmt.Errorf("invalid output %q (expected text|json)", format)
	}
	return &app{
		registry: registry,
		source:   source,
		engine:   pricing.NewEngine(source, registry, logger),
		logger:   logger,
		timeout:  timeout,
		format:   format,
		out:      out,
	}, nil
}

// loadApp builds the app from LPCTL_* configuration, with flags taking
// precedence.
func loadApp(cmd *cobra.Command) (*app, func() error, error) {
	cfg, err := config.LoadCLIConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if rpcURL, _ := flags.GetString("rpc"); rpcURL != "" {
		cfg.RPC.URL = rpcURL
	}
	if path, _ := flags.GetString("registry"); path != "" {
		registry, err := config.LoadRegistry(path)
		if err != nil {
			return nil, nil, err
		}
		cfg.Registry = registry
	}
	timeout, _ := flags.GetDuration("timeout")
	format, _ := flags.GetString("output")

	logger, closeLogger, err := logging.New("lpctl", cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	source := chain.NewRPCSource(cfg.RPC.URL, cfg.RPC.Commitment, nil)
	a, err := newApp(cfg.Registry, source, logger, defaultTimeout(timeout, cfg.RPC.RequestTimeout), format, cmd.OutOrStdout())
	if err != nil {
		_ = closeLogger()
		return nil, nil, err
	}
	return a, closeLogger, nil
}

func (a *app) context(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, a.timeout)
}
