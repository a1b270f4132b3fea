// Sift-mcp serves backlog triage and task management as MCP tools over stdio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"
	v "github.com/linnemanlabs/go-core/version"
	"github.com/mark3labs/mcp-go/server"

	sc "github.com/linnemanlabs/sift/internal/cfg"
	"github.com/linnemanlabs/sift/internal/mcptools"
	"github.com/linnemanlabs/sift/internal/rules"
	"github.com/linnemanlabs/sift/internal/storage"
	"github.com/linnemanlabs/sift/internal/triage"
)

const appName = "sift"
const component = "mcp"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component
	vi := v.Get()

	var (
		appCfg sc.Triage
		logCfg log.Config
	)
	appCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	var showVersion bool
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")

	flag.Parse()
	if showVersion {
		// stdout belongs to the MCP transport once serving; -V exits before that
		fmt.Printf("%s (%s) %s (commit=%s, go=%s)\n", vi.AppName, vi.Component, vi.Version, vi.Commit, vi.GoVersion)
		return nil
	}

	cfg.FillFromEnv(flag.CommandLine, "SIFT_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(appCfg.Validate(), logCfg.Validate()); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// logs go to stderr; stdout carries JSON-RPC
	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()
	L := lg.With("component", vi.Component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing mcp server",
		"version", vi.Version,
		"commit", vi.Commit,
		"rules_file", appCfg.RulesFile,
		"workers", appCfg.Workers,
	)

	rulesCfg, err := rules.LoadOrDefault(appCfg.RulesFile)
	if err != nil {
		return fmt.Errorf("rules: %w", err)
	}

	store, closeStore, err := storage.Open(ctx, L, appCfg)
	if err != nil {
		return err
	}
	defer closeStore()

	engine := triage.NewEngine(L, triage.EngineHooks{}, appCfg.Workers)
	svc := triage.NewService(store, engine, rulesCfg, L, nil, nil)

	s := server.NewMCPServer(appName, vi.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	mcptools.New(L, svc).Register(s)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ServeStdio(s) }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve stdio: %w", err)
		}
	case <-ctx.Done():
		L.Info(context.Background(), "shutdown signal received")
	}

	L.Info(context.Background(), "shutdown complete")
	return nil
}
