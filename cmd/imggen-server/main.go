package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hurricanerix/imggen/internal/config"
	"github.com/hurricanerix/imggen/internal/startup"
	"github.com/hurricanerix/imggen/internal/web"
)

func main() {
	os.Exit(run())
}

func run() int {
	overrides, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := config.LoadEnv(overrides.EnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	cfg, err := config.LoadRunCfg(overrides.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := overrides.Apply(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	tmpl, err := config.LoadTemplateYaml(overrides.TemplatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger := startup.CreateLogger(cfg)

	addr := web.DefaultAddr
	if v := os.Getenv("IMGGEN_ADDR"); v != "" {
		addr = v
	}
	if overrides.Addr != "" {
		addr = overrides.Addr
	}

	s := web.NewServer(addr, cfg, tmpl, logger)
	logger.Info("imggen-server listening on %s", addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.ListenAndServe(ctx); err != nil {
		logger.Error("server exited: %v", err)
		return 1
	}
	return 0
}
