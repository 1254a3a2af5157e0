package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"tableside/internal/app/customer"
	"tableside/internal/app/floor"
	"tableside/internal/app/hub"
	"tableside/internal/app/kitchen"
	"tableside/internal/app/storage"
	"tableside/internal/common/logger"
	"tableside/internal/config"
)

const modes = "storage-service | realtime-hub | floor-terminal | kitchen-display | customer-device"

func main() {
	mode := pflag.String("mode", "", modes)
	cfgPath := pflag.String("config", "", "path to YAML config (default: first of config.yaml, config.yml, deploy/config.example.yaml)")
	branch := pflag.String("branch", "", "terminals: branch id, overrides client.branch_id")
	joinCode := pflag.String("join-code", "", "customer-device: session join code, overrides client.join_code")
	pflag.Parse()

	lg := logger.New("bootstrap")

	path := *cfgPath
	if path == "" {
		if found, err := config.FindConfig(); err == nil {
			path = found
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		lg.Error("config_load_failed", err, map[string]any{"path": path})
		os.Exit(1)
	}
	if *branch != "" {
		cfg.Client.BranchID = *branch
	}
	if *joinCode != "" {
		cfg.Client.JoinCode = *joinCode
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		run     func(context.Context, *config.Config, *logger.Logger) error
		console bool
	)
	switch *mode {
	case "storage-service":
		run = storage.Run
	case "realtime-hub":
		run = hub.Run
	case "floor-terminal":
		run, console = floor.Run, true
	case "kitchen-display":
		run, console = kitchen.Run, true
	case "customer-device":
		run, console = customer.Run, true
	default:
		fmt.Fprintln(os.Stderr, "--mode is required: "+modes)
		os.Exit(2)
	}

	// Terminals own stdout for their console.
	svcLog := logger.New(*mode)
	if console {
		svcLog = logger.NewWithWriter(*mode, os.Stderr)
	}
	lg.Info("service_started", map[string]any{"service": *mode, "config": path})
	if err := run(ctx, cfg, svcLog); err != nil {
		svcLog.Error("fatal", err, nil)
		os.Exit(1)
	}
	svcLog.Info("service_stopped", nil)
}
