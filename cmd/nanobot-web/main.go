// ABOUTME: Entry point for the nanobot web gateway
// ABOUTME: Dispatches the serve, init, health, and status subcommands

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/nanobot-gateway/internal/config"
	"github.com/2389/nanobot-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                         _           _
  _ __   __ _ _ __   ___ | |__   ___ | |_      __      _____| |__
 | '_ \ / _' | '_ \ / _ \| '_ \ / _ \| __|____\ \ /\ / / _ \ '_ \
 | | | | (_| | | | | (_) | |_) | (_) | ||_____|\ V  V /  __/ |_) |
 |_| |_|\__,_|_| |_|\___/|_.__/ \___/ \__|      \_/\_/ \___|_.__/
`

// getConfigPath returns the path to the gateway config file.
// Priority: NANOBOT_WEB_CONFIG env var > XDG_CONFIG_HOME/nanobot/web.yaml > ~/.config/nanobot/web.yaml
func getConfigPath() string {
	if envPath := os.Getenv("NANOBOT_WEB_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "web.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "nanobot", "web.yaml")
}

// loadConfig loads the config file, falling back to defaults when it does
// not exist. The bool reports whether a file was read.
func loadConfig(path string) (*config.Config, bool, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("loading config: %w", err)
	}

	cfg = config.Default()
	cfg.Database.Path = config.ExpandHome(cfg.Database.Path)
	cfg.Settings.Path = config.ExpandHome(cfg.Settings.Path)
	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("validating default config: %w", err)
	}
	return cfg, false, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: nanobot-web <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the web gateway")
		fmt.Println("  init      Create the config file and settings document")
		fmt.Println("  health    Check gateway health")
		fmt.Println("  status    Show gateway status")
		fmt.Println("  version   Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "status":
		err = runStatus(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, fromFile, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	if fromFile {
		fmt.Printf("Config:    %s\n", configPath)
	} else {
		fmt.Print("Config:    ")
		yellow.Println("defaults (no config file)")
	}
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Settings:  %s", cfg.Settings.Path)
	if cfg.Settings.Watch {
		gray.Print(" (watched)")
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("Ledger:    %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Processor: %s", cfg.Processor.Kind)
	if cfg.Processor.Provider != "" {
		gray.Printf(" (%s)", cfg.Processor.Provider)
	}
	fmt.Println()

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	if cfg.Sessions.IdleTimeout > 0 {
		green.Print("    ▶ ")
		fmt.Printf("Idle:      %s\n", cfg.Sessions.IdleTimeout)
	}

	fmt.Println()

	logger.Info("starting nanobot-web",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"processor", cfg.Processor.Kind,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}
