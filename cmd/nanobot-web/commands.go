// ABOUTME: init, health, and status subcommands
// ABOUTME: init writes the gateway config and seeds the settings document if absent

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/nanobot-gateway/internal/config"
	"github.com/2389/nanobot-gateway/internal/gateway"
	"github.com/2389/nanobot-gateway/internal/settings"
)

// requestTimeout bounds the health and status calls.
const requestTimeout = 10 * time.Second

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	fmt.Println("nanobot-web configuration setup")
	fmt.Println("===============================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", getConfigPath())

	writeConfig := true
	if _, err := os.Stat(outputFile); err == nil {
		writeConfig = isYes(prompt(reader, "File exists. Overwrite?", "no"))
	}

	var cfg *config.Config
	if writeConfig {
		cfg = config.Default()

		fmt.Println("\n--- Server Configuration ---")
		cfg.Server.HTTPAddr = prompt(reader, "HTTP address", cfg.Server.HTTPAddr)

		fmt.Println("\n--- Storage ---")
		cfg.Settings.Path = prompt(reader, "Settings document path", cfg.Settings.Path)
		cfg.Database.Path = prompt(reader, "SQLite ledger path", cfg.Database.Path)

		fmt.Println("\n--- Processor ---")
		cfg.Processor.Kind = prompt(reader, "Processor (echo/openai)", cfg.Processor.Kind)

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		data, err := cfg.Marshal()
		if err != nil {
			return fmt.Errorf("rendering config: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		content := "# nanobot-web configuration\n# Generated by nanobot-web init\n\n" + string(data)
		if err := os.WriteFile(outputFile, []byte(content), 0o600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
		green.Printf("\n  ✓ Created config: %s\n", outputFile)
	} else {
		loaded, err := config.Load(outputFile)
		if err != nil {
			return fmt.Errorf("loading existing config: %w", err)
		}
		cfg = loaded
		yellow.Printf("\n  • Keeping config: %s\n", outputFile)
	}

	settingsPath := config.ExpandHome(cfg.Settings.Path)
	created, err := settings.NewStore(settingsPath, nil).Init(settings.DefaultDocument())
	if err != nil {
		return fmt.Errorf("creating settings document: %w", err)
	}
	if created {
		green.Printf("  ✓ Created settings: %s\n", settingsPath)
	} else {
		yellow.Printf("  • Settings already exist: %s\n", settingsPath)
	}

	fmt.Println("\nTo start the server:")
	fmt.Println("  nanobot-web serve")
	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

// baseURL returns the local HTTP address of the configured gateway.
func baseURL() (string, error) {
	cfg, _, err := loadConfig(getConfigPath())
	if err != nil {
		return "", err
	}
	if cfg.Tailscale.Enabled {
		return "http://" + cfg.Tailscale.Hostname, nil
	}
	return "http://" + cfg.Server.HTTPAddr, nil
}

func get(ctx context.Context, url string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func runHealth(ctx context.Context) error {
	base, err := baseURL()
	if err != nil {
		return err
	}

	resp, err := get(ctx, base+"/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runStatus(ctx context.Context) error {
	base, err := baseURL()
	if err != nil {
		return err
	}

	resp, err := get(ctx, base+"/api/status")
	if err != nil {
		return fmt.Errorf("status check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]string
		if json.Unmarshal(body, &errResp) == nil && errResp["error"] != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, errResp["error"])
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	var status gateway.StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("decoding status: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	fmt.Print("Status:   ")
	green.Println(status.Status)
	fmt.Print("Model:    ")
	if status.Model == "" {
		gray.Println("(not set)")
	} else {
		cyan.Println(status.Model)
	}
	fmt.Printf("Sessions: %d\n", status.Sessions)
	gray.Printf("          %s\n", base)
	return nil
}
