// ABOUTME: Entry point for salesdesk-gateway, the live chat routing server
// ABOUTME: Subcommands serve, init, bootstrap, health, and stats

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/salesdesk-gateway/internal/config"
	"github.com/2389/salesdesk-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
            _           _           _
  ___  __ _| | ___  ___| | ___  ___| | __
 / __|/ _' | |/ _ \/ __| |/ _ \/ __| |/ /
 \__ \ (_| | |  __/\__ \ |  __/\__ \   <
 |___/\__,_|_|\___||___/_|\___||___/_|\_\
`

// getConfigPath returns the path to the gateway config file.
// Priority: SALESDESK_CONFIG env var > XDG_CONFIG_HOME/salesdesk/gateway.yaml > ~/.config/salesdesk/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SALESDESK_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "salesdesk", "gateway.yaml")
}

// getDataPath returns the salesdesk data directory.
// Priority: XDG_DATA_HOME/salesdesk > ~/.local/share/salesdesk
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "salesdesk")
}

func usage() {
	fmt.Println("Usage: salesdesk-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                         Start the gateway server")
	fmt.Println("  init                          Create a new config file interactively")
	fmt.Println("  bootstrap --name N            Create a user and print a token (--email E, --role sales|customer)")
	fmt.Println("  health                        Check gateway health")
	fmt.Println("  stats --token T               Show dashboard statistics")
}

func main() {
	// a missing .env is fine; real environment variables still apply
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin)
	case "bootstrap":
		err = runBootstrap(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "stats":
		err = runStats(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
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

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	if cfg.Server.GRPCAddr != "" {
		green.Print("    ▶ ")
		fmt.Printf("Health:    %s (gRPC)\n", cfg.Server.GRPCAddr)
	}
	green.Print("    ▶ ")
	fmt.Printf("Assistant: %s\n", cfg.Assistant.Provider)
	if cfg.Events.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Events:    %s\n", cfg.Events.Exchange)
	}
	if cfg.Roster.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Roster:    redis %s\n", cfg.Roster.Addr)
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	fmt.Println()

	logger.Info("starting salesdesk-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

// getJSON fetches url and returns the body, failing on non-2xx statuses.
func getJSON(ctx context.Context, url, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	body, err := getJSON(ctx, fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr), "")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	var ready gateway.ReadyResponse
	if err := json.Unmarshal(body, &ready); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	fmt.Printf("%s: %d sales reps, %d customers, %d active chats\n",
		ready.Status, ready.SalesReps, ready.Customers, ready.ActiveChats)
	return nil
}

func runStats(ctx context.Context, args []string) error {
	flags, err := parseFlags(args, "token")
	if err != nil {
		return err
	}
	token := flags["token"]
	if token == "" {
		token = os.Getenv("SALESDESK_TOKEN")
	}
	if token == "" {
		if b, err := os.ReadFile(filepath.Join(filepath.Dir(getConfigPath()), "token")); err == nil {
			token = strings.TrimSpace(string(b))
		}
	}
	if token == "" {
		return fmt.Errorf("--token is required (or set SALESDESK_TOKEN)")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	body, err := getJSON(ctx, fmt.Sprintf("http://%s/api/sales/stats", cfg.Server.HTTPAddr), token)
	if err != nil {
		return fmt.Errorf("fetching stats: %w", err)
	}

	var snap struct {
		TotalConversations int     `json:"totalConversations"`
		ActiveChats        int     `json:"activeChats"`
		CompletedToday     int     `json:"completedToday"`
		AvgResponseTime    float64 `json:"avgResponseTime"`
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	cyan := color.New(color.FgCyan)
	cyan.Println("  Sales Dashboard")
	cyan.Println("  ---------------")
	fmt.Printf("  Conversations:     %d\n", snap.TotalConversations)
	fmt.Printf("  Active chats:      %d\n", snap.ActiveChats)
	fmt.Printf("  Completed today:   %d\n", snap.CompletedToday)
	fmt.Printf("  Avg response time: %.1f min\n", snap.AvgResponseTime)
	return nil
}

// parseFlags accepts "--name value" and "--name=value" for each allowed name.
func parseFlags(args []string, allowed ...string) (map[string]string, error) {
	known := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		known[a] = true
	}

	out := make(map[string]string)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if !known[name] {
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		out[name] = value
	}
	return out, nil
}
