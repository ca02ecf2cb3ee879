// ABOUTME: First-run setup commands: interactive init and user bootstrap
// ABOUTME: bootstrap writes a config with a random JWT secret when none exists, then mints a token

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/salesdesk-gateway/internal/auth"
	"github.com/2389/salesdesk-gateway/internal/config"
	"github.com/2389/salesdesk-gateway/internal/store"
)

const bootstrapTokenTTL = 30 * 24 * time.Hour

type bootstrapArgs struct {
	name  string
	email string
	role  store.Role
}

func parseBootstrapArgs(args []string) (bootstrapArgs, error) {
	flags, err := parseFlags(args, "name", "email", "role")
	if err != nil {
		return bootstrapArgs{}, err
	}

	b := bootstrapArgs{
		name:  strings.TrimSpace(flags["name"]),
		email: strings.TrimSpace(flags["email"]),
		role:  store.Role(flags["role"]),
	}
	if b.name == "" {
		return bootstrapArgs{}, errors.New("--name is required")
	}
	if len(b.name) > 100 {
		return bootstrapArgs{}, errors.New("name exceeds maximum length of 100 characters")
	}
	if b.email != "" {
		if _, err := mail.ParseAddress(b.email); err != nil {
			return bootstrapArgs{}, fmt.Errorf("invalid email %q", b.email)
		}
	}
	switch b.role {
	case "":
		b.role = store.RoleSales
	case store.RoleSales, store.RoleCustomer:
	default:
		return bootstrapArgs{}, fmt.Errorf("--role must be sales or customer, got %q", b.role)
	}
	return b, nil
}

func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

// writeDefaultConfig creates a minimal config at configPath.
func writeDefaultConfig(configPath, dbPath string) error {
	secret, err := generateSecret()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	content := fmt.Sprintf(`# salesdesk-gateway configuration
# Generated by salesdesk-gateway bootstrap

server:
  http_addr: "localhost:8080"

database:
  path: "%s"

auth:
  jwt_secret: "%s"

logging:
  level: "info"
  format: "text"
`, dbPath, secret)

	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// runBootstrap creates a user and prints a token for it, creating the config
// on first run: salesdesk-gateway bootstrap --name "Dana" --email dana@example.com
func runBootstrap(ctx context.Context, args []string) error {
	b, err := parseBootstrapArgs(args)
	if err != nil {
		return err
	}

	configPath := getConfigPath()
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := writeDefaultConfig(configPath, filepath.Join(getDataPath(), "gateway.db")); err != nil {
			return err
		}
		green.Printf("  ✓ Created config: %s\n", configPath)
	} else {
		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path, store.WithDriver(cfg.Database.Driver))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()
	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	user := &store.User{
		ID:        uuid.New().String(),
		Username:  b.name,
		Email:     b.email,
		Role:      b.role,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			return fmt.Errorf("user %q already exists", b.name)
		}
		return fmt.Errorf("creating user: %w", err)
	}
	green.Printf("  ✓ Created %s user: %s\n", user.Role, user.Username)

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.Generate(user.ID, bootstrapTokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if user.Role == store.RoleSales {
		if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
			return fmt.Errorf("writing token file: %w", err)
		}
		green.Printf("  ✓ Saved token: %s\n", tokenPath)
	}

	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  User")
	cyan.Println("  ----")
	fmt.Printf("  ID:      %s\n", user.ID)
	fmt.Printf("  Name:    %s\n", user.Username)
	fmt.Printf("  Email:   %s\n", user.Email)
	fmt.Printf("  Role:    %s\n", user.Role)
	fmt.Printf("  Expires: %s\n", time.Now().Add(bootstrapTokenTTL).Format("Jan 02, 2006"))
	fmt.Printf("  Token:   %s\n", token)
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Println("    salesdesk-gateway serve    # start the gateway")
	fmt.Println("    salesdesk-gateway stats    # check the dashboard")
	fmt.Println()
	return nil
}

func runInit(in io.Reader) error {
	reader := bufio.NewReader(in)

	fmt.Println("salesdesk-gateway configuration setup")
	fmt.Println("=====================================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", getConfigPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")
	grpcAddr := prompt(reader, "gRPC health address (empty to disable)", "")

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", filepath.Join(getDataPath(), "gateway.db"))

	fmt.Println("\n--- Assistant Configuration ---")
	provider := prompt(reader, "Assistant provider (rules/openai)", "rules")
	var apiKey string
	if provider == "openai" {
		apiKey = prompt(reader, "OpenAI API key (or ${OPENAI_API_KEY})", "${OPENAI_API_KEY}")
	}

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	var cfg strings.Builder
	cfg.WriteString("# salesdesk-gateway configuration\n")
	cfg.WriteString("# Generated by salesdesk-gateway init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  http_addr: %q\n", httpAddr)
	if grpcAddr != "" {
		fmt.Fprintf(&cfg, "  grpc_addr: %q\n", grpcAddr)
	}
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  path: %q\n\n", dbPath)

	cfg.WriteString("auth:\n")
	fmt.Fprintf(&cfg, "  jwt_secret: %q\n\n", secret)

	cfg.WriteString("assistant:\n")
	fmt.Fprintf(&cfg, "  provider: %q\n", provider)
	if apiKey != "" {
		cfg.WriteString("  openai:\n")
		fmt.Fprintf(&cfg, "    api_key: %q\n", apiKey)
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", logLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", logFormat)

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nNext:")
	fmt.Println("  salesdesk-gateway bootstrap --name \"Your Name\" --email you@example.com")
	fmt.Println("  salesdesk-gateway serve")
	return nil
}

func yes(answer string) bool {
	a := strings.ToLower(answer)
	return a == "yes" || a == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
