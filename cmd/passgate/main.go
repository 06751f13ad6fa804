// ABOUTME: Entry point for the passgate passkey authentication server
// ABOUTME: Provides serve, init, and check subcommands

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/passgate/internal/ceremony"
	"github.com/2389/passgate/internal/config"
	"github.com/2389/passgate/internal/session"
	"github.com/2389/passgate/internal/store"
	"github.com/2389/passgate/internal/verify"
	"github.com/2389/passgate/internal/web"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _ __   __ _ ___ ___  __ _  __ _| |_ ___
| '_ \ / _' / __/ __|/ _' |/ _' | __/ _ \
| |_) | (_| \__ \__ \ (_| | (_| | ||  __/
| .__/ \__,_|___/___/\__, |\__,_|\__\___|
|_|                  |___/
`

// getConfigPath returns the path to the passgate config file.
// Priority: PASSGATE_CONFIG env var > XDG_CONFIG_HOME/passgate/config.yaml > ~/.config/passgate/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PASSGATE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "passgate", "config.yaml")
}

// getDataPath returns the path to the passgate data directory.
// Priority: XDG_DATA_HOME/passgate > ~/.local/share/passgate
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "passgate")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: passgate <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the authentication server")
		fmt.Println("  init      Create a new config file interactively")
		fmt.Println("  check     Check server health")
		fmt.Println("  users     List registered users")
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
	case "check":
		err = runCheck(ctx)
	case "users":
		err = runUsers()
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

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config: %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:   %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("RP:     ")
	cyan.Println(cfg.RelyingParty.ID)
	fmt.Println()

	users, err := store.NewFileStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}

	boundary, err := verify.New(verify.Config{
		RPID:    cfg.RelyingParty.ID,
		RPName:  cfg.RelyingParty.Name,
		Origins: cfg.RelyingParty.Origins,
	})
	if err != nil {
		return fmt.Errorf("configuring relying party: %w", err)
	}

	ceremonies := ceremony.NewManager(users, boundary, ceremony.Config{
		RegistrationWindow: cfg.Registration.Window,
		CounterPolicy:      ceremony.CounterPolicy(cfg.Registration.CounterPolicy),
	})
	sessions := session.NewIssuer([]byte(cfg.Session.Secret), cfg.Session.Duration)

	mux := http.NewServeMux()
	web.New(ceremonies, sessions).RegisterRoutes(mux)

	logger.Info("starting passgate",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"rp_id", cfg.RelyingParty.ID,
		"users", users.Count(),
	)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// runCheck validates the config and store, then reports whether a running
// server answers on the configured address.
func runCheck(ctx context.Context) error {
	configPath := getConfigPath()

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	green.Print("  ✓ ")
	fmt.Printf("Config: %s\n", configPath)

	users, err := store.NewFileStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}
	green.Print("  ✓ ")
	fmt.Printf("Store:  %s (%d users)\n", cfg.Store.Path, users.Count())

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	url := fmt.Sprintf("http://%s/healthz", addr)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		yellow.Print("  - ")
		fmt.Printf("Server: not reachable at %s\n", addr)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	green.Print("  ✓ ")
	fmt.Printf("Server: healthy at %s\n", addr)
	return nil
}

func runUsers() error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	users, err := store.NewFileStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}

	records := users.All()
	if len(records) == 0 {
		fmt.Println("No registered users.")
		return nil
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	for _, rec := range records {
		cyan.Print(rec.Username)
		if rec.Pending {
			color.New(color.FgYellow).Print(" [pending]")
		}
		fmt.Println()
		gray.Printf("  credentials: %d  logins: %d", len(rec.Credentials), rec.LoginCount)
		if rec.LastLogin != nil {
			gray.Printf("  last: %s", rec.LastLogin.Format(time.RFC3339))
		}
		fmt.Println()
	}

	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("passgate configuration setup")
	fmt.Println("============================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultStorePath := filepath.Join(defaultDataPath, "users.json")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")

	// Store
	fmt.Println("\n--- Credential Store ---")
	storePath := prompt(reader, "User store path", defaultStorePath)

	// Relying party
	fmt.Println("\n--- Relying Party ---")
	rpID := prompt(reader, "Relying party ID (domain)", "localhost")
	rpName := prompt(reader, "Relying party display name", "Passgate")
	origin := prompt(reader, "Allowed origin", "http://localhost:8080")

	// Registration
	fmt.Println("\n--- Registration ---")
	window := prompt(reader, "Registration window", "2m")
	counterPolicy := prompt(reader, "Counter policy (strict/lenient)", "lenient")

	// Session secret
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating session secret: %w", err)
	}
	secret := base64.StdEncoding.EncodeToString(secretBytes)

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# passgate configuration\n")
	cfg.WriteString("# Generated by passgate init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("store:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", storePath))
	cfg.WriteString("\n")

	cfg.WriteString("relying_party:\n")
	cfg.WriteString(fmt.Sprintf("  id: \"%s\"\n", rpID))
	cfg.WriteString(fmt.Sprintf("  name: \"%s\"\n", rpName))
	cfg.WriteString("  origins:\n")
	cfg.WriteString(fmt.Sprintf("    - \"%s\"\n", origin))
	cfg.WriteString("\n")

	cfg.WriteString("registration:\n")
	cfg.WriteString(fmt.Sprintf("  window: \"%s\"\n", window))
	cfg.WriteString(fmt.Sprintf("  counter_policy: \"%s\"\n", counterPolicy))
	cfg.WriteString("\n")

	cfg.WriteString("session:\n")
	cfg.WriteString(fmt.Sprintf("  secret: \"%s\"\n", secret))
	cfg.WriteString("  duration: \"24h\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(storePath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  passgate serve\n")

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
