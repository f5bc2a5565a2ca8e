// Package main provides the entry point for the homelab-core server.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vegardlu/homelab-core/configs"
	"github.com/vegardlu/homelab-core/internal/assistant"
	"github.com/vegardlu/homelab-core/internal/cache"
	"github.com/vegardlu/homelab-core/internal/config"
	"github.com/vegardlu/homelab-core/internal/dashboard"
	"github.com/vegardlu/homelab-core/internal/homeassistant"
	"github.com/vegardlu/homelab-core/internal/httpapi"
	"github.com/vegardlu/homelab-core/internal/logging"
	"github.com/vegardlu/homelab-core/internal/mcp"
	"github.com/vegardlu/homelab-core/internal/store"
	"github.com/vegardlu/homelab-core/internal/tools"
	"github.com/vegardlu/homelab-core/internal/weather"
)

// App holds the CLI application state and dependencies.
type App struct {
	cfgFile string
	haURL   string
	haToken string
	port    int
	rootCmd *cobra.Command
}

// NewApp creates a new CLI application instance with all dependencies.
func NewApp() *App {
	app := &App{}
	app.rootCmd = app.buildRootCmd()
	app.setupFlags()
	app.addCommands()
	return app
}

// buildRootCmd creates the root cobra command.
func (a *App) buildRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "homelab-core",
		Short: "Home automation backend for Home Assistant",
		Long: `homelab-core is a home automation backend that keeps a fast
in-memory snapshot of Home Assistant entities and exposes them through
three fronts: an MCP server for AI agents, a REST API for the dashboard,
and a Gemini chat assistant that can search and control the home.`,
		RunE: a.run,
	}
}

// setupFlags configures CLI flags and binds them to viper.
func (a *App) setupFlags() {
	a.rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./config.yaml)")
	a.rootCmd.PersistentFlags().StringVar(&a.haURL, "ha-url", "", "Home Assistant URL")
	a.rootCmd.PersistentFlags().StringVar(&a.haToken, "ha-token", "", "Home Assistant long-lived access token")
	a.rootCmd.PersistentFlags().IntVar(&a.port, "port", 0, "MCP server port")

	bindPFlag("homeassistant.url", a.rootCmd.PersistentFlags().Lookup("ha-url"))
	bindPFlag("homeassistant.token", a.rootCmd.PersistentFlags().Lookup("ha-token"))
	bindPFlag("server.port", a.rootCmd.PersistentFlags().Lookup("port"))
}

// addCommands adds subcommands to the root command.
func (a *App) addCommands() {
	a.rootCmd.AddCommand(a.buildConfigCmd())
	a.rootCmd.AddCommand(a.buildInitCmd())
}

// buildConfigCmd creates the config subcommand that displays the effective configuration.
func (a *App) buildConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Display the effective configuration",
		Long: `Display the effective configuration with sensitive data masked.

This command shows the configuration that would be used if the server were started,
including values from the config file, environment variables, and CLI flags.
Sensitive data like tokens are masked for security.`,
		RunE: a.runConfig,
	}
}

// buildInitCmd creates the init subcommand that creates configuration files.
func (a *App) buildInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration files",
		Long: `Create configuration files in the current directory.

This command creates:
  - config.yaml: YAML configuration file
  - .env: Environment variables file

If files already exist, they will not be overwritten.`,
		RunE: a.runInit,
	}
}

// runInit creates configuration files from embedded templates.
func (a *App) runInit(_ *cobra.Command, _ []string) error {
	created := 0

	// Create config.yaml
	wasCreated, err := a.writeConfigFile("config.yaml", configs.ConfigYAML)
	if err != nil {
		return err
	}
	if wasCreated {
		created++
	}

	// Create .env
	wasCreated, err = a.writeConfigFile(".env", configs.EnvExample)
	if err != nil {
		return err
	}
	if wasCreated {
		created++
	}

	if created == 0 {
		fmt.Println("All configuration files already exist. Nothing to do.")
		return nil
	}

	fmt.Printf("Created %d configuration file(s) in current directory.\n", created)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit config.yaml or .env with your Home Assistant settings")
	fmt.Println("  2. Run 'homelab-core config' to verify your configuration")
	fmt.Println("  3. Run 'homelab-core' to start the server")

	return nil
}

// writeConfigFile writes content to a file if it doesn't already exist.
// Returns true if the file was created, false if it was skipped.
func (a *App) writeConfigFile(filename string, content []byte) (bool, error) {
	if _, err := os.Stat(filename); err == nil {
		fmt.Printf("Skipping %s (already exists)\n", filename)
		return false, nil
	}

	if err := os.WriteFile(filename, content, 0600); err != nil {
		return false, fmt.Errorf("writing %s: %w", filename, err)
	}

	fmt.Printf("Created %s\n", filename)
	return true, nil
}

// runConfig loads and displays the effective configuration with masked sensitive data.
func (a *App) runConfig(cmd *cobra.Command, _ []string) error {
	// Load configuration without validation (allow missing token for display)
	cfg, err := config.LoadForDisplay(a.cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	var w io.Writer = os.Stdout
	if cmd != nil {
		w = cmd.OutOrStdout()
	}
	printConfig(w, cfg.MaskedConfig())
	return nil
}

// printConfig renders the masked configuration section by section.
func printConfig(w io.Writer, masked config.Config) {
	fmt.Fprintln(w, "Effective Configuration")
	fmt.Fprintln(w, "=======================")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Home Assistant:")
	fmt.Fprintf(w, "  URL:           %s\n", masked.HomeAssistant.URL)
	fmt.Fprintf(w, "  Token:         %s\n", masked.HomeAssistant.Token)
	fmt.Fprintf(w, "  Poll interval: %s\n", masked.HomeAssistant.PollInterval)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Server:")
	fmt.Fprintf(w, "  MCP port: %d\n", masked.Server.Port)
	fmt.Fprintf(w, "  API port: %d\n", masked.Server.APIPort)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Logging:")
	fmt.Fprintf(w, "  Level: %s\n", masked.Logging.Level)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Gemini:")
	fmt.Fprintf(w, "  API key: %s\n", orDisabled(masked.Gemini.APIKey))
	fmt.Fprintf(w, "  Model:   %s\n", masked.Gemini.Model)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Weather:")
	fmt.Fprintf(w, "  User-Agent: %s\n", masked.Weather.UserAgent)
	fmt.Fprintf(w, "  Cache TTL:  %s\n", masked.Weather.CacheTTL)
	fmt.Fprintf(w, "  Locations:  %d\n", len(masked.Weather.Locations))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Database:")
	fmt.Fprintf(w, "  Host: %s\n", orDisabled(masked.Database.Host))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Auth:")
	fmt.Fprintf(w, "  JWT secret: %s\n", orDisabled(masked.Auth.JWTSecret))
}

// orDisabled renders an optional setting for display.
func orDisabled(s string) string {
	if s == "" {
		return "(disabled)"
	}
	return s
}

// Execute runs the CLI application.
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// bindPFlag binds a flag to viper and logs an error if binding fails.
func bindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		log.Printf("warning: failed to bind flag %s: %v", key, err)
	}
}

func main() {
	app := NewApp()
	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes the main server logic.
func (a *App) run(_ *cobra.Command, _ []string) error {
	// Load configuration
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	// Setup logger with configured level
	logLevel, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Printf("Warning: invalid log level %q, using INFO", cfg.Logging.Level)
		logLevel = logging.LevelInfo
	}
	logger := logging.New(logLevel)
	logging.SetDefault(logger)

	logger.Info("Starting homelab-core", "mcp_port", cfg.Server.Port, "api_port", cfg.Server.APIPort)
	logger.Info("Home Assistant URL", "url", cfg.HomeAssistant.URL)
	logger.Info("Log level", "level", logging.LevelString(logLevel))

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received signal, shutting down...", "signal", sig)
		cancel()
	}()

	// Gateway client and entity cache. The bootstrap refresh runs
	// synchronously so the servers never start with an empty snapshot
	// when the hub is reachable; on failure we start anyway and let the
	// poll loop fill the cache.
	haClient := homeassistant.NewRESTClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, logger)
	entityCache := cache.New(haClient, logger, cfg.HomeAssistant.PollInterval)

	logger.Info("Bootstrapping entity cache...")
	entityCache.Refresh(ctx)
	logger.Info("Entity cache bootstrapped", "entities", len(entityCache.All()), "areas", len(entityCache.Areas()))

	go entityCache.Run(ctx)

	// Tool façade shared by the MCP server and the assistant
	registry := tools.NewRegistry()
	tools.NewHATools(entityCache, haClient).Register(registry)
	logger.Info("Registered tools", "count", registry.Count())

	// Weather
	weatherSvc := weather.NewService(
		weather.NewYRClient(cfg.Weather.UserAgent),
		cfg.Weather.Locations,
		cfg.Weather.CacheTTL,
		logger,
	)

	// Optional user store
	var users *store.Store
	if cfg.Database.Host != "" {
		users, err = store.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening user store: %w", err)
		}
		logger.Info("User store connected", "host", cfg.Database.Host)
	} else {
		logger.Info("User store disabled (no database configured)")
	}

	// Optional chat assistant
	var chat httpapi.Options
	chat.JWTSecret = cfg.Auth.JWTSecret
	if users != nil {
		chat.Users = users
	}
	if cfg.Gemini.APIKey != "" {
		asst, err := assistant.New(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, registry, logger)
		if err != nil {
			return fmt.Errorf("creating assistant: %w", err)
		}
		chat.Chat = asst
		logger.Info("Chat assistant enabled", "model", cfg.Gemini.Model)
	} else {
		logger.Info("Chat assistant disabled (no API key configured)")
	}

	// MCP server
	mcpServer := mcp.NewServer(registry, cfg.Server.Port, logger)
	go func() {
		if err := mcpServer.Start(); err != nil {
			logger.Error("MCP server error", "error", err)
			cancel()
		}
	}()

	// REST API server
	dashboardSvc := dashboard.NewService(entityCache, haClient)
	apiServer := httpapi.NewServer(dashboardSvc, weatherSvc, entityCache, cfg.Server.APIPort, logger, chat)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("API server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}
	if err := mcpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("MCP server shutdown error", "error", err)
	}

	logger.Info("Shutdown complete")
	return nil
}
