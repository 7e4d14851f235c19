// Command aguichat is a terminal client for AG-UI agents.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nikhilthomas300/myCompanion/client"
	"github.com/nikhilthomas300/myCompanion/config"
	"github.com/nikhilthomas300/myCompanion/internal/logging"
	"github.com/nikhilthomas300/myCompanion/internal/render"
)

var (
	configPath string
	baseURL    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "aguichat",
	Short: "Chat with an AG-UI agent from the terminal",
	Long: `aguichat streams agent runs over the AG-UI protocol and shows the
conversation as it is reconstructed: assistant text, tool calls with their
arguments and results, and artifacts.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/aguichat/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Agent server URL (overrides config and "+config.EnvBaseURL+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the config file, environment and flags, in that
// order of increasing precedence.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger creates a structured logger that writes to stderr.
func newLogger(cfg *config.Config) *slog.Logger {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.New(os.Stderr, level)
}

func newClient(cfg *config.Config, logger *slog.Logger) (*client.Client, error) {
	opts := []client.ClientOption{
		client.WithLogger(logger),
		client.WithRunPath(cfg.RunPath),
		client.WithRequestTimeout(cfg.RequestTimeout),
	}
	if cfg.HealthPath != "" {
		opts = append(opts, client.WithHealthPath(cfg.HealthPath))
	}
	for k, v := range cfg.Headers {
		opts = append(opts, client.WithHeader(k, v))
	}
	return client.NewClient(cfg.BaseURL, opts...)
}

func newRenderer(cfg *config.Config) (*render.Renderer, error) {
	return render.New(render.Options{
		MarkdownStyle: cfg.MarkdownStyle,
		Width:         render.TerminalWidth(os.Stdout),
		Markdown:      cfg.Markdown,
	})
}

// setup loads config and builds the logger and client every networked
// subcommand needs.
func setup() (*config.Config, *slog.Logger, *client.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(cfg)
	c, err := newClient(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, c, nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
