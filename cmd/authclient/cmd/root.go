package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/cmd/authclient/internal/app"
)

var (
	configPath     string
	nonInteractive bool
)

var rootCmd = &cobra.Command{
	Use:   "authclient",
	Short: "Session client for an OpenID Connect protected API",
	Long: `authclient signs in against an OpenID Connect issuer, keeps the session
fresh and calls protected APIs with the current access token.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv(authclient.EnvNonInteractive) == "1" {
			nonInteractive = true
		}
	},
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "authclient.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Skip the identity provider (also set via AUTH_NON_INTERACTIVE=1)")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(callCmd)
}

func loadConfig() (*authclient.Config, error) {
	cfg, err := authclient.Load(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %s not found, pass --config", configPath)
	}
	if err != nil {
		return nil, err
	}
	if nonInteractive {
		cfg.Session.NonInteractive = true
	}
	return cfg, nil
}

// startApp builds the App and runs the session startup sequence.
func startApp(ctx context.Context, opts ...app.Option) (*app.App, authclient.StartupResult, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, authclient.StartupResult{}, err
	}

	a, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return nil, authclient.StartupResult{}, err
	}

	result := a.Controller.Startup(ctx, authclient.StartupOptions{})
	if result.Err != nil {
		a.Logger.Warn("session startup: %v", result.Err)
	}
	return a, result, nil
}
