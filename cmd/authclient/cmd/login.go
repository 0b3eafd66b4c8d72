package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-auth-client/cmd/authclient/internal/callback"
)

var loginTimeout time.Duration

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in through the browser",
	Long: `Starts the authorization code flow. A loopback server on the configured
redirect URL receives the code and completes the login.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, result, err := startApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if result.Skipped {
			return fmt.Errorf("login needs an interactive session")
		}
		if result.Authenticated {
			pterm.Info.Printfln("Already signed in as %s", a.Controller.Snapshot().Subject)
			return nil
		}

		server, err := callback.New(a.Config.Provider.RedirectURL, a.Provider.HandleCallback)
		if err != nil {
			return err
		}
		server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()

		if err := a.Controller.Login(ctx); err != nil {
			return fmt.Errorf("starting login: %w", err)
		}

		waitCtx, cancel := context.WithTimeout(ctx, loginTimeout)
		defer cancel()
		if err := server.Wait(waitCtx); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		a.Controller.Wait()
		if !a.Controller.Authenticated() {
			return fmt.Errorf("login did not establish a session")
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 5*time.Minute, "How long to wait for the browser login")
}
