package cmd

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	callMethod string
	callBody   string
)

var callCmd = &cobra.Command{
	Use:   "call <url>",
	Short: "Call an API with the session credentials",
	Long: `Issues a request through the credential transport. The access token is
refreshed when it is about to expire; when the refresh fails a new login is
started and the request is sent without credentials.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, _, err := startApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Debug("watcher not started: %v", err)
		}

		var body io.Reader
		if callBody != "" {
			body = strings.NewReader(callBody)
		}
		req, err := http.NewRequestWithContext(ctx, strings.ToUpper(callMethod), args[0], body)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := a.Controller.Transport().Client().Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode >= 400 {
			pterm.Error.Printfln("%s %s: %s", req.Method, req.URL, resp.Status)
		} else {
			pterm.Success.Printfln("%s %s: %s", req.Method, req.URL, resp.Status)
		}

		printBody(cmd.OutOrStdout(), data)
		return nil
	},
}

func init() {
	callCmd.Flags().StringVarP(&callMethod, "method", "X", http.MethodGet, "HTTP method")
	callCmd.Flags().StringVarP(&callBody, "data", "d", "", "JSON request body")
}
