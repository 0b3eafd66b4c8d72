package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display the session and authorization state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, result, err := startApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		a.Controller.Wait()

		snap := a.Controller.Snapshot()
		if statusJSON {
			printJSON(cmd.OutOrStdout(), snap)
			return nil
		}

		pterm.DefaultSection.Println("Session")
		if result.Skipped {
			pterm.Warning.Println("Non-interactive mode, identity provider skipped")
		}
		if !snap.Authenticated {
			pterm.Info.Printfln("Not signed in (state %s)", snap.State)
			return nil
		}

		pterm.Info.Printfln("Signed in as %s", snap.Subject)
		if creds, err := a.Store.LoadCredentials(cmd.Context()); err == nil && !creds.ExpiresAt.IsZero() {
			pterm.Info.Printfln("Token expires at %s", creds.ExpiresAt.Format(time.RFC1123))
		}

		rows := pterm.TableData{{"ROLES", "ADMIN"}}
		rows = append(rows, []string{strings.Join(snap.Roles.Slice(), ", "), fmt.Sprint(snap.IsAdmin())})
		if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
			return err
		}

		if snap.Profile != nil {
			pterm.DefaultSection.Println("Profile")
			printJSON(cmd.OutOrStdout(), snap.Profile)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the snapshot as JSON")
}
