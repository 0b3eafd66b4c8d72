package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, result, err := startApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if !result.Authenticated {
			pterm.Info.Println("Not signed in")
			return nil
		}
		return a.Controller.Logout(cmd.Context())
	},
}
