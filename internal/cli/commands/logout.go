package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewLogoutCmd creates the logout command
func NewLogoutCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveServerURL(serverURL)
			if err != nil {
				return err
			}

			mgr, api := newSession(resolved)
			mgr.CheckAuth(cmd.Context())

			// Best-effort server notification; the local reset below is
			// what actually ends the session
			if mgr.IsAuthenticated() {
				if err := api.Logout(cmd.Context()); err != nil {
					fmt.Println("  (server logout failed, clearing local session anyway)")
				}
			}

			mgr.Logout()
			fmt.Println("✓ Logged out")
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Server URL (or set SUBGATE_SERVER)")

	return cmd
}
