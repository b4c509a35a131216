package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewWhoamiCmd creates the whoami command
func NewWhoamiCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveServerURL(serverURL)
			if err != nil {
				return err
			}

			mgr, _ := newSession(resolved)
			mgr.CheckAuth(cmd.Context())

			if !mgr.IsAuthenticated() {
				return fmt.Errorf("not logged in (run 'subgate login' first)")
			}

			user := mgr.User()
			if user == nil {
				// Token restored but identity not yet confirmed
				fmt.Println("Logged in (identity not confirmed; server unreachable?)")
				return nil
			}

			fmt.Printf("User:        %s (%s)\n", user.Username, user.Email)
			fmt.Printf("Role:        %s\n", user.Role)
			fmt.Printf("Run mode:    %s\n", mgr.RunMode())
			fmt.Printf("Balance:     %.2f\n", user.Balance)
			fmt.Printf("Concurrency: %d\n", user.Concurrency)
			if user.TOTPEnabled {
				fmt.Println("2FA:         enabled")
			} else {
				fmt.Println("2FA:         disabled")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Server URL (or set SUBGATE_SERVER)")

	return cmd
}
