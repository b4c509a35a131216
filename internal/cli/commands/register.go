package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/subgate-dev/subgate/internal/cli/client"
)

// NewRegisterCmd creates the register command
func NewRegisterCmd() *cobra.Command {
	var serverURL, username, email, password, inviteCode string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account on a Subgate server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				email = os.Getenv("SUBGATE_EMAIL")
			}
			if username == "" || email == "" {
				return fmt.Errorf("--username and --email are required")
			}

			resolved, err := resolveServerURL(serverURL)
			if err != nil {
				return err
			}

			if password == "" {
				password, err = readSecret("Password: ")
				if err != nil {
					return err
				}
				confirm, err := readSecret("Confirm password: ")
				if err != nil {
					return err
				}
				if password != confirm {
					return fmt.Errorf("passwords do not match")
				}
			}

			mgr, _ := newSession(resolved)

			user, err := mgr.Register(cmd.Context(), client.RegisterData{
				Username:   username,
				Email:      email,
				Password:   password,
				InviteCode: inviteCode,
			})
			if err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}

			fmt.Println("✓ Account created!")
			fmt.Printf("  User: %s (%s)\n", user.Username, user.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Server URL (or set SUBGATE_SERVER)")
	cmd.Flags().StringVar(&username, "username", "", "Username")
	cmd.Flags().StringVar(&email, "email", "", "Email address (or set SUBGATE_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (will prompt if not provided)")
	cmd.Flags().StringVar(&inviteCode, "invite-code", "", "Invite code, when the server requires one")

	return cmd
}
