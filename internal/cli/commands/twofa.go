package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/subgate-dev/subgate/internal/cli/client"
	"github.com/subgate-dev/subgate/internal/cli/session"
)

// New2FACmd creates the 2fa command group
func New2FACmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "2fa",
		Short: "Manage two-factor authentication",
	}

	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server URL (or set SUBGATE_SERVER)")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether 2FA is enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, api, err := authedSession(cmd, serverURL)
			if err != nil {
				return err
			}

			enabled, err := api.TwoFAStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to fetch 2FA status: %w", err)
			}

			if enabled {
				fmt.Println("2FA: enabled")
			} else {
				fmt.Println("2FA: disabled")
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "enable",
		Short: "Enable 2FA for this account",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, api, err := authedSession(cmd, serverURL)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			setup, err := api.Setup2FA(ctx)
			if err != nil {
				return fmt.Errorf("failed to start 2FA setup: %w", err)
			}

			fmt.Println("Add this account to your authenticator app:")
			fmt.Printf("  Secret: %s\n", setup.Secret)
			fmt.Printf("  URL:    %s\n", setup.QRCode)
			fmt.Println()

			code, err := readCode()
			if err != nil {
				return err
			}

			recoveryCodes, err := api.Confirm2FA(ctx, code)
			if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}

			fmt.Println("✓ 2FA enabled!")
			fmt.Println()
			fmt.Println("Recovery codes (store them somewhere safe, each works once):")
			for _, rc := range recoveryCodes {
				fmt.Printf("  %s\n", rc)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "disable",
		Short: "Disable 2FA for this account",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, api, err := authedSession(cmd, serverURL)
			if err != nil {
				return err
			}

			code, err := readCode()
			if err != nil {
				return err
			}

			if err := api.Disable2FA(cmd.Context(), code); err != nil {
				return fmt.Errorf("failed to disable 2FA: %w", err)
			}

			fmt.Println("✓ 2FA disabled")
			return nil
		},
	})

	return cmd
}

// authedSession resolves the server and requires a restored session
func authedSession(cmd *cobra.Command, serverURL string) (*session.Manager, *client.Client, error) {
	resolved, err := resolveServerURL(serverURL)
	if err != nil {
		return nil, nil, err
	}

	mgr, api := newSession(resolved)
	mgr.CheckAuth(cmd.Context())

	if !mgr.IsAuthenticated() {
		return nil, nil, fmt.Errorf("not logged in (run 'subgate login' first)")
	}
	return mgr, api, nil
}
