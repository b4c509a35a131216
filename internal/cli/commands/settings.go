package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/subgate-dev/subgate/internal/cli/client"
)

// NewSettingsCmd creates the settings command
func NewSettingsCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show the server's public settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveServerURL(serverURL)
			if err != nil {
				return err
			}

			api := client.New(resolved)
			pub, err := api.PublicSettings(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to fetch settings: %w", err)
			}

			fmt.Printf("Site:         %s\n", pub.SiteName)
			if pub.SiteSubtitle != "" {
				fmt.Printf("Subtitle:     %s\n", pub.SiteSubtitle)
			}
			if pub.DocURL != "" {
				fmt.Printf("Docs:         %s\n", pub.DocURL)
			}
			fmt.Printf("Registration: %v\n", pub.RegistrationOpen)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Server URL (or set SUBGATE_SERVER)")

	return cmd
}
