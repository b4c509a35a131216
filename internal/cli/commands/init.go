package commands

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/subgate-dev/subgate/internal/cli/userconfig"
)

// NewInitCmd creates the init command
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <server-url>",
		Short: "Configure the Subgate server this CLI talks to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serverURL := args[0]

			parsed, err := url.Parse(serverURL)
			if err != nil || parsed.Scheme == "" || parsed.Host == "" {
				return fmt.Errorf("invalid server URL %q (expected e.g. https://console.example.com)", serverURL)
			}

			if err := userconfig.SetServerURL(serverURL); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			fmt.Printf("✓ Server set to %s\n", serverURL)
			return nil
		},
	}
}
