package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/subgate-dev/subgate/internal/cli/client"
)

// NewLoginCmd creates the login command
func NewLoginCmd() *cobra.Command {
	var serverURL, email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with a Subgate server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, serverURL, email, password)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Server URL (or set SUBGATE_SERVER)")
	cmd.Flags().StringVar(&email, "email", "", "Email address (or set SUBGATE_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set SUBGATE_PASSWORD, will prompt if not provided)")

	return cmd
}

func runLogin(cmd *cobra.Command, serverURL, email, password string) error {
	// Check for environment variables (useful for CI/CD)
	if email == "" {
		email = os.Getenv("SUBGATE_EMAIL")
	}
	if password == "" {
		password = os.Getenv("SUBGATE_PASSWORD")
	}

	if email == "" {
		return fmt.Errorf("email is required (use --email flag or SUBGATE_EMAIL env var)")
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
	}

	mgr, _ := newSession(resolved)
	ctx := cmd.Context()

	fmt.Printf("Logging in to %s...\n", resolved)

	result, err := mgr.Login(ctx, client.Credentials{Email: email, Password: password})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	// 2FA-enabled accounts get a session only after the code round-trip
	if result.StepUpRequired {
		code, err := readCode()
		if err != nil {
			return err
		}

		if _, err := mgr.Login2FA(ctx, result.TempToken, code); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
	}

	user := mgr.User()
	fmt.Println("✓ Login successful!")
	fmt.Printf("  User: %s (%s)\n", user.Username, user.Email)
	if mgr.IsAdmin() {
		fmt.Println("  Role: Admin")
	}

	return nil
}

func readCode() (string, error) {
	fmt.Print("Two-factor code: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read code: %w", err)
	}
	return strings.TrimSpace(line), nil
}
