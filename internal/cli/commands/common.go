package commands

import (
	"fmt"
	"os"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	cliauth "github.com/subgate-dev/subgate/internal/cli/auth"
	"github.com/subgate-dev/subgate/internal/cli/client"
	"github.com/subgate-dev/subgate/internal/cli/session"
	"github.com/subgate-dev/subgate/internal/cli/userconfig"
)

// resolveServerURL returns the target server, preferring the flag/env
// over the configured default
func resolveServerURL(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv("SUBGATE_SERVER"); env != "" {
		return env, nil
	}

	serverURL, err := userconfig.GetServerURL()
	if err != nil {
		return "", err
	}
	if serverURL == "" {
		return "", fmt.Errorf("no server configured (use --server, SUBGATE_SERVER, or 'subgate init')")
	}
	return serverURL, nil
}

// newSession wires the API client and session manager for a server
func newSession(serverURL string) (*session.Manager, *client.Client) {
	api := client.New(serverURL)
	mgr := session.NewManager(api, serverURL, cliauth.Default, &userconfig.FileSessionStore{}, zerolog.Nop())
	api.SetTokenSource(mgr)
	return mgr, api
}

// readSecret prompts for a value without echoing it
func readSecret(prompt string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("interactive input required (stdin is not a terminal)")
	}

	fmt.Print(prompt)
	value, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(value), nil
}
