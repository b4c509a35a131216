package commands

import (
	"testing"

	"github.com/subgate-dev/subgate/internal/cli/userconfig"
)

func TestInitCommand_SavesServerURL(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cmd := NewInitCmd()
	cmd.SetArgs([]string{"https://console.example.com"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	url, err := userconfig.GetServerURL()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if url != "https://console.example.com" {
		t.Errorf("expected saved server URL, got %q", url)
	}
}

func TestInitCommand_RejectsInvalidURL(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	tests := []struct {
		name string
		arg  string
	}{
		{"missing scheme", "console.example.com"},
		{"missing host", "https://"},
		{"garbage", "::not-a-url::"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewInitCmd()
			cmd.SetArgs([]string{tt.arg})
			cmd.SilenceErrors = true
			cmd.SilenceUsage = true

			if err := cmd.Execute(); err == nil {
				t.Errorf("expected error for %q, got nil", tt.arg)
			}
		})
	}
}
