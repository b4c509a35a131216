// Package settings loads the operator-editable public site settings
// served to the console on /settings/public.
package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Public holds site branding and feature flags exposed without
// authentication. Secrets never belong here.
type Public struct {
	SiteName                 string `yaml:"site_name" json:"site_name"`
	SiteLogo                 string `yaml:"site_logo" json:"site_logo,omitempty"`
	SiteSubtitle             string `yaml:"site_subtitle" json:"site_subtitle,omitempty"`
	DocURL                   string `yaml:"doc_url" json:"doc_url,omitempty"`
	HomeContent              string `yaml:"home_content" json:"home_content,omitempty"`
	EmailVerificationEnabled bool   `yaml:"email_verification_enabled" json:"email_verification_enabled"`
	RegistrationOpen         bool   `yaml:"registration_open" json:"registration_open"`
}

// Defaults returns the settings used when no settings file exists
func Defaults() *Public {
	return &Public{
		SiteName:         "Subgate",
		RegistrationOpen: true,
	}
}

// Load reads public settings from a yaml file. A missing file is not an
// error; defaults are returned so a fresh deployment works unconfigured.
func Load(path string) (*Public, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	pub := Defaults()
	if err := yaml.Unmarshal(data, pub); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	return pub, nil
}
