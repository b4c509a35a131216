package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	pub, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "Subgate", pub.SiteName)
	require.True(t, pub.RegistrationOpen)
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `site_name: My Gateway
site_subtitle: internal deployment
doc_url: https://docs.example.com
registration_open: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	pub, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "My Gateway", pub.SiteName)
	require.Equal(t, "internal deployment", pub.SiteSubtitle)
	require.Equal(t, "https://docs.example.com", pub.DocURL)
	require.False(t, pub.RegistrationOpen)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("site_name: Partial\n"), 0644))

	pub, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "Partial", pub.SiteName)
	require.True(t, pub.RegistrationOpen, "unset fields keep their defaults")
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("site_name: [unclosed"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}
