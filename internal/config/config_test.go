package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsOnly(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.HTTP.Port)
	require.Equal(t, 5500, cfg.TCP.Port)
	require.Equal(t, "admin", cfg.Admin.User)
	require.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("CARBON_HTTP_PORT", "9090")
	t.Setenv("CARBON_ADMIN_USER", "root")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.HTTP.Port)
	require.Equal(t, "root", cfg.Admin.User)
}

func TestLoad_YAMLFileOverridesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "carbon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  port: 7000\n"), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.Equal(t, 7000, cfg.HTTP.Port)
}

func TestLoad_FlagsOutrankEnvAndFile(t *testing.T) {
	t.Setenv("CARBON_HTTP_PORT", "9090")

	path := filepath.Join(t.TempDir(), "carbon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  port: 7000\n"), 0o644))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Flags(fs)
	require.NoError(t, fs.Parse([]string{"--http.port=1234"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	require.Equal(t, 1234, cfg.HTTP.Port)
}
