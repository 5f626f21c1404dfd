package daemonconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[global]
	Run-Dir=/run/fuse-auth-proxy
	Profiles-Dir=/var/lib/fuse-auth-proxy/profiles
	Default-Account=default
	Log-Level=DEBUG
	Foreground=true
	Control-Allowed-UID=0

[Tool claude]
	Mount-Point=/home/alice/.claude

[Tool codex]
	Mount-Point=/home/alice/.codex
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "fuseauthd.conf")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestLoadValid(t *testing.T) {
	p := writeConfig(t, sampleConfig)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "/run/fuse-auth-proxy", cfg.RunDir)
	require.Equal(t, "/var/lib/fuse-auth-proxy/profiles", cfg.ProfilesDir)
	require.Equal(t, "default", cfg.DefaultAccount)
	require.True(t, cfg.Foreground)
	require.Len(t, cfg.Tools, 2)
}

func TestLoadMissingRunDir(t *testing.T) {
	p := writeConfig(t, `
[global]
	Profiles-Dir=/var/lib/fuse-auth-proxy/profiles
[Tool claude]
	Mount-Point=/home/alice/.claude
`)
	_, err := Load(p)
	require.Error(t, err)
}

func TestLoadNoTools(t *testing.T) {
	p := writeConfig(t, `
[global]
	Run-Dir=/run/fuse-auth-proxy
	Profiles-Dir=/var/lib/fuse-auth-proxy/profiles
`)
	_, err := Load(p)
	require.Error(t, err)
}

func TestLoadDuplicateMountPoint(t *testing.T) {
	p := writeConfig(t, `
[global]
	Run-Dir=/run/fuse-auth-proxy
	Profiles-Dir=/var/lib/fuse-auth-proxy/profiles
[Tool claude]
	Mount-Point=/home/alice/.shared
[Tool codex]
	Mount-Point=/home/alice/.shared
`)
	_, err := Load(p)
	require.Error(t, err)
}

func TestLoadBadLogLevel(t *testing.T) {
	p := writeConfig(t, `
[global]
	Run-Dir=/run/fuse-auth-proxy
	Profiles-Dir=/var/lib/fuse-auth-proxy/profiles
	Log-Level=NOTALEVEL
[Tool claude]
	Mount-Point=/home/alice/.claude
`)
	_, err := Load(p)
	require.Error(t, err)
}

func TestExpandPathHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	p, err := expandPath("~/foo/bar")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "foo/bar"), p)
}
