package credfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	mp map[int]string
}

func (f *fakeRegistry) Lookup(pid int, defaultAccount string) string {
	if acct, ok := f.mp[pid]; ok {
		return acct
	}
	return defaultAccount
}

func newTestResolver(t *testing.T, reg Registry) (*Resolver, string, string) {
	t.Helper()
	root := t.TempDir()
	backing := filepath.Join(root, "backing-claude")
	profiles := filepath.Join(root, "profiles")
	require.NoError(t, os.MkdirAll(backing, 0755))
	require.NoError(t, os.MkdirAll(profiles, 0755))

	spec := Spec{
		Tool:           "claude",
		BackingDir:     backing,
		ProfilesDir:    profiles,
		DefaultAccount: "default",
		CredBasenames:  map[string]bool{".credentials.json": true},
	}
	return NewResolver(spec, reg, nil), backing, profiles
}

func TestResolveSharedPath(t *testing.T) {
	reg := &fakeRegistry{}
	r, backing, _ := newTestResolver(t, reg)

	abs, isCred, err := r.Resolve("settings.json", CallerContext{PID: 1000})
	require.NoError(t, err)
	require.False(t, isCred)
	require.Equal(t, filepath.Join(backing, "settings.json"), abs)
}

func TestResolveCredentialPathIsolation(t *testing.T) {
	reg := &fakeRegistry{mp: map[int]string{1000: "alice", 2000: "bob"}}
	r, _, profiles := newTestResolver(t, reg)

	absA, isCred, err := r.Resolve(".credentials.json", CallerContext{PID: 1000})
	require.NoError(t, err)
	require.True(t, isCred)
	require.Equal(t, filepath.Join(profiles, "alice", "claude", ".credentials.json"), absA)

	absB, _, err := r.Resolve(".credentials.json", CallerContext{PID: 2000})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(profiles, "bob", "claude", ".credentials.json"), absB)
	require.NotEqual(t, absA, absB)
}

func TestLazyInitFromBacking(t *testing.T) {
	reg := &fakeRegistry{mp: map[int]string{1000: "alice"}}
	r, backing, profiles := newTestResolver(t, reg)

	require.NoError(t, os.WriteFile(filepath.Join(backing, ".credentials.json"), []byte(`{"seed":true}`), 0600))

	abs, _, err := r.Resolve(".credentials.json", CallerContext{PID: 1000})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(profiles, "alice", "claude", ".credentials.json"), abs)

	body, err := os.ReadFile(abs)
	require.NoError(t, err)
	require.Equal(t, `{"seed":true}`, string(body))
}

func TestLazyInitWritesEmptyObjectWhenNoBacking(t *testing.T) {
	reg := &fakeRegistry{}
	r, _, _ := newTestResolver(t, reg)

	abs, _, err := r.Resolve(".credentials.json", CallerContext{PID: 9999})
	require.NoError(t, err)

	body, err := os.ReadFile(abs)
	require.NoError(t, err)
	require.Equal(t, "{}", string(body))
}

func TestLazyInitIdempotent(t *testing.T) {
	reg := &fakeRegistry{}
	r, _, _ := newTestResolver(t, reg)

	abs1, _, err := r.Resolve(".credentials.json", CallerContext{PID: 1})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(abs1, []byte(`{"updated":true}`), 0600))

	abs2, _, err := r.Resolve(".credentials.json", CallerContext{PID: 1})
	require.NoError(t, err)
	require.Equal(t, abs1, abs2)

	body, err := os.ReadFile(abs2)
	require.NoError(t, err)
	require.Equal(t, `{"updated":true}`, string(body))
}

func TestOperationsSharedFileIsVisibleAcrossAccounts(t *testing.T) {
	reg := &fakeRegistry{mp: map[int]string{1000: "alice", 2000: "bob"}}
	r, _, _ := newTestResolver(t, reg)
	ops := NewOperations(r)

	f, err := ops.Create("settings.json", 0644, CallerContext{PID: 1000})
	require.NoError(t, err)
	_, err = f.WriteString("shared-bytes")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	abs, _, err := r.Resolve("settings.json", CallerContext{PID: 2000})
	require.NoError(t, err)
	body, err := os.ReadFile(abs)
	require.NoError(t, err)
	require.Equal(t, "shared-bytes", string(body))
}

func TestPrepareBackingDirCopiesSymlinksAndFiles(t *testing.T) {
	root := t.TempDir()
	mountSrc := filepath.Join(root, "mnt-src")
	backing := filepath.Join(root, "backing")
	require.NoError(t, os.MkdirAll(mountSrc, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(mountSrc, "auth.json"), []byte(`{}`), 0600))
	require.NoError(t, os.Symlink("auth.json", filepath.Join(mountSrc, "auth-link")))

	require.NoError(t, PrepareBackingDir(mountSrc, backing))

	body, err := os.ReadFile(filepath.Join(backing, "auth.json"))
	require.NoError(t, err)
	require.Equal(t, "{}", string(body))

	target, err := os.Readlink(filepath.Join(backing, "auth-link"))
	require.NoError(t, err)
	require.Equal(t, "auth.json", target)
}

func TestToErrno(t *testing.T) {
	_, err := os.Open(filepath.Join(t.TempDir(), "nope"))
	require.Equal(t, ToErrno(err).Error(), ToErrno(err).Error()) // sanity: deterministic
	require.NotEqual(t, 0, int(ToErrno(err)))
}
