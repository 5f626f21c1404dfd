// Package credfs implements the Credential Filesystem: one instance per
// managed tool, multiplexing a single backing directory into per-account
// views for a fixed set of credential basenames. Everything in this
// package except bridge.go is FUSE-agnostic - it works purely in terms of
// paths, os.FileInfo and CallerContext, so it is unit-testable without a
// real mount.
package credfs

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/voice-squad/fuseauthd/internal/logging"
)

// CallerContext is the caller-credentials triple the spec requires path
// resolution to use. It carries no FUSE-specific type.
type CallerContext struct {
	PID int
	UID int
	GID int
}

// Registry is the subset of *registry.Registry the filesystem needs.
type Registry interface {
	Lookup(pid int, defaultAccount string) string
}

// Spec describes one managed tool: its name, its backing directory (the
// shared view), the profiles root, the default account, and its
// credential-file basenames.
type Spec struct {
	Tool           string
	BackingDir     string
	ProfilesDir    string
	DefaultAccount string
	CredBasenames  map[string]bool
}

// Resolver implements spec.md §4.4's path-resolution and lazy-init
// algorithm. One Resolver per managed tool.
type Resolver struct {
	spec Spec
	reg  Registry
	log  *logging.Logger

	// initMtx is the "instance-wide mutex" guarding lazy credential-file
	// creation; held only while copying/writing a single initial body.
	initMtx sync.Mutex
}

// NewResolver builds a Resolver for one tool.
func NewResolver(spec Spec, reg Registry, log *logging.Logger) *Resolver {
	if log == nil {
		log = logging.NewDiscardLogger()
	}
	return &Resolver{spec: spec, reg: reg, log: log}
}

// trimRel strips leading separators from a mount-relative path, matching
// spec.md §4.4 step 1.
func trimRel(name string) string {
	return strings.TrimLeft(filepath.Clean("/"+name), "/")
}

// IsCredentialPath reports whether the final component of name (a
// mount-relative path) is one of this tool's credential file names.
func (r *Resolver) IsCredentialPath(name string) bool {
	return r.spec.CredBasenames[filepath.Base(trimRel(name))]
}

// Resolve implements the full algorithm of spec.md §4.4: credential paths
// resolve under the caller's account, ensuring the target exists via lazy
// init; every other path resolves under the shared backing directory.
func (r *Resolver) Resolve(name string, caller CallerContext) (abs string, isCredential bool, err error) {
	rel := trimRel(name)
	base := filepath.Base(rel)

	if !r.spec.CredBasenames[base] {
		return r.BackingPath(rel), false, nil
	}

	account := r.reg.Lookup(caller.PID, r.spec.DefaultAccount)
	target := filepath.Join(r.spec.ProfilesDir, account, r.spec.Tool, rel)
	if err := r.ensureCredentialInit(target, rel); err != nil {
		return "", true, err
	}
	return target, true, nil
}

// BackingPath resolves rel against the shared backing directory. Used both
// for non-credential paths and, per spec.md §4.4, for every link-ish
// operation regardless of basename.
func (r *Resolver) BackingPath(rel string) string {
	return filepath.Join(r.spec.BackingDir, rel)
}

// ensureCredentialInit implements the lazy-init algorithm: under the
// instance mutex, double-check existence, then either copy the backing
// file's contents+metadata or write "{}".
func (r *Resolver) ensureCredentialInit(target, rel string) error {
	if _, err := os.Stat(target); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	r.initMtx.Lock()
	defer r.initMtx.Unlock()

	// Double-checked: another goroutine may have won the race while we
	// waited for the lock.
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	backing := r.BackingPath(rel)
	if fi, err := os.Stat(backing); err == nil {
		if err := copyPreservingMetadata(backing, target, fi); err != nil {
			return err
		}
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	return os.WriteFile(target, []byte("{}"), 0600)
}

func copyPreservingMetadata(src, dst string, fi os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, fi.ModTime(), fi.ModTime())
}
