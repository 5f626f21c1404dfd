// Package registry is the in-memory PID→account table: the single source
// of truth the Credential Filesystem consults on every credential-path
// resolution, and the single thing the Control Endpoint mutates.
package registry

import (
	"sync"
	"time"

	"github.com/voice-squad/fuseauthd/internal/logging"
)

// Inspector is the subset of procinspect.Inspector the registry needs; an
// interface here keeps registry_test.go free of real /proc dependencies.
type Inspector interface {
	Alive(pid int) bool
	Parent(pid int) (int, error)
}

// Registry is the PID -> account mapping. Zero value is not usable; use New.
type Registry struct {
	mtx  sync.Mutex
	mp   map[int]string
	path string
	insp Inspector
	log  *logging.Logger

	lastWrite time.Time
	dirty     int32 // set by Watch's fsnotify goroutine, consumed by reloadIfStaleLocked
}

// New builds a Registry backed by path (the JSON snapshot file), loading
// any existing snapshot immediately. A load failure is logged and treated
// as an empty table, per the persistence contract.
func New(path string, insp Inspector, log *logging.Logger) *Registry {
	if log == nil {
		log = logging.NewDiscardLogger()
	}
	r := &Registry{
		mp:   make(map[int]string),
		path: path,
		insp: insp,
		log:  log,
	}
	if mp, err := load(path); err != nil {
		r.log.Warn("failed to load registry snapshot, starting empty", logging.KV("path", path), logging.KVErr(err))
	} else {
		r.mp = mp
	}
	return r
}

// Register inserts or overwrites the (pid, account) entry and persists.
func (r *Registry) Register(pid int, account string) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.reloadIfStaleLocked()
	r.mp[pid] = account
	return r.saveLocked()
}

// Unregister removes pid if present, persisting only if something changed.
func (r *Registry) Unregister(pid int) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.reloadIfStaleLocked()
	if _, ok := r.mp[pid]; !ok {
		return nil
	}
	delete(r.mp, pid)
	return r.saveLocked()
}

// Lookup walks pid's ancestry looking for the nearest registered PID,
// returning defaultAccount if none is found anywhere on the ancestry.
// A visited-set guards against cycles in malformed OS state.
func (r *Registry) Lookup(pid int, defaultAccount string) string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.reloadIfStaleLocked()

	visited := make(map[int]bool)
	cur := pid
	for cur != 0 && !visited[cur] {
		if acct, ok := r.mp[cur]; ok {
			return acct
		}
		visited[cur] = true
		parent, err := r.insp.Parent(cur)
		if err != nil {
			break
		}
		cur = parent
	}
	return defaultAccount
}

// List returns a consistent copy of the mapping, keyed by PID.
func (r *Registry) List() map[int]string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.reloadIfStaleLocked()
	out := make(map[int]string, len(r.mp))
	for k, v := range r.mp {
		out[k] = v
	}
	return out
}

// SweepStale removes every entry whose PID is no longer alive, persisting
// only if anything was removed.
func (r *Registry) SweepStale() error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.reloadIfStaleLocked()
	var dead []int
	for pid := range r.mp {
		if !r.insp.Alive(pid) {
			dead = append(dead, pid)
		}
	}
	if len(dead) == 0 {
		return nil
	}
	for _, pid := range dead {
		delete(r.mp, pid)
	}
	return r.saveLocked()
}

func (r *Registry) saveLocked() error {
	if err := save(r.path, r.mp); err != nil {
		r.log.Warn("failed to persist registry snapshot", logging.KV("path", r.path), logging.KVErr(err))
		return err
	}
	r.lastWrite = time.Now()
	return nil
}
