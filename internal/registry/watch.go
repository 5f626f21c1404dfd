package registry

import (
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/voice-squad/fuseauthd/internal/logging"
)

// Watch starts a background fsnotify watcher on the registry's snapshot
// file so an operator hand-editing pid-map.json while the daemon is up
// gets picked up. It only ever marks the registry dirty; the actual reload
// happens lazily under the registry mutex in reloadIfStaleLocked, so a
// reload can never race an in-flight mutation. The returned watcher should
// be closed on shutdown; a failure to start the watcher is logged and
// treated as "external edits won't be picked up", not fatal.
func (r *Registry) Watch() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := parentDir(r.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	go r.watchLoop(w)
	return w, nil
}

func (r *Registry) watchLoop(w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Name != r.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				atomic.StoreInt32(&r.dirty, 1)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			r.log.Warn("registry watcher error", logging.KVErr(err))
		}
	}
}

// reloadIfStaleLocked reloads the snapshot from disk if the watcher has
// observed an external edit newer than our own last write. Must be called
// with r.mtx held.
func (r *Registry) reloadIfStaleLocked() {
	if atomic.SwapInt32(&r.dirty, 0) == 0 {
		return
	}
	fi, err := os.Stat(r.path)
	if err != nil {
		return
	}
	if !fi.ModTime().After(r.lastWrite) {
		return
	}
	mp, err := load(r.path)
	if err != nil {
		r.log.Warn("failed to reload externally-edited registry snapshot", logging.KVErr(err))
		return
	}
	r.log.Warn("reloaded registry snapshot after external edit", logging.KV("path", r.path))
	r.mp = mp
}

func parentDir(path string) string {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' {
		i--
	}
	if i <= 0 {
		return "."
	}
	return path[:i]
}
