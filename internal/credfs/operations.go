package credfs

import (
	"errors"
	"os"
	"syscall"
	"time"
)

// Operations is the capability set spec.md §4.4 enumerates, expressed in
// plain Go terms (os.FileInfo, *os.File, error) with no FUSE dependency.
// bridge.go is the sole adapter translating this into go-fuse's
// pathfs.FileSystem/nodefs.File interfaces.
type Operations struct {
	r *Resolver
}

// NewOperations builds the operation set for one tool's Resolver.
func NewOperations(r *Resolver) *Operations {
	return &Operations{r: r}
}

// GetAttr stats the resolved path.
func (o *Operations) GetAttr(name string, caller CallerContext) (os.FileInfo, error) {
	abs, _, err := o.r.Resolve(name, caller)
	if err != nil {
		return nil, err
	}
	return os.Lstat(abs)
}

// Open opens the resolved path with the given (os-style) flags.
func (o *Operations) Open(name string, flags int, caller CallerContext) (*os.File, error) {
	abs, _, err := o.r.Resolve(name, caller)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(abs, flags, 0)
}

// Create ensures the parent directory exists, then opens the resolved path
// write-only / create / truncate with mode.
func (o *Operations) Create(name string, mode os.FileMode, caller CallerContext) (*os.File, error) {
	abs, _, err := o.r.Resolve(name, caller)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dirOf(abs), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
}

// Truncate truncates the resolved path to length.
func (o *Operations) Truncate(name string, length int64, caller CallerContext) error {
	abs, _, err := o.r.Resolve(name, caller)
	if err != nil {
		return err
	}
	return os.Truncate(abs, length)
}

// Chmod changes the resolved path's mode.
func (o *Operations) Chmod(name string, mode os.FileMode, caller CallerContext) error {
	abs, _, err := o.r.Resolve(name, caller)
	if err != nil {
		return err
	}
	return os.Chmod(abs, mode)
}

// Chown changes the resolved path's owner.
func (o *Operations) Chown(name string, uid, gid int, caller CallerContext) error {
	abs, _, err := o.r.Resolve(name, caller)
	if err != nil {
		return err
	}
	return os.Chown(abs, uid, gid)
}

// Utimens updates the resolved path's access/modification times.
func (o *Operations) Utimens(name string, atime, mtime time.Time, caller CallerContext) error {
	abs, _, err := o.r.Resolve(name, caller)
	if err != nil {
		return err
	}
	return os.Chtimes(abs, atime, mtime)
}

// Access checks that the resolved path exists and that the requested
// permission bits (the POSIX access(2) mode: R_OK/W_OK/X_OK/F_OK) are
// satisfied, matching the original's `os.access(real, mode)` check.
func (o *Operations) Access(name string, mode uint32, caller CallerContext) error {
	abs, _, err := o.r.Resolve(name, caller)
	if err != nil {
		return err
	}
	return syscall.Access(abs, mode)
}

// Unlink removes the resolved path. Per spec.md §4.4, a credential
// basename still resolves through Resolve (it has the same
// lazy-init/account-scoped semantics as any other credential op): deleting
// it removes only the calling account's copy.
func (o *Operations) Unlink(name string, caller CallerContext) error {
	abs, _, err := o.r.Resolve(name, caller)
	if err != nil {
		return err
	}
	return os.Remove(abs)
}

// Statfs reports filesystem-level statistics for the resolved path's
// backing volume.
func (o *Operations) Statfs(name string, caller CallerContext) (*syscall.Statfs_t, error) {
	abs, _, err := o.r.Resolve(name, caller)
	if err != nil {
		return nil, err
	}
	var st syscall.Statfs_t
	if err := syscall.Statfs(abs, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// --- Link-ish operations: always resolve against the backing directory,
// even when the basename matches a credential name, per spec.md §4.4. ---

// Readdir lists the backing directory unconditionally so every caller sees
// the same set of entries regardless of account.
func (o *Operations) Readdir(name string, caller CallerContext) ([]os.DirEntry, error) {
	return os.ReadDir(o.r.BackingPath(trimRel(name)))
}

// Mkdir creates a directory in the backing view.
func (o *Operations) Mkdir(name string, mode os.FileMode, caller CallerContext) error {
	return os.Mkdir(o.r.BackingPath(trimRel(name)), mode)
}

// Rmdir removes a directory from the backing view.
func (o *Operations) Rmdir(name string, caller CallerContext) error {
	return os.Remove(o.r.BackingPath(trimRel(name)))
}

// Rename renames within the backing view. Renaming a credential basename
// is therefore a rename in the shared view, intentionally: a correct
// caller never renames a credential file.
func (o *Operations) Rename(oldName, newName string, caller CallerContext) error {
	return os.Rename(o.r.BackingPath(trimRel(oldName)), o.r.BackingPath(trimRel(newName)))
}

// Symlink creates linkName -> value in the backing view.
func (o *Operations) Symlink(value, linkName string, caller CallerContext) error {
	return os.Symlink(value, o.r.BackingPath(trimRel(linkName)))
}

// Link creates a hard link in the backing view.
func (o *Operations) Link(oldName, newName string, caller CallerContext) error {
	return os.Link(o.r.BackingPath(trimRel(oldName)), o.r.BackingPath(trimRel(newName)))
}

// Readlink reads a symlink target from the backing view.
func (o *Operations) Readlink(name string, caller CallerContext) (string, error) {
	return os.Readlink(o.r.BackingPath(trimRel(name)))
}

func dirOf(p string) string {
	i := len(p) - 1
	for i >= 0 && p[i] != '/' {
		i--
	}
	if i <= 0 {
		return "/"
	}
	return p[:i]
}

// ToErrno maps a Go error from one of the above calls to the errno the FS
// layer should report, per spec.md §7: not-found -> ENOENT,
// permission-denied -> EACCES, already-exists -> EEXIST, otherwise the
// underlying errno falling back to EIO.
func ToErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	switch {
	case os.IsNotExist(err):
		return syscall.ENOENT
	case os.IsPermission(err):
		return syscall.EACCES
	case os.IsExist(err):
		return syscall.EEXIST
	default:
		return syscall.EIO
	}
}
