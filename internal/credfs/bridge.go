package credfs

import (
	"os"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"

	"github.com/voice-squad/fuseauthd/internal/logging"
)

// Filesystem is the sole adapter between go-fuse's pathfs.FileSystem /
// nodefs.File interfaces and Operations. It is the only file in this
// package that imports go-fuse; translating *fuse.Context (Uid/Gid/Pid)
// into CallerContext is its entire job - everything else just calls into
// Operations.
type Filesystem struct {
	pathfs.FileSystem // embeds defaults for the xattr calls we don't support

	ops *Operations
	log *logging.Logger
}

// NewFilesystem builds the go-fuse-facing adapter for one tool's Operations.
func NewFilesystem(ops *Operations, log *logging.Logger) *Filesystem {
	if log == nil {
		log = logging.NewDiscardLogger()
	}
	return &Filesystem{
		FileSystem: pathfs.NewDefaultFileSystem(),
		ops:        ops,
		log:        log,
	}
}

func callerFrom(ctx *fuse.Context) CallerContext {
	if ctx == nil {
		return CallerContext{}
	}
	return CallerContext{PID: int(ctx.Pid), UID: int(ctx.Uid), GID: int(ctx.Gid)}
}

func (fs *Filesystem) GetAttr(name string, ctx *fuse.Context) (*fuse.Attr, fuse.Status) {
	fi, err := fs.ops.GetAttr(name, callerFrom(ctx))
	if err != nil {
		return nil, fuse.ToStatus(ToErrno(err))
	}
	return attrFromFileInfo(fi), fuse.OK
}

func (fs *Filesystem) Open(name string, flags uint32, ctx *fuse.Context) (nodefs.File, fuse.Status) {
	f, err := fs.ops.Open(name, int(flags), callerFrom(ctx))
	if err != nil {
		return nil, fuse.ToStatus(ToErrno(err))
	}
	return nodefs.NewLoopbackFile(f), fuse.OK
}

func (fs *Filesystem) Create(name string, flags uint32, mode uint32, ctx *fuse.Context) (nodefs.File, fuse.Status) {
	f, err := fs.ops.Create(name, os.FileMode(mode), callerFrom(ctx))
	if err != nil {
		return nil, fuse.ToStatus(ToErrno(err))
	}
	return nodefs.NewLoopbackFile(f), fuse.OK
}

func (fs *Filesystem) Truncate(name string, size uint64, ctx *fuse.Context) fuse.Status {
	return fuse.ToStatus(ToErrno(fs.ops.Truncate(name, int64(size), callerFrom(ctx))))
}

func (fs *Filesystem) Chmod(name string, mode uint32, ctx *fuse.Context) fuse.Status {
	return fuse.ToStatus(ToErrno(fs.ops.Chmod(name, os.FileMode(mode), callerFrom(ctx))))
}

func (fs *Filesystem) Chown(name string, uid, gid uint32, ctx *fuse.Context) fuse.Status {
	return fuse.ToStatus(ToErrno(fs.ops.Chown(name, int(uid), int(gid), callerFrom(ctx))))
}

func (fs *Filesystem) Utimens(name string, atime, mtime *time.Time, ctx *fuse.Context) fuse.Status {
	var a, m time.Time
	if atime != nil {
		a = *atime
	}
	if mtime != nil {
		m = *mtime
	}
	return fuse.ToStatus(ToErrno(fs.ops.Utimens(name, a, m, callerFrom(ctx))))
}

func (fs *Filesystem) Access(name string, mode uint32, ctx *fuse.Context) fuse.Status {
	return fuse.ToStatus(ToErrno(fs.ops.Access(name, mode, callerFrom(ctx))))
}

func (fs *Filesystem) Unlink(name string, ctx *fuse.Context) fuse.Status {
	return fuse.ToStatus(ToErrno(fs.ops.Unlink(name, callerFrom(ctx))))
}

func (fs *Filesystem) StatFs(name string) *fuse.StatfsOut {
	st, err := fs.ops.Statfs(name, CallerContext{})
	if err != nil {
		return nil
	}
	out := &fuse.StatfsOut{}
	out.Blocks = st.Blocks
	out.Bfree = st.Bfree
	out.Bavail = st.Bavail
	out.Files = st.Files
	out.Ffree = st.Ffree
	out.Bsize = uint32(st.Bsize)
	return out
}

func (fs *Filesystem) OpenDir(name string, ctx *fuse.Context) ([]fuse.DirEntry, fuse.Status) {
	entries, err := fs.ops.Readdir(name, callerFrom(ctx))
	if err != nil {
		return nil, fuse.ToStatus(ToErrno(err))
	}
	out := make([]fuse.DirEntry, 0, len(entries)+2)
	out = append(out, fuse.DirEntry{Name: ".", Mode: fuse.S_IFDIR})
	out = append(out, fuse.DirEntry{Name: "..", Mode: fuse.S_IFDIR})
	for _, e := range entries {
		mode := uint32(fuse.S_IFREG)
		if e.IsDir() {
			mode = fuse.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: e.Name(), Mode: mode})
	}
	return out, fuse.OK
}

func (fs *Filesystem) Mkdir(name string, mode uint32, ctx *fuse.Context) fuse.Status {
	return fuse.ToStatus(ToErrno(fs.ops.Mkdir(name, os.FileMode(mode), callerFrom(ctx))))
}

func (fs *Filesystem) Rmdir(name string, ctx *fuse.Context) fuse.Status {
	return fuse.ToStatus(ToErrno(fs.ops.Rmdir(name, callerFrom(ctx))))
}

func (fs *Filesystem) Rename(oldName, newName string, ctx *fuse.Context) fuse.Status {
	return fuse.ToStatus(ToErrno(fs.ops.Rename(oldName, newName, callerFrom(ctx))))
}

func (fs *Filesystem) Symlink(value, linkName string, ctx *fuse.Context) fuse.Status {
	return fuse.ToStatus(ToErrno(fs.ops.Symlink(value, linkName, callerFrom(ctx))))
}

func (fs *Filesystem) Link(oldName, newName string, ctx *fuse.Context) fuse.Status {
	return fuse.ToStatus(ToErrno(fs.ops.Link(oldName, newName, callerFrom(ctx))))
}

func (fs *Filesystem) Readlink(name string, ctx *fuse.Context) (string, fuse.Status) {
	target, err := fs.ops.Readlink(name, callerFrom(ctx))
	if err != nil {
		return "", fuse.ToStatus(ToErrno(err))
	}
	return target, fuse.OK
}

func (fs *Filesystem) String() string {
	return "fuseauthd"
}

// Mount places fs over mountPoint and returns the server without serving
// requests; the caller runs server.Serve (which blocks until the mount is
// removed via fusermount -u or server.Unmount).
func Mount(fs *Filesystem, mountPoint string) (*fuse.Server, error) {
	nfs := pathfs.NewPathNodeFs(fs, nil)
	server, _, err := nodefs.MountRoot(mountPoint, nfs.Root(), &nodefs.Options{
		Debug: false,
	})
	if err != nil {
		return nil, err
	}
	return server, nil
}

// attrFromFileInfo builds a fuse.Attr from a plain os.FileInfo. Uid/Gid/
// Nlink come from the unix-specific Sys() payload when available; a
// non-unix Sys() (or a fake FileInfo in tests) leaves Uid/Gid zero and sets
// Nlink to 1.
func attrFromFileInfo(fi os.FileInfo) *fuse.Attr {
	attr := &fuse.Attr{
		Size:  uint64(fi.Size()),
		Mode:  fuseModeFromGo(fi),
		Mtime: uint64(fi.ModTime().Unix()),
		Atime: uint64(fi.ModTime().Unix()),
		Ctime: uint64(fi.ModTime().Unix()),
	}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		attr.Uid = st.Uid
		attr.Gid = st.Gid
		attr.Nlink = uint32(st.Nlink)
		attr.Ino = st.Ino
		attr.Blocks = uint64(st.Blocks)
	} else {
		attr.Nlink = 1
	}
	return attr
}

func fuseModeFromGo(fi os.FileInfo) uint32 {
	mode := uint32(fi.Mode().Perm())
	switch {
	case fi.IsDir():
		mode |= fuse.S_IFDIR
	case fi.Mode()&os.ModeSymlink != 0:
		mode |= fuse.S_IFLNK
	default:
		mode |= fuse.S_IFREG
	}
	return mode
}
