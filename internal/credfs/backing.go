package credfs

import (
	"os"
	"path/filepath"
)

// PrepareBackingDir seeds backingDir from the original contents of
// mountPoint, once, before the mount is placed over mountPoint. Mirrors the
// original implementation's prepare_backing_dir: files and symlinks are
// copied with lstat/recreate-symlink semantics (never followed through),
// directories recursively. If backingDir already has contents, this is a
// no-op - the backing directory is a one-time snapshot, not kept in sync
// with mountPoint afterward (documented "snapshot semantics", not a bug).
func PrepareBackingDir(mountPoint, backingDir string) error {
	if entries, err := os.ReadDir(backingDir); err == nil && len(entries) > 0 {
		return nil
	}
	if err := os.MkdirAll(backingDir, 0755); err != nil {
		return err
	}

	root, err := os.Lstat(mountPoint)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !root.IsDir() {
		return nil
	}
	return copyTree(mountPoint, backingDir)
}

func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		srcPath := filepath.Join(src, ent.Name())
		dstPath := filepath.Join(dst, ent.Name())

		info, err := os.Lstat(srcPath)
		if err != nil {
			return err
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(srcPath)
			if err != nil {
				return err
			}
			if err := os.Symlink(target, dstPath); err != nil {
				return err
			}
		case info.IsDir():
			if err := os.MkdirAll(dstPath, info.Mode().Perm()); err != nil {
				return err
			}
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
		default:
			if err := copyPreservingMetadata(srcPath, dstPath, info); err != nil {
				return err
			}
		}
	}
	return nil
}
