package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/voice-squad/fuseauthd/internal/credfs"
	"github.com/voice-squad/fuseauthd/internal/daemonconfig"
	"github.com/voice-squad/fuseauthd/internal/logging"
	"github.com/voice-squad/fuseauthd/internal/registry"
)

// mountAll builds one credfs.Filesystem per configured tool, seeds its
// backing directory from the current mount-point contents, and places the
// FUSE mount. It returns the mount points and servers in the same order so
// the caller can unmount them symmetrically on shutdown. A failure midway
// leaves earlier mounts in place; the caller is expected to exit nonzero
// without attempting to unmount anything it didn't finish mounting.
func mountAll(cfg *daemonconfig.Config, reg *registry.Registry, log *logging.Logger) ([]string, []*fuse.Server, error) {
	var mountPoints []string
	var servers []*fuse.Server

	for _, t := range cfg.Tools {
		basenames, ok := credBasenames[t.Name]
		if !ok {
			return mountPoints, servers, fmt.Errorf("unknown tool %q has no credential-file set", t.Name)
		}

		// A FUSE mount requires the mount point to already exist; create it
		// before seeding the backing dir from its (possibly first-run-empty)
		// contents, mirroring the original's os.makedirs(mount_point) before
		// prepare_backing_dir/mount_fuse.
		if err := os.MkdirAll(t.MountPoint, 0755); err != nil {
			return mountPoints, servers, fmt.Errorf("creating mount point for %s: %w", t.Name, err)
		}

		backingDir := filepath.Join(cfg.RunDir, "backing-"+t.Name)
		if err := credfs.PrepareBackingDir(t.MountPoint, backingDir); err != nil {
			return mountPoints, servers, fmt.Errorf("preparing backing dir for %s: %w", t.Name, err)
		}

		spec := credfs.Spec{
			Tool:           t.Name,
			BackingDir:     backingDir,
			ProfilesDir:    cfg.ProfilesDir,
			DefaultAccount: cfg.DefaultAccount,
			CredBasenames:  basenames,
		}
		resolver := credfs.NewResolver(spec, reg, log)
		ops := credfs.NewOperations(resolver)
		fs := credfs.NewFilesystem(ops, log)

		server, err := credfs.Mount(fs, t.MountPoint)
		if err != nil {
			return mountPoints, servers, fmt.Errorf("mounting %s at %s: %w", t.Name, t.MountPoint, err)
		}
		go server.Serve()

		log.Info("mounted tool", logging.KV("tool", t.Name), logging.KV("mount_point", t.MountPoint))
		mountPoints = append(mountPoints, t.MountPoint)
		servers = append(servers, server)
	}

	return mountPoints, servers, nil
}
