/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	gopsutilhost "github.com/shirou/gopsutil/host"

	"github.com/voice-squad/fuseauthd/internal/control"
	"github.com/voice-squad/fuseauthd/internal/daemonconfig"
	"github.com/voice-squad/fuseauthd/internal/daemonlock"
	"github.com/voice-squad/fuseauthd/internal/logging"
	"github.com/voice-squad/fuseauthd/internal/procinspect"
	"github.com/voice-squad/fuseauthd/internal/registry"
)

const defConfigLoc = `/etc/fuseauthd/fuseauthd.conf`

// credBasenames is the fixed, per-tool set of credential-file basenames
// spec.md §3 names for the two supported tools.
var credBasenames = map[string]map[string]bool{
	"claude": {".credentials.json": true},
	"codex":  {"auth.json": true},
}

var (
	cfgFlag        = flag.String("config-file", defConfigLoc, "path to fuseauthd configuration file")
	foregroundFlag = flag.Bool("foreground", false, "run in the foreground regardless of Foreground config setting")
	verboseFlag    = flag.Bool("v", false, "verbose (DEBUG) logging, overrides Log-Level")
	versionFlag    = flag.Bool("version", false, "print version and exit")
)

const version = "0.1.0"

func main() {
	flag.Parse()
	if *versionFlag {
		fmt.Println("fuseauthd version", version)
		return
	}

	cfg, err := daemonconfig.Load(*cfgFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	if *foregroundFlag {
		cfg.Foreground = true
	}

	log, err := logging.NewStderrLogger("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	log.SetAppname("fuseauthd")
	lvl := cfg.LogLevel
	if *verboseFlag {
		lvl = logging.DEBUG
	}
	if err := log.SetLevel(lvl); err != nil {
		fmt.Fprintln(os.Stderr, "failed to set log level:", err)
		os.Exit(1)
	}

	if info, err := gopsutilhost.Info(); err == nil {
		log.Info("starting fuseauthd", logging.KV("os", info.OS), logging.KV("platform", info.Platform), logging.KV("kernel", info.KernelVersion))
	}

	if len(cfg.Tools) == 0 {
		log.Criticalf("no valid tools configured, nothing to mount")
		os.Exit(1)
	}

	lock, err := daemonlock.Acquire(cfg.RunDir)
	if err != nil {
		log.Criticalf("failed to acquire run-dir lock: %v", err)
		os.Exit(1)
	}
	defer lock.Release()
	if err := os.WriteFile(filepath.Join(cfg.RunDir, "pid"), []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
		log.Criticalf("failed to write pid file: %v", err)
		os.Exit(1)
	}

	insp := procinspect.New()
	reg := registry.New(filepath.Join(cfg.RunDir, "pid-map.json"), insp, log)
	if w, err := reg.Watch(); err != nil {
		log.Warn("registry file watcher unavailable, external edits won't be picked up", logging.KVErr(err))
	} else {
		defer w.Close()
	}

	allowedUID := cfg.ControlAllowedUID
	if allowedUID == 0 {
		allowedUID = os.Getuid()
	}
	ctl := &control.Server{
		SocketPath:     filepath.Join(cfg.RunDir, "control.sock"),
		AllowedUID:     allowedUID,
		DefaultAccount: cfg.DefaultAccount,
		Registry:       reg,
		Log:            log,
	}
	go func() {
		if err := ctl.ListenAndServe(); err != nil {
			log.Criticalf("control server exited: %v", err)
		}
	}()

	mountPoints, _, err := mountAll(cfg, reg, log)
	if err != nil {
		log.Criticalf("failed to mount one or more filesystems: %v", err)
		ctl.Stop()
		os.Exit(1)
	}

	if err := os.WriteFile(filepath.Join(cfg.RunDir, "ready"), []byte("1"), 0644); err != nil {
		log.Warn("failed to write ready marker", logging.KVErr(err))
	}
	log.Info("fuseauthd ready", logging.KV("tools", len(cfg.Tools)))

	waitForSignal()

	log.Info("shutdown signal received, stopping")
	ctl.Stop()
	for _, mp := range mountPoints {
		unmount(mp, log)
	}
	os.Exit(0)
}

func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
}

// unmount invokes the host's unmount utility best-effort, per spec.md §6.
func unmount(mountPoint string, log *logging.Logger) {
	cmd := exec.Command("fusermount", "-u", mountPoint)
	if err := cmd.Run(); err != nil {
		log.Warn("fusermount -u failed (best effort, ignored)", logging.KV("mount", mountPoint), logging.KVErr(err))
	}
}
