/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package daemonconfig parses fuseauthd's INI configuration file. It is the
// sole owner of the on-disk config schema; cmd/fuseauthd overlays a thin
// flag layer on top of the Config this package returns, but never touches
// gcfg or the raw file directly.
package daemonconfig

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/gravwell/gcfg"

	"github.com/voice-squad/fuseauthd/internal/logging"
)

// MaxConfigSize caps the file we'll read; same sanity bound the teacher
// applies before handing a config file to gcfg.
const MaxConfigSize int64 = 1024 * 1024 * 2

type cfgType struct {
	Global struct {
		Run_Dir              string
		Profiles_Dir         string
		Default_Account      string
		Log_Level            string
		Foreground           bool
		Control_Allowed_UID  int
	}
	Tool map[string]*struct {
		Mount_Point string
	}
}

// ToolConfig is one [Tool <name>] block, resolved to an absolute path.
type ToolConfig struct {
	Name       string
	MountPoint string
}

// Config is the fully parsed, defaulted and validated configuration.
type Config struct {
	RunDir            string
	ProfilesDir       string
	DefaultAccount    string
	LogLevel          logging.Level
	Foreground        bool
	ControlAllowedUID int // 0 means "use the daemon's own UID"

	Tools []ToolConfig
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	fin, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := fin.Stat()
	if err != nil {
		fin.Close()
		return nil, err
	}
	if fi.Size() > MaxConfigSize {
		fin.Close()
		return nil, errors.New("config file far too large")
	}
	content := make([]byte, fi.Size())
	n, err := fin.Read(content)
	fin.Close()
	if err != nil {
		return nil, err
	}
	if int64(n) != fi.Size() {
		return nil, errors.New("failed to read config file")
	}

	var c cfgType
	c.Global.Default_Account = "default"
	c.Global.Log_Level = "INFO"

	if err := gcfg.ReadStringInto(&c, string(content)); err != nil {
		return nil, err
	}
	return finalize(c)
}

func finalize(c cfgType) (*Config, error) {
	if strings.TrimSpace(c.Global.Run_Dir) == "" {
		return nil, errors.New("Run-Dir not specified")
	}
	if strings.TrimSpace(c.Global.Profiles_Dir) == "" {
		return nil, errors.New("Profiles-Dir not specified")
	}
	if len(c.Tool) == 0 {
		return nil, errors.New("no [Tool] sections specified")
	}

	lvl, err := logging.LevelFromString(c.Global.Log_Level)
	if err != nil {
		return nil, errors.New("invalid Log-Level: " + c.Global.Log_Level)
	}

	runDir, err := expandPath(c.Global.Run_Dir)
	if err != nil {
		return nil, err
	}
	profilesDir, err := expandPath(c.Global.Profiles_Dir)
	if err != nil {
		return nil, err
	}

	account := c.Global.Default_Account
	if strings.TrimSpace(account) == "" {
		account = "default"
	}

	cfg := &Config{
		RunDir:            runDir,
		ProfilesDir:       profilesDir,
		DefaultAccount:    account,
		LogLevel:          lvl,
		Foreground:        c.Global.Foreground,
		ControlAllowedUID: c.Global.Control_Allowed_UID,
	}

	seenMount := make(map[string]string, len(c.Tool))
	for name, v := range c.Tool {
		if v == nil || strings.TrimSpace(v.Mount_Point) == "" {
			return nil, errors.New("no Mount-Point provided for tool " + name)
		}
		mp, err := expandPath(v.Mount_Point)
		if err != nil {
			return nil, err
		}
		if other, ok := seenMount[mp]; ok {
			return nil, errors.New("Mount-Point for " + name + " already in use by " + other)
		}
		seenMount[mp] = name
		cfg.Tools = append(cfg.Tools, ToolConfig{Name: name, MountPoint: mp})
	}

	return cfg, nil
}

// expandPath resolves a bare "~" or a leading "~/" against the user's home
// directory; every other path is left alone (gcfg values are otherwise
// taken verbatim).
func expandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if p == "~" {
			return home, nil
		}
		return filepath.Join(home, p[2:]), nil
	}
	return p, nil
}
