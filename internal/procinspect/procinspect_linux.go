//go:build linux

package procinspect

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// Alive reports whether pid currently names a live process. It follows the
// pidfile convention of probing with signal 0: no signal is delivered, but
// the kernel still validates that the PID exists and is visible to us.
func (Inspector) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if err == syscall.ESRCH {
		return false
	}
	// EPERM means it exists but we can't signal it - still alive.
	return err == syscall.EPERM
}

// Parent returns pid's parent PID by reading /proc/<pid>/stat. The comm
// field (2nd field) is wrapped in parens and may itself contain spaces or
// parens, so the split point is the LAST ')' on the line rather than the
// first - matching how the kernel actually renders stat(5).
func (Inspector) Parent(pid int) (int, error) {
	if pid <= 0 {
		return 0, fmt.Errorf("invalid pid %d", pid)
	}
	raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, err
	}
	line := string(raw)
	idx := strings.LastIndex(line, ")")
	if idx < 0 || idx+2 >= len(line) {
		return 0, fmt.Errorf("malformed stat line for pid %d", pid)
	}
	fields := strings.Fields(line[idx+2:])
	// fields[0] = state, fields[1] = ppid
	if len(fields) < 2 {
		return 0, fmt.Errorf("malformed stat line for pid %d", pid)
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("malformed ppid in stat line for pid %d: %w", pid, err)
	}
	return ppid, nil
}
