// Package procinspect is a read-only adapter over the OS process table.
//
// It answers exactly two questions: is a PID alive, and what is a PID's
// parent. Both are pure functions of kernel state; the package holds no
// state of its own and every exported function is safe to call from any
// number of goroutines concurrently.
package procinspect

// Inspector is implemented per-OS (procinspect_linux.go / procinspect_other.go).
type Inspector struct{}

// New returns an Inspector. There is no configuration: the inspector reads
// directly from the host's process table on every call.
func New() Inspector {
	return Inspector{}
}
