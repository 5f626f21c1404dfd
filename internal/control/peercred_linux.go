//go:build linux

package control

import (
	"fmt"
	"net"
	"syscall"
)

// peerUID queries the kernel for the UID of the process on the other end
// of conn via SO_PEERCRED. Grounded on the ucred-extraction idiom used for
// Unix-socket workload attestation elsewhere in the retrieved examples.
func peerUID(conn net.Conn) (uid int, supported bool, err error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return 0, false, fmt.Errorf("not a unix socket connection")
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return 0, true, err
	}
	var ucred *syscall.Ucred
	var credErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		ucred, credErr = syscall.GetsockoptUcred(int(fd), syscall.SOL_SOCKET, syscall.SO_PEERCRED)
	})
	if ctrlErr != nil {
		return 0, true, ctrlErr
	}
	if credErr != nil {
		return 0, true, credErr
	}
	return int(ucred.Uid), true, nil
}
