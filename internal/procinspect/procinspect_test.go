package procinspect

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAliveSelf(t *testing.T) {
	insp := New()
	require.True(t, insp.Alive(os.Getpid()))
}

func TestAliveBogusPID(t *testing.T) {
	insp := New()
	require.False(t, insp.Alive(0))
	require.False(t, insp.Alive(-1))
}

func TestParentSelf(t *testing.T) {
	insp := New()
	ppid, err := insp.Parent(os.Getpid())
	if err != nil {
		// Non-Linux platforms intentionally don't support this.
		t.Skipf("parent lookup unsupported: %v", err)
	}
	require.Equal(t, os.Getppid(), ppid)
}
