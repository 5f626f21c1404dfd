package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeInspector lets tests control aliveness and ancestry without touching
// the real process table.
type fakeInspector struct {
	alive   map[int]bool
	parents map[int]int
}

func (f *fakeInspector) Alive(pid int) bool { return f.alive[pid] }

func (f *fakeInspector) Parent(pid int) (int, error) {
	return f.parents[pid], nil
}

func newTestRegistry(t *testing.T, insp Inspector) *Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pid-map.json")
	return New(path, insp, nil)
}

func TestRegisterLookupUnregister(t *testing.T) {
	insp := &fakeInspector{alive: map[int]bool{1000: true}, parents: map[int]int{}}
	r := newTestRegistry(t, insp)

	require.NoError(t, r.Register(1000, "alice"))
	require.Equal(t, "alice", r.Lookup(1000, "default"))

	require.NoError(t, r.Unregister(1000))
	require.Equal(t, "default", r.Lookup(1000, "default"))
}

func TestLookupAncestorWalk(t *testing.T) {
	insp := &fakeInspector{
		alive:   map[int]bool{1000: true, 1001: true, 1002: true},
		parents: map[int]int{1002: 1001, 1001: 1000, 1000: 0},
	}
	r := newTestRegistry(t, insp)
	require.NoError(t, r.Register(1000, "alice"))

	require.Equal(t, "alice", r.Lookup(1002, "default"))
}

func TestLookupDefaultWhenUnregistered(t *testing.T) {
	insp := &fakeInspector{
		alive:   map[int]bool{5000: true},
		parents: map[int]int{5000: 1},
	}
	r := newTestRegistry(t, insp)
	require.Equal(t, "default", r.Lookup(5000, "default"))
}

func TestLookupVisitedSetBreaksCycle(t *testing.T) {
	insp := &fakeInspector{
		alive:   map[int]bool{10: true, 20: true},
		parents: map[int]int{10: 20, 20: 10},
	}
	r := newTestRegistry(t, insp)
	require.Equal(t, "default", r.Lookup(10, "default"))
}

func TestSweepStale(t *testing.T) {
	insp := &fakeInspector{alive: map[int]bool{1000: true, 2000: false}, parents: map[int]int{}}
	r := newTestRegistry(t, insp)
	require.NoError(t, r.Register(1000, "alice"))
	require.NoError(t, r.Register(2000, "bob"))

	require.NoError(t, r.SweepStale())

	mp := r.List()
	require.Equal(t, map[int]string{1000: "alice"}, mp)
}

func TestPersistenceRoundTrip(t *testing.T) {
	insp := &fakeInspector{alive: map[int]bool{1000: true}, parents: map[int]int{}}
	path := filepath.Join(t.TempDir(), "pid-map.json")

	r1 := New(path, insp, nil)
	require.NoError(t, r1.Register(1000, "alice"))

	r2 := New(path, insp, nil)
	require.Equal(t, "alice", r2.Lookup(1000, "default"))
}

func TestLoadToleratesMissingFile(t *testing.T) {
	insp := &fakeInspector{}
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	r := New(path, insp, nil)
	require.Empty(t, r.List())
}

func TestLoadToleratesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pid-map.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))
	r := New(path, &fakeInspector{}, nil)
	require.Empty(t, r.List())
}
