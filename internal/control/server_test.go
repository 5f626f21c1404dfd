package control

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	mp       map[int]string
	sweptErr error
}

func (f *fakeRegistry) Register(pid int, account string) error {
	if f.mp == nil {
		f.mp = make(map[int]string)
	}
	f.mp[pid] = account
	return nil
}

func (f *fakeRegistry) Unregister(pid int) error {
	delete(f.mp, pid)
	return nil
}

func (f *fakeRegistry) Lookup(pid int, defaultAccount string) string {
	if acct, ok := f.mp[pid]; ok {
		return acct
	}
	return defaultAccount
}

func (f *fakeRegistry) List() map[int]string {
	out := make(map[int]string, len(f.mp))
	for k, v := range f.mp {
		out[k] = v
	}
	return out
}

func (f *fakeRegistry) SweepStale() error { return f.sweptErr }

func startTestServer(t *testing.T, reg Registry) (*Server, func()) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "control.sock")
	s := &Server{
		SocketPath:     sock,
		AllowedUID:     os.Getuid(),
		DefaultAccount: "default",
		Registry:       reg,
	}
	done := make(chan struct{})
	go func() {
		s.ListenAndServe()
		close(done)
	}()
	// wait for the socket to appear
	for i := 0; i < 100; i++ {
		if _, err := os.Stat(sock); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return s, func() {
		s.Stop()
		<-done
	}
}

func sendLine(t *testing.T, sock string, req map[string]interface{}) response {
	t.Helper()
	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer conn.Close()

	b, err := json.Marshal(req)
	require.NoError(t, err)
	b = append(b, '\n')
	_, err = conn.Write(b)
	require.NoError(t, err)

	scanner := bufio.NewScanner(conn)
	require.True(t, scanner.Scan())
	var resp response
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
	return resp
}

func TestRegisterAndQuery(t *testing.T) {
	reg := &fakeRegistry{}
	s, stop := startTestServer(t, reg)
	defer stop()

	resp := sendLine(t, s.SocketPath, map[string]interface{}{"cmd": "register", "pid": 1000, "account": "alice"})
	require.True(t, resp.OK)

	resp = sendLine(t, s.SocketPath, map[string]interface{}{"cmd": "query", "pid": 1000})
	require.True(t, resp.OK)
	require.Equal(t, "alice", resp.Account)
}

func TestRegisterMissingAccount(t *testing.T) {
	reg := &fakeRegistry{}
	s, stop := startTestServer(t, reg)
	defer stop()

	resp := sendLine(t, s.SocketPath, map[string]interface{}{"cmd": "register", "pid": 1000})
	require.False(t, resp.OK)
	require.Equal(t, "Missing pid or account", resp.Error)
}

func TestUnknownCommand(t *testing.T) {
	reg := &fakeRegistry{}
	s, stop := startTestServer(t, reg)
	defer stop()

	resp := sendLine(t, s.SocketPath, map[string]interface{}{"cmd": "frobnicate"})
	require.False(t, resp.OK)
	require.Equal(t, "Unknown command: frobnicate", resp.Error)
}

func TestListAndCleanup(t *testing.T) {
	reg := &fakeRegistry{mp: map[int]string{1000: "alice"}}
	s, stop := startTestServer(t, reg)
	defer stop()

	resp := sendLine(t, s.SocketPath, map[string]interface{}{"cmd": "list"})
	require.True(t, resp.OK)
	require.Equal(t, map[string]string{"1000": "alice"}, resp.Mappings)

	resp = sendLine(t, s.SocketPath, map[string]interface{}{"cmd": "cleanup"})
	require.True(t, resp.OK)
}

func TestDispatchInvalidJSON(t *testing.T) {
	resp := dispatch(&fakeRegistry{}, "default", []byte("{not json"))
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "Invalid JSON")
}
