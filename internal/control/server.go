// Package control implements the local control-socket endpoint: a
// newline-delimited JSON protocol, peer-credential checked, that mutates
// and queries an Account Registry.
package control

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voice-squad/fuseauthd/internal/logging"
)

const (
	// acceptDeadline bounds each Accept call so the loop can notice a stop
	// request without blocking forever, mirroring spec.md §5's
	// "short timeout, check a stop channel, loop" shape.
	acceptDeadline = 500 * time.Millisecond

	// reapInterval is the default stale-reaper cadence from spec.md §4.3.
	reapInterval = 30 * time.Second

	// maxLineSize bounds a single request line, per spec.md §5's
	// "capped by an overall request size limit".
	maxLineSize = 64 * 1024
)

// Server is the control-socket endpoint.
type Server struct {
	SocketPath     string
	AllowedUID     int
	DefaultAccount string
	Registry       Registry
	Log            *logging.Logger

	ln net.Listener

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// ListenAndServe binds the control socket and runs the accept loop and the
// stale-reaper until Stop is called. It returns once both have exited.
func (s *Server) ListenAndServe() error {
	if s.Log == nil {
		s.Log = logging.NewDiscardLogger()
	}
	s.stopCh = make(chan struct{})

	if err := os.MkdirAll(filepath.Dir(s.SocketPath), 0755); err != nil {
		return err
	}
	_ = os.Remove(s.SocketPath) // remove any stale socket file before binding

	ln, err := net.Listen("unix", s.SocketPath)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.SocketPath, 0600); err != nil {
		ln.Close()
		return err
	}
	s.ln = ln

	s.wg.Add(2)
	go s.acceptLoop()
	go s.reapLoop()
	s.wg.Wait()
	return nil
}

// Stop closes the listener, ending the accept loop and the reaper; any
// in-flight handler goroutines finish on their own and are not waited on,
// per spec.md §5's "in-flight handlers finish or are abandoned".
func (s *Server) Stop() {
	if s.stopCh != nil {
		select {
		case <-s.stopCh:
		default:
			close(s.stopCh)
		}
	}
	if s.ln != nil {
		s.ln.Close()
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		if tl, ok := s.ln.(*net.UnixListener); ok {
			tl.SetDeadline(time.Now().Add(acceptDeadline))
		}
		conn, err := s.ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
				continue
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) reapLoop() {
	defer s.wg.Done()
	t := time.NewTicker(reapInterval)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						s.Log.Error("stale reaper panicked", logging.KV("recover", r))
					}
				}()
				if err := s.Registry.SweepStale(); err != nil {
					s.Log.Warn("stale sweep failed", logging.KVErr(err))
				}
			}()
		}
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			s.Log.Error("control connection handler panicked", logging.KV("recover", r))
		}
	}()

	connID := uuid.New().String()

	if uid, supported, err := peerUID(conn); !supported {
		if err != nil {
			s.Log.Warn("peer credential query failed, allowing per policy", logging.KV("conn", connID), logging.KVErr(err))
		} else {
			s.Log.Warn("peer credential checks unsupported on this platform, allowing per policy", logging.KV("conn", connID))
		}
	} else if uid != s.AllowedUID {
		s.Log.Warn("rejecting control connection from unauthorized uid", logging.KV("conn", connID), logging.KV("uid", uid))
		writeResponse(conn, errResp("permission denied"))
		return
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := dispatch(s.Registry, s.DefaultAccount, line)
		s.Log.Debug("dispatched control command", logging.KV("conn", connID), logging.KV("ok", resp.OK))
		if err := writeResponse(conn, resp); err != nil {
			return
		}
	}
}

func writeResponse(conn net.Conn, resp response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = conn.Write(b)
	return err
}
