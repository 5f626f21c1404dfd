package control

import (
	"encoding/json"
	"fmt"
)

// Registry is the subset of *registry.Registry the control protocol needs.
// Declared locally so server_test.go can exercise dispatch against a fake.
type Registry interface {
	Register(pid int, account string) error
	Unregister(pid int) error
	Lookup(pid int, defaultAccount string) string
	List() map[int]string
	SweepStale() error
}

// request is the superset of fields any command may carry. pid is decoded
// via json.Number so it tolerates either a JSON integer or a numeric string,
// per spec.md's "pid is accepted as integer or numeric string" rule.
type request struct {
	Cmd     string      `json:"cmd"`
	PID     json.Number `json:"pid"`
	Account string      `json:"account"`
}

type response struct {
	OK       bool              `json:"ok"`
	Error    string            `json:"error,omitempty"`
	PID      int               `json:"pid,omitempty"`
	Account  string            `json:"account,omitempty"`
	Mappings map[string]string `json:"mappings,omitempty"`
}

func errResp(msg string) response { return response{OK: false, Error: msg} }

// dispatch parses one line of the wire protocol and executes it against reg.
// It never returns an error itself: every failure mode is represented as an
// {"ok":false,...} response, per spec.md's "unparseable lines do not abort
// the connection" contract.
func dispatch(reg Registry, defaultAccount string, line []byte) response {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		return errResp(fmt.Sprintf("Invalid JSON: %v", err))
	}

	switch req.Cmd {
	case "register":
		pid, perr := req.PID.Int64()
		if perr != nil || pid <= 0 {
			return errResp("Missing pid or account")
		}
		if req.Account == "" {
			return errResp("Missing pid or account")
		}
		if err := reg.Register(int(pid), req.Account); err != nil {
			return errResp(err.Error())
		}
		return response{OK: true}

	case "unregister":
		pid, perr := req.PID.Int64()
		if perr != nil || pid <= 0 {
			return errResp("Missing pid")
		}
		if err := reg.Unregister(int(pid)); err != nil {
			return errResp(err.Error())
		}
		return response{OK: true}

	case "query":
		pid, perr := req.PID.Int64()
		if perr != nil || pid <= 0 {
			return errResp("Missing pid")
		}
		acct := reg.Lookup(int(pid), defaultAccount)
		return response{OK: true, PID: int(pid), Account: acct}

	case "list":
		mp := reg.List()
		out := make(map[string]string, len(mp))
		for pid, acct := range mp {
			out[fmt.Sprintf("%d", pid)] = acct
		}
		return response{OK: true, Mappings: out}

	case "cleanup":
		if err := reg.SweepStale(); err != nil {
			return errResp(err.Error())
		}
		return response{OK: true}

	default:
		return errResp(fmt.Sprintf("Unknown command: %s", req.Cmd))
	}
}
