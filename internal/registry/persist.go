package registry

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/google/renameio"
)

// load reads the JSON snapshot at path, falling back to the empty map for
// each of the three outcomes spec.md's persistence algorithm names: file
// missing, file unparseable, or a key not convertible to an integer. Any
// one bad key invalidates the whole snapshot, matching the original's
// single try/except around the entire load.
func load(path string) (map[int]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[int]string), nil
		}
		return make(map[int]string), err
	}

	var onDisk map[string]string
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		return make(map[int]string), err
	}

	mp := make(map[int]string, len(onDisk))
	for k, v := range onDisk {
		pid, err := strconv.Atoi(k)
		if err != nil {
			// A single key not convertible to integer invalidates the whole
			// snapshot, per spec.md's persistence algorithm - not just that
			// entry.
			return make(map[int]string), err
		}
		if pid <= 0 {
			continue
		}
		mp[pid] = v
	}
	return mp, nil
}

// save serializes mp as two-space-indented JSON with decimal-string keys
// and writes it atomically via renameio.WriteFile: a temporary file of
// renameio's own naming (not "<path>.tmp") on the same filesystem, then a
// rename onto path, so a reader never observes a truncated file.
func save(path string, mp map[int]string) error {
	onDisk := make(map[string]string, len(mp))
	for pid, acct := range mp {
		onDisk[strconv.Itoa(pid)] = acct
	}
	b, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, b, 0644)
}
