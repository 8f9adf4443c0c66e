// Package registry maintains the text ledger of running servers so viewers can find one
// to join.
package registry

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// DefaultPath is the shared ledger location.
const DefaultPath = "/tmp/walker_server_list.txt"

// ErrMalformedEntry is returned for a line that is not a registry entry.
var ErrMalformedEntry = errors.New("registry: malformed entry")

// Entry is one running server.
type Entry struct {
	PID  int
	Shm  string
	Sock string
}

// String renders the ledger line without a newline.
func (e Entry) String() string {
	return fmt.Sprintf("PID=%d SHM=%s SOCK=%s", e.PID, e.Shm, e.Sock)
}

// ParseEntry parses one ledger line.
func ParseEntry(line string) (Entry, error) {
	var e Entry
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return e, fmt.Errorf("%w: %q", ErrMalformedEntry, line)
	}
	for _, f := range fields {
		key, val, ok := strings.Cut(f, "=")
		if !ok || val == "" {
			return e, fmt.Errorf("%w: %q", ErrMalformedEntry, line)
		}
		switch key {
		case "PID":
			pid, err := strconv.Atoi(val)
			if err != nil || pid <= 0 {
				return e, fmt.Errorf("%w: bad pid %q", ErrMalformedEntry, val)
			}
			e.PID = pid
		case "SHM":
			e.Shm = val
		case "SOCK":
			e.Sock = val
		default:
			return e, fmt.Errorf("%w: unknown key %q", ErrMalformedEntry, key)
		}
	}
	if e.PID == 0 || e.Shm == "" || e.Sock == "" {
		return e, fmt.Errorf("%w: %q", ErrMalformedEntry, line)
	}
	return e, nil
}

// Alive reports whether the entry's process still exists.
func (e Entry) Alive() bool {
	err := unix.Kill(e.PID, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// withLock opens path and holds an exclusive flock while fn runs.
func withLock(path string, flag int, fn func(f *os.File) error) error {
	f, err := os.OpenFile(path, flag, 0o666)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("registry: lock %s: %w", path, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return fn(f)
}

// Append adds e to the ledger at path, creating the file if needed.
func Append(path string, e Entry) error {
	err := withLock(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, func(f *os.File) error {
		_, err := f.WriteString(e.String() + "\n")
		return err
	})
	if err != nil {
		return fmt.Errorf("registry: append to %s: %w", path, err)
	}
	return nil
}

// Remove deletes every line registered by pid. A missing ledger is not an error.
func Remove(path string, pid int) error {
	err := withLock(path, os.O_RDWR, func(f *os.File) error {
		data, err := io.ReadAll(f)
		if err != nil {
			return err
		}
		var kept bytes.Buffer
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			line := sc.Text()
			if e, err := ParseEntry(line); err == nil && e.PID == pid {
				continue
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			kept.WriteString(line)
			kept.WriteByte('\n')
		}
		if err := sc.Err(); err != nil {
			return err
		}
		if kept.Len() == len(data) {
			return nil
		}
		if err := f.Truncate(0); err != nil {
			return err
		}
		_, err = f.WriteAt(kept.Bytes(), 0)
		return err
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("registry: remove pid %d from %s: %w", pid, path, err)
	}
	return nil
}

// List returns every well-formed entry in file order. Malformed lines are skipped.
// A missing ledger yields no entries.
func List(path string) ([]Entry, error) {
	var out []Entry
	err := withLock(path, os.O_RDONLY, func(f *os.File) error {
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if e, err := ParseEntry(sc.Text()); err == nil {
				out = append(out, e)
			}
		}
		return sc.Err()
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: list %s: %w", path, err)
	}
	return out, nil
}
