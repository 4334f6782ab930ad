package handles

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessReleaser enumerates handle holders via the process table's open-file
// lists and terminates them.
type ProcessReleaser struct{}

// NewProcessReleaser returns the gopsutil-backed releaser.
func NewProcessReleaser() *ProcessReleaser {
	return &ProcessReleaser{}
}

// HoldersOf scans every process's open files for an exact match on path.
// Processes that vanish or deny inspection mid-scan are ignored.
func (r *ProcessReleaser) HoldersOf(path string) ([]Holder, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var holders []Holder
	for _, p := range procs {
		open, err := p.OpenFiles()
		if err != nil {
			continue
		}
		for _, f := range open {
			if !samePath(f.Path, abs) {
				continue
			}
			name, err := p.Name()
			if err != nil {
				name = fmt.Sprintf("pid-%d", p.Pid)
			}
			if denied(name) {
				break
			}
			holders = append(holders, Holder{PID: p.Pid, Name: name})
			break
		}
	}
	return holders, nil
}

// Release terminates one holder. The deny-list is re-checked as a guard
// against callers constructing Holders by hand.
func (r *ProcessReleaser) Release(h Holder) error {
	if denied(h.Name) {
		return fmt.Errorf("refusing to terminate critical process %q (pid %d)", h.Name, h.PID)
	}
	p, err := process.NewProcess(h.PID)
	if err != nil {
		return fmt.Errorf("open process %d: %w", h.PID, err)
	}
	if err := p.Kill(); err != nil {
		return fmt.Errorf("kill process %d (%s): %w", h.PID, h.Name, err)
	}
	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func samePath(a, b string) bool {
	return strings.EqualFold(filepath.Clean(a), filepath.Clean(b))
}
