// Package enumerate turns scan roots plus a policy into an ordered, finite
// list of scan targets. Enumeration reflects live filesystem state and never
// aborts a whole batch because one root is unreadable.
package enumerate

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sloppy/infrared/internal/pathrule"
)

// Category labels the operational intent a target was enumerated under.
type Category string

const (
	CategoryQuick      Category = "quick"
	CategoryFolder     Category = "folder"
	CategoryDrive      Category = "drive"
	CategoryAllDrives  Category = "all-drives"
	CategoryUSB        Category = "usb"
	CategoryFullSystem Category = "full-system"
)

// Per-source target caps. Quick and folder scans are bounded by their roots
// rather than a count.
const (
	CapFullSystem = 10000
	CapDrive      = 50000
	CapAllDrives  = 100000
	CapUSB        = 50000
)

// Target is one file to scan, immutable once enumerated.
type Target struct {
	Path     string   `json:"path"`
	Category Category `json:"category"`
}

// Policy controls one enumeration pass.
type Policy struct {
	// Recursive descends into subdirectories. Capped sources are always
	// recursive; the toggle exists for folder scans.
	Recursive bool
	// Cap stops enumeration once this many targets have been collected
	// across all roots. Zero means uncapped.
	Cap int
	// Category is stamped onto every target.
	Category Category
	// Exclude drops matching paths (and skips matching directories).
	Exclude *pathrule.Matcher
}

// Enumerate walks roots in order and collects targets under the policy.
// It returns the targets and the number of roots that could not be read at
// all; such roots are skipped, not fatal.
func Enumerate(roots []string, policy Policy) ([]Target, int) {
	var targets []Target
	skipped := 0
	for _, root := range roots {
		if policy.Cap > 0 && len(targets) >= policy.Cap {
			break
		}
		if _, err := os.Stat(root); err != nil {
			skipped++
			continue
		}
		var collected []Target
		var ok bool
		if policy.Recursive {
			collected, ok = walkRoot(root, policy, targets)
		} else {
			collected, ok = listRoot(root, policy, targets)
		}
		if !ok {
			skipped++
			continue
		}
		targets = collected
	}
	return targets, skipped
}

// walkRoot appends capped targets from a recursive walk. Unreadable subtrees
// are skipped silently; an error on the root path itself means the whole
// root is unreadable and the walk reports failure.
func walkRoot(root string, policy Policy, targets []Target) ([]Target, bool) {
	ok := true
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if policy.Cap > 0 && len(targets) >= policy.Cap {
			return fs.SkipAll
		}
		if err != nil {
			if path == root {
				ok = false
				return fs.SkipAll
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if policy.Exclude.Excluded(path) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		targets = append(targets, Target{Path: path, Category: policy.Category})
		return nil
	})
	return targets, ok
}

// listRoot appends the regular files directly inside root.
func listRoot(root string, policy Policy, targets []Target) ([]Target, bool) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return targets, false
	}
	for _, entry := range entries {
		if policy.Cap > 0 && len(targets) >= policy.Cap {
			break
		}
		if entry.IsDir() || !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(root, entry.Name())
		if policy.Exclude.Excluded(path) {
			continue
		}
		targets = append(targets, Target{Path: path, Category: policy.Category})
	}
	return targets, true
}

// QuickRoots returns the small fixed set of well-known folders a quick scan
// covers. Folders that do not exist are left out.
func QuickRoots() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	var roots []string
	for _, name := range []string{"Downloads", "Documents", "Desktop"} {
		dir := filepath.Join(home, name)
		if _, err := os.Stat(dir); err == nil {
			roots = append(roots, dir)
		}
	}
	return roots
}

// SystemRoot returns the traversal root for a full-system scan.
func SystemRoot() string {
	if os.PathSeparator == '\\' {
		return `C:\`
	}
	return "/"
}
