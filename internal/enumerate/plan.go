package enumerate

import (
	"errors"
	"fmt"

	"github.com/sloppy/infrared/internal/drives"
	"github.com/sloppy/infrared/internal/pathrule"
)

// ErrNoRoots is returned when a plan resolves to nothing to scan, such as a
// USB scan with no removable media present.
var ErrNoRoots = errors.New("enumerate: no scan roots resolved")

// ErrPathsRequired is returned when a category needs operator-supplied paths
// and the request carries none.
var ErrPathsRequired = errors.New("enumerate: scan mode requires at least one path")

// Plan resolves a scan category plus operator-supplied paths into targets.
// Capped categories ignore the recursive toggle and always descend. The
// returned skipped count is the number of unreadable roots.
func Plan(category Category, paths []string, recursive bool, exclude *pathrule.Matcher) ([]Target, int, error) {
	policy := Policy{Recursive: true, Category: category, Exclude: exclude}
	var roots []string

	switch category {
	case CategoryQuick:
		roots = QuickRoots()
	case CategoryFolder:
		if len(paths) == 0 {
			return nil, 0, fmt.Errorf("folder scan: %w", ErrPathsRequired)
		}
		roots = paths
		policy.Recursive = recursive
	case CategoryDrive:
		if len(paths) == 0 {
			return nil, 0, fmt.Errorf("drive scan: %w", ErrPathsRequired)
		}
		roots = paths
		policy.Cap = CapDrive
	case CategoryAllDrives:
		mounted, err := drives.List()
		if err != nil {
			return nil, 0, fmt.Errorf("enumerate: list drives: %w", err)
		}
		for _, d := range mounted {
			roots = append(roots, d.Mount)
		}
		policy.Cap = CapAllDrives
	case CategoryUSB:
		removable, err := drives.Removable()
		if err != nil {
			return nil, 0, fmt.Errorf("enumerate: list removable drives: %w", err)
		}
		for _, d := range removable {
			roots = append(roots, d.Mount)
		}
		policy.Cap = CapUSB
	case CategoryFullSystem:
		roots = []string{SystemRoot()}
		policy.Cap = CapFullSystem
	default:
		return nil, 0, fmt.Errorf("enumerate: unknown scan category %q", category)
	}

	if len(roots) == 0 {
		return nil, 0, ErrNoRoots
	}

	targets, skipped := Enumerate(roots, policy)
	return targets, skipped, nil
}

// ParseCategory maps an operator-facing mode name onto a Category.
func ParseCategory(mode string) (Category, error) {
	switch mode {
	case "quick":
		return CategoryQuick, nil
	case "folder":
		return CategoryFolder, nil
	case "drive":
		return CategoryDrive, nil
	case "all-drives":
		return CategoryAllDrives, nil
	case "usb":
		return CategoryUSB, nil
	case "full", "full-system":
		return CategoryFullSystem, nil
	}
	return "", fmt.Errorf("enumerate: unknown scan mode %q", mode)
}
