package enumerate

import (
	"errors"
	"testing"

	"github.com/sloppy/infrared/internal/testutil"
)

func TestPlanFolder(t *testing.T) {
	dir := testutil.TempDir(t)
	testutil.WriteFile(t, dir+"/a.txt", []byte("a"))
	testutil.WriteFile(t, dir+"/sub/b.txt", []byte("b"))

	targets, skipped, err := Plan(CategoryFolder, []string{dir}, true, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(targets) != 2 {
		t.Fatalf("got %d targets, want 2", len(targets))
	}
	for _, target := range targets {
		if target.Category != CategoryFolder {
			t.Errorf("Category = %q, want %q", target.Category, CategoryFolder)
		}
	}

	flat, _, err := Plan(CategoryFolder, []string{dir}, false, nil)
	if err != nil {
		t.Fatalf("Plan flat: %v", err)
	}
	if len(flat) != 1 {
		t.Fatalf("flat scan got %d targets, want 1", len(flat))
	}
}

func TestPlanFolderRequiresPath(t *testing.T) {
	if _, _, err := Plan(CategoryFolder, nil, true, nil); !errors.Is(err, ErrPathsRequired) {
		t.Fatalf("folder scan without paths: got %v, want ErrPathsRequired", err)
	}
	if _, _, err := Plan(CategoryDrive, nil, true, nil); !errors.Is(err, ErrPathsRequired) {
		t.Fatalf("drive scan without mount: got %v, want ErrPathsRequired", err)
	}
}

func TestPlanUnknownCategory(t *testing.T) {
	if _, _, err := Plan(Category("banana"), nil, true, nil); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestPlanDriveCapped(t *testing.T) {
	dir := testutil.TempDir(t)
	testutil.WriteFile(t, dir+"/a", []byte("a"))

	targets, _, err := Plan(CategoryDrive, []string{dir}, false, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	// recursive toggle is ignored for capped categories
	if len(targets) != 1 {
		t.Fatalf("got %d targets, want 1", len(targets))
	}
}

func TestPlanNoRoots(t *testing.T) {
	dir := testutil.TempDir(t)
	missing := dir + "/does-not-exist"

	targets, skipped, err := Plan(CategoryFolder, []string{missing}, true, nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(targets) != 0 || skipped != 1 {
		t.Errorf("targets=%d skipped=%d, want 0/1", len(targets), skipped)
	}
}

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"quick":       CategoryQuick,
		"folder":      CategoryFolder,
		"drive":       CategoryDrive,
		"all-drives":  CategoryAllDrives,
		"usb":         CategoryUSB,
		"full":        CategoryFullSystem,
		"full-system": CategoryFullSystem,
	}
	for mode, want := range cases {
		got, err := ParseCategory(mode)
		if err != nil {
			t.Fatalf("ParseCategory(%q): %v", mode, err)
		}
		if got != want {
			t.Errorf("ParseCategory(%q) = %q, want %q", mode, got, want)
		}
	}
	if _, err := ParseCategory("deep"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
