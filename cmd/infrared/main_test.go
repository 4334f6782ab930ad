package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sloppy/infrared/internal/config"
	"github.com/sloppy/infrared/internal/testutil"
)

// writeConfig points every data path into the test's temp dir so CLI runs
// never touch the real home directory.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "settings.json")
	err := config.Save(path, config.Settings{
		QuarantineDir:   filepath.Join(dir, "quarantine"),
		DatabasePath:    filepath.Join(dir, "infrared.db"),
		SignatureDBPath: filepath.Join(dir, "signatures.json"),
	})
	if err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestScanCLI(t *testing.T) {
	tmp := testutil.TempDir(t)
	configPath := writeConfig(t, tmp)

	scanDir := filepath.Join(tmp, "files")
	testutil.WriteFile(t, filepath.Join(scanDir, "clean.txt"), []byte("nothing here"))
	testutil.WriteFile(t, filepath.Join(scanDir, "evil.com"), []byte("X5O!EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*"))

	exit := run([]string{"infrared", "engine", "add-signature",
		"--config", configPath, "--name", "EICAR-Test",
		"--pattern", "EICAR-STANDARD-ANTIVIRUS-TEST-FILE", "--severity", "4"},
		ioDiscard{}, ioDiscard{})
	if exit != 0 {
		t.Fatalf("engine add-signature exit %d", exit)
	}

	reportPath := filepath.Join(tmp, "report.csv")
	var stderr bytes.Buffer
	exit = run([]string{"infrared", "scan", "--config", configPath,
		"--auto-quarantine", "--detailed", "--format", "csv", "--output", reportPath,
		"folder", scanDir}, ioDiscard{}, &stderr)
	if exit != 0 {
		t.Fatalf("scan exit %d: %s", exit, stderr.String())
	}

	report, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(report), "EICAR-Test") {
		t.Fatalf("report missing threat:\n%s", report)
	}

	// the flagged file was quarantined away
	if _, err := os.Stat(filepath.Join(scanDir, "evil.com")); !os.IsNotExist(err) {
		t.Fatalf("flagged file still present: %v", err)
	}

	var stdout bytes.Buffer
	exit = run([]string{"infrared", "quarantine", "list", "--config", configPath}, &stdout, ioDiscard{})
	if exit != 0 {
		t.Fatalf("quarantine list exit %d", exit)
	}
	if !strings.Contains(stdout.String(), "EICAR-Test") {
		t.Fatalf("quarantine list missing entry:\n%s", stdout.String())
	}

	stdout.Reset()
	exit = run([]string{"infrared", "history", "--config", configPath}, &stdout, ioDiscard{})
	if exit != 0 {
		t.Fatalf("history exit %d", exit)
	}
	if !strings.Contains(stdout.String(), "folder") || !strings.Contains(stdout.String(), "completed") {
		t.Fatalf("history missing scan row:\n%s", stdout.String())
	}
}

func TestScanCLIRequiresMode(t *testing.T) {
	var stderr bytes.Buffer
	exit := run([]string{"infrared", "scan"}, ioDiscard{}, &stderr)
	if exit != 1 {
		t.Fatalf("exit %d, want 1", exit)
	}
	if !strings.Contains(stderr.String(), "scan requires a mode") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestQuarantineCLIRestore(t *testing.T) {
	tmp := testutil.TempDir(t)
	configPath := writeConfig(t, tmp)

	scanDir := filepath.Join(tmp, "files")
	victim := testutil.WriteFile(t, filepath.Join(scanDir, "bad.bin"), []byte("X5O!EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*"))

	exit := run([]string{"infrared", "engine", "add-signature",
		"--config", configPath, "--name", "EICAR-Test",
		"--pattern", "EICAR-STANDARD-ANTIVIRUS-TEST-FILE", "--severity", "4"},
		ioDiscard{}, ioDiscard{})
	if exit != 0 {
		t.Fatalf("add-signature exit %d", exit)
	}

	exit = run([]string{"infrared", "scan", "--config", configPath,
		"--auto-quarantine", "folder", scanDir}, ioDiscard{}, ioDiscard{})
	if exit != 0 {
		t.Fatalf("scan exit %d", exit)
	}

	var stdout bytes.Buffer
	exit = run([]string{"infrared", "quarantine", "list", "--config", configPath}, &stdout, ioDiscard{})
	if exit != 0 {
		t.Fatalf("list exit %d", exit)
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) < 2 {
		t.Fatalf("no quarantine entries:\n%s", stdout.String())
	}
	file := strings.Fields(lines[1])[0]

	exit = run([]string{"infrared", "quarantine", "restore", file, "--config", configPath}, ioDiscard{}, ioDiscard{})
	if exit != 0 {
		t.Fatalf("restore exit %d", exit)
	}
	if _, err := os.Stat(victim); err != nil {
		t.Fatalf("restored file missing: %v", err)
	}
}

func TestHistoryCLIEmpty(t *testing.T) {
	tmp := testutil.TempDir(t)
	configPath := writeConfig(t, tmp)

	var stdout bytes.Buffer
	exit := run([]string{"infrared", "history", "--config", configPath}, &stdout, ioDiscard{})
	if exit != 0 {
		t.Fatalf("history exit %d", exit)
	}
	if !strings.Contains(stdout.String(), "no scan history") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestEngineCLIRejectsBadHash(t *testing.T) {
	tmp := testutil.TempDir(t)
	configPath := writeConfig(t, tmp)

	var stderr bytes.Buffer
	exit := run([]string{"infrared", "engine", "add-hash", "--config", configPath,
		"--hash", "nothex", "--threat", "X"}, ioDiscard{}, &stderr)
	if exit != 1 {
		t.Fatalf("exit %d, want 1", exit)
	}
}

func TestConfigCLIShow(t *testing.T) {
	tmp := testutil.TempDir(t)
	configPath := writeConfig(t, tmp)

	var stdout bytes.Buffer
	exit := run([]string{"infrared", "config", "show", "--config", configPath}, &stdout, ioDiscard{})
	if exit != 0 {
		t.Fatalf("config show exit %d", exit)
	}
	if !strings.Contains(stdout.String(), filepath.Join(tmp, "quarantine")) {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	exit := run([]string{"infrared", "defrag"}, ioDiscard{}, &stderr)
	if exit != 1 {
		t.Fatalf("exit %d, want 1", exit)
	}
	if !strings.Contains(stderr.String(), "unknown command") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

// ioDiscard is a minimal io.Writer to drop output without importing io once more.
type ioDiscard struct{}

func (ioDiscard) Write(p []byte) (int, error) { return len(p), nil }
