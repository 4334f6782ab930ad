// Package drives discovers mounted block-device filesystems and classifies
// them as fixed or removable so USB-only scans can be scoped correctly.
package drives

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Drive is one mounted filesystem backed by a block device.
type Drive struct {
	Device    string
	Mount     string
	Removable bool
}

// ErrUnsupported is returned on platforms without a discovery implementation.
var ErrUnsupported = errors.New("drives: discovery not supported on this platform")

const (
	procMounts   = "/proc/mounts"
	sysBlockRoot = "/sys/block"
)

// List returns the mounted block-device filesystems. Pseudo filesystems and
// loop devices are skipped. On systems without /proc/mounts it returns
// ErrUnsupported so callers can fall back to explicit roots.
func List() ([]Drive, error) {
	return list(procMounts, sysBlockRoot)
}

// Removable filters List down to removable media.
func Removable() ([]Drive, error) {
	all, err := List()
	if err != nil {
		return nil, err
	}
	var removable []Drive
	for _, d := range all {
		if d.Removable {
			removable = append(removable, d)
		}
	}
	return removable, nil
}

func list(mountsPath, sysBlock string) ([]Drive, error) {
	f, err := os.Open(mountsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrUnsupported
		}
		return nil, fmt.Errorf("open %s: %w", mountsPath, err)
	}
	defer f.Close()

	var found []Drive
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		device, mount := fields[0], fields[1]
		if !strings.HasPrefix(device, "/dev/") || strings.HasPrefix(device, "/dev/loop") {
			continue
		}
		found = append(found, Drive{
			Device:    device,
			Mount:     unescapeMount(mount),
			Removable: isRemovable(sysBlock, device),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", mountsPath, err)
	}
	return found, nil
}

// isRemovable consults /sys/block/<disk>/removable for the partition's parent
// disk. Unknown devices default to fixed.
func isRemovable(sysBlock, device string) bool {
	name := parentDisk(filepath.Base(device))
	data, err := os.ReadFile(filepath.Join(sysBlock, name, "removable"))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}

// parentDisk strips the partition suffix: sdb1 -> sdb, nvme0n1p2 -> nvme0n1.
func parentDisk(name string) string {
	if strings.HasPrefix(name, "nvme") || strings.HasPrefix(name, "mmcblk") {
		if i := strings.LastIndex(name, "p"); i > 0 && allDigits(name[i+1:]) {
			return name[:i]
		}
		return name
	}
	return strings.TrimRight(name, "0123456789")
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// unescapeMount decodes the octal escapes /proc/mounts uses for spaces etc.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			var c byte
			if _, err := fmt.Sscanf(s[i+1:i+4], "%03o", &c); err == nil {
				b.WriteByte(c)
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
