// Package handles locates and terminates processes holding an open handle on
// one specific file. Forced release is destructive, so implementations must
// scope themselves to exact path matches and honor the critical-process
// deny-list; nothing here ever performs a broader sweep.
package handles

import "errors"

// Holder identifies one process with an open handle on the target path.
type Holder struct {
	PID  int32
	Name string
}

// Releaser is the platform capability for forced handle release. Platforms
// without an implementation use Unsupported, mirroring the detection
// adapter's optional-capability pattern.
type Releaser interface {
	// HoldersOf returns the processes holding an open handle on exactly
	// this path, with deny-listed critical processes already removed.
	HoldersOf(path string) ([]Holder, error)
	// Release terminates one holder.
	Release(h Holder) error
}

// ErrUnsupported signals that holder enumeration is unavailable here.
var ErrUnsupported = errors.New("handles: holder enumeration unsupported on this platform")

// Unsupported is the no-capability fallback.
type Unsupported struct{}

func (Unsupported) HoldersOf(string) ([]Holder, error) { return nil, ErrUnsupported }
func (Unsupported) Release(Holder) error               { return ErrUnsupported }

// denyList names processes that must never be terminated, whatever they hold.
var denyList = map[string]bool{
	"system":      true,
	"csrss.exe":   true,
	"smss.exe":    true,
	"wininit.exe": true,
	"init":        true,
	"systemd":     true,
	"kthreadd":    true,
}

// denied reports whether a process name is on the critical deny-list.
func denied(name string) bool {
	return denyList[normalizeName(name)]
}
