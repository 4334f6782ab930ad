// Package engine defines the detection adapter boundary: the verdict codes,
// the capability interfaces a backend may implement, and helpers that paper
// over missing optional capabilities.
package engine

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Verdict classifies the outcome of scanning one file. The numeric codes are
// part of the adapter contract and must not be renumbered.
type Verdict int

const (
	Clean               Verdict = 0
	MaliciousSignature  Verdict = 1
	MaliciousHash       Verdict = 2
	SuspiciousHeuristic Verdict = 3
	VerdictError        Verdict = -1
)

// Malicious reports whether the verdict is one of the two malicious causes.
// Signature and hash hits are distinct causes but one bucket for aggregation.
func (v Verdict) Malicious() bool {
	return v == MaliciousSignature || v == MaliciousHash
}

// Quarantinable reports whether the verdict makes the file eligible for
// auto-quarantine.
func (v Verdict) Quarantinable() bool {
	return v.Malicious() || v == SuspiciousHeuristic
}

func (v Verdict) String() string {
	switch v {
	case Clean:
		return "clean"
	case MaliciousSignature:
		return "malicious-signature"
	case MaliciousHash:
		return "malicious-hash"
	case SuspiciousHeuristic:
		return "suspicious-heuristic"
	case VerdictError:
		return "error"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// Scanner is the one capability every detection backend must provide.
type Scanner interface {
	Scan(path string) (Verdict, error)
}

// DetailedScanner is an optional capability; discovered by type assertion,
// mirroring how the original engine probed for optional symbols.
type DetailedScanner interface {
	ScanDetailed(path string) (Detail, error)
}

// SignatureAdder is an optional capability for registering byte-pattern
// signatures at runtime. It returns the new total signature count.
type SignatureAdder interface {
	AddSignature(name, pattern string, severity int) (int, error)
}

// HashAdder is an optional capability for registering known-bad hashes at
// runtime. It returns the new total hash count.
type HashAdder interface {
	AddHash(hashHex, threatName string, severity int, sha256 bool) (int, error)
}

// Detail carries the full per-file scan metadata. When the backend lacks the
// detailed capability, the hash and entropy fields stay zero-valued.
type Detail struct {
	Status     Verdict `json:"status"`
	ThreatType string  `json:"threat_type"`
	ThreatName string  `json:"threat_name"`
	MD5        string  `json:"md5"`
	SHA256     string  `json:"sha256"`
	Entropy    float64 `json:"entropy"`
	FileSize   int64   `json:"file_size"`
}

// ErrUnsupported is returned when an optional adapter capability is absent.
var ErrUnsupported = errors.New("engine: capability not supported by this backend")

// ScanDetailed scans path with the richest capability the backend offers.
// A backend without DetailedScanner gets a Detail synthesized from the basic
// verdict. Adapter failures are folded into a VerdictError detail so a batch
// never aborts on one file; the error is returned alongside for reporting.
func ScanDetailed(s Scanner, path string) (Detail, error) {
	if ds, ok := s.(DetailedScanner); ok {
		detail, err := ds.ScanDetailed(path)
		if err == nil {
			return detail, nil
		}
		// Fall through to the basic scan like the original did when the
		// detailed call misbehaved.
	}

	verdict, err := s.Scan(path)
	if err != nil {
		return Detail{
			Status:     VerdictError,
			ThreatType: "unknown",
			ThreatName: "Scan Error",
		}, fmt.Errorf("scan %s: %w", filepath.Base(path), err)
	}
	detail := Detail{Status: verdict}
	if verdict != Clean {
		detail.ThreatType = "unknown"
		detail.ThreatName = verdict.String()
	}
	return detail, nil
}
