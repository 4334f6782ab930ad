package engine

import (
	"errors"
	"fmt"
	"strings"
)

const (
	md5HexLen    = 32
	sha256HexLen = 64
)

// ErrInvalidInput flags a registration request rejected before the adapter
// was ever invoked.
var ErrInvalidInput = errors.New("engine: invalid registration input")

// RegisterSignature validates and forwards a signature registration to the
// backend. Returns the backend's new total signature count.
func RegisterSignature(s Scanner, name, pattern string, severity int) (int, error) {
	if name == "" || pattern == "" {
		return 0, fmt.Errorf("%w: name and pattern are required", ErrInvalidInput)
	}
	if severity < 1 || severity > 4 {
		return 0, fmt.Errorf("%w: severity must be 1..4, got %d", ErrInvalidInput, severity)
	}
	adder, ok := s.(SignatureAdder)
	if !ok {
		return 0, ErrUnsupported
	}
	return adder.AddSignature(name, pattern, severity)
}

// RegisterHash validates and forwards a hash registration to the backend.
// The hash length is checked before the adapter is called: exactly 32 hex
// characters for MD5, 64 for SHA256.
func RegisterHash(s Scanner, hashHex, threatName string, severity int, sha256 bool) (int, error) {
	hashHex = strings.ToLower(strings.TrimSpace(hashHex))
	if threatName == "" {
		return 0, fmt.Errorf("%w: threat name is required", ErrInvalidInput)
	}
	if severity < 1 || severity > 4 {
		return 0, fmt.Errorf("%w: severity must be 1..4, got %d", ErrInvalidInput, severity)
	}
	wantLen := md5HexLen
	kind := "md5"
	if sha256 {
		wantLen = sha256HexLen
		kind = "sha256"
	}
	if len(hashHex) != wantLen {
		return 0, fmt.Errorf("%w: %s hash must be %d hex characters, got %d", ErrInvalidInput, kind, wantLen, len(hashHex))
	}
	if !isHex(hashHex) {
		return 0, fmt.Errorf("%w: %s hash contains non-hex characters", ErrInvalidInput, kind)
	}
	adder, ok := s.(HashAdder)
	if !ok {
		return 0, ErrUnsupported
	}
	return adder.AddHash(hashHex, threatName, severity, sha256)
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
