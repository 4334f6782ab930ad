package engine

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// Signature is a named byte pattern with a severity rating.
type Signature struct {
	Name     string `json:"name"`
	Pattern  string `json:"pattern"`
	Severity int    `json:"severity"`
}

// DB is a file-backed reference detection backend: known-bad MD5/SHA256
// lookup plus byte-pattern signature matching and a high-entropy heuristic.
// It implements every optional capability, which makes it a convenient
// default for the CLI and server; production deployments swap in a real
// engine behind the same interfaces.
type DB struct {
	mu         sync.RWMutex
	path       string
	Signatures []Signature       `json:"signatures"`
	MD5        map[string]string `json:"md5"`
	SHA256     map[string]string `json:"sha256"`
}

// OpenDB loads the signature database at path, or starts empty when the file
// does not exist. The path may be empty for a purely in-memory database.
func OpenDB(path string) (*DB, error) {
	db := &DB{
		path:   path,
		MD5:    make(map[string]string),
		SHA256: make(map[string]string),
	}
	if path == "" {
		return db, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return db, nil
		}
		return nil, fmt.Errorf("read signature db: %w", err)
	}
	if err := json.Unmarshal(data, db); err != nil {
		return nil, fmt.Errorf("parse signature db: %w", err)
	}
	if db.MD5 == nil {
		db.MD5 = make(map[string]string)
	}
	if db.SHA256 == nil {
		db.SHA256 = make(map[string]string)
	}
	return db, nil
}

// save persists the database when it is file-backed. Callers hold the lock.
func (db *DB) save() error {
	if db.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal signature db: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(db.path), 0o755); err != nil {
		return fmt.Errorf("create signature db dir: %w", err)
	}
	if err := os.WriteFile(db.path, data, 0o644); err != nil {
		return fmt.Errorf("write signature db: %w", err)
	}
	return nil
}

// Scan classifies one file. Unreadable files are adapter errors, not verdicts.
func (db *DB) Scan(path string) (Verdict, error) {
	detail, err := db.ScanDetailed(path)
	if err != nil {
		return VerdictError, err
	}
	return detail.Status, nil
}

// ScanDetailed classifies one file and reports full metadata. Detection order
// matches the engine contract: signature match, hash match, then heuristic.
func (db *DB) ScanDetailed(path string) (Detail, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Detail{}, fmt.Errorf("read %s: %w", path, err)
	}

	md5Sum := md5.Sum(data)
	sha256Sum := sha256.Sum256(data)
	detail := Detail{
		Status:     Clean,
		ThreatType: "none",
		ThreatName: "",
		MD5:        hex.EncodeToString(md5Sum[:]),
		SHA256:     hex.EncodeToString(sha256Sum[:]),
		Entropy:    shannonEntropy(data),
		FileSize:   int64(len(data)),
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, sig := range db.Signatures {
		if sig.Pattern != "" && bytes.Contains(data, []byte(sig.Pattern)) {
			detail.Status = MaliciousSignature
			detail.ThreatType = "signature"
			detail.ThreatName = sig.Name
			return detail, nil
		}
	}
	if name, ok := db.MD5[detail.MD5]; ok {
		detail.Status = MaliciousHash
		detail.ThreatType = "hash"
		detail.ThreatName = name
		return detail, nil
	}
	if name, ok := db.SHA256[detail.SHA256]; ok {
		detail.Status = MaliciousHash
		detail.ThreatType = "hash"
		detail.ThreatName = name
		return detail, nil
	}
	// Packed or encrypted payloads sit near 8 bits/byte; plain media rarely
	// exceeds this on files of meaningful size.
	if detail.Entropy > 7.5 && detail.FileSize >= 1024 {
		detail.Status = SuspiciousHeuristic
		detail.ThreatType = "heuristic"
		detail.ThreatName = "Heuristic.HighEntropy"
	}
	return detail, nil
}

// AddSignature registers a byte-pattern signature and returns the new total.
func (db *DB) AddSignature(name, pattern string, severity int) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.Signatures = append(db.Signatures, Signature{Name: name, Pattern: pattern, Severity: severity})
	if err := db.save(); err != nil {
		return 0, err
	}
	return len(db.Signatures), nil
}

// AddHash registers a known-bad hash and returns the new total hash count.
func (db *DB) AddHash(hashHex, threatName string, severity int, sha256 bool) (int, error) {
	_ = severity // retained by the backend contract; the lookup is binary
	db.mu.Lock()
	defer db.mu.Unlock()
	if sha256 {
		db.SHA256[hashHex] = threatName
	} else {
		db.MD5[hashHex] = threatName
	}
	if err := db.save(); err != nil {
		return 0, err
	}
	return len(db.MD5) + len(db.SHA256), nil
}

func shannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	total := float64(len(data))
	entropy := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}
