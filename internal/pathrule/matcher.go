// Package pathrule matches file paths against exclusion rules so the
// enumerator can keep managed directories (the quarantine store above all)
// out of scan batches.
package pathrule

import (
	"path/filepath"
	"strings"
)

type ruleType int

const (
	rulePrefix ruleType = iota
	ruleGlob
)

type rule struct {
	definition string
	kind       ruleType
}

// Matcher holds exclusion rules. A rule containing glob metacharacters is
// matched against the path's base name; anything else is a directory prefix.
type Matcher struct {
	rules []rule
}

// NewMatcher builds a matcher from rule definitions. Empty and malformed
// definitions are dropped rather than failing the whole set.
func NewMatcher(definitions []string) *Matcher {
	var rules []rule
	for _, def := range definitions {
		def = strings.TrimSpace(def)
		if def == "" {
			continue
		}
		if strings.ContainsAny(def, "*?[") {
			// Reject patterns filepath.Match would error on.
			if _, err := filepath.Match(def, "probe"); err != nil {
				continue
			}
			rules = append(rules, rule{definition: def, kind: ruleGlob})
			continue
		}
		rules = append(rules, rule{definition: filepath.Clean(def), kind: rulePrefix})
	}
	return &Matcher{rules: rules}
}

// Add appends one prefix rule after construction.
func (m *Matcher) Add(dir string) {
	if dir == "" {
		return
	}
	m.rules = append(m.rules, rule{definition: filepath.Clean(dir), kind: rulePrefix})
}

// Excluded reports whether path matches any exclusion rule. With no rules
// nothing is excluded.
func (m *Matcher) Excluded(path string) bool {
	if m == nil || len(m.rules) == 0 {
		return false
	}
	clean := filepath.Clean(path)
	base := filepath.Base(clean)
	for _, r := range m.rules {
		switch r.kind {
		case rulePrefix:
			if clean == r.definition || strings.HasPrefix(clean, r.definition+string(filepath.Separator)) {
				return true
			}
		case ruleGlob:
			if ok, _ := filepath.Match(r.definition, base); ok {
				return true
			}
		}
	}
	return false
}
