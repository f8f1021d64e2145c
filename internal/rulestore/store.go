// Package rulestore owns the compiled rule set and the bookkeeping around
// loading it: glob expansion, per-source failure tolerance, and the running
// rule total.
package rulestore

import (
	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/wafgate/wafgate/internal/engine"
)

// Store accumulates rule sources into one engine rule set. Loading happens
// once at startup; afterwards the store is read-only and safe to share
// across requests. No load failure is fatal: every failure is logged as a
// warning and loading continues with the remaining sources.
type Store struct {
	rules    engine.RuleSet
	total    int
	failures int
	log      zerolog.Logger
}

func New(eng engine.Engine, log zerolog.Logger) *Store {
	return &Store{rules: eng.NewRuleSet(), log: log}
}

// LoadFromFiles expands each glob pattern (`**` matches recursively) and
// loads every matched file. A file that fails to parse contributes zero
// rules and is logged with the parser error. Returns the number of rules
// this call added, not the absolute total.
//
// The order in which files within one pattern expansion load is
// filesystem-dependent and not guaranteed.
func (s *Store) LoadFromFiles(patterns []string) int {
	before := s.total
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			s.failures++
			s.log.Warn().Str("pattern", pattern).Err(err).Msg("bad rule file pattern")
			continue
		}
		for _, path := range matches {
			count, err := s.rules.AddFile(path)
			if err != nil {
				s.failures++
				s.log.Warn().Str("file", path).Err(err).Msg("failed to load rule file")
				continue
			}
			s.total += count
		}
	}
	return s.total - before
}

// LoadFromText loads the full text as a single rule source. Empty text is a
// no-op. Returns the number of rules added, zero on failure.
func (s *Store) LoadFromText(text string) int {
	if text == "" {
		return 0
	}
	count, err := s.rules.AddInline(text)
	if err != nil {
		s.failures++
		s.log.Warn().Err(err).Msg("failed to load inline rules")
		return 0
	}
	s.total += count
	return count
}

// TotalRules returns the running total. It only ever grows.
func (s *Store) TotalRules() int {
	return s.total
}

// Failures returns how many rule sources were rejected so far.
func (s *Store) Failures() int {
	return s.failures
}

// Rules exposes the compiled rule set for transaction construction. Callers
// borrow it; the store keeps ownership.
func (s *Store) Rules() engine.RuleSet {
	return s.rules
}
