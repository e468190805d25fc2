package moderation

import "strings"

// defaultBlacklistTerms is the fixed pre-filter wordlist. Matching is a
// case-insensitive substring check, so "KILLing" trips on "kill". Crude, but
// the point of the pre-filter is to be cheap and dependency-free; nuance is
// the classifier's job.
var defaultBlacklistTerms = []string{
	"nude",
	"sex",
	"kill",
	"bomb",
	"suicide",
	"fuck",
	"shit",
	"porn",
}

// Blacklist performs deterministic, case-insensitive substring matching
// against a fixed term list. It has no failure mode and no external
// dependencies.
type Blacklist struct {
	terms []string
}

// DefaultBlacklist returns a Blacklist with the built-in term list.
func DefaultBlacklist() *Blacklist {
	return NewBlacklist(defaultBlacklistTerms)
}

// NewBlacklist builds a Blacklist from the given terms. Terms are lowercased;
// empty or whitespace-only terms are dropped.
func NewBlacklist(terms []string) *Blacklist {
	b := &Blacklist{}
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			b.terms = append(b.terms, t)
		}
	}
	return b
}

// Match reports whether text contains any blacklisted term and returns the
// first term that matched.
func (b *Blacklist) Match(text string) (string, bool) {
	low := strings.ToLower(text)
	for _, term := range b.terms {
		if strings.Contains(low, term) {
			return term, true
		}
	}
	return "", false
}
