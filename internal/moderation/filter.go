package moderation

import (
	"context"
	"strings"
	"unicode"
)

// defaultFilterTerms is the classifier's blocklist: single words and multi
// word phrases. This is deliberately broader than the pre-filter blacklist —
// the Filter tokenizes and normalizes leetspeak, so it can afford exact
// word matching without the pre-filter's substring false positives.
var defaultFilterTerms = []string{
	// carried over from the pre-filter
	"nude", "sex", "kill", "bomb", "suicide", "fuck", "shit", "porn",
	// phrases
	"kill yourself",
	"go die",
	"send nudes",
	"bomb threat",
	"child porn",
	// scam bait
	"free bitcoin",
	"wire transfer",
}

// FilterResult is the outcome of a Filter check.
type FilterResult struct {
	Blocked bool
	Reason  string // "blocked_keyword" or "spam_pattern"
	Term    string // the matched word/phrase, or the spam check name
}

// Filter screens text against a blocklist of words and phrases, with
// leetspeak normalization and spam pattern detection. A Filter is immutable
// after construction and safe for concurrent use.
type Filter struct {
	words   map[string]struct{} // single-token terms
	phrases [][]string          // multi-token terms, pre-split
}

// NewFilter creates a Filter with the default blocklist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultFilterTerms)
}

// NewFilterWithTerms creates a Filter from the given terms. Terms containing
// whitespace are treated as phrases and matched as consecutive token runs;
// everything else is matched as an exact token. Empty terms are dropped.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]struct{})}
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if parts := strings.Fields(term); len(parts) > 1 {
			f.phrases = append(f.phrases, parts)
		} else {
			f.words[term] = struct{}{}
		}
	}
	return f
}

// Check screens text and returns the first blocking result found. Order:
// exact keyword/phrase match on plain tokens, the same on leet-normalized
// tokens, then spam patterns.
func (f *Filter) Check(text string) FilterResult {
	low := strings.ToLower(text)

	if res := f.checkTokens(tokenizePlain(low)); res.Blocked {
		return res
	}

	// Second pass: whitespace-split tokens with leetspeak substitutions
	// normalized, so "b@dw0rd" resolves to "badword".
	leet := tokenizeLeet(low)
	for i, tok := range leet {
		leet[i] = normalizeLeet(tok)
	}
	if res := f.checkTokens(leet); res.Blocked {
		return res
	}

	return f.checkSpamPatterns(text)
}

// Classify adapts the Filter to the Classifier interface so it can serve as
// the Gate's in-process classification strategy.
func (f *Filter) Classify(_ context.Context, text string) (Verdict, error) {
	res := f.Check(text)
	if !res.Blocked {
		return Verdict{}, nil
	}
	return Verdict{Flagged: true, Reason: res.Reason}, nil
}

// checkTokens matches the token stream against the word set and the phrase
// list. Phrases must appear as consecutive tokens, so "kill yourselves"
// does not trip "kill yourself".
func (f *Filter) checkTokens(tokens []string) FilterResult {
	for _, tok := range tokens {
		if _, ok := f.words[tok]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: tok}
		}
	}

	for _, phrase := range f.phrases {
		if containsRun(tokens, phrase) {
			return FilterResult{
				Blocked: true,
				Reason:  "blocked_keyword",
				Term:    strings.Join(phrase, " "),
			}
		}
	}
	return FilterResult{}
}

// containsRun reports whether needle appears in haystack as a consecutive
// run of equal tokens.
func containsRun(haystack, needle []string) bool {
	if len(needle) == 0 || len(haystack) < len(needle) {
		return false
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, want := range needle {
			if haystack[i+j] != want {
				continue outer
			}
		}
		return true
	}
	return false
}

// tokenizePlain splits text into lowercase word tokens on any
// non-alphanumeric rune.
func tokenizePlain(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenizeLeet splits text on whitespace only, keeping punctuation inside
// tokens so that leetspeak substitutions survive for normalizeLeet.
func tokenizeLeet(text string) []string {
	return strings.Fields(text)
}

// leetSubstitutions maps common character substitutions back to the letters
// they stand in for.
var leetSubstitutions = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'@': 'a',
	'$': 's',
	'!': 'i',
}

// normalizeLeet replaces leetspeak substitutions in a token with their
// letter equivalents.
func normalizeLeet(token string) string {
	var b strings.Builder
	b.Grow(len(token))
	for _, r := range token {
		if sub, ok := leetSubstitutions[r]; ok {
			r = sub
		}
		b.WriteRune(r)
	}
	return b.String()
}
