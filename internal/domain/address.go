package domain

import (
	"strings"
	"unicode"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// MatchThreshold is the minimum similarity for an OCR line to count as a
// clinic's address.
const MatchThreshold = 0.75

// MatchDecision records whether a receipt matched and which pair did it.
type MatchDecision struct {
	Matched    bool
	Line       string
	Address    string
	Similarity float64
}

// AddressMatcher compares OCR'd receipt lines with a clinic's known addresses
// using character-bigram Sørensen–Dice similarity over normalized text.
// It holds no mutable state and is safe for concurrent use.
type AddressMatcher struct {
	metric strutil.StringMetric
}

func NewAddressMatcher() *AddressMatcher {
	return &AddressMatcher{metric: metrics.NewSorensenDice()}
}

// NewAddressMatcherWithMetric swaps the similarity metric; used by tests to pin
// exact similarity values.
func NewAddressMatcherWithMetric(m strutil.StringMetric) *AddressMatcher {
	return &AddressMatcher{metric: m}
}

// Similarity returns the normalized similarity of a and b in [0,1].
func (m *AddressMatcher) Similarity(a, b string) float64 {
	na, nb := normalizeAddress(a), normalizeAddress(b)
	if na == "" || nb == "" {
		return 0
	}
	return strutil.Similarity(na, nb, m.metric)
}

// Match checks one line against both address variants. An empty variant never
// matches.
func (m *AddressMatcher) Match(line string, known KnownAddresses) MatchDecision {
	best := MatchDecision{Line: line}
	for _, addr := range []string{known.Lot, known.Road} {
		if strings.TrimSpace(addr) == "" {
			continue
		}
		sim := m.Similarity(line, addr)
		if sim >= MatchThreshold {
			return MatchDecision{Matched: true, Line: line, Address: addr, Similarity: sim}
		}
		if sim > best.Similarity {
			best.Similarity = sim
			best.Address = addr
		}
	}
	return best
}

// MatchAny reports the first line that matches either address. When nothing
// matches, the closest pair seen is returned for diagnostics.
func (m *AddressMatcher) MatchAny(lines []string, known KnownAddresses) MatchDecision {
	var best MatchDecision
	for _, line := range lines {
		d := m.Match(line, known)
		if d.Matched {
			return d
		}
		if d.Similarity > best.Similarity {
			best = d
		}
	}
	return best
}

// normalizeAddress lower-cases and drops whitespace and punctuation so that
// "경기도 수원시, 123-4" and "경기도수원시 1234" compare on content only.
func normalizeAddress(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
