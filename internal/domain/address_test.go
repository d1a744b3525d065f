package domain_test

import (
	"testing"

	"vetreview/internal/domain"
)

type fixedMetric float64

func (m fixedMetric) Compare(a, b string) float64 { return float64(m) }

type countingMetric struct {
	calls int
	score float64
}

func (m *countingMetric) Compare(a, b string) float64 {
	m.calls++
	return m.score
}

const lotAddr = "경기도 수원시 팔달구 인계동 123-4"

func TestMatch_ExactAddressAfterNormalization(t *testing.T) {
	m := domain.NewAddressMatcher()
	d := m.Match("경기도수원시 팔달구 인계동 1234", domain.KnownAddresses{Lot: lotAddr})
	if !d.Matched || d.Address != lotAddr {
		t.Fatalf("expected match on lot address, got %+v", d)
	}
	if d.Similarity != 1 {
		t.Fatalf("expected similarity 1, got %v", d.Similarity)
	}
}

func TestMatch_UnrelatedLine(t *testing.T) {
	m := domain.NewAddressMatcher()
	d := m.Match("합계 35,000원", domain.KnownAddresses{Lot: lotAddr, Road: "경기도 수원시 팔달구 효원로 1"})
	if d.Matched {
		t.Fatalf("unexpected match: %+v", d)
	}
}

func TestSimilarity_SymmetricAndDeterministic(t *testing.T) {
	m := domain.NewAddressMatcher()
	pairs := [][2]string{
		{lotAddr, "경기도 수원시 팔달구 인계동 12"},
		{"Seoul Gangnam-gu 1", "seoul gangnam gu 2"},
		{"", lotAddr},
		{"abc", "xyz"},
	}
	for _, p := range pairs {
		ab := m.Similarity(p[0], p[1])
		ba := m.Similarity(p[1], p[0])
		if ab != ba {
			t.Fatalf("asymmetric similarity for %q/%q: %v vs %v", p[0], p[1], ab, ba)
		}
		if again := m.Similarity(p[0], p[1]); again != ab {
			t.Fatalf("non-deterministic similarity for %q/%q", p[0], p[1])
		}
		if ab < 0 || ab > 1 {
			t.Fatalf("similarity out of range: %v", ab)
		}
	}
}

func TestMatch_ThresholdBoundary(t *testing.T) {
	known := domain.KnownAddresses{Lot: lotAddr}

	at := domain.NewAddressMatcherWithMetric(fixedMetric(0.75))
	if d := at.Match("anything", known); !d.Matched {
		t.Fatalf("similarity 0.75 must match")
	}

	below := domain.NewAddressMatcherWithMetric(fixedMetric(0.7499))
	if d := below.Match("anything", known); d.Matched {
		t.Fatalf("similarity 0.7499 must not match")
	}
}

func TestMatch_EmptyVariantNeverMatches(t *testing.T) {
	m := domain.NewAddressMatcherWithMetric(fixedMetric(1))

	if d := m.Match("anything", domain.KnownAddresses{}); d.Matched {
		t.Fatalf("no known addresses must never match")
	}

	road := "경기도 수원시 팔달구 효원로 1"
	d := m.Match("anything", domain.KnownAddresses{Lot: "  ", Road: road})
	if !d.Matched || d.Address != road {
		t.Fatalf("expected road address match, got %+v", d)
	}
}

func TestMatchAny_ShortCircuits(t *testing.T) {
	metric := &countingMetric{score: 1}
	m := domain.NewAddressMatcherWithMetric(metric)

	d := m.MatchAny([]string{"first", "second", "third"}, domain.KnownAddresses{Lot: lotAddr, Road: "road"})
	if !d.Matched || d.Line != "first" {
		t.Fatalf("expected first line to match, got %+v", d)
	}
	if metric.calls != 1 {
		t.Fatalf("expected 1 comparison, got %d", metric.calls)
	}
}

func TestMatchAny_NoLines(t *testing.T) {
	m := domain.NewAddressMatcher()
	if d := m.MatchAny(nil, domain.KnownAddresses{Lot: lotAddr}); d.Matched {
		t.Fatalf("no lines must not match")
	}
}
