package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"vetreview/internal/app"
	"vetreview/internal/domain"
)

func TestReceiptClassifier_Policy(t *testing.T) {
	c := app.NewReceiptClassifier(&fakeDetector{}, &fakeOCR{}, app.DefaultReceiptPolicy())

	cases := []struct {
		name string
		in   []domain.Detection
		want bool
	}{
		{"confident keyword", []domain.Detection{{Text: "Receipt", Confidence: 80}}, true},
		{"keyword inside text", []domain.Detection{{Text: "CASH RECEIPT NO.12", Confidence: 95}}, true},
		{"low confidence", []domain.Detection{{Text: "receipt", Confidence: 79.99}}, false},
		{"no keyword", []domain.Detection{{Text: "영수증", Confidence: 99}}, false},
		{"empty", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, c.IsReceipt(tc.in))
		})
	}
}

func TestReceiptClassifier_Classify(t *testing.T) {
	receipt := []domain.Detection{{Text: "RECEIPT", Confidence: 99}}

	t.Run("verified", func(t *testing.T) {
		ocr := &fakeOCR{blocks: []string{"RECEIPT\n 경기도 수원시 \n\n합계", "RECEIPT"}}
		c := app.NewReceiptClassifier(&fakeDetector{out: receipt}, ocr, app.DefaultReceiptPolicy())

		res := c.Classify(context.Background(), []byte("img"))
		require.Equal(t, app.VerdictVerified, res.Verdict)
		require.Equal(t, []string{"RECEIPT", "경기도 수원시", "합계"}, res.Lines())
	})

	t.Run("not a receipt skips ocr", func(t *testing.T) {
		ocr := &fakeOCR{blocks: []string{"x"}}
		c := app.NewReceiptClassifier(&fakeDetector{}, ocr, app.DefaultReceiptPolicy())

		res := c.Classify(context.Background(), []byte("img"))
		require.Equal(t, app.VerdictNotAReceipt, res.Verdict)
		require.Zero(t, ocr.calls)
	})

	t.Run("no text", func(t *testing.T) {
		c := app.NewReceiptClassifier(&fakeDetector{out: receipt}, &fakeOCR{blocks: []string{}}, app.DefaultReceiptPolicy())
		require.Equal(t, app.VerdictTextUnverifiable, c.Classify(context.Background(), []byte("img")).Verdict)
	})

	t.Run("detector down", func(t *testing.T) {
		c := app.NewReceiptClassifier(&fakeDetector{err: errors.New("unreachable")}, &fakeOCR{}, app.DefaultReceiptPolicy())
		res := c.Classify(context.Background(), []byte("img"))
		require.Equal(t, app.VerdictServiceError, res.Verdict)
		require.Contains(t, res.Reason, "unreachable")
	})

	t.Run("ocr down", func(t *testing.T) {
		c := app.NewReceiptClassifier(&fakeDetector{out: receipt}, &fakeOCR{err: errors.New("quota")}, app.DefaultReceiptPolicy())
		require.Equal(t, app.VerdictServiceError, c.Classify(context.Background(), []byte("img")).Verdict)
	})
}

func TestAddressLines(t *testing.T) {
	lines := []string{"RECEIPT", "경기도 수원시 팔달구 1", "서울특별시 중구 2", "합계"}

	require.Equal(t, lines, app.AddressLines(lines, nil))
	require.Equal(t, lines, app.AddressLines(lines, []string{" "}))
	require.Equal(t, []string{"경기도 수원시 팔달구 1"}, app.AddressLines(lines, []string{"경기도"}))
	require.Equal(t,
		[]string{"경기도 수원시 팔달구 1", "서울특별시 중구 2"},
		app.AddressLines(lines, []string{"경기도", "서울특별시"}))
}
