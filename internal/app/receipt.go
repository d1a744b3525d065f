package app

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"vetreview/internal/domain"
)

type Verdict int

const (
	VerdictVerified Verdict = iota + 1
	VerdictNotAReceipt
	VerdictTextUnverifiable
	VerdictServiceError
)

func (v Verdict) String() string {
	switch v {
	case VerdictVerified:
		return "verified"
	case VerdictNotAReceipt:
		return "not_a_receipt"
	case VerdictTextUnverifiable:
		return "text_unverifiable"
	case VerdictServiceError:
		return "service_error"
	}
	return "unknown"
}

// ClassificationResult is produced once per submission attempt. Text is set
// only for VerdictVerified, Reason only for VerdictServiceError.
type ClassificationResult struct {
	Verdict Verdict
	Text    string
	Reason  string
}

// Lines splits the OCR text into trimmed, non-empty lines.
func (r ClassificationResult) Lines() []string {
	return lo.FilterMap(strings.Split(r.Text, "\n"), func(l string, _ int) (string, bool) {
		l = strings.TrimSpace(l)
		return l, l != ""
	})
}

type Classifier interface {
	Classify(ctx context.Context, img []byte) ClassificationResult
}

type ReceiptPolicy struct {
	MinConfidence float64
	Keyword       string
}

func DefaultReceiptPolicy() ReceiptPolicy {
	return ReceiptPolicy{MinConfidence: 80, Keyword: "receipt"}
}

// ReceiptClassifier decides whether an image is a receipt (text detection)
// and extracts its text (OCR). Collaborator failures become
// VerdictServiceError; nothing is retried here.
type ReceiptClassifier struct {
	detector domain.Detector
	ocr      domain.TextExtractor
	policy   ReceiptPolicy
}

func NewReceiptClassifier(d domain.Detector, ocr domain.TextExtractor, p ReceiptPolicy) *ReceiptClassifier {
	if p.Keyword == "" {
		p.Keyword = DefaultReceiptPolicy().Keyword
	}
	p.Keyword = strings.ToLower(p.Keyword)
	return &ReceiptClassifier{detector: d, ocr: ocr, policy: p}
}

func (c *ReceiptClassifier) Classify(ctx context.Context, img []byte) ClassificationResult {
	detections, err := c.detector.DetectText(ctx, img)
	if err != nil {
		log.Warn().Err(err).Msg("receipt detection failed")
		return ClassificationResult{Verdict: VerdictServiceError, Reason: "detect text: " + err.Error()}
	}
	if !c.IsReceipt(detections) {
		log.Debug().Int("detections", len(detections)).Msg("there is no receipt in the image")
		return ClassificationResult{Verdict: VerdictNotAReceipt}
	}

	blocks, err := c.ocr.ExtractText(ctx, img)
	if err != nil {
		log.Warn().Err(err).Msg("ocr failed")
		return ClassificationResult{Verdict: VerdictServiceError, Reason: "extract text: " + err.Error()}
	}
	if len(blocks) == 0 || strings.TrimSpace(blocks[0]) == "" {
		return ClassificationResult{Verdict: VerdictTextUnverifiable}
	}
	return ClassificationResult{Verdict: VerdictVerified, Text: blocks[0]}
}

// IsReceipt reports whether any detection is confident receipt evidence.
func (c *ReceiptClassifier) IsReceipt(ds []domain.Detection) bool {
	return lo.ContainsBy(ds, func(d domain.Detection) bool {
		return d.Confidence >= c.policy.MinConfidence &&
			strings.Contains(strings.ToLower(d.Text), c.policy.Keyword)
	})
}

// AddressLines keeps the lines that look like addresses: those containing any
// keyword. With no keywords every line is kept.
func AddressLines(lines, keywords []string) []string {
	keywords = lo.Filter(keywords, func(k string, _ int) bool { return strings.TrimSpace(k) != "" })
	if len(keywords) == 0 {
		return lines
	}
	return lo.Filter(lines, func(l string, _ int) bool {
		return lo.ContainsBy(keywords, func(k string) bool { return strings.Contains(l, strings.TrimSpace(k)) })
	})
}
