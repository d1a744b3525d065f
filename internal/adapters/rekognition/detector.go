package rekognition

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"golang.org/x/time/rate"

	"vetreview/internal/adapters/observability"
	"vetreview/internal/domain"
)

type api interface {
	DetectText(ctx context.Context, in *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

// Detector reports the text Rekognition finds in an image, with confidences.
type Detector struct {
	api api
	rl  *rate.Limiter
}

func New(cfg aws.Config, rps int) *Detector {
	return newDetector(rekognition.NewFromConfig(cfg), rps)
}

func newDetector(a api, rps int) *Detector {
	if rps <= 0 {
		rps = 5
	}
	return &Detector{api: a, rl: rate.NewLimiter(rate.Limit(rps), rps)}
}

func (d *Detector) DetectText(ctx context.Context, img []byte) ([]domain.Detection, error) {
	if err := d.rl.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := d.api.DetectText(ctx, &rekognition.DetectTextInput{Image: &types.Image{Bytes: img}})
	observability.ObserveExternal("rekognition", "DetectText", observability.StatusOf(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("rekognition detect text: %w", err)
	}

	ds := make([]domain.Detection, 0, len(out.TextDetections))
	for _, td := range out.TextDetections {
		ds = append(ds, domain.Detection{
			Text:       aws.ToString(td.DetectedText),
			Confidence: float64(aws.ToFloat32(td.Confidence)),
		})
	}
	return ds, nil
}
