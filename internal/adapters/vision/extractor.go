package vision

import (
	"context"
	"errors"
	"fmt"
	"time"

	visionapi "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"vetreview/internal/adapters/observability"
)

type annotateFunc func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)

// Extractor runs Cloud Vision text detection. The first returned block is
// the full text of the image; the rest are individual words.
type Extractor struct {
	annotate annotateFunc
	close    func() error
	rl       *rate.Limiter
}

// New dials Vision. credentialsJSON may be empty to use application default
// credentials.
func New(ctx context.Context, credentialsJSON string, rps int) (*Extractor, error) {
	var opts []option.ClientOption
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	c, err := visionapi.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	e := newExtractor(func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		return c.BatchAnnotateImages(ctx, req)
	}, rps)
	e.close = c.Close
	return e, nil
}

func newExtractor(fn annotateFunc, rps int) *Extractor {
	if rps <= 0 {
		rps = 5
	}
	return &Extractor{annotate: fn, close: func() error { return nil }, rl: rate.NewLimiter(rate.Limit(rps), rps)}
}

func (e *Extractor) Close() error { return e.close() }

func (e *Extractor) ExtractText(ctx context.Context, img []byte) ([]string, error) {
	if err := e.rl.Wait(ctx); err != nil {
		return nil, err
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: img},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_TEXT_DETECTION}},
		}},
	}
	start := time.Now()
	resp, err := e.annotate(ctx, req)
	observability.ObserveExternal("vision", "TextDetection", observability.StatusOf(err), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("vision annotate: %w", err)
	}
	if len(resp.GetResponses()) == 0 {
		return nil, nil
	}
	r := resp.GetResponses()[0]
	if st := r.GetError(); st != nil && st.GetCode() != 0 {
		return nil, errors.New("vision: " + st.GetMessage())
	}

	out := make([]string, 0, len(r.GetTextAnnotations()))
	for _, a := range r.GetTextAnnotations() {
		out = append(out, a.GetDescription())
	}
	return out, nil
}
