package rekognition

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

type fakeAPI struct {
	out *rekognition.DetectTextOutput
	err error
	in  *rekognition.DetectTextInput
}

func (f *fakeAPI) DetectText(ctx context.Context, in *rekognition.DetectTextInput, _ ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error) {
	f.in = in
	return f.out, f.err
}

func TestDetector_MapsDetections(t *testing.T) {
	f := &fakeAPI{out: &rekognition.DetectTextOutput{TextDetections: []types.TextDetection{
		{DetectedText: aws.String("RECEIPT"), Confidence: aws.Float32(97.5)},
		{DetectedText: aws.String("합계 33,000"), Confidence: aws.Float32(61)},
		{},
	}}}
	d := newDetector(f, 100)

	ds, err := d.DetectText(context.Background(), []byte("img"))
	if err != nil {
		t.Fatal(err)
	}
	if string(f.in.Image.Bytes) != "img" {
		t.Fatalf("image bytes not forwarded")
	}
	if len(ds) != 3 || ds[0].Text != "RECEIPT" || ds[0].Confidence != 97.5 || ds[2].Text != "" {
		t.Fatalf("unexpected detections %+v", ds)
	}
}

func TestDetector_Error(t *testing.T) {
	boom := errors.New("throttled")
	d := newDetector(&fakeAPI{err: boom}, 100)
	if _, err := d.DetectText(context.Background(), []byte("img")); !errors.Is(err, boom) {
		t.Fatalf("want wrapped error, got %v", err)
	}
}
