package ocr

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

// VisionClient performs document text detection with Google Cloud Vision.
type VisionClient struct {
	svc *vision.Service
}

// NewVisionClient creates a Vision client. opts are appended after the API
// key so tests can point the client at a local endpoint.
func NewVisionClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*VisionClient, error) {
	if apiKey == "" && len(opts) == 0 {
		return nil, fmt.Errorf("%w: vision api key not set", ErrProviderUnavailable)
	}
	all := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := vision.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &VisionClient{svc: svc}, nil
}

// DetectText returns the full text annotation for an image.
func (c *VisionClient) DetectText(ctx context.Context, image []byte) (string, error) {
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []*vision.Feature{{Type: "DOCUMENT_TEXT_DETECTION"}},
		}},
	}
	resp, err := c.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("vision annotate: %w", err)
	}
	if len(resp.Responses) == 0 {
		return "", nil
	}
	r := resp.Responses[0]
	if r.Error != nil && r.Error.Message != "" {
		return "", fmt.Errorf("vision api error: %s", r.Error.Message)
	}
	if r.FullTextAnnotation == nil {
		return "", nil
	}
	return r.FullTextAnnotation.Text, nil
}

// Provider exposes the client as a general-tier OCR provider.
func (c *VisionClient) Provider() Provider {
	return Provider{Name: "vision", Try: c.DetectText}
}
