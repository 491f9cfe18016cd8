package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

const mathpixURL = "https://api.mathpix.com/v3/text"

// MathpixOptions controls the LaTeX rendering returned by Mathpix.
type MathpixOptions struct {
	InlineDelimiters  [2]string `json:"math_inline_delimiters"`
	DisplayDelimiters [2]string `json:"math_display_delimiters"`
	RemoveSpaces      bool      `json:"rm_spaces"`
	RemoveFonts       bool      `json:"rm_fonts"`
	Format            string    `json:"format,omitempty"`
}

// DefaultMathpixOptions emits $…$ inline and $$…$$ display math, which is
// what the equation extractor expects.
func DefaultMathpixOptions() MathpixOptions {
	return MathpixOptions{
		InlineDelimiters:  [2]string{"$", "$"},
		DisplayDelimiters: [2]string{"$$", "$$"},
		RemoveSpaces:      true,
		RemoveFonts:       true,
		Format:            "latex",
	}
}

// MathpixResult is the subset of the /v3/text response we use.
type MathpixResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

// MathpixClient calls the Mathpix text endpoint.
type MathpixClient struct {
	appID   string
	appKey  string
	url     string
	client  *http.Client
	options MathpixOptions
}

func NewMathpixClient(appID, appKey string) *MathpixClient {
	return &MathpixClient{
		appID:   appID,
		appKey:  appKey,
		url:     mathpixURL,
		client:  &http.Client{},
		options: DefaultMathpixOptions(),
	}
}

// Recognize uploads one image and returns the LaTeX-flavoured text.
func (c *MathpixClient) Recognize(ctx context.Context, image []byte, opts MathpixOptions) (*MathpixResult, error) {
	if c.appID == "" || c.appKey == "" {
		return nil, fmt.Errorf("%w: mathpix credentials not set", ErrProviderUnavailable)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(image); err != nil {
		return nil, err
	}
	optJSON, _ := json.Marshal(opts)
	if err := w.WriteField("options_json", string(optJSON)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("app_id", c.appID)
	req.Header.Set("app_key", c.appKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mathpix req error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("mathpix api error: %d - %s", resp.StatusCode, string(bodyBytes))
	}

	var result MathpixResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("mathpix json error: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("mathpix error: %s", result.Error)
	}
	return &result, nil
}

// Provider exposes the client as a math-tier OCR provider.
func (c *MathpixClient) Provider() Provider {
	return Provider{
		Name: "mathpix",
		Try: func(ctx context.Context, image []byte) (string, error) {
			res, err := c.Recognize(ctx, image, c.options)
			if err != nil {
				return "", err
			}
			return res.Text, nil
		},
	}
}
