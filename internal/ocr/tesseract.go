package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"examrag/internal/logger"
)

// Tesseract runs the local tesseract binary on single images. At most
// cap(sem) processes run at once per instance.
type Tesseract struct {
	bin      string
	tessdata string
	sem      chan struct{}
}

func newTesseract(bin string, limit int) *Tesseract {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	return &Tesseract{bin: bin, sem: make(chan struct{}, limit)}
}

// DetectTesseract looks the binary up on PATH and returns nil when it is
// missing, so the local tier is simply left empty.
func DetectTesseract() *Tesseract {
	path, err := exec.LookPath("tesseract")
	if err != nil {
		logger.Info("Tesseract OCR not found, local OCR fallback disabled")
		return nil
	}
	t := newTesseract(path, runtime.NumCPU())
	tessdata := filepath.Join(filepath.Dir(path), "tessdata")
	if _, err := os.Stat(filepath.Join(tessdata, "eng.traineddata")); err == nil {
		t.tessdata = tessdata
	}
	logger.Info("Tesseract found", "path", path)
	return t
}

// ImageToText runs `tesseract <img> stdout --psm 6` on the image bytes.
func (t *Tesseract) ImageToText(ctx context.Context, image []byte) (string, error) {
	if t == nil || t.bin == "" {
		return "", fmt.Errorf("%w: tesseract binary not found", ErrProviderUnavailable)
	}

	tmp, err := os.CreateTemp("", "examrag-ocr-*.png")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		return "", err
	}
	tmp.Close()

	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-t.sem }()

	cmd := exec.CommandContext(ctx, t.bin, tmp.Name(), "stdout", "-l", "eng", "--psm", "6")
	cmd.Env = append(os.Environ(), "OMP_THREAD_LIMIT=1")
	if t.tessdata != "" {
		cmd.Env = append(cmd.Env, "TESSDATA_PREFIX="+t.tessdata)
	}
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %v (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(out.String()), nil
}

// Provider exposes tesseract as a local-tier OCR provider.
func (t *Tesseract) Provider() Provider {
	return Provider{Name: "tesseract", Try: t.ImageToText}
}
