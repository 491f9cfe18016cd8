package extractor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"examrag/internal/logger"
)

// Image is one picture taken from a document, with its OCR result.
// Data is kept in memory only; persisted rows reference Path.
type Image struct {
	Page        int    `json:"page"`
	Index       int    `json:"index"`
	Data        []byte `json:"-"`
	OCRText     string `json:"ocr_text"`
	IsMathHeavy bool   `json:"is_math_heavy"`
	Extension   string `json:"extension"`
	Path        string `json:"path,omitempty"`
}

// images below this size are rules, bullets and logos
const minImageBytes = 1024

var (
	pdfimagesName = regexp.MustCompile(`-(\d+)-(\d+)\.png$`)
	pdftoppmName  = regexp.MustCompile(`-(\d+)\.png$`)
)

// ExtractPDFImages pulls embedded images with Poppler's pdfimages. When that
// tool is missing or finds nothing (vector-only or fully scanned layouts it
// cannot split), the pages are rasterized with pdftoppm instead.
func ExtractPDFImages(ctx context.Context, pdfPath string) ([]Image, error) {
	tmpDir, err := os.MkdirTemp("", "examrag-img-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "img")

	if bin, lookErr := exec.LookPath("pdfimages"); lookErr == nil {
		if err := runTool(ctx, bin, "-png", "-p", pdfPath, prefix); err != nil {
			logger.Warn("pdfimages failed", "file", filepath.Base(pdfPath), "err", err)
		} else if images := collectImages(prefix, pdfimagesName, true); len(images) > 0 {
			return images, nil
		}
	}

	bin, lookErr := exec.LookPath("pdftoppm")
	if lookErr != nil {
		return nil, fmt.Errorf("no image extractor available (install Poppler: pdfimages/pdftoppm)")
	}
	pagePrefix := filepath.Join(tmpDir, "page")
	if err := runTool(ctx, bin, "-png", "-r", "200", pdfPath, pagePrefix); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w", err)
	}
	return collectImages(pagePrefix, pdftoppmName, false), nil
}

func runTool(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%v (stderr: %s)", err, stderr.String())
	}
	return nil
}

// collectImages reads the files written under prefix. perPage selects the
// pdfimages naming (prefix-PAGE-NUM.png); otherwise names are prefix-PAGE.png.
func collectImages(prefix string, re *regexp.Regexp, perPage bool) []Image {
	files, err := filepath.Glob(prefix + "*.png")
	if err != nil || len(files) == 0 {
		return nil
	}
	sortImageFiles(files, re)

	var images []Image
	pageCounts := make(map[int]int)
	for _, file := range files {
		m := re.FindStringSubmatch(filepath.Base(file))
		if m == nil {
			continue
		}
		page, _ := strconv.Atoi(m[1])

		data, err := os.ReadFile(file)
		if err != nil || len(data) < minImageBytes {
			continue
		}

		index := 0
		if perPage {
			index = pageCounts[page]
			pageCounts[page]++
		}
		images = append(images, Image{Page: page, Index: index, Data: data, Extension: "png"})
	}
	return images
}

// sortImageFiles orders paths by the numbers captured by re.
func sortImageFiles(files []string, re *regexp.Regexp) {
	sort.SliceStable(files, func(i, j int) bool {
		ni := extractNums(files[i], re)
		nj := extractNums(files[j], re)
		for k := 0; k < len(ni) && k < len(nj); k++ {
			if ni[k] != nj[k] {
				return ni[k] < nj[k]
			}
		}
		return len(ni) < len(nj)
	})
}

func extractNums(path string, re *regexp.Regexp) []int {
	m := re.FindStringSubmatch(filepath.Base(path))
	if len(m) < 2 {
		return nil
	}
	nums := make([]int, 0, len(m)-1)
	for _, s := range m[1:] {
		n, _ := strconv.Atoi(s)
		nums = append(nums, n)
	}
	return nums
}
