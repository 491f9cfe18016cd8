package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"examrag/internal/outcome"
)

// ========== IsMathHeavy ==========

func TestIsMathHeavy_PlainProse(t *testing.T) {
	text := "The candidate should answer all questions in the answer booklet provided"
	if IsMathHeavy(text) {
		t.Errorf("prose classified as math-heavy (count=%d)", MathSymbolCount(text))
	}
}

func TestIsMathHeavy_Empty(t *testing.T) {
	if IsMathHeavy("") {
		t.Error("empty text should not be math-heavy")
	}
}

func TestIsMathHeavy_Equation(t *testing.T) {
	if !IsMathHeavy("Solve x^2 + 3x - 4 = 0") {
		t.Error("short equation should be math-heavy")
	}
}

func TestIsMathHeavy_CountThreshold(t *testing.T) {
	// ten operators inside a long text trip the absolute count rule
	text := strings.Repeat("word ", 400) + "+ + + + + + + + + +"
	if !IsMathHeavy(text) {
		t.Errorf("expected math-heavy with count=%d", MathSymbolCount(text))
	}
}

func TestIsMathHeavy_LaTeXDoesNotPanic(t *testing.T) {
	inputs := []string{
		`\frac{a}{b} + \sqrt{x}`,
		`$$\int_0^1 x\,dx$$ and $\alpha$`,
		`\\\\ \( \) \[ \] ( [ { * + ? |`,
		`\`,
		`$`,
		`\begin{matrix} 1 & 2 \end{matrix}`,
	}
	for _, in := range inputs {
		_ = IsMathHeavy(in)
		_ = MathSymbolCount(in)
	}
}

func TestIsMathHeavy_Monotonic(t *testing.T) {
	base := []rune(strings.Repeat("a ", 200))
	prev := IsMathHeavy(string(base))
	// replace one letter at a time with an operator: length constant, count grows
	for i := 0; i < len(base); i += 2 {
		base[i] = '+'
		cur := IsMathHeavy(string(base))
		if prev && !cur {
			t.Fatalf("math-heavy flipped true->false after %d replacements", i/2+1)
		}
		prev = cur
	}
	if !prev {
		t.Error("expected math-heavy after replacing all letters with operators")
	}

	// appending symbols grows both count and length
	text := "Consider the following statement about triangles"
	prev = IsMathHeavy(text)
	for i := 0; i < 30; i++ {
		text += "="
		cur := IsMathHeavy(text)
		if prev && !cur {
			t.Fatalf("math-heavy flipped true->false after appending %d symbols", i+1)
		}
		prev = cur
	}
}

// ========== Router ==========

func static(name, text string, err error) Provider {
	return Provider{Name: name, Try: func(ctx context.Context, img []byte) (string, error) {
		return text, err
	}}
}

func counting(name, text string, calls *int) Provider {
	return Provider{Name: name, Try: func(ctx context.Context, img []byte) (string, error) {
		*calls++
		return text, nil
	}}
}

const mathText = "f(x) = 3x^2 + 2x - 1, find f'(x) and f(2) = ?"

func TestRoute_GeneralPlainText(t *testing.T) {
	mathCalls := 0
	r := NewRouter(
		[]Provider{static("general", "Answer ALL questions in this section", nil)},
		[]Provider{counting("math", "unused", &mathCalls)},
		nil, time.Second)

	out := r.Route(context.Background(), []byte("img"))
	if out.Status != outcome.Success {
		t.Fatalf("status = %v, want success", out.Status)
	}
	if out.Value.MathHeavy {
		t.Error("plain text marked math-heavy")
	}
	if mathCalls != 0 {
		t.Errorf("math provider called %d times for plain text", mathCalls)
	}
}

func TestRoute_MathHeavyPrefersMathProvider(t *testing.T) {
	r := NewRouter(
		[]Provider{static("general", mathText, nil)},
		[]Provider{static("math", "$f(x)=3x^{2}+2x-1$", nil)},
		nil, time.Second)

	out := r.Route(context.Background(), []byte("img"))
	if out.Status != outcome.Success {
		t.Fatalf("status = %v, want success", out.Status)
	}
	if out.Value.Provider != "math" || !out.Value.MathHeavy {
		t.Errorf("got provider=%q heavy=%v, want math/true", out.Value.Provider, out.Value.MathHeavy)
	}
}

func TestRoute_MathProviderEmptyFallsBackToGeneral(t *testing.T) {
	r := NewRouter(
		[]Provider{static("general", mathText, nil)},
		[]Provider{static("math", "", errors.New("boom"))},
		nil, time.Second)

	out := r.Route(context.Background(), []byte("img"))
	if out.Status != outcome.Degraded {
		t.Fatalf("status = %v, want degraded", out.Status)
	}
	if out.Value.Text != mathText || !out.Value.MathHeavy {
		t.Errorf("got %+v, want general text flagged math-heavy", out.Value)
	}
	if out.Reason == "" {
		t.Error("degraded outcome should carry a reason")
	}
}

func TestRoute_MathHeavyWithoutMathProvider(t *testing.T) {
	r := NewRouter([]Provider{static("general", mathText, nil)}, nil, nil, time.Second)
	out := r.Route(context.Background(), []byte("img"))
	if out.Status != outcome.Success || !out.Value.MathHeavy {
		t.Errorf("got %v %+v, want success math-heavy general result", out.Status, out.Value)
	}
}

func TestRoute_GeneralFailsUsesLocal(t *testing.T) {
	r := NewRouter(
		[]Provider{static("general", "", ErrProviderUnavailable)},
		nil,
		[]Provider{static("local", "Question 1 (a) Define velocity", nil)},
		time.Second)

	out := r.Route(context.Background(), []byte("img"))
	if out.Status != outcome.Degraded {
		t.Fatalf("status = %v, want degraded", out.Status)
	}
	if out.Value.Provider != "local" {
		t.Errorf("provider = %q, want local", out.Value.Provider)
	}
}

func TestRoute_AllFail(t *testing.T) {
	r := NewRouter(
		[]Provider{static("general", "", errors.New("down"))},
		[]Provider{static("math", "", errors.New("down"))},
		[]Provider{static("local", "   ", nil)},
		time.Second)

	out := r.Route(context.Background(), []byte("img"))
	if out.Status != outcome.Empty {
		t.Fatalf("status = %v, want empty", out.Status)
	}
	if out.Value.Text != "" || out.Value.MathHeavy {
		t.Errorf("empty outcome should be (\"\", false), got %+v", out.Value)
	}
}

func TestRoute_NoProviders(t *testing.T) {
	r := NewRouter(nil, nil, nil, time.Second)
	if r.Available() {
		t.Error("router with no providers reported available")
	}
	if out := r.Route(context.Background(), nil); out.Status != outcome.Empty {
		t.Errorf("status = %v, want empty", out.Status)
	}
}

func TestRoute_PanicIsContained(t *testing.T) {
	panicky := Provider{Name: "panicky", Try: func(ctx context.Context, img []byte) (string, error) {
		panic("provider bug")
	}}
	r := NewRouter([]Provider{panicky, static("backup", "Question 2", nil)}, nil, nil, time.Second)
	out := r.Route(context.Background(), []byte("img"))
	if out.Value.Provider != "backup" {
		t.Errorf("expected cascade to continue past panicking provider, got %+v", out)
	}
}

func TestRoute_TimeoutApplied(t *testing.T) {
	slow := Provider{Name: "slow", Try: func(ctx context.Context, img []byte) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	r := NewRouter([]Provider{slow}, nil, nil, 20*time.Millisecond)
	start := time.Now()
	out := r.Route(context.Background(), []byte("img"))
	if out.Status != outcome.Empty {
		t.Errorf("status = %v, want empty", out.Status)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("per-call timeout not applied")
	}
}

// ========== Mathpix ==========

func TestMathpixRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("app_id") != "id" || r.Header.Get("app_key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var opts MathpixOptions
		if err := json.Unmarshal([]byte(r.FormValue("options_json")), &opts); err != nil || opts.InlineDelimiters[0] != "$" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"text": `$\frac{1}{2}$`, "confidence": 0.97})
	}))
	defer srv.Close()

	c := NewMathpixClient("id", "key")
	c.url = srv.URL
	res, err := c.Recognize(context.Background(), []byte("png"), DefaultMathpixOptions())
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if res.Text != `$\frac{1}{2}$` || res.Confidence != 0.97 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestMathpixRecognize_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewMathpixClient("id", "key")
	c.url = srv.URL
	if _, err := c.Recognize(context.Background(), []byte("png"), DefaultMathpixOptions()); err == nil {
		t.Error("expected error on 429")
	}
}

func TestMathpixRecognize_MissingCredentials(t *testing.T) {
	c := NewMathpixClient("", "")
	_, err := c.Recognize(context.Background(), []byte("png"), DefaultMathpixOptions())
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestTesseract_NilIsUnavailable(t *testing.T) {
	var tess *Tesseract
	if _, err := tess.ImageToText(context.Background(), []byte("x")); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestTesseract_LimitIsPerInstance(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	bin := filepath.Join(t.TempDir(), "tesseract")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\necho 'x = 2'\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	busy := newTesseract(bin, 1)
	busy.sem <- struct{}{} // hold the only slot
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := busy.ImageToText(ctx, []byte("png")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("full instance: err = %v, want deadline exceeded", err)
	}

	other := newTesseract(bin, 1)
	text, err := other.ImageToText(context.Background(), []byte("png"))
	if err != nil || text != "x = 2" {
		t.Errorf("second instance = %q, %v; want its own free slot", text, err)
	}
}
