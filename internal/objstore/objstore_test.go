package objstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"examrag/internal/crypto"
)

func newLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir(), crypto.NewSigner("test-key"))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l
}

// ========== Put / Get ==========

func TestPutGet(t *testing.T) {
	l := newLocal(t)
	key := ImageKey("Pure Mathematics", "2019 U1 P2.pdf", 3, 1, "png")
	if key != "Pure_Mathematics/2019_U1_P2.pdf/p3_1.png" {
		t.Fatalf("key = %q", key)
	}
	got, err := l.Put(context.Background(), key, []byte("image"))
	if err != nil || got != key {
		t.Fatalf("Put = %q, %v", got, err)
	}
	data, err := l.Get(key)
	if err != nil || string(data) != "image" {
		t.Errorf("Get = %q, %v", data, err)
	}
}

func TestPut_RejectsEscapes(t *testing.T) {
	l := newLocal(t)
	for _, key := range []string{"../outside.png", "a/../../b.png", "", "a//b.png"} {
		if _, err := l.Put(context.Background(), key, []byte("x")); err == nil {
			t.Errorf("Put(%q) should fail", key)
		}
	}
}

func TestGet_Missing(t *testing.T) {
	if _, err := newLocal(t).Get("nope.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// ========== signed URLs ==========

func TestSignedURL_Resolve(t *testing.T) {
	l := newLocal(t)
	key := "Physics/paper.pdf/p1_0.png"
	if _, err := l.Put(context.Background(), key, []byte("x")); err != nil {
		t.Fatal(err)
	}
	u, err := l.SignedURL(key, time.Hour)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	got, err := l.Resolve(u)
	if err != nil || got != key {
		t.Errorf("Resolve = %q, %v", got, err)
	}
	if _, err := l.Resolve(u + "x"); !errors.Is(err, crypto.ErrBadSignature) {
		t.Errorf("tampered url: err = %v", err)
	}
}

func TestSignedURL_MissingObject(t *testing.T) {
	if _, err := newLocal(t).SignedURL("missing.png", time.Hour); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestImageKey_Sanitizes(t *testing.T) {
	if got := ImageKey("", "../../etc/passwd", 0, 0, ""); got != "unknown/etc_passwd/p0_0.png" {
		t.Errorf("ImageKey = %q", got)
	}
}
