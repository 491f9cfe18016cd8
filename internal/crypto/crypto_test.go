package crypto

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func fixedSigner(secret string, at time.Time) *Signer {
	s := NewSigner(secret)
	s.now = func() time.Time { return at }
	return s
}

// ========== Sign / VerifyURL ==========

func TestSignVerify_Roundtrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := fixedSigner("secret", now)
	signed := s.Sign("/objects/Physics/p1.pdf/p1_0.png", time.Hour)

	path, err := s.VerifyURL(signed)
	if err != nil {
		t.Fatalf("VerifyURL: %v", err)
	}
	if path != "/objects/Physics/p1.pdf/p1_0.png" {
		t.Errorf("path = %q", path)
	}
}

func TestVerifyURL_Expired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	signed := fixedSigner("secret", now).Sign("/objects/a.png", time.Minute)

	later := fixedSigner("secret", now.Add(2*time.Minute))
	if _, err := later.VerifyURL(signed); !errors.Is(err, ErrExpired) {
		t.Errorf("err = %v, want ErrExpired", err)
	}
}

func TestVerifyURL_Tampered(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := fixedSigner("secret", now)
	signed := s.Sign("/objects/a.png", time.Hour)

	tests := []struct {
		name string
		url  string
	}{
		{"other path", strings.Replace(signed, "a.png", "b.png", 1)},
		{"extended expiry", strings.Replace(signed, "expires=17", "expires=18", 1)},
		{"no signature", "/objects/a.png?expires=1700003600"},
		{"no expiry", "/objects/a.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.VerifyURL(tt.url); !errors.Is(err, ErrBadSignature) {
				t.Errorf("err = %v, want ErrBadSignature", err)
			}
		})
	}
}

func TestVerifyURL_OtherKey(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	signed := fixedSigner("one", now).Sign("/objects/a.png", time.Hour)
	if _, err := fixedSigner("two", now).VerifyURL(signed); !errors.Is(err, ErrBadSignature) {
		t.Errorf("err = %v, want ErrBadSignature", err)
	}
}

func TestNewSigner_DerivedKeyIsStable(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	signed := fixedSigner("", now).Sign("/objects/a.png", time.Hour)
	if _, err := fixedSigner("", now).VerifyURL(signed); err != nil {
		t.Errorf("derived key not stable: %v", err)
	}
}
