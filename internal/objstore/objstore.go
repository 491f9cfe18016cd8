// Package objstore keeps binary objects (extracted page images) on the local
// filesystem and hands out signed URLs for them.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"examrag/internal/crypto"
)

var ErrNotFound = errors.New("objstore: object not found")

// Store is an object store keyed by slash-separated paths.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	SignedURL(key string, ttl time.Duration) (string, error)
}

// URLPrefix is the path under which signed object URLs are served.
const URLPrefix = "/objects/"

// Local stores objects as files under Root.
type Local struct {
	Root   string
	signer *crypto.Signer
}

func NewLocal(root string, signer *crypto.Signer) (*Local, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create object dir: %w", err)
	}
	return &Local{Root: root, signer: signer}, nil
}

func (l *Local) file(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.Root, filepath.FromSlash(clean)), nil
}

// Put writes data under key and returns the key. The write goes through a
// temporary file so readers never see a partial object.
func (l *Local) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst, err := l.file(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("commit object: %w", err)
	}
	return key, nil
}

// Get reads the object stored under key.
func (l *Local) Get(key string) ([]byte, error) {
	src, err := l.file(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(src)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

// SignedURL returns an expiring URL path for an existing object.
func (l *Local) SignedURL(key string, ttl time.Duration) (string, error) {
	src, err := l.file(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return l.signer.Sign(URLPrefix+strings.TrimPrefix(key, "/"), ttl), nil
}

// Resolve verifies a signed URL and returns the object key it names.
func (l *Local) Resolve(signedURL string) (string, error) {
	p, err := l.signer.VerifyURL(signedURL)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(p, URLPrefix) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return strings.TrimPrefix(p, URLPrefix), nil
}

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ImageKey is where a page image of a source document is stored:
// <subject>/<file>/p<page>_<idx>.<ext>.
func ImageKey(subject, file string, page, idx int, ext string) string {
	if ext == "" {
		ext = "png"
	}
	return fmt.Sprintf("%s/%s/p%d_%d.%s", segment(subject), segment(file), page, idx, segment(ext))
}

func segment(s string) string {
	s = strings.Trim(unsafeSegment.ReplaceAllString(strings.TrimSpace(s), "_"), "._")
	if s == "" {
		return "unknown"
	}
	return s
}
