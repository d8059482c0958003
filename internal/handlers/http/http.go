// Package http serves plain HTTP(S) sources.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jprybylski/doipin/internal/checksum"
	"github.com/jprybylski/doipin/internal/fetcher"
	"github.com/jprybylski/doipin/internal/fsutil"
)

type handler struct{ client *http.Client }

func New() *handler             { return &handler{client: &http.Client{Timeout: 60 * time.Second}} }
func (h *handler) Name() string { return "http" }

// Fingerprint prefers validators from a HEAD request (ETag, then
// Last-Modified plus Content-Length) and falls back to hashing a full GET.
func (h *handler) Fingerprint(ctx context.Context, src fetcher.Source) (string, error) {
	if src.URL == "" {
		return "", errors.New("http: missing source.url")
	}
	if fp, ok := h.headFingerprint(ctx, src.URL); ok {
		return fp, nil
	}

	resp, err := h.get(ctx, src.URL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	sum, err := checksum.Reader(resp.Body, checksum.Default)
	if err != nil {
		return "", err
	}
	return checksum.Default + ":" + sum, nil
}

func (h *handler) headFingerprint(ctx context.Context, url string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", false
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return "", false
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", false
	}
	if etag := strings.TrimSpace(resp.Header.Get("ETag")); etag != "" {
		return "etag:" + etag, true
	}
	lm := resp.Header.Get("Last-Modified")
	cl := resp.Header.Get("Content-Length")
	if lm != "" || cl != "" {
		return fmt.Sprintf("lm:%s|len:%s", lm, cl), true
	}
	return "", false
}

// Fetch downloads src.URL into dest. A pinned src.Checksum is verified before
// dest is replaced.
func (h *handler) Fetch(ctx context.Context, src fetcher.Source, dest string) error {
	if src.URL == "" {
		return errors.New("http: missing source.url")
	}
	resp, err := h.get(ctx, src.URL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if src.Checksum == "" {
		return fsutil.WriteAtomic(dest, resp.Body, nil)
	}
	v, err := checksum.NewVerifier(src.URL, src.Checksum)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	return fsutil.WriteAtomic(dest, io.TeeReader(resp.Body, v), v.Check)
}

func (h *handler) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("http GET %s: %s", url, resp.Status)
	}
	return resp, nil
}

func init() {
	fetcher.Register(New())
}
