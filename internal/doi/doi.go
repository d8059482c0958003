// Package doi resolves Digital Object Identifiers to the URL of the archive
// hosting them and splits "doi:" source URLs into DOI and file name.
package doi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jprybylski/doipin/internal/urlparse"
)

// DefaultBaseURL is the public DOI proxy.
const DefaultBaseURL = "https://doi.org"

// NotFoundError reports a DOI the proxy (or the archive it redirects to) does not know.
type NotFoundError struct {
	DOI        string
	StatusCode int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("doi: %s cannot be resolved: %d %s", e.DOI, e.StatusCode, http.StatusText(e.StatusCode))
}

// Resolver follows the DOI proxy's redirects to the archive URL.
type Resolver struct {
	Client  *http.Client
	BaseURL string
}

// NewResolver returns a Resolver against DefaultBaseURL. A nil client gets a
// 30 second timeout.
func NewResolver(client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Resolver{Client: client, BaseURL: DefaultBaseURL}
}

// Resolve returns the URL the DOI finally redirects to.
func (r *Resolver) Resolve(ctx context.Context, doi string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(r.BaseURL, "/")+"/"+doi, nil)
	if err != nil {
		return "", fmt.Errorf("doi: %w", err)
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("doi: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 400 {
		return "", &NotFoundError{DOI: doi, StatusCode: resp.StatusCode}
	}
	return resp.Request.URL.String(), nil
}

// Split breaks "doi:<doi>/<file>" into the DOI and the file name.
func Split(raw string) (doi, filename string, err error) {
	p, err := urlparse.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if p.Protocol != "doi" {
		return "", "", fmt.Errorf("doi: %q is not a doi: URL", raw)
	}
	doi = strings.TrimSuffix(p.Netloc, "/")
	if doi == "" {
		return "", "", fmt.Errorf("doi: %q is missing the DOI before the file name", raw)
	}
	filename = strings.TrimPrefix(p.Path, "/")
	if filename == "" {
		return "", "", fmt.Errorf("doi: %q is missing a file name", raw)
	}
	return doi, filename, nil
}
