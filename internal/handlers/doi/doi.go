// Package doi serves sources written as "doi:<doi>/<file>".
//
// The DOI is resolved through the DOI proxy to the archive URL, the archive
// is matched against the registered repository adapters, and the adapter's
// published checksum becomes the fingerprint. Fetch downloads through the
// adapter's download URL and verifies the checksum before replacing dest.
package doi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/jprybylski/doipin/internal/checksum"
	doiurl "github.com/jprybylski/doipin/internal/doi"
	"github.com/jprybylski/doipin/internal/fetcher"
	"github.com/jprybylski/doipin/internal/fsutil"
	"github.com/jprybylski/doipin/internal/logging"
	"github.com/jprybylski/doipin/internal/repository"

	// Adapter kinds available to Detect.
	_ "github.com/jprybylski/doipin/internal/repository/dataverse"
)

type binding struct {
	repo       repository.Repository
	archiveURL string
}

type handler struct {
	client   *http.Client
	resolver *doiurl.Resolver

	mu       sync.Mutex
	bindings map[string]binding
}

// EnvProxy overrides the DOI proxy used by New.
const EnvProxy = "DOIPIN_DOI_PROXY"

// New returns a handler using the DOI proxy named by EnvProxy, or the public
// one.
func New() *handler {
	proxy := os.Getenv(EnvProxy)
	if proxy == "" {
		proxy = doiurl.DefaultBaseURL
	}
	return NewWithClient(repository.NewClient(), proxy)
}

// NewWithClient uses client for every request and resolves DOIs against proxyURL.
func NewWithClient(client *http.Client, proxyURL string) *handler {
	r := doiurl.NewResolver(client)
	r.BaseURL = proxyURL
	return &handler{client: client, resolver: r, bindings: map[string]binding{}}
}

func (h *handler) Name() string { return "doi" }

// bind resolves and detects the repository for doi once per handler.
func (h *handler) bind(ctx context.Context, doi string) (binding, error) {
	h.mu.Lock()
	b, ok := h.bindings[doi]
	h.mu.Unlock()
	if ok {
		return b, nil
	}

	archiveURL, err := h.resolver.Resolve(ctx, doi)
	if err != nil {
		return binding{}, err
	}
	repo, err := repository.Detect(ctx, h.client, doi, archiveURL)
	if err != nil {
		return binding{}, err
	}
	logging.Debug("doi bound", "doi", doi, "archive", archiveURL, "repository", repo.Info().Name)

	b = binding{repo: repo, archiveURL: archiveURL}
	h.mu.Lock()
	h.bindings[doi] = b
	h.mu.Unlock()
	return b, nil
}

// Open returns the repository adapter bound to doi and its archive URL.
func (h *handler) Open(ctx context.Context, doi string) (repository.Repository, string, error) {
	b, err := h.bind(ctx, doi)
	if err != nil {
		return nil, "", err
	}
	return b.repo, b.archiveURL, nil
}

func (h *handler) lookup(ctx context.Context, src fetcher.Source) (b binding, name, sum string, err error) {
	if src.URL == "" {
		return binding{}, "", "", errors.New("doi: missing source.url")
	}
	doi, name, err := doiurl.Split(src.URL)
	if err != nil {
		return binding{}, "", "", err
	}
	b, err = h.bind(ctx, doi)
	if err != nil {
		return binding{}, "", "", err
	}
	if c, ok := b.repo.(repository.Checksummer); ok {
		sum, err = c.Checksum(ctx, name)
		if err != nil {
			return binding{}, "", "", err
		}
		return b, name, sum, nil
	}
	reg, err := b.repo.CreateRegistry(ctx)
	if err != nil {
		return binding{}, "", "", err
	}
	sum, ok := reg[name]
	if !ok {
		return binding{}, "", "", &repository.FileNotFoundError{Filename: name, ArchiveURL: b.archiveURL, DOI: doi}
	}
	return b, name, sum, nil
}

func (h *handler) Fingerprint(ctx context.Context, src fetcher.Source) (string, error) {
	_, _, sum, err := h.lookup(ctx, src)
	return sum, err
}

func (h *handler) Fetch(ctx context.Context, src fetcher.Source, dest string) error {
	b, name, sum, err := h.lookup(ctx, src)
	if err != nil {
		return err
	}
	if src.Checksum != "" {
		sum = src.Checksum
	}
	dl, err := b.repo.DownloadURL(ctx, name)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dl, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("doi: GET %s: %s", dl, resp.Status)
	}

	v, err := checksum.NewVerifier(name, sum)
	if err != nil {
		logging.Warn("checksum not verifiable, downloading unverified", "file", name, "checksum", sum)
		return fsutil.WriteAtomic(dest, resp.Body, nil)
	}
	return fsutil.WriteAtomic(dest, io.TeeReader(resp.Body, v), v.Check)
}

func init() {
	fetcher.Register(New())
}
