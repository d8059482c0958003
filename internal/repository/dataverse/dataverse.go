// Package dataverse resolves files of datasets hosted on Dataverse instances.
//
// Dataverse is self-hosted by many institutions, so there is no fixed host to
// match on. Initialize asks the archive's host for the dataset by DOI; any
// 4xx/5xx answer means "not a Dataverse dataset" and the next adapter kind can
// be tried. The lookup response is the dataset listing itself and is kept as
// the cached manifest.
package dataverse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/jprybylski/doipin/internal/logging"
	"github.com/jprybylski/doipin/internal/repository"
	"github.com/jprybylski/doipin/internal/urlparse"
)

var info = repository.Info{
	Name:                 "Dataverse",
	Homepage:             "https://dataverse.org/",
	IssueTracker:         "https://github.com/jprybylski/doipin/issues",
	AllowsSelfHosting:    true,
	FullSupport:          true,
	InitRequiresRequests: true,
}

// StatusError reports a non-success answer to a manifest request made after
// the adapter was bound.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dataverse: GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Repository is a Dataverse dataset bound to a DOI and archive URL.
type Repository struct {
	doi        string
	archiveURL string
	client     repository.Doer

	mu       sync.Mutex
	manifest *Manifest
	fill     singleflight.Group
}

var (
	_ repository.Repository  = (*Repository)(nil)
	_ repository.Checksummer = (*Repository)(nil)
)

// New binds doi and archiveURL without probing. A nil client uses
// repository.NewClient.
func New(client repository.Doer, doi, archiveURL string) *Repository {
	if client == nil {
		client = repository.NewClient()
	}
	return &Repository{doi: doi, archiveURL: archiveURL, client: client}
}

// Initialize queries the archive's host for the dataset. ok is false when the
// host answers with a 4xx or 5xx status. Transport failures are returned.
func Initialize(ctx context.Context, client repository.Doer, doi, archiveURL string) (*Repository, bool, error) {
	repo := New(client, doi, archiveURL)
	endpoint, err := repo.datasetURL()
	if err != nil {
		return nil, false, err
	}

	resp, err := repo.get(ctx, endpoint)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	logging.Debug("dataverse lookup", "url", endpoint, "status", resp.StatusCode)
	if resp.StatusCode >= 400 && resp.StatusCode < 600 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, false, nil
	}

	m, err := decodeManifest(resp.Body)
	if err != nil {
		return nil, false, err
	}
	repo.SetManifest(m)
	return repo, true, nil
}

func init() {
	repository.Register(repository.Kind{
		Info: info,
		Initialize: func(ctx context.Context, client repository.Doer, doi, archiveURL string) (repository.Repository, bool, error) {
			repo, ok, err := Initialize(ctx, client, doi, archiveURL)
			if !ok {
				return nil, false, err
			}
			return repo, true, nil
		},
	})
}

func (r *Repository) Info() repository.Info { return info }
func (r *Repository) DOI() string           { return r.doi }
func (r *Repository) ArchiveURL() string    { return r.archiveURL }

// SetManifest replaces the cached manifest.
func (r *Repository) SetManifest(m *Manifest) {
	r.mu.Lock()
	r.manifest = m
	r.mu.Unlock()
}

func (r *Repository) cached() *Manifest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manifest
}

// Manifest returns the cached manifest, fetching it on first use.
// Concurrent first calls share one request. The shared request does not
// inherit any caller's cancellation; each caller stops waiting when its own
// ctx is done.
func (r *Repository) Manifest(ctx context.Context) (*Manifest, error) {
	if m := r.cached(); m != nil {
		return m, nil
	}
	ch := r.fill.DoChan("manifest", func() (interface{}, error) {
		if m := r.cached(); m != nil {
			return m, nil
		}
		m, err := r.fetchManifest(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		r.SetManifest(m)
		return m, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Manifest), nil
	}
}

// DownloadURL returns the access URL of filename in the dataset.
func (r *Repository) DownloadURL(ctx context.Context, filename string) (string, error) {
	parsed, err := urlparse.Parse(r.archiveURL)
	if err != nil {
		return "", err
	}
	m, err := r.Manifest(ctx)
	if err != nil {
		return "", err
	}
	f, ok := m.byFilename()[filename]
	if !ok {
		return "", &repository.FileNotFoundError{Filename: filename, ArchiveURL: r.archiveURL, DOI: r.doi}
	}
	return fmt.Sprintf("%s://%s/api/access/datafile/%d", parsed.Protocol, parsed.Netloc, f.ID), nil
}

// CreateRegistry maps every filename in the dataset to its checksum.
func (r *Repository) CreateRegistry(ctx context.Context) (repository.Registry, error) {
	m, err := r.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	reg := make(repository.Registry, len(m.Files))
	for i, f := range m.Files {
		if f.Checksum == "" {
			return nil, &ParseError{Field: fmt.Sprintf("data.latestVersion.files[%d].dataFile.checksum", i)}
		}
		reg[f.Filename] = f.Checksum
	}
	return reg, nil
}

// Checksum returns the checksum of one file. Unlike CreateRegistry it does
// not fail because some other file in the dataset lacks a checksum.
func (r *Repository) Checksum(ctx context.Context, filename string) (string, error) {
	m, err := r.Manifest(ctx)
	if err != nil {
		return "", err
	}
	for i := len(m.Files) - 1; i >= 0; i-- {
		f := m.Files[i]
		if f.Filename != filename {
			continue
		}
		if f.Checksum == "" {
			return "", &ParseError{Field: fmt.Sprintf("data.latestVersion.files[%d].dataFile.checksum", i)}
		}
		return f.Checksum, nil
	}
	return "", &repository.FileNotFoundError{Filename: filename, ArchiveURL: r.archiveURL, DOI: r.doi}
}

func (r *Repository) datasetURL() (string, error) {
	parsed, err := urlparse.Parse(r.archiveURL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s://%s/api/datasets/:persistentId?persistentId=doi:%s",
		parsed.Protocol, parsed.Netloc, r.doi), nil
}

func (r *Repository) get(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dataverse: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dataverse: %w", err)
	}
	return resp, nil
}

func (r *Repository) fetchManifest(ctx context.Context) (*Manifest, error) {
	endpoint, err := r.datasetURL()
	if err != nil {
		return nil, err
	}
	resp, err := r.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	logging.Debug("dataverse manifest", "url", endpoint, "status", resp.StatusCode)
	if resp.StatusCode >= 400 {
		return nil, &StatusError{URL: endpoint, StatusCode: resp.StatusCode}
	}
	return decodeManifest(resp.Body)
}
