// Package repository defines data repository adapters: services that host
// datasets under a DOI and expose a file listing with checksums.
//
// Adapters register a Kind from their init() function, the same way source
// handlers register with the fetcher package. Detect walks the registered
// kinds and returns the first adapter that accepts a DOI and archive URL.
package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// DefaultTimeout bounds every request an adapter makes.
const DefaultTimeout = 30 * time.Second

// ErrUnsupported is returned by Detect when no registered kind accepts the archive.
var ErrUnsupported = errors.New("repository: no adapter accepts this archive")

// Doer is the HTTP surface adapters need. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewClient returns an *http.Client with DefaultTimeout.
func NewClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// Registry maps a filename to its checksum in "<algo>:<hex>" form.
type Registry map[string]string

// Info describes an adapter kind for selection and display.
type Info struct {
	Name         string
	Homepage     string
	IssueTracker string

	// AllowsSelfHosting is true when instances exist beyond a single public service.
	AllowsSelfHosting bool
	// FullSupport is true when all public data in the repository is reachable.
	FullSupport bool
	// InitRequiresRequests is true when Initialize performs network I/O.
	InitRequiresRequests bool
}

// Repository is one adapter bound to a DOI and its archive URL.
type Repository interface {
	Info() Info
	DownloadURL(ctx context.Context, filename string) (string, error)
	CreateRegistry(ctx context.Context) (Registry, error)
}

// Checksummer is implemented by adapters that can look up a single file's
// checksum without building the whole Registry.
type Checksummer interface {
	Checksum(ctx context.Context, filename string) (string, error)
}

// Initializer inspects archiveURL. ok is false when the archive is reachable but
// not handled by this kind; err is reserved for failures that must surface.
type Initializer func(ctx context.Context, client Doer, doi, archiveURL string) (repo Repository, ok bool, err error)

// Kind is a registered adapter type.
type Kind struct {
	Info       Info
	Initialize Initializer
}

// FileNotFoundError reports a filename absent from an archive's file list.
type FileNotFoundError struct {
	Filename   string
	ArchiveURL string
	DOI        string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("file %q not found in data archive %s (doi:%s)", e.Filename, e.ArchiveURL, e.DOI)
}

var (
	mu    sync.RWMutex
	kinds []Kind
)

// Register adds an adapter kind. A kind with the same name replaces the earlier one.
func Register(k Kind) {
	mu.Lock()
	defer mu.Unlock()
	for i := range kinds {
		if kinds[i].Info.Name == k.Info.Name {
			kinds[i] = k
			return
		}
	}
	kinds = append(kinds, k)
}

// Kinds returns the registered kinds, those that can decide without network
// access first, otherwise in registration order.
func Kinds() []Kind {
	mu.RLock()
	out := append([]Kind(nil), kinds...)
	mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return !out[i].Info.InitRequiresRequests && out[j].Info.InitRequiresRequests
	})
	return out
}

// Detect returns the first adapter that accepts doi and archiveURL.
// A transport error from any kind stops the walk.
func Detect(ctx context.Context, client Doer, doi, archiveURL string) (Repository, error) {
	for _, k := range Kinds() {
		repo, ok, err := k.Initialize(ctx, client, doi, archiveURL)
		if err != nil {
			return nil, fmt.Errorf("repository: %s: %w", k.Info.Name, err)
		}
		if ok {
			return repo, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (doi:%s)", ErrUnsupported, archiveURL, doi)
}
