// Package fetcher is the plugin registry for data source handlers.
//
// Each handler package (http, file, git, command, doi) registers itself from
// an init() function; the engine looks handlers up by the "type" field of a
// dataset source. Importing a handler package for side effects is what makes
// its source type available:
//
//	import _ "github.com/jprybylski/doipin/internal/handlers/doi"
package fetcher

import (
	"context"
	"sort"
	"sync"
)

// Source is one data source entry of a dataset. Handlers read only the
// fields relevant to them.
type Source struct {
	Type string `yaml:"type"`          // handler name: http, file, git, command, doi
	URL  string `yaml:"url,omitempty"` // http/git URL, or doi:<doi>/<file>
	Path string `yaml:"path,omitempty"`
	Ref  string `yaml:"ref,omitempty"` // git branch, tag or refs/... name

	// Checksum pins the expected remote content ("md5:<hex>" etc.). Handlers
	// that know the checksum from the remote verify downloads against it.
	Checksum string `yaml:"checksum,omitempty"`

	FingerprintCmd string `yaml:"fingerprint_cmd,omitempty"`
	FetchCmd       string `yaml:"fetch_cmd,omitempty"`
}

// Fetcher is implemented by every source handler.
type Fetcher interface {
	// Name is the source type the handler serves.
	Name() string

	// Fingerprint identifies the current remote content without downloading
	// it when the source allows that (ETag, git blob SHA, published checksum).
	Fingerprint(ctx context.Context, src Source) (string, error)

	// Fetch writes the remote content to dest, replacing it atomically.
	Fetch(ctx context.Context, src Source, dest string) error
}

var (
	mu       sync.RWMutex
	fetchers = map[string]Fetcher{}
)

// Register adds f under f.Name(), replacing any handler with that name.
func Register(f Fetcher) {
	mu.Lock()
	defer mu.Unlock()
	fetchers[f.Name()] = f
}

// Get looks a handler up by source type.
func Get(kind string) (Fetcher, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := fetchers[kind]
	return f, ok
}

// Names lists the registered source types in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(fetchers))
	for name := range fetchers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
