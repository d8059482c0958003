package fetcher

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	name string
	fp   string
}

func (s *stubFetcher) Name() string { return s.name }

func (s *stubFetcher) Fingerprint(context.Context, Source) (string, error) { return s.fp, nil }

func (s *stubFetcher) Fetch(context.Context, Source, string) error { return nil }

func TestRegister(t *testing.T) {
	t.Run("register new handler", func(t *testing.T) {
		Register(&stubFetcher{name: "test-handler-unique"})

		got, ok := Get("test-handler-unique")
		require.True(t, ok)
		assert.Equal(t, "test-handler-unique", got.Name())
	})

	t.Run("register overwrites existing handler", func(t *testing.T) {
		Register(&stubFetcher{name: "overwrite-test-reg", fp: "first"})
		Register(&stubFetcher{name: "overwrite-test-reg", fp: "second"})

		got, ok := Get("overwrite-test-reg")
		require.True(t, ok)
		fp, err := got.Fingerprint(context.Background(), Source{})
		require.NoError(t, err)
		assert.Equal(t, "second", fp)
	})

	t.Run("concurrent registration", func(t *testing.T) {
		var wg sync.WaitGroup
		for _, name := range []string{"conc-a", "conc-b", "conc-c", "conc-d"} {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				Register(&stubFetcher{name: name})
				_, _ = Get(name)
			}(name)
		}
		wg.Wait()

		for _, name := range []string{"conc-a", "conc-b", "conc-c", "conc-d"} {
			_, ok := Get(name)
			assert.True(t, ok, name)
		}
	})
}

func TestGet_Unknown(t *testing.T) {
	_, ok := Get("definitely-does-not-exist-12345")
	assert.False(t, ok)
}

func TestNames(t *testing.T) {
	Register(&stubFetcher{name: "names-z"})
	Register(&stubFetcher{name: "names-a"})

	names := Names()
	assert.Contains(t, names, "names-a")
	assert.Contains(t, names, "names-z")
	assert.IsIncreasing(t, names)
}
