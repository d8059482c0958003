package doi

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jprybylski/doipin/internal/checksum"
	"github.com/jprybylski/doipin/internal/fetcher"
	"github.com/jprybylski/doipin/internal/repository"
)

const content = "a,b\n1,2\n"

type archive struct {
	srv      *httptest.Server
	apiHits  int32
	md5      string
	payload  string
	resolves int32
}

// newArchive serves a DOI proxy, a Dataverse dataset 10.1234/ABC with one
// file, and a non-Dataverse DOI 10.1234/OTHER, all from one server.
func newArchive(t *testing.T) *archive {
	t.Helper()
	sum := md5.Sum([]byte(content))
	a := &archive{md5: hex.EncodeToString(sum[:]), payload: content}

	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/doi/10.1234/ABC":
			atomic.AddInt32(&a.resolves, 1)
			http.Redirect(w, r, a.srv.URL+"/dataset.xhtml?persistentId=doi:10.1234/ABC", http.StatusFound)
		case "/doi/10.1234/OTHER":
			http.Redirect(w, r, a.srv.URL+"/record/42", http.StatusFound)
		case "/dataset.xhtml", "/record/42":
			w.WriteHeader(http.StatusOK)
		case "/api/datasets/:persistentId":
			atomic.AddInt32(&a.apiHits, 1)
			if r.URL.Query().Get("persistentId") != "doi:10.1234/ABC" {
				http.NotFound(w, r)
				return
			}
			fmt.Fprintf(w, `{"data":{"latestVersion":{"files":[{"dataFile":{"id":8,"filename":"notes.txt"}},{"dataFile":{"id":7,"filename":"table.csv","md5":%q}}]}}}`, a.md5)
		case "/api/access/datafile/7":
			fmt.Fprint(w, a.payload)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *archive) handler() *handler {
	return NewWithClient(a.srv.Client(), a.srv.URL+"/doi")
}

func TestHandler_Name(t *testing.T) {
	assert.Equal(t, "doi", New().Name())
	_, ok := fetcher.Get("doi")
	assert.True(t, ok)
}

func TestHandler_Fingerprint(t *testing.T) {
	ctx := context.Background()

	t.Run("published checksum", func(t *testing.T) {
		a := newArchive(t)
		h := a.handler()

		fp, err := h.Fingerprint(ctx, fetcher.Source{URL: "doi:10.1234/ABC/table.csv"})
		require.NoError(t, err)
		assert.Equal(t, "md5:"+a.md5, fp)

		_, err = h.Fingerprint(ctx, fetcher.Source{URL: "doi:10.1234/ABC/table.csv"})
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&a.apiHits), "manifest reused")
		assert.Equal(t, int32(1), atomic.LoadInt32(&a.resolves), "binding reused")
	})

	t.Run("file without checksum does not affect its siblings", func(t *testing.T) {
		a := newArchive(t)
		h := a.handler()

		_, err := h.Fingerprint(ctx, fetcher.Source{URL: "doi:10.1234/ABC/notes.txt"})
		assert.ErrorContains(t, err, "checksum")

		fp, err := h.Fingerprint(ctx, fetcher.Source{URL: "doi:10.1234/ABC/table.csv"})
		require.NoError(t, err)
		assert.Equal(t, "md5:"+a.md5, fp)
	})

	t.Run("file not in dataset", func(t *testing.T) {
		a := newArchive(t)
		_, err := a.handler().Fingerprint(ctx, fetcher.Source{URL: "doi:10.1234/ABC/missing.csv"})

		var nf *repository.FileNotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, "missing.csv", nf.Filename)
		assert.Equal(t, "10.1234/ABC", nf.DOI)
	})

	t.Run("archive is not a dataverse", func(t *testing.T) {
		a := newArchive(t)
		_, err := a.handler().Fingerprint(ctx, fetcher.Source{URL: "doi:10.1234/OTHER/table.csv"})
		assert.True(t, errors.Is(err, repository.ErrUnsupported))
	})

	t.Run("missing url", func(t *testing.T) {
		_, err := New().Fingerprint(ctx, fetcher.Source{})
		assert.Error(t, err)
	})

	t.Run("not a doi url", func(t *testing.T) {
		_, err := New().Fingerprint(ctx, fetcher.Source{URL: "https://example.org/table.csv"})
		assert.Error(t, err)
	})
}

func TestHandler_Fetch(t *testing.T) {
	ctx := context.Background()

	t.Run("downloads and verifies", func(t *testing.T) {
		a := newArchive(t)
		dest := filepath.Join(t.TempDir(), "data", "table.csv")

		require.NoError(t, a.handler().Fetch(ctx, fetcher.Source{URL: "doi:10.1234/ABC/table.csv"}, dest))
		got, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, content, string(got))
	})

	t.Run("checksum mismatch leaves no file", func(t *testing.T) {
		a := newArchive(t)
		a.payload = "tampered"
		dest := filepath.Join(t.TempDir(), "table.csv")

		err := a.handler().Fetch(ctx, fetcher.Source{URL: "doi:10.1234/ABC/table.csv"}, dest)
		var mm *checksum.MismatchError
		require.True(t, errors.As(err, &mm))
		_, statErr := os.Stat(dest)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("pinned checksum overrides published one", func(t *testing.T) {
		a := newArchive(t)
		dest := filepath.Join(t.TempDir(), "table.csv")

		err := a.handler().Fetch(ctx, fetcher.Source{URL: "doi:10.1234/ABC/table.csv", Checksum: "md5:00000000000000000000000000000000"}, dest)
		var mm *checksum.MismatchError
		assert.True(t, errors.As(err, &mm))
	})

	t.Run("unverifiable checksum still downloads", func(t *testing.T) {
		a := newArchive(t)
		dest := filepath.Join(t.TempDir(), "table.csv")

		err := a.handler().Fetch(ctx, fetcher.Source{URL: "doi:10.1234/ABC/table.csv", Checksum: "unf:UNF:6:abc=="}, dest)
		require.NoError(t, err)
		assert.FileExists(t, dest)
	})
}

func TestHandler_Open(t *testing.T) {
	a := newArchive(t)
	h := a.handler()

	repo, archiveURL, err := h.Open(context.Background(), "10.1234/ABC")
	require.NoError(t, err)
	assert.Equal(t, "Dataverse", repo.Info().Name)
	assert.Equal(t, a.srv.URL+"/dataset.xhtml?persistentId=doi:10.1234/ABC", archiveURL)

	dl, err := repo.DownloadURL(context.Background(), "table.csv")
	require.NoError(t, err)
	assert.Equal(t, a.srv.URL+"/api/access/datafile/7", dl)
}

func TestNew_ProxyFromEnv(t *testing.T) {
	t.Setenv(EnvProxy, "https://proxy.example.org")
	assert.Equal(t, "https://proxy.example.org", New().resolver.BaseURL)
}
