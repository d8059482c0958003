package doi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/10.1234/ABC":
			http.Redirect(w, r, srv.URL+"/dataset.xhtml?persistentId=doi:10.1234/ABC", http.StatusFound)
		case "/dataset.xhtml":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := NewResolver(srv.Client())
	r.BaseURL = srv.URL + "/"

	t.Run("follows redirects", func(t *testing.T) {
		got, err := r.Resolve(ctx, "10.1234/ABC")
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/dataset.xhtml?persistentId=doi:10.1234/ABC", got)
	})

	t.Run("unknown doi", func(t *testing.T) {
		_, err := r.Resolve(ctx, "10.1234/NOPE")
		var nf *NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, http.StatusNotFound, nf.StatusCode)
		assert.Equal(t, "10.1234/NOPE", nf.DOI)
	})

	t.Run("unreachable proxy", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		r := &Resolver{Client: dead.Client(), BaseURL: dead.URL}
		_, err := r.Resolve(ctx, "10.1234/ABC")
		assert.Error(t, err)
	})
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name, in, doi, file string
		wantErr             bool
	}{
		{name: "dataverse", in: "doi:10.11588/data/TKCFEF/tiny-data.txt", doi: "10.11588/data/TKCFEF", file: "tiny-data.txt"},
		{name: "zenodo nested", in: "doi:10.5281/zenodo.7632643/pooch-v1.7.0/data/tiny-data.txt", doi: "10.5281/zenodo.7632643", file: "pooch-v1.7.0/data/tiny-data.txt"},
		{name: "double slash before file", in: "doi:10.1234//file.txt", doi: "10.1234", file: "file.txt"},
		{name: "no file", in: "doi:10.11588/data/TKCFEF/", wantErr: true},
		{name: "single segment", in: "doi:10.1234", wantErr: true},
		{name: "not a doi", in: "https://example.org/file.txt", wantErr: true},
		{name: "double slash scheme", in: "doi://10.1234/file.txt", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doi, file, err := Split(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.doi, doi)
			assert.Equal(t, tt.file, file)
		})
	}
}
