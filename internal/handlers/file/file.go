// Package file serves sources that are files on the local filesystem,
// typically a network mount or a sibling checkout.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jprybylski/doipin/internal/checksum"
	"github.com/jprybylski/doipin/internal/fetcher"
	"github.com/jprybylski/doipin/internal/fsutil"
)

type handler struct{ algo string }

func New() *handler             { return &handler{algo: checksum.Default} }
func (h *handler) Name() string { return "file" }

func (h *handler) Fingerprint(_ context.Context, src fetcher.Source) (string, error) {
	if src.Path == "" {
		return "", errors.New("file: missing source.path")
	}
	sum, err := checksum.File(src.Path, h.algo)
	if err != nil {
		return "", err
	}
	return h.algo + ":" + sum, nil
}

func (h *handler) Fetch(_ context.Context, src fetcher.Source, dest string) error {
	if src.Path == "" {
		return errors.New("file: missing source.path")
	}
	in, err := os.Open(src.Path)
	if err != nil {
		return err
	}
	defer in.Close()

	if src.Checksum == "" {
		return fsutil.WriteAtomic(dest, in, nil)
	}
	v, err := checksum.NewVerifier(src.Path, src.Checksum)
	if err != nil {
		return fmt.Errorf("file: %w", err)
	}
	return fsutil.WriteAtomic(dest, io.TeeReader(in, v), v.Check)
}

func init() {
	fetcher.Register(New())
}
