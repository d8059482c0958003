// Package checksum computes and compares "<algo>:<hex>" digests.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// Default is used when a digest has no "<algo>:" prefix.
const Default = "sha256"

// Supported lists the algorithms New accepts.
var Supported = []string{"md5", "sha1", "sha256", "sha512", "blake3"}

// New returns a fresh hash for algo.
func New(algo string) (hash.Hash, error) {
	switch strings.ToLower(algo) {
	case "md5":
		return md5.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	case "blake3":
		return blake3.New(), nil
	}
	return nil, fmt.Errorf("checksum: unsupported algorithm %q", algo)
}

// Parse splits "algo:hex". A bare hex string is taken as Default.
func Parse(digest string) (algo, sum string) {
	if a, s, ok := strings.Cut(digest, ":"); ok {
		return strings.ToLower(a), s
	}
	return Default, digest
}

// Format joins algo and the hex encoding of sum.
func Format(algo string, sum []byte) string {
	return algo + ":" + hex.EncodeToString(sum)
}

// Reader hashes everything read from r.
func Reader(r io.Reader, algo string) (string, error) {
	h, err := New(algo)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File hashes the file at path and returns the bare hex digest.
func File(path, algo string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return Reader(f, algo)
}

// MismatchError reports content whose digest differs from the expected one.
type MismatchError struct {
	Name     string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Name, e.Expected, e.Actual)
}

// Verify hashes the file at path with the algorithm named in expected and
// compares the result case-insensitively.
func Verify(path, expected string) error {
	v, err := NewVerifier(path, expected)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(v, f); err != nil {
		return err
	}
	return v.Check()
}

// Verifier hashes what is written to it and compares the result with an
// expected "<algo>:<hex>" digest.
type Verifier struct {
	hash.Hash
	name     string
	algo     string
	want     string
	expected string
}

// NewVerifier fails when the algorithm named in expected is not supported.
func NewVerifier(name, expected string) (*Verifier, error) {
	algo, want := Parse(expected)
	h, err := New(algo)
	if err != nil {
		return nil, err
	}
	return &Verifier{Hash: h, name: name, algo: algo, want: want, expected: expected}, nil
}

// Check compares the digest of everything written so far.
func (v *Verifier) Check() error {
	got := hex.EncodeToString(v.Sum(nil))
	if !strings.EqualFold(got, v.want) {
		return &MismatchError{Name: v.name, Expected: v.expected, Actual: v.algo + ":" + got}
	}
	return nil
}
