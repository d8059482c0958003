// Package git serves single files pinned to a ref of a remote repository.
// Remotes are mirrored into bare repositories under the user cache dir.
package git

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	gittransport "github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	xssh "golang.org/x/crypto/ssh"

	"github.com/jprybylski/doipin/internal/checksum"
	"github.com/jprybylski/doipin/internal/fetcher"
	"github.com/jprybylski/doipin/internal/fsutil"
	"github.com/jprybylski/doipin/internal/logging"
)

// EnvCacheDir overrides where mirrors are kept.
const EnvCacheDir = "DOIPIN_CACHE_DIR"

type handler struct {
	cacheDir string

	// one mirror per remote; go-git storage is not safe for concurrent fetches
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New() *handler { return NewWithCacheDir(defaultCacheDir()) }

func NewWithCacheDir(dir string) *handler {
	return &handler{cacheDir: dir, locks: make(map[string]*sync.Mutex)}
}

func (h *handler) Name() string { return "git" }

// Fingerprint is the blob hash of the file at the resolved ref.
func (h *handler) Fingerprint(ctx context.Context, src fetcher.Source) (string, error) {
	var fp string
	err := h.withBlob(ctx, src, func(f *object.File) error {
		fp = "gitblob:" + f.Hash.String()
		return nil
	})
	return fp, err
}

// Fetch copies the file at the resolved ref into dest, checking src.Checksum
// when one is pinned.
func (h *handler) Fetch(ctx context.Context, src fetcher.Source, dest string) error {
	return h.withBlob(ctx, src, func(f *object.File) error {
		r, err := f.Reader()
		if err != nil {
			return err
		}
		defer r.Close()

		if src.Checksum == "" {
			return fsutil.WriteAtomic(dest, r, nil)
		}
		v, err := checksum.NewVerifier(src.Path, src.Checksum)
		if err != nil {
			return fmt.Errorf("git: %w", err)
		}
		return fsutil.WriteAtomic(dest, io.TeeReader(r, v), v.Check)
	})
}

func (h *handler) withBlob(ctx context.Context, src fetcher.Source, fn func(*object.File) error) error {
	ref, path, err := parseSource(src)
	if err != nil {
		return err
	}

	unlock := h.lock(src.URL)
	defer unlock()

	repo, err := h.mirror(ctx, src.URL)
	if err != nil {
		return err
	}
	commit, err := resolveCommit(repo, ref)
	if err != nil {
		return err
	}
	f, err := fileAt(commit, path)
	if err != nil {
		return err
	}
	return fn(f)
}

func (h *handler) lock(remote string) func() {
	h.mu.Lock()
	l, ok := h.locks[remote]
	if !ok {
		l = &sync.Mutex{}
		h.locks[remote] = l
	}
	h.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func parseSource(src fetcher.Source) (plumbing.ReferenceName, string, error) {
	if src.URL == "" || src.Path == "" || src.Ref == "" {
		return "", "", errors.New("git: require source.url, source.ref, source.path")
	}
	ref := plumbing.ReferenceName(src.Ref)
	if !strings.HasPrefix(src.Ref, "refs/") {
		// resolveCommit falls back to the remote branch and then the tag
		ref = plumbing.NewBranchReferenceName(src.Ref)
	}
	return ref, filepath.ToSlash(src.Path), nil
}

// mirror opens or creates the bare mirror for remote and refreshes it.
// A failed refresh of an existing mirror is logged and the stale refs used.
func (h *handler) mirror(ctx context.Context, remote string) (*git.Repository, error) {
	dir := filepath.Join(h.cacheDir, "git", shortHash(remote))
	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		if repo, err = git.PlainInit(dir, true); err != nil {
			return nil, err
		}
		_, err = repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{remote}})
		if err != nil && !errors.Is(err, git.ErrRemoteExists) {
			return nil, err
		}
		if err := fetchRefs(ctx, remote, repo); err != nil {
			return nil, fmt.Errorf("git: fetch %s: %w", remote, err)
		}
		return repo, nil
	}
	if err != nil {
		return nil, err
	}
	if err := fetchRefs(ctx, remote, repo); err != nil {
		logging.Warn("git mirror refresh failed, using cached refs", "remote", remote, "err", err)
	}
	return repo, nil
}

func fetchRefs(ctx context.Context, remote string, repo *git.Repository) error {
	auth := authFor(remote)
	specs := []struct {
		spec config.RefSpec
		tags git.TagMode
	}{
		{"+refs/heads/*:refs/remotes/origin/*", git.NoTags},
		{"+refs/tags/*:refs/tags/*", git.AllTags},
	}
	for _, s := range specs {
		err := repo.FetchContext(ctx, &git.FetchOptions{
			RemoteName: "origin",
			Auth:       auth,
			RefSpecs:   []config.RefSpec{s.spec},
			Depth:      1,
			Tags:       s.tags,
			Force:      true,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return err
		}
	}
	return nil
}

func resolveCommit(repo *git.Repository, name plumbing.ReferenceName) (*object.Commit, error) {
	candidates := []plumbing.ReferenceName{name}
	if name.IsBranch() {
		short := name.Short()
		candidates = append(candidates,
			plumbing.NewRemoteReferenceName("origin", short),
			plumbing.NewTagReferenceName(short))
	}

	for _, c := range candidates {
		ref, err := repo.Reference(c, true)
		if err != nil {
			continue
		}
		hash := ref.Hash()
		if tag, err := repo.TagObject(hash); err == nil {
			hash = tag.Target
		}
		return repo.CommitObject(hash)
	}
	return nil, fmt.Errorf("git: cannot resolve ref %q", name.Short())
}

func fileAt(commit *object.Commit, path string) (*object.File, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	f, err := tree.File(path)
	if err != nil {
		return nil, fmt.Errorf("git: file %q not found at %s", path, commit.Hash)
	}
	return f, nil
}

func defaultCacheDir() string {
	if v := os.Getenv(EnvCacheDir); v != "" {
		return v
	}
	if v, err := os.UserCacheDir(); err == nil {
		return filepath.Join(v, "doipin")
	}
	return filepath.Join(os.TempDir(), "doipin")
}

func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])[:16]
}

// authFor picks credentials from the environment. HTTP(S) remotes use
// GIT_TOKEN or GIT_USERNAME/GIT_PASSWORD; SSH remotes try the agent and then
// GIT_SSH_KEY.
func authFor(remote string) gittransport.AuthMethod {
	u, _ := url.Parse(remote)

	if u != nil && (u.Scheme == "http" || u.Scheme == "https") {
		user, pass := os.Getenv("GIT_USERNAME"), os.Getenv("GIT_PASSWORD")
		if t := os.Getenv("GIT_TOKEN"); t != "" {
			user, pass = "x-access-token", t
		}
		if user == "" && pass == "" {
			return nil
		}
		return &githttp.BasicAuth{Username: user, Password: pass}
	}
	if u != nil && (u.Scheme == "" || u.Scheme == "file") && !strings.Contains(remote, "@") {
		return nil
	}

	user := "git"
	if u != nil && u.User != nil && u.User.Username() != "" {
		user = u.User.Username()
	}
	if cb, err := gitssh.NewSSHAgentAuth(user); err == nil {
		cb.HostKeyCallback = xssh.InsecureIgnoreHostKey()
		return cb
	}
	if key := os.Getenv("GIT_SSH_KEY"); key != "" {
		pk, err := gitssh.NewPublicKeysFromFile(user, key, os.Getenv("GIT_SSH_PASSPHRASE"))
		if err == nil {
			pk.HostKeyCallback = xssh.InsecureIgnoreHostKey()
			return pk
		}
	}
	return nil
}

func init() { fetcher.Register(New()) }
