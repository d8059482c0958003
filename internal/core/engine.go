package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jprybylski/doipin/internal/checksum"
	"github.com/jprybylski/doipin/internal/fetcher"
	"github.com/jprybylski/doipin/internal/fsutil"
	"github.com/jprybylski/doipin/internal/logging"
)

// Exit codes returned by Check and Fetch.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

var errNoHandler = errors.New("no handler registered")

// SourcesError collects the failure of every source of a dataset, in order.
type SourcesError struct {
	Errs    []error
	unknown int
}

func (e *SourcesError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func (e *SourcesError) Unwrap() []error { return e.Errs }

func exitCode(err error) int {
	var se *SourcesError
	if errors.As(err, &se) && se.unknown == len(se.Errs) {
		return ExitUsage
	}
	return ExitFailure
}

type engine struct {
	cfg      *Config
	lock     *Lock
	lockPath string
	now      time.Time

	mu   sync.Mutex
	code int
}

func load(cfgPath, lockPath string) (*engine, int) {
	cfg, err := ReadConfig(cfgPath)
	if err != nil {
		logging.Error("config error", "path", cfgPath, "err", err)
		return nil, ExitUsage
	}
	lk, err := ReadLock(lockPath)
	if err != nil {
		logging.Error("lockfile error", "path", lockPath, "err", err)
		return nil, ExitUsage
	}
	return &engine{cfg: cfg, lock: lk, lockPath: lockPath, now: time.Now().UTC()}, ExitOK
}

// fail keeps the first non-zero code.
func (e *engine) fail(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.code == ExitOK {
		e.code = code
	}
}

func (e *engine) finish() int {
	e.lock.LastChecked = &e.now
	if err := WriteLock(e.lockPath, e.lock); err != nil {
		logging.Error("lock write error", "path", e.lockPath, "err", err)
		e.fail(ExitFailure)
	}
	return e.code
}

// Check compares every dataset with its lock item and applies the dataset's
// policy. "update" refetches stale or missing data; "log" reports and
// continues; "fail" reports and exits non-zero. Only "update" rewrites an
// existing lock item.
func Check(ctx context.Context, cfgPath, lockPath string) int {
	e, code := load(cfgPath, lockPath)
	if e == nil {
		return code
	}
	for i := range e.cfg.Datasets {
		e.check(ctx, &e.cfg.Datasets[i])
	}
	return e.finish()
}

// Fetch downloads the datasets named by ids, or all of them when ids is
// empty, up to defaults.parallel at a time.
func Fetch(ctx context.Context, cfgPath, lockPath string, ids []string) int {
	e, code := load(cfgPath, lockPath)
	if e == nil {
		return code
	}

	which := make(map[string]bool, len(ids))
	for _, id := range ids {
		which[id] = true
	}
	for _, id := range ids {
		if !e.hasDataset(id) {
			logging.Error("unknown dataset", "id", id)
			e.fail(ExitUsage)
		}
	}

	var g errgroup.Group
	g.SetLimit(e.cfg.Defaults.Parallel)
	for i := range e.cfg.Datasets {
		ds := &e.cfg.Datasets[i]
		if len(which) > 0 && !which[ds.ID] {
			continue
		}
		g.Go(func() error {
			logging.Info("fetching", "id", ds.ID, "target", ds.Target)
			if err := e.fetch(ctx, ds); err != nil {
				logging.Error("fetch failed", "id", ds.ID, "err", err)
				e.fail(exitCode(err))
				return nil
			}
			logging.Info("fetched", "id", ds.ID)
			return nil
		})
	}
	_ = g.Wait()
	return e.finish()
}

func (e *engine) hasDataset(id string) bool {
	for _, ds := range e.cfg.Datasets {
		if ds.ID == id {
			return true
		}
	}
	return false
}

func (e *engine) check(ctx context.Context, ds *Dataset) {
	policy := e.cfg.policyFor(ds)

	var fp string
	src, err := firstSource(ds, func(f fetcher.Fetcher, s fetcher.Source) error {
		var err error
		fp, err = f.Fingerprint(ctx, s)
		return err
	})
	if err != nil {
		logging.Error("fingerprint failed", "id", ds.ID, "err", err)
		e.fail(exitCode(err))
		return
	}

	local, err := e.localHash(ds.Target)
	if err != nil {
		logging.Error("local hash failed", "id", ds.ID, "err", err)
		e.fail(ExitFailure)
		return
	}

	prev := e.lock.Items[ds.ID]
	stale := prev != nil && prev.RemoteFingerprint != fp
	modified := prev != nil && local != "" && prev.LocalHash != "" &&
		prev.Algo == e.cfg.Defaults.Algo && prev.LocalHash != local
	missing := local == ""

	lockfp := "<nil>"
	if prev != nil {
		lockfp = prev.RemoteFingerprint
	}

	switch policy {
	case PolicyUpdate:
		if prev == nil || stale || modified || missing {
			logging.Info("refreshing", "id", ds.ID, "stale", stale, "modified", modified, "missing", missing)
			if err := e.fetch(ctx, ds); err != nil {
				logging.Error("fetch failed", "id", ds.ID, "err", err)
				e.fail(exitCode(err))
			}
			return
		}
		e.record(ds.ID, local, fp, src.Type)
		logging.Info("up-to-date", "id", ds.ID, "source", src.Type)

	case PolicyLog:
		switch {
		case prev == nil:
			e.record(ds.ID, local, fp, src.Type)
			logging.Info("recorded", "id", ds.ID, "source", src.Type)
		case stale:
			logging.Warn("remote changed", "id", ds.ID, "lock", lockfp, "now", fp)
		case modified:
			logging.Warn("local file modified", "id", ds.ID, "target", ds.Target)
		case missing:
			logging.Warn("target missing", "id", ds.ID, "target", ds.Target)
		default:
			prev.CheckedAt = &e.now
			logging.Info("up-to-date", "id", ds.ID, "source", src.Type)
		}

	default:
		if policy != PolicyFail {
			logging.Warn("unknown policy, treating as fail", "id", ds.ID, "policy", policy)
		}
		if prev == nil {
			e.record(ds.ID, local, fp, src.Type)
		}
		switch {
		case stale:
			logging.Error("remote changed", "id", ds.ID, "lock", lockfp, "now", fp)
			e.fail(ExitFailure)
		case modified:
			logging.Error("local file modified", "id", ds.ID, "target", ds.Target)
			e.fail(ExitFailure)
		case missing:
			logging.Error("target missing", "id", ds.ID, "target", ds.Target)
			e.fail(ExitFailure)
		default:
			e.lock.Items[ds.ID].CheckedAt = &e.now
			logging.Info("up-to-date", "id", ds.ID, "source", src.Type)
		}
	}
}

// fetch downloads ds from its first working source and records the result.
// When every source fails the lock item is marked inaccessible and otherwise
// left as it was.
func (e *engine) fetch(ctx context.Context, ds *Dataset) error {
	var fp string
	src, err := firstSource(ds, func(f fetcher.Fetcher, s fetcher.Source) error {
		if err := f.Fetch(ctx, s, ds.Target); err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		var err error
		if fp, err = f.Fingerprint(ctx, s); err != nil {
			return fmt.Errorf("fingerprint after fetch: %w", err)
		}
		return nil
	})
	if err != nil {
		e.mu.Lock()
		it := e.lock.item(ds.ID)
		it.InaccessibleAt = &e.now
		it.InaccessibleError = err.Error()
		e.mu.Unlock()
		return err
	}

	local, err := e.localHash(ds.Target)
	if err != nil {
		return err
	}
	e.record(ds.ID, local, fp, src.Type)
	return nil
}

func (e *engine) record(id, local, fp, source string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lock.Items[id] = &LockItem{
		LocalHash:         local,
		Algo:              e.cfg.Defaults.Algo,
		RemoteFingerprint: fp,
		Source:            source,
		CheckedAt:         &e.now,
	}
}

// localHash is empty when path does not exist.
func (e *engine) localHash(path string) (string, error) {
	if !fsutil.Exists(path) {
		return "", nil
	}
	return checksum.File(path, e.cfg.Defaults.Algo)
}

// firstSource runs fn against each source of ds in order and returns the
// first one for which it succeeds.
func firstSource(ds *Dataset, fn func(fetcher.Fetcher, fetcher.Source) error) (fetcher.Source, error) {
	se := &SourcesError{}
	for i, src := range ds.GetSources() {
		f, ok := fetcher.Get(src.Type)
		var err error
		if !ok {
			err = fmt.Errorf("source.type=%q (known: %s): %w", src.Type, strings.Join(fetcher.Names(), ", "), errNoHandler)
			se.unknown++
		} else if err = fn(f, src); err == nil {
			return src, nil
		}
		logging.Warn("source failed", "id", ds.ID, "source", src.Type, "index", i, "err", err)
		se.Errs = append(se.Errs, fmt.Errorf("%s: %w", src.Type, err))
	}
	return fetcher.Source{}, se
}
