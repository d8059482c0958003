package core

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jprybylski/doipin/internal/fsutil"
)

const lockVersion = 2

type Lock struct {
	Version     int                  `yaml:"version"`
	LastChecked *time.Time           `yaml:"last_checked,omitempty"`
	Items       map[string]*LockItem `yaml:"items"`
}

// LockItem records the last accepted state of a dataset. Source is the type
// of the source that produced RemoteFingerprint.
type LockItem struct {
	LocalHash         string     `yaml:"local_hash,omitempty"`
	Algo              string     `yaml:"algo,omitempty"`
	RemoteFingerprint string     `yaml:"remote_fingerprint,omitempty"`
	Source            string     `yaml:"source,omitempty"`
	CheckedAt         *time.Time `yaml:"checked_at,omitempty"`
	InaccessibleAt    *time.Time `yaml:"inaccessible_at,omitempty"`
	InaccessibleError string     `yaml:"inaccessible_error,omitempty"`

	// version 1 lockfiles
	LegacySHA256 string `yaml:"local_sha256,omitempty"`
}

// ReadLock returns an empty lock when path does not exist.
func ReadLock(path string) (*Lock, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Lock{Version: lockVersion, Items: map[string]*LockItem{}}, nil
	}
	if err != nil {
		return nil, err
	}
	var l Lock
	if err := yaml.Unmarshal(b, &l); err != nil {
		return nil, err
	}
	if l.Items == nil {
		l.Items = map[string]*LockItem{}
	}
	for _, it := range l.Items {
		if it != nil && it.LocalHash == "" && it.LegacySHA256 != "" {
			it.LocalHash, it.Algo = it.LegacySHA256, "sha256"
		}
		if it != nil {
			it.LegacySHA256 = ""
		}
	}
	return &l, nil
}

// WriteLock replaces path atomically.
func WriteLock(path string, l *Lock) error {
	l.Version = lockVersion
	b, err := yaml.Marshal(l)
	if err != nil {
		return err
	}
	return fsutil.WriteAtomic(path, bytes.NewReader(b), nil)
}

func (l *Lock) item(id string) *LockItem {
	it := l.Items[id]
	if it == nil {
		it = &LockItem{}
		l.Items[id] = it
	}
	return it
}
