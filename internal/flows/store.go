package flows

import (
	"sync/atomic"
)

// Store serves the current catalog and swaps it atomically on Reload.
// Calls in progress keep whatever catalog they read at turn start.
type Store struct {
	path       string
	knownTools []string
	cur        atomic.Pointer[Catalog]
}

func NewStore(path string, knownTools []string) (*Store, error) {
	s := &Store{path: path, knownTools: append([]string(nil), knownTools...)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticStore wraps an already parsed catalog; Reload is a no-op.
func NewStaticStore(c *Catalog) *Store {
	s := &Store{}
	s.cur.Store(c)
	return s
}

func (s *Store) Current() *Catalog { return s.cur.Load() }

// Reload re-reads the file. On error the previous catalog stays active.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	c, err := LoadFile(s.path, s.knownTools)
	if err != nil {
		return err
	}
	s.cur.Store(c)
	return nil
}
