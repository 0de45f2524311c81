package core

import (
	"encoding/json"
	"sort"

	"github.com/axiomesh/axiom-kit/storage"
	"github.com/pkg/errors"
)

// Store is the path-addressed key-value surface the engine runs on. Both the
// leveldb adapter and the in-memory store satisfy it.
type Store interface {
	Get(path string) ([]byte, bool)
	Put(path string, value []byte)
	Delete(path string)
	Has(path string) bool
}

// LevelStore adapts an axiom-kit storage backend (leveldb in cmd) to Store.
type LevelStore struct {
	DB storage.Storage
}

func NewLevelStore(db storage.Storage) *LevelStore {
	return &LevelStore{DB: db}
}

func (s *LevelStore) Get(path string) ([]byte, bool) {
	data := s.DB.Get([]byte(path))
	if data == nil {
		return nil, false
	}
	return data, true
}

func (s *LevelStore) Put(path string, value []byte) {
	s.DB.Put([]byte(path), value)
}

func (s *LevelStore) Delete(path string) {
	s.DB.Delete([]byte(path))
}

func (s *LevelStore) Has(path string) bool {
	return s.DB.Has([]byte(path))
}

var _ Store = (*LevelStore)(nil)

// MemStore is a map-backed Store for tests and ephemeral use.
type MemStore struct {
	data map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (s *MemStore) Get(path string) ([]byte, bool) {
	v, ok := s.data[path]
	return v, ok
}

func (s *MemStore) Put(path string, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[path] = cp
}

func (s *MemStore) Delete(path string) {
	delete(s.data, path)
}

func (s *MemStore) Has(path string) bool {
	_, ok := s.data[path]
	return ok
}

// Paths returns all stored paths, sorted. Test helper.
func (s *MemStore) Paths() []string {
	out := make([]string, 0, len(s.data))
	for p := range s.data {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

var _ Store = (*MemStore)(nil)

// staged buffers writes on top of a base Store. Nothing reaches the base
// until Commit; dropping the overlay discards every pending write, which is
// what makes create/vote calls all-or-nothing.
type staged struct {
	base    Store
	writes  map[string][]byte
	deletes map[string]struct{}
}

func newStaged(base Store) *staged {
	return &staged{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (s *staged) Get(path string) ([]byte, bool) {
	if _, ok := s.deletes[path]; ok {
		return nil, false
	}
	if v, ok := s.writes[path]; ok {
		return v, true
	}
	return s.base.Get(path)
}

func (s *staged) Put(path string, value []byte) {
	delete(s.deletes, path)
	s.writes[path] = value
}

func (s *staged) Delete(path string) {
	delete(s.writes, path)
	s.deletes[path] = struct{}{}
}

func (s *staged) Has(path string) bool {
	_, ok := s.Get(path)
	return ok
}

func (s *staged) Commit() {
	for p := range s.deletes {
		s.base.Delete(p)
	}
	for p, v := range s.writes {
		s.base.Put(p, v)
	}
}

var _ Store = (*staged)(nil)

func getJSON(s Store, path string, v any) (bool, error) {
	data, ok := s.Get(path)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, errors.Wrapf(err, "decode %s", path)
	}
	return true, nil
}

func putJSON(s Store, path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", path)
	}
	s.Put(path, data)
	return nil
}

func getUint64(s Store, path string) uint64 {
	var n uint64
	if ok, err := getJSON(s, path, &n); !ok || err != nil {
		return 0
	}
	return n
}

func putUint64(s Store, path string, n uint64) {
	data, _ := json.Marshal(n)
	s.Put(path, data)
}
