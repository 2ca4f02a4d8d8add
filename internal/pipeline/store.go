package pipeline

import (
	"sort"
	"sync"
	"time"

	"cinepulse/pkg/contracts/domain"
)

// Store holds one record per (domain, key). Each domain is an independent
// shard, and every write swaps in a fresh record snapshot, so readers never
// observe a torn record and a write to one key leaves other keys untouched.
type Store struct {
	shards map[Domain]*shard
	now    func() time.Time

	invalidateOnReload bool

	mu     sync.RWMutex
	closed bool
}

type shard struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithInvalidateOnReload drops cleaned, result and artifacts when raw is replaced
func WithInvalidateOnReload(enabled bool) StoreOption {
	return func(s *Store) { s.invalidateOnReload = enabled }
}

// WithClock overrides the store's time source
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		shards: make(map[Domain]*shard, len(Domains)),
		now:    time.Now,
	}
	for _, d := range Domains {
		s.shards[d] = &shard{records: make(map[string]*Record)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InvalidatesOnReload reports the reload policy
func (s *Store) InvalidatesOnReload() bool {
	return s.invalidateOnReload
}

// Get returns a snapshot of the record
func (s *Store) Get(d Domain, key string) (Record, bool) {
	sh, err := s.shard(d)
	if err != nil {
		return Record{}, false
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	rec, ok := sh.records[key]
	if !ok {
		return Record{}, false
	}
	return *rec.copyOnWrite(), true
}

// Keys returns the keys of a domain in sorted order
func (s *Store) Keys(d Domain) []string {
	sh, err := s.shard(d)
	if err != nil {
		return nil
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	keys := make([]string, 0, len(sh.records))
	for k := range sh.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PutRaw creates the record on first load or replaces its raw payload
func (s *Store) PutRaw(d Domain, key string, payload domain.Payload) (Record, error) {
	p := payload.Clone()
	return s.update(d, key, true, func(rec *Record) error {
		reload := rec.Raw != nil
		rec.Raw = &p
		rec.LoadedAt = s.now()
		if reload && s.invalidateOnReload {
			rec.Cleaned, rec.Result = nil, nil
			rec.CleanedAt, rec.ResultAt = time.Time{}, time.Time{}
			rec.Artifacts = make(map[string]Artifact)
		}
		return nil
	})
}

// PutCleaned commits the cleaned stage; raw must exist
func (s *Store) PutCleaned(d Domain, key string, c *Cleaned) (Record, error) {
	return s.update(d, key, false, func(rec *Record) error {
		if rec.Raw == nil {
			return NewPrerequisiteError(d, key, OpClean, StageRaw)
		}
		rec.Cleaned = c
		rec.CleanedAt = s.now()
		return nil
	})
}

// PutResult commits the analysis stage; cleaned must exist
func (s *Store) PutResult(d Domain, key string, r *Result) (Record, error) {
	return s.update(d, key, false, func(rec *Record) error {
		if rec.Cleaned == nil {
			return NewPrerequisiteError(d, key, d.AnalysisOp(), StageCleaned)
		}
		rec.Result = r
		rec.ResultAt = s.now()
		return nil
	})
}

// PutArtifact stores a blob under its type, replacing any previous one
func (s *Store) PutArtifact(d Domain, key string, a Artifact) (Record, error) {
	a.Data = append([]byte(nil), a.Data...)
	a.Size = len(a.Data)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	return s.update(d, key, false, func(rec *Record) error {
		rec.Artifacts[a.Type] = a
		return nil
	})
}

// GetArtifact returns a copy of the artifact of the given type
func (s *Store) GetArtifact(d Domain, key, artifactType string) (Artifact, bool) {
	sh, err := s.shard(d)
	if err != nil {
		return Artifact{}, false
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	rec, ok := sh.records[key]
	if !ok {
		return Artifact{}, false
	}
	a, ok := rec.Artifacts[artifactType]
	if !ok {
		return Artifact{}, false
	}
	a.Data = append([]byte(nil), a.Data...)
	return a, true
}

// Closed reports whether Close has been called
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close tears the store down and releases every record
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.records = make(map[string]*Record)
		sh.mu.Unlock()
	}
}

// update applies fn to a private copy of the record and swaps it in only if
// fn succeeds.
func (s *Store) update(d Domain, key string, create bool, fn func(*Record) error) (Record, error) {
	sh, err := s.shard(d)
	if err != nil {
		return Record{}, err
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()

	current, ok := sh.records[key]
	var next *Record
	switch {
	case ok:
		next = current.copyOnWrite()
	case create:
		next = &Record{Domain: d, Key: key, Artifacts: make(map[string]Artifact)}
	default:
		return Record{}, NewPrerequisiteError(d, key, "", StageRaw)
	}

	if err := fn(next); err != nil {
		return Record{}, err
	}
	next.Version++
	sh.records[key] = next
	return *next.copyOnWrite(), nil
}

func (s *Store) shard(d Domain) (*shard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	sh, ok := s.shards[d]
	if !ok {
		return nil, NewInvalidParameterError(d, "", "", "unknown domain")
	}
	return sh, nil
}
