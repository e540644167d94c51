package keymem

import (
	"context"
	"sort"
	"sync"
	"time"

	"keygate/internal/domain"
)

// Store is an in-process KeyStore. Records are kept by client id with a
// secondary identity index updated under the same lock.
type Store struct {
	mu         sync.RWMutex
	now        func() time.Time
	records    map[string]domain.KeyRecord
	byIdentity map[string]map[string]struct{}
}

func New() *Store {
	return NewWithClock(nil)
}

func NewWithClock(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:        now,
		records:    make(map[string]domain.KeyRecord),
		byIdentity: make(map[string]map[string]struct{}),
	}
}

func (s *Store) Upsert(ctx context.Context, record domain.KeyRecord) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("upsert", err)
	}
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	record.CreatedAt = now
	if existing, ok := s.records[record.ClientID]; ok {
		record.CreatedAt = existing.CreatedAt
		s.unindex(existing)
	}
	record.UpdatedAt = now
	s.records[record.ClientID] = record
	ids := s.byIdentity[record.Identity]
	if ids == nil {
		ids = make(map[string]struct{})
		s.byIdentity[record.Identity] = ids
	}
	ids[record.ClientID] = struct{}{}
	return nil
}

func (s *Store) FindByIdentity(ctx context.Context, identity string) (*domain.KeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError("find by identity", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byIdentity[identity]
	if len(ids) == 0 {
		return nil, domain.ErrNotFound
	}
	first := ""
	for id := range ids {
		if first == "" || id < first {
			first = id
		}
	}
	record := s.records[first]
	return &record, nil
}

func (s *Store) DeleteByClientID(ctx context.Context, clientID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.NewStorageError("delete", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[clientID]
	if !ok {
		return 0, nil
	}
	s.unindex(existing)
	delete(s.records, clientID)
	return 1, nil
}

func (s *Store) ListAll(ctx context.Context) ([]domain.KeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError("list", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.KeyRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) unindex(record domain.KeyRecord) {
	ids := s.byIdentity[record.Identity]
	delete(ids, record.ClientID)
	if len(ids) == 0 {
		delete(s.byIdentity, record.Identity)
	}
}

var _ domain.KeyStore = (*Store)(nil)
