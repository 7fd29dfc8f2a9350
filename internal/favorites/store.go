// Package favorites persists the user's favorite pokemon ids.
package favorites

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/kapu/pokedex-go/internal/constants"
	"github.com/kapu/pokedex-go/internal/util"
	"github.com/kapu/pokedex-go/pkg/errors"
	"go.uber.org/zap"
)

// Store is the favorite set. Ids keep insertion order and are persisted as a
// JSON array of integers under a fixed key.
type Store struct {
	storage Storage
	key     string
	logger  *zap.Logger

	mu        sync.Mutex
	ids       []int
	listeners map[uint64]func([]int)
	nextID    uint64

	// outbox keeps published sets in commit order until drained.
	outbox   [][]int
	draining bool
}

// Open reads the persisted set. Unparsable state yields an empty set; only
// a failing storage backend is an error.
func Open(ctx context.Context, storage Storage, logger *zap.Logger) (*Store, error) {
	s := &Store{
		storage:   storage,
		key:       constants.FavoritesConfig.StorageKey,
		logger:    util.OrNop(logger),
		ids:       []int{},
		listeners: make(map[uint64]func([]int)),
	}

	data, found, err := storage.Load(ctx, s.key)
	if err != nil {
		return nil, err
	}
	if found {
		s.ids = s.decode(data)
	}
	s.logger.Debug("Favorites loaded", zap.Int("count", len(s.ids)))
	return s, nil
}

func (s *Store) decode(data []byte) []int {
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("Favorites state is corrupt, starting empty", zap.Error(err))
		return []int{}
	}
	ids := make([]int, 0, len(raw))
	for _, id := range raw {
		if id > 0 && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// List returns the favorite ids in insertion order.
func (s *Store) List() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ids)
}

func (s *Store) Contains(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.ids, id)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Toggle adds id when absent and removes it otherwise. added reports the new membership.
func (s *Store) Toggle(ctx context.Context, id int) (added bool, err error) {
	err = s.mutate(ctx, id, func(ids []int) []int {
		if i := slices.Index(ids, id); i >= 0 {
			return slices.Delete(ids, i, i+1)
		}
		added = true
		return append(ids, id)
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

func (s *Store) Add(ctx context.Context, id int) error {
	return s.mutate(ctx, id, func(ids []int) []int {
		if slices.Contains(ids, id) {
			return ids
		}
		return append(ids, id)
	})
}

func (s *Store) Remove(ctx context.Context, id int) error {
	return s.mutate(ctx, id, func(ids []int) []int {
		if i := slices.Index(ids, id); i >= 0 {
			return slices.Delete(ids, i, i+1)
		}
		return ids
	})
}

// Subscribe registers fn for every change of the set.
func (s *Store) Subscribe(fn func(ids []int)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// mutate persists the new set before publishing it, so memory never runs
// ahead of storage.
func (s *Store) mutate(ctx context.Context, id int, change func([]int) []int) error {
	if id <= 0 {
		return errors.NewValidationError("favorite id must be positive", "id", id)
	}

	s.mu.Lock()
	next := change(slices.Clone(s.ids))
	if slices.Equal(next, s.ids) {
		s.mu.Unlock()
		return nil
	}

	data, err := json.Marshal(next)
	if err != nil {
		s.mu.Unlock()
		return errors.NewStorageError("marshal failed", "save", s.key, err)
	}
	if err := s.storage.Save(ctx, s.key, data); err != nil {
		s.mu.Unlock()
		s.logger.Warn("Failed to persist favorites", zap.Int("id", id), zap.Error(err))
		return err
	}
	s.ids = next

	drain := false
	if len(s.listeners) > 0 {
		s.outbox = append(s.outbox, slices.Clone(next))
		if !s.draining {
			s.draining = true
			drain = true
		}
	}
	s.mu.Unlock()

	if drain {
		s.drain()
	}
	return nil
}

// drain publishes queued sets one at a time. Whoever queues while another
// goroutine drains leaves delivery to it, so listeners see commit order.
func (s *Store) drain() {
	for {
		s.mu.Lock()
		if len(s.outbox) == 0 {
			s.draining = false
			s.outbox = nil
			s.mu.Unlock()
			return
		}
		ids := s.outbox[0]
		s.outbox = s.outbox[1:]
		listeners := make([]func([]int), 0, len(s.listeners))
		for _, fn := range s.listeners {
			listeners = append(listeners, fn)
		}
		s.mu.Unlock()

		for _, fn := range listeners {
			fn(slices.Clone(ids))
		}
	}
}
