// Package memory provides an in-process Store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mamadbah2/lambtrial/internal/domain/models"
	"github.com/mamadbah2/lambtrial/internal/repository"
)

// Store keeps the dataset in memory. Reads return copies.
type Store struct {
	mu   sync.RWMutex
	data models.Snapshot
}

// NewStore returns a Store seeded with snap.
func NewStore(snap models.Snapshot) *Store {
	return &Store{data: repository.Clone(snap)}
}

// Snapshot returns a copy of the dataset.
func (s *Store) Snapshot(_ context.Context) (models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return repository.Clone(s.data), nil
}

// Replace overwrites the listed collections.
func (s *Store) Replace(_ context.Context, snap models.Snapshot, collections ...repository.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap = repository.Clone(snap)
	next := s.data
	for _, c := range collections {
		switch c {
		case repository.CollectionAnimals:
			next.Animals = snap.Animals
		case repository.CollectionWeighings:
			next.Weighings = snap.Weighings
		case repository.CollectionFeed:
			next.FeedRecords = snap.FeedRecords
		case repository.CollectionIncidents:
			next.Incidents = snap.Incidents
		default:
			return fmt.Errorf("unknown collection %q", c)
		}
	}
	s.data = next
	return nil
}
