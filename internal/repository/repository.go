// Package repository defines the storage port of the trial dataset.
package repository

import (
	"context"

	"github.com/mamadbah2/lambtrial/internal/domain/models"
)

// Collection names one of the four persisted lists.
type Collection string

const (
	CollectionAnimals   Collection = "animals"
	CollectionWeighings Collection = "weighings"
	CollectionFeed      Collection = "feed"
	CollectionIncidents Collection = "incidents"
)

// AllCollections lists every collection in persistence order.
var AllCollections = []Collection{CollectionAnimals, CollectionWeighings, CollectionFeed, CollectionIncidents}

// Store persists the dataset collection by collection. Replace writes the
// listed collections of snap in a single atomic step; other collections are
// left untouched. Snapshot always returns non-nil slices.
type Store interface {
	Snapshot(ctx context.Context) (models.Snapshot, error)
	Replace(ctx context.Context, snap models.Snapshot, collections ...Collection) error
}

// Keys derives the storage key of each collection from a common prefix.
type Keys struct {
	Prefix string
}

// For returns the storage key of c.
func (k Keys) For(c Collection) string {
	if k.Prefix == "" {
		return string(c)
	}
	return k.Prefix + "_" + string(c)
}

// Normalize replaces nil collections with empty slices.
func Normalize(snap models.Snapshot) models.Snapshot {
	if snap.Animals == nil {
		snap.Animals = []models.Animal{}
	}
	if snap.Weighings == nil {
		snap.Weighings = []models.Weighing{}
	}
	if snap.FeedRecords == nil {
		snap.FeedRecords = []models.FeedRecord{}
	}
	if snap.Incidents == nil {
		snap.Incidents = []models.Incident{}
	}
	return snap
}

// Clone deep-copies the dataset, pointer fields included, so callers can
// mutate the result freely.
func Clone(snap models.Snapshot) models.Snapshot {
	out := models.Snapshot{
		Animals:     append([]models.Animal{}, snap.Animals...),
		Weighings:   append([]models.Weighing{}, snap.Weighings...),
		FeedRecords: append([]models.FeedRecord{}, snap.FeedRecords...),
		Incidents:   append([]models.Incident{}, snap.Incidents...),
	}
	for i := range out.Animals {
		out.Animals[i].ExitDate = clonePtr(out.Animals[i].ExitDate)
	}
	for i := range out.Weighings {
		out.Weighings[i].Week = clonePtr(out.Weighings[i].Week)
	}
	for i := range out.Incidents {
		out.Incidents[i].Medication = clonePtr(out.Incidents[i].Medication)
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
