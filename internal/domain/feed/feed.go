// Package feed accounts for feed offered and refused by the trial groups.
package feed

import (
	"sort"

	"github.com/mamadbah2/lambtrial/internal/domain/models"
)

// NetIntake is the feed offered minus the feed refused. Forage is kept apart.
// Records with refused > offered yield a negative figure; entry validation
// is expected to prevent them.
func NetIntake(r models.FeedRecord) float64 {
	return r.FeedOffered - r.FeedRefused
}

// NetForage is the forage counterpart of NetIntake.
func NetForage(r models.FeedRecord) float64 {
	return r.ForageOffered - r.ForageRefused
}

// AggregateNet sums NetIntake over records.
func AggregateNet(records []models.FeedRecord) float64 {
	var total float64
	for _, r := range records {
		total += NetIntake(r)
	}
	return total
}

// AggregateForage sums NetForage over records.
func AggregateForage(records []models.FeedRecord) float64 {
	var total float64
	for _, r := range records {
		total += NetForage(r)
	}
	return total
}

// ForGroup keeps the records of one group.
func ForGroup(group models.Group, records []models.FeedRecord) []models.FeedRecord {
	out := make([]models.FeedRecord, 0, len(records))
	for _, r := range records {
		if r.Group == group {
			out = append(out, r)
		}
	}
	return out
}

// InRange keeps records dated within [from, to]. Zero bounds are open.
func InRange(records []models.FeedRecord, from, to models.CivilDate) []models.FeedRecord {
	out := make([]models.FeedRecord, 0, len(records))
	for _, r := range records {
		if !from.IsZero() && r.Date.Before(from) {
			continue
		}
		if !to.IsZero() && r.Date.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Upsert returns a new slice where rec replaces any record of the same group
// and date. The replacement goes to the end, as a fresh entry would.
func Upsert(records []models.FeedRecord, rec models.FeedRecord) (out []models.FeedRecord, replaced bool) {
	out = make([]models.FeedRecord, 0, len(records)+1)
	for _, r := range records {
		if r.Group == rec.Group && r.Date.Equal(rec.Date) {
			replaced = true
			continue
		}
		out = append(out, r)
	}
	return append(out, rec), replaced
}

// SortedByDate returns a copy of records ordered by date, oldest first.
func SortedByDate(records []models.FeedRecord) []models.FeedRecord {
	out := append([]models.FeedRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
