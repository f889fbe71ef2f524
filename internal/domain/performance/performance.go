// Package performance folds growth and feed figures into group indicators.
package performance

import (
	"github.com/mamadbah2/lambtrial/internal/domain/feed"
	"github.com/mamadbah2/lambtrial/internal/domain/growth"
	"github.com/mamadbah2/lambtrial/internal/domain/models"
)

// ActiveInGroup keeps the active animals of group.
func ActiveInGroup(group models.Group, animals []models.Animal) []models.Animal {
	out := make([]models.Animal, 0, len(animals))
	for _, a := range animals {
		if a.Group == group && a.Active {
			out = append(out, a)
		}
	}
	return out
}

// Summarize computes the group summary as of a reference date. A group with
// no active animal yields a summary with NoData set and zero figures.
//
// Means divide by the number of active animals. Animals with no elapsed days
// add nothing to the ADG sum but still count in the divisor, so MeanADG
// understates the rate while recent entries are present.
func Summarize(group models.Group, animals []models.Animal, weighings []models.Weighing, records []models.FeedRecord, asOf models.CivilDate) models.GroupSummary {
	active := ActiveInGroup(group, animals)
	if len(active) == 0 {
		return models.GroupSummary{Group: group, NoData: true}
	}

	var initialSum, currentSum, adgSum float64
	var daysSum int
	for _, a := range active {
		current := growth.LatestWeight(a, weighings)
		days := growth.DaysOnTrial(a, asOf)

		initialSum += a.InitialWeight
		currentSum += current
		daysSum += days
		if days > 0 {
			adgSum += (current - a.InitialWeight) / float64(days) * 1000
		}
	}

	n := float64(len(active))
	meanInitial := initialSum / n
	meanCurrent := currentSum / n

	return models.GroupSummary{
		Group:             group,
		Count:             len(active),
		MeanInitialWeight: meanInitial,
		MeanCurrentWeight: meanCurrent,
		MeanGain:          meanCurrent - meanInitial,
		MeanADG:           adgSum / n,
		MeanDaysOnTrial:   float64(daysSum) / n,
		TotalNetFeed:      feed.AggregateNet(feed.ForGroup(group, records)),
	}
}

// ConversionIndex is net feed per kilogram gained. ok is false when the gain
// is zero or negative.
func ConversionIndex(totalNetFeed, totalGain float64) (index float64, ok bool) {
	if totalGain <= 0 {
		return 0, false
	}
	return totalNetFeed / totalGain, true
}

// TotalGain sums the gain of the active animals of group.
func TotalGain(group models.Group, animals []models.Animal, weighings []models.Weighing) float64 {
	var total float64
	for _, a := range ActiveInGroup(group, animals) {
		total += growth.LatestWeight(a, weighings) - a.InitialWeight
	}
	return total
}

// Conversion builds the conversion row of a group. Gain covers active
// animals only while feed covers every record logged for the group, including
// days when animals that have since left were still eating.
func Conversion(group models.Group, animals []models.Animal, weighings []models.Weighing, records []models.FeedRecord) models.ConversionRow {
	row := models.ConversionRow{
		Group:        group,
		Label:        group.Label(),
		TotalNetFeed: feed.AggregateNet(feed.ForGroup(group, records)),
		TotalGain:    TotalGain(group, animals, weighings),
	}
	if idx, ok := ConversionIndex(row.TotalNetFeed, row.TotalGain); ok {
		row.Index = &idx
	}
	return row
}

// SummarizeAll returns one summary per trial group, in display order.
func SummarizeAll(snap models.Snapshot, asOf models.CivilDate) []models.GroupSummary {
	out := make([]models.GroupSummary, 0, len(models.Groups))
	for _, g := range models.Groups {
		out = append(out, Summarize(g, snap.Animals, snap.Weighings, snap.FeedRecords, asOf))
	}
	return out
}

// ConversionTable returns one conversion row per trial group.
func ConversionTable(snap models.Snapshot) []models.ConversionRow {
	out := make([]models.ConversionRow, 0, len(models.Groups))
	for _, g := range models.Groups {
		out = append(out, Conversion(g, snap.Animals, snap.Weighings, snap.FeedRecords))
	}
	return out
}
