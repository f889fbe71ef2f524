package performance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/lambtrial/internal/domain/models"
)

var entry = models.MustParseDate("2025-12-23")

func animal(tag string, group models.Group, initial float64, active bool) models.Animal {
	return models.Animal{ID: tag, Tag: tag, Group: group, InitialWeight: initial, EntryDate: entry, Active: active}
}

func snapshot() models.Snapshot {
	return models.Snapshot{
		Animals: []models.Animal{
			animal("A1", models.GroupA, 20, true),
			animal("A2", models.GroupA, 22, true),
			animal("A3", models.GroupA, 21, false),
			animal("B1", models.GroupB, 19, true),
		},
		Weighings: []models.Weighing{
			{Tag: "A1", Date: entry.AddDays(50), Weight: 30},
			{Tag: "A2", Date: entry.AddDays(50), Weight: 27},
			{Tag: "A3", Date: entry.AddDays(20), Weight: 10},
			{Tag: "B1", Date: entry.AddDays(50), Weight: 24},
		},
		FeedRecords: []models.FeedRecord{
			{Group: models.GroupA, Date: entry, FeedOffered: 40, FeedRefused: 5},
			{Group: models.GroupA, Date: entry.AddDays(1), FeedOffered: 40, FeedRefused: 5},
			{Group: models.GroupB, Date: entry, FeedOffered: 30, FeedRefused: 0},
		},
	}
}

func TestSummarizeActiveAnimalsOnly(t *testing.T) {
	snap := snapshot()

	s := Summarize(models.GroupA, snap.Animals, snap.Weighings, snap.FeedRecords, entry.AddDays(50))

	assert.False(t, s.NoData)
	assert.Equal(t, 2, s.Count)
	assert.InDelta(t, 21.0, s.MeanInitialWeight, 1e-9)
	assert.InDelta(t, 28.5, s.MeanCurrentWeight, 1e-9)
	assert.InDelta(t, 7.5, s.MeanGain, 1e-9)
	// (10/50*1000 + 5/50*1000) / 2
	assert.InDelta(t, 150.0, s.MeanADG, 1e-9)
	assert.InDelta(t, 50.0, s.MeanDaysOnTrial, 1e-9)
	assert.InDelta(t, 70.0, s.TotalNetFeed, 1e-9)
}

func TestSummarizeNoActiveAnimals(t *testing.T) {
	s := Summarize(models.GroupB, []models.Animal{animal("B9", models.GroupB, 20, false)}, nil, nil, entry)

	assert.True(t, s.NoData)
	assert.Equal(t, 0, s.Count)
	assert.Zero(t, s.MeanADG)
	assert.Zero(t, s.MeanCurrentWeight)
}

// Recent entries count in the divisor without adding to the ADG sum. The
// mean is understated on purpose; keep this until the reporting rule changes.
func TestSummarizeMeanADGUnderstatedByRecentEntries(t *testing.T) {
	late := animal("A9", models.GroupA, 25, true)
	late.EntryDate = entry.AddDays(50)
	animals := []models.Animal{animal("A1", models.GroupA, 20, true), late}
	weighings := []models.Weighing{{Tag: "A1", Date: entry.AddDays(50), Weight: 30}}

	s := Summarize(models.GroupA, animals, weighings, nil, entry.AddDays(50))

	assert.Equal(t, 2, s.Count)
	assert.InDelta(t, 100.0, s.MeanADG, 1e-9, "200 g/day averaged over two animals")
	assert.InDelta(t, 25.0, s.MeanDaysOnTrial, 1e-9)
}

func TestSummarizeAveragesNegativeDaysAsIs(t *testing.T) {
	future := animal("A1", models.GroupA, 20, true)
	future.EntryDate = entry.AddDays(10)

	s := Summarize(models.GroupA, []models.Animal{future}, nil, nil, entry)

	assert.InDelta(t, -10.0, s.MeanDaysOnTrial, 1e-9)
	assert.Zero(t, s.MeanADG)
}

func TestSummarizeIsIdempotent(t *testing.T) {
	snap := snapshot()
	asOf := entry.AddDays(50)

	first := SummarizeAll(snap, asOf)
	second := SummarizeAll(snap, asOf)

	assert.Equal(t, first, second)
	assert.Equal(t, ConversionTable(snap), ConversionTable(snap))
	assert.Equal(t, snapshot(), snap, "inputs must not be mutated")
}

func TestConversionIndex(t *testing.T) {
	idx, ok := ConversionIndex(150, 50)
	require.True(t, ok)
	assert.InDelta(t, 3.0, idx, 1e-9)

	_, ok = ConversionIndex(150, 0)
	assert.False(t, ok)

	_, ok = ConversionIndex(150, -2)
	assert.False(t, ok)
}

func TestConversionTable(t *testing.T) {
	rows := ConversionTable(snapshot())
	require.Len(t, rows, 2)

	a := rows[0]
	assert.Equal(t, models.GroupA, a.Group)
	assert.InDelta(t, 70.0, a.TotalNetFeed, 1e-9)
	assert.InDelta(t, 15.0, a.TotalGain, 1e-9, "inactive A3 is excluded")
	require.NotNil(t, a.Index)
	assert.InDelta(t, 70.0/15.0, *a.Index, 1e-9)

	b := rows[1]
	assert.InDelta(t, 5.0, b.TotalGain, 1e-9)
	require.NotNil(t, b.Index)
	assert.InDelta(t, 6.0, *b.Index, 1e-9)
}

func TestConversionWithoutGainHasNoIndex(t *testing.T) {
	animals := []models.Animal{animal("A1", models.GroupA, 20, true)}
	records := []models.FeedRecord{{Group: models.GroupA, Date: entry, FeedOffered: 10}}

	row := Conversion(models.GroupA, animals, nil, records)

	assert.Nil(t, row.Index)
	assert.InDelta(t, 10.0, row.TotalNetFeed, 1e-9)
}
