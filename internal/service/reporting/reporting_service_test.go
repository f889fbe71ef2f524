package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/lambtrial/internal/domain/calendar"
	"github.com/mamadbah2/lambtrial/internal/domain/models"
	"github.com/mamadbah2/lambtrial/internal/observability"
	"github.com/mamadbah2/lambtrial/internal/repository/memory"
)

func d(value string) models.CivilDate {
	return models.MustParseDate(value)
}

func testCalendar(t *testing.T) *calendar.Calendar {
	t.Helper()
	cal, err := calendar.New(calendar.Boundaries{
		Arrival:    d("2025-12-18"),
		TrialStart: d("2025-12-24"),
		WeekOne:    d("2025-12-31"),
		StudyStart: d("2025-12-23"),
		StudyEnd:   d("2026-02-04"),
	})
	require.NoError(t, err)
	return cal
}

func fixture() models.Snapshot {
	return models.Snapshot{
		Animals: []models.Animal{
			{ID: "1", Tag: "ES002", Group: models.GroupA, InitialWeight: 20, EntryDate: d("2025-12-18"), Active: true},
			{ID: "2", Tag: "ES001", Group: models.GroupA, InitialWeight: 22, EntryDate: d("2025-12-18"), Active: true},
			{ID: "3", Tag: "ES003", Group: models.GroupB, InitialWeight: 21, EntryDate: d("2025-12-18"), Active: false},
		},
		Weighings: []models.Weighing{
			{ID: "w1", Tag: "ES002", Date: d("2025-12-28"), Weight: 22},
			{ID: "w2", Tag: "ES002", Date: d("2026-01-07"), Weight: 25},
			{ID: "w3", Tag: "ES001", Date: d("2026-01-07"), Weight: 26},
			{ID: "w4", Tag: "ES999", Date: d("2025-12-20"), Weight: 18},
		},
		FeedRecords: []models.FeedRecord{
			{ID: "f1", Group: models.GroupA, Date: d("2026-01-07"), FeedOffered: 10, FeedRefused: 2},
			{ID: "f2", Group: models.GroupA, Date: d("2026-01-08"), FeedOffered: 12, FeedRefused: 1},
			{ID: "f3", Group: models.GroupB, Date: d("2026-01-07"), FeedOffered: 6, FeedRefused: 1},
		},
		Incidents: []models.Incident{
			{ID: "i1", Tag: "ES002", Date: d("2026-01-07"), Kind: models.IncidentSymptom, Description: "diarrhoea"},
			{ID: "i2", Tag: "ES002", Date: d("2026-01-07"), Kind: models.IncidentTreatment,
				Medication: &models.Medication{Name: "Kaolin", DurationDays: 3}},
			{ID: "i3", Tag: "ES003", Date: d("2026-01-09"), Kind: models.IncidentWithdrawal},
		},
	}
}

func newTestService(t *testing.T, metrics *observability.Metrics) *Service {
	t.Helper()
	svc := NewService(memory.NewStore(fixture()), testCalendar(t), metrics, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 1, 14, 18, 0, 0, 0, time.UTC) }
	return svc
}

func TestAnimalGrowthOrdersByGroupThenTag(t *testing.T) {
	svc := newTestService(t, nil)

	rows, err := svc.AnimalGrowth(context.Background(), d("2026-01-07"))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "ES001", rows[0].Tag)
	assert.Equal(t, "ES002", rows[1].Tag)
	assert.Equal(t, "ES003", rows[2].Tag)

	assert.Equal(t, 25.0, rows[1].CurrentWeight)
	assert.Equal(t, 5.0, rows[1].Gain)
	require.NotNil(t, rows[1].ADG)
	assert.Equal(t, 250, *rows[1].ADG) // 5 kg over 20 days
	assert.Equal(t, 21.0, rows[2].CurrentWeight, "no weighings falls back to the initial weight")
}

func TestWeighingHistory(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	rows, err := svc.WeighingHistory(ctx, HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, d("2026-01-07"), rows[0].Date)
	assert.Equal(t, d("2025-12-20"), rows[3].Date)

	unknown := rows[3]
	assert.Equal(t, "-", unknown.Group)
	assert.Nil(t, unknown.Week)
	assert.Nil(t, unknown.ADG)

	rows, err = svc.WeighingHistory(ctx, HistoryFilter{Tag: "es002"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].Week)
	assert.Equal(t, 2, *rows[0].Week)
	require.NotNil(t, rows[1].Week)
	assert.Equal(t, 0, *rows[1].Week)
	require.NotNil(t, rows[1].ADG)
	assert.Equal(t, 200, *rows[1].ADG) // 2 kg over 10 days

	week := 2
	rows, err = svc.WeighingHistory(ctx, HistoryFilter{Week: &week})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = svc.WeighingHistory(ctx, HistoryFilter{Date: d("2025-12-28")})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "w1", rows[0].ID)
}

func TestWeighingHistoryUsesStoredWeek(t *testing.T) {
	ctx := context.Background()
	override := 1
	snap := fixture()
	snap.Weighings = append(snap.Weighings,
		models.Weighing{ID: "w5", Tag: "ES001", Date: d("2026-01-08"), Weight: 26.5, Week: &override})
	svc := NewService(memory.NewStore(snap), testCalendar(t), nil, nil, nil)

	week := 1
	rows, err := svc.WeighingHistory(ctx, HistoryFilter{Week: &week})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "w5", rows[0].ID)
	require.NotNil(t, rows[0].Week)
	assert.Equal(t, 1, *rows[0].Week)

	week = 2
	rows, err = svc.WeighingHistory(ctx, HistoryFilter{Week: &week})
	require.NoError(t, err)
	assert.Len(t, rows, 2, "the calendar week of w5 no longer matches")
}

func TestGroupSummariesUpdateGauge(t *testing.T) {
	metrics, err := observability.NewMetrics()
	require.NoError(t, err)
	svc := newTestService(t, metrics)

	summaries, err := svc.GroupSummaries(context.Background(), d("2026-01-07"))
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	a := summaries[0]
	assert.Equal(t, 2, a.Count)
	assert.InDelta(t, 21.0, a.MeanInitialWeight, 1e-9)
	assert.InDelta(t, 25.5, a.MeanCurrentWeight, 1e-9)
	assert.InDelta(t, 19.0, a.TotalNetFeed, 1e-9)
	assert.True(t, summaries[1].NoData)

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "lambtrial_trial_active_animals" {
			continue
		}
		for _, m := range f.GetMetric() {
			values[m.GetLabel()[0].GetValue()] = m.GetGauge().GetValue()
		}
	}
	assert.Equal(t, 2.0, values["A"])
	assert.Equal(t, 0.0, values["B"])
}

func TestOverview(t *testing.T) {
	svc := newTestService(t, nil)

	out, err := svc.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, out.TotalAnimals)
	assert.Equal(t, 2, out.ActiveAnimals)
	assert.Equal(t, 2, out.PerGroup[models.GroupA])
	assert.Equal(t, 1, out.PerGroup[models.GroupB])
	assert.Equal(t, 4, out.Weighings)
}

func TestDayOverview(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	day, err := svc.Day(ctx, d("2026-01-07"))
	require.NoError(t, err)
	assert.True(t, day.InStudy)
	assert.Equal(t, 2, day.Weighings)
	assert.True(t, day.FeedGroupA)
	assert.True(t, day.FeedGroupB)
	assert.True(t, day.Symptoms)
	assert.False(t, day.Exits)
	assert.True(t, day.Treatment)
	assert.InDelta(t, 8.0, day.NetFeed[models.GroupA], 1e-9)
	assert.ElementsMatch(t, []string{"i1", "i2"}, day.IncidentIDs)
	require.Len(t, day.Treatments, 1)
	assert.Equal(t, 1, day.Treatments[0].Day)
	assert.Equal(t, 3, day.Treatments[0].TotalDays)

	day, err = svc.Day(ctx, d("2026-01-08"))
	require.NoError(t, err)
	assert.True(t, day.Treatment)
	assert.Equal(t, 2, day.Treatments[0].Day)

	// A 3-day course is no longer flagged on its third day.
	day, err = svc.Day(ctx, d("2026-01-09"))
	require.NoError(t, err)
	assert.False(t, day.Treatment)
	assert.True(t, day.Exits)

	day, err = svc.Day(ctx, d("2026-02-10"))
	require.NoError(t, err)
	assert.False(t, day.InStudy)
}

func TestMonth(t *testing.T) {
	svc := newTestService(t, nil)

	days, err := svc.Month(context.Background(), 2026, time.February)
	require.NoError(t, err)
	require.Len(t, days, 28)
	assert.Equal(t, d("2026-02-01"), days[0].Date)
	assert.True(t, days[3].InStudy)
	assert.False(t, days[4].InStudy)

	_, err = svc.Month(context.Background(), 2026, 13)
	assert.Error(t, err)
}

func TestWeekLabel(t *testing.T) {
	svc := newTestService(t, nil)
	assert.Equal(t, "Arrival", svc.WeekLabel(d("2025-12-20")))
	assert.Equal(t, "Week 0 (baseline)", svc.WeekLabel(d("2025-12-24")))
	assert.Equal(t, "Week 3", svc.WeekLabel(d("2026-01-14")))
}

func TestGenerateWeeklyReport(t *testing.T) {
	svc := newTestService(t, nil)

	text, err := svc.GenerateWeeklyReport(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "Lamb trial report 2026-01-14 (Week 3)")
	assert.Contains(t, text, "Group A (ad libitum): 2 active")
	assert.Contains(t, text, "Group B (85%): no active animals")
	assert.Contains(t, text, "Net feed 19.0 kg, conversion 2.11")
}

func TestBuildTrialReport(t *testing.T) {
	metrics, err := observability.NewMetrics()
	require.NoError(t, err)
	svc := newTestService(t, metrics)

	report, err := svc.BuildTrialReport(context.Background(), d("2026-01-14"))
	require.NoError(t, err)
	require.NotNil(t, report.Week)
	assert.Equal(t, 3, *report.Week)
	assert.Len(t, report.Groups, 2)
	assert.Len(t, report.Conversion, 2)
	assert.Len(t, report.Animals, 3)
	assert.NotEmpty(t, report.Text)
	assert.Equal(t, svc.now().UTC(), report.CreatedAt)
}
