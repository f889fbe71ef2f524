package reporting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/lambtrial/internal/domain/calendar"
	"github.com/mamadbah2/lambtrial/internal/domain/feed"
	"github.com/mamadbah2/lambtrial/internal/domain/growth"
	"github.com/mamadbah2/lambtrial/internal/domain/models"
	"github.com/mamadbah2/lambtrial/internal/domain/performance"
	"github.com/mamadbah2/lambtrial/internal/observability"
)

// Source provides the dataset to report on.
type Source interface {
	Snapshot(ctx context.Context) (models.Snapshot, error)
}

// HistoryFilter narrows the weighing history. Zero fields match everything.
type HistoryFilter struct {
	Tag  string
	Date models.CivilDate
	Week *int
}

// Service exposes the trial reports: growth tables, group summaries,
// calendar overviews and the weekly text summary.
type Service struct {
	source   Source
	calendar *calendar.Calendar
	metrics  *observability.Metrics
	loc      *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a new reporting service instance. Dates such as "today"
// are resolved in loc (UTC when nil).
func NewService(source Source, cal *calendar.Calendar, metrics *observability.Metrics, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		source:   source,
		calendar: cal,
		metrics:  metrics,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

// Today returns the current calendar day in the service location.
func (s *Service) Today() models.CivilDate {
	return models.DateOf(s.now().In(s.loc))
}

// Calendar exposes the trial calendar used for week labels.
func (s *Service) Calendar() *calendar.Calendar {
	return s.calendar
}

func (s *Service) snapshot(ctx context.Context) (models.Snapshot, error) {
	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("load dataset: %w", err)
	}
	return snap, nil
}

// AnimalGrowth returns the growth row of every animal, grouped A then B and
// ordered by tag within a group.
func (s *Service) AnimalGrowth(ctx context.Context, asOf models.CivilDate) ([]models.AnimalGrowth, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return animalRows(snap, asOf), nil
}

func animalRows(snap models.Snapshot, asOf models.CivilDate) []models.AnimalGrowth {
	rows := make([]models.AnimalGrowth, 0, len(snap.Animals))
	for _, a := range snap.Animals {
		rows = append(rows, growth.Figures(a, snap.Weighings, asOf))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Group != rows[j].Group {
			return rows[i].Group < rows[j].Group
		}
		return rows[i].Tag < rows[j].Tag
	})
	return rows
}

// WeighingHistory lists weighings newest first with group, trial week and
// the ADG observed at each weighing. The week is the one stored with the
// weighing, or the calendar week of its date when none was stored.
func (s *Service) WeighingHistory(ctx context.Context, filter HistoryFilter) ([]models.WeighingRow, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	tag := models.NormalizeTag(filter.Tag)

	rows := make([]models.WeighingRow, 0, len(snap.Weighings))
	for _, w := range snap.Weighings {
		if tag != "" && w.Tag != tag {
			continue
		}
		if !filter.Date.IsZero() && !w.Date.Equal(filter.Date) {
			continue
		}
		week := w.Week
		if week == nil {
			week = s.calendar.WeekPtr(w.Date)
		}
		if filter.Week != nil && (week == nil || *week != *filter.Week) {
			continue
		}

		row := models.WeighingRow{Weighing: w, Group: "-", Week: week}
		if animal, ok := snap.FindAnimalByTag(w.Tag); ok {
			row.Group = string(animal.Group)
			if adg, ok := growth.AverageDailyGain(animal, w.Weight, w.Date); ok {
				row.ADG = &adg
			}
		} else {
			s.logger.Debug("weighing for unknown tag", zap.String("tag", w.Tag), zap.String("id", w.ID))
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Date.After(rows[j].Date)
	})
	return rows, nil
}

// GroupSummaries returns the summary of each group as of a date and
// refreshes the active-animal gauges.
func (s *Service) GroupSummaries(ctx context.Context, asOf models.CivilDate) ([]models.GroupSummary, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	summaries := performance.SummarizeAll(snap, asOf)
	for _, sum := range summaries {
		s.metrics.SetActiveAnimals(string(sum.Group), sum.Count)
	}
	return summaries, nil
}

// ConversionTable returns the feed conversion figure of each group.
func (s *Service) ConversionTable(ctx context.Context) ([]models.ConversionRow, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return performance.ConversionTable(snap), nil
}

// Overview returns dataset-wide counters.
func (s *Service) Overview(ctx context.Context) (models.Overview, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return models.Overview{}, err
	}

	out := models.Overview{
		TotalAnimals: len(snap.Animals),
		PerGroup:     make(map[models.Group]int, len(models.Groups)),
		Weighings:    len(snap.Weighings),
	}
	for _, g := range models.Groups {
		out.PerGroup[g] = 0
	}
	for _, a := range snap.Animals {
		out.PerGroup[a.Group]++
		if a.Active {
			out.ActiveAnimals++
		}
	}
	return out, nil
}

// WeekLabel describes the trial period containing d.
func (s *Service) WeekLabel(d models.CivilDate) string {
	week, ok := s.calendar.WeekNumber(d)
	switch {
	case !ok:
		return "Arrival"
	case week == 0:
		return "Week 0 (baseline)"
	default:
		return fmt.Sprintf("Week %d", week)
	}
}

// Day returns the calendar indicators of one day.
func (s *Service) Day(ctx context.Context, d models.CivilDate) (models.DayOverview, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return models.DayOverview{}, err
	}
	return s.dayOverview(snap, d), nil
}

// Month returns one overview per day of the month.
func (s *Service) Month(ctx context.Context, year int, month time.Month) ([]models.DayOverview, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("invalid month %d", month)
	}
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	first := models.NewDate(year, month, 1)
	days := make([]models.DayOverview, 0, 31)
	for d := first; d.Time().Month() == month; d = d.AddDays(1) {
		days = append(days, s.dayOverview(snap, d))
	}
	return days, nil
}

func (s *Service) dayOverview(snap models.Snapshot, d models.CivilDate) models.DayOverview {
	out := models.DayOverview{
		Date:    d,
		InStudy: s.calendar.InStudy(d),
		Week:    s.calendar.WeekPtr(d),
	}

	for _, w := range snap.Weighings {
		if w.Date.Equal(d) {
			out.Weighings++
		}
	}

	for _, r := range snap.FeedRecords {
		if !r.Date.Equal(d) {
			continue
		}
		switch r.Group {
		case models.GroupA:
			out.FeedGroupA = true
		case models.GroupB:
			out.FeedGroupB = true
		}
		if out.NetFeed == nil {
			out.NetFeed = make(map[models.Group]float64, len(models.Groups))
		}
		out.NetFeed[r.Group] += feed.NetIntake(r)
	}

	for _, inc := range snap.Incidents {
		if inc.Date.Equal(d) {
			out.IncidentIDs = append(out.IncidentIDs, inc.ID)
			switch {
			case inc.Kind == models.IncidentSymptom:
				out.Symptoms = true
			case inc.Kind.Deactivates():
				out.Exits = true
			}
		}
		if !calendar.TreatmentActiveOn(inc, d) {
			continue
		}
		out.Treatment = true
		day, total := calendar.TreatmentDay(inc, d)
		name := ""
		if inc.Medication != nil {
			name = inc.Medication.Name
		}
		out.Treatments = append(out.Treatments, models.TreatmentInCourse{
			Tag:        inc.Tag,
			Medication: name,
			Day:        day,
			TotalDays:  total,
		})
	}

	return out
}

// BuildTrialReport assembles the weekly report as of a date.
func (s *Service) BuildTrialReport(ctx context.Context, asOf models.CivilDate) (models.TrialReport, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return models.TrialReport{}, err
	}

	report := models.TrialReport{
		AsOf:       asOf,
		Week:       s.calendar.WeekPtr(asOf),
		Groups:     performance.SummarizeAll(snap, asOf),
		Conversion: performance.ConversionTable(snap),
		Animals:    animalRows(snap, asOf),
		CreatedAt:  s.now().UTC(),
	}
	report.Text = s.FormatReport(report)

	for _, sum := range report.Groups {
		s.metrics.SetActiveAnimals(string(sum.Group), sum.Count)
	}
	s.metrics.RecordReport(report.CreatedAt)

	return report, nil
}

// GenerateWeeklyReport returns the text summary of the trial as of today.
func (s *Service) GenerateWeeklyReport(ctx context.Context) (string, error) {
	report, err := s.BuildTrialReport(ctx, s.Today())
	if err != nil {
		return "", err
	}
	return report.Text, nil
}

// FormatReport renders a trial report as a chat-friendly text block.
func (s *Service) FormatReport(report models.TrialReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lamb trial report %s (%s)\n", report.AsOf, s.WeekLabel(report.AsOf))

	conversion := make(map[models.Group]models.ConversionRow, len(report.Conversion))
	for _, row := range report.Conversion {
		conversion[row.Group] = row
	}

	for _, sum := range report.Groups {
		b.WriteString("\n")
		if sum.NoData {
			fmt.Fprintf(&b, "%s: no active animals\n", sum.Group.Label())
			continue
		}
		fmt.Fprintf(&b, "%s: %d active\n", sum.Group.Label(), sum.Count)
		fmt.Fprintf(&b, "  Weight %.1f -> %.1f kg (gain %.1f kg)\n", sum.MeanInitialWeight, sum.MeanCurrentWeight, sum.MeanGain)
		fmt.Fprintf(&b, "  ADG %.0f g/day over %.1f days\n", sum.MeanADG, sum.MeanDaysOnTrial)

		index := "n/a"
		if row, ok := conversion[sum.Group]; ok && row.Index != nil {
			index = fmt.Sprintf("%.2f", *row.Index)
		}
		fmt.Fprintf(&b, "  Net feed %.1f kg, conversion %s\n", sum.TotalNetFeed, index)
	}

	return strings.TrimRight(b.String(), "\n")
}
