// Package export produces backup files and the spreadsheet copy of the
// dataset.
package export

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/lambtrial/internal/domain/feed"
	"github.com/mamadbah2/lambtrial/internal/domain/models"
	"github.com/mamadbah2/lambtrial/internal/repository/sheets"
)

const (
	weighingsSheet = "Weighings"
	feedSheet      = "Feed"
)

// ErrNothingToExport is returned when there are neither weighings nor feed
// records to export.
var ErrNothingToExport = errors.New("no weighings or feed records to export")

// ErrSheetsDisabled is returned when no spreadsheet is configured.
var ErrSheetsDisabled = errors.New("spreadsheet export is not configured")

// Source provides the dataset to export.
type Source interface {
	Snapshot(ctx context.Context) (models.Snapshot, error)
}

// SheetsResult reports how many data rows were written per sheet.
type SheetsResult struct {
	Weighings int `json:"weighings"`
	Feed      int `json:"feed"`
}

// Service builds backups and spreadsheet exports.
type Service struct {
	source   Source
	sheets   sheets.Repository
	studyEnd models.CivilDate
	logger   *zap.Logger
	now      func() time.Time
}

// NewService constructs the export service. sheetsRepo may be nil when the
// spreadsheet export is disabled.
func NewService(source Source, sheetsRepo sheets.Repository, studyEnd models.CivilDate, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source:   source,
		sheets:   sheetsRepo,
		studyEnd: studyEnd,
		logger:   logger,
		now:      time.Now,
	}
}

// Backup snapshots the dataset into the backup envelope.
func (s *Service) Backup(ctx context.Context) (models.Backup, error) {
	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		return models.Backup{}, fmt.Errorf("load dataset: %w", err)
	}
	return NewBackup(snap, s.now().UTC(), s.studyEnd), nil
}

// ExportSheets rewrites the Weighings and Feed sheets from the dataset.
func (s *Service) ExportSheets(ctx context.Context) (SheetsResult, error) {
	if s.sheets == nil {
		return SheetsResult{}, ErrSheetsDisabled
	}

	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		return SheetsResult{}, fmt.Errorf("load dataset: %w", err)
	}
	if len(snap.Weighings) == 0 && len(snap.FeedRecords) == 0 {
		return SheetsResult{}, ErrNothingToExport
	}

	weighingRows := WeighingRows(snap)
	if err := s.sheets.ReplaceSheet(ctx, weighingsSheet, weighingRows); err != nil {
		return SheetsResult{}, fmt.Errorf("export weighings: %w", err)
	}
	feedRows := FeedRows(snap.FeedRecords)
	if err := s.sheets.ReplaceSheet(ctx, feedSheet, feedRows); err != nil {
		return SheetsResult{}, fmt.Errorf("export feed: %w", err)
	}

	result := SheetsResult{Weighings: len(weighingRows) - 1, Feed: len(feedRows) - 1}
	s.logger.Info("spreadsheet export completed", zap.Int("weighings", result.Weighings), zap.Int("feed", result.Feed))
	return result, nil
}

// WeighingRows renders the weighings sheet, header first, oldest first.
func WeighingRows(snap models.Snapshot) [][]interface{} {
	weighings := append([]models.Weighing(nil), snap.Weighings...)
	sort.SliceStable(weighings, func(i, j int) bool {
		return weighings[i].Date.Before(weighings[j].Date)
	})

	rows := make([][]interface{}, 0, len(weighings)+1)
	rows = append(rows, []interface{}{"Date", "Tag", "Group", "Weight (kg)"})
	for _, w := range weighings {
		group := "-"
		if animal, ok := snap.FindAnimalByTag(w.Tag); ok {
			group = string(animal.Group)
		}
		rows = append(rows, []interface{}{w.Date.String(), w.Tag, group, w.Weight})
	}
	return rows
}

// FeedRows renders the feed sheet, header first, oldest first.
func FeedRows(records []models.FeedRecord) [][]interface{} {
	sorted := feed.SortedByDate(records)

	rows := make([][]interface{}, 0, len(sorted)+1)
	rows = append(rows, []interface{}{"Date", "Group", "Offered (kg)", "Refused (kg)", "Net (kg)"})
	for _, r := range sorted {
		rows = append(rows, []interface{}{r.Date.String(), string(r.Group), r.FeedOffered, r.FeedRefused, feed.NetIntake(r)})
	}
	return rows
}
