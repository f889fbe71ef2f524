package export

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/lambtrial/internal/domain/models"
	"github.com/mamadbah2/lambtrial/internal/repository/memory"
)

type fakeSheets struct {
	written map[string][][]interface{}
	err     error
}

func (f *fakeSheets) ReplaceSheet(_ context.Context, sheet string, rows [][]interface{}) error {
	if f.err != nil {
		return f.err
	}
	if f.written == nil {
		f.written = map[string][][]interface{}{}
	}
	f.written[sheet] = rows
	return nil
}

func sample() models.Snapshot {
	d := models.MustParseDate
	return models.Snapshot{
		Animals: []models.Animal{{ID: "1", Tag: "ES001", Group: models.GroupB, InitialWeight: 20, EntryDate: d("2025-12-18"), Active: true}},
		Weighings: []models.Weighing{
			{ID: "w2", Tag: "ES001", Date: d("2026-01-07"), Weight: 24},
			{ID: "w1", Tag: "ES001", Date: d("2025-12-31"), Weight: 22},
			{ID: "w3", Tag: "GONE", Date: d("2026-01-08"), Weight: 19},
		},
		FeedRecords: []models.FeedRecord{
			{ID: "f2", Group: models.GroupA, Date: d("2026-01-02"), FeedOffered: 10, FeedRefused: 1.5},
			{ID: "f1", Group: models.GroupB, Date: d("2026-01-01"), FeedOffered: 8, FeedRefused: 0},
		},
	}
}

func TestBackupRoundTrip(t *testing.T) {
	svc := NewService(memory.NewStore(sample()), nil, models.MustParseDate("2026-02-04"), nil)
	svc.now = func() time.Time { return time.Date(2026, 1, 9, 10, 0, 0, 0, time.UTC) }

	backup, err := svc.Backup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackupVersion, backup.Version)
	assert.NotNil(t, backup.Incidents)

	var buf bytes.Buffer
	require.NoError(t, EncodeBackup(&buf, backup))
	assert.Contains(t, buf.String(), `"studyEndDate": "2026-02-04"`)
	assert.Contains(t, buf.String(), `"feed": [`)

	snap, version, err := DecodeBackup(&buf)
	require.NoError(t, err)
	assert.Equal(t, "2.0", version)
	assert.Len(t, snap.Weighings, 3)
	assert.Len(t, snap.FeedRecords, 2)
	assert.Empty(t, snap.Incidents)
	assert.Equal(t, "2025-12-18", snap.Animals[0].EntryDate.String())
}

func TestDecodeBackupRejectsMissingArrays(t *testing.T) {
	cases := map[string]string{
		"not json":          `{`,
		"missing incidents": `{"version":"2.0","animals":[],"weighings":[],"feed":[]}`,
		"null feed":         `{"animals":[],"weighings":[],"feed":null,"incidents":[]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeBackup(strings.NewReader(payload))
			assert.ErrorIs(t, err, ErrInvalidBackup)
		})
	}

	snap, version, err := DecodeBackup(strings.NewReader(`{"animals":[],"weighings":[],"feed":[],"incidents":[]}`))
	require.NoError(t, err)
	assert.Empty(t, version)
	assert.NotNil(t, snap.Animals)
}

func TestExportSheets(t *testing.T) {
	sheetsRepo := &fakeSheets{}
	svc := NewService(memory.NewStore(sample()), sheetsRepo, models.CivilDate{}, nil)

	result, err := svc.ExportSheets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SheetsResult{Weighings: 3, Feed: 2}, result)

	weighings := sheetsRepo.written["Weighings"]
	require.Len(t, weighings, 4)
	assert.Equal(t, []interface{}{"Date", "Tag", "Group", "Weight (kg)"}, weighings[0])
	assert.Equal(t, []interface{}{"2025-12-31", "ES001", "B", 22.0}, weighings[1])
	assert.Equal(t, "-", weighings[3][2])

	feedRows := sheetsRepo.written["Feed"]
	require.Len(t, feedRows, 3)
	assert.Equal(t, "2026-01-01", feedRows[1][0])
	assert.Equal(t, 8.5, feedRows[2][4])
}

func TestExportSheetsEdgeCases(t *testing.T) {
	ctx := context.Background()

	_, err := NewService(memory.NewStore(models.Snapshot{}), &fakeSheets{}, models.CivilDate{}, nil).ExportSheets(ctx)
	assert.ErrorIs(t, err, ErrNothingToExport)

	_, err = NewService(memory.NewStore(sample()), nil, models.CivilDate{}, nil).ExportSheets(ctx)
	assert.ErrorIs(t, err, ErrSheetsDisabled)

	boom := errors.New("quota exceeded")
	_, err = NewService(memory.NewStore(sample()), &fakeSheets{err: boom}, models.CivilDate{}, nil).ExportSheets(ctx)
	assert.ErrorIs(t, err, boom)
}
