package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mamadbah2/lambtrial/internal/domain/models"
)

// BackupVersion is the format version written into backup files.
const BackupVersion = "2.0"

// ErrInvalidBackup is returned when a backup file lacks one of the datasets.
var ErrInvalidBackup = errors.New("invalid backup file")

// NewBackup wraps the dataset in the backup envelope.
func NewBackup(snap models.Snapshot, createdAt time.Time, studyEnd models.CivilDate) models.Backup {
	return models.Backup{
		Version:      BackupVersion,
		CreatedAt:    createdAt,
		StudyEndDate: studyEnd,
		Animals:      nonNil(snap.Animals),
		Weighings:    nonNil(snap.Weighings),
		FeedRecords:  nonNil(snap.FeedRecords),
		Incidents:    nonNil(snap.Incidents),
	}
}

// EncodeBackup writes the backup as indented JSON.
func EncodeBackup(w io.Writer, backup models.Backup) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(backup); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	return nil
}

type backupFile struct {
	Version     string               `json:"version"`
	Animals     *[]models.Animal     `json:"animals"`
	Weighings   *[]models.Weighing   `json:"weighings"`
	FeedRecords *[]models.FeedRecord `json:"feed"`
	Incidents   *[]models.Incident   `json:"incidents"`
}

// DecodeBackup reads a backup file. All four arrays must be present; the
// version is informational and older files are accepted.
func DecodeBackup(r io.Reader) (models.Snapshot, string, error) {
	var file backupFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return models.Snapshot{}, "", fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}

	switch {
	case file.Animals == nil:
		return models.Snapshot{}, "", fmt.Errorf("%w: missing animals", ErrInvalidBackup)
	case file.Weighings == nil:
		return models.Snapshot{}, "", fmt.Errorf("%w: missing weighings", ErrInvalidBackup)
	case file.FeedRecords == nil:
		return models.Snapshot{}, "", fmt.Errorf("%w: missing feed", ErrInvalidBackup)
	case file.Incidents == nil:
		return models.Snapshot{}, "", fmt.Errorf("%w: missing incidents", ErrInvalidBackup)
	}

	return models.Snapshot{
		Animals:     *file.Animals,
		Weighings:   *file.Weighings,
		FeedRecords: *file.FeedRecords,
		Incidents:   *file.Incidents,
	}, file.Version, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
