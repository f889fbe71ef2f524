// Package records implements data capture for the trial: animals, weighings,
// feed records and incidents.
package records

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/lambtrial/internal/domain/calendar"
	"github.com/mamadbah2/lambtrial/internal/domain/feed"
	"github.com/mamadbah2/lambtrial/internal/domain/growth"
	"github.com/mamadbah2/lambtrial/internal/domain/incidents"
	"github.com/mamadbah2/lambtrial/internal/domain/models"
	"github.com/mamadbah2/lambtrial/internal/repository"
)

const maxWeightKg = 100

var (
	// ErrAnimalNotFound is returned when no animal matches the id or tag.
	ErrAnimalNotFound = errors.New("animal not found")
	// ErrDuplicateTag is returned when the tag is already registered.
	ErrDuplicateTag = errors.New("tag already registered")
	// ErrInvalidWeight is returned for weights outside (0, 100] kg.
	ErrInvalidWeight = errors.New("weight must be greater than 0 and at most 100 kg")
	// ErrRefusedExceedsOffered is returned when more feed is refused than offered.
	ErrRefusedExceedsOffered = errors.New("refused amount exceeds offered amount")
	// ErrConfirmationRequired is returned when a weighing drops more than 10%
	// and the caller has not confirmed it.
	ErrConfirmationRequired = errors.New("abnormal weight loss requires confirmation")
	// ErrWeighingNotFound is returned when no weighing matches the id.
	ErrWeighingNotFound = errors.New("weighing not found")
	// ErrFeedRecordNotFound is returned when no feed record matches the id.
	ErrFeedRecordNotFound = errors.New("feed record not found")
	// ErrIncidentNotFound is returned when no incident matches the id.
	ErrIncidentNotFound = errors.New("incident not found")
	// ErrInvalidInput is returned for other malformed payloads.
	ErrInvalidInput = errors.New("invalid input")
)

// AnimalInput carries the editable fields of an animal.
type AnimalInput struct {
	Tag           string           `json:"tag"`
	Group         models.Group     `json:"group"`
	InitialWeight float64          `json:"initialWeight"`
	EntryDate     models.CivilDate `json:"entryDate"`
	Notes         string           `json:"notes"`
}

// WeighingInput is a weighing entry. Week overrides the calendar week when set.
type WeighingInput struct {
	Tag       string           `json:"tag"`
	Date      models.CivilDate `json:"date"`
	Weight    float64          `json:"weight"`
	Week      *int             `json:"week"`
	Notes     string           `json:"notes"`
	Confirmed bool             `json:"confirmed"`
}

// WeighingResult reports the stored weighing and the regression check.
type WeighingResult struct {
	Weighing       models.Weighing `json:"weighing"`
	PreviousWeight float64         `json:"previousWeight"`
	AbnormalLoss   bool            `json:"abnormalLoss"`
	LossPercent    float64         `json:"lossPercent"`
}

// FeedInput is a daily feed entry for one group.
type FeedInput struct {
	Group         models.Group     `json:"group"`
	Date          models.CivilDate `json:"date"`
	FeedOffered   float64          `json:"feedOffered"`
	FeedRefused   float64          `json:"feedRefused"`
	ForageOffered float64          `json:"forageOffered"`
	ForageRefused float64          `json:"forageRefused"`
}

// Service validates entries and commits them to the store. Writes are
// serialized so each read-modify-write sees the previous one.
type Service struct {
	mu       sync.Mutex
	store    repository.Store
	calendar *calendar.Calendar
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewService constructs the data capture service.
func NewService(store repository.Store, cal *calendar.Calendar, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		calendar: cal,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Snapshot returns the current dataset.
func (s *Service) Snapshot(ctx context.Context) (models.Snapshot, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("load dataset: %w", err)
	}
	return snap, nil
}

// ListAnimals returns every registered animal.
func (s *Service) ListAnimals(ctx context.Context) ([]models.Animal, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Animals, nil
}

// RegisterAnimal adds a new active animal.
func (s *Service) RegisterAnimal(ctx context.Context, in AnimalInput) (models.Animal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in.Tag = models.NormalizeTag(in.Tag)
	if err := validateAnimal(in); err != nil {
		return models.Animal{}, err
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return models.Animal{}, err
	}
	if _, exists := snap.FindAnimalByTag(in.Tag); exists {
		return models.Animal{}, fmt.Errorf("%w: %s", ErrDuplicateTag, in.Tag)
	}

	animal := models.Animal{
		ID:            s.newID(),
		Tag:           in.Tag,
		Group:         in.Group,
		InitialWeight: in.InitialWeight,
		EntryDate:     in.EntryDate,
		Notes:         strings.TrimSpace(in.Notes),
		Active:        true,
		RegisteredAt:  s.now().UTC(),
	}
	snap.Animals = append(snap.Animals, animal)

	if err := s.store.Replace(ctx, snap, repository.CollectionAnimals); err != nil {
		return models.Animal{}, fmt.Errorf("save animal: %w", err)
	}
	s.logger.Info("animal registered", zap.String("tag", animal.Tag), zap.String("group", string(animal.Group)))
	return animal, nil
}

// UpdateAnimal overwrites the editable fields of an animal. Active state,
// exit details and registration time are kept.
func (s *Service) UpdateAnimal(ctx context.Context, id string, in AnimalInput) (models.Animal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in.Tag = models.NormalizeTag(in.Tag)
	if err := validateAnimal(in); err != nil {
		return models.Animal{}, err
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return models.Animal{}, err
	}

	idx := -1
	for i, a := range snap.Animals {
		if a.ID == id {
			idx = i
			continue
		}
		if a.Tag == in.Tag {
			return models.Animal{}, fmt.Errorf("%w: %s", ErrDuplicateTag, in.Tag)
		}
	}
	if idx < 0 {
		return models.Animal{}, fmt.Errorf("%w: %s", ErrAnimalNotFound, id)
	}

	animal := snap.Animals[idx]
	animal.Tag = in.Tag
	animal.Group = in.Group
	animal.InitialWeight = in.InitialWeight
	animal.EntryDate = in.EntryDate
	animal.Notes = strings.TrimSpace(in.Notes)
	snap.Animals[idx] = animal

	if err := s.store.Replace(ctx, snap, repository.CollectionAnimals); err != nil {
		return models.Animal{}, fmt.Errorf("save animal: %w", err)
	}
	return animal, nil
}

// ToggleAnimal flips the active flag of an animal.
func (s *Service) ToggleAnimal(ctx context.Context, id string) (models.Animal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return models.Animal{}, err
	}
	for i := range snap.Animals {
		if snap.Animals[i].ID != id {
			continue
		}
		snap.Animals[i].Active = !snap.Animals[i].Active
		if err := s.store.Replace(ctx, snap, repository.CollectionAnimals); err != nil {
			return models.Animal{}, fmt.Errorf("save animal: %w", err)
		}
		return snap.Animals[i], nil
	}
	return models.Animal{}, fmt.Errorf("%w: %s", ErrAnimalNotFound, id)
}

// DeleteAnimal removes an animal together with its weighings and incidents.
func (s *Service) DeleteAnimal(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}

	var (
		tag   string
		found bool
	)
	animals := snap.Animals[:0]
	for _, a := range snap.Animals {
		if a.ID == id {
			tag, found = a.Tag, true
			continue
		}
		animals = append(animals, a)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrAnimalNotFound, id)
	}
	snap.Animals = animals

	weighings := snap.Weighings[:0]
	for _, w := range snap.Weighings {
		if w.Tag != tag {
			weighings = append(weighings, w)
		}
	}
	snap.Weighings = weighings

	incs := snap.Incidents[:0]
	for _, inc := range snap.Incidents {
		if inc.Tag != tag {
			incs = append(incs, inc)
		}
	}
	snap.Incidents = incs

	if err := s.store.Replace(ctx, snap,
		repository.CollectionAnimals, repository.CollectionWeighings, repository.CollectionIncidents); err != nil {
		return fmt.Errorf("delete animal: %w", err)
	}
	s.logger.Info("animal deleted", zap.String("tag", tag))
	return nil
}

// RecordWeighing stores a weighing. When the new weight is more than 10%
// below the previous one the entry is only stored if confirmed; otherwise
// the check result is returned with ErrConfirmationRequired.
func (s *Service) RecordWeighing(ctx context.Context, in WeighingInput) (WeighingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag := models.NormalizeTag(in.Tag)
	if in.Weight <= 0 || in.Weight > maxWeightKg || math.IsNaN(in.Weight) {
		return WeighingResult{}, ErrInvalidWeight
	}
	if in.Date.IsZero() {
		return WeighingResult{}, fmt.Errorf("%w: weighing date is required", ErrInvalidInput)
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return WeighingResult{}, err
	}
	animal, ok := snap.FindAnimalByTag(tag)
	if !ok {
		return WeighingResult{}, fmt.Errorf("%w: %s", ErrAnimalNotFound, tag)
	}

	previous := growth.WeightBefore(animal, snap.Weighings, in.Date)
	result := WeighingResult{
		PreviousWeight: previous,
		AbnormalLoss:   growth.FlagAbnormalLoss(previous, in.Weight),
		LossPercent:    growth.LossPercent(previous, in.Weight),
	}
	if result.AbnormalLoss && !in.Confirmed {
		return result, fmt.Errorf("%w: %.1f%% below %.1f kg", ErrConfirmationRequired, result.LossPercent, previous)
	}

	week := in.Week
	if week == nil {
		week = s.calendar.WeekPtr(in.Date)
	}
	if !s.calendar.InStudy(in.Date) {
		s.logger.Debug("weighing outside study range", zap.String("tag", tag), zap.Stringer("date", in.Date))
	}

	result.Weighing = models.Weighing{
		ID:         s.newID(),
		Tag:        tag,
		Date:       in.Date,
		Weight:     in.Weight,
		Week:       week,
		Notes:      strings.TrimSpace(in.Notes),
		RecordedAt: s.now().UTC(),
	}
	snap.Weighings = append(snap.Weighings, result.Weighing)

	if err := s.store.Replace(ctx, snap, repository.CollectionWeighings); err != nil {
		return WeighingResult{}, fmt.Errorf("save weighing: %w", err)
	}
	if result.AbnormalLoss {
		s.logger.Warn("confirmed abnormal weight loss",
			zap.String("tag", tag),
			zap.Float64("previous", previous),
			zap.Float64("weight", in.Weight),
		)
	}
	return result, nil
}

// DeleteWeighing removes a weighing by id.
func (s *Service) DeleteWeighing(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	kept := snap.Weighings[:0]
	for _, w := range snap.Weighings {
		if w.ID != id {
			kept = append(kept, w)
		}
	}
	if len(kept) == len(snap.Weighings) {
		return fmt.Errorf("%w: %s", ErrWeighingNotFound, id)
	}
	snap.Weighings = kept
	if err := s.store.Replace(ctx, snap, repository.CollectionWeighings); err != nil {
		return fmt.Errorf("delete weighing: %w", err)
	}
	return nil
}

// RecordFeed stores the feed of a group for a day, replacing any earlier
// entry for the same group and date.
func (s *Service) RecordFeed(ctx context.Context, in FeedInput) (models.FeedRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateFeed(in); err != nil {
		return models.FeedRecord{}, false, err
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return models.FeedRecord{}, false, err
	}

	rec := models.FeedRecord{
		ID:            s.newID(),
		Group:         in.Group,
		Date:          in.Date,
		FeedOffered:   in.FeedOffered,
		FeedRefused:   in.FeedRefused,
		ForageOffered: in.ForageOffered,
		ForageRefused: in.ForageRefused,
		RecordedAt:    s.now().UTC(),
	}
	var replaced bool
	snap.FeedRecords, replaced = feed.Upsert(snap.FeedRecords, rec)

	if err := s.store.Replace(ctx, snap, repository.CollectionFeed); err != nil {
		return models.FeedRecord{}, false, fmt.Errorf("save feed record: %w", err)
	}
	if replaced {
		s.logger.Info("feed record replaced", zap.String("group", string(rec.Group)), zap.Stringer("date", rec.Date))
	}
	return rec, replaced, nil
}

// DeleteFeed removes a feed record by id.
func (s *Service) DeleteFeed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	kept := snap.FeedRecords[:0]
	for _, r := range snap.FeedRecords {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(snap.FeedRecords) {
		return fmt.Errorf("%w: %s", ErrFeedRecordNotFound, id)
	}
	snap.FeedRecords = kept
	if err := s.store.Replace(ctx, snap, repository.CollectionFeed); err != nil {
		return fmt.Errorf("delete feed record: %w", err)
	}
	return nil
}

// RecordIncident fans an incident out to the animals selected by its scope.
// The new incidents and any withdrawal or death patches are committed in a
// single write of both collections.
func (s *Service) RecordIncident(ctx context.Context, req incidents.Request) ([]models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if req.Scope == "" {
		req.Scope = models.ScopeIndividual
	}
	if req.Scope == models.ScopeIndividual {
		if _, ok := snap.FindAnimalByTag(models.NormalizeTag(req.Tag)); !ok {
			return nil, fmt.Errorf("%w: %s", ErrAnimalNotFound, req.Tag)
		}
	}

	outcome, err := incidents.Plan(req, snap.Animals, s.newID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("plan incident: %w", err)
	}

	snap.Incidents = append(snap.Incidents, outcome.Incidents...)
	snap.Animals = incidents.ApplyPatches(snap.Animals, outcome.Patches)

	if err := s.store.Replace(ctx, snap, repository.CollectionIncidents, repository.CollectionAnimals); err != nil {
		return nil, fmt.Errorf("save incidents: %w", err)
	}
	s.logger.Info("incident recorded",
		zap.String("kind", string(req.Kind)),
		zap.String("scope", string(req.Scope)),
		zap.Int("animals", len(outcome.Incidents)),
		zap.Int("exits", len(outcome.Patches)),
	)
	return outcome.Incidents, nil
}

// DeleteIncident removes an incident by id. Exit details set by the incident
// stay on the animal.
func (s *Service) DeleteIncident(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	kept := snap.Incidents[:0]
	for _, inc := range snap.Incidents {
		if inc.ID != id {
			kept = append(kept, inc)
		}
	}
	if len(kept) == len(snap.Incidents) {
		return fmt.Errorf("%w: %s", ErrIncidentNotFound, id)
	}
	snap.Incidents = kept
	if err := s.store.Replace(ctx, snap, repository.CollectionIncidents); err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	return nil
}

// Restore replaces the whole dataset.
func (s *Service) Restore(ctx context.Context, snap models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Replace(ctx, repository.Normalize(snap), repository.AllCollections...); err != nil {
		return fmt.Errorf("restore dataset: %w", err)
	}
	s.logger.Info("dataset restored",
		zap.Int("animals", len(snap.Animals)),
		zap.Int("weighings", len(snap.Weighings)),
		zap.Int("feed", len(snap.FeedRecords)),
		zap.Int("incidents", len(snap.Incidents)),
	)
	return nil
}

func validateAnimal(in AnimalInput) error {
	switch {
	case in.Tag == "":
		return fmt.Errorf("%w: tag is required", ErrInvalidInput)
	case !in.Group.Valid():
		return fmt.Errorf("%w: unknown group %q", ErrInvalidInput, in.Group)
	case in.EntryDate.IsZero():
		return fmt.Errorf("%w: entry date is required", ErrInvalidInput)
	case in.InitialWeight <= 0 || in.InitialWeight > maxWeightKg || math.IsNaN(in.InitialWeight):
		return ErrInvalidWeight
	}
	return nil
}

func validateFeed(in FeedInput) error {
	switch {
	case !in.Group.Valid():
		return fmt.Errorf("%w: unknown group %q", ErrInvalidInput, in.Group)
	case in.Date.IsZero():
		return fmt.Errorf("%w: feed date is required", ErrInvalidInput)
	case !finite(in.FeedOffered, in.FeedRefused, in.ForageOffered, in.ForageRefused):
		return fmt.Errorf("%w: amounts must be finite numbers", ErrInvalidInput)
	case in.FeedOffered < 0 || in.FeedRefused < 0 || in.ForageOffered < 0 || in.ForageRefused < 0:
		return fmt.Errorf("%w: amounts cannot be negative", ErrInvalidInput)
	case in.FeedRefused > in.FeedOffered:
		return fmt.Errorf("%w: feed %.2f > %.2f kg", ErrRefusedExceedsOffered, in.FeedRefused, in.FeedOffered)
	case in.ForageRefused > in.ForageOffered:
		return fmt.Errorf("%w: forage %.2f > %.2f kg", ErrRefusedExceedsOffered, in.ForageRefused, in.ForageOffered)
	}
	return nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
