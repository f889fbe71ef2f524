// Package incidents plans incident creation as a pure step: it returns the
// incidents to append and the animal patches to apply, leaving the commit to
// the caller.
package incidents

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mamadbah2/lambtrial/internal/domain/models"
)

var (
	// ErrNoActiveAnimals is returned when the scope selects no animal.
	ErrNoActiveAnimals = errors.New("no active animals selected for incident")
	// ErrMissingMedication is returned for treatments without a valid course.
	ErrMissingMedication = errors.New("treatment requires medication with a duration of at least one day")
	// ErrInvalidKind is returned for unknown incident kinds.
	ErrInvalidKind = errors.New("unknown incident kind")
	// ErrInvalidScope is returned for unknown scopes or a missing tag.
	ErrInvalidScope = errors.New("invalid incident scope")
	// ErrMissingDate is returned when the incident has no date.
	ErrMissingDate = errors.New("incident date is required")
)

// Request describes an incident entry before fan-out.
type Request struct {
	Scope       models.Scope
	Tag         string
	Date        models.CivilDate
	Kind        models.IncidentKind
	Description string
	Medication  *models.Medication
}

// Outcome is what the caller commits: new incidents plus animal patches.
type Outcome struct {
	Incidents []models.Incident
	Patches   []models.AnimalPatch
}

// Plan fans the request out to every selected animal. Group scopes select
// active animals only; the individual scope takes the tag as given, so an
// incident can still be logged for an animal that is no longer active.
func Plan(req Request, animals []models.Animal, newID func() string, now time.Time) (Outcome, error) {
	if !req.Kind.Valid() {
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidKind, req.Kind)
	}
	if req.Date.IsZero() {
		return Outcome{}, ErrMissingDate
	}

	var med *models.Medication
	if req.Kind == models.IncidentTreatment {
		if req.Medication == nil || req.Medication.DurationDays < 1 {
			return Outcome{}, ErrMissingMedication
		}
		copied := *req.Medication
		med = &copied
	}

	tags, err := selectTags(req, animals)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Incidents: make([]models.Incident, 0, len(tags))}
	for _, tag := range tags {
		inc := models.Incident{
			ID:          newID(),
			Tag:         tag,
			Date:        req.Date,
			Kind:        req.Kind,
			Description: req.Description,
			Scope:       req.Scope,
			RecordedAt:  now,
		}
		if med != nil {
			m := *med
			inc.Medication = &m
		}
		out.Incidents = append(out.Incidents, inc)

		if !req.Kind.Deactivates() {
			continue
		}
		for _, a := range animals {
			if a.Tag != tag {
				continue
			}
			out.Patches = append(out.Patches, models.AnimalPatch{
				AnimalID:   a.ID,
				Tag:        a.Tag,
				Active:     false,
				ExitDate:   req.Date,
				ExitReason: exitReason(req.Kind, req.Description),
			})
			break
		}
	}

	return out, nil
}

func selectTags(req Request, animals []models.Animal) ([]string, error) {
	var tags []string

	switch req.Scope {
	case models.ScopeIndividual, "":
		tag := models.NormalizeTag(req.Tag)
		if tag == "" {
			return nil, fmt.Errorf("%w: tag is required for individual incidents", ErrInvalidScope)
		}
		tags = append(tags, tag)
	case models.ScopeGroupA, models.ScopeGroupB, models.ScopeAll:
		for _, a := range animals {
			if !a.Active {
				continue
			}
			if req.Scope == models.ScopeGroupA && a.Group != models.GroupA {
				continue
			}
			if req.Scope == models.ScopeGroupB && a.Group != models.GroupB {
				continue
			}
			tags = append(tags, a.Tag)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, req.Scope)
	}

	if len(tags) == 0 {
		return nil, ErrNoActiveAnimals
	}
	return tags, nil
}

func exitReason(kind models.IncidentKind, description string) string {
	prefix := "Withdrawn from study"
	if kind == models.IncidentDeath {
		prefix = "Death"
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return prefix
	}
	return prefix + ": " + description
}

// ApplyPatches returns a copy of animals with the patches applied. Patches
// for unknown animals are ignored.
func ApplyPatches(animals []models.Animal, patches []models.AnimalPatch) []models.Animal {
	out := append([]models.Animal(nil), animals...)
	for _, p := range patches {
		for i := range out {
			if out[i].ID != p.AnimalID {
				continue
			}
			exit := p.ExitDate
			out[i].Active = p.Active
			out[i].ExitDate = &exit
			out[i].ExitReason = p.ExitReason
		}
	}
	return out
}
