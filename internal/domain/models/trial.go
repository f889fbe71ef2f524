package models

import (
	"strings"
	"time"
)

// Group identifies one of the two feeding groups of the trial.
type Group string

const (
	GroupA Group = "A"
	GroupB Group = "B"
)

// Groups lists the trial groups in display order.
var Groups = []Group{GroupA, GroupB}

// Valid reports whether g is one of the trial groups.
func (g Group) Valid() bool {
	return g == GroupA || g == GroupB
}

// Label returns the human-friendly name of the group.
func (g Group) Label() string {
	switch g {
	case GroupA:
		return "Group A (ad libitum)"
	case GroupB:
		return "Group B (85%)"
	default:
		return "Unknown group"
	}
}

// ParseGroup normalizes user input ("a", " B ") into a Group.
func ParseGroup(value string) (Group, bool) {
	g := Group(strings.ToUpper(strings.TrimSpace(value)))
	return g, g.Valid()
}

// NormalizeTag upper-cases and trims an ear tag code.
func NormalizeTag(tag string) string {
	return strings.ToUpper(strings.TrimSpace(tag))
}

// Animal is a registered lamb.
type Animal struct {
	ID            string     `json:"id" bson:"id"`
	Tag           string     `json:"tag" bson:"tag"`
	Group         Group      `json:"group" bson:"group"`
	InitialWeight float64    `json:"initialWeight" bson:"initial_weight"`
	EntryDate     CivilDate  `json:"entryDate" bson:"entry_date"`
	Notes         string     `json:"notes,omitempty" bson:"notes,omitempty"`
	Active        bool       `json:"active" bson:"active"`
	RegisteredAt  time.Time  `json:"registeredAt" bson:"registered_at"`
	ExitDate      *CivilDate `json:"exitDate,omitempty" bson:"exit_date,omitempty"`
	ExitReason    string     `json:"exitReason,omitempty" bson:"exit_reason,omitempty"`
}

// Weighing is a body-weight measurement of one animal.
type Weighing struct {
	ID         string    `json:"id" bson:"id"`
	Tag        string    `json:"tag" bson:"tag"`
	Date       CivilDate `json:"date" bson:"date"`
	Weight     float64   `json:"weight" bson:"weight"`
	Week       *int      `json:"week,omitempty" bson:"week,omitempty"`
	Notes      string    `json:"notes,omitempty" bson:"notes,omitempty"`
	RecordedAt time.Time `json:"recordedAt" bson:"recorded_at"`
}

// FeedRecord captures the feed offered and refused by a group on one day.
type FeedRecord struct {
	ID            string    `json:"id" bson:"id"`
	Group         Group     `json:"group" bson:"group"`
	Date          CivilDate `json:"date" bson:"date"`
	FeedOffered   float64   `json:"feedOffered" bson:"feed_offered"`
	FeedRefused   float64   `json:"feedRefused" bson:"feed_refused"`
	ForageOffered float64   `json:"forageOffered,omitempty" bson:"forage_offered,omitempty"`
	ForageRefused float64   `json:"forageRefused,omitempty" bson:"forage_refused,omitempty"`
	RecordedAt    time.Time `json:"recordedAt" bson:"recorded_at"`
}

// IncidentKind enumerates the health events that can be logged.
type IncidentKind string

const (
	IncidentSymptom    IncidentKind = "symptom"
	IncidentTreatment  IncidentKind = "treatment"
	IncidentWithdrawal IncidentKind = "withdrawal"
	IncidentDeath      IncidentKind = "death"
	IncidentOther      IncidentKind = "other"
)

// Valid reports whether k is a known incident kind.
func (k IncidentKind) Valid() bool {
	switch k {
	case IncidentSymptom, IncidentTreatment, IncidentWithdrawal, IncidentDeath, IncidentOther:
		return true
	}
	return false
}

// Deactivates reports whether logging this kind takes the animal off trial.
func (k IncidentKind) Deactivates() bool {
	return k == IncidentWithdrawal || k == IncidentDeath
}

// Scope tells which animals an incident entry was applied to.
type Scope string

const (
	ScopeIndividual Scope = "individual"
	ScopeGroupA     Scope = "group_a"
	ScopeGroupB     Scope = "group_b"
	ScopeAll        Scope = "all"
)

// Medication details a treatment course.
type Medication struct {
	Name         string `json:"name" bson:"name"`
	Form         string `json:"form,omitempty" bson:"form,omitempty"`
	Dose         string `json:"dose,omitempty" bson:"dose,omitempty"`
	Unit         string `json:"unit,omitempty" bson:"unit,omitempty"`
	Route        string `json:"route,omitempty" bson:"route,omitempty"`
	DurationDays int    `json:"durationDays" bson:"duration_days"`
	Notes        string `json:"notes,omitempty" bson:"notes,omitempty"`
}

// Incident is a health event recorded for one animal.
type Incident struct {
	ID          string       `json:"id" bson:"id"`
	Tag         string       `json:"tag" bson:"tag"`
	Date        CivilDate    `json:"date" bson:"date"`
	Kind        IncidentKind `json:"kind" bson:"kind"`
	Description string       `json:"description,omitempty" bson:"description,omitempty"`
	Medication  *Medication  `json:"medication,omitempty" bson:"medication,omitempty"`
	Scope       Scope        `json:"scope" bson:"scope"`
	RecordedAt  time.Time    `json:"recordedAt" bson:"recorded_at"`
}

// AnimalPatch is a state change to apply to an animal alongside new incidents.
type AnimalPatch struct {
	AnimalID   string    `json:"animalId"`
	Tag        string    `json:"tag"`
	Active     bool      `json:"active"`
	ExitDate   CivilDate `json:"exitDate"`
	ExitReason string    `json:"exitReason"`
}

// Snapshot is the full dataset handed to the metrics core.
type Snapshot struct {
	Animals     []Animal     `json:"animals"`
	Weighings   []Weighing   `json:"weighings"`
	FeedRecords []FeedRecord `json:"feed"`
	Incidents   []Incident   `json:"incidents"`
}

// FindAnimalByTag returns the animal carrying tag, if any.
func (s Snapshot) FindAnimalByTag(tag string) (Animal, bool) {
	for _, a := range s.Animals {
		if a.Tag == tag {
			return a, true
		}
	}
	return Animal{}, false
}

// Backup is the persisted snapshot file format.
type Backup struct {
	Version      string       `json:"version"`
	CreatedAt    time.Time    `json:"createdAt"`
	StudyEndDate CivilDate    `json:"studyEndDate"`
	Animals      []Animal     `json:"animals"`
	Weighings    []Weighing   `json:"weighings"`
	FeedRecords  []FeedRecord `json:"feed"`
	Incidents    []Incident   `json:"incidents"`
}
