package models

import "time"

// AnimalGrowth is one row of the per-animal growth table.
type AnimalGrowth struct {
	Tag           string  `json:"tag" bson:"tag"`
	Group         Group   `json:"group" bson:"group"`
	Active        bool    `json:"active" bson:"active"`
	InitialWeight float64 `json:"initialWeight" bson:"initial_weight"`
	CurrentWeight float64 `json:"currentWeight" bson:"current_weight"`
	Gain          float64 `json:"gain" bson:"gain"`
	// ADG is in grams per day; nil when the animal has no elapsed days yet.
	ADG         *int `json:"adg" bson:"adg,omitempty"`
	DaysOnTrial int  `json:"daysOnTrial" bson:"days_on_trial"`
}

// GroupSummary aggregates the active animals of one group.
type GroupSummary struct {
	Group             Group   `json:"group" bson:"group"`
	NoData            bool    `json:"noData" bson:"no_data"`
	Count             int     `json:"count" bson:"count"`
	MeanInitialWeight float64 `json:"meanInitialWeight" bson:"mean_initial_weight"`
	MeanCurrentWeight float64 `json:"meanCurrentWeight" bson:"mean_current_weight"`
	MeanGain          float64 `json:"meanGain" bson:"mean_gain"`
	MeanADG           float64 `json:"meanAdg" bson:"mean_adg"`
	MeanDaysOnTrial   float64 `json:"meanDaysOnTrial" bson:"mean_days_on_trial"`
	TotalNetFeed      float64 `json:"totalNetFeed" bson:"total_net_feed"`
}

// ConversionRow is the feed-conversion figure of one group.
type ConversionRow struct {
	Group        Group    `json:"group" bson:"group"`
	Label        string   `json:"label" bson:"label"`
	TotalNetFeed float64  `json:"totalNetFeed" bson:"total_net_feed"`
	TotalGain    float64  `json:"totalGain" bson:"total_gain"`
	Index        *float64 `json:"index" bson:"index,omitempty"`
}

// WeighingRow is a weighing enriched for the history table.
type WeighingRow struct {
	Weighing
	Group string `json:"group"`
	// Week is nil for the pre-trial arrival period.
	Week *int `json:"trialWeek"`
	ADG  *int `json:"adg"`
}

// Overview holds dataset-wide counters.
type Overview struct {
	TotalAnimals  int           `json:"totalAnimals"`
	ActiveAnimals int           `json:"activeAnimals"`
	PerGroup      map[Group]int `json:"perGroup"`
	Weighings     int           `json:"weighings"`
}

// TreatmentInCourse is a treatment running on a given day.
type TreatmentInCourse struct {
	Tag        string `json:"tag"`
	Medication string `json:"medication"`
	Day        int    `json:"day"`
	TotalDays  int    `json:"totalDays"`
}

// DayOverview carries the calendar indicators of one day.
type DayOverview struct {
	Date        CivilDate           `json:"date"`
	InStudy     bool                `json:"inStudy"`
	Week        *int                `json:"week"`
	Weighings   int                 `json:"weighings"`
	FeedGroupA  bool                `json:"feedGroupA"`
	FeedGroupB  bool                `json:"feedGroupB"`
	Symptoms    bool                `json:"symptoms"`
	Exits       bool                `json:"exits"`
	Treatment   bool                `json:"treatment"`
	Treatments  []TreatmentInCourse `json:"treatments,omitempty"`
	NetFeed     map[Group]float64   `json:"netFeed,omitempty"`
	IncidentIDs []string            `json:"incidentIds,omitempty"`
}

// TrialReport is the archived weekly report stored in MongoDB.
type TrialReport struct {
	AsOf       CivilDate       `bson:"as_of" json:"asOf"`
	Week       *int            `bson:"week,omitempty" json:"week"`
	Groups     []GroupSummary  `bson:"groups" json:"groups"`
	Conversion []ConversionRow `bson:"conversion" json:"conversion"`
	Animals    []AnimalGrowth  `bson:"animals" json:"animals"`
	Text       string          `bson:"text" json:"text"`
	CreatedAt  time.Time       `bson:"created_at" json:"created_at"`
}
