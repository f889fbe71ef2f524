// Package growth derives body-weight figures for a single animal.
package growth

import (
	"math"

	"github.com/mamadbah2/lambtrial/internal/domain/models"
)

// AbnormalLossRatio is the fraction of the previous weight below which a new
// weight is flagged.
const AbnormalLossRatio = 0.9

// ForAnimal keeps the weighings recorded for tag, preserving their order.
func ForAnimal(tag string, weighings []models.Weighing) []models.Weighing {
	out := make([]models.Weighing, 0, len(weighings))
	for _, w := range weighings {
		if w.Tag == tag {
			out = append(out, w)
		}
	}
	return out
}

// LatestWeight is the reporting variant of the current weight: the most
// recent weighing of the animal regardless of any reference date, or the
// initial weight when none exists. Ties on the same date keep the earliest
// recorded entry.
func LatestWeight(animal models.Animal, weighings []models.Weighing) float64 {
	w, ok := latest(animal.Tag, weighings, models.CivilDate{})
	if !ok {
		return animal.InitialWeight
	}
	return w.Weight
}

// WeightBefore is the regression-check variant: the most recent weighing
// dated strictly before date, or the initial weight when none exists.
func WeightBefore(animal models.Animal, weighings []models.Weighing, date models.CivilDate) float64 {
	w, ok := latest(animal.Tag, weighings, date)
	if !ok {
		return animal.InitialWeight
	}
	return w.Weight
}

func latest(tag string, weighings []models.Weighing, ceiling models.CivilDate) (models.Weighing, bool) {
	var (
		best  models.Weighing
		found bool
	)
	for _, w := range weighings {
		if w.Tag != tag {
			continue
		}
		if !ceiling.IsZero() && !w.Date.Before(ceiling) {
			continue
		}
		if !found || w.Date.After(best.Date) {
			best = w
			found = true
		}
	}
	return best, found
}

// DaysOnTrial returns the signed number of whole days between the animal's
// entry and asOf.
func DaysOnTrial(animal models.Animal, asOf models.CivilDate) int {
	return asOf.DaysSince(animal.EntryDate)
}

// AverageDailyGain returns the gain since entry in grams per day, rounded to
// the nearest gram. ok is false when asOf is on or before the entry date.
func AverageDailyGain(animal models.Animal, currentWeight float64, asOf models.CivilDate) (gramsPerDay int, ok bool) {
	days := DaysOnTrial(animal, asOf)
	if days <= 0 {
		return 0, false
	}
	return int(math.Round((currentWeight - animal.InitialWeight) / float64(days) * 1000)), true
}

// FlagAbnormalLoss reports a drop of more than 10% against the previous
// weight. It only classifies; the entry is still accepted on confirmation.
func FlagAbnormalLoss(previousWeight, newWeight float64) bool {
	return newWeight < previousWeight*AbnormalLossRatio
}

// LossPercent returns how much lighter newWeight is than previousWeight, in
// percent. Gains yield negative values.
func LossPercent(previousWeight, newWeight float64) float64 {
	if previousWeight <= 0 {
		return 0
	}
	return (1 - newWeight/previousWeight) * 100
}

// Figures builds the growth row of an animal as of a reference date using
// the reporting weight variant.
func Figures(animal models.Animal, weighings []models.Weighing, asOf models.CivilDate) models.AnimalGrowth {
	current := LatestWeight(animal, weighings)
	row := models.AnimalGrowth{
		Tag:           animal.Tag,
		Group:         animal.Group,
		Active:        animal.Active,
		InitialWeight: animal.InitialWeight,
		CurrentWeight: current,
		Gain:          current - animal.InitialWeight,
		DaysOnTrial:   DaysOnTrial(animal, asOf),
	}
	if adg, ok := AverageDailyGain(animal, current, asOf); ok {
		row.ADG = &adg
	}
	return row
}
