// Package scoring derives per-reader rates, weekly team points and levels.
package scoring

import (
	"math"
	"sort"

	"github.com/verte-zerg/speedlesen/internal/model"
)

// Point values per flag.
const (
	PointsImprovedWPM   = 2
	PointsReducedErrors = 3
	PointsCoaching      = 2
	PointsMission       = 3

	// MaxRawPoints caps the raw team points of one week.
	MaxRawPoints = 10

	// ReferenceGroupSize is the group size normalized points are scaled to.
	ReferenceGroupSize = 2
)

// Level is a group's rank derived from cumulative normalized points.
type Level string

// Levels in ascending order.
const (
	LevelStarter    Level = "Starter"
	LevelReader     Level = "Reader"
	LevelSpeedster  Level = "Speedster"
	LevelFlowMaster Level = "Flow-Master"
)

var thresholds = []struct {
	level Level
	min   float64
}{
	{LevelReader, 10},
	{LevelSpeedster, 20},
	{LevelFlowMaster, 30},
}

// WPM converts words read in three minutes to words per minute.
func WPM(words3 float64) float64 {
	return model.Finite(words3) / 3
}

// WPS converts words read in three minutes to words per second.
func WPS(words3 float64) float64 {
	return model.Finite(words3) / 180
}

// WCPM is words correct per minute.
func WCPM(wpm, errors float64) float64 {
	return model.Finite(wpm) - model.Finite(errors)
}

// TeamResult is the outcome of TeamPoints.
type TeamResult struct {
	Raw   float64
	Flags model.Flags
}

// TeamPoints scores a week against the previous one. Persons are matched by
// pid, falling back to name. Coaching and mission points are not awarded in
// strict mode, but their flags still mirror the inputs.
func TeamPoints(prev, curr []model.PersonMeasurement, coaching, mission bool, mode string) TeamResult {
	before := make(map[string]model.PersonMeasurement, len(prev))
	for _, p := range prev {
		before[personKey(p)] = p
	}
	flags := model.Flags{CoachingMet: coaching, MissionMet: mission}
	for _, c := range curr {
		p, ok := before[personKey(c)]
		if !ok {
			continue
		}
		if c.WPM > p.WPM {
			flags.ImprovedWPM = true
		}
		if c.Errors < p.Errors {
			flags.ReducedErrors = true
		}
	}

	var raw float64
	if flags.ImprovedWPM {
		raw += PointsImprovedWPM
	}
	if flags.ReducedErrors {
		raw += PointsReducedErrors
	}
	if mode != model.ModeStrict {
		if coaching {
			raw += PointsCoaching
		}
		if mission {
			raw += PointsMission
		}
	}
	return TeamResult{Raw: math.Min(MaxRawPoints, raw), Flags: flags}
}

// PersonPoints is one reader's share of the rate and error flags.
func PersonPoints(prev *model.PersonMeasurement, curr model.PersonMeasurement) float64 {
	if prev == nil {
		return 0
	}
	var pts float64
	if curr.WPM > prev.WPM {
		pts += PointsImprovedWPM
	}
	if curr.Errors < prev.Errors {
		pts += PointsReducedErrors
	}
	return pts
}

// personKey matches persons by cleaned pid, falling back to cleaned name.
func personKey(p model.PersonMeasurement) string {
	if pid := model.CleanID(p.PID); pid != "" {
		return pid
	}
	return model.CleanID(p.Name)
}

// Normalize scales raw points to the reference group size. It is not capped.
func Normalize(raw float64, persons int) float64 {
	n := persons
	if n < 1 {
		n = 1
	}
	return model.Finite(raw) * ReferenceGroupSize / float64(n)
}

// LevelFor classifies cumulative normalized points.
func LevelFor(cumulative float64) Level {
	level := LevelStarter
	for _, t := range thresholds {
		if cumulative >= t.min {
			level = t.level
		}
	}
	return level
}

// LastLevelUpWeek returns the week number in which the most recent level was
// first reached, or 0 when the group is still a starter.
func LastLevelUpWeek(weeks []model.Week) int {
	sorted := sortedByWeek(weeks)
	var cum float64
	last := 0
	reached := map[Level]bool{}
	for _, w := range sorted {
		cum += model.Finite(w.PointsNormalized)
		for _, t := range thresholds {
			if cum >= t.min && !reached[t.level] {
				reached[t.level] = true
				last = w.WeekNumber
			}
		}
	}
	return last
}

// MedianWCPMLastWeek returns the median WCPM of the highest-numbered week.
func MedianWCPMLastWeek(weeks []model.Week) float64 {
	if len(weeks) == 0 {
		return 0
	}
	sorted := sortedByWeek(weeks)
	last := sorted[len(sorted)-1]
	if len(last.Persons) == 0 {
		return 0
	}
	values := make([]float64, 0, len(last.Persons))
	for _, p := range last.Persons {
		values = append(values, model.Finite(p.WCPM))
	}
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return (values[mid-1] + values[mid]) / 2
}

// Cumulative sums normalized points of every week up to and including
// weekNumber.
func Cumulative(weeks []model.Week, weekNumber int) float64 {
	var sum float64
	for _, w := range weeks {
		if w.WeekNumber <= weekNumber {
			sum += model.Finite(w.PointsNormalized)
		}
	}
	return sum
}

func sortedByWeek(weeks []model.Week) []model.Week {
	out := append([]model.Week(nil), weeks...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].WeekNumber < out[j].WeekNumber })
	return out
}
