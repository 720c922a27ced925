package model

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CleanID trims an identifier or name and converts it to NFC so that
// composed and decomposed spellings compare equal.
func CleanID(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// NormalizePerson cleans a roster entry and applies the name and alias
// fallbacks. It reports false when no identity can be derived.
func NormalizePerson(p Person) (Person, bool) {
	p.PID = CleanID(p.PID)
	p.Name = CleanID(p.Name)
	p.Alias = CleanID(p.Alias)
	if p.PID == "" {
		p.PID = p.Name
	}
	if p.PID == "" {
		return Person{}, false
	}
	if p.Name == "" {
		p.Name = p.PID
	}
	if p.Alias == "" {
		p.Alias = p.Name
	}
	return p, true
}

// NormalizeWeek validates the identifying fields of a week and fills in every
// optional field. Non-finite numbers become 0, the key is recomputed and
// PersonCount defaults to the number of persons.
func NormalizeWeek(op string, w Week) (Week, error) {
	w.GroupID = CleanID(w.GroupID)
	if w.GroupID == "" {
		return Week{}, &ValidationError{Op: op, Field: "groupId"}
	}
	if w.WeekNumber < 1 {
		return Week{}, &ValidationError{Op: op, Field: "weekNumber", Msg: "must be a positive integer"}
	}
	w.Key = WeekKey(w.GroupID, w.WeekNumber)

	persons := make([]PersonMeasurement, 0, len(w.Persons))
	for i, p := range w.Persons {
		p.PID = CleanID(p.PID)
		p.Name = CleanID(p.Name)
		if p.PID == "" {
			p.PID = p.Name
		}
		if p.PID == "" {
			return Week{}, &ValidationError{Op: op, Field: fmt.Sprintf("persons[%d].pid", i)}
		}
		if p.Name == "" {
			p.Name = p.PID
		}
		p.Words3Min = Finite(p.Words3Min)
		p.WPM = Finite(p.WPM)
		p.WPS = Finite(p.WPS)
		p.Errors = Finite(p.Errors)
		p.WCPM = Finite(p.WCPM)
		p.PersonPoints = Finite(p.PersonPoints)
		persons = append(persons, p)
	}
	w.Persons = persons

	if w.PersonCount <= 0 {
		w.PersonCount = len(persons)
	}
	w.PointsRaw = Finite(w.PointsRaw)
	w.PointsNormalized = Finite(w.PointsNormalized)
	w.PointsCumulative = Finite(w.PointsCumulative)
	if !w.SavedAt.IsZero() {
		w.SavedAt = w.SavedAt.UTC()
	}
	return w, nil
}

// Finite maps NaN and infinities to 0.
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
