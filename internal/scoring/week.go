package scoring

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/speedlesen/internal/model"
)

// ReaderInput is one reader's raw result on a week sheet.
type ReaderInput struct {
	PID    string  `yaml:"pid" json:"pid"`
	Name   string  `yaml:"name" json:"name"`
	Words3 float64 `yaml:"woerter3" json:"woerter3"`
	Errors float64 `yaml:"fehler" json:"fehler"`
}

// WeekInput is a week sheet: the raw inputs from which a week is scored.
// Sheets are YAML; JSON sheets parse as well.
type WeekInput struct {
	GroupID    string        `yaml:"group" json:"group"`
	WeekNumber int           `yaml:"week" json:"week"`
	Coaching   bool          `yaml:"coaching" json:"coaching"`
	Mission    bool          `yaml:"mission" json:"mission"`
	Readers    []ReaderInput `yaml:"readers" json:"readers"`
}

// LoadWeekInput reads a week sheet from path.
func LoadWeekInput(path string) (WeekInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return WeekInput{}, fmt.Errorf("failed to read week sheet: %w", err)
	}
	return DecodeWeekInput(bytes.NewReader(data))
}

// DecodeWeekInput parses a week sheet. Unknown keys are rejected.
func DecodeWeekInput(r io.Reader) (WeekInput, error) {
	var in WeekInput
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&in); err != nil {
		return WeekInput{}, &model.FormatError{Reason: "malformed week sheet", Err: err}
	}
	return in, nil
}

// BuildWeek scores a week sheet against the group's stored weeks. The
// previous week is the highest-numbered stored week before in.WeekNumber;
// without one no rate or error points are awarded.
func BuildWeek(stored []model.Week, in WeekInput, mode string) model.Week {
	var prev *model.Week
	var prior []model.Week
	for i := range stored {
		w := stored[i]
		if w.WeekNumber >= in.WeekNumber {
			continue
		}
		prior = append(prior, w)
		if prev == nil || w.WeekNumber > prev.WeekNumber {
			prev = &stored[i]
		}
	}

	before := map[string]*model.PersonMeasurement{}
	var prevPersons []model.PersonMeasurement
	if prev != nil {
		prevPersons = prev.Persons
		for i := range prev.Persons {
			before[personKey(prev.Persons[i])] = &prev.Persons[i]
		}
	}

	persons := make([]model.PersonMeasurement, 0, len(in.Readers))
	for _, r := range in.Readers {
		wpm := WPM(r.Words3)
		p := model.PersonMeasurement{
			PID:       model.CleanID(r.PID),
			Name:      model.CleanID(r.Name),
			Words3Min: model.Finite(r.Words3),
			WPM:       wpm,
			WPS:       WPS(r.Words3),
			Errors:    model.Finite(r.Errors),
			WCPM:      WCPM(wpm, r.Errors),
		}
		if p.PID == "" {
			p.PID = p.Name
		}
		p.PersonPoints = PersonPoints(before[personKey(p)], p)
		persons = append(persons, p)
	}

	team := TeamPoints(prevPersons, persons, in.Coaching, in.Mission, mode)
	normalized := Normalize(team.Raw, len(persons))
	return model.Week{
		GroupID:          in.GroupID,
		WeekNumber:       in.WeekNumber,
		PersonCount:      len(persons),
		Persons:          persons,
		Flags:            team.Flags,
		PointsRaw:        team.Raw,
		PointsNormalized: normalized,
		PointsCumulative: Cumulative(prior, in.WeekNumber) + normalized,
	}
}
