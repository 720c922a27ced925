// Package interchange converts between the stored model and the JSON
// export formats.
package interchange

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/verte-zerg/speedlesen/internal/model"
)

// Version is written to the version field of every export.
const Version = 2

// Document is the canonical export shape.
type Document struct {
	Version    int          `json:"version"`
	Groups     []GroupDoc   `json:"groups"`
	Weeks      []WeekDoc    `json:"weeks"`
	Settings   []SettingDoc `json:"settings"`
	ExportedAt string       `json:"exportedAt"`
}

// GroupDoc is a group with its embedded roster.
type GroupDoc struct {
	ID      string      `json:"id"`
	Persons []PersonDoc `json:"personen"`
}

// PersonDoc is a roster entry.
type PersonDoc struct {
	PID   string `json:"pid"`
	Name  string `json:"name"`
	Alias string `json:"alias"`
}

// WeekDoc is one week record.
type WeekDoc struct {
	GroupID          string           `json:"groupId"`
	WeekNumber       int              `json:"weekNumber"`
	PersonCount      int              `json:"anzahl_personen"`
	Persons          []MeasurementDoc `json:"personen"`
	Flags            FlagsDoc         `json:"flags"`
	PointsRaw        float64          `json:"punkte_gruppe_roh"`
	PointsNormalized float64          `json:"punkte_gruppe_normalisiert"`
	PointsCumulative float64          `json:"punkte_gruppe_kumuliert"`
	SavedAt          string           `json:"savedAt,omitempty"`
}

// MeasurementDoc is one reader's result within a week.
type MeasurementDoc struct {
	PID          string  `json:"pid"`
	Name         string  `json:"name"`
	Alias        string  `json:"alias"`
	Words3Min    float64 `json:"woerter3"`
	WPM          float64 `json:"wpm"`
	WPS          float64 `json:"wps"`
	Errors       float64 `json:"fehler"`
	WCPM         float64 `json:"wcpm"`
	PersonPoints float64 `json:"punkte_person"`
}

// FlagsDoc holds the weekly flags.
type FlagsDoc struct {
	ImprovedWPM   bool `json:"improvedWpm"`
	ReducedErrors bool `json:"reducedErrors"`
	CoachingMet   bool `json:"coachingMet"`
	MissionMet    bool `json:"missionMet"`
}

// SettingDoc is a named setting.
type SettingDoc struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// Export builds the canonical document for a snapshot. Output ordering is
// deterministic: groups by id, weeks by group then week number, settings by
// name.
func Export(snap model.Snapshot, exportedAt time.Time) Document {
	doc := Document{
		Version:    Version,
		Groups:     make([]GroupDoc, 0, len(snap.Groups)),
		Weeks:      make([]WeekDoc, 0, len(snap.Weeks)),
		Settings:   make([]SettingDoc, 0, len(snap.Settings)),
		ExportedAt: exportedAt.UTC().Format(time.RFC3339Nano),
	}

	aliases := map[string]map[string]string{}
	groups := append([]model.Group(nil), snap.Groups...)
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	for _, g := range groups {
		gd := GroupDoc{ID: g.ID, Persons: make([]PersonDoc, 0, len(g.Members))}
		byPID := make(map[string]string, len(g.Members))
		for _, m := range g.Members {
			alias := m.DisplayName()
			gd.Persons = append(gd.Persons, PersonDoc{PID: m.PID, Name: m.Name, Alias: alias})
			byPID[m.PID] = alias
		}
		aliases[g.ID] = byPID
		doc.Groups = append(doc.Groups, gd)
	}

	weeks := append([]model.Week(nil), snap.Weeks...)
	sort.SliceStable(weeks, func(i, j int) bool {
		if weeks[i].GroupID == weeks[j].GroupID {
			return weeks[i].WeekNumber < weeks[j].WeekNumber
		}
		return weeks[i].GroupID < weeks[j].GroupID
	})
	for _, w := range weeks {
		doc.Weeks = append(doc.Weeks, exportWeek(w, aliases[w.GroupID]))
	}

	settings := append([]model.Setting(nil), snap.Settings...)
	sort.SliceStable(settings, func(i, j int) bool { return settings[i].Name < settings[j].Name })
	for _, s := range settings {
		value := s.Value
		if len(value) == 0 {
			value = json.RawMessage("null")
		}
		doc.Settings = append(doc.Settings, SettingDoc{Name: s.Name, Value: value})
	}
	return doc
}

func exportWeek(w model.Week, aliases map[string]string) WeekDoc {
	wd := WeekDoc{
		GroupID:     w.GroupID,
		WeekNumber:  w.WeekNumber,
		PersonCount: w.PersonCount,
		Persons:     make([]MeasurementDoc, 0, len(w.Persons)),
		Flags: FlagsDoc{
			ImprovedWPM:   w.Flags.ImprovedWPM,
			ReducedErrors: w.Flags.ReducedErrors,
			CoachingMet:   w.Flags.CoachingMet,
			MissionMet:    w.Flags.MissionMet,
		},
		PointsRaw:        w.PointsRaw,
		PointsNormalized: w.PointsNormalized,
		PointsCumulative: w.PointsCumulative,
	}
	if !w.SavedAt.IsZero() {
		wd.SavedAt = w.SavedAt.UTC().Format(time.RFC3339Nano)
	}
	for _, p := range w.Persons {
		alias := aliases[p.PID]
		if alias == "" {
			alias = p.Name
		}
		wd.Persons = append(wd.Persons, MeasurementDoc{
			PID:          p.PID,
			Name:         p.Name,
			Alias:        alias,
			Words3Min:    p.Words3Min,
			WPM:          p.WPM,
			WPS:          p.WPS,
			Errors:       p.Errors,
			WCPM:         p.WCPM,
			PersonPoints: p.PersonPoints,
		})
	}
	return wd
}
