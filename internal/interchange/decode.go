package interchange

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/verte-zerg/speedlesen/internal/model"
)

// Format identifies which export layout a payload uses.
type Format int

// Known payload formats.
const (
	FormatCanonical Format = iota + 1
	FormatLegacy
)

func (f Format) String() string {
	switch f {
	case FormatCanonical:
		return "canonical"
	case FormatLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// Payload is a classified import payload. Exactly one of Canonical and
// Legacy is set, matching Format.
type Payload struct {
	Format    Format
	Canonical *CanonicalPayload
	Legacy    *LegacyPayload
}

// CanonicalPayload is the decoded current export layout.
type CanonicalPayload struct {
	Version  flexNumber  `json:"version"`
	Groups   []groupIn   `json:"groups"`
	Weeks    []weekIn    `json:"weeks"`
	Settings []settingIn `json:"settings"`
}

// LegacyPayload is the decoded older layout with a flat member list.
type LegacyPayload struct {
	Groups   []groupIn   `json:"gruppen"`
	Members  []memberIn  `json:"mitglieder"`
	Weeks    []weekIn    `json:"messungen"`
	Settings []settingIn `json:"settings"`
}

type groupIn struct {
	ID       flexString `json:"id"`
	Personen []memberIn `json:"personen"`
	Members  []memberIn `json:"members"`
}

type memberIn struct {
	ID       flexString `json:"id"`
	PID      flexString `json:"pid"`
	Name     flexString `json:"name"`
	Alias    flexString `json:"alias"`
	GroupID  flexString `json:"groupId"`
	GruppeID flexString `json:"gruppe_id"`
}

type weekIn struct {
	GroupID          flexString      `json:"groupId"`
	Gruppe           flexString      `json:"gruppe"`
	GruppeID         flexString      `json:"gruppe_id"`
	WeekNumber       *flexNumber     `json:"weekNumber"`
	Woche            *flexNumber     `json:"woche"`
	PersonCount      flexNumber      `json:"anzahl_personen"`
	Personen         []measurementIn `json:"personen"`
	Persons          []measurementIn `json:"persons"`
	Flags            flagsIn         `json:"flags"`
	PointsRaw        flexNumber      `json:"punkte_gruppe_roh"`
	PointsNormalized flexNumber      `json:"punkte_gruppe_normalisiert"`
	PointsCumulative flexNumber      `json:"punkte_gruppe_kumuliert"`
	SavedAt          flexTime        `json:"savedAt"`
}

type measurementIn struct {
	PID          flexString `json:"pid"`
	ID           flexString `json:"id"`
	Name         flexString `json:"name"`
	Words3       flexNumber `json:"woerter3"`
	WPM          flexNumber `json:"wpm"`
	WPS          flexNumber `json:"wps"`
	Errors       flexNumber `json:"fehler"`
	WCPM         flexNumber `json:"wcpm"`
	PersonPoints flexNumber `json:"punkte_person"`
}

type flagsIn struct {
	ImprovedWPM   flexBool `json:"improvedWpm"`
	ReducedErrors flexBool `json:"reducedErrors"`
	CoachingMet   flexBool `json:"coachingMet"`
	MissionMet    flexBool `json:"missionMet"`
	FlagA         flexBool `json:"flagA"`
	FlagB         flexBool `json:"flagB"`
	FlagC         flexBool `json:"flagC"`
	FlagD         flexBool `json:"flagD"`
}

type settingIn struct {
	Name  flexString      `json:"name"`
	Value json.RawMessage `json:"value"`
}

// Decode classifies a raw import payload without normalizing it.
// Canonical takes precedence when both layouts' keys are present.
func Decode(data []byte) (Payload, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return Payload{}, &model.FormatError{Reason: "payload is not a JSON object", Err: err}
	}
	if top == nil {
		return Payload{}, &model.FormatError{Reason: "payload is not a JSON object"}
	}

	switch {
	case isArray(top["groups"]) || isArray(top["weeks"]):
		var c CanonicalPayload
		if err := json.Unmarshal(data, &c); err != nil {
			return Payload{}, &model.FormatError{Reason: "malformed canonical payload", Err: err}
		}
		return Payload{Format: FormatCanonical, Canonical: &c}, nil
	case isArray(top["gruppen"]) || isArray(top["mitglieder"]) || isArray(top["messungen"]):
		var l LegacyPayload
		if err := json.Unmarshal(data, &l); err != nil {
			return Payload{}, &model.FormatError{Reason: "malformed legacy payload", Err: err}
		}
		return Payload{Format: FormatLegacy, Legacy: &l}, nil
	default:
		return Payload{}, &model.FormatError{Reason: "payload has neither groups/weeks nor gruppen/mitglieder/messungen arrays"}
	}
}

// Parse decodes and normalizes a payload in one step.
func Parse(data []byte) (model.Snapshot, Format, error) {
	p, err := Decode(data)
	if err != nil {
		return model.Snapshot{}, 0, err
	}
	snap, err := p.Normalize()
	if err != nil {
		return model.Snapshot{}, 0, err
	}
	return snap, p.Format, nil
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// Normalize maps the payload into the stored model. It is the only place
// where the two layouts differ; callers never see anything but the result.
func (p Payload) Normalize() (model.Snapshot, error) {
	switch {
	case p.Format == FormatCanonical && p.Canonical != nil:
		return p.Canonical.normalize()
	case p.Format == FormatLegacy && p.Legacy != nil:
		return p.Legacy.normalize()
	default:
		return model.Snapshot{}, &model.FormatError{Reason: "empty payload"}
	}
}

func (c *CanonicalPayload) normalize() (model.Snapshot, error) {
	rb := newRosterBuilder()
	for i, g := range c.Groups {
		id := model.CleanID(string(g.ID))
		if id == "" {
			return model.Snapshot{}, &model.ValidationError{Op: "import", Field: fmt.Sprintf("groups[%d].id", i)}
		}
		rb.group(id)
		members := g.Personen
		if len(members) == 0 {
			members = g.Members
		}
		for j, m := range members {
			if err := rb.member(id, m, fmt.Sprintf("groups[%d].personen[%d]", i, j)); err != nil {
				return model.Snapshot{}, err
			}
		}
	}
	return finish(rb, c.Weeks, c.Settings, "weeks")
}

func (l *LegacyPayload) normalize() (model.Snapshot, error) {
	rb := newRosterBuilder()
	for i, g := range l.Groups {
		id := model.CleanID(string(g.ID))
		if id == "" {
			return model.Snapshot{}, &model.ValidationError{Op: "import", Field: fmt.Sprintf("gruppen[%d].id", i)}
		}
		rb.group(id)
	}
	for i, m := range l.Members {
		gid := firstNonEmpty(m.GruppeID, m.GroupID)
		if gid == "" {
			return model.Snapshot{}, &model.ValidationError{Op: "import", Field: fmt.Sprintf("mitglieder[%d].gruppe_id", i)}
		}
		rb.group(gid)
		if err := rb.member(gid, m, fmt.Sprintf("mitglieder[%d]", i)); err != nil {
			return model.Snapshot{}, err
		}
	}
	return finish(rb, l.Weeks, l.Settings, "messungen")
}

func finish(rb *rosterBuilder, weeks []weekIn, settings []settingIn, weeksField string) (model.Snapshot, error) {
	snap := model.Snapshot{}
	seen := map[string]int{}
	for i, w := range weeks {
		week, err := normalizeWeek(w, fmt.Sprintf("%s[%d]", weeksField, i))
		if err != nil {
			return model.Snapshot{}, err
		}
		rb.group(week.GroupID)
		if idx, ok := seen[week.Key]; ok {
			snap.Weeks[idx] = week
			continue
		}
		seen[week.Key] = len(snap.Weeks)
		snap.Weeks = append(snap.Weeks, week)
	}

	byName := map[string]int{}
	for i, s := range settings {
		name := model.CleanID(string(s.Name))
		if name == "" {
			return model.Snapshot{}, &model.ValidationError{Op: "import", Field: fmt.Sprintf("settings[%d].name", i)}
		}
		value, err := CompactValue(s.Value)
		if err != nil {
			return model.Snapshot{}, &model.FormatError{Reason: fmt.Sprintf("settings[%d].value", i), Err: err}
		}
		setting := model.Setting{Name: name, Value: value}
		if idx, ok := byName[name]; ok {
			snap.Settings[idx] = setting
			continue
		}
		byName[name] = len(snap.Settings)
		snap.Settings = append(snap.Settings, setting)
	}

	snap.Groups = rb.groups()
	return snap, nil
}

func normalizeWeek(w weekIn, path string) (model.Week, error) {
	gid := firstNonEmpty(w.GroupID, w.Gruppe, w.GruppeID)
	num := w.WeekNumber
	if num == nil {
		num = w.Woche
	}
	if num == nil {
		return model.Week{}, &model.ValidationError{Op: "import", Field: path + ".weekNumber"}
	}
	n := float64(*num)
	if math.IsInf(n, 0) || n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
		return model.Week{}, &model.ValidationError{Op: "import", Field: path + ".weekNumber", Msg: "must be an integer"}
	}

	persons := w.Personen
	if len(persons) == 0 {
		persons = w.Persons
	}
	week := model.Week{
		GroupID:     gid,
		WeekNumber:  int(n),
		PersonCount: int(w.PersonCount),
		Persons:     make([]model.PersonMeasurement, 0, len(persons)),
		Flags: model.Flags{
			ImprovedWPM:   bool(w.Flags.ImprovedWPM || w.Flags.FlagA),
			ReducedErrors: bool(w.Flags.ReducedErrors || w.Flags.FlagB),
			CoachingMet:   bool(w.Flags.CoachingMet || w.Flags.FlagC),
			MissionMet:    bool(w.Flags.MissionMet || w.Flags.FlagD),
		},
		PointsRaw:        float64(w.PointsRaw),
		PointsNormalized: float64(w.PointsNormalized),
		PointsCumulative: float64(w.PointsCumulative),
		SavedAt:          time.Time(w.SavedAt),
	}
	for _, p := range persons {
		week.Persons = append(week.Persons, model.PersonMeasurement{
			PID:          firstNonEmpty(p.PID, p.ID),
			Name:         string(p.Name),
			Words3Min:    float64(p.Words3),
			WPM:          float64(p.WPM),
			WPS:          float64(p.WPS),
			Errors:       float64(p.Errors),
			WCPM:         float64(p.WCPM),
			PersonPoints: float64(p.PersonPoints),
		})
	}
	normalized, err := model.NormalizeWeek("import", week)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			verr.Field = path + "." + verr.Field
		}
		return model.Week{}, err
	}
	return normalized, nil
}

// CompactValue returns raw with insignificant whitespace removed; empty input
// becomes JSON null.
func CompactValue(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return json.RawMessage("null"), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}

func firstNonEmpty(values ...flexString) string {
	for _, v := range values {
		if s := model.CleanID(string(v)); s != "" {
			return s
		}
	}
	return ""
}
