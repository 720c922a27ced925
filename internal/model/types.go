// Package model defines shared data structures.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Scoring modes stored under the SettingMode setting.
const (
	ModeStandard = "standard"
	ModeStrict   = "strikt"
)

// SettingMode is the setting name holding the scoring mode.
const SettingMode = "mode"

// Person is a roster entry embedded in a group.
type Person struct {
	PID   string
	Name  string
	Alias string
}

// Group is a cohort tracked together across weeks.
type Group struct {
	ID      string
	Members []Person
}

// Flags holds the four weekly achievement flags.
type Flags struct {
	ImprovedWPM   bool
	ReducedErrors bool
	CoachingMet   bool
	MissionMet    bool
}

// PersonMeasurement is one reader's result inside a week.
type PersonMeasurement struct {
	PID          string
	Name         string
	Words3Min    float64
	WPM          float64
	WPS          float64
	Errors       float64
	WCPM         float64
	PersonPoints float64
}

// Week is one group's measurement record for one numbered week.
type Week struct {
	Key              string
	GroupID          string
	WeekNumber       int
	PersonCount      int
	Persons          []PersonMeasurement
	Flags            Flags
	PointsRaw        float64
	PointsNormalized float64
	PointsCumulative float64
	SavedAt          time.Time
}

// Setting is a named JSON value.
type Setting struct {
	Name  string
	Value json.RawMessage
}

// Snapshot holds the full contents of all collections.
type Snapshot struct {
	Groups   []Group
	Weeks    []Week
	Settings []Setting
}

// WeekKey builds the composite key of a week record.
func WeekKey(groupID string, weekNumber int) string {
	return fmt.Sprintf("%s_W%d", groupID, weekNumber)
}

// DisplayName returns the alias, falling back to the name.
func (p Person) DisplayName() string {
	if p.Alias != "" {
		return p.Alias
	}
	return p.Name
}
