package interchange

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/speedlesen/internal/model"
)

func TestDecodeClassifies(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Format
	}{
		{"canonical groups", `{"groups": []}`, FormatCanonical},
		{"canonical weeks", `{"weeks": [], "version": 2}`, FormatCanonical},
		{"legacy gruppen", `{"gruppen": []}`, FormatLegacy},
		{"legacy messungen", `{"messungen": []}`, FormatLegacy},
		{"both prefers canonical", `{"groups": [], "gruppen": []}`, FormatCanonical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Decode([]byte(tc.in))
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.Format)
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	for _, in := range []string{
		`not json`,
		`[]`,
		`null`,
		`"text"`,
		`{}`,
		`{"groups": {}}`,
		`{"foo": [1]}`,
		`{"groups": [{"id": {"nested": true}}]}`,
	} {
		_, err := Decode([]byte(in))
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, model.ErrFormat), "%s: %v", in, err)
	}
}

func TestNormalizeLegacy(t *testing.T) {
	in := `{
		"gruppen": [{"id": "B"}, {"id": 7}],
		"mitglieder": [
			{"id": "b1", "gruppe_id": "B", "name": "Bo"},
			{"id": 2, "gruppe_id": 7, "name": "Kai", "alias": "K"}
		],
		"messungen": [
			{"gruppe": "B", "woche": "1", "anzahl_personen": null,
			 "personen": [{"pid": "b1", "name": "Bo", "woerter3": "90", "wpm": 30, "fehler": null, "wcpm": 30, "punkte_person": 1}],
			 "flags": {"flagA": 1, "flagB": "", "flagC": "yes", "flagD": "false"},
			 "punkte_gruppe_roh": "5", "punkte_gruppe_normalisiert": 10, "punkte_gruppe_kumuliert": 10,
			 "savedAt": 1700000000000}
		]
	}`
	snap, format, err := Parse([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, FormatLegacy, format)

	require.Len(t, snap.Groups, 2)
	assert.Equal(t, model.Group{ID: "B", Members: []model.Person{{PID: "b1", Name: "Bo", Alias: "Bo"}}}, snap.Groups[0])
	assert.Equal(t, model.Group{ID: "7", Members: []model.Person{{PID: "2", Name: "Kai", Alias: "K"}}}, snap.Groups[1])

	require.Len(t, snap.Weeks, 1)
	w := snap.Weeks[0]
	assert.Equal(t, "B_W1", w.Key)
	assert.Equal(t, 1, w.PersonCount)
	assert.Equal(t, 90.0, w.Persons[0].Words3Min)
	assert.Equal(t, 0.0, w.Persons[0].Errors)
	assert.Equal(t, model.Flags{ImprovedWPM: true, CoachingMet: true}, w.Flags)
	assert.Equal(t, 5.0, w.PointsRaw)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), w.SavedAt)
}

func TestNormalizeCanonical(t *testing.T) {
	in := `{
		"version": 2,
		"groups": [{"id": "A", "personen": [{"pid": "a1", "name": "Ann", "alias": "Annie"}, {"pid": "a1", "name": "Ann", "alias": "A."}]}],
		"weeks": [
			{"groupId": "A", "weekNumber": 1, "personen": [{"pid": "a1", "name": "Ann", "wpm": 50}], "flags": {"improvedWpm": true}},
			{"groupId": "A", "weekNumber": 1, "personen": [{"pid": "a1", "name": "Ann", "wpm": 55}]},
			{"groupId": "N", "weekNumber": 2, "personen": [{"name": "Nia"}]}
		],
		"settings": [{"name": "mode", "value": "strikt"}, {"name": "mode", "value": "standard"}, {"name": "empty"}]
	}`
	snap, format, err := Parse([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, FormatCanonical, format)

	require.Len(t, snap.Groups, 2)
	assert.Equal(t, []model.Person{{PID: "a1", Name: "Ann", Alias: "A."}}, snap.Groups[0].Members)
	assert.Equal(t, "N", snap.Groups[1].ID)

	require.Len(t, snap.Weeks, 2)
	assert.Equal(t, 55.0, snap.Weeks[0].Persons[0].WPM, "later duplicate wins")
	assert.False(t, snap.Weeks[0].Flags.ImprovedWPM)
	assert.Equal(t, "Nia", snap.Weeks[1].Persons[0].PID)

	require.Len(t, snap.Settings, 2)
	assert.JSONEq(t, `"standard"`, string(snap.Settings[0].Value))
	assert.Equal(t, "null", string(snap.Settings[1].Value))
}

func TestNormalizeValidation(t *testing.T) {
	cases := map[string]string{
		"groups[0].id":              `{"groups": [{"personen": []}]}`,
		"groups[0].personen[0].pid": `{"groups": [{"id": "A", "personen": [{"alias": "x"}]}]}`,
		"weeks[0].groupId":          `{"weeks": [{"weekNumber": 1}]}`,
		"weeks[0].weekNumber":       `{"weeks": [{"groupId": "A"}]}`,
		"weeks[1].persons[0].pid":   `{"weeks": [{"groupId": "A", "weekNumber": 1}, {"groupId": "A", "weekNumber": 2, "personen": [{"wpm": 1}]}]}`,
		"mitglieder[0].gruppe_id":   `{"mitglieder": [{"id": "x"}]}`,
		"messungen[0].weekNumber":   `{"messungen": [{"gruppe": "B", "woche": 1.5}]}`,
		"settings[0].name":          `{"groups": [], "settings": [{"value": 1}]}`,
	}
	for field, in := range cases {
		t.Run(field, func(t *testing.T) {
			_, _, err := Parse([]byte(in))
			var verr *model.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, field, verr.Field)
			assert.True(t, errors.Is(err, model.ErrValidation))
		})
	}
}

func TestNormalizeRejectsOutOfRangeWeekNumbers(t *testing.T) {
	for _, num := range []string{`"Inf"`, `"-Infinity"`, `"NaN"`, `1e300`, `"3000000000"`} {
		t.Run(num, func(t *testing.T) {
			_, _, err := Parse([]byte(`{"weeks": [{"groupId": "A", "weekNumber": ` + num + `}]}`))
			var verr *model.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, "weeks[0].weekNumber", verr.Field)
		})
	}
}

func TestExportOrdering(t *testing.T) {
	snap := model.Snapshot{
		Groups: []model.Group{{ID: "b"}, {ID: "a", Members: []model.Person{{PID: "p", Name: "P", Alias: "Pi"}}}},
		Weeks: []model.Week{
			{Key: "b_W1", GroupID: "b", WeekNumber: 1},
			{Key: "a_W10", GroupID: "a", WeekNumber: 10},
			{Key: "a_W2", GroupID: "a", WeekNumber: 2, Persons: []model.PersonMeasurement{{PID: "p", Name: "P"}, {PID: "q", Name: "Q"}}},
		},
		Settings: []model.Setting{{Name: "z", Value: json.RawMessage(`1`)}, {Name: "m"}},
	}
	doc := Export(snap, time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600)))

	assert.Equal(t, Version, doc.Version)
	assert.Equal(t, "2024-01-02T02:04:05Z", doc.ExportedAt)
	assert.Equal(t, "a", doc.Groups[0].ID)
	assert.Equal(t, []int{2, 10, 1}, []int{doc.Weeks[0].WeekNumber, doc.Weeks[1].WeekNumber, doc.Weeks[2].WeekNumber})
	assert.Equal(t, "Pi", doc.Weeks[0].Persons[0].Alias)
	assert.Equal(t, "Q", doc.Weeks[0].Persons[1].Alias)
	assert.Equal(t, "", doc.Weeks[0].SavedAt)
	assert.Equal(t, "m", doc.Settings[0].Name)
	assert.Equal(t, json.RawMessage("null"), doc.Settings[0].Value)
}

func TestExportParseRoundTrip(t *testing.T) {
	saved := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC)
	snap := model.Snapshot{
		Groups: []model.Group{{ID: "A", Members: []model.Person{{PID: "a1", Name: "Ann", Alias: "Annie"}}}},
		Weeks: []model.Week{{
			Key:         "A_W3",
			GroupID:     "A",
			WeekNumber:  3,
			PersonCount: 1,
			Persons: []model.PersonMeasurement{{
				PID:          "a1",
				Name:         "Ann",
				Words3Min:    151,
				WPM:          151.0 / 3,
				WPS:          151.0 / 180,
				Errors:       2,
				WCPM:         151.0/3 - 2,
				PersonPoints: 1,
			}},
			Flags:            model.Flags{ImprovedWPM: true, MissionMet: true},
			PointsRaw:        5,
			PointsNormalized: 10,
			PointsCumulative: 22.5,
			SavedAt:          saved,
		}},
		Settings: []model.Setting{{Name: "mode", Value: json.RawMessage(`"strikt"`)}},
	}
	data, err := json.Marshal(Export(snap, saved))
	require.NoError(t, err)

	got, format, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, FormatCanonical, format)
	assert.Equal(t, snap, got)
}
