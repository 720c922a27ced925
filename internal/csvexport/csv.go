// Package csvexport writes weekly results as one CSV row per reader.
package csvexport

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/verte-zerg/speedlesen/internal/model"
)

// Header is the fixed column order.
var Header = []string{
	"Woche",
	"Gruppe",
	"Anzahl-Personen",
	"Leser-Name",
	"Wörter_3min",
	"WPM",
	"WPS",
	"Fehler",
	"WCPM",
	"A_WPM_verbessert",
	"B_Fehler_reduziert",
	"Coaching",
	"Mission",
	"Punkte-Gruppe-Roh",
	"Punkte-Gruppe-Normalisiert",
	"Punkte-Gruppe-Kumuliert",
}

// Rows flattens weeks into CSV records. Reader names use the roster alias
// when the group has one. A week without readers yields one row with empty
// reader cells.
func Rows(groups []model.Group, weeks []model.Week) [][]string {
	aliases := map[string]map[string]string{}
	for _, g := range groups {
		m := make(map[string]string, len(g.Members))
		for _, p := range g.Members {
			m[p.PID] = p.DisplayName()
		}
		aliases[g.ID] = m
	}

	var rows [][]string
	for _, w := range weeks {
		weekCells := func(name string, p *model.PersonMeasurement) []string {
			row := []string{
				strconv.Itoa(w.WeekNumber),
				w.GroupID,
				strconv.Itoa(w.PersonCount),
				name,
				"", "", "", "", "",
				strconv.FormatBool(w.Flags.ImprovedWPM),
				strconv.FormatBool(w.Flags.ReducedErrors),
				strconv.FormatBool(w.Flags.CoachingMet),
				strconv.FormatBool(w.Flags.MissionMet),
				formatNumber(w.PointsRaw),
				formatNumber(w.PointsNormalized),
				formatNumber(w.PointsCumulative),
			}
			if p != nil {
				row[4] = formatNumber(p.Words3Min)
				row[5] = formatNumber(p.WPM)
				row[6] = formatNumber(p.WPS)
				row[7] = formatNumber(p.Errors)
				row[8] = formatNumber(p.WCPM)
			}
			return row
		}
		if len(w.Persons) == 0 {
			rows = append(rows, weekCells("", nil))
			continue
		}
		for i := range w.Persons {
			p := &w.Persons[i]
			name := aliases[w.GroupID][p.PID]
			if name == "" {
				name = p.Name
			}
			rows = append(rows, weekCells(name, p))
		}
	}
	return rows
}

// Write emits the header and rows, one line each.
func Write(w io.Writer, rows [][]string) error {
	bw := bufio.NewWriter(w)
	if err := writeLine(bw, Header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writeLine(bw, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeLine(w *bufio.Writer, cells []string) error {
	for i, cell := range cells {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(Escape(cell)); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

// Escape quotes a cell containing a comma, semicolon, quote or newline and
// doubles its inner quotes.
func Escape(cell string) string {
	if !strings.ContainsAny(cell, ",;\"\n") {
		return cell
	}
	return `"` + strings.ReplaceAll(cell, `"`, `""`) + `"`
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(model.Finite(v), 'f', -1, 64)
}
