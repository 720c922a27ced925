package stats

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/verte-zerg/speedlesen/internal/model"
)

// RenderSummary prints one line per group.
func RenderSummary(w io.Writer, reports []GroupReport) error {
	if len(reports) == 0 {
		_, err := fmt.Fprintln(w, "No groups found.")
		return err
	}
	if _, err := fmt.Fprintln(w, "Summary"); err != nil {
		return err
	}
	headers := []string{"Group", "Readers", "Weeks", "Points", "Level", "Level-up", "Median WCPM"}
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		levelUp := "-"
		if r.LastLevelUp > 0 {
			levelUp = "W" + strconv.Itoa(r.LastLevelUp)
		}
		rows = append(rows, []string{
			r.GroupID,
			strconv.Itoa(len(r.Members)),
			strconv.Itoa(len(r.Weeks)),
			fmt.Sprintf("%.1f", r.Cumulative),
			string(r.Level),
			levelUp,
			fmt.Sprintf("%.1f", r.MedianWCPM),
		})
	}
	return writeTable(w, headers, rows, map[int]bool{1: true, 2: true, 3: true, 6: true})
}

// RenderWeeks prints the weekly records of one group.
func RenderWeeks(w io.Writer, r GroupReport) error {
	if _, err := fmt.Fprintf(w, "Weeks (%s)\n", r.GroupID); err != nil {
		return err
	}
	if len(r.Weeks) == 0 {
		_, err := fmt.Fprintln(w, "No weeks recorded.")
		return err
	}
	headers := []string{"Week", "Readers", "Flags", "Raw", "Normalized", "Cumulative"}
	rows := make([][]string, 0, len(r.Weeks))
	for _, wk := range r.Weeks {
		rows = append(rows, []string{
			strconv.Itoa(wk.WeekNumber),
			strconv.Itoa(wk.PersonCount),
			FlagString(wk.Flags),
			fmt.Sprintf("%.1f", wk.PointsRaw),
			fmt.Sprintf("%.2f", wk.PointsNormalized),
			fmt.Sprintf("%.2f", wk.PointsCumulative),
		})
	}
	return writeTable(w, headers, rows, map[int]bool{0: true, 1: true, 3: true, 4: true, 5: true})
}

// RenderReaders prints per-reader progress for one group.
func RenderReaders(w io.Writer, r GroupReport) error {
	if _, err := fmt.Fprintf(w, "Readers (%s)\n", r.GroupID); err != nil {
		return err
	}
	progress := r.Progress()
	if len(progress) == 0 {
		_, err := fmt.Fprintln(w, "No readers on the roster.")
		return err
	}
	headers := []string{"Reader", "PID", "Weeks", "First WPM", "Last WPM", "Change", "Last WCPM"}
	rows := make([][]string, 0, len(progress))
	for _, p := range progress {
		rows = append(rows, []string{
			p.Person.DisplayName(),
			p.Person.PID,
			strconv.Itoa(p.Weeks),
			fmt.Sprintf("%.1f", p.FirstWPM),
			fmt.Sprintf("%.1f", p.LastWPM),
			fmt.Sprintf("%+.1f", p.LastWPM-p.FirstWPM),
			fmt.Sprintf("%.1f", p.LastWCPM),
		})
	}
	return writeTable(w, headers, rows, map[int]bool{2: true, 3: true, 4: true, 5: true, 6: true})
}

// FlagString renders the four weekly flags as letters, with a dot for each
// flag not met.
func FlagString(f model.Flags) string {
	var b strings.Builder
	for i, set := range []bool{f.ImprovedWPM, f.ReducedErrors, f.CoachingMet, f.MissionMet} {
		if set {
			b.WriteByte("ABCD"[i])
		} else {
			b.WriteByte('.')
		}
	}
	return b.String()
}

func writeTable(w io.Writer, headers []string, rows [][]string, rightAlign map[int]bool) error {
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}
