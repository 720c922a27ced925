package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/verte-zerg/speedlesen/internal/scoring"
)

const (
	minBarWidth         = 10
	barRune             = '█'
	colorReset          = "\x1b[0m"
	terminalWidthBackup = 80
)

var levelColors = map[scoring.Level]string{
	scoring.LevelStarter:    "\x1b[37m",
	scoring.LevelReader:     "\x1b[36m",
	scoring.LevelSpeedster:  "\x1b[33m",
	scoring.LevelFlowMaster: "\x1b[35m",
}

// PlotPoints renders cumulative normalized points as one horizontal bar per
// week, colored by the level reached. A width of 0 uses the terminal width.
func PlotPoints(w io.Writer, r GroupReport, width int, forceColor bool) error {
	series := r.CumulativeSeries()
	if len(series) == 0 {
		return nil
	}
	if width <= 0 {
		width = terminalWidth()
	}

	labels := make([]string, len(series))
	values := make([]string, len(series))
	labelWidth, valueWidth := 0, 0
	for i, wk := range r.Weeks {
		labels[i] = fmt.Sprintf("W%d", wk.WeekNumber)
		values[i] = fmt.Sprintf("%.1f %s", series[i], scoring.LevelFor(series[i]))
		labelWidth = max(labelWidth, displayWidth(labels[i]))
		valueWidth = max(valueWidth, displayWidth(values[i]))
	}
	barWidth := BarWidthFor(width, labelWidth, valueWidth)

	maxVal := 0.0
	for _, v := range series {
		maxVal = math.Max(maxVal, v)
	}

	useColor := shouldUseColor(w, forceColor)
	if _, err := fmt.Fprintf(w, "Points (%s)\n", r.GroupID); err != nil {
		return err
	}
	for i, v := range series {
		n := 0
		if maxVal > 0 && v > 0 {
			n = int(math.Round(v / maxVal * float64(barWidth)))
		}
		bar := strings.Repeat(string(barRune), n)
		if useColor && n > 0 {
			bar = levelColors[scoring.LevelFor(v)] + bar + colorReset
		}
		line := padCell(labels[i], labelWidth, true) + " │" + bar +
			strings.Repeat(" ", barWidth-n) + " " + values[i]
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// BarWidthFor computes the bar area left after the label and value columns.
func BarWidthFor(totalWidth, labelWidth, valueWidth int) int {
	if totalWidth <= 0 {
		return minBarWidth
	}
	bar := totalWidth - labelWidth - valueWidth - 3
	if bar < minBarWidth {
		bar = minBarWidth
	}
	return bar
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func shouldUseColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}
