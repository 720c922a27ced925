// Package statsui provides the Bubble Tea group board.
package statsui

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/speedlesen/internal/stats"
)

const (
	paneOverview = iota
	paneWeeks
)

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Model is a read-only board with one tab per group.
type Model struct {
	ctx    context.Context
	reader stats.Reader

	reports []stats.GroupReport
	errMsg  string

	activeTab int
	pane      int
	overview  viewport.Model
	weekTable table.Model
	width     int
	height    int
}

// NewModel loads every group report from reader.
func NewModel(ctx context.Context, reader stats.Reader) *Model {
	m := &Model{
		ctx:       ctx,
		reader:    reader,
		overview:  viewport.New(0, 0),
		weekTable: buildWeekTable(stats.GroupReport{}, 0, 1),
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.renderActive()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			return m, tea.Quit
		}
		switch msg.String() {
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "tab", "w":
			if m.pane == paneOverview {
				m.pane = paneWeeks
				m.weekTable.Focus()
			} else {
				m.pane = paneOverview
				m.weekTable.Blur()
			}
			return m, nil
		case "r":
			m.refresh()
			return m, nil
		case "g", "home":
			if m.pane == paneWeeks {
				m.weekTable.GotoTop()
			} else {
				m.overview.GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.pane == paneWeeks {
				m.weekTable.GotoBottom()
			} else {
				m.overview.GotoBottom()
			}
			return m, nil
		default:
			var cmd tea.Cmd
			if m.pane == paneWeeks {
				m.weekTable, cmd = m.weekTable.Update(msg)
			} else {
				m.overview, cmd = m.overview.Update(msg)
			}
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

// ActiveGroup returns the id of the group on the selected tab.
func (m *Model) ActiveGroup() string {
	if len(m.reports) == 0 {
		return ""
	}
	return m.reports[m.activeTab].GroupID
}

func (m *Model) refresh() {
	reports, err := stats.BuildReports(m.ctx, m.reader)
	if err != nil {
		m.errMsg = err.Error()
		return
	}
	m.errMsg = ""
	m.reports = reports
	if m.activeTab >= len(reports) {
		m.activeTab = 0
	}
	m.renderActive()
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := lipgloss.Height(activeNavStyle.Render("X"))
	if tabsHeight < 1 {
		tabsHeight = 1
	}
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = m.height - headerHeight - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) moveTab(delta int) {
	count := len(m.reports)
	if count == 0 {
		return
	}
	next := m.activeTab + delta
	if next < 0 {
		next = count - 1
	}
	if next >= count {
		next = 0
	}
	m.activeTab = next
	m.renderActive()
}

func (m *Model) renderActive() {
	width := m.width
	if width <= 0 {
		width = 80
	}
	_, bodyHeight, _ := m.layoutHeights()
	m.overview.Width = width
	m.overview.Height = bodyHeight
	if len(m.reports) == 0 {
		m.overview.SetContent("No groups found.")
		m.weekTable = buildWeekTable(stats.GroupReport{}, width, bodyHeight)
		return
	}
	r := m.reports[m.activeTab]
	m.overview.SetContent(renderOverview(r, width))
	m.overview.GotoTop()
	m.weekTable = buildWeekTable(r, width, bodyHeight)
	if m.pane == paneWeeks {
		m.weekTable.Focus()
	}
}

func (m *Model) renderTabs() string {
	if len(m.reports) == 0 {
		return inactiveNavStyle.Render("no groups")
	}
	parts := make([]string, 0, len(m.reports))
	for i, r := range m.reports {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(r.GroupID))
		} else {
			parts = append(parts, inactiveNavStyle.Render(r.GroupID))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	tabs := padLines(m.renderTabs(), m.width)
	summary := "Overview"
	if m.pane == paneWeeks {
		summary = "Weeks"
	}
	if len(m.reports) > 0 {
		r := m.reports[m.activeTab]
		summary = fmt.Sprintf("%s  group=%s  readers=%d  weeks=%d", summary, r.GroupID, len(r.Members), len(r.Weeks))
	}
	return tabs + "\n" + headerStyle.Render(truncateLine(summary, m.width))
}

func (m *Model) renderFooter() string {
	help := headerStyle.Render("Groups: left/right  Pane: tab  Scroll: up/down/pgup/pgdn  Reload: r  Quit: q")
	if m.errMsg != "" {
		return help + "\n" + errorStyle.Render(m.errMsg)
	}
	return help
}

func (m *Model) renderBody() string {
	if m.pane == paneWeeks && len(m.reports) > 0 {
		if len(m.reports[m.activeTab].Weeks) == 0 {
			return "No weeks recorded."
		}
		return tableMutedStyle.Render(m.weekTable.View())
	}
	return m.overview.View()
}

func renderOverview(r stats.GroupReport, width int) string {
	var buf bytes.Buffer
	buf.WriteString(renderSummaryCards(r, width))
	buf.WriteString("\n\n")
	if err := stats.PlotPoints(&buf, r, width, true); err != nil {
		return fmt.Sprintf("Failed to render points: %v", err)
	}
	if err := stats.RenderReaders(&buf, r); err != nil {
		return fmt.Sprintf("Failed to render readers: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func renderSummaryCards(r stats.GroupReport, width int) string {
	levelUp := "-"
	if r.LastLevelUp > 0 {
		levelUp = "W" + strconv.Itoa(r.LastLevelUp)
	}
	cards := []string{
		metricCard("Points", fmt.Sprintf("%.1f", r.Cumulative)),
		metricCard("Level", string(r.Level)),
		metricCard("Level-up", levelUp),
		metricCard("Median WCPM", fmt.Sprintf("%.1f", r.MedianWCPM)),
	}
	if width < 60 {
		return strings.Join(cards, "\n")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func buildWeekTable(r stats.GroupReport, width, height int) table.Model {
	columns := []table.Column{
		{Title: "Week", Width: 5},
		{Title: "Readers", Width: 8},
		{Title: "Flags", Width: 6},
		{Title: "Raw", Width: 5},
		{Title: "Normalized", Width: 11},
		{Title: "Cumulative", Width: 11},
		{Title: "Saved", Width: 20},
	}
	rows := make([]table.Row, 0, len(r.Weeks))
	for _, wk := range r.Weeks {
		saved := "-"
		if !wk.SavedAt.IsZero() {
			saved = wk.SavedAt.UTC().Format("2006-01-02 15:04")
		}
		rows = append(rows, table.Row{
			strconv.Itoa(wk.WeekNumber),
			strconv.Itoa(wk.PersonCount),
			stats.FlagString(wk.Flags),
			fmt.Sprintf("%.1f", wk.PointsRaw),
			fmt.Sprintf("%.2f", wk.PointsNormalized),
			fmt.Sprintf("%.2f", wk.PointsCumulative),
			saved,
		})
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(maxInt(1, height-1)),
	)
	t.SetWidth(width)
	t.SetStyles(weekTableStyles())
	return t
}

func weekTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
