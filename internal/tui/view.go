package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/logdeck/internal/model"
)

var (
	ColorGray  = lipgloss.Color("240")
	ColorWhite = lipgloss.Color("7")
	ColorCyan  = lipgloss.Color("39")
	ColorRed   = lipgloss.Color("#FF4444")
	ColorAmber = lipgloss.Color("#FFAA00")
	ColorGreen = lipgloss.Color("#44FF44")
	ColorBlue  = lipgloss.Color("#6699FF")

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorWhite)
	dimStyle    = lipgloss.NewStyle().Foreground(ColorGray)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6666")).Bold(true)
	pausedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(ColorAmber).Bold(true).Padding(0, 1)
	sourceStyle = lipgloss.NewStyle().Foreground(ColorCyan)
)

// levelStyle colors a level badge.
func levelStyle(l model.Level) lipgloss.Style {
	switch l {
	case model.LevelError:
		return lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	case model.LevelWarn:
		return lipgloss.NewStyle().Foreground(ColorAmber)
	case model.LevelInfo:
		return lipgloss.NewStyle().Foreground(ColorGreen)
	default:
		return lipgloss.NewStyle().Foreground(ColorBlue)
	}
}

const (
	headerLines = 2
	footerLines = 1
)

func (m *TailModel) resize() {
	h := m.height - headerLines - footerLines
	if m.searchActive {
		h--
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(0, h)
	m.searchInput.Width = max(10, m.width-4)
	m.ready = m.width > 0 && m.height > 0
	m.refreshContent()
}

func (m *TailModel) refreshContent() {
	lines := make([]string, len(m.entries))
	for i, e := range m.entries {
		lines[i] = FormatEntry(e)
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

// FormatEntry renders one entry as a console line:
// time, level, source, optional category and caller, message, fields.
func FormatEntry(e model.Entry) string {
	var b strings.Builder
	b.WriteString(dimStyle.Render(e.Timestamp.Format("15:04:05.000")))
	b.WriteString(" ")
	b.WriteString(levelStyle(e.Level).Render(e.Level.Short()))
	b.WriteString(" ")
	b.WriteString(sourceStyle.Render(e.Source))
	if cat, ok := e.CategoryValue(); ok {
		b.WriteString(dimStyle.Render("/" + cat))
	}
	if caller, ok := e.CallerValue(); ok {
		b.WriteString(" ")
		b.WriteString(dimStyle.Render(caller))
	}
	b.WriteString(" > ")
	b.WriteString(e.Message)
	e.Fields.Range(func(k string, v model.Value) bool {
		b.WriteString(" ")
		b.WriteString(dimStyle.Render(k + "="))
		b.WriteString(v.Text())
		return true
	})
	for _, tag := range e.Tags {
		b.WriteString(" ")
		b.WriteString(dimStyle.Render("#" + tag))
	}
	return b.String()
}

// View renders the tail view.
func (m *TailModel) View() string {
	if !m.ready {
		return "connecting..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.viewport.View())
	if m.searchActive {
		sections = append(sections, m.searchInput.View())
	}
	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m *TailModel) renderHeader() string {
	title := headerStyle.Render("logdeck")
	counts := dimStyle.Render(fmt.Sprintf("  %d/%d buffered  %d ingested  %d evicted  showing %d",
		m.stats.Entries, m.stats.Bound, m.stats.Ingested, m.stats.Evicted, len(m.entries)))
	line1 := title + counts
	if m.paused {
		line1 += "  " + pausedStyle.Render("PAUSED")
	}

	var levels []string
	for _, l := range model.AllLevels {
		label := l.Short()
		if m.levelEnabled(l) {
			levels = append(levels, levelStyle(l).Render(label))
		} else {
			levels = append(levels, dimStyle.Strikethrough(true).Render(label))
		}
	}
	line2 := strings.Join(levels, " ")
	if m.spec.Search != "" {
		line2 += dimStyle.Render("  search: ") + m.spec.Search
	}
	if len(m.spec.Sources) > 0 {
		line2 += dimStyle.Render(fmt.Sprintf("  sources: %s", strings.Join(m.spec.Sources, ",")))
	}
	if m.spec.Selection != nil {
		line2 += dimStyle.Render("  selection active")
	}
	if m.lastError != "" {
		line2 += "  " + errorStyle.Render(m.lastError)
	}
	return line1 + "\n" + line2
}

func (m *TailModel) renderFooter() string {
	var parts []string
	for _, b := range m.keys.helpBindings() {
		h := b.Help()
		parts = append(parts, h.Key+" "+dimStyle.Render(h.Desc))
	}
	return dimStyle.Render(strings.Join(parts, "  "))
}
