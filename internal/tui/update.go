package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/logdeck/internal/engine"
	"github.com/tinytelemetry/logdeck/internal/filter"
	"github.com/tinytelemetry/logdeck/internal/model"
)

type tickDataLoadedMsg struct {
	entries []model.Entry
	stats   engine.Stats
	err     error
}

// filterLoadedMsg carries the service's filter and, after a change, the
// rows refetched under it.
type filterLoadedMsg struct {
	spec filter.Spec
	data *tickDataLoadedMsg
	err  error
}

type clearedMsg struct {
	data tickDataLoadedMsg
	err  error
}

func fetch(client Client, limit int) tickDataLoadedMsg {
	entries, err := client.Snapshot(limit, nil)
	if err != nil {
		return tickDataLoadedMsg{err: err}
	}
	stats, err := client.Stats()
	return tickDataLoadedMsg{entries: entries, stats: stats, err: err}
}

func (m *TailModel) fetchCmd() tea.Cmd {
	client, limit := m.client, m.tailLines
	return func() tea.Msg {
		return fetch(client, limit)
	}
}

func (m *TailModel) loadFilterCmd() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		spec, err := client.GetFilter()
		return filterLoadedMsg{spec: spec, err: err}
	}
}

// setFilterCmd pushes spec to the service and refetches under it.
func (m *TailModel) setFilterCmd(spec filter.Spec) tea.Cmd {
	client, limit := m.client, m.tailLines
	return func() tea.Msg {
		applied, err := client.SetFilter(spec)
		if err != nil {
			return filterLoadedMsg{err: err}
		}
		data := fetch(client, limit)
		return filterLoadedMsg{spec: applied, data: &data}
	}
}

func (m *TailModel) clearCmd() tea.Cmd {
	client, limit := m.client, m.tailLines
	return func() tea.Msg {
		if err := client.Clear(); err != nil {
			return clearedMsg{err: err}
		}
		return clearedMsg{data: fetch(client, limit)}
	}
}

// Update handles messages
func (m *TailModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		if m.searchActive {
			return m.handleSearchKey(msg)
		}
		return m.handleKeyPress(msg)

	case TickMsg:
		// Freeze refresh while paused so the scroll position stays put.
		if m.paused || m.tickInFlight {
			return m, m.tickCmd()
		}
		m.tickInFlight = true
		return m, tea.Batch(m.fetchCmd(), m.tickCmd())

	case tickDataLoadedMsg:
		m.tickInFlight = false
		m.applyData(msg)
		return m, nil

	case filterLoadedMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
			return m, nil
		}
		m.spec = msg.spec
		if !m.searchActive {
			m.searchInput.SetValue(m.spec.Search)
		}
		if msg.data != nil {
			m.applyData(*msg.data)
		}
		return m, nil

	case clearedMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
			return m, nil
		}
		m.applyData(msg.data)
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// applyData installs fetched rows. While paused only the counters move.
func (m *TailModel) applyData(msg tickDataLoadedMsg) {
	if msg.err != nil {
		m.lastError = msg.err.Error()
		return
	}
	m.lastError = ""
	m.stats = msg.stats
	if !m.paused {
		m.entries = msg.entries
		m.refreshContent()
	}
}

func (m *TailModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit), key.Matches(msg, m.keys.ForceQuit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Debug):
		return m, m.setFilterCmd(m.toggleLevel(model.LevelDebug))
	case key.Matches(msg, m.keys.Info):
		return m, m.setFilterCmd(m.toggleLevel(model.LevelInfo))
	case key.Matches(msg, m.keys.Warn):
		return m, m.setFilterCmd(m.toggleLevel(model.LevelWarn))
	case key.Matches(msg, m.keys.Error):
		return m, m.setFilterCmd(m.toggleLevel(model.LevelError))

	case key.Matches(msg, m.keys.Search):
		m.searchActive = true
		m.searchInput.SetValue(m.spec.Search)
		m.searchInput.CursorEnd()
		m.resize()
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.Escape):
		if m.spec.Search == "" {
			return m, nil
		}
		spec := m.spec
		spec.Search = ""
		return m, m.setFilterCmd(spec)

	case key.Matches(msg, m.keys.Pause):
		m.paused = !m.paused
		if !m.paused {
			return m, m.fetchCmd()
		}
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		return m, m.clearCmd()

	case key.Matches(msg, m.keys.End):
		m.follow = true
		m.viewport.GotoBottom()
		return m, nil

	case key.Matches(msg, m.keys.Home):
		m.follow = false
		m.viewport.GotoTop()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	m.follow = m.viewport.AtBottom()
	return m, cmd
}

func (m *TailModel) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "escape", "esc":
		m.searchActive = false
		m.searchInput.Blur()
		m.searchInput.SetValue(m.spec.Search)
		m.resize()
		return m, nil
	case "enter":
		m.searchActive = false
		m.searchInput.Blur()
		m.resize()
		spec := m.spec
		spec.Search = m.searchInput.Value()
		return m, m.setFilterCmd(spec)
	default:
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	}
}
