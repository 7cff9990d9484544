// Package tui is the terminal tail view. It polls a running service over
// the socket RPC client and pushes filter changes back to it.
package tui

import (
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/logdeck/internal/engine"
	"github.com/tinytelemetry/logdeck/internal/filter"
	"github.com/tinytelemetry/logdeck/internal/model"
)

// Client is the service surface the tail view uses. *socketrpc.Client satisfies it.
type Client interface {
	Snapshot(limit int, spec *filter.Spec) ([]model.Entry, error)
	Stats() (engine.Stats, error)
	GetFilter() (filter.Spec, error)
	SetFilter(spec filter.Spec) (filter.Spec, error)
	Clear() error
}

// TickMsg triggers a refresh.
type TickMsg time.Time

// TailModel is the bubbletea model for the tail view.
type TailModel struct {
	client         Client
	keys           KeyMap
	updateInterval time.Duration
	tailLines      int

	viewport    viewport.Model
	searchInput textinput.Model

	width, height int
	ready         bool

	spec         filter.Spec
	entries      []model.Entry
	stats        engine.Stats
	lastError    string
	paused       bool
	searchActive bool
	follow       bool
	tickInFlight bool
}

// NewTailModel creates a tail view that keeps the newest tailLines entries
// and refreshes every interval.
func NewTailModel(client Client, tailLines int, interval time.Duration) *TailModel {
	if tailLines <= 0 {
		tailLines = model.DefaultTailLines
	}
	if interval <= 0 {
		interval = model.DefaultUpdateInterval
	}

	search := textinput.New()
	search.Placeholder = "search messages, sources, categories"
	search.Prompt = "/ "
	search.CharLimit = 256

	return &TailModel{
		client:         client,
		keys:           DefaultKeyMap(),
		updateInterval: interval,
		tailLines:      tailLines,
		viewport:       viewport.New(0, 0),
		searchInput:    search,
		follow:         true,
	}
}

// Init loads the service's active filter and starts the refresh ticker.
func (m *TailModel) Init() tea.Cmd {
	return tea.Batch(m.loadFilterCmd(), m.fetchCmd(), m.tickCmd())
}

func (m *TailModel) tickCmd() tea.Cmd {
	return tea.Tick(m.updateInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Filter returns the filter spec the view is currently showing.
func (m *TailModel) Filter() filter.Spec { return m.spec }

// Paused reports whether live refresh is frozen.
func (m *TailModel) Paused() bool { return m.paused }

// Entries returns the rows currently shown.
func (m *TailModel) Entries() []model.Entry { return m.entries }

// levelEnabled reports whether the view shows level l. An empty level
// list shows every level.
func (m *TailModel) levelEnabled(l model.Level) bool {
	return len(m.spec.Levels) == 0 || slices.Contains(m.spec.Levels, l)
}

// toggleLevel flips l in the level gate. The last remaining level cannot be
// turned off, and enabling all four collapses back to the empty list.
func (m *TailModel) toggleLevel(l model.Level) filter.Spec {
	spec := m.spec
	levels := slices.Clone(spec.Levels)
	if len(levels) == 0 {
		levels = slices.Clone(model.AllLevels)
	}
	if i := slices.Index(levels, l); i >= 0 {
		if len(levels) == 1 {
			return spec
		}
		levels = slices.Delete(levels, i, i+1)
	} else {
		levels = append(levels, l)
		slices.Sort(levels)
	}
	if len(levels) == len(model.AllLevels) {
		levels = nil
	}
	spec.Levels = levels
	return spec
}
