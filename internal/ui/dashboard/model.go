// Package dashboard is a read-mostly terminal view of project health and
// the sync run history, with keys to start a sync.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/pmsync/internal/keys"
	"github.com/nhle/pmsync/internal/model"
	"github.com/nhle/pmsync/internal/store"
	appsync "github.com/nhle/pmsync/internal/sync"
	"github.com/nhle/pmsync/internal/theme"
	"github.com/nhle/pmsync/internal/ui"
)

// loadTimeout bounds a single reload of the tables.
const loadTimeout = 10 * time.Second

// runHistory is the number of runs shown.
const runHistory = 20

const minTableRows = 4

// DataSource is the read side the dashboard renders.
type DataSource interface {
	ListProjects(ctx context.Context, includeArchived bool) ([]model.Project, error)
	ListSyncRuns(ctx context.Context, filter store.SyncRunFilter) ([]model.SyncRun, error)
}

// TriggerFunc starts a sync and waits for it.
type TriggerFunc func(ctx context.Context, opts appsync.RunOptions) (model.SyncRunResult, error)

type panel int

const (
	panelProjects panel = iota
	panelRuns
)

// dataLoadedMsg carries a fresh snapshot of both tables.
type dataLoadedMsg struct {
	projects []model.Project
	runs     []model.SyncRun
	err      error
}

// syncDoneMsg is sent when a sync started from the dashboard finishes.
type syncDoneMsg struct {
	result model.SyncRunResult
	err    error
}

// Model is the dashboard Bubble Tea model.
type Model struct {
	data    DataSource
	trigger TriggerFunc
	keys    *keys.KeyMap
	help    help.Model

	projects table.Model
	runs     table.Model
	focus    panel

	width    int
	height   int
	syncing  bool
	showHelp bool
	status   string
	err      error
}

// New creates a dashboard. trigger may be nil, which disables the sync
// keys.
func New(data DataSource, trigger TriggerFunc) Model {
	projects := table.New(
		table.WithColumns(projectColumns()),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	runs := table.New(
		table.WithColumns(runColumns()),
		table.WithHeight(8),
	)
	return Model{
		data:     data,
		trigger:  trigger,
		keys:     keys.DefaultKeyMap(),
		help:     help.New(),
		projects: projects,
		runs:     runs,
		status:   "loading",
	}
}

// Init loads the first snapshot.
func (m Model) Init() tea.Cmd {
	return m.load()
}

func (m Model) load() tea.Cmd {
	data := m.data
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		projects, err := data.ListProjects(ctx, false)
		if err != nil {
			return dataLoadedMsg{err: err}
		}
		runs, err := data.ListSyncRuns(ctx, store.SyncRunFilter{Limit: runHistory})
		return dataLoadedMsg{projects: projects, runs: runs, err: err}
	}
}

func (m Model) startSync(syncType model.SyncType) tea.Cmd {
	trigger := m.trigger
	return func() tea.Msg {
		res, err := trigger(context.Background(), appsync.RunOptions{
			Trigger: model.TriggerManual,
			Type:    syncType,
		})
		return syncDoneMsg{result: res, err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)
		return m, nil

	case dataLoadedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.projects.SetRows(projectRows(msg.projects))
			m.runs.SetRows(runRows(msg.runs))
			if !m.syncing {
				m.status = fmt.Sprintf("%d projects", len(msg.projects))
			}
		}
		return m, nil

	case syncDoneMsg:
		m.syncing = false
		m.err = msg.err
		if msg.result.RunID != "" {
			m.status = fmt.Sprintf("last run %s in %s", msg.result.Status, msg.result.Duration.Round(time.Millisecond))
		}
		return m, m.load()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil
	case key.Matches(msg, m.keys.Tab):
		m.toggleFocus()
		return m, nil
	case key.Matches(msg, m.keys.Reload):
		return m, m.load()
	case key.Matches(msg, m.keys.Sync), key.Matches(msg, m.keys.FullSync):
		if m.trigger == nil || m.syncing {
			return m, nil
		}
		syncType := model.SyncIncremental
		if key.Matches(msg, m.keys.FullSync) {
			syncType = model.SyncFull
		}
		m.syncing = true
		m.status = "syncing (" + string(syncType) + ")"
		return m, m.startSync(syncType)
	}

	var cmd tea.Cmd
	if m.focus == panelProjects {
		m.projects, cmd = m.projects.Update(msg)
	} else {
		m.runs, cmd = m.runs.Update(msg)
	}
	return m, cmd
}

func (m *Model) toggleFocus() {
	if m.focus == panelProjects {
		m.focus = panelRuns
		m.projects.Blur()
		m.runs.Focus()
		return
	}
	m.focus = panelProjects
	m.runs.Blur()
	m.projects.Focus()
}

func (m *Model) setSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width

	frame := ui.NewFrame(width, height)
	rows := frame.SplitRows(minTableRows, 3, 2)
	m.projects.SetHeight(rows[0])
	m.runs.SetHeight(rows[1])
	m.projects.SetWidth(frame.PanelWidth())
	m.runs.SetWidth(frame.PanelWidth())
}

// View renders the dashboard.
func (m Model) View() string {
	frame := ui.NewFrame(m.width, m.height)

	status := m.status
	if m.err != nil {
		status = lipgloss.NewStyle().Foreground(theme.ColorRed).Render("error: " + m.err.Error())
	}
	title := frame.TitleBar("pmsync", status)

	if m.showHelp {
		m.help.ShowAll = true
		body := theme.BorderStyle.Padding(1, 2).Render(m.help.View(m.keys))
		return frame.Compose(title, body, frame.StatusBar("? close help"))
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		frame.Panel("Projects", m.projects.View(), m.focus == panelProjects),
		frame.Panel("Sync runs", m.runs.View(), m.focus == panelRuns),
	)
	return frame.Compose(title, body, frame.StatusBar(m.help.ShortHelpView(m.keys.ShortHelp())))
}
