// Package tui implements a read-only terminal inspector for mission
// runs: a scrollable list of runs under a runs root, and a detail view
// of one run's current snapshot and pending decisions. It never calls
// any engine operation that mutates state.
package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/missionctl/pkg/kernel/engine"
	"github.com/ormasoftchile/missionctl/pkg/kernel/schema"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")

	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan).Padding(0, 1)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	okStyle      = lipgloss.NewStyle().Foreground(colorGreen)
	warnStyle    = lipgloss.NewStyle().Foreground(colorYellow)
	errStyle     = lipgloss.NewStyle().Foreground(colorRed)
	rowStyle     = lipgloss.NewStyle()
	rowSelStyle  = lipgloss.NewStyle().Reverse(true)
	panelTitle   = lipgloss.NewStyle().Bold(true).Underline(true)
)

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Back   key.Binding
	Reload key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "view run")),
	Back:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Reload: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// runRow is one row in the run list.
type runRow struct {
	runID      string
	missionKey string
	state      string
}

// Model is the top-level Bubble Tea model for the run inspector.
type Model struct {
	eng      *engine.Engine
	runsRoot string

	rows   []runRow
	cursor int
	offset int

	detail string
	view   string // "list" or "detail"
	width  int
	height int
}

// NewModel builds an inspector rooted at runsRoot, using eng to read
// each run's snapshot.
func NewModel(eng *engine.Engine, runsRoot string) Model {
	m := Model{eng: eng, runsRoot: runsRoot, view: "list", cursor: -1}
	m.reload()
	return m
}

func (m *Model) reload() {
	entries, err := os.ReadDir(m.runsRoot)
	if err != nil {
		m.rows = nil
		m.cursor = -1
		return
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)

	rows := make([]runRow, 0, len(ids))
	for _, id := range ids {
		snap, err := m.eng.Status(engine.RunRef{RunID: id, RunDir: filepath.Join(m.runsRoot, id)})
		if err != nil {
			rows = append(rows, runRow{runID: id, missionKey: "?", state: "unreadable"})
			continue
		}
		rows = append(rows, runRow{runID: id, missionKey: snap.MissionKey, state: stateOf(snap)})
	}
	m.rows = rows
	if len(rows) == 0 {
		m.cursor = -1
	} else if m.cursor < 0 || m.cursor >= len(rows) {
		m.cursor = 0
	}
	m.offset = 0
}

func stateOf(snap *schema.Snapshot) string {
	switch {
	case snap.BlockedReason != "":
		return "blocked"
	case len(snap.Pending) > 0:
		return fmt.Sprintf("%d pending", len(snap.Pending))
	case snap.IssuedStepID != "":
		return "step issued: " + snap.IssuedStepID
	default:
		return "idle"
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Reload) && m.view == "list":
			m.reload()
			return m, nil
		case key.Matches(msg, keys.Back):
			m.view = "list"
			return m, nil
		case key.Matches(msg, keys.Up) && m.view == "list":
			m.cursorUp()
			return m, nil
		case key.Matches(msg, keys.Down) && m.view == "list":
			m.cursorDown()
			return m, nil
		case key.Matches(msg, keys.Select) && m.view == "list":
			if m.cursor >= 0 && m.cursor < len(m.rows) {
				m.detail = m.renderDetail(m.rows[m.cursor].runID)
				m.view = "detail"
			}
			return m, nil
		}
	}
	return m, nil
}

func (m *Model) cursorUp() {
	if m.cursor > 0 {
		m.cursor--
	}
	m.ensureVisible()
}

func (m *Model) cursorDown() {
	if m.cursor < len(m.rows)-1 {
		m.cursor++
	}
	m.ensureVisible()
}

func (m *Model) ensureVisible() {
	visible := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
}

func (m Model) listHeight() int {
	h := m.height - 4
	if h < 1 {
		h = 1
	}
	return h
}

func (m Model) renderDetail(runID string) string {
	snap, err := m.eng.Status(engine.RunRef{RunID: runID, RunDir: filepath.Join(m.runsRoot, runID)})
	if err != nil {
		return errStyle.Render(fmt.Sprintf("error reading run %s: %v", runID, err))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", headerStyle.Render("Run "+snap.RunID))
	fmt.Fprintf(&b, "mission:      %s\n", snap.MissionKey)
	fmt.Fprintf(&b, "issued step:  %s\n", valueOr(snap.IssuedStepID, "(none)"))
	if snap.BlockedReason != "" {
		fmt.Fprintf(&b, "blocked:      %s\n", errStyle.Render(snap.BlockedReason))
	}
	fmt.Fprintf(&b, "completed:    %d step(s)\n", len(snap.CompletedSteps))

	if len(snap.Pending) == 0 {
		fmt.Fprintf(&b, "\n%s\n", okStyle.Render("no pending decisions"))
	} else {
		fmt.Fprintf(&b, "\n%s\n", warnStyle.Render(fmt.Sprintf("%d pending decision(s):", len(snap.Pending))))
		ids := make([]string, 0, len(snap.Pending))
		for id := range snap.Pending {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			p := snap.Pending[id]
			fmt.Fprintf(&b, "  - %s: %s\n", id, p.Question)
			if len(p.Options) > 0 {
				fmt.Fprintf(&b, "      options: %s\n", strings.Join(p.Options, ", "))
			}
		}
	}
	return b.String()
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func (m Model) renderList() string {
	if len(m.rows) == 0 {
		return dimStyle.Render("No runs found under " + m.runsRoot)
	}

	visible := m.listHeight()
	end := m.offset + visible
	if end > len(m.rows) {
		end = len(m.rows)
	}

	var lines []string
	for i := m.offset; i < end; i++ {
		row := m.rows[i]
		line := fmt.Sprintf(" %-36s  %-20s  %s", row.runID, row.missionKey, row.state)
		if i == m.cursor {
			line = rowSelStyle.Render(line)
		} else {
			line = rowStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return panelTitle.Render("Mission Runs") + "\n" + strings.Join(lines, "\n")
}

func (m Model) View() string {
	switch m.view {
	case "detail":
		return m.detail + "\n\n" + dimStyle.Render("esc: back  q: quit")
	default:
		return m.renderList() + "\n\n" + dimStyle.Render("↑/↓: move  enter: view  r: reload  q: quit")
	}
}
