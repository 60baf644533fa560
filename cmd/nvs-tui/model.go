package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/cluso-nvs/pkg/metrics"
	"github.com/dd0wney/cluso-nvs/pkg/nvs"
	"github.com/dd0wney/cluso-nvs/pkg/storage"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#FF00FF")).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666")).
				Padding(0, 2)

	contentStyle = lipgloss.NewStyle().
			MarginLeft(2).
			MarginTop(1)

	statsBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(1, 2).
			MarginRight(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type view int

const (
	overviewView view = iota
	keysView
	editView
	metricsView
	viewCount
)

var viewNames = []string{"Overview", "Keys", "Edit", "Metrics"}

type keyMap struct {
	Tab       key.Binding
	ShiftTab  key.Binding
	Enter     key.Binding
	Partition key.Binding
	Refresh   key.Binding
	Quit      key.Binding
}

var keys = keyMap{
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next view"),
	),
	ShiftTab: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("shift+tab", "prev view"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "apply"),
	),
	Partition: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "switch partition"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "q"),
		key.WithHelp("q", "quit"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Partition, k.Refresh, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.ShiftTab, k.Enter},
		{k.Partition, k.Refresh, k.Quit},
	}
}

type model struct {
	mgr         *storage.Manager
	reg         *metrics.Registry
	currentView view
	partition   storage.Partition
	keyTable    table.Model
	metricTable table.Model
	input       textinput.Model
	help        help.Model
	keys        keyMap
	width       int
	height      int
	message     string
	messageErr  bool
	startTime   time.Time
	stats       map[storage.Partition]nvs.Stat
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func newTable(columns []table.Column) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#FF00FF")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func initialModel(mgr *storage.Manager, reg *metrics.Registry) model {
	ti := textinput.New()
	ti.Placeholder = "key=value, or -key to delete"
	ti.CharLimit = 200
	ti.Width = 60

	m := model{
		mgr:       mgr,
		reg:       reg,
		partition: storage.User,
		keyTable: newTable([]table.Column{
			{Title: "Key", Width: 24},
			{Title: "Len", Width: 6},
			{Title: "ATE", Width: 12},
			{Title: "Value", Width: 40},
		}),
		metricTable: newTable([]table.Column{
			{Title: "Metric", Width: 64},
			{Title: "Value", Width: 12},
		}),
		input:     ti,
		help:      help.New(),
		keys:      keys,
		startTime: time.Now(),
		stats:     make(map[storage.Partition]nvs.Stat),
	}
	m.refresh()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		tickCmd(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		m.refresh()
		return m, tickCmd()

	case tea.KeyMsg:
		editing := m.currentView == editView && m.input.Focused()
		switch {
		case msg.Type == tea.KeyCtrlC, key.Matches(msg, m.keys.Quit) && !editing:
			return m, tea.Quit

		case key.Matches(msg, m.keys.Tab):
			m.setView((m.currentView + 1) % viewCount)
			return m, nil

		case key.Matches(msg, m.keys.ShiftTab):
			m.setView((m.currentView + viewCount - 1) % viewCount)
			return m, nil

		case key.Matches(msg, m.keys.Enter) && editing:
			m.apply()
			return m, nil

		case key.Matches(msg, m.keys.Partition) && !editing:
			if m.partition == storage.User {
				m.partition = storage.Factory
			} else {
				m.partition = storage.User
			}
			m.refresh()
			return m, nil

		case key.Matches(msg, m.keys.Refresh) && !editing:
			m.refresh()
			return m, nil
		}
	}

	// Update focused component
	switch m.currentView {
	case editView:
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	case keysView:
		m.keyTable, cmd = m.keyTable.Update(msg)
		cmds = append(cmds, cmd)
	case metricsView:
		m.metricTable, cmd = m.metricTable.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) setView(v view) {
	m.currentView = v
	if v == editView {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

// apply runs the edit line against the user partition through the cache.
func (m *model) apply() {
	line := strings.TrimSpace(m.input.Value())
	var err error
	switch {
	case line == "":
		m.setMessage("Nothing to apply", true)
		return
	case strings.HasPrefix(line, "-"):
		k := strings.TrimPrefix(line, "-")
		if err = m.mgr.Delete(storage.User, k); err == nil {
			m.setMessage(fmt.Sprintf("Deleted %s", k), false)
		}
	default:
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			m.setMessage("Expected key=value", true)
			return
		}
		if _, err = m.mgr.WriteCached(storage.User, k, []byte(v)); err == nil {
			m.setMessage(fmt.Sprintf("Set %s (%d bytes), sync pending", k, len(v)), false)
			m.mgr.TriggerSync()
		}
	}
	if err != nil {
		m.setMessage(err.Error(), true)
		return
	}
	m.input.SetValue("")
	m.refresh()
}

func (m *model) setMessage(msg string, isErr bool) {
	m.message = msg
	m.messageErr = isErr
}

// refresh reloads partition statistics, the key table and the metrics.
func (m *model) refresh() {
	for _, p := range storage.Partitions {
		s, err := m.mgr.Store(p)
		if err != nil {
			m.setMessage(err.Error(), true)
			return
		}
		st, err := s.Stat()
		if err != nil {
			m.setMessage(err.Error(), true)
			return
		}
		m.stats[p] = st
	}

	rows, err := keyRows(m.mgr, m.partition)
	if err != nil {
		m.setMessage(err.Error(), true)
	} else {
		m.keyTable.SetRows(rows)
	}

	if m.reg != nil {
		samples, err := m.reg.Snapshot()
		if err != nil {
			m.setMessage(err.Error(), true)
			return
		}
		m.metricTable.SetRows(metricRows(samples))
	}
}

// keyRows lists the keys on flash, newest first. Values come through the
// manager so unsynced cache entries show their pending value.
func keyRows(mgr *storage.Manager, p storage.Partition) ([]table.Row, error) {
	s, err := mgr.Store(p)
	if err != nil {
		return nil, err
	}
	it, err := s.Iterator()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var rows []table.Row
	for {
		err := it.Next()
		if nvs.IsNotFound(err) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		info, err := it.Info()
		if err != nil {
			return nil, err
		}
		v, err := mgr.Get(p, info.Key)
		if nvs.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, table.Row{
			info.Key,
			fmt.Sprintf("%d", len(v)),
			info.Addr.String(),
			storage.FormatValue(v),
		})
	}
}

func metricRows(samples []metrics.Sample) []table.Row {
	rows := make([]table.Row, 0, len(samples))
	for _, s := range samples {
		if !strings.HasPrefix(s.Name, "nvs_") {
			continue
		}
		rows = append(rows, table.Row{s.ID(), fmt.Sprintf("%g", s.Value)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	return rows
}

func (m model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render("NVS Inspector"))
	s.WriteString("\n\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	switch m.currentView {
	case overviewView:
		s.WriteString(m.renderOverview())
	case keysView:
		s.WriteString(m.renderKeys())
	case editView:
		s.WriteString(m.renderEdit())
	case metricsView:
		s.WriteString(m.renderMetrics())
	}

	if m.message != "" {
		s.WriteString("\n\n")
		if m.messageErr {
			s.WriteString(errorStyle.Render("✗ " + m.message))
		} else {
			s.WriteString(successStyle.Render("✓ " + m.message))
		}
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))

	return s.String()
}

func (m model) renderTabs() string {
	var renderedTabs []string
	for i, tab := range viewNames {
		if view(i) == m.currentView {
			renderedTabs = append(renderedTabs, activeTabStyle.Render(tab))
		} else {
			renderedTabs = append(renderedTabs, inactiveTabStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, renderedTabs...)
}

func (m model) renderOverview() string {
	var boxes []string
	for _, p := range storage.Partitions {
		st := m.stats[p]
		boxes = append(boxes, statsBoxStyle.Render(fmt.Sprintf(`%s partition
Sectors:     %d x %d
Active:      sector %d
ATE cursor:  %s
Data cursor: %s
Live keys:   %d
Free:        %d
Reclaimable: %d
Available:   %d`,
			strings.ToUpper(p.String()),
			st.SectorCount, st.SectorSize,
			st.ActiveSector,
			st.ATECursor,
			st.DataCursor,
			st.LiveEntries,
			st.FreeSpace,
			st.Reclaimable,
			st.Available,
		)))
	}

	cacheContent := "Cache disabled"
	if c := m.mgr.Cache(); c != nil {
		hits, misses, rate := c.Stats()
		cacheContent = fmt.Sprintf(`User cache
Entries:  %d/%d
Dirty:    %d
Hits:     %d
Misses:   %d
Hit rate: %.1f%%
Uptime:   %s`,
			c.Size(), m.mgr.Options().CacheEntries,
			c.DirtyCount(), hits, misses, rate*100,
			time.Since(m.startTime).Round(time.Second),
		)
	}
	boxes = append(boxes, statsBoxStyle.Render(cacheContent))

	return contentStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
}

func (m model) renderKeys() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render(fmt.Sprintf("Keys: %s partition", m.partition)))
	s.WriteString("\n\n")
	if len(m.keyTable.Rows()) == 0 {
		s.WriteString("No entry found")
	} else {
		s.WriteString(m.keyTable.View())
	}
	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Navigate with ↑/↓ • 'p' switches partition • 'r' refreshes"))
	return contentStyle.Render(s.String())
}

func (m model) renderEdit() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render("Edit user partition"))
	s.WriteString("\n\n")
	s.WriteString(m.input.View())
	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Examples:\n  wifi_ssid=home\n  -wifi_ssid\n"))
	return contentStyle.Render(s.String())
}

func (m model) renderMetrics() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render("Metrics"))
	s.WriteString("\n\n")
	if len(m.metricTable.Rows()) == 0 {
		s.WriteString(helpStyle.Render("No metrics recorded yet"))
	} else {
		s.WriteString(m.metricTable.View())
	}
	return contentStyle.Render(s.String())
}
