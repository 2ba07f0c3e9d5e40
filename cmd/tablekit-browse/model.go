package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/tablekit/internal/domain/query"
	"github.com/kailas-cloud/tablekit/internal/usecase/datatable"
	"github.com/kailas-cloud/tablekit/internal/usecase/facet"
)

const refetchTimeout = 10 * time.Second

// tableDriver is the part of datatable.Coordinator the UI drives.
type tableDriver interface {
	Snapshot() datatable.Snapshot
	Table() datatable.TableModel
	Subscribe(fn func(datatable.Snapshot)) func()
	SetSearchTerm(term string)
	SetFilter(columnID string, v query.Value) error
	ClearFilter(columnID string) error
	SetSort(s *query.Sort) error
	SetPage(i int) error
	Reset()
	Refetch(ctx context.Context) error
}

// facetSource is the part of facet.Resolver the UI reads.
type facetSource interface {
	Field() string
	Snapshot() facet.Snapshot
	Subscribe(fn func(facet.Snapshot)) func()
}

type snapshotMsg datatable.Snapshot

type facetMsg facet.Snapshot

type refetchDoneMsg struct{ err error }

type model struct {
	table   tableDriver
	facets  facetSource
	snapCh  chan datatable.Snapshot
	facetCh chan facet.Snapshot
	unsub   []func()

	search textinput.Model
	grid   table.Model
	spin   spinner.Model
	help   help.Model
	keys   keyMap

	snap      datatable.Snapshot
	facetSnap facet.Snapshot
	sortCol   int // index into the columns, -1 for none
	sortDir   query.Direction
	status    string
	width     int
}

func newModel(t tableDriver, r *facet.Resolver) *model {
	ti := textinput.New()
	ti.Placeholder = "search..."
	ti.CharLimit = 256
	ti.Width = 40
	ti.Prompt = "/ "

	grid := table.New(table.WithFocused(true), table.WithHeight(15))
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(accentColor).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.Foreground(bgColor).Background(accentColor).Bold(false)
	grid.SetStyles(s)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(accentColor)

	m := &model{
		table:   t,
		snapCh:  make(chan datatable.Snapshot, 1),
		search:  ti,
		grid:    grid,
		spin:    sp,
		help:    help.New(),
		keys:    keys,
		sortCol: -1,
		sortDir: query.Asc,
	}
	m.unsub = append(m.unsub, t.Subscribe(func(s datatable.Snapshot) { offer(m.snapCh, s) }))
	if r != nil {
		m.facets = r
		m.facetCh = make(chan facet.Snapshot, 1)
		m.unsub = append(m.unsub, r.Subscribe(func(s facet.Snapshot) { offer(m.facetCh, s) }))
		m.facetSnap = r.Snapshot()
	}

	m.snap = t.Snapshot()
	m.search.SetValue(m.snap.SearchTerm)
	if srt := m.snap.State.Sort; srt != nil {
		m.sortDir = srt.Direction
		for i, c := range t.Table().ColumnIDs() {
			if c == srt.Field {
				m.sortCol = i
			}
		}
	}
	m.refreshGrid()
	return m
}

// offer replaces any pending value so the UI only renders the newest one.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

func listen[T any](ch <-chan T, wrap func(T) tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg { return wrap(<-ch) }
}

func (m *model) waitSnapshot() tea.Cmd {
	return listen(m.snapCh, func(s datatable.Snapshot) tea.Msg { return snapshotMsg(s) })
}

func (m *model) waitFacet() tea.Cmd {
	return listen(m.facetCh, func(s facet.Snapshot) tea.Msg { return facetMsg(s) })
}

func (m *model) close() {
	for _, u := range m.unsub {
		u()
	}
	m.unsub = nil
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.waitSnapshot(), m.waitFacet())
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.grid.SetWidth(msg.Width)
		m.grid.SetHeight(max(msg.Height-12, 5))
		m.help.Width = msg.Width
		return m, nil

	case snapshotMsg:
		m.snap = datatable.Snapshot(msg)
		m.refreshGrid()
		return m, m.waitSnapshot()

	case facetMsg:
		m.facetSnap = facet.Snapshot(msg)
		return m, m.waitFacet()

	case refetchDoneMsg:
		m.status = ""
		if msg.err != nil {
			m.status = "refetch: " + msg.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.search.Focused() {
			return m, m.updateSearch(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *model) updateSearch(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, m.keys.Blur) {
		m.search.Blur()
		return nil
	}
	before := m.search.Value()
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if v := m.search.Value(); v != before {
		m.table.SetSearchTerm(v)
	}
	return cmd
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var err error
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Search):
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.NextPage):
		if m.table.Table().CanNextPage() {
			err = m.table.SetPage(m.snap.State.PageIndex + 1)
		}
	case key.Matches(msg, m.keys.PrevPage):
		if m.table.Table().CanPreviousPage() {
			err = m.table.SetPage(m.snap.State.PageIndex - 1)
		}
	case key.Matches(msg, m.keys.Sort):
		err = m.cycleSort()
	case key.Matches(msg, m.keys.Direction):
		err = m.toggleDirection()
	case key.Matches(msg, m.keys.Facet):
		err = m.applyFacet(msg.String())
	case key.Matches(msg, m.keys.Reset):
		m.table.Reset()
		m.search.SetValue("")
		m.sortCol, m.sortDir = -1, query.Asc
	case key.Matches(msg, m.keys.Refetch):
		m.status = "refetching..."
		return m, m.refetch()
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	default:
		var cmd tea.Cmd
		m.grid, cmd = m.grid.Update(msg)
		return m, cmd
	}
	m.status = ""
	if err != nil {
		m.status = err.Error()
	}
	return m, nil
}

func (m *model) refetch() tea.Cmd {
	t := m.table
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
		defer cancel()
		return refetchDoneMsg{err: t.Refetch(ctx)}
	}
}

func (m *model) cycleSort() error {
	cols := m.table.Table().ColumnIDs()
	m.sortCol++
	if m.sortCol >= len(cols) {
		m.sortCol = -1
		return m.table.SetSort(nil)
	}
	return m.table.SetSort(&query.Sort{Field: cols[m.sortCol], Direction: m.sortDir})
}

func (m *model) toggleDirection() error {
	if m.sortDir == query.Asc {
		m.sortDir = query.Desc
	} else {
		m.sortDir = query.Asc
	}
	cols := m.table.Table().ColumnIDs()
	if m.sortCol < 0 || m.sortCol >= len(cols) {
		return nil
	}
	return m.table.SetSort(&query.Sort{Field: cols[m.sortCol], Direction: m.sortDir})
}

// applyFacet filters on the n-th facet option; "0" clears the facet filter.
func (m *model) applyFacet(k string) error {
	if m.facets == nil {
		return nil
	}
	n := int(k[0] - '0')
	if n == 0 {
		return m.table.ClearFilter(m.facets.Field())
	}
	opts := m.facetSnap.Options
	if n > len(opts) {
		return nil
	}
	return m.table.SetFilter(m.facets.Field(), query.Exact(opts[n-1].Value))
}

func (m *model) refreshGrid() {
	tm := m.table.Table()
	ids := tm.ColumnIDs()

	widths := make([]int, len(ids))
	for i, id := range ids {
		widths[i] = len(id) + 2
	}
	rows := make([]table.Row, 0, len(m.snap.Rows))
	for _, r := range m.snap.Rows {
		cells := make(table.Row, len(ids))
		for i, id := range ids {
			cells[i] = formatCell(r[id])
			widths[i] = max(widths[i], min(len(cells[i]), maxColumnWidth))
		}
		rows = append(rows, cells)
	}

	cols := make([]table.Column, len(ids))
	for i, id := range ids {
		title := id
		if srt := m.snap.State.Sort; srt != nil && srt.Field == id {
			title += sortArrow(srt.Direction)
		}
		cols[i] = table.Column{Title: title, Width: widths[i]}
	}
	// Columns first: rows wider than the old columns would be cut.
	m.grid.SetRows(nil)
	m.grid.SetColumns(cols)
	m.grid.SetRows(rows)
}

const maxColumnWidth = 32

func sortArrow(d query.Direction) string {
	if d == query.Desc {
		return " ↓"
	}
	return " ↑"
}

// formatCell renders a row value. Numbers print without exponent notation.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return decimal.NewFromFloat(x).String()
	case string:
		return x
	}
	return fmt.Sprint(v)
}

func (m *model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.search.View())
	b.WriteString("\n\n")

	switch {
	case m.snap.Error() != nil && !m.snap.HasData:
		b.WriteString(errorStyle.Render("error: " + m.snap.Error().Error()))
	case !m.snap.HasData:
		b.WriteString(m.spin.View() + " loading...")
	default:
		b.WriteString(m.grid.View())
	}
	b.WriteString("\n")

	if s := m.renderSummary(); s != "" {
		b.WriteString(s)
		b.WriteString("\n")
	}
	if s := m.renderFacet(); s != "" {
		b.WriteString(s)
		b.WriteString("\n")
	}
	for _, w := range m.snap.Warnings {
		b.WriteString(warnStyle.Render("warning: " + w.Error()))
		b.WriteString("\n")
	}
	if m.snap.HasData && m.snap.Error() != nil {
		b.WriteString(errorStyle.Render("error (showing previous rows): " + m.snap.Error().Error()))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(mutedStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *model) renderHeader() string {
	st := m.snap.State
	page := fmt.Sprintf("page %d/%d", st.PageIndex+1, max(m.snap.PageCount, 1))
	total := fmt.Sprintf("%d rows", m.snap.TotalCount)
	if m.snap.CountStatus.Err != nil {
		total = errorStyle.Render("? rows")
	}
	parts := []string{titleStyle.Render("tablekit"), total, page}
	if len(st.Filters) > 0 {
		fs := make([]string, len(st.Filters))
		for i, f := range st.Filters {
			fs[i] = f.ColumnID + "=" + f.Value.String()
		}
		parts = append(parts, "filters: "+strings.Join(fs, " "))
	}
	if m.snap.IsLoading() {
		parts = append(parts, m.spin.View())
	}
	return strings.Join(parts, mutedStyle.Render(" │ "))
}

func (m *model) renderSummary() string {
	var parts []string
	if len(m.snap.Aggregates) > 0 {
		names := make([]string, 0, len(m.snap.Aggregates))
		for k := range m.snap.Aggregates {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			v := "-"
			if p := m.snap.Aggregates[k]; p != nil {
				v = formatCell(*p)
			}
			parts = append(parts, k+": "+v)
		}
	}
	if err := m.snap.AggregateStatus.Err; err != nil {
		parts = append(parts, errorStyle.Render("aggregates: "+err.Error()))
	}
	line := ""
	if len(parts) > 0 {
		line = summaryStyle.Render(strings.Join(parts, "  "))
	}

	if len(m.snap.Groups) > 0 || m.snap.GroupStatus.Err != nil {
		groups := make([]string, 0, len(m.snap.Groups))
		for _, g := range m.snap.Groups {
			groups = append(groups, g.Key+"="+formatCell(g.Value))
		}
		if err := m.snap.GroupStatus.Err; err != nil {
			groups = append(groups, errorStyle.Render("group by: "+err.Error()))
		}
		if line != "" {
			line += "\n"
		}
		line += summaryStyle.Render("groups: " + strings.Join(groups, "  "))
	}
	return line
}

func (m *model) renderFacet() string {
	if m.facets == nil {
		return ""
	}
	fs := m.facetSnap
	if fs.Error != nil {
		return errorStyle.Render(m.facets.Field() + ": " + fs.Error.Error())
	}
	opts := make([]string, 0, len(fs.Options))
	active, _ := m.snap.State.Filter(m.facets.Field())
	for i, o := range fs.Options {
		label := fmt.Sprintf("%d %s (%d)", i+1, o.Label, o.Count)
		if active.Kind() == query.KindExact && active.ExactValue() == o.Value {
			label = activeStyle.Render(label)
		}
		opts = append(opts, label)
	}
	line := facetTitleStyle.Render(m.facets.Field()+":") + " " + strings.Join(opts, "  ")
	if fs.IsLoading {
		line += " " + m.spin.View()
	}
	return line
}
