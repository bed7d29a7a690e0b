// Package tui is a terminal browser for the record table built on bubbletea.
// It renders view.Table snapshots and maps keys onto the table's query, edit
// and delete workflows.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/starford/tabula/internal/apperr"
	"github.com/starford/tabula/internal/models"
	"github.com/starford/tabula/internal/view"
)

type focus int

const (
	focusGrid focus = iota
	focusSearch
	focusForm
)

// Form fields, in tab order.
const (
	fieldName = iota
	fieldDate
	fieldValue
	fieldCount
)

var fieldKeys = [fieldCount]string{"name", "date", "value"}

// sortCycle is the order the sort key steps through; nil is store order.
var sortCycle = []*models.Sort{
	nil,
	{Field: models.FieldName, Direction: models.Ascending},
	{Field: models.FieldName, Direction: models.Descending},
	{Field: models.FieldDate, Direction: models.Ascending},
	{Field: models.FieldDate, Direction: models.Descending},
	{Field: models.FieldValue, Direction: models.Ascending},
	{Field: models.FieldValue, Direction: models.Descending},
}

// refreshedMsg reports that the table finished a refresh.
type refreshedMsg struct{}

// opDoneMsg carries the outcome of a background table operation.
type opDoneMsg struct {
	status string
	err    error
}

type redrawMsg struct{}

// editReadyMsg carries the draft of a record opened for editing.
type editReadyMsg struct {
	draft models.Input
	err   error
}

// submitDoneMsg carries the outcome of saving the form.
type submitDoneMsg struct {
	rec models.Record
	err error
}

// cellPixels approximates the pixel width of one terminal column, so the
// page size breakpoints apply to terminals as they do to viewports.
const cellPixels = 8

// Model is the bubbletea model of the browser.
type Model struct {
	ctx       context.Context
	table     *view.Table
	refreshed <-chan struct{}

	grid   table.Model
	search textinput.Model
	form   [fieldCount]textinput.Model
	focus  focus
	field  int
	sortAt int

	width  int
	height int
	status string
	err    string
	rows   []models.Record

	styles Styles
}

// New builds a browser over t. refreshed signals background refreshes of t,
// typically fed from view.WithOnRefresh.
func New(ctx context.Context, t *view.Table, refreshed <-chan struct{}) Model {
	grid := table.New(
		table.WithColumns(columns(80)),
		table.WithFocused(true),
		table.WithHeight(view.DefaultPageSize+1),
	)
	styles := DefaultStyles()
	grid.SetStyles(styles.Grid)

	search := textinput.New()
	search.Placeholder = "Search name, date or value..."
	search.Prompt = "/ "
	search.CharLimit = 64
	search.Width = 40

	var form [fieldCount]textinput.Model
	for i := range form {
		in := textinput.New()
		in.Prompt = ""
		in.Width = 40
		form[i] = in
	}
	form[fieldName].CharLimit = models.MaxNameLen
	form[fieldName].Placeholder = "Name"
	form[fieldDate].Placeholder = models.DateLayout
	form[fieldDate].CharLimit = 32
	form[fieldValue].Placeholder = "0"
	form[fieldValue].CharLimit = 12

	return Model{
		ctx:       ctx,
		table:     t,
		refreshed: refreshed,
		grid:      grid,
		search:    search,
		form:      form,
		styles:    styles,
	}
}

func columns(width int) []table.Column {
	name := width - 10 - 12 - 14 - 12
	if name < 12 {
		name = 12
	}
	return []table.Column{
		{Title: "ID", Width: 10},
		{Title: "Name", Width: name},
		{Title: "Date", Width: 12},
		{Title: "Value", Width: 14},
		{Title: "", Width: 10},
	}
}

// Init loads the first page and starts listening for background refreshes.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.run(func(ctx context.Context) error { return m.table.Refresh(ctx) }, ""), m.listen())
}

func (m Model) listen() tea.Cmd {
	if m.refreshed == nil {
		return nil
	}
	ch := m.refreshed
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return refreshedMsg{}
	}
}

// run executes op off the update loop.
func (m Model) run(op func(ctx context.Context) error, status string) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{status: status, err: op(ctx)}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.grid.SetColumns(columns(msg.Width))
		m.grid.SetWidth(msg.Width)
		return m, m.run(func(ctx context.Context) error { return m.table.Resize(ctx, msg.Width*cellPixels) }, "")

	case refreshedMsg:
		m.sync()
		return m, m.listen()

	case opDoneMsg:
		m.err = ""
		if msg.err != nil {
			m.err = msg.err.Error()
		} else if msg.status != "" {
			m.status = msg.status
		}
		m.sync()
		return m, nil

	case redrawMsg:
		m.sync()
		return m, nil

	case editReadyMsg:
		if msg.err != nil {
			m.err = msg.err.Error()
			return m, nil
		}
		m.err = ""
		cmd := m.openForm(msg.draft)
		return m, cmd

	case submitDoneMsg:
		return m.submitted(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.focus {
		case focusSearch:
			return m.updateSearch(msg)
		case focusForm:
			return m.updateForm(msg)
		default:
			return m.updateGrid(msg)
		}
	}
	return m, nil
}

func (m Model) updateGrid(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	snap := m.table.Snapshot()
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "/":
		m.focus = focusSearch
		m.grid.Blur()
		cmd := m.search.Focus()
		return m, cmd
	case "s":
		m.sortAt = (m.sortAt + 1) % len(sortCycle)
		srt := sortCycle[m.sortAt]
		return m, m.run(func(ctx context.Context) error { return m.table.SetSort(ctx, srt) }, "sort: "+sortLabel(srt))
	case "n", "right", "pgdown":
		if snap.Page.Index >= pageCount(snap) {
			return m, nil
		}
		next := snap.Page.Index + 1
		return m, m.run(func(ctx context.Context) error { return m.table.SetPage(ctx, next) }, "")
	case "p", "left", "pgup":
		if snap.Page.Index <= 1 {
			return m, nil
		}
		prev := snap.Page.Index - 1
		return m, m.run(func(ctx context.Context) error { return m.table.SetPage(ctx, prev) }, "")
	case "a":
		if err := m.table.BeginCreate(); err != nil {
			m.err = err.Error()
			return m, nil
		}
		cmd := m.openForm(models.Input{})
		return m, cmd
	case "e", "enter":
		rec, ok := m.selected()
		if !ok {
			return m, nil
		}
		id, tbl := rec.ID, m.table
		ctx := m.ctx
		return m, func() tea.Msg {
			if err := tbl.BeginEdit(ctx, id); err != nil {
				return editReadyMsg{err: err}
			}
			return editReadyMsg{draft: tbl.Snapshot().Edit.Draft}
		}
	case "d", "delete":
		rec, ok := m.selected()
		if !ok || m.table.Deleting(rec.ID) {
			return m, nil
		}
		m.status = "deleting " + rec.Name + "..."
		id := rec.ID
		return m, tea.Batch(
			m.run(func(ctx context.Context) error { return m.table.Delete(ctx, id) }, "deleted "+rec.Name),
			tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg { return redrawMsg{} }),
		)
	}

	var cmd tea.Cmd
	m.grid, cmd = m.grid.Update(msg)
	return m, cmd
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.focus = focusGrid
		m.search.Blur()
		m.grid.Focus()
		if msg.String() == "enter" {
			return m, m.run(func(ctx context.Context) error {
				m.table.FlushKeyword()
				return m.table.Refresh(ctx)
			}, "")
		}
		return m, nil
	}

	var cmd tea.Cmd
	before := m.search.Value()
	m.search, cmd = m.search.Update(msg)
	if v := m.search.Value(); v != before {
		m.table.SetKeyword(v)
	}
	return m, cmd
}

func (m *Model) openForm(draft models.Input) tea.Cmd {
	m.focus = focusForm
	m.field = fieldName
	m.grid.Blur()
	m.form[fieldName].SetValue(draft.Name)
	m.form[fieldDate].SetValue(draft.Date)
	m.form[fieldValue].SetValue(strconv.FormatInt(draft.Value, 10))
	for i := range m.form {
		m.form[i].CursorEnd()
		m.form[i].Blur()
	}
	return m.form[fieldName].Focus()
}

func (m *Model) closeForm() {
	m.focus = focusGrid
	for i := range m.form {
		m.form[i].Blur()
	}
	m.grid.Focus()
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.table.Cancel()
		m.closeForm()
		m.status = "cancelled"
		return m, nil
	case "tab", "down":
		cmd := m.focusField((m.field + 1) % fieldCount)
		return m, cmd
	case "shift+tab", "up":
		cmd := m.focusField((m.field + fieldCount - 1) % fieldCount)
		return m, cmd
	case "enter":
		return m.submit()
	}

	var cmd tea.Cmd
	m.form[m.field], cmd = m.form[m.field].Update(msg)
	return m, cmd
}

func (m *Model) focusField(i int) tea.Cmd {
	m.form[m.field].Blur()
	m.field = i
	return m.form[i].Focus()
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	in := models.Input{
		Name: m.form[fieldName].Value(),
		Date: m.form[fieldDate].Value(),
	}
	raw := strings.TrimSpace(m.form[fieldValue].Value())
	if raw == "" {
		m.err = "value: cannot be blank"
		return m, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		m.err = "value: must be an integer"
		return m, nil
	}
	in.Value = v

	tbl, ctx := m.table, m.ctx
	m.status = "saving..."
	return m, func() tea.Msg {
		rec, err := tbl.Submit(ctx, in)
		return submitDoneMsg{rec: rec, err: err}
	}
}

func (m Model) submitted(msg submitDoneMsg) (tea.Model, tea.Cmd) {
	rec, err := msg.rec, msg.err
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		m.err = verr.Error()
		return m, nil
	case err != nil:
		m.closeForm()
		m.err = err.Error()
	default:
		m.closeForm()
		m.err = ""
		m.status = "saved " + rec.Name
	}
	m.sync()
	return m, nil
}

// sync copies the table snapshot into the grid.
func (m *Model) sync() {
	snap := m.table.Snapshot()
	m.rows = snap.Result.Items
	deleting := make(map[string]bool, len(snap.Deleting))
	for _, id := range snap.Deleting {
		deleting[id] = true
	}

	rows := make([]table.Row, 0, len(m.rows))
	for _, r := range m.rows {
		mark := ""
		if deleting[r.ID] {
			mark = "deleting"
		}
		rows = append(rows, table.Row{shortID(r.ID), r.Name, r.Date, strconv.FormatInt(r.Value, 10), mark})
	}
	m.grid.SetRows(rows)
	m.grid.SetHeight(snap.Page.Size + 1)
	if c := m.grid.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.grid.SetCursor(len(rows) - 1)
	}
}

func (m Model) selected() (models.Record, bool) {
	c := m.grid.Cursor()
	if c < 0 || c >= len(m.rows) {
		return models.Record{}, false
	}
	return m.rows[c], true
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func pageCount(s view.Snapshot) int {
	if s.Result.Total == 0 || s.Page.Size <= 0 {
		return 1
	}
	return (s.Result.Total + s.Page.Size - 1) / s.Page.Size
}

func sortLabel(s *models.Sort) string {
	if s == nil {
		return "none"
	}
	return fmt.Sprintf("%s %s", s.Field, s.Direction)
}

// View renders the browser.
func (m Model) View() string {
	snap := m.table.Snapshot()
	var sb strings.Builder

	sb.WriteString(m.styles.Header.Render(" Tabula "))
	sb.WriteString("  ")
	sb.WriteString(m.styles.Muted.Render(fmt.Sprintf("%d records  sort: %s", snap.Result.Total, sortLabel(snap.Sort))))
	sb.WriteString("\n\n")

	box := m.styles.Box
	if m.focus == focusSearch {
		box = m.styles.BoxFocus
	}
	sb.WriteString(box.Render(m.search.View()))
	sb.WriteString("\n")

	if m.focus == focusForm {
		sb.WriteString(m.renderForm(snap.Edit))
	} else {
		sb.WriteString(m.grid.View())
	}
	sb.WriteString("\n")

	sb.WriteString(m.styles.Muted.Render(fmt.Sprintf("page %d of %d", snap.Page.Index, pageCount(snap))))
	sb.WriteString("\n")
	if m.err != "" {
		sb.WriteString(m.styles.Error.Render(m.err))
	} else if m.status != "" {
		sb.WriteString(m.styles.Status.Render(m.status))
	}
	sb.WriteString("\n")
	sb.WriteString(m.styles.Muted.Render(m.help()))
	return sb.String()
}

func (m Model) renderForm(edit view.EditState) string {
	var sb strings.Builder
	title := "New record"
	if edit.Mode == view.Editing {
		title = "Edit " + shortID(edit.RecordID)
	}
	sb.WriteString(m.styles.Header.Render(title))
	sb.WriteString("\n")
	for i, in := range m.form {
		sb.WriteString(m.styles.Label.Render(fieldKeys[i]))
		sb.WriteString(in.View())
		if msg := edit.Errors[fieldKeys[i]]; msg != "" {
			sb.WriteString("  ")
			sb.WriteString(m.styles.Error.Render(msg))
		}
		sb.WriteString("\n")
	}
	return m.styles.BoxFocus.Render(strings.TrimRight(sb.String(), "\n"))
}

func (m Model) help() string {
	switch m.focus {
	case focusSearch:
		return "[Enter] apply  [Esc] back"
	case focusForm:
		return "[Tab] next field  [Enter] save  [Esc] cancel"
	default:
		return "[/] search  [s] sort  [n/p] page  [a] add  [e] edit  [d] delete  [q] quit"
	}
}

// Run starts the browser on the terminal and blocks until the user quits or
// ctx ends.
func Run(ctx context.Context, t *view.Table, refreshed <-chan struct{}, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	p := tea.NewProgram(New(ctx, t, refreshed), opts...)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
