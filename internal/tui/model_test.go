package tui

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/starford/tabula/internal/models"
	"github.com/starford/tabula/internal/recordstore"
	"github.com/starford/tabula/internal/storage"
	"github.com/starford/tabula/internal/view"
)

func newModel(t *testing.T, n int) (Model, *recordstore.Store) {
	t.Helper()
	ctx := context.Background()
	store := recordstore.New(storage.NewMemory())
	for i := n; i >= 1; i-- {
		if _, err := store.Add(ctx, models.Input{
			Name:  fmt.Sprintf("rec%02d", i),
			Date:  fmt.Sprintf("2024-01-%02d", i),
			Value: int64(i),
		}); err != nil {
			t.Fatal(err)
		}
	}
	tbl := view.New(store, view.WithDebounce(10*time.Millisecond))
	t.Cleanup(tbl.Close)

	m := New(ctx, tbl, nil)
	// A blinking cursor schedules a tick after every keystroke.
	_ = m.search.Cursor.SetMode(cursor.CursorStatic)
	for i := range m.form {
		_ = m.form[i].Cursor.SetMode(cursor.CursorStatic)
	}
	m = drive(t, m, m.Init())
	return m, store
}

// drive runs cmd and feeds the resulting messages back into m. Commands that
// produce nothing within a short wait are dropped.
func drive(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	out := make(chan tea.Msg, 1)
	go func() { out <- cmd() }()

	var msg tea.Msg
	select {
	case msg = <-out:
	case <-time.After(300 * time.Millisecond):
		return m
	}

	switch msg := msg.(type) {
	case nil:
		return m
	case tea.BatchMsg:
		for _, c := range msg {
			m = drive(t, m, c)
		}
		return m
	case tea.QuitMsg:
		return m
	default:
		next, cmd := m.Update(msg)
		return drive(t, next.(Model), cmd)
	}
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		case "backspace":
			msg = tea.KeyMsg{Type: tea.KeyBackspace}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, cmd := m.Update(msg)
		m = drive(t, next.(Model), cmd)
	}
	return m
}

func names(m Model) []string {
	var out []string
	for _, r := range m.rows {
		out = append(out, r.Name)
	}
	return out
}

func TestInit_LoadsFirstPage(t *testing.T) {
	m, _ := newModel(t, 12)
	if got := len(m.rows); got != 10 {
		t.Fatalf("rows = %d, want 10", got)
	}
	if m.rows[0].Name != "rec01" {
		t.Errorf("first row = %q, want rec01", m.rows[0].Name)
	}
	if !strings.Contains(m.View(), "page 1 of 2") {
		t.Errorf("view missing page indicator:\n%s", m.View())
	}
}

func TestPaging(t *testing.T) {
	m, _ := newModel(t, 12)

	m = press(t, m, "n")
	if got := names(m); len(got) != 2 || got[0] != "rec11" {
		t.Errorf("page 2 = %v", got)
	}

	// Already on the last page.
	m = press(t, m, "n")
	if snap := m.table.Snapshot(); snap.Page.Index != 2 {
		t.Errorf("page = %d, want 2", snap.Page.Index)
	}

	m = press(t, m, "p")
	if snap := m.table.Snapshot(); snap.Page.Index != 1 {
		t.Errorf("page = %d, want 1", snap.Page.Index)
	}
}

func TestWindowResize_UsesPageSizePolicy(t *testing.T) {
	cases := []struct {
		cols int
		rows int
	}{
		{cols: 40, rows: 3},
		{cols: 60, rows: 4},
		{cols: 80, rows: 6},
		{cols: 120, rows: 10},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d columns", tc.cols), func(t *testing.T) {
			m, _ := newModel(t, 12)
			next, cmd := m.Update(tea.WindowSizeMsg{Width: tc.cols, Height: 30})
			m = drive(t, next.(Model), cmd)
			if got := len(m.rows); got != tc.rows {
				t.Errorf("rows = %d, want %d", got, tc.rows)
			}
		})
	}
}

func TestSortCycle(t *testing.T) {
	m, _ := newModel(t, 3)

	m = press(t, m, "s", "s")
	if got := names(m); got[0] != "rec03" {
		t.Errorf("name desc = %v", got)
	}
	if !strings.Contains(m.status, "name desc") {
		t.Errorf("status = %q", m.status)
	}
}

func TestSearch_Debounced(t *testing.T) {
	m, _ := newModel(t, 12)

	m = press(t, m, "/", "r", "e", "c", "1", "1", "enter")
	if got := names(m); len(got) != 1 || got[0] != "rec11" {
		t.Errorf("search results = %v", got)
	}
	if m.focus != focusGrid {
		t.Errorf("focus = %v, want grid", m.focus)
	}
}

func TestAddRecord(t *testing.T) {
	m, store := newModel(t, 2)

	m = press(t, m, "a")
	if m.focus != focusForm {
		t.Fatalf("focus = %v, want form", m.focus)
	}
	m = press(t, m, "N", "e", "w", "tab", "2", "0", "2", "5", "-", "0", "3", "-", "0", "1", "tab", "backspace", "4", "2", "enter")

	if m.focus != focusGrid {
		t.Fatalf("form still open, err = %q", m.err)
	}
	all := store.All()
	if len(all) != 3 || all[0].Name != "New" || all[0].Date != "2025-03-01" || all[0].Value != 42 {
		t.Errorf("store = %+v", all)
	}
	if names(m)[0] != "New" {
		t.Errorf("rows = %v, want New first", names(m))
	}
}

func TestAddRecord_ValidationKeepsFormOpen(t *testing.T) {
	m, store := newModel(t, 1)

	m = press(t, m, "a", "enter")
	if m.focus != focusForm {
		t.Fatal("form closed on invalid input")
	}
	if !strings.Contains(m.err, "name") {
		t.Errorf("err = %q, want name error", m.err)
	}
	if !strings.Contains(m.View(), "New record") {
		t.Errorf("view should show the form:\n%s", m.View())
	}
	if len(store.All()) != 1 {
		t.Error("invalid record was stored")
	}

	m = press(t, m, "esc")
	if m.focus != focusGrid || m.table.Snapshot().Edit.Mode != view.Idle {
		t.Error("esc should cancel the form")
	}
}

func TestSubmit_DeferredToCommand(t *testing.T) {
	m, store := newModel(t, 1)
	m = press(t, m, "a", "N", "tab", "2", "0", "2", "5", "-", "0", "1", "-", "0", "1")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter returned no command")
	}
	if len(store.All()) != 1 {
		t.Error("record saved inside Update")
	}
	if next.(Model).status != "saving..." {
		t.Errorf("status = %q", next.(Model).status)
	}

	m = drive(t, next.(Model), cmd)
	if len(store.All()) != 2 || m.focus != focusGrid {
		t.Errorf("after save: records = %d, focus = %v, err = %q", len(store.All()), m.focus, m.err)
	}
}

func TestBeginEdit_DeferredToCommand(t *testing.T) {
	m, _ := newModel(t, 2)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("e")})
	if cmd == nil {
		t.Fatal("e returned no command")
	}
	if next.(Model).focus != focusGrid {
		t.Error("form opened inside Update")
	}

	m = drive(t, next.(Model), cmd)
	if m.focus != focusForm || m.form[fieldName].Value() != "rec01" {
		t.Errorf("focus = %v, name = %q", m.focus, m.form[fieldName].Value())
	}
}

func TestEditRecord(t *testing.T) {
	m, store := newModel(t, 3)

	m = press(t, m, "down", "e")
	if m.focus != focusForm {
		t.Fatalf("form not open, err = %q", m.err)
	}
	if got := m.form[fieldName].Value(); got != "rec02" {
		t.Errorf("draft name = %q", got)
	}
	m = press(t, m, "X", "enter")

	rec, err := store.Get(context.Background(), m.rows[1].ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Name != "rec02X" {
		t.Errorf("name = %q, want rec02X", rec.Name)
	}
}

func TestDeleteRecord(t *testing.T) {
	m, store := newModel(t, 3)

	m = press(t, m, "d")
	if got := names(m); len(got) != 2 || got[0] != "rec02" {
		t.Errorf("rows after delete = %v", got)
	}
	if len(store.All()) != 2 {
		t.Errorf("store size = %d, want 2", len(store.All()))
	}
	if !strings.HasPrefix(m.status, "deleted") {
		t.Errorf("status = %q", m.status)
	}
}

func TestRefreshSignal(t *testing.T) {
	ctx := context.Background()
	store := recordstore.New(storage.NewMemory())
	signal := make(chan struct{}, 1)
	tbl := view.New(store, view.WithOnRefresh(func(models.Result) {
		select {
		case signal <- struct{}{}:
		default:
		}
	}))
	t.Cleanup(tbl.Close)
	m := New(ctx, tbl, signal)

	if _, err := store.Add(ctx, models.Input{Name: "bg", Date: "2024-01-01"}); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	m = drive(t, m, m.listen())
	if got := names(m); len(got) != 1 || got[0] != "bg" {
		t.Errorf("rows = %v, want [bg]", got)
	}
}
