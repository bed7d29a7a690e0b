package view

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/starford/tabula/internal/apperr"
	"github.com/starford/tabula/internal/models"
	"github.com/starford/tabula/internal/recordstore"
	"github.com/starford/tabula/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTable(t *testing.T, s Store, opts ...Option) *Table {
	t.Helper()
	tbl := New(s, opts...)
	t.Cleanup(tbl.Close)
	require.NoError(t, tbl.Refresh(context.Background()))
	return tbl
}

func TestPageSizeFor(t *testing.T) {
	cases := map[int]int{
		320: 3, 400: 3, 401: 4, 480: 4, 481: 6, 768: 6, 769: 10, 1920: 10,
	}
	for width, want := range cases {
		assert.Equal(t, want, PageSizeFor(width), "width %d", width)
	}
}

func TestRefresh_FirstPage(t *testing.T) {
	tbl := newTable(t, testutil.SeededStore(t, 12))
	snap := tbl.Snapshot()
	assert.Equal(t, 12, snap.Result.Total)
	require.Len(t, snap.Result.Items, DefaultPageSize)
	assert.Equal(t, "row 11", snap.Result.Items[0].Name, "most recent first")
}

func TestSetKeyword_Debounced(t *testing.T) {
	refreshed := make(chan models.Result, 8)
	tbl := newTable(t, testutil.SeededStore(t, 12),
		WithDebounce(50*time.Millisecond),
		WithOnRefresh(func(r models.Result) { refreshed <- r }),
	)
	<-refreshed // initial refresh
	require.NoError(t, tbl.SetPage(context.Background(), 2))
	<-refreshed

	for _, k := range []string{"r", "ro", "row", "row 0"} {
		tbl.SetKeyword(k)
	}

	select {
	case res := <-refreshed:
		assert.Equal(t, 10, res.Total)
	case <-time.After(2 * time.Second):
		t.Fatal("debounced refresh never ran")
	}
	select {
	case <-refreshed:
		t.Fatal("burst produced more than one refresh")
	case <-time.After(150 * time.Millisecond):
	}

	snap := tbl.Snapshot()
	assert.Equal(t, "row 0", snap.Keyword)
	assert.Equal(t, 1, snap.Page.Index, "new keyword starts at page 1")
}

func TestFlushKeyword(t *testing.T) {
	tbl := newTable(t, testutil.SeededStore(t, 5), WithDebounce(time.Hour))
	tbl.SetKeyword("row 03")
	assert.Equal(t, "", tbl.Snapshot().Keyword)
	tbl.FlushKeyword()
	snap := tbl.Snapshot()
	assert.Equal(t, "row 03", snap.Keyword)
	assert.Equal(t, 1, snap.Result.Total)
}

func TestSetSort(t *testing.T) {
	tbl := newTable(t, testutil.SeededStore(t, 4))
	require.NoError(t, tbl.SetSort(context.Background(), &models.Sort{Field: models.FieldValue, Direction: models.Ascending}))
	items := tbl.Snapshot().Result.Items
	assert.Equal(t, int64(0), items[0].Value)

	require.NoError(t, tbl.SetSort(context.Background(), nil))
	assert.Equal(t, int64(3), tbl.Snapshot().Result.Items[0].Value)
}

func TestSetPage_Invalid(t *testing.T) {
	tbl := newTable(t, testutil.SeededStore(t, 1))
	assert.ErrorIs(t, tbl.SetPage(context.Background(), 0), apperr.ErrValidation)
}

func TestResize_KeepsFirstRowVisible(t *testing.T) {
	tbl := newTable(t, testutil.SeededStore(t, 25))
	require.NoError(t, tbl.SetPage(context.Background(), 2)) // rows 10..19

	require.NoError(t, tbl.Resize(context.Background(), 375))
	snap := tbl.Snapshot()
	assert.Equal(t, models.Page{Index: 4, Size: 3}, snap.Page) // rows 9..11
	assert.Len(t, snap.Result.Items, 3)
}

func TestRefresh_ClampsPastLastPage(t *testing.T) {
	s := testutil.SeededStore(t, 11)
	tbl := newTable(t, s)
	require.NoError(t, tbl.SetPage(context.Background(), 2))
	last := tbl.Snapshot().Result.Items
	require.Len(t, last, 1)

	require.NoError(t, tbl.Delete(context.Background(), last[0].ID))
	snap := tbl.Snapshot()
	assert.Equal(t, 1, snap.Page.Index)
	assert.Len(t, snap.Result.Items, 10)
}

// gatedStore holds queries for page 2 of the unfiltered table until release
// is closed.
type gatedStore struct {
	Store
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Query(ctx context.Context, f models.Filter, s *models.Sort, p models.Page) (models.Result, error) {
	if f.Keyword == "" && p.Index == 2 {
		close(g.entered)
		<-g.release
	}
	return g.Store.Query(ctx, f, s, p)
}

func TestRefresh_StaleResultDiscarded(t *testing.T) {
	g := &gatedStore{
		Store:   testutil.SeededStore(t, 12),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	tbl := newTable(t, g, WithDebounce(time.Hour))

	done := make(chan error, 1)
	go func() { done <- tbl.SetPage(context.Background(), 2) }()
	<-g.entered

	tbl.SetKeyword("row 01")
	tbl.FlushKeyword()
	close(g.release)
	require.NoError(t, <-done)

	snap := tbl.Snapshot()
	assert.Equal(t, "row 01", snap.Keyword)
	assert.Equal(t, 1, snap.Page.Index)
	assert.Equal(t, 1, snap.Result.Total)
	require.Len(t, snap.Result.Items, 1)
	assert.Equal(t, "row 01", snap.Result.Items[0].Name)
}

func TestEditWorkflow_Create(t *testing.T) {
	s := testutil.SeededStore(t, 0)
	tbl := newTable(t, s)

	require.NoError(t, tbl.BeginCreate())
	assert.ErrorIs(t, tbl.BeginCreate(), apperr.ErrConflict)

	_, err := tbl.Submit(context.Background(), models.Input{Name: "", Date: "2024-01-01"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	snap := tbl.Snapshot()
	assert.Equal(t, Creating, snap.Edit.Mode, "invalid submit keeps the form open")
	assert.Contains(t, snap.Edit.Errors, "name")

	rec, err := tbl.Submit(context.Background(), models.Input{Name: "New", Date: "2024-01-01", Value: 1})
	require.NoError(t, err)
	snap = tbl.Snapshot()
	assert.Equal(t, Idle, snap.Edit.Mode)
	require.Len(t, snap.Result.Items, 1)
	assert.Equal(t, rec.ID, snap.Result.Items[0].ID)
}

func TestEditWorkflow_EditAndCancel(t *testing.T) {
	s := testutil.SeededStore(t, 2)
	tbl := newTable(t, s)
	target := tbl.Snapshot().Result.Items[1]

	require.NoError(t, tbl.BeginEdit(context.Background(), target.ID))
	snap := tbl.Snapshot()
	assert.Equal(t, Editing, snap.Edit.Mode)
	assert.Equal(t, target.Name, snap.Edit.Draft.Name)

	tbl.Cancel()
	assert.Equal(t, Idle, tbl.Snapshot().Edit.Mode)
	got, err := s.Get(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, target, got, "cancel leaves the store untouched")

	require.NoError(t, tbl.BeginEdit(context.Background(), target.ID))
	updated, err := tbl.Submit(context.Background(), models.Input{Name: "Renamed", Date: target.Date, Value: 99})
	require.NoError(t, err)
	assert.Equal(t, target.ID, updated.ID)
	assert.Equal(t, "Renamed", tbl.Snapshot().Result.Items[1].Name)
}

func TestEditWorkflow_Errors(t *testing.T) {
	tbl := newTable(t, testutil.SeededStore(t, 1))
	assert.ErrorIs(t, tbl.BeginEdit(context.Background(), "ghost"), apperr.ErrNotFound)
	_, err := tbl.Submit(context.Background(), models.Input{Name: "x", Date: "2024-01-01"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestDelete_RowStaysVisibleAndLocked(t *testing.T) {
	s := testutil.SeededStore(t, 2, recordstore.WithRemoveLatency(300*time.Millisecond))
	tbl := newTable(t, s)
	target := tbl.Snapshot().Result.Items[0]

	done := make(chan error, 1)
	go func() { done <- tbl.Delete(context.Background(), target.ID) }()

	require.Eventually(t, func() bool { return tbl.Deleting(target.ID) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{target.ID}, tbl.Snapshot().Deleting)
	assert.Len(t, tbl.Snapshot().Result.Items, 2)
	assert.ErrorIs(t, tbl.BeginEdit(context.Background(), target.ID), apperr.ErrConflict)

	require.NoError(t, <-done)
	assert.False(t, tbl.Deleting(target.ID))
	items := tbl.Snapshot().Result.Items
	require.Len(t, items, 1)
	assert.NotEqual(t, target.ID, items[0].ID)
}
