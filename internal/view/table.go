// Package view holds the headless state of a paged, sortable, searchable
// record table: the current query, the visible page, the edit workflow and
// the per-row delete state. A renderer drives it and draws Snapshot.
package view

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/starford/tabula/internal/apperr"
	"github.com/starford/tabula/internal/debounce"
	"github.com/starford/tabula/internal/models"
)

// Store is the subset of the record store the table drives.
type Store interface {
	Query(ctx context.Context, f models.Filter, s *models.Sort, p models.Page) (models.Result, error)
	Get(ctx context.Context, id string) (models.Record, error)
	Add(ctx context.Context, in models.Input) (models.Record, error)
	Update(ctx context.Context, id string, in models.Input) (models.Record, error)
	Remove(ctx context.Context, id string) error
}

// EditMode is the state of the edit workflow.
type EditMode int

const (
	Idle EditMode = iota
	Creating
	Editing
)

func (m EditMode) String() string {
	switch m {
	case Creating:
		return "creating"
	case Editing:
		return "editing"
	default:
		return "idle"
	}
}

// EditState describes the open form, if any.
type EditState struct {
	Mode     EditMode
	RecordID string
	Draft    models.Input
	Errors   map[string]string
}

// Snapshot is everything a renderer needs to draw the table.
type Snapshot struct {
	Keyword  string
	Sort     *models.Sort
	Page     models.Page
	Result   models.Result
	Edit     EditState
	Deleting []string
}

// Option configures a Table.
type Option func(*Table)

// WithDebounce sets the keyword quiet period.
func WithDebounce(d time.Duration) Option {
	return func(t *Table) { t.quiet = d }
}

// WithPageSize sets the initial page size.
func WithPageSize(n int) Option {
	return func(t *Table) {
		if n > 0 {
			t.page.Size = n
		}
	}
}

// WithLogger sets the logger for background refresh failures.
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) { t.logger = l }
}

// WithOnRefresh registers fn to receive every refreshed page.
func WithOnRefresh(fn func(models.Result)) Option {
	return func(t *Table) { t.onRefresh = fn }
}

// Table is the table view-model. It is safe for concurrent use.
type Table struct {
	store     Store
	logger    *slog.Logger
	quiet     time.Duration
	onRefresh func(models.Result)
	keywordDb *debounce.Debouncer

	mu             sync.Mutex
	keyword        string
	pendingKeyword string
	sort           *models.Sort
	page           models.Page
	result         models.Result
	edit           EditState
	deleting       map[string]struct{}

	gen     uint64 // bumped when keyword, sort or page change
	seq     uint64 // last refresh started
	applied uint64 // last refresh installed
}

// New returns a Table over store showing page 1 with ten rows per page.
func New(store Store, opts ...Option) *Table {
	t := &Table{
		store:    store,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		quiet:    debounce.DefaultQuiet,
		page:     models.Page{Index: 1, Size: DefaultPageSize},
		result:   models.Result{Items: []models.Record{}},
		deleting: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.keywordDb = debounce.New(t.quiet, t.applyKeyword)
	return t
}

// Close cancels any pending keyword update.
func (t *Table) Close() {
	t.keywordDb.Stop()
}

// Snapshot returns a copy of the current state.
func (t *Table) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := Snapshot{
		Keyword: t.keyword,
		Page:    t.page,
		Result:  models.Result{Items: append([]models.Record{}, t.result.Items...), Total: t.result.Total},
		Edit:    t.edit,
	}
	if t.sort != nil {
		s := *t.sort
		snap.Sort = &s
	}
	for id := range t.deleting {
		snap.Deleting = append(snap.Deleting, id)
	}
	slices.Sort(snap.Deleting)
	return snap
}

// Refresh re-runs the current query. When the current page has fallen past
// the end of the results it moves to the last page. A refresh whose query
// state changed while it ran, or that finished after a newer refresh, is
// discarded.
func (t *Table) Refresh(ctx context.Context) error {
	t.mu.Lock()
	f := models.Filter{Keyword: t.keyword}
	srt := t.sort
	page := t.page
	gen := t.gen
	t.seq++
	seq := t.seq
	t.mu.Unlock()

	res, err := t.store.Query(ctx, f, srt, page)
	if err != nil {
		return fmt.Errorf("view: refresh: %w", err)
	}
	if len(res.Items) == 0 && res.Total > 0 && page.Index > 1 {
		page.Index = (res.Total + page.Size - 1) / page.Size
		if res, err = t.store.Query(ctx, f, srt, page); err != nil {
			return fmt.Errorf("view: refresh: %w", err)
		}
	}

	t.mu.Lock()
	if gen != t.gen || seq < t.applied {
		t.mu.Unlock()
		return nil
	}
	t.page = page
	t.result = res
	t.applied = seq
	onRefresh := t.onRefresh
	t.mu.Unlock()

	if onRefresh != nil {
		onRefresh(res)
	}
	return nil
}

// SetKeyword records a new search keyword. The query runs once the keyword
// has been stable for the quiet period, starting again from page 1.
func (t *Table) SetKeyword(k string) {
	t.mu.Lock()
	t.pendingKeyword = k
	t.mu.Unlock()
	t.keywordDb.Trigger()
}

// FlushKeyword applies a pending keyword immediately.
func (t *Table) FlushKeyword() {
	t.keywordDb.Flush()
}

func (t *Table) applyKeyword() {
	t.mu.Lock()
	t.keyword = t.pendingKeyword
	t.page.Index = 1
	t.gen++
	t.mu.Unlock()
	if err := t.Refresh(context.Background()); err != nil {
		t.logger.Warn("view: keyword refresh failed", slog.String("error", err.Error()))
	}
}

// SetSort changes the sort order; nil restores store order.
func (t *Table) SetSort(ctx context.Context, s *models.Sort) error {
	t.mu.Lock()
	if s != nil {
		cp := *s
		s = &cp
	}
	t.sort = s
	t.gen++
	t.mu.Unlock()
	return t.Refresh(ctx)
}

// SetPage moves to the 1-based page index.
func (t *Table) SetPage(ctx context.Context, index int) error {
	if index < 1 {
		return apperr.NewValidationError(map[string]string{"page": "must be at least 1"})
	}
	t.mu.Lock()
	t.page.Index = index
	t.gen++
	t.mu.Unlock()
	return t.Refresh(ctx)
}

// Resize applies the page size policy for a viewport width, keeping the
// first visible row on screen.
func (t *Table) Resize(ctx context.Context, width int) error {
	size := PageSizeFor(width)
	t.mu.Lock()
	if size == t.page.Size {
		t.mu.Unlock()
		return nil
	}
	first := (t.page.Index - 1) * t.page.Size
	t.page = models.Page{Index: first/size + 1, Size: size}
	t.gen++
	t.mu.Unlock()
	return t.Refresh(ctx)
}

// BeginCreate opens an empty form for a new record.
func (t *Table) BeginCreate() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.edit.Mode != Idle {
		return fmt.Errorf("view: %s in progress: %w", t.edit.Mode, apperr.ErrConflict)
	}
	t.edit = EditState{Mode: Creating}
	return nil
}

// BeginEdit opens the form for an existing record. Rows that are being
// deleted cannot be edited.
func (t *Table) BeginEdit(ctx context.Context, id string) error {
	t.mu.Lock()
	if t.edit.Mode != Idle {
		t.mu.Unlock()
		return fmt.Errorf("view: %s in progress: %w", t.edit.Mode, apperr.ErrConflict)
	}
	if _, busy := t.deleting[id]; busy {
		t.mu.Unlock()
		return fmt.Errorf("view: record %s is being deleted: %w", id, apperr.ErrConflict)
	}
	t.mu.Unlock()

	rec, err := t.store.Get(ctx, id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.edit = EditState{
		Mode:     Editing,
		RecordID: rec.ID,
		Draft:    models.Input{Name: rec.Name, Date: rec.Date, Value: rec.Value},
	}
	return nil
}

// Submit validates and saves the open form. Validation failures keep the
// form open with per-field errors; any other outcome closes it.
func (t *Table) Submit(ctx context.Context, in models.Input) (models.Record, error) {
	t.mu.Lock()
	edit := t.edit
	t.mu.Unlock()

	var (
		rec models.Record
		err error
	)
	switch edit.Mode {
	case Creating:
		rec, err = t.store.Add(ctx, in)
	case Editing:
		rec, err = t.store.Update(ctx, edit.RecordID, in)
	default:
		return models.Record{}, fmt.Errorf("view: no form open: %w", apperr.ErrConflict)
	}

	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		t.mu.Lock()
		t.edit.Draft = in
		t.edit.Errors = verr.Fields
		t.mu.Unlock()
		return models.Record{}, err
	}

	t.mu.Lock()
	t.edit = EditState{}
	t.mu.Unlock()
	if err != nil {
		return models.Record{}, err
	}
	if rerr := t.Refresh(ctx); rerr != nil {
		t.logger.Warn("view: refresh after submit failed", slog.String("error", rerr.Error()))
	}
	return rec, nil
}

// Cancel discards the open form without touching the store.
func (t *Table) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.edit = EditState{}
}

// Delete removes a row. While the removal is in flight the row stays
// visible, is reported by Deleting, and cannot be edited.
func (t *Table) Delete(ctx context.Context, id string) error {
	t.mu.Lock()
	t.deleting[id] = struct{}{}
	t.mu.Unlock()

	err := t.store.Remove(ctx, id)

	t.mu.Lock()
	delete(t.deleting, id)
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("view: delete %s: %w", id, err)
	}
	return t.Refresh(ctx)
}

// Deleting reports whether id has a removal in flight.
func (t *Table) Deleting(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.deleting[id]
	return ok
}
