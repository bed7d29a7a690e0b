// Package recordstore owns the canonical record table: it loads the table
// from a storage slot, persists it after every mutation, and answers
// filtered, sorted, paginated queries over it.
//
// Persistence is best-effort. A failed encode or write is logged and the
// in-memory table stays authoritative for the rest of the process.
package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/starford/tabula/internal/apperr"
	"github.com/starford/tabula/internal/checksum"
	"github.com/starford/tabula/internal/models"
	"github.com/starford/tabula/internal/storage"
)

// ChangeKind identifies a committed mutation.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeUpdated  ChangeKind = "updated"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeReloaded ChangeKind = "reloaded"
)

// Change describes a committed mutation. Record is zero for ChangeReloaded.
type Change struct {
	Kind   ChangeKind
	Record models.Record
}

// Option configures a Store.
type Option func(*Store)

// WithKey sets the storage slot key.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithLocale sets the collation language for name sorting.
func WithLocale(tag language.Tag) Option {
	return func(s *Store) { s.lang = tag }
}

// WithQueryLatency delays every Query by d.
func WithQueryLatency(d time.Duration) Option {
	return func(s *Store) { s.queryLatency = d }
}

// WithRemoveLatency delays the completion of every Remove by d.
func WithRemoveLatency(d time.Duration) Option {
	return func(s *Store) { s.removeLatency = d }
}

// WithLogger sets the logger used for persistence warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is the RecordStore. It is safe for concurrent use.
type Store struct {
	provider storage.Provider
	key      string
	lang     language.Tag
	logger   *slog.Logger

	queryLatency  time.Duration
	removeLatency time.Duration

	marshal func(any) ([]byte, error)
	newID   func() string

	mu        sync.Mutex
	records   []models.Record // most-recent-first
	pending   map[string]int  // ids with a removal in flight
	lastSaved string          // checksum of the last payload written
	hooks     []func(Change)
}

// New creates an empty Store over provider. Call Load to populate it.
func New(provider storage.Provider, opts ...Option) *Store {
	s := &Store{
		provider: provider,
		key:      storage.DefaultKey,
		lang:     language.English,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		marshal:  json.Marshal,
		newID:    uuid.NewString,
		records:  []models.Record{},
		pending:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates a Store and loads the persisted table.
func Open(ctx context.Context, provider storage.Provider, opts ...Option) *Store {
	s := New(provider, opts...)
	s.Load(ctx)
	return s
}

// Key returns the storage slot key.
func (s *Store) Key() string {
	return s.key
}

// OnChange registers fn to run after every committed mutation. Hooks run
// outside the store lock and may call back into the store.
func (s *Store) OnChange(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Load reads the persisted table and makes it the in-memory state. A
// missing, unreadable, or malformed slot yields an empty table. Individual
// entries that fail validation or repeat an id are dropped.
func (s *Store) Load(_ context.Context) []models.Record {
	records, sum := s.read()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	s.lastSaved = sum
	return slices.Clone(records)
}

// Reload re-reads the slot after an external change. It reports whether the
// in-memory table was replaced; a slot matching the last write is ignored,
// and so is a slot that cannot be read.
func (s *Store) Reload(_ context.Context) bool {
	s.mu.Lock()
	data, err := s.provider.Get(s.key)
	switch {
	case err == nil && checksum.Sum(data) == s.lastSaved:
		s.mu.Unlock()
		return false
	case errors.Is(err, apperr.ErrNotFound) && s.lastSaved == "" && len(s.records) == 0:
		s.mu.Unlock()
		return false
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		s.mu.Unlock()
		s.logger.Warn("store: reload read failed, keeping in-memory state",
			slog.String("key", s.key), slog.String("error", err.Error()))
		return false
	}
	records, sum := s.read()
	s.records = records
	s.lastSaved = sum
	hooks := slices.Clone(s.hooks)
	s.mu.Unlock()

	s.logger.Info("store: reloaded", slog.String("key", s.key), slog.Int("records", len(records)))
	notify(hooks, Change{Kind: ChangeReloaded})
	return true
}

// LastSaved returns the checksum of the payload most recently loaded or written.
func (s *Store) LastSaved() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved
}

func (s *Store) read() ([]models.Record, string) {
	data, err := s.provider.Get(s.key)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.logger.Warn("store: read failed", slog.String("key", s.key), slog.String("error", err.Error()))
		}
		return []models.Record{}, ""
	}
	return s.decode(data), checksum.Sum(data)
}

func (s *Store) decode(data []byte) []models.Record {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("store: slot is not a record array", slog.String("key", s.key), slog.String("error", err.Error()))
		return []models.Record{}
	}
	out := make([]models.Record, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, msg := range raw {
		var r models.Record
		if err := json.Unmarshal(msg, &r); err != nil {
			s.logger.Warn("store: dropping undecodable entry", slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		r, err := validateRecord(r)
		if err != nil {
			s.logger.Warn("store: dropping invalid entry", slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		if _, dup := seen[r.ID]; dup {
			s.logger.Warn("store: dropping duplicate id", slog.Int("index", i), slog.String("id", r.ID))
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// All returns a copy of the table in store order.
func (s *Store) All() []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records)
}

// Get returns the record with id.
func (s *Store) Get(_ context.Context, id string) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return models.Record{}, fmt.Errorf("record %s: %w", id, apperr.ErrNotFound)
	}
	return s.records[idx], nil
}

// Pending reports whether a removal of id is in flight.
func (s *Store) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[id] > 0
}

// Add validates in, assigns a fresh id, and prepends the new record.
func (s *Store) Add(_ context.Context, in models.Input) (models.Record, error) {
	in, err := ValidateInput(in)
	if err != nil {
		return models.Record{}, err
	}

	s.mu.Lock()
	rec := models.Record{ID: s.uniqueID(), Name: in.Name, Date: in.Date, Value: in.Value}
	next := make([]models.Record, 0, len(s.records)+1)
	next = append(next, rec)
	next = append(next, s.records...)
	hooks := s.commit(next)
	s.mu.Unlock()

	notify(hooks, Change{Kind: ChangeCreated, Record: rec})
	return rec, nil
}

// Update validates in and replaces the fields of the record with id, keeping
// its position.
func (s *Store) Update(ctx context.Context, id string, in models.Input) (models.Record, error) {
	return s.UpdateIfMatch(ctx, id, "", in)
}

// UpdateIfMatch is Update guarded by the record's checksum. A non-empty
// ifMatch that differs from the current checksum fails with ErrConflict, as
// does an update of a record whose removal is in flight.
func (s *Store) UpdateIfMatch(_ context.Context, id, ifMatch string, in models.Input) (models.Record, error) {
	in, err := ValidateInput(in)
	if err != nil {
		return models.Record{}, err
	}

	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return models.Record{}, fmt.Errorf("record %s: %w", id, apperr.ErrNotFound)
	}
	if s.pending[id] > 0 {
		s.mu.Unlock()
		return models.Record{}, fmt.Errorf("record %s is being deleted: %w", id, apperr.ErrConflict)
	}
	if ifMatch != "" && ifMatch != checksum.Record(s.records[idx]) {
		s.mu.Unlock()
		return models.Record{}, fmt.Errorf("record %s changed: %w", id, apperr.ErrConflict)
	}
	rec := models.Record{ID: id, Name: in.Name, Date: in.Date, Value: in.Value}
	next := slices.Clone(s.records)
	next[idx] = rec
	hooks := s.commit(next)
	s.mu.Unlock()

	notify(hooks, Change{Kind: ChangeUpdated, Record: rec})
	return rec, nil
}

// Remove deletes the record with id after the configured removal latency.
// The record stays visible, but not editable, until removal completes. The
// wait is not cut short by ctx. Removing an absent id is a no-op.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.indexOf(id) < 0 {
		s.mu.Unlock()
		return nil
	}
	s.pending[id]++
	s.mu.Unlock()

	_ = wait(context.WithoutCancel(ctx), s.removeLatency)

	s.mu.Lock()
	if s.pending[id]--; s.pending[id] <= 0 {
		delete(s.pending, id)
	}
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}
	rec := s.records[idx]
	next := slices.Delete(slices.Clone(s.records), idx, idx+1)
	hooks := s.commit(next)
	s.mu.Unlock()

	notify(hooks, Change{Kind: ChangeDeleted, Record: rec})
	return nil
}

// RemoveAsync starts Remove in the background and returns its deferred
// completion. The channel yields exactly one value and is then closed.
func (s *Store) RemoveAsync(ctx context.Context, id string) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- s.Remove(ctx, id)
	}()
	return done
}

// Query filters, optionally sorts, and paginates the table. It waits the
// configured query latency first and returns ctx.Err() if ctx ends meanwhile.
func (s *Store) Query(ctx context.Context, f models.Filter, srt *models.Sort, p models.Page) (models.Result, error) {
	if err := validateQuery(srt, p); err != nil {
		return models.Result{}, err
	}
	if err := wait(ctx, s.queryLatency); err != nil {
		return models.Result{}, err
	}

	filtered := FilterRecords(s.All(), f.Keyword)
	if srt != nil {
		SortRecords(filtered, *srt, s.lang)
	}
	return Paginate(filtered, p), nil
}

func validateQuery(srt *models.Sort, p models.Page) error {
	fields := map[string]string{}
	if p.Index < 1 {
		fields["page"] = "must be at least 1"
	}
	if p.Size < 1 {
		fields["size"] = "must be at least 1"
	}
	if srt != nil {
		switch srt.Field {
		case models.FieldName, models.FieldDate, models.FieldValue:
		default:
			fields["sort"] = "must be one of name, date, value"
		}
		switch srt.Direction {
		case models.Ascending, models.Descending:
		default:
			fields["order"] = "must be asc or desc"
		}
	}
	if len(fields) > 0 {
		return apperr.NewValidationError(fields)
	}
	return nil
}

// commit persists next and installs it as the table. The caller holds s.mu.
// It returns the hooks to notify once the lock is released.
func (s *Store) commit(next []models.Record) []func(Change) {
	if err := s.persist(next); err != nil {
		s.logger.Warn("store: persist failed, keeping in-memory state",
			slog.String("key", s.key), slog.String("error", err.Error()))
	}
	s.records = next
	return slices.Clone(s.hooks)
}

func (s *Store) persist(records []models.Record) error {
	data, err := s.marshal(records)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", apperr.ErrPersistence, err)
	}
	if err := s.provider.Set(s.key, data); err != nil {
		return fmt.Errorf("%w: write: %w", apperr.ErrPersistence, err)
	}
	s.lastSaved = checksum.Sum(data)
	return nil
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.records, func(r models.Record) bool { return r.ID == id })
}

func (s *Store) uniqueID() string {
	for {
		id := s.newID()
		if s.indexOf(id) < 0 {
			return id
		}
	}
}

func notify(hooks []func(Change), c Change) {
	for _, fn := range hooks {
		fn(c)
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
