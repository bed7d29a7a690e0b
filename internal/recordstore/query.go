package recordstore

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/starford/tabula/internal/models"
)

// NormalizeKeyword trims surrounding whitespace and lowercases k.
func NormalizeKeyword(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// FilterRecords returns the records whose name, date, or decimal value
// contains keyword after normalization. An empty keyword keeps everything.
// The input slice is not modified.
func FilterRecords(records []models.Record, keyword string) []models.Record {
	kw := NormalizeKeyword(keyword)
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if kw == "" || matches(r, kw) {
			out = append(out, r)
		}
	}
	return out
}

func matches(r models.Record, kw string) bool {
	return strings.Contains(strings.ToLower(r.Name), kw) ||
		strings.Contains(r.Date, kw) ||
		strings.Contains(strconv.FormatInt(r.Value, 10), kw)
}

// SortRecords stably sorts records in place. Names compare with the
// collation rules of lang.
func SortRecords(records []models.Record, s models.Sort, lang language.Tag) {
	var cmpFn func(a, b models.Record) int
	switch s.Field {
	case models.FieldName:
		col := collate.New(lang)
		cmpFn = func(a, b models.Record) int { return col.CompareString(a.Name, b.Name) }
	case models.FieldDate:
		cmpFn = compareDates
	case models.FieldValue:
		cmpFn = func(a, b models.Record) int { return cmp.Compare(a.Value, b.Value) }
	default:
		return
	}
	if s.Direction == models.Descending {
		asc := cmpFn
		cmpFn = func(a, b models.Record) int { return -asc(a, b) }
	}
	slices.SortStableFunc(records, cmpFn)
}

func compareDates(a, b models.Record) int {
	ta, errA := time.Parse(models.DateLayout, a.Date)
	tb, errB := time.Parse(models.DateLayout, b.Date)
	if errA != nil || errB != nil {
		return strings.Compare(a.Date, b.Date)
	}
	return ta.Compare(tb)
}

// Paginate returns the window selected by p, clamped to the available
// records, together with the unpaginated total. Pages past the end are empty.
func Paginate(records []models.Record, p models.Page) models.Result {
	total := len(records)
	if p.Index < 1 || p.Size < 1 || p.Index-1 > total/p.Size {
		return models.Result{Items: []models.Record{}, Total: total}
	}
	start := (p.Index - 1) * p.Size
	if start >= total {
		return models.Result{Items: []models.Record{}, Total: total}
	}
	end := min(start+p.Size, total)
	return models.Result{Items: slices.Clone(records[start:end]), Total: total}
}
