package recordstore

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/starford/tabula/internal/models"
)

func sample() []models.Record {
	return []models.Record{
		{ID: "1", Name: "Alpha", Date: "2024-01-01", Value: 100},
		{ID: "2", Name: "beta", Date: "2023-06-15", Value: -3},
		{ID: "3", Name: "Gamma", Date: "2025-12-31", Value: 2024},
		{ID: "4", Name: "Ärger", Date: "2024-01-10", Value: 5},
	}
}

func TestFilterRecords(t *testing.T) {
	cases := []struct {
		keyword string
		want    []string
	}{
		{"", []string{"1", "2", "3", "4"}},
		{"   ", []string{"1", "2", "3", "4"}},
		{"ALP", []string{"1"}},
		{"  beta ", []string{"2"}},
		{"2024", []string{"1", "3", "4"}}, // dates of 1 and 4, value of 3
		{"-3", []string{"2", "3"}},        // value of 2, "12-31" of 3
		{"06-1", []string{"2"}},
		{"ärg", []string{"4"}},
		{"zzz", []string{}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%q", tc.keyword), func(t *testing.T) {
			assert.Equal(t, tc.want, ids(FilterRecords(sample(), tc.keyword)))
		})
	}
}

func TestFilterRecords_Idempotent(t *testing.T) {
	for _, kw := range []string{"a", " A ", "20", "-", "x"} {
		once := FilterRecords(sample(), kw)
		twice := FilterRecords(once, kw)
		renormalized := FilterRecords(once, NormalizeKeyword(kw))
		assert.Equal(t, once, twice, "keyword %q", kw)
		assert.Equal(t, once, renormalized, "keyword %q", kw)
	}
}

func TestFilterRecords_DoesNotMutate(t *testing.T) {
	in := sample()
	_ = FilterRecords(in, "alpha")
	assert.Equal(t, sample(), in)
}

func TestSortRecords_Name(t *testing.T) {
	recs := sample()
	SortRecords(recs, models.Sort{Field: models.FieldName, Direction: models.Ascending}, language.German)
	assert.Equal(t, []string{"1", "4", "2", "3"}, ids(recs), "collation ignores case and places Ä with A")

	SortRecords(recs, models.Sort{Field: models.FieldName, Direction: models.Descending}, language.German)
	assert.Equal(t, []string{"3", "2", "4", "1"}, ids(recs))
}

func TestSortRecords_Date(t *testing.T) {
	recs := sample()
	SortRecords(recs, models.Sort{Field: models.FieldDate, Direction: models.Ascending}, language.English)
	assert.Equal(t, []string{"2", "1", "4", "3"}, ids(recs))
}

func TestSortRecords_StableOnTies(t *testing.T) {
	recs := []models.Record{
		{ID: "a", Value: 1}, {ID: "b", Value: 0}, {ID: "c", Value: 1}, {ID: "d", Value: 0},
	}
	SortRecords(recs, models.Sort{Field: models.FieldValue, Direction: models.Ascending}, language.English)
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids(recs))
}

func TestPaginate(t *testing.T) {
	recs := sample()

	res := Paginate(recs, models.Page{Index: 2, Size: 3})
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, []string{"4"}, ids(res.Items))

	res = Paginate(recs, models.Page{Index: 3, Size: 3})
	assert.Equal(t, 4, res.Total)
	assert.Empty(t, res.Items)
	assert.NotNil(t, res.Items)

	res = Paginate(recs, models.Page{Index: 1 << 40, Size: 1 << 30})
	assert.Empty(t, res.Items)

	res = Paginate(nil, models.Page{Index: 1, Size: 10})
	assert.Equal(t, 0, res.Total)
	assert.Empty(t, res.Items)
}

func TestPaginate_PagesConcatenate(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	var recs []models.Record
	for i := range 53 {
		recs = append(recs, models.Record{
			ID:    fmt.Sprintf("r%02d", i),
			Name:  fmt.Sprintf("n%d", r.IntN(20)),
			Date:  fmt.Sprintf("2024-%02d-%02d", 1+r.IntN(12), 1+r.IntN(28)),
			Value: int64(r.IntN(2000) - 1000),
		})
	}
	filtered := FilterRecords(recs, "1")
	SortRecords(filtered, models.Sort{Field: models.FieldValue, Direction: models.Descending}, language.English)

	for _, size := range []int{1, 3, 7, 10, 100} {
		var joined []models.Record
		pages := (len(filtered) + size - 1) / size
		for i := 1; i <= pages; i++ {
			res := Paginate(filtered, models.Page{Index: i, Size: size})
			require.Equal(t, len(filtered), res.Total)
			joined = append(joined, res.Items...)
		}
		assert.Equal(t, filtered, joined, "size %d", size)
	}
}
