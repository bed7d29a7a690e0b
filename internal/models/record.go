// Package models defines the domain types for Tabula.
package models

// DateLayout is the canonical calendar date form used for storage and comparison.
const DateLayout = "2006-01-02"

// Value bounds for Record.Value.
const (
	MinValue int64 = -1_000_000_000
	MaxValue int64 = 1_000_000_000
)

// MaxNameLen is the maximum length of Record.Name in runes.
const MaxNameLen = 64

// Record is one row of user data with a stable identifier.
type Record struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// Input carries the editable fields of a Record.
type Input struct {
	Name  string `json:"name"`
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// Field names a sortable column.
type Field string

const (
	FieldName  Field = "name"
	FieldDate  Field = "date"
	FieldValue Field = "value"
)

// Direction is a sort order.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Filter narrows a query. An empty or whitespace keyword matches everything.
type Filter struct {
	Keyword string
}

// Sort orders query results by one field.
type Sort struct {
	Field     Field
	Direction Direction
}

// Page selects a 1-based window of results.
type Page struct {
	Index int
	Size  int
}

// Result is one page of a query plus the filtered total.
type Result struct {
	Items []Record `json:"items"`
	Total int      `json:"total"`
}
