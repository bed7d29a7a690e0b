// Package seed reads record documents used to populate a table, either at
// first start or through the import command.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/starford/tabula/internal/apperr"
	"github.com/starford/tabula/internal/models"
)

// Document is the on-disk seed layout. A bare YAML or JSON list of records is
// accepted as well.
type Document struct {
	Records []Row `yaml:"records"`
}

// Row is one seed record. Value is a pointer because zero is a valid value.
type Row struct {
	Name  string `yaml:"name"`
	Date  string `yaml:"date"`
	Value *int64 `yaml:"value"`
}

// Input converts r into a store input; a row without a value is rejected.
func (r Row) Input() (models.Input, error) {
	if r.Value == nil {
		return models.Input{}, apperr.NewValidationError(map[string]string{"value": "cannot be blank"})
	}
	return models.Input{Name: r.Name, Date: r.Date, Value: *r.Value}, nil
}

// Adder creates records.
type Adder interface {
	Add(ctx context.Context, in models.Input) (models.Record, error)
}

// RowError reports a seed row that could not be added.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Parse decodes a seed document. JSON is read as YAML.
func Parse(data []byte) ([]Row, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var node yaml.Node
	if err := yaml.Unmarshal(trimmed, &node); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var rows []Row
		if err := root.Decode(&rows); err != nil {
			return nil, fmt.Errorf("decode seed rows: %w", err)
		}
		return rows, nil
	case yaml.MappingNode:
		var doc Document
		if err := root.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode seed document: %w", err)
		}
		return doc.Records, nil
	default:
		return nil, fmt.Errorf("parse seed: expected a list or a mapping with records, got %s", kindName(root.Kind))
	}
}

// Apply adds rows so that the table lists them in document order above any
// existing records. Rows that fail are skipped and reported together.
func Apply(ctx context.Context, dst Adder, rows []Row) (int, error) {
	var errs []error
	added := 0
	for i := len(rows) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		in, err := rows[i].Input()
		if err == nil {
			_, err = dst.Add(ctx, in)
		}
		if err != nil {
			errs = append(errs, &RowError{Row: i + 1, Err: err})
			continue
		}
		added++
	}
	// Report in document order.
	for i, j := 0, len(errs)-1; i < j; i, j = i+1, j-1 {
		errs[i], errs[j] = errs[j], errs[i]
	}
	return added, errors.Join(errs...)
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.ScalarNode:
		return "a scalar"
	case yaml.AliasNode:
		return "an alias"
	default:
		return "an unsupported node"
	}
}
