package recordstore

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tabula/internal/apperr"
	"github.com/starford/tabula/internal/models"
)

// NormalizeInput trims the name and rewrites the date into canonical form
// when it parses under an accepted layout. Unparseable dates are left as-is
// for validation to reject.
func NormalizeInput(in models.Input) models.Input {
	in.Name = strings.TrimSpace(in.Name)
	in.Date = strings.TrimSpace(in.Date)
	if d, ok := parseDate(in.Date); ok {
		in.Date = d.Format(models.DateLayout)
	}
	return in
}

// ValidateInput normalizes in and checks every field constraint. Failures
// are returned as *apperr.ValidationError.
func ValidateInput(in models.Input) (models.Input, error) {
	in = NormalizeInput(in)
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Name,
			validation.Required.Error("is required"),
			validation.RuneLength(1, models.MaxNameLen).Error("must be at most 64 characters"),
		),
		validation.Field(&in.Date,
			validation.Required.Error("is required"),
			validation.Date(models.DateLayout).Error("must be a valid calendar date (YYYY-MM-DD)"),
		),
		validation.Field(&in.Value,
			validation.Min(models.MinValue).Error("must be no less than -1000000000"),
			validation.Max(models.MaxValue).Error("must be no greater than 1000000000"),
		),
	)
	if err != nil {
		return in, toValidationError(err)
	}
	return in, nil
}

func validateRecord(r models.Record) (models.Record, error) {
	if strings.TrimSpace(r.ID) == "" {
		return r, apperr.NewValidationError(map[string]string{"id": "is required"})
	}
	in, err := ValidateInput(models.Input{Name: r.Name, Date: r.Date, Value: r.Value})
	if err != nil {
		return r, err
	}
	return models.Record{ID: r.ID, Name: in.Name, Date: in.Date, Value: in.Value}, nil
}

func toValidationError(err error) error {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return apperr.NewValidationError(map[string]string{"input": err.Error()})
	}
	fields := make(map[string]string, len(errs))
	for k, e := range errs {
		fields[k] = e.Error()
	}
	return apperr.NewValidationError(fields)
}

var dateLayouts = []string{models.DateLayout, time.RFC3339Nano, time.RFC3339}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
