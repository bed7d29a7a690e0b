package api

import "github.com/starford/tabula/internal/models"

// RecordRequest is the request body for creating or updating a record.
type RecordRequest struct {
	Name  string `json:"name" example:"Alpha" validate:"required"`
	Date  string `json:"date" example:"2024-01-01" validate:"required"`
	Value *int64 `json:"value" example:"100" validate:"required"`
}

func (r RecordRequest) input() models.Input {
	in := models.Input{Name: r.Name, Date: r.Date}
	if r.Value != nil {
		in.Value = *r.Value
	}
	return in
}

// Record is the record response type (aliased from the domain layer).
type Record = models.Record

// RecordListResponse wraps one page of a filtered, sorted listing.
type RecordListResponse struct {
	Items []Record `json:"items" validate:"required"`
	Total int      `json:"total" example:"42" validate:"required"`
	Page  int      `json:"page" example:"1" validate:"required"`
	Size  int      `json:"size" example:"10" validate:"required"`
}

// PageSizeResponse is the page size suggested for a viewport width.
type PageSizeResponse struct {
	Size int `json:"size" example:"6" validate:"required"`
}
