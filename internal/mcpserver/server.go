// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Tabula record tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tabula/internal/apperr"
	"github.com/starford/tabula/internal/models"
	"github.com/starford/tabula/internal/view"
)

// FormatURI is the resource URI of the record format contract.
const FormatURI = "tabula://record-format"

// maxPageSize bounds the size argument of query_records.
const maxPageSize = 100

// Store is the subset of the record store the tools use.
type Store interface {
	Query(ctx context.Context, f models.Filter, srt *models.Sort, p models.Page) (models.Result, error)
	Get(ctx context.Context, id string) (models.Record, error)
	Add(ctx context.Context, in models.Input) (models.Record, error)
	Update(ctx context.Context, id string, in models.Input) (models.Record, error)
	Remove(ctx context.Context, id string) error
}

// Server wraps the MCP server with Tabula tools.
type Server struct {
	mcp   *server.MCPServer
	store Store
}

// New creates a new MCP server with all Tabula tools registered.
func New(store Store) *Server {
	s := &Server{store: store}

	s.mcp = server.NewMCPServer(
		"Tabula",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("query_records",
		mcp.WithDescription("Filter, sort and paginate the record table. "+
			"The keyword matches case-insensitively against name, date and the decimal value."),
		mcp.WithString("keyword", mcp.Description("Optional search keyword")),
		mcp.WithString("sort", mcp.Description("Optional sort field"), mcp.Enum("name", "date", "value")),
		mcp.WithString("order", mcp.Description("Sort direction, default asc"), mcp.Enum("asc", "desc")),
		mcp.WithNumber("page", mcp.Description("1-based page index, default 1")),
		mcp.WithNumber("size", mcp.Description("Page size, default 10")),
	), s.queryRecords)

	s.mcp.AddTool(mcp.NewTool("get_record",
		mcp.WithDescription("Read one record by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
	), s.getRecord)

	s.mcp.AddTool(mcp.NewTool("add_record",
		mcp.WithDescription("Create a record. It is inserted at the top of the table. "+
			"Fields MUST follow the record format contract ("+FormatURI+")."),
		mcp.WithString("name", mcp.Required(), mcp.Description("1 to 64 characters")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Calendar date, YYYY-MM-DD")),
		mcp.WithNumber("value", mcp.Required(), mcp.Description("Integer between -1000000000 and 1000000000")),
	), s.addRecord)

	s.mcp.AddTool(mcp.NewTool("update_record",
		mcp.WithDescription("Replace the name, date and value of an existing record, keeping its id and position."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
		mcp.WithString("name", mcp.Required(), mcp.Description("1 to 64 characters")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Calendar date, YYYY-MM-DD")),
		mcp.WithNumber("value", mcp.Required(), mcp.Description("Integer between -1000000000 and 1000000000")),
	), s.updateRecord)

	s.mcp.AddTool(mcp.NewTool("delete_record",
		mcp.WithDescription("Delete a record by id. Deleting an unknown id is a no-op."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
	), s.deleteRecord)

	// Resource: record format contract.
	s.mcp.AddResource(
		mcp.NewResource(FormatURI, "Record Format Contract",
			mcp.WithResourceDescription("Fields and constraints of a Tabula record."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRecordFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func errorResult(err error) *mcp.CallToolResult {
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		out, _ := json.Marshal(verr.Fields)
		return mcp.NewToolResultError("validation failed: " + string(out))
	}
	return mcp.NewToolResultError(err.Error())
}

// recordInput reads name, date and value from the tool arguments.
func recordInput(req mcp.CallToolRequest) (models.Input, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return models.Input{}, err
	}
	date, err := req.RequireString("date")
	if err != nil {
		return models.Input{}, err
	}
	raw, err := req.RequireFloat("value")
	if err != nil {
		return models.Input{}, err
	}
	if raw != math.Trunc(raw) || math.Abs(raw) > float64(models.MaxValue) {
		return models.Input{}, apperr.NewValidationError(map[string]string{
			"value": fmt.Sprintf("must be an integer between %d and %d", models.MinValue, models.MaxValue),
		})
	}
	return models.Input{Name: name, Date: date, Value: int64(raw)}, nil
}

func (s *Server) queryRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var srt *models.Sort
	if field := req.GetString("sort", ""); field != "" {
		srt = &models.Sort{
			Field:     models.Field(field),
			Direction: models.Direction(req.GetString("order", string(models.Ascending))),
		}
	}
	page := models.Page{
		Index: req.GetInt("page", 1),
		Size:  req.GetInt("size", view.DefaultPageSize),
	}
	if page.Size > maxPageSize {
		return mcp.NewToolResultError(fmt.Sprintf("validation failed: size must be at most %d", maxPageSize)), nil
	}
	res, err := s.store.Query(ctx, models.Filter{Keyword: req.GetString("keyword", "")}, srt, page)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) getRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) addRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in, err := recordInput(req)
	if err != nil {
		return errorResult(err), nil
	}
	rec, err := s.store.Add(ctx, in)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) updateRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in, err := recordInput(req)
	if err != nil {
		return errorResult(err), nil
	}
	rec, err := s.store.Update(ctx, id, in)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) deleteRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.store.Remove(ctx, id); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) readRecordFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FormatURI,
			MIMEType: "text/markdown",
			Text:     RecordFormatContract,
		},
	}, nil
}
