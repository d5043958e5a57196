package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mkravets/agenda/internal/actions"
	"github.com/mkravets/agenda/internal/apperr"
)

// NewMCPServer creates an MCP server exposing the booking and retrieval
// tools. Every tool takes an explicit workspace_id since MCP sessions
// carry no tenant header.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"agenda",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("agenda — workspace-scoped appointment booking and knowledge retrieval for business chat agents."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("book_appointment",
			mcp.WithDescription("Book a service appointment for a client. Safe to retry: repeating the same booking returns the original confirmation."),
			mcp.WithString("workspace_id", mcp.Description("Workspace (tenant) id"), mcp.Required()),
			mcp.WithString("service_type_name", mcp.Description("Service to book, by name"), mcp.Required()),
			mcp.WithString("client_name", mcp.Description("Client's full name"), mcp.Required()),
			mcp.WithString("client_email", mcp.Description("Client's email address")),
			mcp.WithString("client_phone", mcp.Description("Client's phone number")),
			mcp.WithString("appointment_date", mcp.Description("Date in YYYY-MM-DD"), mcp.Required()),
			mcp.WithString("appointment_time", mcp.Description("Time in HH:MM (24h)"), mcp.Required()),
			mcp.WithString("staff_id", mcp.Description("Specific staff member to book; auto-assigned if omitted")),
			mcp.WithString("notes", mcp.Description("Free-form notes for the appointment")),
		),
		mcpBookAppointment(deps),
	)

	s.AddTool(
		mcp.NewTool("cancel_appointment",
			mcp.WithDescription("Cancel a confirmed appointment by id."),
			mcp.WithString("workspace_id", mcp.Description("Workspace (tenant) id"), mcp.Required()),
			mcp.WithString("appointment_id", mcp.Description("Appointment id to cancel"), mcp.Required()),
		),
		mcpCancelAppointment(deps),
	)

	s.AddTool(
		mcp.NewTool("search_knowledge",
			mcp.WithDescription("Semantically search the workspace's knowledge base and return relevant chunks."),
			mcp.WithString("workspace_id", mcp.Description("Workspace (tenant) id"), mcp.Required()),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchKnowledge(deps),
	)

	return s
}

func mcpBookAppointment(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workspace, err := req.RequireString("workspace_id")
		if err != nil {
			return mcpError("workspace_id is required"), nil
		}

		action := &actions.BookAppointment{
			ServiceTypeName: req.GetString("service_type_name", ""),
			ClientName:      req.GetString("client_name", ""),
			ClientEmail:     req.GetString("client_email", ""),
			ClientPhone:     req.GetString("client_phone", ""),
			AppointmentDate: req.GetString("appointment_date", ""),
			AppointmentTime: req.GetString("appointment_time", ""),
			StaffID:         req.GetString("staff_id", ""),
			Notes:           req.GetString("notes", ""),
		}

		result, err := deps.Executor.Execute(ctx, workspace, action)
		if err != nil {
			return mcpError(executionErrorMessage(err)), nil
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCancelAppointment(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workspace, err := req.RequireString("workspace_id")
		if err != nil {
			return mcpError("workspace_id is required"), nil
		}
		appointmentID, err := req.RequireString("appointment_id")
		if err != nil {
			return mcpError("appointment_id is required"), nil
		}

		action := &actions.CancelAppointment{AppointmentID: appointmentID}
		result, err := deps.Executor.Execute(ctx, workspace, action)
		if err != nil {
			return mcpError(executionErrorMessage(err)), nil
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchKnowledge(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workspace, err := req.RequireString("workspace_id")
		if err != nil {
			return mcpError("workspace_id is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)

		chunks, err := deps.Retriever.SearchText(ctx, workspace, query, limit)
		if err != nil {
			return mcpError(executionErrorMessage(err)), nil
		}

		if len(chunks) == 0 {
			return mcpText("[]"), nil
		}

		results := make([]searchResult, len(chunks))
		for i, c := range chunks {
			results[i] = searchResult{
				DocumentID: c.DocumentID,
				ChunkID:    c.ID,
				Score:      c.Score,
				Preview:    preview(c.Text),
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

// executionErrorMessage keeps agent-facing error text short and
// actionable instead of leaking internal wrapping.
func executionErrorMessage(err error) string {
	switch {
	case errors.Is(err, apperr.ErrConflict):
		return fmt.Sprintf("conflict: %v", err)
	case errors.Is(err, apperr.ErrInFlight):
		return "an identical request is already being processed; try again shortly"
	case errors.Is(err, apperr.ErrNotFound):
		return fmt.Sprintf("not found: %v", err)
	case errors.Is(err, apperr.ErrPoolExhausted):
		return "the workspace is busy; try again shortly"
	default:
		return err.Error()
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
