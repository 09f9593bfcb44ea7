package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/leaveflow/internal/policy"
	"github.com/kalambet/leaveflow/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Retriever PolicyRetriever   // optional; if nil, search_policies returns an error
	Checker   ComplianceChecker // optional; if nil, check_policy_compliance returns an error
}

// NewMCPServer creates an MCP server exposing leave data to external agents.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"leaveflow",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("leaveflow: leave requests, balances, and company policy lookup."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("query_leaves",
			mcp.WithDescription("List leave requests for an employee, optionally filtered by status."),
			mcp.WithNumber("employee_id", mcp.Description("Employee ID"), mcp.Required()),
			mcp.WithString("status", mcp.Description("Filter: PENDING, APPROVED, REJECTED or CANCELLED")),
		),
		mcpQueryLeaves(deps),
	)

	s.AddTool(
		mcp.NewTool("check_balance",
			mcp.WithDescription("Return leave balances for an employee for the current year."),
			mcp.WithNumber("employee_id", mcp.Description("Employee ID"), mcp.Required()),
		),
		mcpCheckBalance(deps),
	)

	s.AddTool(
		mcp.NewTool("search_policies",
			mcp.WithDescription("Semantically search the company leave policy corpus."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchPolicies(deps),
	)

	s.AddTool(
		mcp.NewTool("check_policy_compliance",
			mcp.WithDescription("Check a proposed leave request against active company policy."),
			mcp.WithString("leave_type", mcp.Description("Leave type, e.g. SICK or ANNUAL"), mcp.Required()),
			mcp.WithString("start_date", mcp.Description("Start date, YYYY-MM-DD"), mcp.Required()),
			mcp.WithString("end_date", mcp.Description("End date, YYYY-MM-DD (defaults to start date)")),
		),
		mcpCheckCompliance(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"leave://pending",
			"Pending Leave Requests",
			mcp.WithResourceDescription("All pending leave requests as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePending(deps),
	)

	return s
}

func mcpQueryLeaves(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		employeeID := req.GetInt("employee_id", 0)
		if employeeID <= 0 {
			return mcpError("employee_id is required"), nil
		}
		if _, err := deps.Store.GetUser(int64(employeeID)); errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("employee %d not found", employeeID)), nil
		}

		filter := storage.LeaveFilter{EmployeeIDs: []int64{int64(employeeID)}}
		if s := req.GetString("status", ""); s != "" {
			filter.Status = storage.LeaveStatus(s)
		}
		leaves, err := deps.Store.ListLeaves(filter)
		if err != nil {
			return mcpError(fmt.Sprintf("listing leaves: %v", err)), nil
		}
		return mcpJSON(leaves)
	}
}

func mcpCheckBalance(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		employeeID := req.GetInt("employee_id", 0)
		if employeeID <= 0 {
			return mcpError("employee_id is required"), nil
		}
		balances, err := deps.Store.ListBalances(time.Now().UTC().Year(), []int64{int64(employeeID)})
		if err != nil {
			return mcpError(fmt.Sprintf("listing balances: %v", err)), nil
		}
		return mcpJSON(balances)
	}
}

func mcpSearchPolicies(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Retriever == nil {
			return mcpError("policy search is not configured"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 20 {
			limit = 20
		}
		chunks, err := deps.Retriever.Retrieve(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(chunks) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(chunks)
	}
}

func mcpCheckCompliance(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Checker == nil {
			return mcpError("compliance checking is not configured"), nil
		}
		typeName, err := req.RequireString("leave_type")
		if err != nil {
			return mcpError("leave_type is required"), nil
		}
		leaveType, err := storage.ParseLeaveType(typeName)
		if err != nil {
			return mcpError(fmt.Sprintf("invalid leave type %q", typeName)), nil
		}
		startStr, err := req.RequireString("start_date")
		if err != nil {
			return mcpError("start_date is required"), nil
		}
		start, err := storage.ParseDate(startStr)
		if err != nil {
			return mcpError(fmt.Sprintf("invalid start_date: %v", err)), nil
		}
		end := start
		if s := req.GetString("end_date", ""); s != "" {
			if end, err = storage.ParseDate(s); err != nil {
				return mcpError(fmt.Sprintf("invalid end_date: %v", err)), nil
			}
		}

		result, err := deps.Checker.Check(ctx, policy.Request{
			LeaveType: leaveType,
			StartDate: start,
			EndDate:   end,
			Today:     storage.Today(),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("compliance check failed: %v", err)), nil
		}
		return mcpJSON(result)
	}
}

func mcpResourcePending(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		leaves, err := deps.Store.ListLeaves(storage.LeaveFilter{Status: storage.StatusPending})
		if err != nil {
			return nil, fmt.Errorf("listing pending leaves: %w", err)
		}
		if leaves == nil {
			leaves = []storage.Leave{}
		}
		b, err := json.Marshal(leaves)
		if err != nil {
			return nil, fmt.Errorf("marshaling leaves: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("marshaling result: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
