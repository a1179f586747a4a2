package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Sen667/JDE-sub004/internal/api"
)

// Server exposes read-only workflow and transfer queries as MCP tools.
// Mutating operations stay behind the authenticated REST API.
type Server struct {
	mcpServer *server.MCPServer
	workflow  api.WorkflowService
	transfer  api.TransferService
}

func NewServer(workflow api.WorkflowService, transfer api.TransferService) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Dossier Workflow",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		workflow: workflow,
		transfer: transfer,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_next_step",
			mcp.WithDescription("Resolve the next workflow step for a dossier without mutating anything"),
			mcp.WithString("dossier_id", mcp.Required(), mcp.Description("The dossier id")),
			mcp.WithString("current_step_id", mcp.Required(), mcp.Description("The current workflow step id")),
			mcp.WithBoolean("decision", mcp.Description("Optional boolean decision for decision steps")),
		),
		s.handleGetNextStep,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_available_steps",
			mcp.WithDescription("List every in-progress workflow step of a dossier"),
			mcp.WithString("dossier_id", mcp.Required(), mcp.Description("The dossier id")),
		),
		s.handleGetAvailableSteps,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"check_transfer_eligibility",
			mcp.WithDescription("Evaluate the transfer eligibility rule for a dossier and target world"),
			mcp.WithString("dossier_id", mcp.Required(), mcp.Description("The dossier id")),
			mcp.WithString("target_world_code", mcp.Required(), mcp.Description("The target world code")),
		),
		s.handleCheckTransferEligibility,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_transfer_history",
			mcp.WithDescription("List every transfer where the dossier is source or target"),
			mcp.WithString("dossier_id", mcp.Required(), mcp.Description("The dossier id")),
		),
		s.handleGetTransferHistory,
	)
}

func stringArg(request mcp.CallToolRequest, name string) (string, bool) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return "", false
	}
	v, ok := args[name].(string)
	return v, ok && v != ""
}

func (s *Server) handleGetNextStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dossierID, ok := stringArg(request, "dossier_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: dossier_id"), nil
	}
	stepID, ok := stringArg(request, "current_step_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: current_step_id"), nil
	}

	var decision *bool
	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		if v, ok := args["decision"].(bool); ok {
			decision = &v
		}
	}

	nextStepID, parallel, err := s.workflow.GetNextStep(ctx, dossierID, stepID, decision)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to resolve next step: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(map[string]any{
		"next_step_id":   nextStepID,
		"parallel_steps": parallel,
	})
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetAvailableSteps(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dossierID, ok := stringArg(request, "dossier_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: dossier_id"), nil
	}

	steps, err := s.workflow.GetAvailableSteps(ctx, dossierID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list available steps: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(steps)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleCheckTransferEligibility(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dossierID, ok := stringArg(request, "dossier_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: dossier_id"), nil
	}
	targetCode, ok := stringArg(request, "target_world_code")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: target_world_code"), nil
	}

	canTransfer, reason, allowed, err := s.transfer.CheckEligibility(ctx, dossierID, targetCode)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check eligibility: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(map[string]any{
		"can_transfer":      canTransfer,
		"reason":            reason,
		"allowed_transfers": allowed,
	})
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetTransferHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dossierID, ok := stringArg(request, "dossier_id")
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: dossier_id"), nil
	}

	transfers, err := s.transfer.GetTransferHistory(ctx, dossierID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load transfer history: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(transfers)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
