package mcp

import (
	"fmt"
	"strconv"

	core "bazaar-backend/core/marketplace"

	"github.com/mark3labs/mcp-go/server"
)

// MCPServer wraps the mcp-go server with our business logic
type MCPServer struct {
	mcpServer *server.MCPServer
	engine    *core.JobManager
}

// NewMCPServer creates a new MCP server using the mcp-go library
func NewMCPServer(engine *core.JobManager) *MCPServer {
	mcpServer := server.NewMCPServer(
		"Bazaar MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		mcpServer: mcpServer,
		engine:    engine,
	}

	s.registerTools()

	return s
}

// GetMCPServer returns the underlying MCP server for transport setup
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// registerTools registers all MCP tools with the server
func (s *MCPServer) registerTools() {
	// Job lifecycle tools
	s.registerPostJobTool()
	s.registerOpenBiddingTool()
	s.registerGetJobTool()
	s.registerListJobsTool()
	s.registerBeginExecutionTool()
	s.registerSubmitResultTool()
	s.registerDisputeJobTool()
	s.registerCancelJobTool()

	// Bid and negotiation tools
	s.registerSubmitBidTool()
	s.registerGetBidTool()
	s.registerListBidsTool()
	s.registerCounterOfferTool()
	s.registerAcceptBidTool()
	s.registerWithdrawBidTool()

	// Approval tools
	s.registerApproveBidTool()
	s.registerRejectBidTool()
	s.registerPendingApprovalsTool()

	// Review and quality tools
	s.registerSubmitReviewTool()
	s.registerSuggestQualityTool()

	// Ledger and activity tools
	s.registerListTransactionsTool()
	s.registerListEventsTool()
}

// Helper function to convert interface{} to string
func toString(val interface{}) string {
	if val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", val)
}

// Helper function to convert interface{} to float64
func toFloat64(val interface{}) float64 {
	if f, ok := val.(float64); ok {
		return f
	}
	if i, ok := val.(int); ok {
		return float64(i)
	}
	if i, ok := val.(int64); ok {
		return float64(i)
	}
	if str, ok := val.(string); ok {
		if f, err := strconv.ParseFloat(str, 64); err == nil {
			return f
		}
	}
	return 0
}

// Helper function to convert interface{} to int
func toInt(val interface{}) int {
	return int(toFloat64(val))
}
