package mcp

import (
	"context"
	"errors"
	"fmt"

	core "bazaar-backend/core/marketplace"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerSubmitReviewTool creates a tool for the authoritative human review
func (s *MCPServer) registerSubmitReviewTool() {
	tool := mcp.NewTool("submit_review",
		mcp.WithDescription("Record the human review decision and settle the escrow: accept releases the budget to the agent, partial splits it evenly, reject refunds the poster."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("ID of the job under review")),
		mcp.WithString("decision", mcp.Required(), mcp.Description("accept, partial, or reject")),
		mcp.WithNumber("rating", mcp.Required(), mcp.Description("Quality rating in [0,1], recorded on the job")),
		mcp.WithString("feedback", mcp.Description("Free-form reviewer feedback")),
		mcp.WithString("reviewer_id", mcp.Description("Identifier of the reviewer")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		jobID, err := request.RequireString("job_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		decision, err := request.RequireString("decision")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		review := core.Review{
			Decision:   core.ReviewDecision(decision),
			Rating:     toFloat64(args["rating"]),
			Feedback:   toString(args["feedback"]),
			ReviewerID: toString(args["reviewer_id"]),
		}

		job, err := s.engine.SubmitReview(ctx, jobID, review)
		if err != nil {
			if errors.Is(err, core.ErrReconciliationRequired) {
				return mcp.NewToolResultText(fmt.Sprintf("Review recorded but the refund leg needs an operator: %v\n\n%+v", err, job)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("Failed to submit review: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Review recorded and escrow settled:\n\n%+v", job)), nil
	})
}

// registerSuggestQualityTool creates a tool for the advisory quality suggestion
func (s *MCPServer) registerSuggestQualityTool() {
	tool := mcp.NewTool("suggest_quality",
		mcp.WithDescription("Score submitted work on five dimensions and get an advisory recommendation. Never moves money; only a human review settles the escrow."),
		mcp.WithNumber("relevance", mcp.Required(), mcp.Description("Relevance score in [0,1]")),
		mcp.WithNumber("accuracy", mcp.Required(), mcp.Description("Accuracy score in [0,1]")),
		mcp.WithNumber("completeness", mcp.Required(), mcp.Description("Completeness score in [0,1]")),
		mcp.WithNumber("clarity", mcp.Required(), mcp.Description("Clarity score in [0,1]")),
		mcp.WithNumber("actionability", mcp.Required(), mcp.Description("Actionability score in [0,1]")),
		mcp.WithString("feedback", mcp.Description("Free-form assessment notes")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		suggestion := core.Suggest(
			toFloat64(args["relevance"]),
			toFloat64(args["accuracy"]),
			toFloat64(args["completeness"]),
			toFloat64(args["clarity"]),
			toFloat64(args["actionability"]),
			toString(args["feedback"]),
		)

		return mcp.NewToolResultText(fmt.Sprintf("Suggested overall %.2f, recommendation %s:\n\n%+v",
			suggestion.SuggestedOverall, suggestion.Recommendation, suggestion)), nil
	})
}

// registerListTransactionsTool creates a tool for reading the ledger
func (s *MCPServer) registerListTransactionsTool() {
	tool := mcp.NewTool("list_transactions",
		mcp.WithDescription("List escrow, release, and refund ledger records"),
		mcp.WithString("job_id", mcp.Description("Filter by job")),
		mcp.WithString("type", mcp.Description("Filter by type: escrow, release, or refund")),
		mcp.WithString("status", mcp.Description("Filter by status")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		txns, err := s.engine.ListTransactions(ctx, core.TxnFilter{
			JobID:  toString(args["job_id"]),
			Type:   core.TxnType(toString(args["type"])),
			Status: core.TxnStatus(toString(args["status"])),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list transactions: %v", err)), nil
		}

		result := map[string]interface{}{
			"transactions": txns,
			"total_count":  len(txns),
		}

		return mcp.NewToolResultText(fmt.Sprintf("Found %d transactions:\n\n%+v", len(txns), result)), nil
	})
}

// registerListEventsTool creates a tool for the activity feed
func (s *MCPServer) registerListEventsTool() {
	tool := mcp.NewTool("list_events",
		mcp.WithDescription("List recent marketplace activity events"),
		mcp.WithNumber("limit", mcp.Description("Maximum number of events to return")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := toInt(request.GetArguments()["limit"])

		events := s.engine.Events().Recent(limit)

		return mcp.NewToolResultText(fmt.Sprintf("%d recent events:\n\n%+v", len(events), events)), nil
	})
}
