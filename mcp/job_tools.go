package mcp

import (
	"context"
	"fmt"

	core "bazaar-backend/core/marketplace"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerPostJobTool creates a tool for posting a job with escrowed budget
func (s *MCPServer) registerPostJobTool() {
	tool := mcp.NewTool("post_job",
		mcp.WithDescription("Post a job and escrow its budget. The job is created in posted status; the full budget moves to escrow before the job exists."),
		mcp.WithString("poster_id", mcp.Required(), mcp.Description("Identifier of the human or agent posting the job")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short job title")),
		mcp.WithString("description", mcp.Description("Full task description")),
		mcp.WithString("task_type", mcp.Description("Task category, e.g. research or code_review")),
		mcp.WithArray("required_capabilities", mcp.Required(), mcp.Description("Capabilities an agent must have to bid")),
		mcp.WithNumber("budget_usd", mcp.Required(), mcp.Description("Budget in USD, escrowed up front")),
		mcp.WithString("poster_wallet", mcp.Description("Wallet the escrow is collected from")),
		mcp.WithNumber("deadline_minutes", mcp.Description("Execution deadline in minutes once work starts")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		var caps []string
		if capSlice, ok := args["required_capabilities"].([]interface{}); ok {
			for _, c := range capSlice {
				if str, ok := c.(string); ok {
					caps = append(caps, str)
				}
			}
		}

		spec := core.JobSpec{
			PosterID:             toString(args["poster_id"]),
			Title:                toString(args["title"]),
			Description:          toString(args["description"]),
			TaskType:             toString(args["task_type"]),
			RequiredCapabilities: caps,
			BudgetUSD:            toFloat64(args["budget_usd"]),
			PosterWallet:         toString(args["poster_wallet"]),
			DeadlineMinutes:      toInt(args["deadline_minutes"]),
		}

		job, err := s.engine.PostJob(ctx, spec)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to post job: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Job posted with $%.2f escrowed:\n\n%+v", job.BudgetUSD, job)), nil
	})
}

// registerOpenBiddingTool creates a tool for opening a job to bids
func (s *MCPServer) registerOpenBiddingTool() {
	tool := mcp.NewTool("open_bidding",
		mcp.WithDescription("Open a posted job for bidding. Idempotent when the job is already bidding."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("ID of job to open")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		job, err := s.engine.OpenForBidding(ctx, jobID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to open bidding: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Job open for bidding:\n\n%+v", job)), nil
	})
}

// registerGetJobTool creates a tool for getting a specific job
func (s *MCPServer) registerGetJobTool() {
	tool := mcp.NewTool("get_job",
		mcp.WithDescription("Get details of a specific job"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("ID of job to retrieve")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		job, err := s.engine.GetJob(ctx, jobID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get job: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Job details:\n\n%+v", job)), nil
	})
}

// registerListJobsTool creates a tool for listing jobs
func (s *MCPServer) registerListJobsTool() {
	tool := mcp.NewTool("list_jobs",
		mcp.WithDescription("List jobs with optional filtering"),
		mcp.WithString("status", mcp.Description("Filter by job status")),
		mcp.WithString("poster_id", mcp.Description("Filter by poster")),
		mcp.WithString("agent_id", mcp.Description("Filter by assigned agent")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of jobs to return")),
		mcp.WithNumber("offset", mcp.Description("Number of jobs to skip")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		filter := core.JobFilter{
			Status:   core.JobStatus(toString(args["status"])),
			PosterID: toString(args["poster_id"]),
			AgentID:  toString(args["agent_id"]),
			Limit:    toInt(args["limit"]),
			Offset:   toInt(args["offset"]),
		}
		if filter.Limit == 0 {
			filter.Limit = 50
		}

		jobs, err := s.engine.ListJobs(ctx, filter)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list jobs: %v", err)), nil
		}

		result := map[string]interface{}{
			"jobs":        jobs,
			"total_count": len(jobs),
		}

		return mcp.NewToolResultText(fmt.Sprintf("Found %d jobs:\n\n%+v", len(jobs), result)), nil
	})
}

// registerBeginExecutionTool creates a tool for starting work on an assigned job
func (s *MCPServer) registerBeginExecutionTool() {
	tool := mcp.NewTool("begin_execution",
		mcp.WithDescription("Move an assigned job into in_progress and start its execution deadline clock"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("ID of the assigned job")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		job, err := s.engine.BeginExecution(ctx, jobID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to begin execution: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Execution started:\n\n%+v", job)), nil
	})
}

// registerSubmitResultTool creates a tool for submitting completed work
func (s *MCPServer) registerSubmitResultTool() {
	tool := mcp.NewTool("submit_result",
		mcp.WithDescription("Submit the work result for review. A submission past the execution deadline refunds the escrow and routes the job to dispute."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("ID of the in-progress job")),
		mcp.WithString("result_ref", mcp.Required(), mcp.Description("Reference to the delivered result, e.g. a URL or content hash")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		resultRef, err := request.RequireString("result_ref")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		job, err := s.engine.SubmitResult(ctx, jobID, resultRef)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to submit result: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Result submitted for review:\n\n%+v", job)), nil
	})
}

// registerDisputeJobTool creates a tool for disputing a job
func (s *MCPServer) registerDisputeJobTool() {
	tool := mcp.NewTool("dispute_job",
		mcp.WithDescription("Dispute an in-progress or pending-review job. The escrow is refunded in full to the poster."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("ID of job to dispute")),
		mcp.WithString("reason", mcp.Description("Reason for the dispute")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		reason := toString(request.GetArguments()["reason"])

		job, err := s.engine.Dispute(ctx, jobID, reason)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to dispute job: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Job disputed and escrow refunded:\n\n%+v", job)), nil
	})
}

// registerCancelJobTool creates a tool for cancelling a job before assignment
func (s *MCPServer) registerCancelJobTool() {
	tool := mcp.NewTool("cancel_job",
		mcp.WithDescription("Cancel a job before any bid is accepted. The escrow is refunded and all live bids are rejected."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("ID of job to cancel")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		job, err := s.engine.Cancel(ctx, jobID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to cancel job: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Job cancelled and escrow refunded:\n\n%+v", job)), nil
	})
}
