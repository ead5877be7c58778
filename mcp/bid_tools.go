package mcp

import (
	"context"
	"fmt"

	core "bazaar-backend/core/marketplace"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerSubmitBidTool creates a tool for submitting a bid on an open job
func (s *MCPServer) registerSubmitBidTool() {
	tool := mcp.NewTool("submit_bid",
		mcp.WithDescription("Submit a bid on an open job. The price must be positive and at most the job budget."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("ID of the job to bid on")),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Identifier of the bidding agent")),
		mcp.WithNumber("price_usd", mcp.Required(), mcp.Description("Offered price in USD")),
		mcp.WithNumber("estimated_time_seconds", mcp.Description("Estimated completion time in seconds")),
		mcp.WithNumber("confidence", mcp.Description("Agent's confidence in [0,1]")),
		mcp.WithString("approach", mcp.Description("Short description of the planned approach")),
		mcp.WithString("agent_wallet", mcp.Description("Wallet payouts are released to")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		jobID, err := request.RequireString("job_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		agentID, err := request.RequireString("agent_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		bid, err := s.engine.SubmitBid(ctx, jobID, agentID, toFloat64(args["price_usd"]),
			toInt(args["estimated_time_seconds"]), toFloat64(args["confidence"]),
			toString(args["approach"]), toString(args["agent_wallet"]))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to submit bid: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Bid submitted:\n\n%+v", bid)), nil
	})
}

// registerGetBidTool creates a tool for getting a specific bid
func (s *MCPServer) registerGetBidTool() {
	tool := mcp.NewTool("get_bid",
		mcp.WithDescription("Get details of a specific bid, including its counter-offer history"),
		mcp.WithString("bid_id", mcp.Required(), mcp.Description("ID of bid to retrieve")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		bidID, err := request.RequireString("bid_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		bid, err := s.engine.GetBid(ctx, bidID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get bid: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Bid details:\n\n%+v", bid)), nil
	})
}

// registerListBidsTool creates a tool for listing bids
func (s *MCPServer) registerListBidsTool() {
	tool := mcp.NewTool("list_bids",
		mcp.WithDescription("List bids with optional filtering"),
		mcp.WithString("job_id", mcp.Description("Filter by job")),
		mcp.WithString("agent_id", mcp.Description("Filter by agent")),
		mcp.WithString("status", mcp.Description("Filter by bid status")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		bids, err := s.engine.ListBids(ctx, core.BidFilter{
			JobID:   toString(args["job_id"]),
			AgentID: toString(args["agent_id"]),
			Status:  core.BidStatus(toString(args["status"])),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list bids: %v", err)), nil
		}

		result := map[string]interface{}{
			"bids":        bids,
			"total_count": len(bids),
		}

		return mcp.NewToolResultText(fmt.Sprintf("Found %d bids:\n\n%+v", len(bids), result)), nil
	})
}

// registerCounterOfferTool creates a tool for appending a negotiation round
func (s *MCPServer) registerCounterOfferTool() {
	tool := mcp.NewTool("counter_offer",
		mcp.WithDescription("Append a counter-offer to a bid. Each bid carries a bounded number of rounds; the job moves to negotiating on the first counter."),
		mcp.WithString("bid_id", mcp.Required(), mcp.Description("ID of the bid being negotiated")),
		mcp.WithNumber("price_usd", mcp.Required(), mcp.Description("Countered price in USD")),
		mcp.WithString("by", mcp.Required(), mcp.Description("Who makes the offer: poster or agent")),
		mcp.WithString("message", mcp.Description("Optional note attached to the offer")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		bidID, err := request.RequireString("bid_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		by := core.OfferAuthor(toString(args["by"]))
		if by != core.ByPoster && by != core.ByAgent {
			return mcp.NewToolResultError("by must be poster or agent"), nil
		}

		bid, err := s.engine.CounterOffer(ctx, bidID, toFloat64(args["price_usd"]), toString(args["message"]), by)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to counter: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Counter-offer recorded (round %d):\n\n%+v", len(bid.CounterOffers), bid)), nil
	})
}

// registerAcceptBidTool creates a tool for accepting a bid
func (s *MCPServer) registerAcceptBidTool() {
	tool := mcp.NewTool("accept_bid",
		mcp.WithDescription("Accept a bid at its current price. Prices above the approval threshold park the job in awaiting_approval for a human sign-off."),
		mcp.WithString("bid_id", mcp.Required(), mcp.Description("ID of bid to accept")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		bidID, err := request.RequireString("bid_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		job, err := s.engine.AcceptBid(ctx, bidID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to accept bid: %v", err)), nil
		}

		if job.Status == core.JobAwaitingApproval {
			return mcp.NewToolResultText(fmt.Sprintf("Acceptance parked for human approval:\n\n%+v", job)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Bid accepted and job assigned:\n\n%+v", job)), nil
	})
}

// registerWithdrawBidTool creates a tool for agent bid withdrawal
func (s *MCPServer) registerWithdrawBidTool() {
	tool := mcp.NewTool("withdraw_bid",
		mcp.WithDescription("Withdraw a bid. Only the submitting agent may withdraw, and only while the bid is live."),
		mcp.WithString("bid_id", mcp.Required(), mcp.Description("ID of bid to withdraw")),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Identifier of the withdrawing agent")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		bidID, err := request.RequireString("bid_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		agentID, err := request.RequireString("agent_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if err := s.engine.WithdrawBid(ctx, bidID, agentID); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to withdraw bid: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Bid %s withdrawn", bidID)), nil
	})
}

// registerApproveBidTool creates a tool for the human approval sign-off
func (s *MCPServer) registerApproveBidTool() {
	tool := mcp.NewTool("approve_bid",
		mcp.WithDescription("Human sign-off for a gated acceptance. Resumes the acceptance and assigns the job."),
		mcp.WithString("bid_id", mcp.Required(), mcp.Description("ID of the awaiting bid")),
		mcp.WithString("approver_id", mcp.Required(), mcp.Description("Identifier of the approving human")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		bidID, err := request.RequireString("bid_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		approverID, err := request.RequireString("approver_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		job, err := s.engine.ApproveBid(ctx, bidID, approverID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to approve bid: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Bid approved and job assigned:\n\n%+v", job)), nil
	})
}

// registerRejectBidTool creates a tool for rejecting a bid
func (s *MCPServer) registerRejectBidTool() {
	tool := mcp.NewTool("reject_bid",
		mcp.WithDescription("Reject a bid. Rejecting a gated acceptance returns the job to bidding."),
		mcp.WithString("bid_id", mcp.Required(), mcp.Description("ID of bid to reject")),
		mcp.WithString("rejector_id", mcp.Description("Identifier of who rejects")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		bidID, err := request.RequireString("bid_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		rejectorID := toString(request.GetArguments()["rejector_id"])

		job, err := s.engine.RejectBid(ctx, bidID, rejectorID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to reject bid: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Bid rejected:\n\n%+v", job)), nil
	})
}

// registerPendingApprovalsTool creates a tool for listing gated bids
func (s *MCPServer) registerPendingApprovalsTool() {
	tool := mcp.NewTool("pending_approvals",
		mcp.WithDescription("List every bid parked at the human approval gate"),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		bids, err := s.engine.PendingApprovals(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list pending approvals: %v", err)), nil
		}

		result := map[string]interface{}{
			"pending":     bids,
			"total_count": len(bids),
		}

		return mcp.NewToolResultText(fmt.Sprintf("%d bids awaiting approval:\n\n%+v", len(bids), result)), nil
	})
}
