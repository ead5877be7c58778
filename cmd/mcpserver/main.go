package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	core "bazaar-backend/core/marketplace"
	"bazaar-backend/mcp"
	"bazaar-backend/payments"
	mktstore "bazaar-backend/storage/marketplace"

	"github.com/mark3labs/mcp-go/server"
)

type config struct {
	StoreDriver          string
	PGDSN                string
	ApprovalThresholdUSD float64
	MaxCounterOffers     int
	BidWindow            time.Duration
	DeadlineMinutes      int
	MarketplaceWallet    string
	RailBaseURL          string
	RailSimulate         bool
	RailAttempts         int
}

func loadConfig() config {
	storeDriver := os.Getenv("MCP_STORE_DRIVER")
	if storeDriver == "" {
		storeDriver = "memory"
	}

	threshold := core.DefaultApprovalThresholdUSD
	if raw := os.Getenv("MCP_APPROVAL_THRESHOLD_USD"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			threshold = v
		}
	}

	maxCounters := core.DefaultMaxCounterOffers
	if raw := os.Getenv("MCP_MAX_COUNTER_OFFERS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			maxCounters = v
		}
	}

	var bidWindow time.Duration
	if raw := os.Getenv("MCP_BID_WINDOW_MINUTES"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			bidWindow = time.Duration(v) * time.Minute
		}
	}

	deadlineMinutes := 60
	if raw := os.Getenv("MCP_DEFAULT_DEADLINE_MINUTES"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			deadlineMinutes = v
		}
	}

	simulate := true
	if raw := os.Getenv("MCP_RAIL_SIMULATE"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			simulate = v
		}
	}

	railAttempts := 3
	if raw := os.Getenv("MCP_RAIL_ATTEMPTS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			railAttempts = v
		}
	}

	return config{
		StoreDriver:          storeDriver,
		PGDSN:                os.Getenv("MCP_PG_DSN"),
		ApprovalThresholdUSD: threshold,
		MaxCounterOffers:     maxCounters,
		BidWindow:            bidWindow,
		DeadlineMinutes:      deadlineMinutes,
		MarketplaceWallet:    envDefault("MCP_MARKETPLACE_WALLET", "bazaar-escrow"),
		RailBaseURL:          os.Getenv("MCP_RAIL_BASE_URL"),
		RailSimulate:         simulate,
		RailAttempts:         railAttempts,
	}
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	cfg := loadConfig()

	ctx := context.Background()
	var store core.Store
	var err error
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.PGDSN == "" {
			log.Fatal("MCP_PG_DSN required when MCP_STORE_DRIVER=postgres")
		}
		store, err = mktstore.NewPGStore(ctx, cfg.PGDSN)
	default:
		store = mktstore.NewMemoryStore()
	}
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer store.Close()

	rail := payments.NewX402Client(cfg.RailBaseURL, cfg.RailSimulate)

	engine := core.NewJobManager(store, rail, core.Config{
		ApprovalThresholdUSD:   cfg.ApprovalThresholdUSD,
		MaxCounterOffers:       cfg.MaxCounterOffers,
		BidWindow:              cfg.BidWindow,
		DefaultDeadlineMinutes: cfg.DeadlineMinutes,
		MarketplaceWallet:      cfg.MarketplaceWallet,
		RailAttempts:           cfg.RailAttempts,
	}, core.NewEventLog(0))

	mcpServer := mcp.NewMCPServer(engine)

	log.Printf("Bazaar MCP server starting (driver=%s, rail_simulate=%v)", cfg.StoreDriver, cfg.RailSimulate)
	log.Printf("Server: Bazaar MCP Server v1.0.0")

	// Start the MCP server using stdio transport
	if err := server.ServeStdio(mcpServer.GetMCPServer()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
