package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	core "bazaar-backend/core/marketplace"
	"bazaar-backend/middleware"
	mktserver "bazaar-backend/middleware/marketplace"
	"bazaar-backend/payments"
	"bazaar-backend/services"
	mktstore "bazaar-backend/storage/marketplace"
)

type config struct {
	Port                 string
	StoreDriver          string
	PGDSN                string
	APIKey               string
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
	port := os.Getenv("BAZAAR_PORT")
	if port == "" {
		port = "3001"
	}

	storeDriver := os.Getenv("BAZAAR_STORE_DRIVER")
	if storeDriver == "" {
		storeDriver = "memory"
	}

	threshold := core.DefaultApprovalThresholdUSD
	if raw := os.Getenv("BAZAAR_APPROVAL_THRESHOLD_USD"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			threshold = v
		}
	}

	maxCounters := core.DefaultMaxCounterOffers
	if raw := os.Getenv("BAZAAR_MAX_COUNTER_OFFERS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			maxCounters = v
		}
	}

	var bidWindow time.Duration
	if raw := os.Getenv("BAZAAR_BID_WINDOW_MINUTES"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			bidWindow = time.Duration(v) * time.Minute
		}
	}

	deadlineMinutes := 60
	if raw := os.Getenv("BAZAAR_DEFAULT_DEADLINE_MINUTES"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			deadlineMinutes = v
		}
	}

	simulate := true
	if raw := os.Getenv("BAZAAR_RAIL_SIMULATE"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			simulate = v
		}
	}

	railAttempts := 3
	if raw := os.Getenv("BAZAAR_RAIL_ATTEMPTS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			railAttempts = v
		}
	}

	return config{
		Port:                 port,
		StoreDriver:          storeDriver,
		PGDSN:                os.Getenv("BAZAAR_PG_DSN"),
		APIKey:               os.Getenv("BAZAAR_API_KEY"),
		ApprovalThresholdUSD: threshold,
		MaxCounterOffers:     maxCounters,
		BidWindow:            bidWindow,
		DeadlineMinutes:      deadlineMinutes,
		MarketplaceWallet:    envDefault("BAZAAR_MARKETPLACE_WALLET", "bazaar-escrow"),
		RailBaseURL:          os.Getenv("BAZAAR_RAIL_BASE_URL"),
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
			log.Fatal("BAZAAR_PG_DSN required when BAZAAR_STORE_DRIVER=postgres")
		}
		store, err = mktstore.NewPGStore(ctx, cfg.PGDSN)
	default:
		store = mktstore.NewMemoryStore()
	}
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer store.Close()

	metrics := services.NewMetrics()
	rail := payments.NewInstrumentedRail(payments.NewX402Client(cfg.RailBaseURL, cfg.RailSimulate), metrics)

	engine := core.NewJobManager(store, rail, core.Config{
		ApprovalThresholdUSD:   cfg.ApprovalThresholdUSD,
		MaxCounterOffers:       cfg.MaxCounterOffers,
		BidWindow:              cfg.BidWindow,
		DefaultDeadlineMinutes: cfg.DeadlineMinutes,
		MarketplaceWallet:      cfg.MarketplaceWallet,
		RailAttempts:           cfg.RailAttempts,
	}, core.NewEventLog(0))

	mux := http.NewServeMux()
	server := mktserver.NewServer(engine, metrics)
	server.RegisterRoutes(mux, middleware.APIAuth(cfg.APIKey))
	mux.Handle("/metrics", metrics.Handler())

	handler := middleware.Recovery(
		middleware.Logging(
			middleware.CORS(
				middleware.Instrument(metrics)(
					middleware.RateLimit(300, time.Minute)(mux),
				),
			),
		),
	)

	log.Printf("Bazaar server starting on :%s (driver=%s, rail_simulate=%v)", cfg.Port, cfg.StoreDriver, cfg.RailSimulate)
	log.Printf("Marketplace API at: http://localhost:%s/api/marketplace/", cfg.Port)
	log.Printf("Metrics at: http://localhost:%s/metrics", cfg.Port)

	log.Fatal(http.ListenAndServe(":"+cfg.Port, handler))
}
