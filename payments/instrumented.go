package payments

import (
	"context"
	"time"

	"bazaar-backend/core/marketplace"
	"bazaar-backend/services"
)

// InstrumentedRail wraps a PaymentRail and records call counts and latency.
type InstrumentedRail struct {
	rail    marketplace.PaymentRail
	metrics *services.Metrics
}

// NewInstrumentedRail wraps rail. A nil metrics receiver passes calls
// through unrecorded.
func NewInstrumentedRail(rail marketplace.PaymentRail, metrics *services.Metrics) *InstrumentedRail {
	return &InstrumentedRail{rail: rail, metrics: metrics}
}

func (r *InstrumentedRail) Collect(ctx context.Context, req marketplace.RailRequest) (marketplace.RailReceipt, error) {
	return r.observe(ctx, "collect", req, r.rail.Collect)
}

func (r *InstrumentedRail) Pay(ctx context.Context, req marketplace.RailRequest) (marketplace.RailReceipt, error) {
	return r.observe(ctx, "pay", req, r.rail.Pay)
}

func (r *InstrumentedRail) observe(ctx context.Context, direction string, req marketplace.RailRequest,
	call func(context.Context, marketplace.RailRequest) (marketplace.RailReceipt, error)) (marketplace.RailReceipt, error) {
	start := time.Now()
	receipt, err := call(ctx, req)
	if r.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		r.metrics.RailCalls.WithLabelValues(direction, outcome).Inc()
		r.metrics.RailLatency.WithLabelValues(direction).Observe(time.Since(start).Seconds())
	}
	return receipt, err
}
