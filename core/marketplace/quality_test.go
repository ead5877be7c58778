package marketplace

import (
	"errors"
	"math"
	"testing"
)

func TestQualityGatePlan(t *testing.T) {
	gate := QualityGate{}

	t.Run("accept releases the full budget", func(t *testing.T) {
		plan, err := gate.Plan(DecisionAccept, 0.15)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if plan.ReleaseUSD != 0.15 || plan.RefundUSD != 0 {
			t.Fatalf("expected release 0.15 / refund 0, got %.2f / %.2f", plan.ReleaseUSD, plan.RefundUSD)
		}
	})

	t.Run("partial splits the budget evenly", func(t *testing.T) {
		plan, err := gate.Plan(DecisionPartial, 0.20)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(plan.ReleaseUSD-0.10) > 1e-9 || math.Abs(plan.RefundUSD-0.10) > 1e-9 {
			t.Fatalf("expected 0.10 / 0.10, got %.4f / %.4f", plan.ReleaseUSD, plan.RefundUSD)
		}
		if math.Abs(plan.ReleaseUSD+plan.RefundUSD-0.20) > 1e-9 {
			t.Fatal("split must sum to the budget")
		}
	})

	t.Run("reject refunds the full budget", func(t *testing.T) {
		plan, err := gate.Plan(DecisionReject, 0.20)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if plan.ReleaseUSD != 0 || plan.RefundUSD != 0.20 {
			t.Fatalf("expected release 0 / refund 0.20, got %.2f / %.2f", plan.ReleaseUSD, plan.RefundUSD)
		}
	})

	t.Run("unknown decision is rejected", func(t *testing.T) {
		if _, err := gate.Plan("maybe", 1); !errors.Is(err, ErrInvalidSpec) {
			t.Fatalf("expected ErrInvalidSpec, got %v", err)
		}
	})
}

func TestQualityGateValidate(t *testing.T) {
	gate := QualityGate{}

	t.Run("rating outside range", func(t *testing.T) {
		err := gate.Validate(Review{Decision: DecisionAccept, Rating: 1.2})
		if !errors.Is(err, ErrInvalidSpec) {
			t.Fatalf("expected ErrInvalidSpec, got %v", err)
		}
		err = gate.Validate(Review{Decision: DecisionAccept, Rating: -0.1})
		if !errors.Is(err, ErrInvalidSpec) {
			t.Fatalf("expected ErrInvalidSpec, got %v", err)
		}
	})

	t.Run("valid review", func(t *testing.T) {
		if err := gate.Validate(Review{Decision: DecisionPartial, Rating: 0.5}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestRecommendationForScore(t *testing.T) {
	cases := []struct {
		score float64
		want  ReviewDecision
	}{
		{0.95, DecisionAccept},
		{0.70, DecisionAccept},
		{0.69, DecisionPartial},
		{0.40, DecisionPartial},
		{0.39, DecisionReject},
		{0.0, DecisionReject},
	}
	for _, c := range cases {
		if got := RecommendationForScore(c.score); got != c.want {
			t.Errorf("score %.2f: expected %s, got %s", c.score, c.want, got)
		}
	}
}

func TestSuggest(t *testing.T) {
	s := Suggest(1, 0.8, 0.9, 0.7, 0.6, "solid work")
	want := (1 + 0.8 + 0.9 + 0.7 + 0.6) / 5
	if math.Abs(s.SuggestedOverall-want) > 1e-9 {
		t.Fatalf("expected overall %.2f, got %.2f", want, s.SuggestedOverall)
	}
	if s.Recommendation != DecisionAccept {
		t.Fatalf("expected accept recommendation, got %s", s.Recommendation)
	}
	if s.Feedback != "solid work" {
		t.Fatalf("feedback not carried through")
	}
}
