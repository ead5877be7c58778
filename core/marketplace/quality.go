package marketplace

import "fmt"

// PartialReleaseRatio is the share of the budget released to the agent on a
// partial decision; the remainder is refunded to the poster.
const PartialReleaseRatio = 0.5

// PaymentPlan is the money split a review decision maps to. Amounts derive
// from the job's escrowed budget, never the negotiated bid price.
type PaymentPlan struct {
	ReleaseUSD float64
	RefundUSD  float64
}

// QualityGate turns an authoritative human decision into a payment plan. The
// AI suggestion is advisory input only and never moves money by itself.
type QualityGate struct{}

// Plan maps a decision onto the escrowed budget.
//
//	accept  -> release(budget)
//	partial -> release(budget/2) + refund(budget/2)
//	reject  -> refund(budget)
func (QualityGate) Plan(decision ReviewDecision, budgetUSD float64) (PaymentPlan, error) {
	switch decision {
	case DecisionAccept:
		return PaymentPlan{ReleaseUSD: budgetUSD}, nil
	case DecisionPartial:
		release := budgetUSD * PartialReleaseRatio
		return PaymentPlan{ReleaseUSD: release, RefundUSD: budgetUSD - release}, nil
	case DecisionReject:
		return PaymentPlan{RefundUSD: budgetUSD}, nil
	default:
		return PaymentPlan{}, fmt.Errorf("%w: unknown review decision %q", ErrInvalidSpec, decision)
	}
}

// Validate rejects malformed reviews before any state change.
func (QualityGate) Validate(r Review) error {
	if r.Rating < 0 || r.Rating > 1 {
		return fmt.Errorf("%w: rating %.2f outside [0,1]", ErrInvalidSpec, r.Rating)
	}
	switch r.Decision {
	case DecisionAccept, DecisionPartial, DecisionReject:
		return nil
	default:
		return fmt.Errorf("%w: unknown review decision %q", ErrInvalidSpec, r.Decision)
	}
}

// Suggest fills in the overall score and recommendation from the five scored
// dimensions. The result is advisory; only a human Review moves money.
func Suggest(relevance, accuracy, completeness, clarity, actionability float64, feedback string) QualitySuggestion {
	overall := (relevance + accuracy + completeness + clarity + actionability) / 5
	return QualitySuggestion{
		Relevance:        relevance,
		Accuracy:         accuracy,
		Completeness:     completeness,
		Clarity:          clarity,
		Actionability:    actionability,
		SuggestedOverall: overall,
		Recommendation:   RecommendationForScore(overall),
		Feedback:         feedback,
	}
}

// RecommendationForScore converts a suggested overall score into the advisory
// recommendation shown to the reviewer.
func RecommendationForScore(score float64) ReviewDecision {
	switch {
	case score >= 0.7:
		return DecisionAccept
	case score >= 0.4:
		return DecisionPartial
	default:
		return DecisionReject
	}
}
