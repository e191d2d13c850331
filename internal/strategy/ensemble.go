package strategy

import (
	"errors"
	"fmt"

	"quantsim/internal/market"
	sig "quantsim/internal/signal"
)

// Voting methods supported by the ensemble.
const (
	MethodWeighted   = "weighted_voting"
	MethodMajority   = "majority_voting"
	MethodConfidence = "confidence_weighted"
)

// Member pairs a sub-strategy with its configured voting weight.
type Member struct {
	Strategy Strategy
	Weight   float64
}

// Ensemble combines each sub-strategy's latest signal for the current bar
// into at most one consensus signal. The winning direction must clear the
// consensus and confidence thresholds; an exact buy/sell tie or a winning
// hold bucket yields no signal.
type Ensemble struct {
	method              string
	minConsensus        float64
	confidenceThreshold float64
	members             []Member
}

// NewEnsemble validates thresholds and member weights.
func NewEnsemble(method string, minConsensus, confidenceThreshold float64, members []Member) (*Ensemble, error) {
	switch method {
	case MethodWeighted, MethodMajority, MethodConfidence:
	default:
		return nil, fmt.Errorf("ensemble: unknown voting method %q", method)
	}
	if minConsensus < 0 || minConsensus > 1 {
		return nil, errors.New("ensemble: min consensus must lie in [0, 1]")
	}
	if confidenceThreshold < 0 || confidenceThreshold > 1 {
		return nil, errors.New("ensemble: confidence threshold must lie in [0, 1]")
	}
	if len(members) == 0 {
		return nil, errors.New("ensemble: at least one member required")
	}
	for _, m := range members {
		if m.Strategy == nil {
			return nil, errors.New("ensemble: nil member strategy")
		}
		if m.Weight < 0 {
			return nil, fmt.Errorf("ensemble: negative weight for %s", m.Strategy.Name())
		}
	}
	return &Ensemble{
		method:              method,
		minConsensus:        minConsensus,
		confidenceThreshold: confidenceThreshold,
		members:             members,
	}, nil
}

// Name returns the configured identifier for logging.
func (e *Ensemble) Name() string { return "ensemble" }

type memberVote struct {
	name   string
	weight float64
	signal sig.Signal
}

// GenerateSignals collects each member's latest signal and runs the vote.
func (e *Ensemble) GenerateSignals(bars market.Series) ([]sig.Signal, error) {
	latest, ok := bars.Last()
	if !ok {
		return nil, nil
	}

	votes := make([]memberVote, 0, len(e.members))
	for _, m := range e.members {
		signals, err := m.Strategy.GenerateSignals(bars)
		if err != nil || len(signals) == 0 {
			// One failing or abstaining member never blocks the vote.
			continue
		}
		votes = append(votes, memberVote{name: m.Strategy.Name(), weight: m.Weight, signal: signals[len(signals)-1]})
	}
	if len(votes) == 0 {
		return nil, nil
	}

	totalWeight := e.assignWeights(votes)
	if totalWeight == 0 {
		return nil, nil
	}

	var buyWeight, sellWeight, holdWeight float64
	for _, v := range votes {
		contribution := v.weight * v.signal.Confidence
		switch v.signal.Kind {
		case sig.Buy:
			buyWeight += contribution
		case sig.Sell:
			sellWeight += contribution
		default:
			holdWeight += contribution
		}
	}

	maxWeight := buyWeight
	kind := sig.Buy
	if sellWeight > maxWeight {
		maxWeight = sellWeight
		kind = sig.Sell
	}
	if holdWeight >= maxWeight {
		return nil, nil // hold wins or ties: nothing to do this bar
	}
	if buyWeight == sellWeight {
		return nil, nil // exact directional tie is treated as no consensus
	}
	if maxWeight/totalWeight < e.minConsensus {
		return nil, nil
	}

	var confidenceSum float64
	active := 0
	voteDetail := make(map[string]any, len(votes))
	for _, v := range votes {
		voteDetail[v.name] = map[string]any{
			"kind":       string(v.signal.Kind),
			"confidence": v.signal.Confidence,
			"weight":     v.weight,
		}
		if v.signal.Actionable() {
			confidenceSum += v.signal.Confidence
			active++
		}
	}
	if active == 0 {
		return nil, nil
	}
	confidence := clamp(confidenceSum/float64(active), 0, 1)
	if confidence < e.confidenceThreshold {
		return nil, nil
	}

	consensus := maxWeight / totalWeight
	return []sig.Signal{{
		Ts:         latest.Ts,
		Kind:       kind,
		Confidence: confidence,
		Price:      latest.Close,
		Reason:     fmt.Sprintf("ensemble %s (consensus %.2f)", kind, consensus),
		Metadata: map[string]any{
			"ensemble_method":    e.method,
			"consensus_strength": consensus,
			"buy_weight":         buyWeight,
			"sell_weight":        sellWeight,
			"hold_weight":        holdWeight,
			"votes":              voteDetail,
		},
	}}, nil
}

// assignWeights resolves each vote's effective weight per the configured
// method and returns the denominator for consensus strength.
func (e *Ensemble) assignWeights(votes []memberVote) float64 {
	switch e.method {
	case MethodMajority:
		equal := 1.0 / float64(len(e.members))
		for i := range votes {
			votes[i].weight = equal
		}
		return equal * float64(len(e.members))
	case MethodConfidence:
		var total float64
		for _, v := range votes {
			total += v.signal.Confidence
		}
		if total == 0 {
			return 0
		}
		for i := range votes {
			votes[i].weight = votes[i].signal.Confidence / total
		}
		return 1.0
	default: // MethodWeighted: configured weights over all members
		var total float64
		for _, m := range e.members {
			total += m.Weight
		}
		return total
	}
}
