// Package ballot implements the Agent Weighted Ballot (spec §4.7): scoring
// agent opinions by their current weight, picking a winning action with a
// deterministic tie-break, and computing consensus_confidence and
// disagreement for the Deliberation Orchestrator's PM verdict rules.
package ballot

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wr-desk/warroom/internal/domain"
)

// Result is the ballot's tallied outcome.
type Result struct {
	Winner             domain.Action
	ConsensusConfidence decimal.Decimal
	Disagreement        decimal.Decimal
	Scores              map[domain.Action]decimal.Decimal
}

// actionTieRank orders actions for the tie-break: HOLD first, then
// MAINTAIN, then alphabetical — preferring inaction per spec §4.7 step 3.
func actionTieRank(a domain.Action) int {
	switch a {
	case domain.ActionHold:
		return 0
	case domain.ActionMaintain:
		return 1
	default:
		return 2
	}
}

// Tally runs the four-step algorithm from spec §4.7.
func Tally(opinions []domain.AgentOpinion, weights *domain.AgentWeights) Result {
	scores := make(map[domain.Action]decimal.Decimal)
	totalWeightPresent := decimal.Zero
	maxWeightByAction := make(map[domain.Action]decimal.Decimal)

	for _, o := range opinions {
		w, ok := weights.Weights[o.AgentID]
		if !ok {
			w = decimal.Zero
		}
		contribution := w.Mul(o.Confidence)
		scores[o.Action] = scores[o.Action].Add(contribution)
		totalWeightPresent = totalWeightPresent.Add(w)
		if cur, ok := maxWeightByAction[o.Action]; !ok || w.GreaterThan(cur) {
			maxWeightByAction[o.Action] = w
		}
	}

	winner := argmax(scores)

	totalScore := decimal.Zero
	for _, s := range scores {
		totalScore = totalScore.Add(s)
	}

	consensusConfidence := decimal.Zero
	if !totalScore.IsZero() {
		consensusConfidence = scores[winner].Div(totalScore)
	}

	disagreement := decimal.Zero
	if !totalWeightPresent.IsZero() {
		maxWeightOnWinner := maxWeightByAction[winner]
		disagreement = decimal.NewFromInt(1).Sub(maxWeightOnWinner.Div(totalWeightPresent))
	}

	return Result{
		Winner:               winner,
		ConsensusConfidence:  consensusConfidence,
		Disagreement:         disagreement,
		Scores:               scores,
	}
}

// argmax picks the highest-scoring action, breaking ties per
// actionTieRank then alphabetically within the same rank.
func argmax(scores map[domain.Action]decimal.Decimal) domain.Action {
	if len(scores) == 0 {
		return domain.ActionHold
	}

	actions := make([]domain.Action, 0, len(scores))
	for a := range scores {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool {
		ri, rj := actionTieRank(actions[i]), actionTieRank(actions[j])
		if ri != rj {
			return ri < rj
		}
		return actions[i] < actions[j]
	})

	best := actions[0]
	bestScore := scores[best]
	for _, a := range actions[1:] {
		if scores[a].GreaterThan(bestScore) {
			best = a
			bestScore = scores[a]
		}
	}
	return best
}
