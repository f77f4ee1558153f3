package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Action is the tagged-variant replacement for the source's loose
// dict-of-any agent payloads: every opinion carries one of this closed set,
// validated at the LLM adapter boundary so downstream code never has to
// sniff strings.
type Action string

const (
	ActionBuy      Action = "BUY"
	ActionSell     Action = "SELL"
	ActionHold     Action = "HOLD"
	ActionMaintain Action = "MAINTAIN"
	ActionReduce   Action = "REDUCE"
	ActionIncrease Action = "INCREASE"
	ActionDCA      Action = "DCA"
)

// AgentOpinion is one agent's vote in a deliberation.
type AgentOpinion struct {
	AgentID    string
	Action     Action
	Confidence decimal.Decimal // [0,1]
	Reasoning  string
	Features   map[string]any
}

// PMVerdict is the Portfolio Manager's gate applied to a completed ballot.
type PMVerdict string

const (
	VerdictApprove    PMVerdict = "approve"
	VerdictReject     PMVerdict = "reject"
	VerdictReduceSize PMVerdict = "reduce_size"
	VerdictSilence    PMVerdict = "silence"
)

// Deliberation is the append-only record of one War Room session for one
// symbol: every agent opinion plus the final ballot outcome and PM verdict.
type Deliberation struct {
	ID              uuid.UUID
	Symbol          string
	StartedAt       time.Time
	EndedAt         time.Time
	AgentOpinions   []AgentOpinion
	FinalAction     Action
	FinalConfidence decimal.Decimal
	Disagreement    decimal.Decimal
	PMVerdict       PMVerdict
	Reasoning       string
	WeightsVersion  int
}

// AgentWeights is a versioned, append-only, monotonic weight assignment.
// Only the Weight Adjuster produces new versions; every other reader takes
// an immutable snapshot at deliberation start.
type AgentWeights struct {
	Version     int
	EffectiveAt time.Time
	Weights     map[string]decimal.Decimal
	Reason      string
	Actor       string
}

// PersonaMode names a preset of PM thresholds.
type PersonaMode string

const (
	PersonaAggressive PersonaMode = "AGGRESSIVE"
	PersonaTrading    PersonaMode = "TRADING"
	PersonaLongTerm   PersonaMode = "LONG_TERM"
	PersonaDividend   PersonaMode = "DIVIDEND"
)

// PersonaThresholds holds the two PM thresholds a persona parameterizes.
type PersonaThresholds struct {
	DisagreementReject  decimal.Decimal
	ConfidenceSilence   decimal.Decimal
}

// DefaultPersonaThresholds returns the threshold table from spec §4.8. The
// disagreement default for TRADING is the spec's tightened 0.67 value; the
// historical 0.75 remains available as the DIVIDEND/long-horizon preset so
// a deployment can opt back into the looser threshold explicitly instead of
// it being silently picked for everyone (see Open Question in SPEC_FULL.md).
func DefaultPersonaThresholds() map[PersonaMode]PersonaThresholds {
	d := func(s string) decimal.Decimal { v, _ := decimal.NewFromString(s); return v }
	return map[PersonaMode]PersonaThresholds{
		PersonaAggressive: {DisagreementReject: d("0.60"), ConfidenceSilence: d("0.45")},
		PersonaTrading:    {DisagreementReject: d("0.67"), ConfidenceSilence: d("0.50")},
		PersonaLongTerm:   {DisagreementReject: d("0.70"), ConfidenceSilence: d("0.55")},
		PersonaDividend:   {DisagreementReject: d("0.75"), ConfidenceSilence: d("0.60")},
	}
}
