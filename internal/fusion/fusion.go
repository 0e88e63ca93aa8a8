package fusion

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantora/signalmind/internal/policy"
	"github.com/quantora/signalmind/models"
)

const (
	minConfidence = 30
	maxConfidence = 95

	overrideBaseline  = 60 // confidence after a policy override of the predictor
	policyBaseline    = 55 // confidence when only the policy is ready
	indicatorBaseline = 55 // confidence of the static indicator fallback
	randomBaseline    = 45 // confidence of the cold-start coin flip

	maxReasons = 10
)

// Input carries everything one fusion decision needs.
type Input struct {
	Regime      models.RegimeResult
	Prediction  *models.Prediction // nil when the predictor is not ready
	Observation models.Observation
	Votes       models.IndicatorVotes
	Patterns    []models.PatternVote
	Micro       models.Microstructure
	EntryPrice  float64
}

// Options tunes fusion behavior.
type Options struct {
	// MinConfidence gates emission: signals below it are suppressed.
	// Zero disables the gate and every decision is emitted.
	MinConfidence float64
	// RegimeBoost is the additive per-regime confidence table. Nil uses
	// the defaults.
	RegimeBoost map[string]float64
}

// DefaultRegimeBoost returns the built-in per-regime confidence table.
func DefaultRegimeBoost() map[string]float64 {
	return map[string]float64{
		models.RegimeTrending: 15,
		models.RegimeRanging:  20,
		models.RegimeVolatile: -10,
		models.RegimeChaotic:  -15,
	}
}

type decision struct {
	action     string
	confidence float64
	reasons    []string
	fallback   bool
}

// strategy is one rung of the resolution chain. The engine walks the chain in
// order and uses the first strategy that reports itself ready.
type strategy interface {
	name() string
	ready(in Input) bool
	evaluate(in Input) decision
}

// Engine fuses the regime estimate, predictor output, policy suggestion and
// indicator/pattern votes into one signal.
type Engine struct {
	policy      *policy.Policy
	strategies  []strategy
	regimeBoost map[string]float64
	minGate     float64
	logger      zerolog.Logger
}

// New builds a fusion engine over the given policy.
func New(pol *policy.Policy, opts Options, seed int64) *Engine {
	boost := opts.RegimeBoost
	if boost == nil {
		boost = DefaultRegimeBoost()
	}
	e := &Engine{
		policy:      pol,
		regimeBoost: boost,
		minGate:     opts.MinConfidence,
		logger:      log.With().Str("component", "fusion").Logger(),
	}
	e.strategies = []strategy{
		&predictorStrategy{policy: pol},
		&policyStrategy{policy: pol},
		&fallbackStrategy{rng: rand.New(rand.NewSource(seed))},
	}
	return e
}

// Fuse produces the final signal for this tick. The boolean is false when the
// confidence gate suppressed emission.
func (e *Engine) Fuse(in Input) (*models.Signal, bool) {
	var d decision
	source := ""
	for _, s := range e.strategies {
		if !s.ready(in) {
			continue
		}
		d = s.evaluate(in)
		source = s.name()
		break
	}

	// Regime confidence table.
	if boost, ok := e.regimeBoost[in.Regime.State]; ok && boost != 0 {
		d.confidence += boost
		d.reasons = append(d.reasons, fmt.Sprintf("regime %s adjustment %+.0f", in.Regime.State, boost))
	}

	// Microstructure: volatility clustering penalizes, calm rewards.
	switch {
	case in.Micro.VolatilityClustering > 1.5:
		d.confidence -= 10
		d.reasons = append(d.reasons, fmt.Sprintf("volatility clustering %.2f", in.Micro.VolatilityClustering))
	case in.Micro.VolatilityClustering > 0 && in.Micro.VolatilityClustering < 0.7:
		d.confidence += 5
		d.reasons = append(d.reasons, fmt.Sprintf("calm volatility %.2f", in.Micro.VolatilityClustering))
	}

	// Pattern agreement.
	for _, p := range in.Patterns {
		if p.Bias == d.action {
			d.confidence += p.Confidence * 10
			d.reasons = append(d.reasons, fmt.Sprintf("pattern %s agrees", p.Name))
		} else {
			d.confidence -= p.Confidence * 5
			d.reasons = append(d.reasons, fmt.Sprintf("pattern %s conflicts", p.Name))
		}
	}

	duration, durationReason := selectDuration(in.Observation)
	d.reasons = append(d.reasons, durationReason)

	if d.confidence < minConfidence {
		d.confidence = minConfidence
	}
	if d.confidence > maxConfidence {
		d.confidence = maxConfidence
	}

	if e.minGate > 0 && d.confidence < e.minGate {
		e.logger.Debug().
			Str("source", source).
			Float64("confidence", d.confidence).
			Float64("gate", e.minGate).
			Msg("signal suppressed by confidence gate")
		return nil, false
	}

	if len(d.reasons) > maxReasons {
		d.reasons = d.reasons[:maxReasons]
	}

	sig := &models.Signal{
		ID:         uuid.NewString(),
		Action:     d.action,
		Confidence: d.confidence,
		Duration:   duration,
		Regime:     in.Regime.State,
		Reasons:    d.reasons,
		EntryPrice: in.EntryPrice,
		Timestamp:  time.Now().UnixMilli(),
		IsFallback: d.fallback,
	}
	e.logger.Info().
		Str("source", source).
		Str("action", sig.Action).
		Float64("confidence", sig.Confidence).
		Int("duration_min", sig.Duration).
		Str("regime", sig.Regime).
		Msg("fused signal")
	return sig, true
}

// selectDuration maps market conditions to an expiry, with a reason.
func selectDuration(obs models.Observation) (int, string) {
	atrRatio := obs.ATRRatio()
	switch {
	case obs.ADX > 30:
		return 5, fmt.Sprintf("strong trend (ADX %.1f), extended 5m expiry", obs.ADX)
	case atrRatio > 0.025:
		return 1, fmt.Sprintf("very high volatility (ATR ratio %.4f), 1m expiry", atrRatio)
	case atrRatio > 0.015:
		return 2, fmt.Sprintf("high volatility (ATR ratio %.4f), short 2m expiry", atrRatio)
	default:
		return 3, "normal conditions, default 3m expiry"
	}
}

// predictorStrategy emits the network's direction, letting the policy
// override it and adjust confidence.
type predictorStrategy struct {
	policy *policy.Policy
}

func (s *predictorStrategy) name() string { return "predictor" }

func (s *predictorStrategy) ready(in Input) bool { return in.Prediction != nil }

func (s *predictorStrategy) evaluate(in Input) decision {
	d := decision{
		action:     in.Prediction.Action,
		confidence: in.Prediction.Confidence,
		reasons: []string{fmt.Sprintf("predictor %s (buy %.2f / sell %.2f)",
			in.Prediction.Action, in.Prediction.BuyProb, in.Prediction.SellProb)},
	}

	rlAction := s.policy.SelectAction(in.Regime.State, in.Prediction.Action)
	if rlAction != d.action {
		d.reasons = append(d.reasons, fmt.Sprintf("policy override %s -> %s", d.action, rlAction))
		d.action = rlAction
		d.confidence = overrideBaseline
	}
	if adj := s.policy.ConfidenceAdjustment(in.Regime.State, rlAction); adj != 0 {
		d.confidence += adj
		d.reasons = append(d.reasons, fmt.Sprintf("policy confidence %+.0f", adj))
	}
	return d
}

// policyStrategy runs when the predictor is cold but the Q table has
// accumulated experience.
type policyStrategy struct {
	policy *policy.Policy
}

func (s *policyStrategy) name() string { return "policy" }

func (s *policyStrategy) ready(in Input) bool { return s.policy.Experienced() }

func (s *policyStrategy) evaluate(in Input) decision {
	action := s.policy.SelectAction(in.Regime.State, "")
	return decision{
		action:     action,
		confidence: policyBaseline,
		reasons:    []string{fmt.Sprintf("q-policy %s in %s", action, in.Regime.State)},
	}
}

// fallbackStrategy is the cold-start rung: static indicator thresholds, or a
// coin flip at reduced confidence when nothing votes.
type fallbackStrategy struct {
	rng *rand.Rand
}

func (s *fallbackStrategy) name() string { return "fallback" }

func (s *fallbackStrategy) ready(in Input) bool { return true }

func (s *fallbackStrategy) evaluate(in Input) decision {
	v := in.Votes
	switch {
	case v.RSI < 35 || v.WilliamsR < -80 || v.CCI < -100:
		return decision{
			action:     models.ActionBuy,
			confidence: indicatorBaseline,
			reasons:    []string{"oversold indicators favor BUY"},
			fallback:   true,
		}
	case v.RSI > 65 || v.WilliamsR > -20 || v.CCI > 100:
		return decision{
			action:     models.ActionSell,
			confidence: indicatorBaseline,
			reasons:    []string{"overbought indicators favor SELL"},
			fallback:   true,
		}
	}

	action := models.ActionBuy
	if s.rng.Intn(2) == 1 {
		action = models.ActionSell
	}
	return decision{
		action:     action,
		confidence: randomBaseline,
		reasons:    []string{"cold start, random direction at reduced confidence"},
		fallback:   true,
	}
}
