package policy

import (
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantora/signalmind/models"
)

const (
	rewardCapacity = 500

	defaultAlpha   = 0.1
	defaultGamma   = 0.9
	defaultEpsilon = 0.15

	initialQ = 0.5

	// Below this Q spread the policy is considered indifferent and defers
	// to the predictor.
	indifferenceBand = 0.1
)

// Policy is a tabular Q-learning agent over (regime, action).
type Policy struct {
	q       map[string]map[string]float64
	alpha   float64
	gamma   float64
	epsilon float64
	rewards []models.RewardEvent
	rng     *rand.Rand
	logger  zerolog.Logger
}

// New creates a policy with all Q values at 0.5. Non-positive parameters fall
// back to the defaults (alpha 0.1, gamma 0.9, epsilon 0.15).
func New(alpha, gamma, epsilon float64, seed int64) *Policy {
	if alpha <= 0 {
		alpha = defaultAlpha
	}
	if gamma <= 0 {
		gamma = defaultGamma
	}
	if epsilon < 0 {
		epsilon = defaultEpsilon
	}
	p := &Policy{
		q:       make(map[string]map[string]float64, 4),
		alpha:   alpha,
		gamma:   gamma,
		epsilon: epsilon,
		rng:     rand.New(rand.NewSource(seed)),
		logger:  log.With().Str("component", "policy").Logger(),
	}
	for _, regime := range models.RegimeNames {
		p.q[regime] = map[string]float64{
			models.ActionBuy:  initialQ,
			models.ActionSell: initialQ,
		}
	}
	return p
}

// SelectAction picks an action for the regime, epsilon-greedy. An empty
// predictorAction means no predictor suggestion is available.
func (p *Policy) SelectAction(regime, predictorAction string) string {
	if p.rng.Float64() < p.epsilon {
		return p.randomAction()
	}

	row, ok := p.q[regime]
	if !ok {
		p.logger.Warn().Str("regime", regime).Msg("unknown regime in action selection")
		if predictorAction != "" {
			return predictorAction
		}
		return p.randomAction()
	}

	buyQ, sellQ := row[models.ActionBuy], row[models.ActionSell]
	if predictorAction != "" && abs(buyQ-sellQ) < indifferenceBand {
		return predictorAction
	}
	if sellQ > buyQ {
		return models.ActionSell
	}
	return models.ActionBuy
}

// Update applies the Bellman update for a resolved action and records the
// reward event. Unknown regimes are a logged no-op.
func (p *Policy) Update(regime, action string, reward float64, nextRegime string) {
	row, ok := p.q[regime]
	if !ok {
		p.logger.Warn().Str("regime", regime).Msg("unknown regime in Q update")
		return
	}
	nextRow, ok := p.q[nextRegime]
	if !ok {
		p.logger.Warn().Str("regime", nextRegime).Msg("unknown next regime in Q update")
		return
	}
	if _, ok := row[action]; !ok {
		p.logger.Warn().Str("action", action).Msg("unknown action in Q update")
		return
	}

	maxNext := nextRow[models.ActionBuy]
	if nextRow[models.ActionSell] > maxNext {
		maxNext = nextRow[models.ActionSell]
	}

	oldQ := row[action]
	newQ := oldQ + p.alpha*(reward+p.gamma*maxNext-oldQ)
	row[action] = newQ

	p.rewards = append(p.rewards, models.RewardEvent{
		Regime:    regime,
		Action:    action,
		Reward:    reward,
		OldQ:      oldQ,
		NewQ:      newQ,
		Timestamp: time.Now(),
	})
	if len(p.rewards) > rewardCapacity {
		p.rewards = p.rewards[len(p.rewards)-rewardCapacity:]
	}
}

// ConfidenceAdjustment returns the additive confidence delta for taking the
// given action in the given regime, based on the Q spread to the alternative.
func (p *Policy) ConfidenceAdjustment(regime, action string) float64 {
	row, ok := p.q[regime]
	if !ok {
		return 0
	}
	other := models.ActionSell
	if action == models.ActionSell {
		other = models.ActionBuy
	}
	d := row[action] - row[other]
	switch {
	case d > 0.2:
		return 10
	case d > 0.1:
		return 5
	case d < -0.1:
		return -5
	default:
		return 0
	}
}

// Experienced reports whether the policy has seen at least one reward, which
// is when its suggestions start carrying information beyond the initial table.
func (p *Policy) Experienced() bool {
	return len(p.rewards) > 0
}

// WinRates returns the per-regime win rate over the reward ring.
func (p *Policy) WinRates() map[string]float64 {
	wins := make(map[string]int)
	totals := make(map[string]int)
	for _, ev := range p.rewards {
		totals[ev.Regime]++
		if ev.Reward > 0 {
			wins[ev.Regime]++
		}
	}
	rates := make(map[string]float64, len(totals))
	for regime, total := range totals {
		rates[regime] = float64(wins[regime]) / float64(total) * 100
	}
	return rates
}

// ActionWinRates returns win rates per (regime, action) pair.
func (p *Policy) ActionWinRates() map[string]map[string]float64 {
	wins := make(map[string]map[string]int)
	totals := make(map[string]map[string]int)
	for _, ev := range p.rewards {
		if totals[ev.Regime] == nil {
			totals[ev.Regime] = make(map[string]int)
			wins[ev.Regime] = make(map[string]int)
		}
		totals[ev.Regime][ev.Action]++
		if ev.Reward > 0 {
			wins[ev.Regime][ev.Action]++
		}
	}
	rates := make(map[string]map[string]float64, len(totals))
	for regime, actions := range totals {
		rates[regime] = make(map[string]float64, len(actions))
		for action, total := range actions {
			rates[regime][action] = float64(wins[regime][action]) / float64(total) * 100
		}
	}
	return rates
}

// QTable returns a deep copy of the Q table.
func (p *Policy) QTable() map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(p.q))
	for regime, row := range p.q {
		out[regime] = map[string]float64{
			models.ActionBuy:  row[models.ActionBuy],
			models.ActionSell: row[models.ActionSell],
		}
	}
	return out
}

// SetQTable restores persisted Q values for known regimes and actions.
func (p *Policy) SetQTable(table map[string]map[string]float64) {
	for regime, row := range table {
		dst, ok := p.q[regime]
		if !ok {
			p.logger.Warn().Str("regime", regime).Msg("skipping persisted Q row for unknown regime")
			continue
		}
		for _, action := range []string{models.ActionBuy, models.ActionSell} {
			if v, ok := row[action]; ok {
				dst[action] = v
			}
		}
	}
}

// Rewards returns a copy of the reward-event ring, oldest first.
func (p *Policy) Rewards() []models.RewardEvent {
	out := make([]models.RewardEvent, len(p.rewards))
	copy(out, p.rewards)
	return out
}

// SetRewards restores a persisted reward ring.
func (p *Policy) SetRewards(rewards []models.RewardEvent) {
	if len(rewards) > rewardCapacity {
		rewards = rewards[len(rewards)-rewardCapacity:]
	}
	p.rewards = append(p.rewards[:0], rewards...)
}

func (p *Policy) randomAction() string {
	if p.rng.Intn(2) == 0 {
		return models.ActionBuy
	}
	return models.ActionSell
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
