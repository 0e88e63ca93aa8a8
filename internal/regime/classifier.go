package regime

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantora/signalmind/models"
)

const (
	historyCapacity   = 100
	minHistoryToLearn = 20
)

// Classifier is a four-state Bayesian regime estimator. Emission likelihoods
// come from fixed ADX/ATR heuristics; the posterior folds in a row-stochastic
// transition matrix that is learned online from the observed state history.
type Classifier struct {
	current    int
	transition [4][4]float64
	history    []models.RegimeSnapshot
	blendAlpha float64
	logger     zerolog.Logger
}

// NewClassifier creates a classifier starting in RANGING with a uniform
// transition matrix.
func NewClassifier(blendAlpha float64) *Classifier {
	if blendAlpha <= 0 || blendAlpha >= 1 {
		blendAlpha = 0.1
	}
	c := &Classifier{
		current:    models.RegimeIndex(models.RegimeRanging),
		blendAlpha: blendAlpha,
		logger:     log.With().Str("component", "regime_classifier").Logger(),
	}
	// Uniform prior: the first classifications follow the emission vector
	// alone, and persistence is learned from the observed history. Ties in
	// the posterior keep the held state.
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			c.transition[i][j] = 0.25
		}
	}
	return c
}

// Classify turns one observation into a regime estimate. Invalid observations
// soft-fail to the currently held state with a uniform distribution.
func (c *Classifier) Classify(obs models.Observation) models.RegimeResult {
	if !obs.Valid() {
		c.logger.Warn().
			Float64("adx", obs.ADX).
			Float64("atr", obs.ATR).
			Float64("avg_price", obs.AvgPrice).
			Msg("invalid observation, holding current regime")
		return models.RegimeResult{
			State:         models.RegimeNames[c.current],
			Confidence:    50,
			Probabilities: [4]float64{0.25, 0.25, 0.25, 0.25},
		}
	}

	emission := emissionVector(obs.ADX, obs.ATRRatio())

	// Posterior: emission weighted by the transition row of the held state.
	var posterior [4]float64
	var sum float64
	for i := 0; i < 4; i++ {
		posterior[i] = emission[i] * c.transition[c.current][i]
		sum += posterior[i]
	}
	if sum <= 0 {
		posterior = [4]float64{0.25, 0.25, 0.25, 0.25}
	} else {
		for i := range posterior {
			posterior[i] /= sum
		}
	}

	// Argmax, keeping the current state on ties.
	next := c.current
	best := posterior[c.current]
	for i := 0; i < 4; i++ {
		if posterior[i] > best {
			best = posterior[i]
			next = i
		}
	}
	c.current = next

	result := models.RegimeResult{
		State:         models.RegimeNames[next],
		Confidence:    posterior[next] * 100,
		Probabilities: posterior,
	}

	c.appendHistory(models.RegimeSnapshot{
		Timestamp:  time.Now(),
		State:      result.State,
		Confidence: result.Confidence,
		ADX:        obs.ADX,
		ATRRatio:   obs.ATRRatio(),
		Probs:      posterior,
	})
	if len(c.history) >= minHistoryToLearn {
		c.learnTransitions()
	}

	return result
}

// emissionVector applies the fixed heuristic likelihood rules and normalizes.
func emissionVector(adx, atrRatio float64) [4]float64 {
	var e [4]float64

	if adx > 25 {
		e[0] = minFloat(1, adx/50) * 0.9
	} else {
		e[0] = 0.1
	}

	switch {
	case adx < 20 && atrRatio < 0.015:
		e[1] = 0.8
	case adx < 25:
		e[1] = 0.5
	default:
		e[1] = 0.1
	}

	if atrRatio > 0.015 && atrRatio < 0.03 {
		e[2] = minFloat(1, atrRatio/0.03) * 0.85
	} else {
		e[2] = 0.15
	}

	switch {
	case (adx < 15 && atrRatio > 0.025) || atrRatio > 0.035:
		e[3] = 0.9
	case atrRatio > 0.02:
		e[3] = 0.4
	default:
		e[3] = 0.05
	}

	var sum float64
	for _, v := range e {
		sum += v
	}
	for i := range e {
		e[i] /= sum
	}
	return e
}

func (c *Classifier) appendHistory(snap models.RegimeSnapshot) {
	c.history = append(c.history, snap)
	if len(c.history) > historyCapacity {
		c.history = c.history[len(c.history)-historyCapacity:]
	}
}

// learnTransitions counts empirical state-to-state moves in the history ring
// and blends each observed row into the transition matrix.
func (c *Classifier) learnTransitions() {
	var counts [4][4]float64
	for i := 1; i < len(c.history); i++ {
		from := models.RegimeIndex(c.history[i-1].State)
		to := models.RegimeIndex(c.history[i].State)
		if from < 0 || to < 0 {
			continue
		}
		counts[from][to]++
	}

	for row := 0; row < 4; row++ {
		var total float64
		for col := 0; col < 4; col++ {
			total += counts[row][col]
		}
		if total == 0 {
			continue // no observed transitions out of this state
		}
		var rowSum float64
		for col := 0; col < 4; col++ {
			observed := counts[row][col] / total
			c.transition[row][col] = (1-c.blendAlpha)*c.transition[row][col] + c.blendAlpha*observed
			rowSum += c.transition[row][col]
		}
		// Guard against floating drift; rows stay stochastic.
		for col := 0; col < 4; col++ {
			c.transition[row][col] /= rowSum
		}
	}
}

// State returns the currently held regime name.
func (c *Classifier) State() string {
	return models.RegimeNames[c.current]
}

// History returns a copy of the snapshot ring, oldest first.
func (c *Classifier) History() []models.RegimeSnapshot {
	out := make([]models.RegimeSnapshot, len(c.history))
	copy(out, c.history)
	return out
}

// SetHistory restores a persisted snapshot ring.
func (c *Classifier) SetHistory(history []models.RegimeSnapshot) {
	if len(history) > historyCapacity {
		history = history[len(history)-historyCapacity:]
	}
	c.history = append(c.history[:0], history...)
	if len(c.history) > 0 {
		if idx := models.RegimeIndex(c.history[len(c.history)-1].State); idx >= 0 {
			c.current = idx
		}
	}
}

// TransitionMatrix returns a copy of the current transition matrix.
func (c *Classifier) TransitionMatrix() [4][4]float64 {
	return c.transition
}

// SetTransitionMatrix restores a persisted matrix, renormalizing each row.
// Rows that do not form a distribution are rejected and left unchanged.
func (c *Classifier) SetTransitionMatrix(m [4][4]float64) {
	for row := 0; row < 4; row++ {
		var sum float64
		valid := true
		for col := 0; col < 4; col++ {
			if m[row][col] < 0 {
				valid = false
				break
			}
			sum += m[row][col]
		}
		if !valid || sum <= 0 {
			c.logger.Warn().Int("row", row).Msg("rejecting persisted transition row")
			continue
		}
		for col := 0; col < 4; col++ {
			c.transition[row][col] = m[row][col] / sum
		}
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
