package patterns

import (
	"math"

	"github.com/quantora/signalmind/models"
)

// DetectAll scans the candle window for chart patterns and returns one vote
// per detected pattern. Votes carry a directional bias and a confidence in
// (0,1] that FusionEngine weighs against the chosen action.
func DetectAll(candles []models.Candle) []models.PatternVote {
	if len(candles) < 5 {
		return nil
	}

	var votes []models.PatternVote

	avgBody := averageBodySize(candles, 10)
	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]

	// Engulfing pairs.
	if isBullish(last) && isBearish(prev) &&
		last.Close > prev.Open && last.Open < prev.Close &&
		bodySize(last) > bodySize(prev)*1.5 {
		votes = append(votes, models.PatternVote{Name: "BULLISH_ENGULFING", Bias: models.ActionBuy, Confidence: 0.8})
	}
	if isBearish(last) && isBullish(prev) &&
		last.Close < prev.Open && last.Open > prev.Close &&
		bodySize(last) > bodySize(prev)*1.5 {
		votes = append(votes, models.PatternVote{Name: "BEARISH_ENGULFING", Bias: models.ActionSell, Confidence: 0.8})
	}

	// Single-candle reversal shapes.
	if v, ok := hammer(last, avgBody); ok {
		votes = append(votes, v)
	}
	if v, ok := shootingStar(last, avgBody); ok {
		votes = append(votes, v)
	}

	// Three-candle momentum runs.
	if len(candles) >= 3 {
		c3 := candles[len(candles)-3:]
		if isBullish(c3[0]) && isBullish(c3[1]) && isBullish(c3[2]) &&
			c3[1].Close > c3[0].Close && c3[2].Close > c3[1].Close &&
			bodySize(c3[0]) > avgBody*0.5 && bodySize(c3[1]) > avgBody*0.5 && bodySize(c3[2]) > avgBody*0.5 {
			votes = append(votes, models.PatternVote{Name: "THREE_WHITE_SOLDIERS", Bias: models.ActionBuy, Confidence: 0.9})
		}
		if isBearish(c3[0]) && isBearish(c3[1]) && isBearish(c3[2]) &&
			c3[1].Close < c3[0].Close && c3[2].Close < c3[1].Close &&
			bodySize(c3[0]) > avgBody*0.5 && bodySize(c3[1]) > avgBody*0.5 && bodySize(c3[2]) > avgBody*0.5 {
			votes = append(votes, models.PatternVote{Name: "THREE_BLACK_CROWS", Bias: models.ActionSell, Confidence: 0.9})
		}
	}

	// Double top/bottom over the recent window.
	if len(candles) >= 20 {
		votes = append(votes, doubleExtremes(candles[len(candles)-20:], avgBody)...)
	}

	return votes
}

func hammer(c models.Candle, avgBody float64) (models.PatternVote, bool) {
	body := bodySize(c)
	if body == 0 || avgBody == 0 {
		return models.PatternVote{}, false
	}
	lowerWick := math.Min(c.Open, c.Close) - c.Low
	upperWick := c.High - math.Max(c.Open, c.Close)
	if lowerWick > body*2 && upperWick < body*0.5 && body < avgBody*1.2 {
		return models.PatternVote{Name: "HAMMER", Bias: models.ActionBuy, Confidence: 0.6}, true
	}
	return models.PatternVote{}, false
}

func shootingStar(c models.Candle, avgBody float64) (models.PatternVote, bool) {
	body := bodySize(c)
	if body == 0 || avgBody == 0 {
		return models.PatternVote{}, false
	}
	lowerWick := math.Min(c.Open, c.Close) - c.Low
	upperWick := c.High - math.Max(c.Open, c.Close)
	if upperWick > body*2 && lowerWick < body*0.5 && body < avgBody*1.2 {
		return models.PatternVote{Name: "SHOOTING_STAR", Bias: models.ActionSell, Confidence: 0.6}, true
	}
	return models.PatternVote{}, false
}

// doubleExtremes looks for two comparable highs (double top) or lows (double
// bottom) separated by a meaningful retracement.
func doubleExtremes(window []models.Candle, avgBody float64) []models.PatternVote {
	if avgBody == 0 {
		return nil
	}
	tolerance := avgBody * 0.8

	var votes []models.PatternVote

	hi1, hi2 := topTwoHighs(window)
	if hi1 >= 0 && hi2 >= 0 && absInt(hi1-hi2) >= 4 &&
		math.Abs(window[hi1].High-window[hi2].High) < tolerance {
		valley := extremeBetween(window, hi1, hi2, true)
		if window[hi1].High-valley > avgBody*3 {
			votes = append(votes, models.PatternVote{Name: "DOUBLE_TOP", Bias: models.ActionSell, Confidence: 0.7})
		}
	}

	lo1, lo2 := bottomTwoLows(window)
	if lo1 >= 0 && lo2 >= 0 && absInt(lo1-lo2) >= 4 &&
		math.Abs(window[lo1].Low-window[lo2].Low) < tolerance {
		ridge := extremeBetween(window, lo1, lo2, false)
		if ridge-window[lo1].Low > avgBody*3 {
			votes = append(votes, models.PatternVote{Name: "DOUBLE_BOTTOM", Bias: models.ActionBuy, Confidence: 0.7})
		}
	}

	return votes
}

func topTwoHighs(window []models.Candle) (int, int) {
	first, second := -1, -1
	for i := range window {
		if first < 0 || window[i].High > window[first].High {
			second = first
			first = i
		} else if second < 0 || window[i].High > window[second].High {
			second = i
		}
	}
	return first, second
}

func bottomTwoLows(window []models.Candle) (int, int) {
	first, second := -1, -1
	for i := range window {
		if first < 0 || window[i].Low < window[first].Low {
			second = first
			first = i
		} else if second < 0 || window[i].Low < window[second].Low {
			second = i
		}
	}
	return first, second
}

// extremeBetween returns the extreme close between two indexes: the minimum
// when valley is true, the maximum otherwise.
func extremeBetween(window []models.Candle, a, b int, valley bool) float64 {
	if a > b {
		a, b = b, a
	}
	extreme := window[a].Close
	for i := a + 1; i <= b; i++ {
		if valley && window[i].Close < extreme {
			extreme = window[i].Close
		}
		if !valley && window[i].Close > extreme {
			extreme = window[i].Close
		}
	}
	return extreme
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func bodySize(c models.Candle) float64 {
	return math.Abs(c.Close - c.Open)
}

func isBullish(c models.Candle) bool {
	return c.Close > c.Open
}

func isBearish(c models.Candle) bool {
	return c.Close < c.Open
}

func averageBodySize(candles []models.Candle, n int) float64 {
	if len(candles) == 0 {
		return 0
	}
	if n > len(candles) {
		n = len(candles)
	}
	var sum float64
	for i := len(candles) - n; i < len(candles); i++ {
		sum += bodySize(candles[i])
	}
	return sum / float64(n)
}
