package indicators

import (
	"math"

	"github.com/quantora/signalmind/models"
)

// CalculateRSI computes the relative strength index over the last period
// candles. Returns a neutral 50 when there is not enough data.
func CalculateRSI(candles []models.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 50.0
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		change := candles[len(candles)-i].Close - candles[len(candles)-i-1].Close
		if change >= 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	if losses == 0 {
		return 100.0
	}

	rs := gains / losses
	return 100.0 - (100.0 / (1.0 + rs))
}

// CalculateATR computes the average true range over the last period candles.
func CalculateATR(candles []models.Candle, period int) float64 {
	if len(candles) < 2 {
		return 0
	}

	var trueRanges []float64
	for i := 1; i < len(candles); i++ {
		highLow := candles[i].High - candles[i].Low
		highPrevClose := math.Abs(candles[i].High - candles[i-1].Close)
		lowPrevClose := math.Abs(candles[i].Low - candles[i-1].Close)
		trueRanges = append(trueRanges, math.Max(highLow, math.Max(highPrevClose, lowPrevClose)))
	}

	periodToUse := period
	if len(trueRanges) < period {
		periodToUse = len(trueRanges)
	}

	var sum float64
	for i := len(trueRanges) - periodToUse; i < len(trueRanges); i++ {
		sum += trueRanges[i]
	}
	return sum / float64(periodToUse)
}

// CalculateADX computes a single-pass directional index over the period.
// This is the unsmoothed DX, not Wilder's multi-period smoothed ADX; the
// engine's regime thresholds are calibrated against this variant.
func CalculateADX(candles []models.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}

	var plusDM, minusDM, trSum float64
	start := len(candles) - period
	for i := start; i < len(candles); i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low
		if upMove > downMove && upMove > 0 {
			plusDM += upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM += downMove
		}

		tr1 := candles[i].High - candles[i].Low
		tr2 := math.Abs(candles[i].High - candles[i-1].Close)
		tr3 := math.Abs(candles[i].Low - candles[i-1].Close)
		trSum += math.Max(tr1, math.Max(tr2, tr3))
	}

	if trSum == 0 {
		return 0
	}
	plusDI := plusDM / trSum * 100
	minusDI := minusDM / trSum * 100
	if plusDI+minusDI == 0 {
		return 0
	}
	return math.Abs(plusDI-minusDI) / (plusDI + minusDI) * 100
}

// CalculateCCI computes the commodity channel index over the period.
func CalculateCCI(candles []models.Candle, period int) float64 {
	if len(candles) < period {
		return 0
	}

	window := candles[len(candles)-period:]
	typical := make([]float64, period)
	var sum float64
	for i, c := range window {
		typical[i] = (c.High + c.Low + c.Close) / 3
		sum += typical[i]
	}
	mean := sum / float64(period)

	var meanDeviation float64
	for _, tp := range typical {
		meanDeviation += math.Abs(tp - mean)
	}
	meanDeviation /= float64(period)
	if meanDeviation == 0 {
		return 0
	}

	return (typical[period-1] - mean) / (0.015 * meanDeviation)
}

// CalculateWilliamsR computes Williams %R over the period, in [-100, 0].
func CalculateWilliamsR(candles []models.Candle, period int) float64 {
	if len(candles) < period {
		return -50
	}

	window := candles[len(candles)-period:]
	highest := window[0].High
	lowest := window[0].Low
	for _, c := range window[1:] {
		if c.High > highest {
			highest = c.High
		}
		if c.Low < lowest {
			lowest = c.Low
		}
	}
	if highest == lowest {
		return -50
	}

	return (highest - window[len(window)-1].Close) / (highest - lowest) * -100
}

// VolatilityClusteringRatio compares short-window ATR against long-window
// ATR. Values above 1 mean volatility is currently clustering.
func VolatilityClusteringRatio(candles []models.Candle) float64 {
	atrShort := CalculateATR(candles, 10)
	atrLong := CalculateATR(candles, 30)
	if atrLong == 0 {
		return 1
	}
	return atrShort / atrLong
}

// AveragePrice returns the mean close over the last n candles.
func AveragePrice(candles []models.Candle, n int) float64 {
	if len(candles) == 0 {
		return 0
	}
	if n > len(candles) {
		n = len(candles)
	}
	var sum float64
	for i := len(candles) - n; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return sum / float64(n)
}

// Snapshot bundles the readings the decision engine consumes each tick.
type Snapshot struct {
	Votes       models.IndicatorVotes
	Observation models.Observation
	Micro       models.Microstructure
}

// Periods configures the lookback windows used by TakeSnapshot.
type Periods struct {
	RSI       int
	ADX       int
	ATR       int
	CCI       int
	WilliamsR int
}

// DefaultPeriods returns the standard lookback windows.
func DefaultPeriods() Periods {
	return Periods{RSI: 14, ADX: 14, ATR: 14, CCI: 20, WilliamsR: 14}
}

// TakeSnapshot computes all indicator readings over the candle window.
func TakeSnapshot(candles []models.Candle, p Periods) Snapshot {
	avgPrice := AveragePrice(candles, 20)
	atr := CalculateATR(candles, p.ATR)
	adx := CalculateADX(candles, p.ADX)

	spread := 0.0
	if len(candles) > 0 {
		last := candles[len(candles)-1]
		spread = last.High - last.Low
	}

	return Snapshot{
		Votes: models.IndicatorVotes{
			RSI:       CalculateRSI(candles, p.RSI),
			ADX:       adx,
			ATR:       atr,
			WilliamsR: CalculateWilliamsR(candles, p.WilliamsR),
			CCI:       CalculateCCI(candles, p.CCI),
		},
		Observation: models.Observation{
			ADX:            adx,
			ATR:            atr,
			AvgPrice:       avgPrice,
			TickFrequency:  float64(len(candles)),
			SpreadEstimate: spread,
		},
		Micro: models.Microstructure{
			VolatilityClustering: VolatilityClusteringRatio(candles),
		},
	}
}

// Features normalizes indicator votes into the predictor's [0,1]^5 input.
func Features(v models.IndicatorVotes) [5]float64 {
	return [5]float64{
		clamp01(v.RSI / 100),
		clamp01(v.ADX / 100),
		clamp01(math.Min(v.ATR*100, 1)),
		clamp01((v.WilliamsR + 100) / 100),
		clamp01((v.CCI + 200) / 400),
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
