package validation

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/quantora/signalmind/models"
)

// Fixed simulation parameters: flat stake per signal at a binary payout
// ratio, starting from a nominal balance.
const (
	Stake           = 10.0
	PayoutRatio     = 0.85
	StartingBalance = 1000.0
)

// ErrNoSignals is returned when no resolved signals are available to test.
var ErrNoSignals = errors.New("no resolved signals to validate")

// Backtest simulates fixed-stake trading over the resolved signals in order.
// Unresolved signals are skipped; an input with no resolved signals is an error.
func Backtest(signals []models.Signal) (*models.BacktestResult, error) {
	result := &models.BacktestResult{
		RegimeWinRates: make(map[string]float64),
		EquityCurve:    []float64{StartingBalance},
	}

	balance := StartingBalance
	peak := balance
	var grossProfit, grossLoss float64
	regimeWins := make(map[string]int)
	regimeTotals := make(map[string]int)

	for i := range signals {
		sig := &signals[i]
		if !sig.Resolved() {
			continue
		}
		result.TotalTrades++
		regimeTotals[sig.Regime]++

		if sig.Result == models.ResultWin {
			result.Wins++
			regimeWins[sig.Regime]++
			profit := Stake * PayoutRatio
			grossProfit += profit
			balance += profit
		} else {
			result.Losses++
			grossLoss += Stake
			balance -= Stake
		}

		result.EquityCurve = append(result.EquityCurve, balance)
		if balance > peak {
			peak = balance
		} else if peak > 0 {
			drawdown := (peak - balance) / peak * 100
			if drawdown > result.MaxDrawdown {
				result.MaxDrawdown = drawdown
			}
		}
	}

	if result.TotalTrades == 0 {
		return nil, ErrNoSignals
	}

	result.WinRate = float64(result.Wins) / float64(result.TotalTrades) * 100
	result.NetProfit = grossProfit - grossLoss
	result.ROI = result.NetProfit / StartingBalance * 100
	result.FinalBalance = balance
	if grossLoss > 0 {
		result.ProfitFactor = grossProfit / grossLoss
	} else {
		result.ProfitFactor = grossProfit
	}
	for regime, total := range regimeTotals {
		result.RegimeWinRates[regime] = float64(regimeWins[regime]) / float64(total) * 100
	}

	return result, nil
}

// MonteCarlo runs a permutation test: each iteration backtests a uniformly
// random reordering of the same signal set. It measures sensitivity to signal
// ordering, not sampling variance.
func MonteCarlo(signals []models.Signal, iterations int) (*models.MonteCarloResult, error) {
	if iterations <= 0 {
		iterations = 100
	}
	if _, err := Backtest(signals); err != nil {
		return nil, err
	}

	permuted := make([]models.Signal, len(signals))
	copy(permuted, signals)

	winRates := make([]float64, 0, iterations)
	rois := make([]float64, 0, iterations)
	drawdowns := make([]float64, 0, iterations)
	profitFactors := make([]float64, 0, iterations)
	profitable := 0

	for i := 0; i < iterations; i++ {
		rand.Shuffle(len(permuted), func(a, b int) {
			permuted[a], permuted[b] = permuted[b], permuted[a]
		})
		bt, err := Backtest(permuted)
		if err != nil {
			return nil, fmt.Errorf("permutation %d: %w", i, err)
		}
		winRates = append(winRates, bt.WinRate)
		rois = append(rois, bt.ROI)
		drawdowns = append(drawdowns, bt.MaxDrawdown)
		profitFactors = append(profitFactors, bt.ProfitFactor)
		if bt.ROI > 0 {
			profitable++
		}
	}

	return &models.MonteCarloResult{
		Iterations:        iterations,
		WinRate:           describe(winRates),
		ROI:               describe(rois),
		Drawdown:          describe(drawdowns),
		ProfitFactor:      describe(profitFactors),
		ProfitablePercent: float64(profitable) / float64(iterations) * 100,
	}, nil
}

// ForwardTest backtests only the most recent testPeriod signals. It errors
// when fewer signals are available than the requested period.
func ForwardTest(signals []models.Signal, testPeriod int) (*models.BacktestResult, error) {
	if testPeriod <= 0 {
		return nil, fmt.Errorf("invalid test period %d", testPeriod)
	}
	if len(signals) < testPeriod {
		return nil, fmt.Errorf("forward test needs %d signals, have %d", testPeriod, len(signals))
	}
	return Backtest(signals[len(signals)-testPeriod:])
}

// describe computes distribution statistics for one metric across iterations.
func describe(values []float64) models.DistributionStats {
	if len(values) == 0 {
		return models.DistributionStats{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))

	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}

	return models.DistributionStats{
		Mean:   mean,
		Median: median,
		StdDev: math.Sqrt(variance),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}
