package models

import (
	"time"
)

// Trading actions emitted by the engine.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// Market regimes, in fixed index order for probability vectors.
const (
	RegimeTrending = "TRENDING"
	RegimeRanging  = "RANGING"
	RegimeVolatile = "VOLATILE"
	RegimeChaotic  = "CHAOTIC"
)

// RegimeNames lists the four regimes in vector order.
var RegimeNames = [4]string{RegimeTrending, RegimeRanging, RegimeVolatile, RegimeChaotic}

// RegimeIndex returns the vector position of a regime name, or -1 when unknown.
func RegimeIndex(name string) int {
	for i, n := range RegimeNames {
		if n == name {
			return i
		}
	}
	return -1
}

// Signal outcomes. An empty Result means the signal is still in flight.
const (
	ResultWin  = "WIN"
	ResultLoss = "LOSS"
)

// Candle represents a single price candle
type Candle struct {
	Datetime string  `json:"datetime"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   int64   `json:"volume,omitempty"`
}

// Observation is the scalar bundle the classifier consumes each tick.
type Observation struct {
	ADX            float64 `json:"adx"`
	ATR            float64 `json:"atr"`
	AvgPrice       float64 `json:"avg_price"`
	TickFrequency  float64 `json:"tick_frequency"`
	SpreadEstimate float64 `json:"spread_estimate"`
}

// ATRRatio is the ATR normalized by the average price.
func (o Observation) ATRRatio() float64 {
	if o.AvgPrice <= 0 {
		return 0
	}
	return o.ATR / o.AvgPrice
}

// Valid reports whether the observation carries usable values.
func (o Observation) Valid() bool {
	return o.ADX > 0 && o.ATR > 0 && o.AvgPrice > 0
}

// RegimeResult is the classifier output for one observation.
type RegimeResult struct {
	State         string     `json:"state"`
	Confidence    float64    `json:"confidence"`
	Probabilities [4]float64 `json:"probabilities"`
}

// RegimeSnapshot is one entry of the classifier history ring.
type RegimeSnapshot struct {
	Timestamp  time.Time  `json:"timestamp"`
	State      string     `json:"state"`
	Confidence float64    `json:"confidence"`
	ADX        float64    `json:"adx"`
	ATRRatio   float64    `json:"atr_ratio"`
	Probs      [4]float64 `json:"probs"`
}

// TrainingSample is one outcome-labeled example in the predictor buffer.
// Features are normalized to [0,1]; Label is one-hot over {BUY correct, SELL correct}.
type TrainingSample struct {
	Features [5]float64 `json:"features"`
	Label    [2]float64 `json:"label"`
}

// Prediction is the predictor's directional output.
type Prediction struct {
	Action     string  `json:"action"`
	BuyProb    float64 `json:"buy_prob"`
	SellProb   float64 `json:"sell_prob"`
	Confidence float64 `json:"confidence"`
}

// RewardEvent records a single Q-table update.
type RewardEvent struct {
	Regime    string    `json:"regime"`
	Action    string    `json:"action"`
	Reward    float64   `json:"reward"`
	OldQ      float64   `json:"old_q"`
	NewQ      float64   `json:"new_q"`
	Timestamp time.Time `json:"timestamp"`
}

// IndicatorVotes carries the raw indicator readings FusionEngine and the
// predictor feature vector are built from.
type IndicatorVotes struct {
	RSI       float64 `json:"rsi"`
	ADX       float64 `json:"adx"`
	ATR       float64 `json:"atr"`
	WilliamsR float64 `json:"williams_r"`
	CCI       float64 `json:"cci"`
}

// PatternVote is a detected chart pattern with a directional bias.
type PatternVote struct {
	Name       string  `json:"name"`
	Bias       string  `json:"bias"` // BUY or SELL
	Confidence float64 `json:"confidence"`
}

// Microstructure holds short-horizon structure measurements.
type Microstructure struct {
	VolatilityClustering float64 `json:"volatility_clustering"`
}

// Signal is the engine's emitted recommendation.
type Signal struct {
	ID         string   `json:"id"`
	Action     string   `json:"action"`
	Confidence float64  `json:"confidence"` // clamped to [30,95]
	Duration   int      `json:"duration"`   // minutes
	Regime     string   `json:"regime"`
	Reasons    []string `json:"reasons"`
	EntryPrice float64  `json:"entry_price"`
	Timestamp  int64    `json:"timestamp"` // epoch milliseconds
	Result     string   `json:"result,omitempty"`
	IsFallback bool     `json:"is_fallback,omitempty"`
}

// Resolved reports whether the signal outcome is known.
func (s *Signal) Resolved() bool {
	return s.Result == ResultWin || s.Result == ResultLoss
}

// BacktestResult aggregates a single simulated pass over resolved signals.
type BacktestResult struct {
	TotalTrades    int                `json:"total_trades"`
	Wins           int                `json:"wins"`
	Losses         int                `json:"losses"`
	WinRate        float64            `json:"win_rate"`
	ProfitFactor   float64            `json:"profit_factor"`
	NetProfit      float64            `json:"net_profit"`
	ROI            float64            `json:"roi"`
	MaxDrawdown    float64            `json:"max_drawdown"`
	FinalBalance   float64            `json:"final_balance"`
	EquityCurve    []float64          `json:"equity_curve"`
	RegimeWinRates map[string]float64 `json:"regime_win_rates"`
}

// DistributionStats summarizes one metric across Monte Carlo iterations.
type DistributionStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// MonteCarloResult aggregates permutation-test statistics.
type MonteCarloResult struct {
	Iterations        int               `json:"iterations"`
	WinRate           DistributionStats `json:"win_rate"`
	ROI               DistributionStats `json:"roi"`
	Drawdown          DistributionStats `json:"drawdown"`
	ProfitFactor      DistributionStats `json:"profit_factor"`
	ProfitablePercent float64           `json:"profitable_percent"`
}
