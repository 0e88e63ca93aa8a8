package fusion

import (
	"strings"
	"testing"

	"github.com/quantora/signalmind/internal/indicators"
	"github.com/quantora/signalmind/internal/policy"
	"github.com/quantora/signalmind/internal/regime"
	"github.com/quantora/signalmind/models"
)

func newTestEngine(opts Options) (*Engine, *policy.Policy) {
	pol := policy.New(0.1, 0.9, 0, 1) // epsilon 0: deterministic selection
	return New(pol, opts, 1), pol
}

func calmObservation() models.Observation {
	return models.Observation{ADX: 12, ATR: 0.004, AvgPrice: 1.0, TickFrequency: 60, SpreadEstimate: 0.001}
}

func hasReason(reasons []string, substr string) bool {
	for _, r := range reasons {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}

func TestFallbackOversoldBuy(t *testing.T) {
	eng, _ := newTestEngine(Options{})
	sig, ok := eng.Fuse(Input{
		Regime:      models.RegimeResult{State: models.RegimeVolatile, Confidence: 60},
		Observation: calmObservation(),
		Votes:       models.IndicatorVotes{RSI: 20, WilliamsR: -50, CCI: 0},
		EntryPrice:  1.1,
	})
	if !ok || sig == nil {
		t.Fatal("expected a signal")
	}
	if sig.Action != models.ActionBuy {
		t.Errorf("action = %s, want BUY on oversold indicators", sig.Action)
	}
	if !sig.IsFallback {
		t.Error("oversold fallback signal should be marked as fallback")
	}
	// 55 base - 10 volatile regime adjustment.
	if sig.Confidence != 45 {
		t.Errorf("confidence = %v, want 45", sig.Confidence)
	}
	if sig.Duration != 3 {
		t.Errorf("duration = %d, want default 3m in calm conditions", sig.Duration)
	}
}

func TestFallbackOverboughtSell(t *testing.T) {
	eng, _ := newTestEngine(Options{})
	sig, ok := eng.Fuse(Input{
		Regime:      models.RegimeResult{State: models.RegimeRanging, Confidence: 60},
		Observation: calmObservation(),
		Votes:       models.IndicatorVotes{RSI: 80, WilliamsR: -50, CCI: 0},
	})
	if !ok || sig == nil {
		t.Fatal("expected a signal")
	}
	if sig.Action != models.ActionSell {
		t.Errorf("action = %s, want SELL on overbought indicators", sig.Action)
	}
	if !sig.IsFallback {
		t.Error("overbought fallback signal should be marked as fallback")
	}
}

func TestColdStartRandomDirection(t *testing.T) {
	eng, _ := newTestEngine(Options{})
	sig, ok := eng.Fuse(Input{
		Regime:      models.RegimeResult{State: models.RegimeRanging, Confidence: 60},
		Observation: calmObservation(),
		Votes:       models.IndicatorVotes{RSI: 50, WilliamsR: -50, CCI: 0},
	})
	if !ok || sig == nil {
		t.Fatal("expected a signal even with neutral indicators")
	}
	if sig.Action != models.ActionBuy && sig.Action != models.ActionSell {
		t.Errorf("action = %q, want BUY or SELL", sig.Action)
	}
	if !sig.IsFallback {
		t.Error("neutral cold-start signal should be marked as fallback")
	}
	// 45 base + 20 ranging adjustment.
	if sig.Confidence != 65 {
		t.Errorf("confidence = %v, want 65", sig.Confidence)
	}
}

func TestPredictorPath(t *testing.T) {
	eng, _ := newTestEngine(Options{})
	sig, ok := eng.Fuse(Input{
		Regime:      models.RegimeResult{State: models.RegimeTrending, Confidence: 70},
		Prediction:  &models.Prediction{Action: models.ActionBuy, BuyProb: 0.7, SellProb: 0.3, Confidence: 70},
		Observation: calmObservation(),
		Votes:       models.IndicatorVotes{RSI: 50, WilliamsR: -50, CCI: 0},
	})
	if !ok || sig == nil {
		t.Fatal("expected a signal")
	}
	if sig.Action != models.ActionBuy {
		t.Errorf("action = %s, want predictor's BUY", sig.Action)
	}
	if sig.IsFallback {
		t.Error("predictor-sourced signal must not be marked as fallback")
	}
	// 70 predictor + 15 trending adjustment, fresh Q table contributes nothing.
	if sig.Confidence != 85 {
		t.Errorf("confidence = %v, want 85", sig.Confidence)
	}
	if !hasReason(sig.Reasons, "predictor") {
		t.Errorf("reasons should name the predictor, got %v", sig.Reasons)
	}
}

func TestPolicyOverridesPredictor(t *testing.T) {
	eng, pol := newTestEngine(Options{})
	for i := 0; i < 5; i++ {
		pol.Update(models.RegimeTrending, models.ActionSell, 1, models.RegimeTrending)
	}

	sig, ok := eng.Fuse(Input{
		Regime:      models.RegimeResult{State: models.RegimeTrending, Confidence: 70},
		Prediction:  &models.Prediction{Action: models.ActionBuy, BuyProb: 0.6, SellProb: 0.4, Confidence: 70},
		Observation: calmObservation(),
	})
	if !ok || sig == nil {
		t.Fatal("expected a signal")
	}
	if sig.Action != models.ActionSell {
		t.Errorf("action = %s, want SELL after a policy override", sig.Action)
	}
	if !hasReason(sig.Reasons, "override") {
		t.Errorf("reasons should record the override, got %v", sig.Reasons)
	}
	// Reset to 60, +10 policy confidence (large Q spread), +15 trending.
	if sig.Confidence != 85 {
		t.Errorf("confidence = %v, want 85", sig.Confidence)
	}
}

func TestPolicyStrategyWhenPredictorCold(t *testing.T) {
	eng, pol := newTestEngine(Options{})
	for i := 0; i < 5; i++ {
		pol.Update(models.RegimeRanging, models.ActionBuy, 1, models.RegimeRanging)
	}

	sig, ok := eng.Fuse(Input{
		Regime:      models.RegimeResult{State: models.RegimeRanging, Confidence: 60},
		Observation: calmObservation(),
		Votes:       models.IndicatorVotes{RSI: 20}, // oversold, but policy outranks fallback
	})
	if !ok || sig == nil {
		t.Fatal("expected a signal")
	}
	if sig.Action != models.ActionBuy {
		t.Errorf("action = %s, want the policy's BUY", sig.Action)
	}
	if sig.IsFallback {
		t.Error("policy-sourced signal must not be marked as fallback")
	}
	if !hasReason(sig.Reasons, "q-policy") {
		t.Errorf("reasons should name the q-policy, got %v", sig.Reasons)
	}
}

func TestConfidenceClamp(t *testing.T) {
	eng, _ := newTestEngine(Options{})

	high, ok := eng.Fuse(Input{
		Regime:      models.RegimeResult{State: models.RegimeTrending, Confidence: 90},
		Prediction:  &models.Prediction{Action: models.ActionBuy, BuyProb: 0.95, SellProb: 0.05, Confidence: 90},
		Observation: calmObservation(),
		Patterns: []models.PatternVote{
			{Name: "THREE_WHITE_SOLDIERS", Bias: models.ActionBuy, Confidence: 0.9},
		},
	})
	if !ok || high.Confidence != 95 {
		t.Errorf("confidence = %v, want clamp at 95", high.Confidence)
	}

	low, ok := eng.Fuse(Input{
		Regime:      models.RegimeResult{State: models.RegimeChaotic, Confidence: 40},
		Observation: calmObservation(),
		Votes:       models.IndicatorVotes{RSI: 50, WilliamsR: -50, CCI: 0},
		Micro:       models.Microstructure{VolatilityClustering: 2.0},
	})
	if !ok || low.Confidence != 30 {
		t.Errorf("confidence = %v, want clamp at 30", low.Confidence)
	}
}

func TestConfidenceGateSuppresses(t *testing.T) {
	eng, _ := newTestEngine(Options{MinConfidence: 90})
	sig, ok := eng.Fuse(Input{
		Regime:      models.RegimeResult{State: models.RegimeRanging, Confidence: 60},
		Observation: calmObservation(),
		Votes:       models.IndicatorVotes{RSI: 50, WilliamsR: -50, CCI: 0},
	})
	if ok || sig != nil {
		t.Errorf("expected suppression below the gate, got %+v", sig)
	}
}

func TestPatternAgreementAdjustments(t *testing.T) {
	eng, _ := newTestEngine(Options{})
	sig, ok := eng.Fuse(Input{
		Regime:      models.RegimeResult{State: models.RegimeRanging, Confidence: 60},
		Prediction:  &models.Prediction{Action: models.ActionBuy, BuyProb: 0.6, SellProb: 0.4, Confidence: 60},
		Observation: calmObservation(),
		Patterns: []models.PatternVote{
			{Name: "HAMMER", Bias: models.ActionBuy, Confidence: 0.8},
			{Name: "SHOOTING_STAR", Bias: models.ActionSell, Confidence: 0.6},
		},
	})
	if !ok || sig == nil {
		t.Fatal("expected a signal")
	}
	// 60 base + 20 ranging + 8 agreement - 3 conflict.
	if sig.Confidence != 85 {
		t.Errorf("confidence = %v, want 85", sig.Confidence)
	}
	if !hasReason(sig.Reasons, "HAMMER agrees") || !hasReason(sig.Reasons, "SHOOTING_STAR conflicts") {
		t.Errorf("reasons missing pattern adjustments: %v", sig.Reasons)
	}
}

func TestSelectDuration(t *testing.T) {
	tests := []struct {
		name string
		obs  models.Observation
		want int
	}{
		{"strong trend", models.Observation{ADX: 35, ATR: 0.001, AvgPrice: 1.0}, 5},
		{"extreme volatility", models.Observation{ADX: 20, ATR: 0.03, AvgPrice: 1.0}, 1},
		{"high volatility", models.Observation{ADX: 20, ATR: 0.02, AvgPrice: 1.0}, 2},
		{"normal conditions", models.Observation{ADX: 10, ATR: 0.005, AvgPrice: 1.0}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := selectDuration(tt.obs); got != tt.want {
				t.Errorf("duration = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestUptrendScenarioEmitsConfidentBuy(t *testing.T) {
	candles := make([]models.Candle, 60)
	for i := range candles {
		base := 1.0 + float64(i)*0.004
		candles[i] = models.Candle{Open: base - 0.002, High: base + 0.003, Low: base - 0.004, Close: base}
	}
	snap := indicators.TakeSnapshot(candles, indicators.DefaultPeriods())

	classifier := regime.NewClassifier(0.1)
	regimeResult := classifier.Classify(snap.Observation)
	if regimeResult.State != models.RegimeTrending {
		t.Fatalf("regime = %s, want TRENDING for a sustained uptrend", regimeResult.State)
	}

	eng, pol := newTestEngine(Options{})
	for i := 0; i < 5; i++ {
		pol.Update(models.RegimeTrending, models.ActionBuy, 1, models.RegimeTrending)
	}

	sig, ok := eng.Fuse(Input{
		Regime:      regimeResult,
		Prediction:  &models.Prediction{Action: models.ActionBuy, BuyProb: 0.65, SellProb: 0.35, Confidence: 60},
		Observation: snap.Observation,
		Votes:       snap.Votes,
		Micro:       snap.Micro,
		EntryPrice:  candles[len(candles)-1].Close,
	})
	if !ok || sig == nil {
		t.Fatal("expected a signal")
	}
	if sig.Action != models.ActionBuy {
		t.Errorf("action = %s, want BUY when predictor and policy agree", sig.Action)
	}
	if sig.Confidence < 60 {
		t.Errorf("confidence = %v, want >= 60", sig.Confidence)
	}
	if sig.Duration != 5 {
		t.Errorf("duration = %d, want 5m with a strong trend", sig.Duration)
	}
}

func TestReasonsCapped(t *testing.T) {
	patterns := make([]models.PatternVote, 15)
	for i := range patterns {
		patterns[i] = models.PatternVote{Name: "HAMMER", Bias: models.ActionBuy, Confidence: 0.1}
	}
	eng, _ := newTestEngine(Options{})
	sig, ok := eng.Fuse(Input{
		Regime:      models.RegimeResult{State: models.RegimeRanging, Confidence: 60},
		Prediction:  &models.Prediction{Action: models.ActionBuy, BuyProb: 0.6, SellProb: 0.4, Confidence: 60},
		Observation: calmObservation(),
		Patterns:    patterns,
	})
	if !ok || sig == nil {
		t.Fatal("expected a signal")
	}
	if len(sig.Reasons) > 10 {
		t.Errorf("reasons length = %d, want <= 10", len(sig.Reasons))
	}
}
