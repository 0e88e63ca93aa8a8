package policy

import (
	"math"
	"testing"

	"github.com/quantora/signalmind/models"
)

// noExploration builds a policy that never takes the random branch so that
// selection tests are deterministic.
func noExploration(t *testing.T) *Policy {
	t.Helper()
	return New(0.1, 0.9, 0, 1)
}

func TestSelectActionExploitsBestQ(t *testing.T) {
	p := noExploration(t)
	p.SetQTable(map[string]map[string]float64{
		models.RegimeTrending: {models.ActionBuy: 0.9, models.ActionSell: 0.2},
		models.RegimeRanging:  {models.ActionBuy: 0.1, models.ActionSell: 0.8},
	})

	if got := p.SelectAction(models.RegimeTrending, ""); got != models.ActionBuy {
		t.Errorf("SelectAction(TRENDING) = %s, want BUY", got)
	}
	if got := p.SelectAction(models.RegimeRanging, ""); got != models.ActionSell {
		t.Errorf("SelectAction(RANGING) = %s, want SELL", got)
	}
}

func TestSelectActionDefersWhenIndifferent(t *testing.T) {
	p := noExploration(t)
	// Fresh table: all values 0.5, spread 0 < 0.1.
	if got := p.SelectAction(models.RegimeVolatile, models.ActionSell); got != models.ActionSell {
		t.Errorf("indifferent policy should defer to predictor, got %s", got)
	}
}

func TestSelectActionUnknownRegime(t *testing.T) {
	p := noExploration(t)
	if got := p.SelectAction("SIDEWAYS", models.ActionBuy); got != models.ActionBuy {
		t.Errorf("unknown regime should return predictor action, got %s", got)
	}
	got := p.SelectAction("SIDEWAYS", "")
	if got != models.ActionBuy && got != models.ActionSell {
		t.Errorf("unknown regime without predictor should return a random action, got %q", got)
	}
}

func TestUpdateBellman(t *testing.T) {
	p := noExploration(t)
	p.Update(models.RegimeTrending, models.ActionBuy, 1, models.RegimeTrending)

	// Q = 0.5 + 0.1*(1 + 0.9*0.5 - 0.5) = 0.595
	got := p.QTable()[models.RegimeTrending][models.ActionBuy]
	if math.Abs(got-0.595) > 1e-9 {
		t.Errorf("Q after update = %v, want 0.595", got)
	}
	if len(p.Rewards()) != 1 {
		t.Errorf("expected one reward event, got %d", len(p.Rewards()))
	}
}

func TestUpdateUnknownRegimeIsNoop(t *testing.T) {
	p := noExploration(t)
	before := p.QTable()
	p.Update("SIDEWAYS", models.ActionBuy, 1, models.RegimeTrending)
	p.Update(models.RegimeTrending, models.ActionBuy, 1, "SIDEWAYS")

	after := p.QTable()
	for regime, row := range before {
		for action, q := range row {
			if after[regime][action] != q {
				t.Errorf("Q[%s][%s] changed on invalid update", regime, action)
			}
		}
	}
	if len(p.Rewards()) != 0 {
		t.Errorf("invalid updates should not record reward events")
	}
}

func TestQValuesConvergeTowardFixedPoint(t *testing.T) {
	p := noExploration(t)

	// Repeated +1 rewards in a self-loop converge to r/(1-gamma) = 10.
	asymptote := 1.0 / (1 - 0.9)
	prev := p.QTable()[models.RegimeTrending][models.ActionBuy]
	for i := 0; i < 10000; i++ {
		p.Update(models.RegimeTrending, models.ActionBuy, 1, models.RegimeTrending)
		q := p.QTable()[models.RegimeTrending][models.ActionBuy]
		if math.IsNaN(q) || math.IsInf(q, 0) {
			t.Fatalf("Q became non-finite after %d updates", i+1)
		}
		if q < prev {
			t.Fatalf("Q not monotonic below asymptote: %v -> %v at step %d", prev, q, i+1)
		}
		if q > asymptote+1e-6 {
			t.Fatalf("Q overshot the Bellman fixed point: %v > %v", q, asymptote)
		}
		prev = q
	}
	if math.Abs(prev-asymptote) > 0.01 {
		t.Errorf("Q after 10000 updates = %v, want ~%v", prev, asymptote)
	}
}

func TestConfidenceAdjustment(t *testing.T) {
	p := noExploration(t)
	tests := []struct {
		name     string
		buyQ     float64
		sellQ    float64
		action   string
		expected float64
	}{
		{"strong edge", 0.8, 0.5, models.ActionBuy, 10},
		{"moderate edge", 0.65, 0.5, models.ActionBuy, 5},
		{"against the table", 0.5, 0.65, models.ActionBuy, -5},
		{"indifferent", 0.5, 0.55, models.ActionBuy, 0},
		{"unknown regime", 0.5, 0.5, models.ActionBuy, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regime := models.RegimeTrending
			if tt.name == "unknown regime" {
				regime = "SIDEWAYS"
			}
			p.SetQTable(map[string]map[string]float64{
				models.RegimeTrending: {models.ActionBuy: tt.buyQ, models.ActionSell: tt.sellQ},
			})
			if got := p.ConfidenceAdjustment(regime, tt.action); got != tt.expected {
				t.Errorf("ConfidenceAdjustment() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRewardRingCapacity(t *testing.T) {
	p := noExploration(t)
	for i := 0; i < rewardCapacity+100; i++ {
		p.Update(models.RegimeRanging, models.ActionSell, -1, models.RegimeRanging)
	}
	if got := len(p.Rewards()); got != rewardCapacity {
		t.Errorf("reward ring length = %d, want %d", got, rewardCapacity)
	}
}

func TestWinRates(t *testing.T) {
	p := noExploration(t)
	p.Update(models.RegimeTrending, models.ActionBuy, 1, models.RegimeTrending)
	p.Update(models.RegimeTrending, models.ActionBuy, 1, models.RegimeTrending)
	p.Update(models.RegimeTrending, models.ActionSell, -1, models.RegimeTrending)
	p.Update(models.RegimeRanging, models.ActionBuy, -1, models.RegimeRanging)

	rates := p.WinRates()
	if math.Abs(rates[models.RegimeTrending]-200.0/3) > 1e-9 {
		t.Errorf("TRENDING win rate = %v, want %.4f", rates[models.RegimeTrending], 200.0/3)
	}
	if rates[models.RegimeRanging] != 0 {
		t.Errorf("RANGING win rate = %v, want 0", rates[models.RegimeRanging])
	}

	actionRates := p.ActionWinRates()
	if actionRates[models.RegimeTrending][models.ActionBuy] != 100 {
		t.Errorf("TRENDING/BUY win rate = %v, want 100", actionRates[models.RegimeTrending][models.ActionBuy])
	}
	if actionRates[models.RegimeTrending][models.ActionSell] != 0 {
		t.Errorf("TRENDING/SELL win rate = %v, want 0", actionRates[models.RegimeTrending][models.ActionSell])
	}
}
