package regime

import (
	"math"
	"testing"

	"github.com/quantora/signalmind/models"
)

func TestClassifyScenarios(t *testing.T) {
	tests := []struct {
		name     string
		obs      models.Observation
		expected string
	}{
		{
			name:     "strong ADX from ranging flips to trending",
			obs:      models.Observation{ADX: 30, ATR: 0.008, AvgPrice: 1.0},
			expected: models.RegimeTrending,
		},
		{
			name:     "low ADX low volatility stays ranging",
			obs:      models.Observation{ADX: 12, ATR: 0.005, AvgPrice: 1.0},
			expected: models.RegimeRanging,
		},
		{
			name:     "extreme ATR ratio goes chaotic",
			obs:      models.Observation{ADX: 10, ATR: 0.04, AvgPrice: 1.0},
			expected: models.RegimeChaotic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(0.1)
			result := c.Classify(tt.obs)
			if result.State != tt.expected {
				t.Errorf("Classify() state = %v, want %v (probs %v)", result.State, tt.expected, result.Probabilities)
			}
		})
	}
}

func TestClassifyTrendingConfidence(t *testing.T) {
	c := NewClassifier(0.1)
	result := c.Classify(models.Observation{ADX: 30, ATR: 0.008, AvgPrice: 1.0})
	if result.State != models.RegimeTrending {
		t.Fatalf("expected TRENDING, got %s", result.State)
	}
	if result.Confidence <= 50 {
		t.Errorf("expected confidence > 50, got %.2f", result.Confidence)
	}
}

func TestClassifyInvalidObservation(t *testing.T) {
	c := NewClassifier(0.1)
	c.Classify(models.Observation{ADX: 30, ATR: 0.008, AvgPrice: 1.0})
	held := c.State()

	result := c.Classify(models.Observation{ADX: -1, ATR: 0, AvgPrice: 0})
	if result.State != held {
		t.Errorf("soft-fail should hold state %s, got %s", held, result.State)
	}
	if result.Confidence != 50 {
		t.Errorf("soft-fail confidence = %.2f, want 50", result.Confidence)
	}
	for i, p := range result.Probabilities {
		if p != 0.25 {
			t.Errorf("soft-fail probability[%d] = %v, want 0.25", i, p)
		}
	}
}

func TestClassifyIdempotent(t *testing.T) {
	c := NewClassifier(0.1)
	obs := models.Observation{ADX: 30, ATR: 0.008, AvgPrice: 1.0}

	// Settle the state, then verify two consecutive identical calls match.
	// History stays below the learning threshold so the matrix is untouched.
	c.Classify(obs)
	first := c.Classify(obs)
	second := c.Classify(obs)

	if first.State != second.State {
		t.Fatalf("states differ: %s vs %s", first.State, second.State)
	}
	for i := range first.Probabilities {
		if math.Abs(first.Probabilities[i]-second.Probabilities[i]) > 1e-12 {
			t.Errorf("probability[%d] differs: %v vs %v", i, first.Probabilities[i], second.Probabilities[i])
		}
	}
}

func TestProbabilitiesSumToOne(t *testing.T) {
	c := NewClassifier(0.1)
	observations := []models.Observation{
		{ADX: 30, ATR: 0.008, AvgPrice: 1.0},
		{ADX: 12, ATR: 0.005, AvgPrice: 1.0},
		{ADX: 22, ATR: 0.02, AvgPrice: 1.0},
		{ADX: 10, ATR: 0.04, AvgPrice: 1.0},
	}
	for _, obs := range observations {
		result := c.Classify(obs)
		var sum float64
		for _, p := range result.Probabilities {
			sum += p
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("probabilities sum to %v for %+v", sum, obs)
		}
	}
}

func TestTransitionRowsStayStochastic(t *testing.T) {
	c := NewClassifier(0.1)

	// Alternate regimes long enough to trigger transition learning repeatedly.
	for i := 0; i < 60; i++ {
		var obs models.Observation
		switch i % 3 {
		case 0:
			obs = models.Observation{ADX: 35, ATR: 0.008, AvgPrice: 1.0}
		case 1:
			obs = models.Observation{ADX: 12, ATR: 0.005, AvgPrice: 1.0}
		default:
			obs = models.Observation{ADX: 10, ATR: 0.04, AvgPrice: 1.0}
		}
		c.Classify(obs)
	}

	matrix := c.TransitionMatrix()
	for row := 0; row < 4; row++ {
		var sum float64
		for col := 0; col < 4; col++ {
			if matrix[row][col] < 0 {
				t.Errorf("negative transition probability at [%d][%d]", row, col)
			}
			sum += matrix[row][col]
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Errorf("row %d sums to %v, want 1", row, sum)
		}
	}
}

func TestHistoryRingCapacity(t *testing.T) {
	c := NewClassifier(0.1)
	for i := 0; i < historyCapacity+50; i++ {
		c.Classify(models.Observation{ADX: 30, ATR: 0.008, AvgPrice: 1.0})
	}
	if got := len(c.History()); got != historyCapacity {
		t.Errorf("history length = %d, want %d", got, historyCapacity)
	}
}

func TestSetTransitionMatrixRejectsBadRows(t *testing.T) {
	c := NewClassifier(0.1)
	before := c.TransitionMatrix()

	var bad [4][4]float64
	bad[0] = [4]float64{-1, 0.5, 0.3, 0.2} // negative entry
	bad[1] = [4]float64{0, 0, 0, 0}        // zero row
	bad[2] = [4]float64{2, 2, 2, 2}        // renormalizable
	bad[3] = [4]float64{0.25, 0.25, 0.25, 0.25}
	c.SetTransitionMatrix(bad)

	after := c.TransitionMatrix()
	if after[0] != before[0] || after[1] != before[1] {
		t.Errorf("invalid rows should be rejected")
	}
	for col := 0; col < 4; col++ {
		if math.Abs(after[2][col]-0.25) > 1e-9 {
			t.Errorf("row 2 should renormalize to uniform, got %v", after[2])
		}
	}
}
