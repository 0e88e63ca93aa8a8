package predictor

import (
	"math"
	"math/rand"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantora/signalmind/models"
)

const (
	inputSize  = 5
	hidden1    = 16
	hidden2    = 8
	outputSize = 2

	bufferCapacity = 500
	retrainEvery   = 50
	minSamples     = 20
	trainEpochs    = 10
	learningRate   = 0.001
)

// Network is a small feed-forward net (5 -> 16 -> 8 -> 2, ReLU/softmax)
// trained online from outcome-labeled samples. Weights are deliberately not
// persisted: the sample buffer is, and each session retrains from a fresh
// random initialization.
type Network struct {
	w1 [hidden1][inputSize]float64
	b1 [hidden1]float64
	w2 [hidden2][hidden1]float64
	b2 [hidden2]float64
	w3 [outputSize][hidden2]float64
	b3 [outputSize]float64

	// Forward-pass scratch, reused across calls to avoid hot-path allocation.
	h1  [hidden1]float64
	h2  [hidden2]float64
	out [outputSize]float64

	samples     []models.TrainingSample
	sampleCount int

	rng    *rand.Rand
	logger zerolog.Logger
}

// NewNetwork creates a network with weights drawn uniformly from ±0.1.
func NewNetwork(seed int64) *Network {
	n := &Network{
		rng:    rand.New(rand.NewSource(seed)),
		logger: log.With().Str("component", "predictor").Logger(),
	}
	n.initWeights()
	return n
}

func (n *Network) initWeights() {
	small := func() float64 { return (n.rng.Float64() - 0.5) * 0.2 }
	for i := range n.w1 {
		for j := range n.w1[i] {
			n.w1[i][j] = small()
		}
		n.b1[i] = small()
	}
	for i := range n.w2 {
		for j := range n.w2[i] {
			n.w2[i][j] = small()
		}
		n.b2[i] = small()
	}
	for i := range n.w3 {
		for j := range n.w3[i] {
			n.w3[i][j] = small()
		}
		n.b3[i] = small()
	}
}

// Ready reports whether the buffer holds enough samples to trust predictions.
func (n *Network) Ready() bool {
	return len(n.samples) >= minSamples
}

// Predict runs a forward pass and returns the directional probabilities.
// BuyProb and SellProb always sum to 1 for finite input.
func (n *Network) Predict(features [inputSize]float64) models.Prediction {
	n.forward(features)

	action := models.ActionBuy
	confidence := n.out[0]
	if n.out[1] > n.out[0] {
		action = models.ActionSell
		confidence = n.out[1]
	}
	return models.Prediction{
		Action:     action,
		BuyProb:    n.out[0],
		SellProb:   n.out[1],
		Confidence: confidence * 100,
	}
}

// forward fills h1, h2 and out from the given feature vector.
func (n *Network) forward(x [inputSize]float64) {
	for i := 0; i < hidden1; i++ {
		sum := n.b1[i]
		for j := 0; j < inputSize; j++ {
			sum += n.w1[i][j] * x[j]
		}
		n.h1[i] = relu(sum)
	}
	for i := 0; i < hidden2; i++ {
		sum := n.b2[i]
		for j := 0; j < hidden1; j++ {
			sum += n.w2[i][j] * n.h1[j]
		}
		n.h2[i] = relu(sum)
	}
	var z [outputSize]float64
	for i := 0; i < outputSize; i++ {
		sum := n.b3[i]
		for j := 0; j < hidden2; j++ {
			sum += n.w3[i][j] * n.h2[j]
		}
		z[i] = sum
	}
	// Softmax with max subtraction for numeric stability.
	maxZ := math.Max(z[0], z[1])
	e0 := math.Exp(z[0] - maxZ)
	e1 := math.Exp(z[1] - maxZ)
	n.out[0] = e0 / (e0 + e1)
	n.out[1] = e1 / (e0 + e1)
}

// AddSample appends an outcome-labeled sample. The label is one-hot on whether
// the taken action was the correct one: [1,0] when BUY was right (won acting
// BUY, or lost acting SELL), [0,1] otherwise. Every 50th sample triggers a
// retrain once at least 20 samples are buffered.
func (n *Network) AddSample(features [inputSize]float64, action string, wasWin bool) {
	var label [outputSize]float64
	buyWasCorrect := (wasWin && action == models.ActionBuy) || (!wasWin && action == models.ActionSell)
	if buyWasCorrect {
		label[0] = 1
	} else {
		label[1] = 1
	}

	n.samples = append(n.samples, models.TrainingSample{Features: features, Label: label})
	if len(n.samples) > bufferCapacity {
		n.samples = n.samples[len(n.samples)-bufferCapacity:]
	}
	n.sampleCount++

	if n.sampleCount%retrainEvery == 0 && len(n.samples) >= minSamples {
		n.train()
	}
}

// train runs fixed-epoch stochastic gradient descent over the whole buffer.
// Per-sample updates, no batching or momentum.
func (n *Network) train() {
	var d1 [hidden1]float64
	var d2 [hidden2]float64
	var d3 [outputSize]float64

	for epoch := 0; epoch < trainEpochs; epoch++ {
		for _, s := range n.samples {
			n.forward(s.Features)

			// Combined softmax/cross-entropy gradient at the output.
			for k := 0; k < outputSize; k++ {
				d3[k] = n.out[k] - s.Label[k]
			}
			for j := 0; j < hidden2; j++ {
				var sum float64
				for k := 0; k < outputSize; k++ {
					sum += d3[k] * n.w3[k][j]
				}
				if n.h2[j] > 0 {
					d2[j] = sum
				} else {
					d2[j] = 0
				}
			}
			for i := 0; i < hidden1; i++ {
				var sum float64
				for j := 0; j < hidden2; j++ {
					sum += d2[j] * n.w2[j][i]
				}
				if n.h1[i] > 0 {
					d1[i] = sum
				} else {
					d1[i] = 0
				}
			}

			// All deltas computed against pre-update weights; apply now.
			for k := 0; k < outputSize; k++ {
				for j := 0; j < hidden2; j++ {
					n.w3[k][j] -= learningRate * d3[k] * n.h2[j]
				}
				n.b3[k] -= learningRate * d3[k]
			}
			for j := 0; j < hidden2; j++ {
				for i := 0; i < hidden1; i++ {
					n.w2[j][i] -= learningRate * d2[j] * n.h1[i]
				}
				n.b2[j] -= learningRate * d2[j]
			}
			for i := 0; i < hidden1; i++ {
				for f := 0; f < inputSize; f++ {
					n.w1[i][f] -= learningRate * d1[i] * s.Features[f]
				}
				n.b1[i] -= learningRate * d1[i]
			}
		}
	}

	n.logger.Debug().
		Int("samples", len(n.samples)).
		Int("total_seen", n.sampleCount).
		Msg("retrained predictor")
}

// Retrain forces a training pass over the current buffer, used after
// restoring a persisted sample buffer at startup.
func (n *Network) Retrain() {
	if len(n.samples) < minSamples {
		return
	}
	n.train()
}

// Samples returns a copy of the training buffer, oldest first.
func (n *Network) Samples() []models.TrainingSample {
	out := make([]models.TrainingSample, len(n.samples))
	copy(out, n.samples)
	return out
}

// SampleCount returns the number of samples ever added.
func (n *Network) SampleCount() int {
	return n.sampleCount
}

// SetSamples restores a persisted buffer without triggering training.
func (n *Network) SetSamples(samples []models.TrainingSample, totalSeen int) {
	if len(samples) > bufferCapacity {
		samples = samples[len(samples)-bufferCapacity:]
	}
	n.samples = append(n.samples[:0], samples...)
	if totalSeen < len(n.samples) {
		totalSeen = len(n.samples)
	}
	n.sampleCount = totalSeen
}

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}
