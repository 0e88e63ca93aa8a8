package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantora/signalmind/internal/fusion"
	"github.com/quantora/signalmind/internal/indicators"
	"github.com/quantora/signalmind/internal/metrics"
	"github.com/quantora/signalmind/internal/patterns"
	"github.com/quantora/signalmind/internal/policy"
	"github.com/quantora/signalmind/internal/predictor"
	"github.com/quantora/signalmind/internal/regime"
	"github.com/quantora/signalmind/internal/storage"
	"github.com/quantora/signalmind/models"
)

const (
	signalCapacity    = 200
	defaultMinCandles = 30

	keyTransitionMatrix = "regime:transition_matrix"
	keyRegimeHistory    = "regime:history"
	keyQTable           = "policy:qtable"
	keyRewards          = "policy:rewards"
	keySamples          = "predictor:samples"
	keySignals          = "engine:signals"
)

// ErrUnknownSignal is returned by Resolve for an ID with no pending trade.
var ErrUnknownSignal = errors.New("engine: unknown or already resolved signal")

// Options tunes the decision engine.
type Options struct {
	TickInterval time.Duration
	Periods      indicators.Periods
	MinCandles   int
	BlendAlpha   float64
	Alpha        float64
	Gamma        float64
	Epsilon      float64
	Seed         int64
	Fusion       fusion.Options
}

// Engine ties the regime classifier, predictor, policy and fusion together
// around a candle feed, and persists learned state through Storage.
type Engine struct {
	mu sync.Mutex

	classifier *regime.Classifier
	predictor  *predictor.Network
	policy     *policy.Policy
	fusion     *fusion.Engine

	store    storage.Storage
	feed     models.CandleClient
	notifier models.Notifier
	recorder *metrics.Recorder

	opts       Options
	signals    []*models.Signal
	pending    map[string]pendingTrade
	lastRegime models.RegimeResult

	logger zerolog.Logger
}

// pendingTrade keeps what Resolve needs to turn an outcome into learning.
type pendingTrade struct {
	signal   *models.Signal
	features [5]float64
}

// persistedSamples is the storage layout of the predictor's replay buffer.
type persistedSamples struct {
	Samples   []models.TrainingSample `json:"samples"`
	TotalSeen int                     `json:"total_seen"`
}

// New assembles an engine. A nil notifier disables notifications.
func New(store storage.Storage, feed models.CandleClient, notifier models.Notifier, recorder *metrics.Recorder, opts Options) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Minute
	}
	if opts.MinCandles <= 0 {
		opts.MinCandles = defaultMinCandles
	}
	if opts.Periods == (indicators.Periods{}) {
		opts.Periods = indicators.DefaultPeriods()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}

	pol := policy.New(opts.Alpha, opts.Gamma, opts.Epsilon, opts.Seed)
	return &Engine{
		classifier: regime.NewClassifier(opts.BlendAlpha),
		predictor:  predictor.NewNetwork(opts.Seed),
		policy:     pol,
		fusion:     fusion.New(pol, opts.Fusion, opts.Seed),
		store:      store,
		feed:       feed,
		notifier:   notifier,
		recorder:   recorder,
		opts:       opts,
		pending:    make(map[string]pendingTrade),
		logger:     log.With().Str("component", "engine").Logger(),
	}
}

// Generate runs one decision tick: fetch candles, classify the regime, ask
// the predictor and fuse everything into a signal. A nil signal with a nil
// error means the confidence gate suppressed emission.
func (e *Engine) Generate(ctx context.Context) (*models.Signal, error) {
	candles, err := e.feed.GetCandles(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching candles: %w", err)
	}
	if len(candles) < e.opts.MinCandles {
		return nil, fmt.Errorf("insufficient candles: got %d, need %d", len(candles), e.opts.MinCandles)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snap := indicators.TakeSnapshot(candles, e.opts.Periods)
	regimeResult := e.classifier.Classify(snap.Observation)
	e.lastRegime = regimeResult
	e.recorder.RegimeObserved(regimeResult)

	features := indicators.Features(snap.Votes)
	var pred *models.Prediction
	if e.predictor.Ready() {
		p := e.predictor.Predict(features)
		pred = &p
	}

	sig, ok := e.fusion.Fuse(fusion.Input{
		Regime:      regimeResult,
		Prediction:  pred,
		Observation: snap.Observation,
		Votes:       snap.Votes,
		Patterns:    patterns.DetectAll(candles),
		Micro:       snap.Micro,
		EntryPrice:  candles[len(candles)-1].Close,
	})
	if !ok {
		return nil, nil
	}

	e.pending[sig.ID] = pendingTrade{signal: sig, features: features}
	e.appendSignal(sig)
	e.recorder.SignalEmitted(sig)
	e.notifier.SignalEmitted(sig)
	return sig, nil
}

// Resolve settles a pending signal against its exit price and feeds the
// outcome back into the policy and the predictor. A flat exit counts as a
// loss, matching binary-option payout rules.
func (e *Engine) Resolve(id string, exitPrice float64) (*models.Signal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pt, ok := e.pending[id]
	if !ok {
		return nil, ErrUnknownSignal
	}
	delete(e.pending, id)

	sig := pt.signal
	won := (sig.Action == models.ActionBuy && exitPrice > sig.EntryPrice) ||
		(sig.Action == models.ActionSell && exitPrice < sig.EntryPrice)
	if won {
		sig.Result = models.ResultWin
	} else {
		sig.Result = models.ResultLoss
	}

	reward := -1.0
	if won {
		reward = 1.0
	}
	e.policy.Update(sig.Regime, sig.Action, reward, e.classifier.State())
	e.predictor.AddSample(pt.features, sig.Action, won)

	e.recorder.SignalResolved(sig.Result)
	e.notifier.SignalResolved(sig)
	e.logger.Info().
		Str("id", sig.ID).
		Str("action", sig.Action).
		Str("result", sig.Result).
		Float64("entry", sig.EntryPrice).
		Float64("exit", exitPrice).
		Msg("signal resolved")
	return sig, nil
}

// Run drives the engine on a fixed tick until the context is cancelled.
// Learned state is saved after every tick and once more on shutdown.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info().Dur("interval", e.opts.TickInterval).Msg("engine started")
	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()

	for {
		e.tick(ctx)
		select {
		case <-ctx.Done():
			saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := e.SaveState(saveCtx); err != nil {
				e.logger.Error().Err(err).Msg("final state save failed")
			}
			e.logger.Info().Msg("engine stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	start := time.Now()
	sig, err := e.Generate(ctx)
	e.recorder.TickCompleted(time.Since(start).Seconds())
	if err != nil {
		e.recorder.TickFailed()
		e.logger.Error().Err(err).Msg("tick failed")
		return
	}
	if sig != nil {
		e.scheduleResolve(sig)
	}
	if err := e.SaveState(ctx); err != nil {
		e.logger.Error().Err(err).Msg("state save failed")
	}
}

// scheduleResolve settles the signal once its expiry elapses.
func (e *Engine) scheduleResolve(sig *models.Signal) {
	id := sig.ID
	time.AfterFunc(time.Duration(sig.Duration)*time.Minute, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		price, err := e.feed.GetLatestPrice(ctx)
		if err != nil {
			e.logger.Error().Err(err).Str("id", id).Msg("exit price unavailable, abandoning signal")
			e.mu.Lock()
			delete(e.pending, id)
			e.mu.Unlock()
			e.recorder.TickFailed()
			return
		}
		if _, err := e.Resolve(id, price); err != nil {
			e.logger.Warn().Err(err).Str("id", id).Msg("resolve failed")
		}
	})
}

// Stats summarizes the engine's track record.
type Stats struct {
	TotalSignals   int                `json:"total_signals"`
	Resolved       int                `json:"resolved"`
	Pending        int                `json:"pending"`
	Wins           int                `json:"wins"`
	Losses         int                `json:"losses"`
	WinRate        float64            `json:"win_rate"`
	FallbackCount  int                `json:"fallback_count"`
	Regime         models.RegimeResult `json:"regime"`
	RegimeWinRates map[string]float64  `json:"regime_win_rates"`
}

// Stats returns a snapshot of the current track record.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		TotalSignals:   len(e.signals),
		Pending:        len(e.pending),
		Regime:         e.lastRegime,
		RegimeWinRates: e.policy.WinRates(),
	}
	for _, sig := range e.signals {
		if sig.IsFallback {
			s.FallbackCount++
		}
		switch sig.Result {
		case models.ResultWin:
			s.Resolved++
			s.Wins++
		case models.ResultLoss:
			s.Resolved++
			s.Losses++
		}
	}
	if s.Resolved > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Resolved) * 100
	}
	return s
}

// Signals returns a copy of the signal ring, oldest first.
func (e *Engine) Signals() []*models.Signal {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.Signal, len(e.signals))
	copy(out, e.signals)
	return out
}

// Regime returns the latest classifier output.
func (e *Engine) Regime() models.RegimeResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRegime
}

// LoadState restores persisted learning state. Missing keys are not errors;
// the engine simply starts that component fresh.
func (e *Engine) LoadState(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var matrix [4][4]float64
	if err := e.loadKey(ctx, keyTransitionMatrix, &matrix); err != nil {
		return err
	} else if matrix != ([4][4]float64{}) {
		e.classifier.SetTransitionMatrix(matrix)
	}

	var history []models.RegimeSnapshot
	if err := e.loadKey(ctx, keyRegimeHistory, &history); err != nil {
		return err
	} else if history != nil {
		e.classifier.SetHistory(history)
	}

	var qtable map[string]map[string]float64
	if err := e.loadKey(ctx, keyQTable, &qtable); err != nil {
		return err
	} else if qtable != nil {
		e.policy.SetQTable(qtable)
	}

	var rewards []models.RewardEvent
	if err := e.loadKey(ctx, keyRewards, &rewards); err != nil {
		return err
	} else if rewards != nil {
		e.policy.SetRewards(rewards)
	}

	var samples persistedSamples
	if err := e.loadKey(ctx, keySamples, &samples); err != nil {
		return err
	} else if len(samples.Samples) > 0 {
		e.predictor.SetSamples(samples.Samples, samples.TotalSeen)
		e.predictor.Retrain()
	}

	var signals []*models.Signal
	if err := e.loadKey(ctx, keySignals, &signals); err != nil {
		return err
	}
	// Unresolved signals cannot be settled after a restart because their
	// feature vectors are gone; keep only the resolved track record.
	for _, sig := range signals {
		if sig.Resolved() {
			e.appendSignal(sig)
		}
	}

	e.logger.Info().
		Int("signals", len(e.signals)).
		Int("samples", len(samples.Samples)).
		Msg("state restored")
	return nil
}

func (e *Engine) loadKey(ctx context.Context, key string, v any) error {
	err := e.store.Load(ctx, key, v)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", key, err)
	}
	return nil
}

// SaveState persists all learned state.
func (e *Engine) SaveState(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := []struct {
		key   string
		value any
	}{
		{keyTransitionMatrix, e.classifier.TransitionMatrix()},
		{keyRegimeHistory, e.classifier.History()},
		{keyQTable, e.policy.QTable()},
		{keyRewards, e.policy.Rewards()},
		{keySamples, persistedSamples{Samples: e.predictor.Samples(), TotalSeen: e.predictor.SampleCount()}},
		{keySignals, e.signals},
	}
	for _, entry := range entries {
		if err := e.store.Save(ctx, entry.key, entry.value); err != nil {
			return fmt.Errorf("saving %s: %w", entry.key, err)
		}
	}
	return nil
}

func (e *Engine) appendSignal(sig *models.Signal) {
	e.signals = append(e.signals, sig)
	if len(e.signals) > signalCapacity {
		e.signals = e.signals[len(e.signals)-signalCapacity:]
	}
}

type nopNotifier struct{}

func (nopNotifier) SignalEmitted(*models.Signal)  {}
func (nopNotifier) SignalResolved(*models.Signal) {}
