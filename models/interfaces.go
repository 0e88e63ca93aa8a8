package models

import "context"

type CandleClient interface {
	GetCandles(ctx context.Context) ([]Candle, error)
	GetLatestPrice(ctx context.Context) (float64, error)
}

// Notifier receives signal lifecycle events. Implementations must tolerate
// being called from deferred resolve callbacks.
type Notifier interface {
	SignalEmitted(signal *Signal)
	SignalResolved(signal *Signal)
}
