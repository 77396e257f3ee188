// Package entity defines the domain models for the candles feature.
package entity

import "time"

// Candle represents one OHLCV (Open, High, Low, Close, Volume) observation
// for a symbol. (Symbol, OpenTime) is its unique key in storage.
type Candle struct {
	Symbol   string    // Exchange symbol (e.g., "BTCUSDT"), case-sensitive
	OpenTime time.Time // Start of the candle period, UTC, millisecond precision
	Open     float64   // Opening price
	High     float64   // Highest price during this period
	Low      float64   // Lowest price during this period
	Close    float64   // Closing price
	Volume   float64   // Base asset volume
}

// IngestionRequest describes one window of candles to pull from the exchange.
type IngestionRequest struct {
	Symbol     string
	Interval   string // Interval token such as "15m", "1h", "1M"
	Start      time.Time
	End        time.Time
	MaxCandles int // Stop issuing new batches once this many rows were fetched
}

// IngestionResult summarizes a finished (or aborted) ingestion.
type IngestionResult struct {
	TotalFetched int      // Raw rows returned by the exchange across all batches
	InsertedNew  int      // Rows that were not stored yet and got written
	StepMs       int64    // Resolved interval length used to advance the cursor
	Batches      int      // Non-empty batches committed
	Candles      []Candle // Series in fetch order
}

// Empty reports whether the exchange returned no data for the window.
func (r IngestionResult) Empty() bool {
	return r.TotalFetched == 0
}
