// Package kline parses raw exchange kline rows into typed records at the API boundary.
//
// A kline row is a fixed-order JSON array:
//
//	[open_time_ms, open, high, low, close, volume, close_time_ms,
//	 quote_volume, trade_count, taker_buy_base, taker_buy_quote, ignore]
//
// Only the first six fields are consumed; the rest must be present.
package kline

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"ohlcv_backend/internal/feature/candles/domain"
	"ohlcv_backend/internal/feature/candles/domain/entity"
)

// FieldCount is the number of values in a kline row.
const FieldCount = 12

// RawRow is one undecoded kline row as returned by the exchange.
type RawRow []byte

// Row is either a ParsedRow or a MalformedRow.
type Row interface {
	isRow()
}

// ParsedRow is a kline row that passed schema checks.
type ParsedRow struct {
	OpenTimeMs int64
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
}

// MalformedRow is a kline row rejected at the boundary.
type MalformedRow struct {
	Raw    string
	Reason string
}

func (ParsedRow) isRow()    {}
func (MalformedRow) isRow() {}

// OpenTime returns the candle start as a UTC time.
func (r ParsedRow) OpenTime() time.Time {
	return time.UnixMilli(r.OpenTimeMs).UTC()
}

// Candle shapes the row into a domain candle for the given symbol.
func (r ParsedRow) Candle(symbol string) entity.Candle {
	return entity.Candle{
		Symbol:   symbol,
		OpenTime: r.OpenTime(),
		Open:     r.Open,
		High:     r.High,
		Low:      r.Low,
		Close:    r.Close,
		Volume:   r.Volume,
	}
}

// Parse checks one raw row against the kline schema.
func Parse(raw RawRow) Row {
	if !gjson.ValidBytes(raw) {
		return malformed(raw, "invalid json")
	}
	res := gjson.ParseBytes(raw)
	if !res.IsArray() {
		return malformed(raw, "not an array")
	}
	fields := res.Array()
	if len(fields) != FieldCount {
		return malformed(raw, fmt.Sprintf("expected %d fields, got %d", FieldCount, len(fields)))
	}

	openTime, err := parseOpenTime(fields[0])
	if err != nil {
		return malformed(raw, err.Error())
	}

	var values [5]float64
	names := [5]string{"open", "high", "low", "close", "volume"}
	for i := range values {
		v, err := parseAmount(fields[i+1])
		if err != nil {
			return malformed(raw, fmt.Sprintf("%s: %v", names[i], err))
		}
		values[i] = v
	}

	return ParsedRow{
		OpenTimeMs: openTime,
		Open:       values[0],
		High:       values[1],
		Low:        values[2],
		Close:      values[3],
		Volume:     values[4],
	}
}

// ParseBatch parses every row of a batch. The first malformed row, or a row whose
// open_time does not strictly increase, fails the whole batch with domain.ErrMalformedData.
func ParseBatch(rows []RawRow) ([]ParsedRow, error) {
	out := make([]ParsedRow, 0, len(rows))
	for i, raw := range rows {
		switch r := Parse(raw).(type) {
		case ParsedRow:
			if n := len(out); n > 0 && r.OpenTimeMs <= out[n-1].OpenTimeMs {
				return nil, fmt.Errorf("%w: row %d: open_time %d not after %d",
					domain.ErrMalformedData, i, r.OpenTimeMs, out[n-1].OpenTimeMs)
			}
			out = append(out, r)
		case MalformedRow:
			return nil, fmt.Errorf("%w: row %d: %s: %s", domain.ErrMalformedData, i, r.Reason, r.Raw)
		}
	}
	return out, nil
}

func malformed(raw RawRow, reason string) MalformedRow {
	s := string(raw)
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return MalformedRow{Raw: s, Reason: reason}
}

func parseOpenTime(f gjson.Result) (int64, error) {
	if f.Type != gjson.Number {
		return 0, fmt.Errorf("open_time: want number, got %s", f.Type)
	}
	d, err := decimal.NewFromString(f.Raw)
	if err != nil {
		return 0, fmt.Errorf("open_time: %w", err)
	}
	if !d.IsInteger() || d.IsNegative() {
		return 0, fmt.Errorf("open_time: %s is not a non-negative integer", f.Raw)
	}
	return d.IntPart(), nil
}

// parseAmount accepts both quoted decimals (Binance's format) and bare JSON numbers.
func parseAmount(f gjson.Result) (float64, error) {
	var s string
	switch f.Type {
	case gjson.String:
		s = f.Str
	case gjson.Number:
		s = f.Raw
	default:
		return 0, fmt.Errorf("want decimal, got %s", f.Type)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative value %s", s)
	}
	v, _ := d.Float64()
	return v, nil
}
