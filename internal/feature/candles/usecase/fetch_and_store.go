package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ohlcv_backend/internal/feature/candles/domain"
	"ohlcv_backend/internal/feature/candles/domain/entity"
)

// FetchAndStore の既定値です。
const (
	DefaultIngestInterval = "15m"
	DefaultStartDate      = "2020-01-01"
	DefaultEndDate        = "2025-01-01"
	DefaultMaxCandles     = 1000

	NoDataMessage = "No data fetched."
)

// dateLayouts は受け付ける日付フォーマットです。タイムゾーンなしの値は UTC とみなします。
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FetchParams は FetchAndStore の入力です。空のフィールドには既定値が使われます。
type FetchParams struct {
	Symbol     string
	Interval   string
	StartDate  string
	EndDate    string
	MaxCandles int
}

// FetchSummary は FetchAndStore の結果です。
type FetchSummary struct {
	TotalFetched int    `json:"total_fetched"`
	InsertedNew  int    `json:"inserted_new"`
	Empty        bool   `json:"-"`
	Message      string `json:"message,omitempty"`
}

// FetchAndStore は文字列パラメータを解釈して Ingest を実行し、件数をまとめて返します。
// 取得件数が 0 件の場合は Empty=true と NoDataMessage を返します（エラーではありません）。
func (iu *IngestUsecase) FetchAndStore(ctx context.Context, p FetchParams) (FetchSummary, error) {
	req, err := p.Request()
	if err != nil {
		return FetchSummary{}, err
	}

	res, err := iu.Ingest(ctx, req)
	if err != nil {
		return FetchSummary{TotalFetched: res.TotalFetched, InsertedNew: res.InsertedNew}, err
	}
	if res.Empty() {
		return FetchSummary{Empty: true, Message: NoDataMessage}, nil
	}
	return FetchSummary{TotalFetched: res.TotalFetched, InsertedNew: res.InsertedNew}, nil
}

// Request は既定値を補って IngestionRequest に変換します。
func (p FetchParams) Request() (entity.IngestionRequest, error) {
	if p.Interval == "" {
		p.Interval = DefaultIngestInterval
	}
	if p.StartDate == "" {
		p.StartDate = DefaultStartDate
	}
	if p.EndDate == "" {
		p.EndDate = DefaultEndDate
	}
	if p.MaxCandles == 0 {
		p.MaxCandles = DefaultMaxCandles
	}

	start, err := ParseDate(p.StartDate)
	if err != nil {
		return entity.IngestionRequest{}, err
	}
	end, err := ParseDate(p.EndDate)
	if err != nil {
		return entity.IngestionRequest{}, err
	}

	return entity.IngestionRequest{
		Symbol:     strings.TrimSpace(p.Symbol),
		Interval:   p.Interval,
		Start:      start,
		End:        end,
		MaxCandles: p.MaxCandles,
	}, nil
}

// ParseDate は日付文字列を UTC の時刻に変換します。
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unsupported date %q", domain.ErrInvalidRequest, s)
}
