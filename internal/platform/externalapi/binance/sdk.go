package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/sethvargo/go-retry"

	"ohlcv_backend/internal/feature/candles/domain"
	"ohlcv_backend/internal/feature/candles/domain/kline"
	"ohlcv_backend/internal/feature/candles/usecase"
)

// SDKClient は go-binance SDK を使った ExchangeClient 実装です。
// SDK が型付きで返す kline を、REST クライアントと同じ12要素の配列に戻して返します。
// 再試行の条件は REST クライアントと同じです。
type SDKClient struct {
	cfg    Config
	client *gobinance.Client
}

var _ usecase.ExchangeClient = (*SDKClient)(nil)

// NewSDKClient は公開エンドポイント用の（APIキーなしの）SDKクライアントを生成します。
func NewSDKClient(cfg Config, httpClient *http.Client) *SDKClient {
	c := gobinance.NewClient("", "")
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		c.BaseURL = strings.TrimRight(base, "/")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	// 呼び出し元のクライアントは変更せず、コピーに retryTransport を差し込む
	hc := *httpClient
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = &retryTransport{base: base}
	c.HTTPClient = &hc

	return &SDKClient{cfg: cfg, client: c}
}

func (s *SDKClient) FetchBatch(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]kline.RawRow, error) {
	backoff := retry.WithMaxRetries(s.cfg.MaxRetries, retry.NewExponential(s.cfg.RetryBase))

	var kls []*gobinance.Kline
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		res, err := s.klines(ctx, symbol, interval, startMs, endMs, limit)
		if err != nil {
			var rerr *retryableError
			if errors.As(err, &rerr) {
				slog.Warn("binance sdk request failed, retrying", "symbol", symbol, "attempt", attempt, "error", rerr.err)
				return retry.RetryableError(rerr.err)
			}
			return fmt.Errorf("binance sdk: %w", err)
		}
		kls = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	rows := make([]kline.RawRow, 0, len(kls))
	for i, kl := range kls {
		if kl == nil {
			return nil, fmt.Errorf("%w: empty kline at index %d", domain.ErrMalformedData, i)
		}
		b, err := json.Marshal([]any{
			kl.OpenTime,
			kl.Open,
			kl.High,
			kl.Low,
			kl.Close,
			kl.Volume,
			kl.CloseTime,
			kl.QuoteAssetVolume,
			kl.TradeNum,
			kl.TakerBuyBaseAssetVolume,
			kl.TakerBuyQuoteAssetVolume,
			"0",
		})
		if err != nil {
			return nil, err
		}
		rows = append(rows, b)
	}
	return rows, nil
}

// klines performs one attempt bounded by the configured timeout.
func (s *SDKClient) klines(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]*gobinance.Kline, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	return s.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		StartTime(startMs).
		EndTime(endMs).
		Limit(limit).
		Do(ctx)
}

// retryTransport は SDK の内側で 429、5xx、ネットワークエラーを retryableError に変換します。
// それ以外のレスポンスはそのまま SDK に渡します。
type retryTransport struct {
	base http.RoundTripper
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, &retryableError{err: err}
	}
	if res.StatusCode != http.StatusTooManyRequests && res.StatusCode < 500 {
		return res, nil
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()
	body, _ := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	return nil, &retryableError{err: statusError(res.StatusCode, body)}
}
