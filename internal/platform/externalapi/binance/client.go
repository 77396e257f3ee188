package binance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"

	"ohlcv_backend/internal/feature/candles/domain"
	"ohlcv_backend/internal/feature/candles/domain/kline"
	"ohlcv_backend/internal/feature/candles/usecase"
)

const (
	klinesPath      = "/api/v3/klines"
	maxResponseSize = 16 << 20
)

// Client は Binance の REST API から kline の生データを取得する ExchangeClient 実装です。
// ネットワークエラー、429、5xx は指数バックオフで再試行し、それ以外の 4xx は即座に失敗します。
type Client struct {
	cfg    Config
	client *http.Client
}

// ClientがExchangeClientを実装していることをコンパイル時に検証します。
var _ usecase.ExchangeClient = (*Client)(nil)

// NewClient は指定された設定とHTTPクライアントでClientの新しいインスタンスを生成します。
func NewClient(cfg Config, client *http.Client) *Client {
	return &Client{cfg: cfg, client: client}
}

// FetchBatch は [startMs, endMs] の範囲の kline を最大 limit 件、open_time の昇順で返します。
func (c *Client) FetchBatch(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]kline.RawRow, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("startTime", strconv.FormatInt(startMs, 10))
	q.Set("endTime", strconv.FormatInt(endMs, 10))
	q.Set("limit", strconv.Itoa(limit))
	u := fmt.Sprintf("%s%s?%s", strings.TrimRight(c.cfg.BaseURL, "/"), klinesPath, q.Encode())

	backoff := retry.WithMaxRetries(c.cfg.MaxRetries, retry.NewExponential(c.cfg.RetryBase))

	var body []byte
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		b, err := c.get(ctx, u)
		if err != nil {
			var rerr *retryableError
			if errors.As(err, &rerr) {
				slog.Warn("binance request failed, retrying", "symbol", symbol, "attempt", attempt, "error", err)
				return retry.RetryableError(rerr.err)
			}
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	return decodeRows(body)
}

// retryableError marks failures worth another attempt.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// get performs one attempt bounded by the configured timeout.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, &retryableError{err: err}
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return nil, &retryableError{err: err}
	}

	switch {
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		return nil, &retryableError{err: statusError(res.StatusCode, body)}
	case res.StatusCode >= 400:
		return nil, statusError(res.StatusCode, body)
	}
	return body, nil
}

// statusError は Binance のエラーボディ {"code":..., "msg":...} を含めたエラーを返します。
func statusError(status int, body []byte) error {
	if msg := gjson.GetBytes(body, "msg"); msg.Exists() {
		return fmt.Errorf("binance http %d: %s (code %d)", status, msg.String(), gjson.GetBytes(body, "code").Int())
	}
	return fmt.Errorf("binance http %d", status)
}

// decodeRows はレスポンスの配列を1行ずつ RawRow に分割します。各行の検証は kline パッケージで行います。
func decodeRows(body []byte) ([]kline.RawRow, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: response is not valid json", domain.ErrMalformedData)
	}
	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return nil, fmt.Errorf("%w: expected a json array of klines", domain.ErrMalformedData)
	}
	rows := make([]kline.RawRow, 0, len(res.Array()))
	res.ForEach(func(_, v gjson.Result) bool {
		rows = append(rows, kline.RawRow(v.Raw))
		return true
	})
	return rows, nil
}
