package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ohlcv_backend/internal/feature/candles/domain"
	"ohlcv_backend/internal/feature/candles/domain/entity"
	"ohlcv_backend/internal/feature/candles/domain/interval"
	"ohlcv_backend/internal/feature/candles/domain/kline"
	"ohlcv_backend/internal/shared/ratelimiter"
)

const (
	// BatchLimit は1回のリクエストで取得する最大件数です（取引所のページ上限）。
	BatchLimit = 1000
	// DefaultConcurrency は IngestAll の既定の同時実行数です。
	DefaultConcurrency = 4
)

// ExchangeClient は取引所からローソク足の生データを取得するクライアントのインターフェイスです。
// startMs 以上 endMs 以下の範囲で、最大 limit 件を open_time の昇順で返します。
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type ExchangeClient interface {
	FetchBatch(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]kline.RawRow, error)
}

// CandleStore はローソク足を冪等に保存するストアです。
type CandleStore interface {
	// StoreIfAbsent は (symbol, open_time) が未保存なら書き込んで true を返します。
	// 既に存在する場合は何も更新せず false を返します（エラーではありません）。
	StoreIfAbsent(ctx context.Context, c entity.Candle) (bool, error)
}

// IngestUsecase は外部APIからデータを取得し、データベースに永続化するユースケースを定義します。
type IngestUsecase struct {
	exchange    ExchangeClient
	store       CandleStore
	limiter     ratelimiter.Limiter
	concurrency int
}

// NewIngestUsecase は新しい IngestUsecase を作成します。
// limiter が nil の場合は既定の固定ディレイ（200ms）を使用します。
func NewIngestUsecase(exchange ExchangeClient, store CandleStore, limiter ratelimiter.Limiter, concurrency int) *IngestUsecase {
	if limiter == nil {
		limiter = ratelimiter.NewFixedDelay(ratelimiter.DefaultDelay)
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &IngestUsecase{exchange: exchange, store: store, limiter: limiter, concurrency: concurrency}
}

// Ingest は指定された期間のローソク足をページ単位で取得し、バッチごとに冪等に保存します。
//
// バッチは順番に処理され、次のバッチは直前のバッチの最後の open_time + step から始まります。
// 取得済み件数が MaxCandles に達した時点で新しいバッチは発行しません（ページ内での超過は許容）。
// 途中でエラーになった場合も、それまでにコミットしたバッチはそのまま残ります。
func (iu *IngestUsecase) Ingest(ctx context.Context, req entity.IngestionRequest) (entity.IngestionResult, error) {
	if err := validate(req); err != nil {
		return entity.IngestionResult{}, err
	}
	stepMs, err := interval.Resolve(req.Interval)
	if err != nil {
		return entity.IngestionResult{}, err
	}

	log := slog.With("run_id", uuid.NewString(), "symbol", req.Symbol, "interval", req.Interval)
	res := entity.IngestionResult{StepMs: stepMs}
	cursor, endMs := req.Start.UnixMilli(), req.End.UnixMilli()
	fetches := 0

	for res.TotalFetched < req.MaxCandles && cursor < endMs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if fetches > 0 {
			if err := iu.limiter.Wait(ctx); err != nil {
				return res, err
			}
		}

		rows, err := iu.exchange.FetchBatch(ctx, req.Symbol, req.Interval, cursor, endMs, BatchLimit)
		fetches++
		if err != nil {
			if errors.Is(err, domain.ErrMalformedData) {
				return res, err
			}
			return res, fmt.Errorf("%w: %s %s from %d: %w", domain.ErrFetch, req.Symbol, req.Interval, cursor, err)
		}
		if len(rows) == 0 {
			break
		}

		// バッチ全体を検証してからコミットする
		parsed, err := kline.ParseBatch(rows)
		if err != nil {
			return res, err
		}
		// カーソルより前の行を返すバッチは後退・停滞の原因になるため拒否する
		if first := parsed[0].OpenTimeMs; first < cursor {
			return res, fmt.Errorf("%w: batch starts at %d before cursor %d", domain.ErrMalformedData, first, cursor)
		}

		inserted := 0
		for _, p := range parsed {
			c := p.Candle(req.Symbol)
			ok, err := iu.store.StoreIfAbsent(ctx, c)
			if err != nil {
				return res, fmt.Errorf("%w: %s at %s: %w", domain.ErrStorage, c.Symbol, c.OpenTime.Format("2006-01-02T15:04:05Z"), err)
			}
			if ok {
				inserted++
			}
			res.Candles = append(res.Candles, c)
		}

		res.Batches++
		res.TotalFetched += len(parsed)
		res.InsertedNew += inserted
		cursor = parsed[len(parsed)-1].OpenTimeMs + stepMs

		log.Debug("batch committed",
			"batch", res.Batches, "rows", len(parsed), "inserted", inserted, "next_cursor", cursor)
	}

	log.Info("ingestion finished",
		"total_fetched", res.TotalFetched, "inserted_new", res.InsertedNew, "batches", res.Batches)
	return res, nil
}

// IngestAll は複数のリクエストを並行して取り込みます。
// 1つのリクエストでエラーが発生しても処理を止めずにログに出力し、残りを続けます。
// 結果は reqs と同じ順序で返し、失敗したものはまとめて errors.Join で返します。
func (iu *IngestUsecase) IngestAll(ctx context.Context, reqs []entity.IngestionRequest) ([]entity.IngestionResult, error) {
	results := make([]entity.IngestionResult, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(iu.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			res, err := iu.Ingest(ctx, req)
			results[i] = res
			if err != nil {
				slog.Error("failed to ingest data", "symbol", req.Symbol, "interval", req.Interval, "error", err)
				errs[i] = fmt.Errorf("%s %s: %w", req.Symbol, req.Interval, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

func validate(req entity.IngestionRequest) error {
	switch {
	case strings.TrimSpace(req.Symbol) == "":
		return fmt.Errorf("%w: symbol is required", domain.ErrInvalidRequest)
	case req.Start.After(req.End):
		return fmt.Errorf("%w: start %s is after end %s", domain.ErrInvalidRequest, req.Start, req.End)
	case req.MaxCandles <= 0:
		return fmt.Errorf("%w: max_candles must be positive, got %d", domain.ErrInvalidRequest, req.MaxCandles)
	}
	return nil
}
