package adapters

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"ohlcv_backend/internal/feature/candles/domain/entity"
	"ohlcv_backend/internal/feature/candles/usecase"
)

const (
	insertCandleSQL = `INSERT INTO historical_prices (symbol, open_time, open, high, low, close, volume)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (symbol, open_time) DO NOTHING`

	listCandlesSQL = `SELECT symbol, open_time, open, high, low, close, volume
FROM historical_prices
WHERE symbol = $1
ORDER BY open_time DESC`
)

// pgxQuerier は *pgxpool.Pool / pgx.Tx のうちストアが使う部分です。
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type candlePgx struct {
	q pgxQuerier
}

var (
	_ usecase.CandleStore      = (*candlePgx)(nil)
	_ usecase.CandleRepository = (*candlePgx)(nil)
)

// NewCandlePgxRepository は pgx ネイティブのストアを返します。
// テーブルは gorm のマイグレーション (CandleModel) で作成されたものを共有します。
func NewCandlePgxRepository(q pgxQuerier) *candlePgx {
	return &candlePgx{q: q}
}

func (r *candlePgx) StoreIfAbsent(ctx context.Context, c entity.Candle) (bool, error) {
	tag, err := r.q.Exec(ctx, insertCandleSQL,
		c.Symbol, c.OpenTime.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *candlePgx) ListBySymbol(ctx context.Context, symbol string, limit int) ([]entity.Candle, error) {
	sql, args := listCandlesSQL, []any{symbol}
	if limit > 0 {
		sql += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []entity.Candle{}
	for rows.Next() {
		var (
			c        entity.Candle
			openTime time.Time
		)
		if err := rows.Scan(&c.Symbol, &openTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		c.OpenTime = openTime.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
