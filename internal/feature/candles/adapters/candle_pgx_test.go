package adapters

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ohlcv_backend/internal/feature/candles/domain/entity"
)

// mockQuerier は pgxQuerier のモック実装です。
type mockQuerier struct {
	ExecFunc  func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryFunc func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	ExecCalls int
}

func (m *mockQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.ExecCalls++
	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, errors.New("ExecFunc is not implemented")
}

func (m *mockQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, sql, args...)
	}
	return nil, errors.New("QueryFunc is not implemented")
}

// fakeRows は entity.Candle のスライスを pgx.Rows として返します。
type fakeRows struct {
	data   []entity.Candle
	idx    int
	err    error
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if len(dest) != 7 {
		return fmt.Errorf("expected 7 destinations, got %d", len(dest))
	}
	c := r.data[r.idx-1]
	*dest[0].(*string) = c.Symbol
	*dest[1].(*time.Time) = c.OpenTime
	*dest[2].(*float64) = c.Open
	*dest[3].(*float64) = c.High
	*dest[4].(*float64) = c.Low
	*dest[5].(*float64) = c.Close
	*dest[6].(*float64) = c.Volume
	return nil
}

func TestCandlePgx_StoreIfAbsent(t *testing.T) {
	t.Parallel()

	c := testCandle("BTCUSDT", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	errConn := errors.New("connection reset")

	tests := []struct {
		name         string
		tag          string
		execErr      error
		wantInserted bool
		wantErr      error
	}{
		{name: "success: new row", tag: "INSERT 0 1", wantInserted: true},
		{name: "success: conflict does nothing", tag: "INSERT 0 0", wantInserted: false},
		{name: "error: exec fails", execErr: errConn, wantErr: errConn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := &mockQuerier{
				ExecFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
					assert.Equal(t, insertCandleSQL, sql)
					require.Len(t, args, 7)
					assert.Equal(t, "BTCUSDT", args[0])
					assert.Equal(t, c.OpenTime, args[1])
					assert.Equal(t, c.Volume, args[6])
					if tt.execErr != nil {
						return pgconn.CommandTag{}, tt.execErr
					}
					return pgconn.NewCommandTag(tt.tag), nil
				},
			}
			repo := NewCandlePgxRepository(q)

			inserted, err := repo.StoreIfAbsent(context.Background(), c)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, inserted)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantInserted, inserted)
			}
			assert.Equal(t, 1, q.ExecCalls)
		})
	}
}

func TestCandlePgx_ListBySymbol(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stored := []entity.Candle{
		testCandle("BTCUSDT", base.Add(time.Hour)),
		testCandle("BTCUSDT", base),
	}

	t.Run("success: with limit", func(t *testing.T) {
		t.Parallel()

		rows := &fakeRows{data: stored}
		q := &mockQuerier{
			QueryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
				assert.Contains(t, sql, "ORDER BY open_time DESC")
				assert.Contains(t, sql, "LIMIT $2")
				assert.Equal(t, []any{"BTCUSDT", 2}, args)
				return rows, nil
			},
		}

		got, err := NewCandlePgxRepository(q).ListBySymbol(context.Background(), "BTCUSDT", 2)

		require.NoError(t, err)
		assert.Equal(t, stored, got)
		assert.True(t, rows.closed, "rows should be closed")
	})

	t.Run("success: limit 0 has no LIMIT clause", func(t *testing.T) {
		t.Parallel()

		q := &mockQuerier{
			QueryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
				assert.NotContains(t, sql, "LIMIT")
				assert.Equal(t, []any{"BTCUSDT"}, args)
				return &fakeRows{}, nil
			},
		}

		got, err := NewCandlePgxRepository(q).ListBySymbol(context.Background(), "BTCUSDT", 0)

		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("error: query fails", func(t *testing.T) {
		t.Parallel()

		q := &mockQuerier{
			QueryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
				return nil, errors.New("query failed")
			},
		}

		_, err := NewCandlePgxRepository(q).ListBySymbol(context.Background(), "BTCUSDT", 10)
		assert.Error(t, err)
	})

	t.Run("error: rows error is returned", func(t *testing.T) {
		t.Parallel()

		q := &mockQuerier{
			QueryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
				return &fakeRows{err: errors.New("stream broken")}, nil
			},
		}

		_, err := NewCandlePgxRepository(q).ListBySymbol(context.Background(), "BTCUSDT", 10)
		assert.EqualError(t, err, "stream broken")
	})
}
