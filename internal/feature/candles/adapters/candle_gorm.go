package adapters

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ohlcv_backend/internal/feature/candles/domain/entity"
	"ohlcv_backend/internal/feature/candles/usecase"
)

type candleGorm struct {
	db *gorm.DB
}

var (
	_ usecase.CandleStore      = (*candleGorm)(nil)
	_ usecase.CandleRepository = (*candleGorm)(nil)
)

// NewCandleRepository は gorm (postgres / sqlite) ベースのストアを返します。
func NewCandleRepository(db *gorm.DB) *candleGorm {
	return &candleGorm{db: db}
}

// CandleModel は historical_prices テーブルの行です。
// (symbol, open_time) のユニーク制約が冪等書き込みの根拠になります。
type CandleModel struct {
	ID       uint      `gorm:"primaryKey"`
	Symbol   string    `gorm:"size:32;not null;uniqueIndex:idx_hist_symbol_open_time,priority:1"`
	OpenTime time.Time `gorm:"not null;uniqueIndex:idx_hist_symbol_open_time,priority:2"`

	Open   float64 `gorm:"not null"`
	High   float64 `gorm:"not null"`
	Low    float64 `gorm:"not null"`
	Close  float64 `gorm:"not null"`
	Volume float64 `gorm:"not null;default:0"`
}

func (CandleModel) TableName() string {
	return "historical_prices"
}

func toModel(e entity.Candle) CandleModel {
	return CandleModel{
		Symbol:   e.Symbol,
		OpenTime: e.OpenTime.UTC(),
		Open:     e.Open,
		High:     e.High,
		Low:      e.Low,
		Close:    e.Close,
		Volume:   e.Volume,
	}
}

func toEntity(m CandleModel) entity.Candle {
	return entity.Candle{
		Symbol:   m.Symbol,
		OpenTime: m.OpenTime.UTC(),
		Open:     m.Open,
		High:     m.High,
		Low:      m.Low,
		Close:    m.Close,
		Volume:   m.Volume,
	}
}

// StoreIfAbsent は INSERT ... ON CONFLICT DO NOTHING で1件書き込みます。
// 既存行は更新しません。書き込まれたかどうかは RowsAffected で判定します。
func (r *candleGorm) StoreIfAbsent(ctx context.Context, c entity.Candle) (bool, error) {
	m := toModel(c)
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "open_time"}},
		DoNothing: true,
	}).Create(&m)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *candleGorm) ListBySymbol(ctx context.Context, symbol string, limit int) ([]entity.Candle, error) {
	var rows []CandleModel
	q := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("open_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entity.Candle, 0, len(rows))
	for _, m := range rows {
		out = append(out, toEntity(m))
	}
	return out, nil
}
