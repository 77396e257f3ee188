package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"ohlcv_backend/internal/feature/symbollist/domain/entity"
)

// setupTestDB はテスト用のインメモリSQLiteデータベースを準備します。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to initialize test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	// Symbolテーブルを作成
	err = db.AutoMigrate(&entity.Symbol{})
	require.NoError(t, err, "failed to migrate table")

	return db
}

// seedSymbol はテスト用の銘柄データをデータベースに作成します。
func seedSymbol(t *testing.T, db *gorm.DB, code, base, quote string, sortKey int) *entity.Symbol {
	t.Helper()

	symbol := &entity.Symbol{
		Code:       code,
		BaseAsset:  base,
		QuoteAsset: quote,
		Interval:   "1h",
		IsActive:   true,
		SortKey:    sortKey,
	}
	err := db.Create(symbol).Error
	require.NoError(t, err, "failed to seed symbol")

	return symbol
}

// updateSymbolActive は銘柄のis_activeフィールドを更新します。
// default:true のカラムはゼロ値 false で INSERT できないため、この関数が必要です。
func updateSymbolActive(t *testing.T, db *gorm.DB, symbol *entity.Symbol, isActive bool) {
	t.Helper()
	err := db.Model(symbol).Update("is_active", isActive).Error
	require.NoError(t, err, "failed to update symbol active status")
}

// TestNewSymbolRepository はNewSymbolRepositoryコンストラクタが正しくインスタンスを生成することを検証します。
func TestNewSymbolRepository(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewSymbolRepository(db)

	assert.NotNil(t, repo, "repository should not be nil")
	assert.NotNil(t, repo.db, "database connection should not be nil")
}

// TestSymbolGorm_ListActive はListActiveメソッドの各種シナリオをテーブル駆動テストで検証します。
func TestSymbolGorm_ListActive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		setupFunc     func(t *testing.T, db *gorm.DB)
		expectedCodes []string
	}{
		{
			name: "success: returns active symbols sorted by sort_key",
			setupFunc: func(t *testing.T, db *gorm.DB) {
				seedSymbol(t, db, "ETHUSDT", "ETH", "USDT", 2)
				seedSymbol(t, db, "BTCUSDT", "BTC", "USDT", 1)
				seedSymbol(t, db, "SOLUSDT", "SOL", "USDT", 3)
			},
			expectedCodes: []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		},
		{
			name: "success: excludes inactive symbols",
			setupFunc: func(t *testing.T, db *gorm.DB) {
				seedSymbol(t, db, "BTCUSDT", "BTC", "USDT", 1)
				inactive := seedSymbol(t, db, "ETHUSDT", "ETH", "USDT", 2)
				updateSymbolActive(t, db, inactive, false)
				seedSymbol(t, db, "SOLUSDT", "SOL", "USDT", 3)
			},
			expectedCodes: []string{"BTCUSDT", "SOLUSDT"},
		},
		{
			name:          "success: returns empty list when no symbols",
			expectedCodes: []string{},
		},
		{
			name: "success: ties on sort_key are ordered by code",
			setupFunc: func(t *testing.T, db *gorm.DB) {
				seedSymbol(t, db, "XRPUSDT", "XRP", "USDT", 0)
				seedSymbol(t, db, "ADAUSDT", "ADA", "USDT", 0)
			},
			expectedCodes: []string{"ADAUSDT", "XRPUSDT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db := setupTestDB(t)
			repo := NewSymbolRepository(db)

			if tt.setupFunc != nil {
				tt.setupFunc(t, db)
			}

			symbols, err := repo.ListActive(context.Background())

			require.NoError(t, err)
			require.Len(t, symbols, len(tt.expectedCodes))
			// 順序とコードを検証
			for i, expectedCode := range tt.expectedCodes {
				assert.Equal(t, expectedCode, symbols[i].Code)
			}
		})
	}
}

// TestSymbolGorm_Track は追跡対象の追加が冪等であることを検証します。
func TestSymbolGorm_Track(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewSymbolRepository(db)
	ctx := context.Background()

	s := entity.Symbol{Code: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT", Interval: "1h", IsActive: true}

	added, err := repo.Track(ctx, s)
	require.NoError(t, err)
	assert.True(t, added)

	s.Interval = "1d"
	added, err = repo.Track(ctx, s)
	require.NoError(t, err)
	assert.False(t, added, "second Track should be a no-op")

	symbols, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	assert.Equal(t, "1h", symbols[0].Interval, "existing row must not be updated")
	assert.False(t, symbols[0].UpdatedAt.IsZero(), "UpdatedAt should be set")
}

// TestSymbolGorm_ContextCancellation はコンテキストがキャンセルされた場合の動作を検証します。
func TestSymbolGorm_ContextCancellation(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewSymbolRepository(db)

	seedSymbol(t, db, "BTCUSDT", "BTC", "USDT", 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// インメモリSQLiteはキャンセルされたコンテキストで常にエラーを返すとは限りません
	_, err := repo.ListActive(ctx)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
