// Package usecase implements the business logic for symbol-related operations.
package usecase

import (
	"context"
	"fmt"
	"strings"

	"ohlcv_backend/internal/feature/candles/domain"
	"ohlcv_backend/internal/feature/candles/domain/interval"
	"ohlcv_backend/internal/feature/symbollist/domain/entity"
)

// DefaultInterval is used when a symbol is tracked without an explicit interval.
const DefaultInterval = "15m"

// quoteAssets are checked in order; the first matching suffix wins.
var quoteAssets = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB", "EUR", "TRY"}

// SymbolRepository abstracts the persistence layer for tracked trading pairs.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type SymbolRepository interface {
	ListActive(ctx context.Context) ([]entity.Symbol, error)
	Track(ctx context.Context, s entity.Symbol) (bool, error)
}

// SymbolUsecase provides business logic for symbol operations.
type SymbolUsecase struct {
	repo SymbolRepository
}

// NewSymbolUsecase creates a new SymbolUsecase with the given repository.
func NewSymbolUsecase(r SymbolRepository) *SymbolUsecase {
	return &SymbolUsecase{repo: r}
}

// ListActiveSymbols returns all active symbols from the repository.
func (u *SymbolUsecase) ListActiveSymbols(ctx context.Context) ([]entity.Symbol, error) {
	return u.repo.ListActive(ctx)
}

// TrackSymbol registers a trading pair for batch ingestion.
// The code is upper-cased and the interval token is validated before anything is written.
func (u *SymbolUsecase) TrackSymbol(ctx context.Context, code, intervalToken string) (bool, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return false, fmt.Errorf("%w: symbol code is required", domain.ErrInvalidRequest)
	}
	if intervalToken == "" {
		intervalToken = DefaultInterval
	}
	if _, err := interval.Resolve(intervalToken); err != nil {
		return false, err
	}

	base, quote := SplitPair(code)
	return u.repo.Track(ctx, entity.Symbol{
		Code:       code,
		BaseAsset:  base,
		QuoteAsset: quote,
		Interval:   intervalToken,
		IsActive:   true,
	})
}

// SplitPair splits an exchange pair code into base and quote assets.
// Unknown quote assets leave the whole code as base.
func SplitPair(code string) (base, quote string) {
	for _, q := range quoteAssets {
		if len(code) > len(q) && strings.HasSuffix(code, q) {
			return strings.TrimSuffix(code, q), q
		}
	}
	return code, ""
}
