// Package di provides dependency injection factories for creating application components.
package di

import (
	"ohlcv_backend/internal/feature/candles/usecase"
	"ohlcv_backend/internal/platform/config"
	"ohlcv_backend/internal/platform/externalapi/binance"
	infrahttp "ohlcv_backend/internal/platform/http"
	"ohlcv_backend/internal/shared/ratelimiter"
)

// NewExchangeClient creates the Binance client selected by BINANCE_CLIENT.
func NewExchangeClient(cfg binance.Config) usecase.ExchangeClient {
	httpClient := infrahttp.NewHTTPClient(cfg.Timeout)
	if cfg.Client == config.ClientSDK {
		return binance.NewSDKClient(cfg, httpClient)
	}
	return binance.NewClient(cfg, httpClient)
}

// NewLimiter creates the throttle policy selected by INGEST_THROTTLE.
func NewLimiter(cfg config.IngestConfig) ratelimiter.Limiter {
	switch cfg.Throttle {
	case config.ThrottleTokenBucket:
		return ratelimiter.NewTokenBucket(cfg.RPS, cfg.Burst)
	case config.ThrottleWindow:
		return ratelimiter.NewWindow(cfg.WindowLimit, cfg.Window)
	default:
		return ratelimiter.NewFixedDelay(cfg.Delay)
	}
}

// NewIngestUsecase wires the ingestion engine from configuration.
func NewIngestUsecase(cfg *config.Config, store usecase.CandleStore) *usecase.IngestUsecase {
	return usecase.NewIngestUsecase(
		NewExchangeClient(cfg.Binance),
		store,
		NewLimiter(cfg.Ingest),
		cfg.Ingest.Concurrency,
	)
}
