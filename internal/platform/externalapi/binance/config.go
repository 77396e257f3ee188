// Package binance provides clients for the Binance spot klines endpoint.
package binance

import "time"

// Config holds configuration for the Binance API clients.
// Fields are read from BINANCE_* environment variables by the platform config loader.
type Config struct {
	BaseURL    string        `env:"BASE_URL" envDefault:"https://api.binance.com"` // Base URL for the API
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"10s"`                      // Per-attempt HTTP timeout
	MaxRetries uint64        `env:"MAX_RETRIES" envDefault:"3"`                    // Retries after the first attempt
	RetryBase  time.Duration `env:"RETRY_BASE" envDefault:"500ms"`                 // First backoff step, doubled per retry
	Client     string        `env:"CLIENT" envDefault:"rest"`                      // "rest" or "sdk"
}

// DefaultConfig returns the configuration used when nothing is set in the environment.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "https://api.binance.com",
		Timeout:    10 * time.Second,
		MaxRetries: 3,
		RetryBase:  500 * time.Millisecond,
		Client:     "rest",
	}
}
