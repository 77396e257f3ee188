// Package interval converts exchange interval tokens ("1m", "15m", "1h", "1d", "1w", "1M")
// into fixed durations.
package interval

import (
	"fmt"
	"strconv"

	"ohlcv_backend/internal/feature/candles/domain"
)

// Unit lengths in milliseconds.
// A month is approximated as exactly 30 days; it does not follow calendar boundaries.
const (
	MinuteMs int64 = 60_000
	HourMs   int64 = 3_600_000
	DayMs    int64 = 86_400_000
	WeekMs   int64 = 604_800_000
	MonthMs  int64 = 2_592_000_000
)

// unitMs is case-sensitive: "m" is minutes and "M" is months.
var unitMs = map[byte]int64{
	'm': MinuteMs,
	'h': HourMs,
	'd': DayMs,
	'w': WeekMs,
	'M': MonthMs,
}

// Resolve returns the length of one candle of the given token in milliseconds.
// It fails with domain.ErrInvalidInterval when the unit suffix is unknown or the
// numeric prefix is not a positive integer.
func Resolve(token string) (int64, error) {
	if len(token) < 2 {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidInterval, token)
	}
	unit, ok := unitMs[token[len(token)-1]]
	if !ok {
		return 0, fmt.Errorf("%w: unsupported unit in %q", domain.ErrInvalidInterval, token)
	}
	prefix := token[:len(token)-1]
	for i := 0; i < len(prefix); i++ {
		if prefix[i] < '0' || prefix[i] > '9' {
			return 0, fmt.Errorf("%w: bad count in %q", domain.ErrInvalidInterval, token)
		}
	}
	n, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: bad count in %q", domain.ErrInvalidInterval, token)
	}
	if n > (1<<63-1)/unit {
		return 0, fmt.Errorf("%w: %q overflows", domain.ErrInvalidInterval, token)
	}
	return n * unit, nil
}
