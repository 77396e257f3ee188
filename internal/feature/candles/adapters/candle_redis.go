package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ohlcv_backend/internal/feature/candles/domain/entity"
	"ohlcv_backend/internal/feature/candles/usecase"
)

// DefaultRedisNamespace は redis ストアのキー接頭辞です。
const DefaultRedisNamespace = "ohlcv:candle"

// storeIfAbsentScript は SET NX と索引への ZADD をサーバ側で1ステップとして実行します。
// KEYS[1]=candle key, KEYS[2]=index key, ARGV[1]=payload, ARGV[2]=open_time ms
const storeIfAbsentScript = `if redis.call('SET', KEYS[1], ARGV[1], 'NX') then
  redis.call('ZADD', KEYS[2], ARGV[2], ARGV[2])
  return 1
end
return 0`

type candleRedis struct {
	rdb       redis.Cmdable
	namespace string
}

var (
	_ usecase.CandleStore      = (*candleRedis)(nil)
	_ usecase.CandleRepository = (*candleRedis)(nil)
)

// NewCandleRedisRepository は redis をキーバリューストアとして使うストアを返します。
// 1件ごとに {ns}:{symbol}:{open_time_ms} を保存し、{ns}:{symbol}:index の sorted set で並べます。
func NewCandleRedisRepository(rdb redis.Cmdable, namespace string) *candleRedis {
	if namespace == "" {
		namespace = DefaultRedisNamespace
	}
	return &candleRedis{rdb: rdb, namespace: namespace}
}

// redisCandle は redis に保存する JSON の形です。
type redisCandle struct {
	Symbol     string  `json:"symbol"`
	OpenTimeMs int64   `json:"open_time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Volume     float64 `json:"volume"`
}

func encodeRedisCandle(c entity.Candle) ([]byte, error) {
	return json.Marshal(redisCandle{
		Symbol:     c.Symbol,
		OpenTimeMs: c.OpenTime.UnixMilli(),
		Open:       c.Open,
		High:       c.High,
		Low:        c.Low,
		Close:      c.Close,
		Volume:     c.Volume,
	})
}

func decodeRedisCandle(b []byte) (entity.Candle, error) {
	var m redisCandle
	if err := json.Unmarshal(b, &m); err != nil {
		return entity.Candle{}, err
	}
	return entity.Candle{
		Symbol:   m.Symbol,
		OpenTime: time.UnixMilli(m.OpenTimeMs).UTC(),
		Open:     m.Open,
		High:     m.High,
		Low:      m.Low,
		Close:    m.Close,
		Volume:   m.Volume,
	}, nil
}

func (r *candleRedis) StoreIfAbsent(ctx context.Context, c entity.Candle) (bool, error) {
	payload, err := encodeRedisCandle(c)
	if err != nil {
		return false, err
	}
	openMs := c.OpenTime.UnixMilli()
	keys := []string{r.candleKey(c.Symbol, openMs), r.indexKey(c.Symbol)}

	n, err := r.rdb.Eval(ctx, storeIfAbsentScript, keys, string(payload), openMs).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *candleRedis) ListBySymbol(ctx context.Context, symbol string, limit int) ([]entity.Candle, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	members, err := r.rdb.ZRevRange(ctx, r.indexKey(symbol), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []entity.Candle{}, nil
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		openMs, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt index member %q: %w", m, err)
		}
		keys = append(keys, r.candleKey(symbol, openMs))
	}

	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]entity.Candle, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// 索引にあるが値がない（手動削除など）
			continue
		}
		c, err := decodeRedisCandle([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("corrupt candle %s: %w", keys[i], err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Keys share the hash tag {symbol} so the Lua script touches a single cluster slot.
func (r *candleRedis) candleKey(symbol string, openMs int64) string {
	return fmt.Sprintf("%s:{%s}:%d", r.namespace, keyEscaper.Replace(symbol), openMs)
}

func (r *candleRedis) indexKey(symbol string) string {
	return fmt.Sprintf("%s:{%s}:index", r.namespace, keyEscaper.Replace(symbol))
}

// keyEscaper percent-encodes the separator and hash tag characters.
// "%" is escaped too, so distinct symbols never share a key.
var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A", " ", "%20", "{", "%7B", "}", "%7D")
