package throttle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/mealgrid/mealgrid/internal/config"
	"github.com/mealgrid/mealgrid/internal/observability/metrics"
)

// slidingWindowScript counts requests in the trailing window with a sorted
// set keyed by request timestamp. The member gets a unique suffix so two
// requests in the same millisecond both count.
const slidingWindowScript = `
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, now - window)

local count = redis.call("ZCARD", KEYS[1])
local allowed = 0
if count < limit then
  allowed = 1
  redis.call("ZADD", KEYS[1], now, now .. "-" .. ARGV[3])
  count = count + 1
end
redis.call("PEXPIRE", KEYS[1], window)

local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local oldestScore = now
if oldest[2] ~= nil then
  oldestScore = tonumber(oldest[2])
end

return {allowed, count, now, oldestScore}
`

const keyThrottle = "throttle:%s:%s"

// Endpoint classes with distinct quotas. The class name doubles as the key
// into the throttle section of the quota config file.
const (
	ClassAuth   = "auth"
	ClassOrders = "orders"
)

var ErrLimited = errors.New("rate_limited")

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Quotas  *config.QuotaConfigHolder
	Metrics *metrics.ThrottleMetrics
}

// Limiter is a per-IP sliding-window limiter. When Redis is unreachable it
// fails open everywhere except production, where abuse control must not
// silently disappear.
type Limiter struct {
	client   *redis.Client
	script   *redis.Script
	quotas   *config.QuotaConfigHolder
	metrics  *metrics.ThrottleMetrics
	log      *zap.Logger
	failOpen bool
	seq      atomic.Uint64
}

func NewLimiter(p Params) (*Limiter, error) {
	addr := strings.TrimSpace(p.Cfg.RedisAddr)
	if addr == "" {
		if p.Cfg.IsProduction() {
			return nil, errors.New("redis addr is required in production")
		}
		p.Log.Warn("throttle disabled: no redis addr configured")
		return &Limiter{
			quotas:   p.Quotas,
			metrics:  p.Metrics,
			log:      p.Log.Named("throttle"),
			failOpen: true,
		}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(p.Cfg.RedisPassword),
	})

	return &Limiter{
		client:   client,
		script:   redis.NewScript(slidingWindowScript),
		quotas:   p.Quotas,
		metrics:  p.Metrics,
		log:      p.Log.Named("throttle"),
		failOpen: !p.Cfg.IsProduction(),
	}, nil
}

// Allow records one request for the given class and client key and reports
// whether it fits the class quota.
func (l *Limiter) Allow(ctx context.Context, class string, key string) (*Result, error) {
	quota := l.quotas.QuotaFor(class)
	if l.client == nil {
		return &Result{Allowed: true, Limit: quota.Limit, Remaining: quota.Limit}, nil
	}

	res, err := l.script.Run(
		ctx,
		l.client,
		[]string{fmt.Sprintf(keyThrottle, class, key)},
		quota.Limit,
		quota.Window.Milliseconds(),
		l.seq.Add(1),
	).Slice()
	if err != nil {
		if l.failOpen {
			l.log.Warn("throttle check failed, allowing request", zap.String("class", class), zap.Error(err))
			return &Result{Allowed: true, Limit: quota.Limit, Remaining: quota.Limit}, nil
		}
		return nil, err
	}
	if len(res) < 4 {
		return nil, errors.New("invalid throttle script response")
	}

	allowed := castToInt(res[0]) == 1
	count := int(castToInt(res[1]))
	now := castToInt(res[2])
	oldest := castToInt(res[3])

	result := &Result{
		Allowed: allowed,
		Limit:   quota.Limit,
	}
	if remaining := quota.Limit - count; remaining > 0 {
		result.Remaining = remaining
	}
	if !allowed {
		retryMillis := oldest + quota.Window.Milliseconds() - now
		if retryMillis < 1000 {
			retryMillis = 1000
		}
		result.RetryAfter = time.Duration(retryMillis) * time.Millisecond
		l.metrics.IncDenied(class)
		return result, nil
	}

	l.metrics.IncAllowed(class)
	return result, nil
}

func castToInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	default:
		return 0
	}
}
