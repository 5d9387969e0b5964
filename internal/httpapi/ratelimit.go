package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const limiterPrefix = "salesdesk:ratelimit"

var (
	DefaultGlobalRate = limiter.Rate{Period: 15 * time.Minute, Limit: 100}
	DefaultLoginRate  = limiter.Rate{Period: time.Minute, Limit: 5}
)

// NewLimiterStore keeps counters in redis when a client is given so that
// several server instances share one budget per client.
func NewLimiterStore(client *redis.Client) (limiter.Store, error) {
	if client == nil {
		return memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          limiterPrefix,
			CleanUpInterval: limiter.DefaultCleanUpInterval,
		}), nil
	}
	return sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: limiterPrefix,
	})
}

// newRateLimit scopes the counter key so the global and login budgets do not
// share a bucket when they share a store.
func (a *API) newRateLimit(scope string, store limiter.Store, rate limiter.Rate) *stdlib.Middleware {
	instance := limiter.New(store, rate, limiter.WithTrustForwardHeader(a.trustProxy))
	return stdlib.NewMiddleware(instance,
		stdlib.WithKeyGetter(func(r *http.Request) string {
			return scope + ":" + instance.GetIPKey(r)
		}),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			a.writeError(w, http.StatusTooManyRequests, errors.New("too many requests, try again later"))
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			a.writeError(w, http.StatusInternalServerError, err)
		}),
	)
}
