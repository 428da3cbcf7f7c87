package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Connect parses url, builds a client and checks it answers.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

type RateLimitRepo struct {
	client *goredis.Client
}

func NewRateLimitRepo(client *goredis.Client) *RateLimitRepo {
	return &RateLimitRepo{client: client}
}

// decrementScript only touches live counters, so a refund arriving after the
// window ended cannot leave a key without a TTL behind.
var decrementScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return redis.call("DECR", KEYS[1])
end
return 0
`)

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

// Increment bumps the counter for key and returns the new count. The window
// starts with the first hit and the key expires when it ends.
func (r *RateLimitRepo) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := rateLimitKey(key)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *RateLimitRepo) Decrement(ctx context.Context, key string) error {
	return decrementScript.Run(ctx, r.client, []string{rateLimitKey(key)}).Err()
}
