package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"

	"github.com/redis/go-redis/v9"
)

// defaultMaxRetries bounds optimistic WATCH/MULTI retries per operation.
const defaultMaxRetries = 16

// watchWithRetry runs fn as a WATCH transaction on keys, retrying while
// another client modifies one of the watched keys first.
func watchWithRetry(ctx context.Context, client *redis.Client, retries int, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < retries; i++ {
		err := client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	log.Printf("redis transaction on %v gave up after %d retries", keys, retries)
	return fmt.Errorf("watch %v: %w", keys, redis.TxFailedErr)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// readJSON decodes the value at key into dst. found is false when the key is missing.
func readJSON(ctx context.Context, c getter, key string, dst any) (bool, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// decodeAll decodes MGET replies, skipping missing keys.
func decodeAll[T any](values []interface{}) ([]T, error) {
	out := make([]T, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var item T
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}


// keyPart escapes an id for use as one colon-separated key segment, so ids
// that contain ':' cannot collide with other (user, quiz) pairs.
func keyPart(id string) string {
	return url.QueryEscape(id)
}
