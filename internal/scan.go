package internal

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	scanBatchSize   = 500
	deleteBatchSize = 500
)

// RoundTrip bounds a single Redis call by timeout. A non-positive timeout
// leaves ctx as is.
func RoundTrip(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// ScanKeys walks the SCAN cursor for pattern until it wraps to 0 and
// returns every key seen. Keys may repeat across pages; duplicates are
// removed. Each page gets its own timeout.
func ScanKeys(ctx context.Context, client redis.UniversalClient, pattern string, timeout time.Duration) ([]string, error) {
	var (
		cursor uint64
		keys   []string
		seen   = make(map[string]struct{})
	)

	for {
		pageCtx, cancel := RoundTrip(ctx, timeout)
		page, next, err := client.Scan(pageCtx, cursor, pattern, scanBatchSize).Result()
		cancel()
		if err != nil {
			return nil, err
		}
		for _, k := range page {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// DeleteKeys removes keys in fixed-size batches and returns how many
// existed.
func DeleteKeys(ctx context.Context, client redis.UniversalClient, keys []string, timeout time.Duration) (int64, error) {
	var deleted int64
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		batchCtx, cancel := RoundTrip(ctx, timeout)
		n, err := client.Del(batchCtx, keys[start:end]...).Result()
		cancel()
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, nil
}

// DeleteMatching deletes every key matching pattern.
//
// A key written after the scan has passed its slot survives; callers accept
// that window and rely on TTL or a later purge to collect it.
func DeleteMatching(ctx context.Context, client redis.UniversalClient, pattern string, timeout time.Duration) (int64, error) {
	keys, err := ScanKeys(ctx, client, pattern, timeout)
	if err != nil {
		return 0, err
	}
	return DeleteKeys(ctx, client, keys, timeout)
}
