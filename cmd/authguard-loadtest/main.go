package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/penwell/authguard"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var signingKey = []byte("loadtest-signing-key-0123456789abcdef")

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users to log in")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		verbose     = flag.Bool("v", false, "log engine warnings to stderr")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	logger := zerolog.Nop()
	if *verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(zerolog.WarnLevel)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := authguard.DefaultConfig()
	cfg.Session.RedisPrefix = "loadtest-session"
	cfg.ResourceLimits.RedisPrefix = "loadtest-limit"
	cfg.ResourceLimits.Caps = map[string]int64{"hot": int64(*ops) * 2}
	cfg.ResourceLocks.RedisPrefix = "loadtest-lock"
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := authguard.New().
		WithConfig(cfg).
		WithSigningKey(signingKey).
		WithRedis(client).
		WithLogger(logger).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	cookies := make([]string, *users)
	fmt.Printf("logging in %d users...\n", *users)
	startSeed := time.Now()
	for i := range cookies {
		res, err := engine.Login(ctx, int64(i+1), authguard.LoginOptions{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		cookies[i] = res.Cookie
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	identityStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand, _ int) error {
		_, err := engine.Identity(ctx, cookies[r.Intn(len(cookies))])
		return err
	})

	incrementStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand, _ int) error {
		_, err := engine.IncrementResource(ctx, "hot", "shared")
		return err
	})

	lockStats := runPhase(*ops, *concurrency, 104729, func(r *rand.Rand, i int) error {
		_, err := engine.RecordFailure(ctx, "login", strconv.Itoa(i%1024))
		return err
	})

	fmt.Println("---- results ----")
	printStats("identity", identityStats)
	printStats("increment", incrementStats)
	printStats("lock", lockStats)

	left, err := engine.RemainingResource(ctx, "hot", "shared")
	if err != nil {
		fmt.Fprintf(os.Stderr, "read counter failed: %v\n", err)
		os.Exit(1)
	}
	counted := int64(*ops)*2 - left
	want := int64(incrementStats.ops) - incrementStats.failures
	if counted != want {
		fmt.Fprintf(os.Stderr, "lost increments: counter=%d successful=%d\n", counted, want)
		os.Exit(1)
	}
	fmt.Printf("counter verified: %d increments\n", counted)
}

// runPhase spreads ops calls of fn over concurrency workers and records
// per-call latency.
func runPhase(ops, concurrency int, seed int64, fn func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := fn(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
