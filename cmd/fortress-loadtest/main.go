// fortress-loadtest seeds a set of verified users against an in-memory
// repository and measures engine throughput for the two hot operations:
// ValidateSession and SignIn. With -redis-addr (or REDIS_ADDR) the rate
// limiter runs against a real Redis; otherwise an embedded miniredis is
// used so the binary has no external dependencies.
//
// Argon2id runs with deliberately light parameters here: the target of the
// measurement is the engine and store hot path, not the KDF.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	fortress "github.com/fortressauth/fortress"
	"github.com/fortressauth/fortress/password"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type seededUser struct {
	email        string
	sessionToken string
}

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (validate + signin)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
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
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	mail := &linkCapture{links: map[string]string{}}

	cfg := fortress.Config{
		Session: fortress.SessionConfig{TTL: 24 * time.Hour},
		Password: fortress.PasswordConfig{
			Argon2: password.Params{
				Memory:      8 * 1024,
				Time:        1,
				Parallelism: 1,
				SaltLength:  16,
				KeyLength:   16,
			},
		},
		// Rate limiting would throttle the load phases themselves; the
		// limiter backend is still exercised through the Redis client.
		RateLimit: fortress.RateLimitConfig{Disabled: true},
		Lockout:   fortress.LockoutConfig{Disabled: true},
		Metrics:   fortress.MetricsConfig{Enabled: true, EnableLatencyHistograms: true},
	}

	engine, err := fortress.New().
		WithConfig(cfg).
		WithRepository(newLoadRepository()).
		WithEmailProvider(mail).
		WithRedis(client).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	seeded := make([]seededUser, *users)
	for i := 0; i < *users; i++ {
		email := fmt.Sprintf("user-%d@load.test", i)
		res, err := engine.SignUp(ctx, fortress.SignUpInput{Email: email, Password: "load-test-pass-1"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed signup failed: %v\n", err)
			os.Exit(1)
		}
		if _, err := engine.VerifyEmail(ctx, mail.take(email)); err != nil {
			fmt.Fprintf(os.Stderr, "seed verify failed: %v\n", err)
			os.Exit(1)
		}
		seeded[i] = seededUser{email: email, sessionToken: res.SessionToken}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		_, err := engine.ValidateSession(ctx, seeded[r.Intn(len(seeded))].sessionToken)
		return err
	})
	signinStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		_, err := engine.SignIn(ctx, fortress.SignInInput{
			Email:    seeded[r.Intn(len(seeded))].email,
			Password: "load-test-pass-1",
		})
		return err
	})

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("signin", signinStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("engine counters: validated=%d signin_ok=%d signin_fail=%d\n",
		snap.Counters[fortress.MetricSessionValidated],
		snap.Counters[fortress.MetricSignInSuccess],
		snap.Counters[fortress.MetricSignInFailure],
	)
}

func runPhase(ops, concurrency int, op func(*rand.Rand) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
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
	total := time.Since(start)
	return computeStats(total, latencies, failures)
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
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

// linkCapture records the last verification link per address so seeding can
// redeem it without real mail delivery.
type linkCapture struct {
	mu    sync.Mutex
	links map[string]string
}

func (c *linkCapture) SendVerificationEmail(_ context.Context, email, link string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links[email] = link
	return nil
}

func (c *linkCapture) SendPasswordResetEmail(_ context.Context, email, link string) error {
	return nil
}

// take pops the raw token out of the stored link.
func (c *linkCapture) take(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	link := c.links[email]
	delete(c.links, email)
	const marker = "token="
	for i := 0; i+len(marker) <= len(link); i++ {
		if link[i:i+len(marker)] == marker {
			return link[i+len(marker):]
		}
	}
	return ""
}
