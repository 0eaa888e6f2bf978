// README: Smoke and load checks against a deployed caravan stack (Postgres, Redis, HTTP); prints a result table.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	BaseURL        string
	DSN            string
	RedisAddr      string
	MigrationPath  string
	ApplyMigration bool
	Strict         bool
	Timeout        time.Duration
	Concurrency    int
	Duration       time.Duration
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "caravan-bench: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	results := NewRunner(cfg).RunAll(ctx)

	var counts [4]int
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			counts[0]++
		case StatusFail:
			counts[1]++
		case StatusPending:
			counts[2]++
		case StatusSkip:
			counts[3]++
		}
	}
	fmt.Println("\n== Summary ==")
	fmt.Printf("PASS=%d FAIL=%d PENDING=%d SKIP=%d\n", counts[0], counts[1], counts[2], counts[3])

	if counts[1] > 0 || (cfg.Strict && counts[2] > 0) {
		os.Exit(1)
	}
}

func loadConfig(args []string) (Config, error) {
	var cfg Config
	fs := pflag.NewFlagSet("caravan-bench", pflag.ContinueOnError)
	fs.StringVar(&cfg.BaseURL, "base-url", envOrDefault("CARAVAN_BENCH_BASE_URL", "http://localhost:8080"), "HTTP base URL of the bot")
	fs.StringVar(&cfg.DSN, "dsn", envOrDefault("CARAVAN_BENCH_DSN", os.Getenv("CARAVAN_DB_DSN")), "PostgreSQL DSN")
	fs.StringVar(&cfg.RedisAddr, "redis", envOrDefault("CARAVAN_BENCH_REDIS", os.Getenv("CARAVAN_REDIS_ADDR")), "Redis address")
	fs.StringVar(&cfg.MigrationPath, "migration", envOrDefault("CARAVAN_BENCH_MIGRATION", "migrations/0001_init.sql"), "schema file")
	fs.BoolVar(&cfg.ApplyMigration, "apply-migration", envBool("CARAVAN_BENCH_APPLY_MIGRATION", false), "apply the schema before checking")
	fs.BoolVar(&cfg.Strict, "strict", envBool("CARAVAN_BENCH_STRICT", false), "treat PENDING as failure")
	fs.DurationVar(&cfg.Timeout, "timeout", envDuration("CARAVAN_BENCH_TIMEOUT", 2*time.Minute), "overall timeout")
	fs.IntVarP(&cfg.Concurrency, "concurrency", "n", envInt("CARAVAN_BENCH_CONCURRENCY", 20), "concurrent drivers or workers")
	fs.DurationVar(&cfg.Duration, "duration", envDuration("CARAVAN_BENCH_DURATION", 10*time.Second), "load phase duration")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.Concurrency < 2 {
		return Config{}, fmt.Errorf("concurrency must be at least 2, got %d", cfg.Concurrency)
	}
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
