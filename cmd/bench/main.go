// README: Smoke and load runner for a deployed buggy API; executes HTTP/DB/Redis checks and prints results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	bench := NewRunner(cfg)
	results := bench.RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			pass++
		case StatusFail:
			fail++
		case StatusSkip:
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", pass, fail, skipped)

	if fail > 0 || (cfg.Strict && skipped > 0) {
		os.Exit(1)
	}
}

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
	Pickup         string
	Destination    string
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", envOrDefault("BUGGY_BENCH_BASE_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&cfg.DSN, "dsn", envOrDefault("BUGGY_DB_DSN", ""), "Postgres DSN, empty skips DB checks")
	flag.StringVar(&cfg.RedisAddr, "redis", envOrDefault("BUGGY_REDIS_ADDR", ""), "Redis address, empty skips Redis checks")
	flag.StringVar(&cfg.MigrationPath, "migration", envOrDefault("BUGGY_BENCH_MIGRATION", "migrations/0001_init.sql"), "Migration SQL path")
	flag.BoolVar(&cfg.ApplyMigration, "apply-migration", cast.ToBool(envOrDefault("BUGGY_BENCH_APPLY_MIGRATION", "false")), "Apply migration SQL before tests")
	flag.BoolVar(&cfg.Strict, "strict", cast.ToBool(envOrDefault("BUGGY_BENCH_STRICT", "false")), "Fail on skipped checks")
	flag.DurationVar(&cfg.Timeout, "timeout", envDuration("BUGGY_BENCH_TIMEOUT", 60*time.Second), "Total timeout")
	flag.IntVar(&cfg.Concurrency, "concurrency", envInt("BUGGY_BENCH_CONCURRENCY", 10), "Concurrency for race and load checks")
	flag.DurationVar(&cfg.Duration, "duration", envDuration("BUGGY_BENCH_DURATION", 5*time.Second), "Duration for load checks")
	flag.StringVar(&cfg.Pickup, "pickup", envOrDefault("BUGGY_BENCH_PICKUP", "Main Lobby"), "Catalog pickup used by ride checks")
	flag.StringVar(&cfg.Destination, "destination", envOrDefault("BUGGY_BENCH_DESTINATION", "Marina"), "Catalog destination used by ride checks")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Concurrency < 2 {
		cfg.Concurrency = 2
	}
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if n := cast.ToInt(os.Getenv(key)); n > 0 {
		return n
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := cast.ToDurationE(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
