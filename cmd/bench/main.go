// README: Benchmark runner against a live API; executes HTTP/DB/Redis checks and prints results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"medtrans/internal/config"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	bench := NewRunner(cfg)
	results := bench.RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case "PASS":
			pass++
		case "FAIL":
			fail++
		case "SKIP":
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
	RedisChannel   string
	MigrationPath  string
	ApplyMigration bool
	Strict         bool
	Timeout        time.Duration
	Duration       time.Duration
	Concurrency    int
	PatientToken   string
	AdminToken     string
	DriverTokens   []string
}

// benchEnv holds MEDTRANS_BENCH_* overrides; flags take precedence over it.
type benchEnv struct {
	BaseURL        string        `envconfig:"BASE_URL" default:"http://localhost:8080"`
	MigrationPath  string        `envconfig:"MIGRATION" default:"migrations/0001_init.sql"`
	ApplyMigration bool          `envconfig:"APPLY_MIGRATION"`
	Strict         bool          `envconfig:"STRICT"`
	Timeout        time.Duration `envconfig:"TIMEOUT" default:"60s"`
	Duration       time.Duration `envconfig:"DURATION" default:"10s"`
	Concurrency    int           `envconfig:"CONCURRENCY" default:"20"`
	PatientToken   string        `envconfig:"PATIENT_TOKEN"`
	AdminToken     string        `envconfig:"ADMIN_TOKEN"`
	DriverTokens   []string      `envconfig:"DRIVER_TOKENS"`
}

// loadConfig layers flags over MEDTRANS_BENCH_* env, and takes the DB and Redis defaults from
// the server's own config so both point at the same deployment.
func loadConfig(args []string) (Config, error) {
	app, err := config.Load()
	if err != nil {
		return Config{}, err
	}
	var env benchEnv
	if err := envconfig.Process("MEDTRANS_BENCH", &env); err != nil {
		return Config{}, fmt.Errorf("bench config: %w", err)
	}

	cfg := Config{}
	drivers := strings.Join(env.DriverTokens, ",")
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	fs.StringVar(&cfg.BaseURL, "base-url", env.BaseURL, "API base URL")
	fs.StringVar(&cfg.DSN, "dsn", app.DB.DSN, "Postgres DSN")
	fs.StringVar(&cfg.RedisAddr, "redis", app.Redis.Addr, "Redis address")
	fs.StringVar(&cfg.RedisChannel, "redis-channel", app.Redis.Channel, "Redis realtime topic")
	fs.StringVar(&cfg.MigrationPath, "migration", env.MigrationPath, "Migration SQL path")
	fs.BoolVar(&cfg.ApplyMigration, "apply-migration", env.ApplyMigration, "Apply migration SQL before tests")
	fs.BoolVar(&cfg.Strict, "strict", env.Strict, "Fail on skipped tests")
	fs.DurationVar(&cfg.Timeout, "timeout", env.Timeout, "Total timeout")
	fs.DurationVar(&cfg.Duration, "duration", env.Duration, "Duration for perf tests")
	fs.IntVar(&cfg.Concurrency, "concurrency", env.Concurrency, "Concurrency for perf tests")
	fs.StringVar(&cfg.PatientToken, "patient-token", env.PatientToken, "ID token of a patient")
	fs.StringVar(&cfg.AdminToken, "admin-token", env.AdminToken, "ID token of an admin")
	fs.StringVar(&drivers, "driver-tokens", drivers, "Comma-separated ID tokens of distinct drivers")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.Concurrency <= 0 {
		return Config{}, fmt.Errorf("bench config: concurrency must be positive, got %d", cfg.Concurrency)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	for _, t := range strings.Split(drivers, ",") {
		if t = strings.TrimSpace(t); t != "" {
			cfg.DriverTokens = append(cfg.DriverTokens, t)
		}
	}
	return cfg, nil
}
