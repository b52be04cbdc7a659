// internal/config/config.go
package config

import (
	"log/slog"
	"os"
	"time"
)

// App holds everything circulationd reads from the environment.
type App struct {
	Port                 string
	DatabaseURL          string
	OTLPEndpoint         string
	Env                  string
	HoldSweepInterval    time.Duration
	OverdueSweepInterval time.Duration
}

func Load() App {
	return App{
		Port:                 getenv("PORT", "8082"),
		DatabaseURL:          must("DATABASE_URL"),
		OTLPEndpoint:         os.Getenv("OTLP_ENDPOINT"),
		Env:                  getenv("APP_ENV", "dev"),
		HoldSweepInterval:    duration("HOLD_SWEEP_INTERVAL", time.Hour),
		OverdueSweepInterval: duration("OVERDUE_SWEEP_INTERVAL", 24*time.Hour),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		slog.Error("required env missing", "key", k)
		panic("missing env " + k)
	}
	return v
}

func duration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Error("invalid duration env, using default", "key", k, "value", v, "default", def)
		return def
	}
	return d
}
