package config

import (
	"os"
	"strconv"
	"time"
)

// Config is read once at startup from the environment. Every field has
// a default suitable for local development; only DATABASE_URL changes
// behavior structurally (unset runs the in-memory store).
type Config struct {
	Port        string
	DatabaseURL string

	PairCount      int
	RoundSeconds   int
	CountdownTicks int
	RevealDelay    time.Duration

	PayoutRetryInterval time.Duration
}

func Load() Config {
	return Config{
		Port:                envStr("PORT", "8080"),
		DatabaseURL:         envStr("DATABASE_URL", ""),
		PairCount:           envInt("PAIR_COUNT", 9),
		RoundSeconds:        envInt("ROUND_SECONDS", 60),
		CountdownTicks:      envInt("COUNTDOWN_TICKS", 3),
		RevealDelay:         envDuration("REVEAL_DELAY", 800*time.Millisecond),
		PayoutRetryInterval: envDuration("PAYOUT_RETRY_INTERVAL", time.Minute),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
