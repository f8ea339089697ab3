package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Small readers for the optional middleware settings, which keep working
// with defaults when the variables are absent.

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}

func envSet(k, d string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(envStr(k, d), ",") {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			m[p] = true
		}
	}
	return m
}
