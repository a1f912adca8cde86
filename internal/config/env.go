package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// Helpers shared by the loaders in this package.  Unset or empty variables
// yield the default; malformed values yield the default too, except in
// Load where they are reported.

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
    if n, ok := parseInt(os.Getenv(k)); ok {
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

func parseInt(s string) (int, bool) {
    n, err := strconv.Atoi(strings.TrimSpace(s))
    return n, err == nil
}
