package config // package config loads application configuration from environment variables

import (
    "errors"
    "fmt"
    "io/fs"
    "strings"
    "time"

    "github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Policy windows are durations in Go syntax
// ("2h", "30m").
type Config struct {
    Env  string // application environment (e.g. "dev", "prod")
    Port string // HTTP port to listen on

    DBDriver   string // "mysql" or "sqlite"
    DBUser     string // database username
    DBPass     string // database password (optional)
    DBHost     string // database host address
    DBPort     string // database port number
    DBName     string // database name
    SQLitePath string // database file when DBDriver is sqlite

    JWTSecret    string // secret used to verify and sign JWTs
    AccessTTLMin int    // access token time-to-live in minutes (token command)

    CancelLeadTime     time.Duration // customers may cancel until starts_at minus this
    CheckInOpensBefore time.Duration // check-in opens this long before starts_at
    CheckInClosesAfter time.Duration // check-in closes this long after ends_at

    RabbitMQURL string // broker for reservation events; empty logs events only
    EventQueue  string // durable queue name for reservation events
    EventLogDir string // directory the consumer appends reservation.log to
}

// LoadDotEnv reads KEY=VALUE pairs from the given files (".env" when none
// are named) into the process environment.  Variables already set win.
// Missing files are not an error.
func LoadDotEnv(paths ...string) error {
    if len(paths) == 0 {
        paths = []string{".env"}
    }
    for _, p := range paths {
        if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
            return fmt.Errorf("load %s: %w", p, err)
        }
    }
    return nil
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must(); every missing or
// malformed variable is reported in one error.
func Load() (Config, error) {
    l := &loader{}
    cfg := Config{
        Env:  envStr("APP_ENV", "dev"),
        Port: envStr("APP_PORT", "8080"),

        DBDriver:   strings.ToLower(envStr("DB_DRIVER", "mysql")),
        DBPass:     envStr("DB_PASS", ""),
        SQLitePath: envStr("SQLITE_PATH", "data/reservations.db"),

        JWTSecret:    l.must("JWT_SECRET"),
        AccessTTLMin: l.intOr("ACCESS_TOKEN_TTL_MIN", 60),

        CancelLeadTime:     l.durOr("CANCEL_LEAD_TIME", 2*time.Hour),
        CheckInOpensBefore: l.durOr("CHECKIN_OPENS_BEFORE", 30*time.Minute),
        CheckInClosesAfter: l.durOr("CHECKIN_CLOSES_AFTER", 15*time.Minute),

        RabbitMQURL: envStr("RABBITMQ_URL", envStr("AMQP_URL", "")),
        EventQueue:  envStr("EVENT_QUEUE", "reservation.events"),
        EventLogDir: envStr("EVENT_LOG_DIR", "logs"),
    }
    switch cfg.DBDriver {
    case "mysql":
        cfg.DBUser = l.must("DB_USER")
        cfg.DBHost = l.must("DB_HOST")
        cfg.DBPort = l.must("DB_PORT")
        cfg.DBName = l.must("DB_NAME")
    case "sqlite":
    default:
        l.fail(fmt.Errorf("invalid DB_DRIVER %q (want mysql or sqlite)", cfg.DBDriver))
    }
    if cfg.AccessTTLMin < 1 {
        l.fail(fmt.Errorf("ACCESS_TOKEN_TTL_MIN must be positive"))
    }
    for key, d := range map[string]time.Duration{
        "CANCEL_LEAD_TIME":     cfg.CancelLeadTime,
        "CHECKIN_OPENS_BEFORE": cfg.CheckInOpensBefore,
        "CHECKIN_CLOSES_AFTER": cfg.CheckInClosesAfter,
    } {
        if d < 0 {
            l.fail(fmt.Errorf("%s must not be negative", key))
        }
    }
    if err := l.err(); err != nil {
        return Config{}, err
    }
    return cfg, nil
}

// loader collects configuration errors so that all of them are reported
// at once instead of failing on the first.
type loader struct {
    errs []error
}

func (l *loader) fail(err error) { l.errs = append(l.errs, err) }

func (l *loader) err() error { return errors.Join(l.errs...) }

// must retrieves the value of a required environment variable.
func (l *loader) must(key string) string {
    v := envStr(key, "")
    if v == "" {
        l.fail(fmt.Errorf("missing required env var: %s", key))
    }
    return v
}

// intOr is like envInt but reports malformed values instead of silently
// falling back.
func (l *loader) intOr(key string, def int) int {
    if envStr(key, "") == "" {
        return def
    }
    n, ok := parseInt(envStr(key, ""))
    if !ok {
        l.fail(fmt.Errorf("invalid int for %s: %q", key, envStr(key, "")))
        return def
    }
    return n
}

func (l *loader) durOr(key string, def time.Duration) time.Duration {
    v := envStr(key, "")
    if v == "" {
        return def
    }
    d, err := time.ParseDuration(v)
    if err != nil {
        l.fail(fmt.Errorf("invalid duration for %s: %q", key, v))
        return def
    }
    return d
}
