package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "time"    // time is used for duration-typed settings
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Database, JWT and broker settings follow the
// usual twelve-factor layout; the Show* fields are the knobs the
// coordination core exposes: heartbeat timeout, announcement backfill
// depth, session code shape and the cue-firing policy.
type Config struct {
    Env            string // application environment (e.g. "dev", "prod")
    Port           string // HTTP port to listen on
    DBUser         string // database username
    DBPass         string // database password (optional)
    DBHost         string // database host address
    DBPort         string // database port number
    DBName         string // database name
    JWTSecret      string // secret used to sign JWTs
    AccessTTLMin   int    // access token time-to-live in minutes
    RefreshTTLDays int    // refresh token time-to-live in days
    BcryptCost     int    // bcrypt cost for password hashing

    HeartbeatTimeout     time.Duration // silence after which an operator is presumed offline
    AnnouncementBackfill int           // how many past announcements a late joiner receives
    CodeAlphabet         string        // characters a session code is drawn from
    CodeLength           int           // session code length
    CodeRetries          int           // collision retries before CodeExhausted
    GoHold               time.Duration // how long a cue stays in "go" before auto-completing
    AdvanceOnGo          bool          // if true, Next() is applied automatically after complete
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  The show knobs all
// have defaults matching a typical theatre setup.
func Load() Config {
    return Config{
        Env:            must("APP_ENV"),
        Port:           must("APP_PORT"),
        DBUser:         must("DB_USER"),
        DBPass:         os.Getenv("DB_PASS"), // empty allowed
        DBHost:         must("DB_HOST"),
        DBPort:         must("DB_PORT"),
        DBName:         must("DB_NAME"),
        JWTSecret:      must("JWT_SECRET"),
        AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
        RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
        BcryptCost:     mustInt("BCRYPT_COST"),

        HeartbeatTimeout:     envDur("HEARTBEAT_TIMEOUT", 30*time.Second),
        AnnouncementBackfill: envInt("ANNOUNCEMENT_BACKFILL", 20),
        CodeAlphabet:         envStr("SESSION_CODE_ALPHABET", "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"),
        CodeLength:           envInt("SESSION_CODE_LENGTH", 6),
        CodeRetries:          envInt("SESSION_CODE_RETRIES", 10),
        GoHold:               envDur("GO_HOLD", time.Second),
        AdvanceOnGo:          envBool("ADVANCE_ON_GO", false),
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}
