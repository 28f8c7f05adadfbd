// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted in BACKEND.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all configuration values for the web server.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Empty by default: the pages are served same-origin.
	CORSOrigins []string

	// Backend selects the persistence and auth provider:
	// supabase (default), postgres or memory.
	Backend string

	// SupabaseURL and SupabaseAnonKey locate the hosted project.
	// Required when Backend is supabase.
	SupabaseURL     string
	SupabaseAnonKey string

	// DatabaseURL is the Postgres connection string.
	// Required when Backend is postgres, and by `tripweb migrate`.
	DatabaseURL string

	// TokenKey is the 64-hex-character key for session tokens.
	// Required when Backend is postgres.
	TokenKey string

	// SessionTTL is how long a browser session may stay idle before its
	// shell is closed. Also the lifetime of postgres session tokens.
	SessionTTL time.Duration

	// CookieSecure sets the Secure attribute on the session cookie.
	CookieSecure bool

	// SignInRate and SignInBurst limit POST /sign-in per client IP.
	SignInRate  float64
	SignInBurst int

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64

	// MigrateOnStart applies pending migrations when serving with postgres.
	MigrateOnStart bool

	// TrustedProxies lists the peers (CIDRs or single addresses) whose
	// X-Forwarded-For and X-Real-IP headers are honoured. Empty by default.
	TrustedProxies []netip.Prefix

	// MaxSessions caps the number of live browser sessions. Defaults to 10000.
	MaxSessions int
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error listing any required variables that are not set, or
// describing the first value that cannot be parsed.
func Load() (Config, error) {
	cfg := Config{
		Port:            getEnv("PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		CORSOrigins:     splitCSV(os.Getenv("CORS_ORIGINS")),
		Backend:         strings.ToLower(getEnv("BACKEND", BackendSupabase)),
		SupabaseURL:     os.Getenv("SUPABASE_URL"),
		SupabaseAnonKey: os.Getenv("SUPABASE_ANON_KEY"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		TokenKey:        os.Getenv("TOKEN_KEY"),
	}

	var errs []error
	var err error
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 30*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if cfg.CookieSecure, err = getBool("COOKIE_SECURE", false); err != nil {
		errs = append(errs, err)
	}
	if cfg.SignInRate, err = getFloat("SIGNIN_RATE", 1); err != nil {
		errs = append(errs, err)
	}
	if cfg.SignInBurst, err = getInt("SIGNIN_BURST", 5); err != nil {
		errs = append(errs, err)
	}
	maxBody, err := getInt("MAX_BODY_BYTES", 1<<20)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.MaxBodyBytes = int64(maxBody)
	if cfg.MigrateOnStart, err = getBool("MIGRATE_ON_START", true); err != nil {
		errs = append(errs, err)
	}
	if cfg.TrustedProxies, err = getPrefixes("TRUSTED_PROXIES"); err != nil {
		errs = append(errs, err)
	}
	if cfg.MaxSessions, err = getInt("MAX_SESSIONS", 10000); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	var missing []string
	switch cfg.Backend {
	case BackendSupabase:
		if cfg.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if cfg.SupabaseAnonKey == "" {
			missing = append(missing, "SUPABASE_ANON_KEY")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
		if cfg.TokenKey == "" {
			missing = append(missing, "TOKEN_KEY")
		}
	case BackendMemory:
	default:
		return Config{}, fmt.Errorf("BACKEND must be one of %s, %s, %s; got %q",
			BackendSupabase, BackendPostgres, BackendMemory, cfg.Backend)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// DatabaseURL returns DATABASE_URL for commands that only need the database,
// such as `tripweb migrate`.
func DatabaseURL() (string, error) {
	v := os.Getenv("DATABASE_URL")
	if v == "" {
		return "", errors.New("required environment variables not set: DATABASE_URL")
	}
	return v, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration such as 30m, got %q", key, v)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false, got %q", key, v)
	}
	return b, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("%s must be a positive number, got %q", key, v)
	}
	return f, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

// getPrefixes parses a comma-separated list of CIDRs. A bare address is
// taken as a single-host prefix.
func getPrefixes(key string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, v := range splitCSV(os.Getenv(key)) {
		if p, err := netip.ParsePrefix(v); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("%s must list CIDRs or IP addresses, got %q", key, v)
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out, nil
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
