package config_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pkordes/trip-tracker/internal/config"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "LOG_LEVEL", "CORS_ORIGINS", "BACKEND", "SUPABASE_URL", "SUPABASE_ANON_KEY",
		"DATABASE_URL", "TOKEN_KEY", "SESSION_TTL", "COOKIE_SECURE", "SIGNIN_RATE",
		"SIGNIN_BURST", "MAX_BODY_BYTES", "MIGRATE_ON_START",
		"TRUSTED_PROXIES", "MAX_SESSIONS",
	} {
		t.Setenv(k, "")
	}
}

// TestLoad_defaults verifies that optional env vars fall back to their defaults
// when only the required supabase variables are provided.
func TestLoad_defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUPABASE_URL", "https://xyz.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon")

	cfg, err := config.Load()

	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, config.BackendSupabase, cfg.Backend)
	require.Equal(t, "https://xyz.supabase.co", cfg.SupabaseURL)
	require.Equal(t, "anon", cfg.SupabaseAnonKey)
	require.Nil(t, cfg.CORSOrigins)
	require.Equal(t, 30*time.Minute, cfg.SessionTTL)
	require.False(t, cfg.CookieSecure)
	require.Equal(t, 1.0, cfg.SignInRate)
	require.Equal(t, 5, cfg.SignInBurst)
	require.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	require.True(t, cfg.MigrateOnStart)
	require.Empty(t, cfg.TrustedProxies)
	require.Equal(t, 10000, cfg.MaxSessions)
}

// TestLoad_overrides verifies that all values can be overridden via env vars.
func TestLoad_overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://user:pass@db:5432/trips")
	t.Setenv("TOKEN_KEY", "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ORIGINS", "https://app.example.com, https://admin.example.com")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("SIGNIN_RATE", "0.5")
	t.Setenv("SIGNIN_BURST", "3")
	t.Setenv("MAX_BODY_BYTES", "4096")
	t.Setenv("MIGRATE_ON_START", "false")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.7")
	t.Setenv("MAX_SESSIONS", "50")

	cfg, err := config.Load()

	require.NoError(t, err)
	require.Equal(t, config.BackendPostgres, cfg.Backend)
	require.Equal(t, "9090", cfg.Port)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "postgres://user:pass@db:5432/trips", cfg.DatabaseURL)
	require.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORSOrigins)
	require.Equal(t, 2*time.Hour, cfg.SessionTTL)
	require.True(t, cfg.CookieSecure)
	require.Equal(t, 0.5, cfg.SignInRate)
	require.Equal(t, 3, cfg.SignInBurst)
	require.Equal(t, int64(4096), cfg.MaxBodyBytes)
	require.False(t, cfg.MigrateOnStart)
	require.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.7/32"),
	}, cfg.TrustedProxies)
	require.Equal(t, 50, cfg.MaxSessions)
}

// TestLoad_missingRequired verifies that the error names every missing
// variable for the selected backend.
func TestLoad_missingRequired(t *testing.T) {
	tests := []struct {
		backend string
		want    string
	}{
		{"", "required environment variables not set: SUPABASE_URL, SUPABASE_ANON_KEY"},
		{"postgres", "required environment variables not set: DATABASE_URL, TOKEN_KEY"},
	}

	for _, tc := range tests {
		t.Run(tc.backend, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("BACKEND", tc.backend)

			_, err := config.Load()

			require.EqualError(t, err, tc.want)
		})
	}
}

// TestLoad_memoryNeedsNothing verifies the development backend starts with
// no configuration at all.
func TestLoad_memoryNeedsNothing(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKEND", "memory")

	cfg, err := config.Load()

	require.NoError(t, err)
	require.Equal(t, config.BackendMemory, cfg.Backend)
}

// TestLoad_unknownBackend verifies that typos in BACKEND are rejected.
func TestLoad_unknownBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKEND", "sqlite")

	_, err := config.Load()

	require.ErrorContains(t, err, `got "sqlite"`)
}

// TestLoad_invalidValues verifies that malformed values are reported together.
func TestLoad_invalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKEND", "memory")
	t.Setenv("SESSION_TTL", "forever")
	t.Setenv("COOKIE_SECURE", "maybe")
	t.Setenv("SIGNIN_BURST", "-1")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,proxy.internal")

	_, err := config.Load()

	require.Error(t, err)
	require.ErrorContains(t, err, "SESSION_TTL")
	require.ErrorContains(t, err, "COOKIE_SECURE")
	require.ErrorContains(t, err, "SIGNIN_BURST")
	require.ErrorContains(t, err, `TRUSTED_PROXIES must list CIDRs or IP addresses, got "proxy.internal"`)
}

// TestDatabaseURL verifies the lookup used by `tripweb migrate`.
func TestDatabaseURL(t *testing.T) {
	clearEnv(t)

	_, err := config.DatabaseURL()
	require.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://localhost/trips")
	got, err := config.DatabaseURL()
	require.NoError(t, err)
	require.Equal(t, "postgres://localhost/trips", got)
}
