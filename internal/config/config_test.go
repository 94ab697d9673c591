package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadSQLiteDefaults(t *testing.T) {
	cfg, err := LoadFrom(lookupFrom(map[string]string{
		"JWT_SECRET": "s",
		"DB_DRIVER":  "SQLite",
	}))
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "growfi.db", cfg.DBPath)
	assert.Equal(t, 15, cfg.AccessTTLMin)
	assert.Equal(t, "disabled", cfg.LedgerMode)
	assert.Equal(t, 30*time.Second, cfg.LedgerCallTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL)
	assert.Equal(t, "logs", cfg.LogDir)
	assert.False(t, cfg.ConsumerEnabled)
}

func TestLoadMySQLRequiresConnection(t *testing.T) {
	_, err := LoadFrom(lookupFrom(map[string]string{"JWT_SECRET": "s"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_USER")
	assert.Contains(t, err.Error(), "DB_NAME")

	cfg, err := LoadFrom(lookupFrom(map[string]string{
		"JWT_SECRET": "s", "DB_USER": "app", "DB_HOST": "db", "DB_PORT": "3306", "DB_NAME": "growfi",
	}))
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, "db", cfg.DBHost)
}

func TestLoadReportsAllProblems(t *testing.T) {
	_, err := LoadFrom(lookupFrom(map[string]string{
		"DB_DRIVER":              "sqlite",
		"BCRYPT_COST":            "lots",
		"LEDGER_MODE":            "gateway",
		"LEDGER_CALL_TIMEOUT":    "soon",
		"SESSION_IDLE_TTL":       "15m",
		"QUEUE_CONSUMER_ENABLED": "yes",
	}))
	require.Error(t, err)
	for _, want := range []string{"JWT_SECRET", "BCRYPT_COST", "LEDGER_GATEWAY_URL", "LEDGER_CALL_TIMEOUT"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadLedgerModes(t *testing.T) {
	base := map[string]string{"JWT_SECRET": "s", "DB_DRIVER": "sqlite", "LEDGER_MODE": "Simulate", "LEDGER_CALL_TIMEOUT": "5s"}
	cfg, err := LoadFrom(lookupFrom(base))
	require.NoError(t, err)
	assert.Equal(t, "simulate", cfg.LedgerMode)
	assert.Equal(t, 5*time.Second, cfg.LedgerCallTimeout)

	base["LEDGER_MODE"] = "mainnet"
	_, err = LoadFrom(lookupFrom(base))
	assert.Error(t, err)
}

func TestRabbitURLFallsBackToAMQPURL(t *testing.T) {
	cfg, err := LoadFrom(lookupFrom(map[string]string{"JWT_SECRET": "s", "DB_DRIVER": "sqlite", "AMQP_URL": "amqp://x/"}))
	require.NoError(t, err)
	assert.Equal(t, "amqp://x/", cfg.RabbitURL)
}

func TestLoadDotenvDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GROWFI_TEST_A=from-file\nGROWFI_TEST_B=from-file\n"), 0o644))
	t.Setenv("GROWFI_TEST_A", "from-env")
	t.Cleanup(func() { os.Unsetenv("GROWFI_TEST_B") })

	require.NoError(t, LoadDotenv(path))
	assert.Equal(t, "from-env", os.Getenv("GROWFI_TEST_A"))
	assert.Equal(t, "from-file", os.Getenv("GROWFI_TEST_B"))

	assert.NoError(t, LoadDotenv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestRateLimitConfigNormalizes(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 10*time.Second, cfg.TTL)
	assert.Equal(t, "growfi:rl", cfg.Prefix)
}

func TestCacheAndRedisConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	c := LoadCacheConfig()
	assert.True(t, c.Methods["GET"])
	assert.True(t, c.Methods["HEAD"])
	assert.Equal(t, "cache:6380", LoadRedisConfig().Addr)
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger("debug", "console")
	require.NoError(t, err)
	assert.NotNil(t, log)

	_, err = NewLogger("loud", "json")
	assert.Error(t, err)
	_, err = NewLogger("info", "xml")
	assert.Error(t, err)
}
