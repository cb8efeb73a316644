package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("MARKET_TEST_STR", "value")
	t.Setenv("MARKET_TEST_INT", "42")
	t.Setenv("MARKET_TEST_BAD_INT", "nope")
	t.Setenv("MARKET_TEST_DUR", "90s")
	t.Setenv("MARKET_TEST_DUR_SECONDS", "30")
	t.Setenv("MARKET_TEST_BOOL", "false")

	assert.Equal(t, "value", Env("MARKET_TEST_STR", "def"))
	assert.Equal(t, "def", Env("MARKET_TEST_MISSING", "def"))
	assert.Equal(t, 42, EnvInt("MARKET_TEST_INT", 1))
	assert.Equal(t, 1, EnvInt("MARKET_TEST_BAD_INT", 1))
	assert.Equal(t, int64(42), EnvInt64("MARKET_TEST_INT", 1))
	assert.Equal(t, 90*time.Second, EnvDuration("MARKET_TEST_DUR", time.Minute))
	assert.Equal(t, 30*time.Second, EnvDuration("MARKET_TEST_DUR_SECONDS", time.Minute))
	assert.Equal(t, time.Minute, EnvDuration("MARKET_TEST_MISSING", time.Minute))
	assert.False(t, EnvBool("MARKET_TEST_BOOL", true))
	assert.True(t, EnvBool("MARKET_TEST_MISSING", true))
}

func TestDedup(t *testing.T) {
	got := Dedup([]string{"https://a.io/", "https://a.io", "", "https://b.io"})
	assert.Equal(t, []string{"https://a.io", "https://b.io"}, got)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `a\*b\?c\[d\]`, EscapeGlob("a*b?c[d]"))
	assert.Equal(t, "plain", EscapeGlob("plain"))
}

func TestHashOrRead(t *testing.T) {
	hash, err := HashOrRead("secret")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword(hash, []byte("secret")))

	again, err := HashOrRead(string(hash))
	require.NoError(t, err)
	assert.Equal(t, hash, again)
}
