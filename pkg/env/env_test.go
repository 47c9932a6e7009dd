package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStringFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(path, []byte("  from-file\n"), 0o600))

	t.Setenv("STRIPE_SECRET_KEY", "from-env")
	assert.Equal(t, "from-env", GetStringFromFile("STRIPE_SECRET_KEY", "default"))

	t.Setenv("STRIPE_SECRET_KEY_FILE", path)
	assert.Equal(t, "from-file", GetStringFromFile("STRIPE_SECRET_KEY", "default"))

	t.Setenv("STRIPE_SECRET_KEY_FILE", filepath.Join(dir, "missing"))
	assert.Equal(t, "from-env", GetStringFromFile("STRIPE_SECRET_KEY", "default"))
}

func TestTypedGetters(t *testing.T) {
	t.Setenv("CS_INT", "42")
	t.Setenv("CS_BAD_INT", "nope")
	t.Setenv("CS_BOOL", "true")
	t.Setenv("CS_DURATION", "90s")
	t.Setenv("CS_SLICE", "a, b,,c ")

	assert.Equal(t, 42, GetInt("CS_INT", 1))
	assert.Equal(t, 1, GetInt("CS_BAD_INT", 1))
	assert.True(t, GetBool("CS_BOOL", false))
	assert.Equal(t, 90*time.Second, GetDuration("CS_DURATION", time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, GetSlice("CS_SLICE", nil))
	assert.Equal(t, []string{"x"}, GetSlice("CS_UNSET_SLICE", []string{"x"}))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CS_DOTENV_VALUE=loaded\n"), 0o600))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("CS_DOTENV_VALUE"))
	os.Unsetenv("CS_DOTENV_VALUE")

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env")))
}
