package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"PIPER_API_URL", "PIPER_TIMEOUT", "PIPER_DATA_DIR", "PIPER_HISTORY_DB", "PIPER_DOWNLOAD_DIR", "PIPER_REMOTE_INTERVAL"} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	c, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000", c.Server.BaseURL)
	assert.Equal(t, 30*time.Second, c.TimeoutDuration())

	iv := c.Intervals()
	assert.Equal(t, 2*time.Second, iv.Training)
	assert.Equal(t, 2*time.Second, iv.Export)
	assert.Equal(t, 5*time.Second, iv.Remote)
	assert.Equal(t, 2*time.Second, iv.Transcription)
	assert.Equal(t, "history.db", filepath.Base(c.HistoryPath()))
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	c, err := Load(filepath.Join(dir, DefaultFile), filepath.Join(dir, DefaultEnvFile))
	require.NoError(t, err)
	assert.Equal(t, Default().Server, c.Server)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, DefaultFile)
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
server:
  base_url: http://trainer:8080
  timeout: 10
polling:
  remote: 7
storage:
  data_dir: `+dir+`
  history_db: journal.db
`), 0o644))

	c, err := Load(cfgPath, "")
	require.NoError(t, err)
	assert.Equal(t, "http://trainer:8080", c.Server.BaseURL)
	assert.Equal(t, 7*time.Second, c.Intervals().Remote)
	assert.Equal(t, 2*time.Second, c.Intervals().Training)
	assert.Equal(t, filepath.Join(dir, "journal.db"), c.HistoryPath())
	assert.Equal(t, filepath.Join(dir, "downloads"), c.DownloadPath())

	envPath := filepath.Join(dir, DefaultEnvFile)
	require.NoError(t, os.WriteFile(envPath, []byte("PIPER_TIMEOUT=45s\n"), 0o644))
	t.Setenv("PIPER_API_URL", "https://gpu.example.com")
	t.Setenv("PIPER_DOWNLOAD_DIR", "/tmp/pkgs")
	os.Unsetenv("PIPER_TIMEOUT")

	c, err = Load(cfgPath, envPath)
	require.NoError(t, err)
	assert.Equal(t, "https://gpu.example.com", c.Server.BaseURL)
	assert.Equal(t, 45*time.Second, c.TimeoutDuration())
	assert.Equal(t, "/tmp/pkgs", c.DownloadPath())
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server: [oops"), 0o644))
	_, err := Load(bad, "")
	assert.ErrorContains(t, err, "parse config file")

	t.Setenv("PIPER_API_URL", "localhost:5000")
	_, err = Load("", "")
	assert.ErrorContains(t, err, "server.base_url must be an http(s) URL")
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", " 12 ")
	t.Setenv("X_BAD", "twelve")
	assert.Equal(t, 12, envInt("X_INT", 1))
	assert.Equal(t, 1, envInt("X_BAD", 1))

	for _, v := range []string{"1", "true", "YES", "y", "on"} {
		t.Setenv("X_BOOL", v)
		assert.True(t, envBool("X_BOOL", false), v)
	}
	for _, v := range []string{"0", "false", "No", "n", "off"} {
		t.Setenv("X_BOOL", v)
		assert.False(t, envBool("X_BOOL", true), v)
	}
	t.Setenv("X_BOOL", "maybe")
	assert.True(t, envBool("X_BOOL", true))

	t.Setenv("X_DUR", "90")
	assert.Equal(t, 90*time.Second, envDuration("X_DUR", time.Second))
	t.Setenv("X_DUR", "2m")
	assert.Equal(t, 2*time.Minute, envDuration("X_DUR", time.Second))
	t.Setenv("X_DUR", "soon")
	assert.Equal(t, time.Second, envDuration("X_DUR", time.Second))
}

func TestTimeoutRoundsUp(t *testing.T) {
	clearEnv(t)
	t.Setenv("PIPER_TIMEOUT", "500ms")
	c, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, time.Second, c.TimeoutDuration())

	t.Setenv("PIPER_TIMEOUT", "1500ms")
	c, err = Load("", "")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, c.TimeoutDuration())

	assert.Equal(t, 0, ceilSeconds(0))
	assert.Equal(t, 30, ceilSeconds(30*time.Second))
}
