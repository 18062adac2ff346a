package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(strings.NewReader("hello"))
	require.NoError(t, err)
	b, err := Fingerprint(strings.NewReader("hello"))
	require.NoError(t, err)
	c, err := Fingerprint(strings.NewReader("hello!"))
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	_, err = FingerprintFile(filepath.Join(t.TempDir(), "none"))
	assert.Error(t, err)
}

func TestInspectReadyDataset(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "metadata.csv"), "001|first\n002|second\n003|third\n")
	write(t, filepath.Join(dir, "wav", "001.wav"), "RIFF1")
	write(t, filepath.Join(dir, "wav", "002.wav"), "RIFF2")
	write(t, filepath.Join(dir, "wav", "extra.flac"), "fLaC")
	write(t, filepath.Join(dir, "wav", "notes.txt"), "ignored")

	r, err := Inspect(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "wav"), r.AudioDir)
	assert.Len(t, r.AudioFiles, 3)
	assert.True(t, r.Check.Valid)
	assert.NoError(t, r.Ready())
	assert.Equal(t, []string{"003"}, r.Missing)
	assert.Equal(t, []string{"extra.flac"}, r.Orphans)
	assert.Equal(t, int64(len("001|first\n002|second\n003|third\n")+5+5+4), r.SizeBytes)
	assert.Equal(t, "0", r.SizeMB().String())

	before := r.Fingerprint
	write(t, filepath.Join(dir, "wav", "002.wav"), "RIFF2-changed")
	r, err = Inspect(dir)
	require.NoError(t, err)
	assert.NotEqual(t, before, r.Fingerprint)
}

func TestInspectReportsProblems(t *testing.T) {
	t.Run("no metadata", func(t *testing.T) {
		dir := t.TempDir()
		write(t, filepath.Join(dir, "a.wav"), "RIFF")
		r, err := Inspect(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, r.AudioDir)
		assert.EqualError(t, r.Ready(), "metadata.csv not found")
	})
	t.Run("invalid metadata", func(t *testing.T) {
		dir := t.TempDir()
		write(t, filepath.Join(dir, "metadata.csv"), "a|\nb\n")
		write(t, filepath.Join(dir, "wav", "a.wav"), "RIFF")
		r, err := Inspect(dir)
		require.NoError(t, err)
		assert.EqualError(t, r.Ready(), "metadata invalid: line 1: text must not be empty (and 1 more)")
	})
	t.Run("no audio", func(t *testing.T) {
		dir := t.TempDir()
		write(t, filepath.Join(dir, "metadata.csv"), "a|hello\n")
		r, err := Inspect(dir)
		require.NoError(t, err)
		assert.EqualError(t, r.Ready(), "no audio files found")
	})
	t.Run("not a directory", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "file")
		write(t, p, "x")
		_, err := Inspect(p)
		assert.Error(t, err)
	})
}
