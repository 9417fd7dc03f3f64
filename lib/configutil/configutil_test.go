package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Cookie string `json:"cookie"`
	Pages  int    `json:"pages"`
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scraper.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{cookie: "SUB=abc", pages: 3}`), 0644))

	cfg, err := ReadConfig[testConfig](path)
	require.NoError(t, err)
	require.Equal(t, testConfig{Cookie: "SUB=abc", Pages: 3}, cfg)
}

func TestReadConfigLocalOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "scraper.json5"),
		[]byte(`{cookie: "SUB=abc", pages: 3}`), 0644))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "scraper.local.json5"),
		[]byte(`{cookie: "SUB=realcookie"}`), 0644))

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "scraper.json5"))
	require.NoError(t, err)
	require.Equal(t, "SUB=realcookie", cfg.Cookie)
	require.Equal(t, 3, cfg.Pages)
}

func TestReadConfigNotFound(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "scraper.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
