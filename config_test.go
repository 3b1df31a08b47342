package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntaxErrorAt(t *testing.T) {
	src := "ab\ncd\nef\n"
	cerr := syntaxErrorAt(strings.NewReader(src), "c.json", 4, io.ErrUnexpectedEOF)
	assert.Equal(t, 2, cerr.Line)
	assert.Equal(t, 1, cerr.Pos)
	assert.Equal(t, "c.json", cerr.File)
	assert.ErrorIs(t, cerr, io.ErrUnexpectedEOF)

	cerr = syntaxErrorAt(strings.NewReader(src), "c.json", 1, io.ErrUnexpectedEOF)
	assert.Equal(t, 1, cerr.Line)
	assert.Equal(t, 1, cerr.Pos)

	cerr = syntaxErrorAt(strings.NewReader(src), "c.json", 100, io.ErrUnexpectedEOF)
	assert.Equal(t, 4, cerr.Line, "offsets past the end stop at the last line")
}

func TestDecodeConfigSyntaxError(t *testing.T) {
	src := "{\n  \"server\": {},\n  oops\n}\n"
	var cfg Config
	err := decodeConfig(&cfg, strings.NewReader(src), "config.json")

	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 3, cerr.Line)
	assert.Equal(t, "config.json", cerr.File)
	assert.Contains(t, err.Error(), "Line: 3")
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(file, []byte(`{
  "workers": {"url": "https://workers.example"},
  "site": {"perPage": 24},
  "log": {"level": "debug"}
}`), 0644))

	t.Setenv("WORKERS_API_URL", "")
	var cfg Config
	require.NoError(t, loadConfig(&cfg, file, false))
	assert.Equal(t, "https://workers.example", cfg.Workers.Url)
	assert.Equal(t, 24, cfg.Site.PerPage)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 86400, cfg.Cache.DetailTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigEnvOverrideAndMissingFile(t *testing.T) {
	t.Setenv("WORKERS_API_URL", "https://env.example")
	missing := filepath.Join(t.TempDir(), "absent.json")

	var cfg Config
	require.NoError(t, loadConfig(&cfg, missing, true))
	assert.Equal(t, "https://env.example", cfg.Workers.Url)
	assert.Equal(t, DefaultPerPage, cfg.Site.PerPage)

	var strict Config
	assert.Error(t, loadConfig(&strict, missing, false))
}
