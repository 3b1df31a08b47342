package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const defaultConfigFile = "conf/config.json"

type Config struct {
	Server struct {
		Addr string `json:"addr"`
	} `json:"server"`
	Workers struct {
		Url            string `json:"url"`
		TimeoutSeconds int    `json:"timeoutSeconds"`
	} `json:"workers"`
	Site struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		PerPage     int    `json:"perPage"`
		SessionTTL  int    `json:"sessionTtlMinutes"`
	} `json:"site"`
	Cache struct {
		Database        string `json:"database"`
		DetailTTL       int    `json:"detailTtlSeconds"`
		SimilarTTL      int    `json:"similarTtlSeconds"`
		PurgeIntervalMn int    `json:"purgeIntervalMinutes"`
	} `json:"cache"`
	Log struct {
		Level string `json:"level"`
		Json  bool   `json:"json"`
	} `json:"log"`
	Debug struct {
		PrettyJson bool `json:"prettyJson"`
	} `json:"debug"`
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Workers.TimeoutSeconds <= 0 {
		cfg.Workers.TimeoutSeconds = 10
	}
	if cfg.Site.Title == "" {
		cfg.Site.Title = "Unlimited Free Images - doodoo"
	}
	if cfg.Site.Description == "" {
		cfg.Site.Description = "Unlimited free stock image site. Download high-quality, commercially usable photos for free."
	}
	if cfg.Site.PerPage <= 0 {
		cfg.Site.PerPage = DefaultPerPage
	}
	if cfg.Site.SessionTTL <= 0 {
		cfg.Site.SessionTTL = 60
	}
	if cfg.Cache.DetailTTL <= 0 {
		cfg.Cache.DetailTTL = 86400
	}
	if cfg.Cache.SimilarTTL <= 0 {
		cfg.Cache.SimilarTTL = 3600
	}
	if cfg.Cache.PurgeIntervalMn <= 0 {
		cfg.Cache.PurgeIntervalMn = 60
	}
}

func (cfg *Config) WorkersTimeout() time.Duration {
	return time.Duration(cfg.Workers.TimeoutSeconds) * time.Second
}

// ConfigError reports a malformed config file with the line and column of the
// offending byte.
type ConfigError struct {
	File string
	Line int
	Pos  int
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("unable to decode configuration file %s (Line: %d, Pos: %d): %v", e.File, e.Line, e.Pos, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// loadConfig reads filename into cfg. A missing file is not an error when
// optional is set, so the site can run on defaults plus environment. The
// WORKERS_API_URL environment variable overrides the file.
func loadConfig(cfg *Config, filename string, optional bool) error {
	f, err := os.Open(filename)
	switch {
	case err == nil:
		defer f.Close()
		if err := decodeConfig(cfg, f, filename); err != nil {
			return err
		}
	case optional && errors.Is(err, os.ErrNotExist):
	default:
		return err
	}

	if url := os.Getenv("WORKERS_API_URL"); url != "" {
		cfg.Workers.Url = url
	}
	cfg.applyDefaults()
	return nil
}

func decodeConfig(cfg *Config, f io.ReadSeeker, filename string) error {
	decoder := json.NewDecoder(f)
	switch err := decoder.Decode(cfg).(type) {
	case nil:
		return nil
	case *json.SyntaxError:
		if _, serr := f.Seek(0, io.SeekStart); serr != nil {
			return err
		}
		return syntaxErrorAt(f, filename, err.Offset, err)
	default:
		return fmt.Errorf("decode %s: %w", filename, err)
	}
}

// syntaxErrorAt turns a byte offset into the 1-based line of the config file
// and the column within that line.
func syntaxErrorAt(r io.Reader, filename string, offset int64, err error) *ConfigError {
	cerr := &ConfigError{File: filename, Line: 1, Err: err}
	br := bufio.NewReader(r)
	var lineStart int64
	for i := int64(0); i < offset; i++ {
		b, rerr := br.ReadByte()
		if rerr != nil {
			break
		}
		if b == '\n' {
			cerr.Line++
			lineStart = i + 1
		}
	}
	cerr.Pos = int(offset - lineStart)
	return cerr
}
