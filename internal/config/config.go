// Package config loads the YAML configuration file and validates it
// against an embedded CUE schema that also supplies the defaults.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// EnvAPIKey overrides remote.api_key when set, so the key can stay out of
// the file.
const EnvAPIKey = "STOCKPRO_API_KEY"

// Config is the validated configuration.
type Config struct {
	DBPath  string
	Owner   string
	Demo    bool
	Remote  Remote
	Sync    Sync
	Log     Log
	Metrics Metrics
}

type Remote struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

type Sync struct {
	Interval      time.Duration
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

type Log struct {
	Level  string
	Format string
}

type Metrics struct {
	Addr string
}

// SlogLevel maps the configured level onto slog.
func (l Log) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// HasRemote reports whether a remote store is configured.
func (c Config) HasRemote() bool {
	return c.Remote.URL != ""
}

// raw mirrors the schema; the CUE value decodes into it.
type raw struct {
	DBPath string `json:"db_path"`
	Owner  string `json:"owner"`
	Demo   bool   `json:"demo"`
	Remote struct {
		URL     string `json:"url"`
		APIKey  string `json:"api_key"`
		Timeout string `json:"timeout"`
	} `json:"remote"`
	Sync struct {
		Interval      string `json:"interval"`
		ProbeInterval string `json:"probe_interval"`
		ProbeTimeout  string `json:"probe_timeout"`
	} `json:"sync"`
	Log struct {
		Level  string `json:"level"`
		Format string `json:"format"`
	} `json:"log"`
	Metrics struct {
		Addr string `json:"addr"`
	} `json:"metrics"`
}

// Load reads the file at path. An empty path yields the defaults.
func Load(path string) (Config, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		data = b
	}
	cfg, err := Parse(data)
	if err != nil {
		if path != "" {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
		return Config{}, err
	}
	return cfg, nil
}

// Parse validates YAML bytes against the schema and applies defaults and
// the environment override.
func Parse(data []byte) (Config, error) {
	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", describe(err))
	}

	var r raw
	if err := v.Decode(&r); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if key := os.Getenv(EnvAPIKey); key != "" {
		r.Remote.APIKey = key
	}
	return r.config()
}

func (r raw) config() (Config, error) {
	cfg := Config{
		DBPath:  r.DBPath,
		Owner:   r.Owner,
		Demo:    r.Demo,
		Remote:  Remote{URL: r.Remote.URL, APIKey: r.Remote.APIKey},
		Log:     Log{Level: r.Log.Level, Format: r.Log.Format},
		Metrics: Metrics{Addr: r.Metrics.Addr},
	}
	durations := []struct {
		field string
		src   string
		dst   *time.Duration
	}{
		{"remote.timeout", r.Remote.Timeout, &cfg.Remote.Timeout},
		{"sync.interval", r.Sync.Interval, &cfg.Sync.Interval},
		{"sync.probe_interval", r.Sync.ProbeInterval, &cfg.Sync.ProbeInterval},
		{"sync.probe_timeout", r.Sync.ProbeTimeout, &cfg.Sync.ProbeTimeout},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.src)
		if err != nil {
			return Config{}, fmt.Errorf("invalid config: %s: %w", d.field, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("invalid config: %s: must be positive", d.field)
		}
		*d.dst = parsed
	}
	return cfg, nil
}

// describe flattens a CUE error list into one readable error.
func describe(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	return fmt.Errorf("%s", cueerrors.Details(err, nil))
}
