// Package config loads askdb's settings: defaults, then an optional YAML
// file, then ASKDB_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/askdb/internal/database"
	"github.com/koustreak/askdb/internal/errs"
	"github.com/koustreak/askdb/internal/filestore"
	"github.com/koustreak/askdb/internal/llm"
	"github.com/koustreak/askdb/internal/logger"
	"github.com/koustreak/askdb/internal/nl2sql"
	"go.yaml.in/yaml/v3"
)

// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(string) (string, bool)

type Config struct {
	Log       LogConfig        `yaml:"log"`
	Database  DatabaseConfig   `yaml:"database"`
	LLM       llm.Config       `yaml:"llm"`
	Synthesis SynthesisConfig  `yaml:"synthesis"`
	HTTP      HTTPConfig       `yaml:"http"`
	FileStore filestore.Config `yaml:"filestore"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DatabaseConfig struct {
	// Location is connected at startup when set. See session.Kind for the
	// accepted forms.
	Location string `yaml:"location"`
	// Sample is what the "sample" location resolves to.
	Sample         string        `yaml:"sample"`
	MaxRows        int           `yaml:"max_rows"`
	QueryTimeout   time.Duration `yaml:"query_timeout"`
	SampleRows     int           `yaml:"sample_rows"`
	MaxConns       int32         `yaml:"max_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// ScriptMaxBytes caps SQL scripts fetched for script locations.
	ScriptMaxBytes int64 `yaml:"script_max_bytes"`
}

type SynthesisConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	GenerationTimeout time.Duration `yaml:"generation_timeout"`
	ExecutionTimeout  time.Duration `yaml:"execution_timeout"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	pool := database.DefaultConfig("", "")
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			MaxRows:        pool.MaxRows,
			QueryTimeout:   nl2sql.DefaultExecutionTimeout,
			SampleRows:     3,
			MaxConns:       pool.MaxConns,
			ConnectTimeout: pool.ConnectTimeout,
			ScriptMaxBytes: 64 << 20,
		},
		LLM: llm.DefaultConfig(),
		Synthesis: SynthesisConfig{
			MaxAttempts:       nl2sql.DefaultMaxAttempts,
			GenerationTimeout: nl2sql.DefaultGenerationTimeout,
			ExecutionTimeout:  nl2sql.DefaultExecutionTimeout,
		},
		HTTP: HTTPConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    10 * time.Minute,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		FileStore: filestore.Config{Provider: filestore.ProviderMinIO},
	}
}

// LoadFromEnv is Load with the process environment.
func LoadFromEnv(path string) (*Config, error) {
	return Load(path, os.LookupEnv)
}

// Load builds a Config from the defaults, the YAML file at path (skipped
// when path is empty) and then lookup. The result is validated.
func Load(path string, lookup LookupFunc) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, errs.Wrap(errs.ErrKindNotFound, "config file not found: "+path, err)
			}
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read config file", err)
		}
		if err := decode(raw, cfg); err != nil {
			return nil, err
		}
	}

	if lookup != nil {
		if err := applyEnv(cfg, lookup); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid config file", err)
	}
	return nil
}

// Validate rejects settings askdb cannot run with.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(logger.ValidLevel(c.Log.Level), "log.level %q is not one of debug, info, warn, error", c.Log.Level)
	check(c.Log.Format == "json" || c.Log.Format == "console", "log.format %q is not json or console", c.Log.Format)
	check(c.Database.MaxRows >= 0, "database.max_rows must not be negative")
	check(c.Database.SampleRows >= 0, "database.sample_rows must not be negative")
	check(c.Database.MaxConns >= 1, "database.max_conns must be at least 1")
	check(c.Database.QueryTimeout >= 0, "database.query_timeout must not be negative")
	check(c.Database.ScriptMaxBytes > 0, "database.script_max_bytes must be positive")
	check(c.LLM.Provider == llm.ProviderOllama || c.LLM.Provider == llm.ProviderOpenAI,
		"llm.provider %q is not ollama or openai", c.LLM.Provider)
	check(c.LLM.BaseURL != "", "llm.base_url is required")
	check(c.LLM.Temperature >= 0 && c.LLM.Temperature <= 2, "llm.temperature must be within [0, 2]")
	check(c.LLM.Provider != llm.ProviderOpenAI || c.LLM.APIKey != "", "llm.api_key is required for the openai provider")
	check(c.Synthesis.MaxAttempts >= 1, "synthesis.max_attempts must be at least 1")
	check(c.Synthesis.GenerationTimeout >= 0, "synthesis.generation_timeout must not be negative")
	check(c.Synthesis.ExecutionTimeout >= 0, "synthesis.execution_timeout must not be negative")
	check(c.HTTP.Address != "", "http.address is required")
	check(c.FileStore.Endpoint == "" || c.FileStore.Provider == filestore.ProviderMinIO,
		"filestore.provider %q is not supported", c.FileStore.Provider)

	if len(problems) > 0 {
		return errs.New(errs.ErrKindInvalidInput, "invalid configuration: "+strings.Join(problems, "; "))
	}
	return nil
}

// Logger returns the logger settings.
func (c *Config) Logger() *logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = c.Log.Level
	lc.Format = c.Log.Format
	return lc
}

// Pool returns the per-session database settings.
func (c *Config) Pool() database.Config {
	pool := database.DefaultConfig("", "")
	pool.MaxRows = c.Database.MaxRows
	pool.MaxConns = c.Database.MaxConns
	if pool.MinConns > pool.MaxConns {
		pool.MinConns = pool.MaxConns
	}
	pool.ConnectTimeout = c.Database.ConnectTimeout
	return *pool
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	var provider string
	strs := []struct {
		key string
		dst *string
	}{
		{"ASKDB_LOG_LEVEL", &cfg.Log.Level},
		{"ASKDB_LOG_FORMAT", &cfg.Log.Format},
		{"ASKDB_DB", &cfg.Database.Location},
		{"ASKDB_SAMPLE_DB", &cfg.Database.Sample},
		{"ASKDB_LLM_PROVIDER", &provider},
		{"ASKDB_LLM_BASE_URL", &cfg.LLM.BaseURL},
		{"ASKDB_LLM_API_KEY", &cfg.LLM.APIKey},
		{"ASKDB_LLM_MODEL", &cfg.LLM.Model},
		{"ASKDB_HTTP_ADDR", &cfg.HTTP.Address},
		{"ASKDB_S3_ENDPOINT", &cfg.FileStore.Endpoint},
		{"ASKDB_S3_ACCESS_KEY", &cfg.FileStore.AccessKey},
		{"ASKDB_S3_SECRET_KEY", &cfg.FileStore.SecretKey},
		{"ASKDB_S3_REGION", &cfg.FileStore.Region},
	}
	for _, s := range strs {
		applyString(lookup, s.key, s.dst)
	}
	if provider != "" {
		cfg.LLM.Provider = llm.Provider(strings.ToLower(provider))
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ASKDB_QUERY_TIMEOUT", &cfg.Database.QueryTimeout},
		{"ASKDB_LLM_TIMEOUT", &cfg.LLM.Timeout},
		{"ASKDB_GENERATION_TIMEOUT", &cfg.Synthesis.GenerationTimeout},
		{"ASKDB_EXECUTION_TIMEOUT", &cfg.Synthesis.ExecutionTimeout},
	}
	for _, d := range durations {
		if err := applyDuration(lookup, d.key, d.dst); err != nil {
			return err
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"ASKDB_MAX_ROWS", &cfg.Database.MaxRows},
		{"ASKDB_SAMPLE_ROWS", &cfg.Database.SampleRows},
		{"ASKDB_MAX_ATTEMPTS", &cfg.Synthesis.MaxAttempts},
	}
	for _, i := range ints {
		if err := applyInt(lookup, i.key, i.dst); err != nil {
			return err
		}
	}

	if err := applyFloat(lookup, "ASKDB_LLM_TEMPERATURE", &cfg.LLM.Temperature); err != nil {
		return err
	}
	return applyBool(lookup, "ASKDB_S3_USE_SSL", &cfg.FileStore.UseSSL)
}

func applyString(lookup LookupFunc, key string, dst *string) {
	if raw, ok := lookup(key); ok {
		*dst = strings.TrimSpace(raw)
	}
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid "+key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid "+key, err)
	}
	*dst = v
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid "+key, err)
	}
	*dst = v
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "invalid "+key, err)
	}
	*dst = v
	return nil
}
