package main

import (
	"context"

	"github.com/koustreak/askdb/internal/chat"
	"github.com/koustreak/askdb/internal/config"
	"github.com/koustreak/askdb/internal/filestore"
	"github.com/koustreak/askdb/internal/filestore/minio"
	"github.com/koustreak/askdb/internal/llm"
	"github.com/koustreak/askdb/internal/logger"
	"github.com/koustreak/askdb/internal/metrics"
	"github.com/koustreak/askdb/internal/session"
	"github.com/koustreak/askdb/internal/source"
)

// app is the wired set of services a subcommand runs on.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	metrics  *metrics.Metrics
	store    filestore.Store
	sessions *session.Manager
	llm      llm.Client
	chat     *chat.Handler
}

// loadConfig reads the configuration and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv(global.configFile)
	if err != nil {
		return nil, err
	}
	if global.db != "" {
		cfg.Database.Location = global.db
	}
	if global.logLevel != "" {
		cfg.Log.Level = global.logLevel
	}
	if global.provider != "" {
		cfg.LLM.Provider = llm.Provider(global.provider)
	}
	if global.model != "" {
		cfg.LLM.Model = global.model
	}
	if global.baseURL != "" {
		cfg.LLM.BaseURL = global.baseURL
	}
	if global.maxAttempts != 0 {
		cfg.Synthesis.MaxAttempts = global.maxAttempts
	}
	return cfg, cfg.Validate()
}

// newApp wires every service and connects to the configured database,
// if any. Logs go to stderr so stdout carries only answers.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logger.New(cfg.Logger())

	a := &app{cfg: cfg, log: log, metrics: metrics.New()}

	if cfg.FileStore.Enabled() {
		store, err := minio.New(&cfg.FileStore)
		if err != nil {
			return nil, err
		}
		a.store = store
	}

	connector := session.NewConnector()
	connector.Pool = cfg.Pool()
	connector.QueryTimeout = cfg.Database.QueryTimeout
	connector.SampleRows = cfg.Database.SampleRows
	connector.Sample = cfg.Database.Sample
	connector.Loader = &source.Loader{Store: a.store, MaxBytes: cfg.Database.ScriptMaxBytes}
	connector.Logger = log
	a.sessions = session.NewManager(connector)

	client, err := llm.New(cfg.LLM)
	if err != nil {
		a.close()
		return nil, err
	}
	a.llm = client

	a.chat = chat.NewHandler(a.sessions, client, chat.Config{
		MaxAttempts:       cfg.Synthesis.MaxAttempts,
		GenerationTimeout: cfg.Synthesis.GenerationTimeout,
		ExecutionTimeout:  cfg.Synthesis.ExecutionTimeout,
	}, log, a.metrics)

	if cfg.Database.Location != "" {
		if _, err := a.sessions.Connect(ctx, cfg.Database.Location); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) close() {
	if a.sessions != nil {
		a.sessions.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
