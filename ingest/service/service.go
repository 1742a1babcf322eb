// Package service exposes the data source plugin operations called by the cost orchestrator:
// init, verify, get_tasks, get_data and get_linked_accounts.
package service

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"gcp-billing-cost/domain/config"
	"gcp-billing-cost/domain/cost"
	"gcp-billing-cost/domain/plugin"
	"gcp-billing-cost/domain/task"
	"gcp-billing-cost/ingest/discovery"
	"gcp-billing-cost/ingest/normalize"
	"gcp-billing-cost/ingest/source"
)

type Service struct {
	cfg        config.Config
	opener     source.Opener
	discovery  *discovery.Discovery
	normalizer *normalize.Normalizer
}

func New(cfg config.Config, opener source.Opener) *Service {
	return &Service{
		cfg:        cfg,
		opener:     opener,
		discovery:  discovery.New(cfg, opener),
		normalizer: normalize.New(cfg, opener),
	}
}

// WithClock returns a copy whose discovery and streams read the current time from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	c := *s
	c.discovery = s.discovery.WithClock(now)
	c.normalizer = s.normalizer.WithClock(now)
	return &c
}

// SourceType returns options.source_type, falling back to the configured default.
func (s *Service) SourceType(options plugin.Options) (string, error) {
	src := options.String("source_type")
	if src == "" {
		src = s.cfg.Defaults.Source
	}
	switch src {
	case config.SourceBigQuery, config.SourceStorage:
		return src, nil
	default:
		return "", plugin.InvalidSourceType(src)
	}
}

// Init describes the plugin to the host.
func (s *Service) Init(options plugin.Options) (plugin.Metadata, error) {
	src, err := s.SourceType(options)
	if err != nil {
		return plugin.Metadata{}, err
	}
	md := plugin.Metadata{
		Currency:             "USD",
		SupportedSecretTypes: []string{config.SecretTypeManual, config.SecretTypeServiceAccount},
		DataSourceRules:      plugin.DefaultRules(plugin.DefaultAccountMatchKey),
	}
	// options.currency declares the billing currency of raw-mode BigQuery accounts
	if c := options.String("currency"); c != "" {
		md.Currency = c
	}
	if options.Bool("use_account_routing") {
		md.UseAccountRouting = true
		md.AccountMatchKey = options.String("account_match_key")
		if md.AccountMatchKey == "" {
			md.AccountMatchKey = plugin.DefaultAccountMatchKey
		}
	}
	slog.Info("data_source.init", "source", src, "currency", md.Currency, "use_account_routing", md.UseAccountRouting)
	return md, nil
}

// Verify opens a session for the selected source, failing on missing secret fields or bad credentials.
func (s *Service) Verify(ctx context.Context, options plugin.Options, secret plugin.SecretData) error {
	src, err := s.SourceType(options)
	if err != nil {
		return err
	}
	slog.Info("data_source.verify", "source", src)
	switch src {
	case config.SourceStorage:
		b, err := s.opener.Bucket(ctx, secret)
		if err != nil {
			return err
		}
		return b.Close()
	default:
		wh, err := s.opener.Warehouse(ctx, secret)
		if err != nil {
			return err
		}
		return wh.Close()
	}
}

// GetTasks enumerates the sync tasks of the account described by req.
func (s *Service) GetTasks(ctx context.Context, req discovery.Request) (task.Tasks, error) {
	src, err := s.SourceType(req.Options)
	if err != nil {
		return task.Tasks{}, err
	}
	if src == config.SourceStorage {
		return s.discovery.Storage(ctx, req)
	}
	return s.discovery.BigQuery(ctx, req)
}

// GetData streams the cost batches of one task. The options map is the task_options document
// previously returned by GetTasks.
func (s *Service) GetData(ctx context.Context, options plugin.Options, secret plugin.SecretData, taskOptions map[string]any) iter.Seq2[cost.Batch, error] {
	opts, err := task.Decode(taskOptions)
	if err != nil {
		return func(yield func(cost.Batch, error) bool) {
			slog.Error("cost.get_data.error", "phase", "VALIDATING_INPUTS", "error", err)
			yield(cost.Batch{}, err)
		}
	}
	return s.StreamTask(ctx, options, secret, opts)
}

// StreamTask streams the cost batches of already decoded task options.
func (s *Service) StreamTask(ctx context.Context, options plugin.Options, secret plugin.SecretData, opts task.Options) iter.Seq2[cost.Batch, error] {
	slog.Info("cost.get_data.start", "kind", opts.Kind(), "start", opts.StartPeriod())
	return s.normalizer.Stream(ctx, options, secret, opts)
}

// GetLinkedAccounts lists the projects billed to the account since start.
func (s *Service) GetLinkedAccounts(ctx context.Context, options plugin.Options, secret plugin.SecretData, start string) ([]cost.LinkedAccount, error) {
	src, err := s.SourceType(options)
	if err != nil {
		return nil, err
	}
	if src != config.SourceBigQuery {
		return []cost.LinkedAccount{}, nil
	}
	return s.discovery.LinkedAccounts(ctx, secret, start)
}
