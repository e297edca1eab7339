// Package app builds the adapters, journal and workflow factory from a
// loaded Config. Binaries construct one App at startup.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"cloud.google.com/go/storage"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/export"
	"github.com/joseph-ayodele/invoice-attestor/internal/extract"
	"github.com/joseph-ayodele/invoice-attestor/internal/ingest"
	"github.com/joseph-ayodele/invoice-attestor/internal/llm"
	"github.com/joseph-ayodele/invoice-attestor/internal/llm/gemini"
	"github.com/joseph-ayodele/invoice-attestor/internal/llm/openai"
	"github.com/joseph-ayodele/invoice-attestor/internal/repository"
	"github.com/joseph-ayodele/invoice-attestor/internal/submit"
	"github.com/joseph-ayodele/invoice-attestor/internal/submit/evm"
	"github.com/joseph-ayodele/invoice-attestor/internal/submit/gcs"
	"github.com/joseph-ayodele/invoice-attestor/internal/submit/pinata"
	"github.com/joseph-ayodele/invoice-attestor/internal/submit/s3store"
	"github.com/joseph-ayodele/invoice-attestor/internal/workflow"
)

type App struct {
	Config    *common.Config
	Logger    *slog.Logger
	DB        *repository.DB
	Journal   repository.AttestationRepository
	Loader    *ingest.Loader
	Extractor extract.Extractor
	Submitter submit.Submitter
	Exporter  *export.Service

	closers []func()
}

// Options trims what New builds; journal-only tools skip the adapters.
type Options struct {
	JournalOnly bool
}

// New opens the journal and builds the configured adapters. Callers must Close.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)
	if err := db.Migrate(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.Journal = repository.NewAttestationRepository(db, logger)
	a.Exporter = export.NewService(a.Journal, logger)
	if opts.JournalOnly {
		return a, nil
	}

	a.Loader = ingest.NewLoader(cfg.Document.MaxMB, logger)

	model, err := a.visionModel(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Extractor = extract.NewAdapter(model, logger)

	backend, err := a.submitter(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Submitter = submit.NewJournaled(backend, a.Journal, logger)

	logger.Info("app.ready", "config", cfg.String(), "model", model.ModelName(), "backend", backend.Name())
	return a, nil
}

func (a *App) visionModel(ctx context.Context) (llm.VisionModel, error) {
	cfg := a.Config.Extract
	switch cfg.Provider {
	case "gemini":
		c, err := gemini.NewClient(ctx, gemini.Config{
			ProjectID:   cfg.GCPProject,
			Region:      cfg.GCPRegion,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		return c, nil
	case "openai", "":
		return openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, a.Logger), nil
	default:
		return nil, common.NewAppError("CONFIG_ERROR", "unknown EXTRACT_PROVIDER "+cfg.Provider, common.ErrInvalidInput)
	}
}

func (a *App) submitter(ctx context.Context) (submit.Submitter, error) {
	cfg := a.Config.Submit
	switch cfg.Backend {
	case "evm", "":
		minBalance, ok := new(big.Int).SetString(cfg.EVM.MinBalanceWei, 10)
		if !ok {
			minBalance = new(big.Int)
		}
		sub, err := evm.NewSubmitter(ctx, evm.Config{
			RPCURL:          cfg.EVM.RPCURL,
			From:            cfg.EVM.From,
			Contract:        cfg.EVM.Contract,
			MinBalanceWei:   minBalance,
			ConfirmTimeout:  cfg.EVM.ConfirmTimeout,
			PollInterval:    cfg.EVM.PollInterval,
			ExplorerURLTmpl: cfg.EVM.ExplorerURLTmpl,
			HTTPTimeout:     cfg.Timeout,
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sub.Close)
		return sub, nil
	case "pinata":
		return pinata.NewSubmitter(pinata.Config{
			JWT:     cfg.Pinata.JWT,
			BaseURL: cfg.Pinata.BaseURL,
			Timeout: cfg.Timeout,
		}, a.Logger), nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage.NewClient: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return gcs.NewSubmitter(client, gcs.Config{Bucket: cfg.GCS.Bucket, Prefix: cfg.GCS.Prefix}, a.Logger), nil
	case "s3":
		s3cfg := s3store.Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			UseSSL:    cfg.S3.UseSSL,
		}
		client, err := s3store.NewClient(s3cfg)
		if err != nil {
			return nil, err
		}
		return s3store.NewSubmitter(client, s3cfg, a.Logger), nil
	default:
		return nil, common.NewAppError("CONFIG_ERROR", "unknown SUBMIT_BACKEND "+cfg.Backend, common.ErrInvalidInput)
	}
}

// NewWorkflow returns an independent workflow over the shared adapters.
func (a *App) NewWorkflow(opts ...workflow.Option) *workflow.Workflow {
	return workflow.New(a.Extractor, a.Submitter, a.Logger, opts...)
}

// NewRegistry returns a session registry for the HTTP surface.
func (a *App) NewRegistry(opts ...workflow.Option) *workflow.Registry {
	return workflow.NewRegistry(a.Extractor, a.Submitter, a.Config.Server.SessionTTL, a.Logger, opts...)
}

// Close releases clients and the journal in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
