package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shopindex/shopindex/internal/catalog"
	"github.com/shopindex/shopindex/internal/clock/system"
	"github.com/shopindex/shopindex/internal/collection"
	"github.com/shopindex/shopindex/internal/config"
	"github.com/shopindex/shopindex/internal/discovery"
	"github.com/shopindex/shopindex/internal/enrich"
	"github.com/shopindex/shopindex/internal/fetch"
	"github.com/shopindex/shopindex/internal/logging"
	"github.com/shopindex/shopindex/internal/metrics"
	"github.com/shopindex/shopindex/internal/orchestrator"
	"github.com/shopindex/shopindex/internal/registry"
	"github.com/shopindex/shopindex/internal/storage/postgres"
)

// services holds the wired application components shared by the serve and
// index commands.
type services struct {
	cfg          config.Config
	logger       *zap.Logger
	gateway      *postgres.Gateway
	fetcher      *fetch.Client
	orchestrator *orchestrator.Orchestrator
}

// buildServices loads config and wires every component of the pipeline.
func buildServices(ctx context.Context) (*services, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics.Init()

	gateway, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: time.Duration(cfg.Database.ConnLifetimeMin) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	fetcher, err := fetch.NewClient(fetch.Config{
		Timeout:         cfg.FetchTimeout(),
		UserAgent:       cfg.Fetch.UserAgent,
		BrowserEnabled:  cfg.Fetch.BrowserEnabled,
		BrowserParallel: cfg.Fetch.BrowserParallel,
		ProxyEnabled:    cfg.Fetch.ProxyEnabled,
		ProxyBaseURL:    cfg.Fetch.ProxyBaseURL,
		MaxBodyBytes:    cfg.Fetch.MaxBodyBytes,
	}, logger.Named("fetch"))
	if err != nil {
		gateway.Close()
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	collector := collection.New(collection.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
		MaxSeeds:  cfg.Crawler.CollectionMaxSeeds,
		MaxPages:  cfg.Crawler.CollectionMaxPages,
	}, logger.Named("collection"))

	var external orchestrator.ExternalDiscoverer
	if cfg.Discovery.Enabled {
		searcher := discovery.NewClient(discovery.Config{
			Enabled:    true,
			BaseURL:    cfg.Discovery.BaseURL,
			APIKey:     cfg.Discovery.APIKey,
			MaxResults: cfg.Discovery.MaxResults,
		}, logger.Named("discovery"))
		external = discovery.NewPlugin(searcher, logger.Named("discovery"))
	}

	var enricher orchestrator.Enricher
	if cfg.Enrichment.Enabled {
		openaiCfg := enrich.OpenAIConfig{
			BaseURL:      cfg.Enrichment.BaseURL,
			APIKey:       cfg.Enrichment.APIKey,
			EmbedModel:   cfg.Enrichment.EmbedModel,
			SummaryModel: cfg.Enrichment.SummaryModel,
			Timeout:      time.Duration(cfg.Enrichment.TimeoutSeconds) * time.Second,
		}
		enricher = enrich.New(
			enrich.NewOpenAIEmbedder(openaiCfg, logger.Named("enrich")),
			enrich.NewOpenAISummarizer(openaiCfg, logger.Named("enrich")),
			cfg.Enrichment.SummaryParallel,
			logger.Named("enrich"),
		)
	}

	var clk catalog.Clock = system.New()
	orch := orchestrator.New(orchestrator.Config{
		FetchConcurrency:      cfg.Crawler.Concurrency,
		LargeFetchConcurrency: cfg.Crawler.LargeConcurrency,
		MaxCrawlURLs:          cfg.Crawler.MaxURLs,
		LargeMaxCrawlURLs:     cfg.Crawler.LargeMaxURLs,
		LargeStoreThreshold:   cfg.Crawler.LargeStoreThreshold,
		RatePerSecond:         cfg.Crawler.RatePerSecond,
	}, gateway, fetcher, collector, external, enricher, registry.New(clk), clk, logger.Named("orchestrator"))

	return &services{
		cfg:          cfg,
		logger:       logger,
		gateway:      gateway,
		fetcher:      fetcher,
		orchestrator: orch,
	}, nil
}

// Close releases the database pool, the fetch client, and the logger.
func (s *services) Close() {
	s.fetcher.Close()
	s.gateway.Close()
	_ = s.logger.Sync()
}
