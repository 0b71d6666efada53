package main

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/castverify/internal/app/verification"
	"github.com/ahrav/castverify/internal/config"
	"github.com/ahrav/castverify/internal/infra/cache/badger"
	"github.com/ahrav/castverify/internal/infra/neynar"
	"github.com/ahrav/castverify/pkg/common/logger"
	"github.com/ahrav/castverify/pkg/common/otel"
)

// cmdEnv bundles what every command needs: config, logger and telemetry.
type cmdEnv struct {
	cfg    *config.AppConfig
	log    *logger.Logger
	tracer trace.Tracer
	mp     metric.MeterProvider

	teardown func(ctx context.Context)
}

func setup(ctx context.Context, opts *rootOptions, prometheus bool) (*cmdEnv, error) {
	cfg, err := config.NewViperLoader(opts.configPath).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	log := newLogger(logger.ParseLevel(level))

	hostname, _ := os.Hostname()
	tel, teardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      serviceType,
		ExporterEndpoint: cfg.Otel.Endpoint,
		ExcludedRoutes: map[string]struct{}{
			"/v1/health":    {},
			"/v1/readiness": {},
			"/metrics":      {},
		},
		Probability: cfg.Otel.SamplingRatio,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"k8s.pod.name":     os.Getenv("POD_NAME"),
			"k8s.namespace":    os.Getenv("POD_NAMESPACE"),
			"host.name":        hostname,
		},
		Prometheus: prometheus,
	})
	if err != nil {
		return nil, fmt.Errorf("starting telemetry: %w", err)
	}

	return &cmdEnv{
		cfg:      cfg,
		log:      log,
		tracer:   tel.TracerProvider.Tracer(serviceType),
		mp:       tel.MeterProvider,
		teardown: teardown,
	}, nil
}

// engine is the verification stack: remote client, resolution cache and the
// services built on them.
type engine struct {
	client   *neynar.Client
	cache    *badger.Cache
	content  *verification.ContentService
	checker  *verification.Checker
	verifier *verification.Verifier
}

func buildEngine(rt *cmdEnv) (*engine, error) {
	cfg := rt.cfg

	client := neynar.New(neynar.Config{
		APIKey:         cfg.Neynar.APIKey,
		BaseURL:        cfg.Neynar.BaseURL,
		Timeout:        cfg.Neynar.Timeout,
		RateLimitRPS:   cfg.Neynar.RateLimitRPS,
		RateLimitBurst: cfg.Neynar.RateLimitBurst,
	}, rt.log, rt.tracer)
	if !client.Configured() {
		rt.log.Error(context.Background(), "NEYNAR_API_KEY is not set, every verification will fail as not configured")
	}

	cache, err := badger.Open(badger.Config{Path: cfg.Cache.BadgerPath, TTL: cfg.Cache.TTL}, rt.log, rt.tracer)
	if err != nil {
		return nil, fmt.Errorf("opening resolution cache: %w", err)
	}

	metrics, err := verification.NewVerificationMetrics(rt.mp)
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("creating verification metrics: %w", err)
	}

	resolver := verification.NewRemoteResolver(client, rt.log, rt.tracer)
	content := verification.NewContentService(resolver, cache, metrics, rt.log, rt.tracer)
	chains := verification.DefaultChains(verification.Limits{
		Replies:  cfg.Verify.RepliesLimit,
		Children: cfg.Verify.ChildrenLimit,
		History:  cfg.Verify.HistoryLimit,
	})
	checker := verification.NewChecker(client, chains, metrics, rt.log, rt.tracer)
	verifier := verification.NewVerifier(content, checker, cfg.Verify.CommentRetryDelay, metrics, rt.log, rt.tracer)

	return &engine{
		client:   client,
		cache:    cache,
		content:  content,
		checker:  checker,
		verifier: verifier,
	}, nil
}

func (e *engine) Close() error { return e.cache.Close() }
