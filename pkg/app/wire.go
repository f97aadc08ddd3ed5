package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/flemzord/seline/internal/config"
	"github.com/flemzord/seline/internal/conversation"
	"github.com/flemzord/seline/internal/core"
	"github.com/flemzord/seline/internal/cron"
	"github.com/flemzord/seline/internal/gateway"
	"github.com/flemzord/seline/internal/metrics"
	"github.com/flemzord/seline/internal/pipeline"
	"github.com/flemzord/seline/internal/provider"
	"github.com/flemzord/seline/internal/rag"
	"github.com/flemzord/seline/internal/router"
	"github.com/flemzord/seline/internal/security"
	"github.com/flemzord/seline/internal/telemetry"
	"github.com/flemzord/seline/modules/channel/line"
	"github.com/flemzord/seline/modules/provider/openai"
	"github.com/flemzord/seline/modules/search/azure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// lineSource is the webhook path segment of the LINE channel.
const lineSource = "line"

// Service holds the wired components. App owns their lifecycle.
type Service struct {
	App       *core.App
	Router    *router.Router
	Gateway   *gateway.Gateway
	Store     conversation.Store
	Providers *provider.Chain
	Registry  *prometheus.Registry
}

// routerComponent adapts the router to the core lifecycle.
type routerComponent struct{ r *router.Router }

func (c routerComponent) Start(ctx context.Context) error {
	c.r.Start(ctx)
	return nil
}

func (c routerComponent) Stop(ctx context.Context) error {
	c.r.Stop(ctx)
	return nil
}

// Build wires every component from cfg. Components are registered with
// the App so that ingress stops first and stores close last. On error,
// resources opened so far are released.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (svc *Service, err error) {
	app := core.NewApp(logger, 0)
	defer func() {
		if err != nil {
			_ = app.Discard()
		}
	}()
	add := func(name string, c any) {
		if err == nil {
			err = app.Add(name, c)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	tp, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return nil, err
	}
	tp.Install()
	add("telemetry", core.StopFunc(tp.Shutdown))

	store, err := OpenStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	if closer, ok := store.(core.Closer); ok {
		add("store", closer)
	}

	audit, auditFile, err := newAuditLogger(cfg.Audit, NewRedactor(cfg), logger)
	if err != nil {
		return nil, err
	}
	if auditFile != nil {
		add("audit", auditFile)
	}

	chain, primary, err := buildProviders(cfg, logger)
	if err != nil {
		return nil, err
	}

	faq := make([]pipeline.FAQEntry, len(cfg.Pipeline.FAQ))
	for i, e := range cfg.Pipeline.FAQ {
		faq[i] = pipeline.FAQEntry{Question: e.Question, Answer: e.Answer, ImageURL: e.ImageURL}
	}

	client := line.NewClient(cfg.LINE.AccessToken, cfg.LINE.APIURL, cfg.LINE.Timeout)
	notifier := line.NewNotifier(client, cfg.LINE, faq, logger.With("channel", lineSource))

	orch, err := buildPipeline(cfg, chain, primary, store, notifier, faq, m, logger)
	if err != nil {
		return nil, err
	}

	r, err := router.NewRouter(router.Config{
		Window:       cfg.Debounce.Window,
		WorkerCount:  cfg.Debounce.Workers,
		InboxSize:    cfg.Debounce.InboxSize,
		RunTimeout:   cfg.Debounce.RunTimeout,
		SweepGrace:   cfg.Debounce.SweepGrace,
		MaxIdle:      cfg.Debounce.MaxIdle,
		Handler:      orch,
		OnBurstStart: notifier.OnBurstStart,
		Logger:       logger,
		Metrics:      m,
	})
	if err != nil {
		return nil, err
	}
	add("router", routerComponent{r: r})

	sched := cron.NewScheduler(logger)
	for _, job := range []cron.Job{
		&cron.SweepJob{Router: r, Logger: logger, ScheduleExpr: cfg.Cron.Sweep},
		&cron.EvictionJob{Router: r, Logger: logger, ScheduleExpr: cfg.Cron.Eviction},
		&cron.ProbeJob{Providers: chain, Logger: logger, ScheduleExpr: cfg.Cron.Probe},
	} {
		if err := sched.RegisterJob(job); err != nil {
			return nil, err
		}
	}
	add("cron", sched)

	dispatcher := gateway.NewWebhookDispatcher(logger,
		gateway.WithMetrics(m),
		gateway.WithAudit(audit),
		gateway.WithMaxBody(cfg.Gateway.MaxBodyBytes),
	)
	dispatcher.Register(lineSource,
		line.NewWebhookReceiver(r.Submit, logger.With("channel", lineSource)),
		line.Verifier(cfg.LINE.ChannelSecret),
	)

	gw, err := gateway.New(gateway.Options{
		Config:       cfg.Gateway,
		Dispatcher:   dispatcher,
		Router:       r,
		Store:        store,
		Providers:    chain,
		Gatherer:     reg,
		HistoryLimit: cfg.Pipeline.HistoryLimit,
		Audit:        audit,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	if add("gateway", gw); err != nil {
		return nil, err
	}

	return &Service{
		App:       app,
		Router:    r,
		Gateway:   gw,
		Store:     store,
		Providers: chain,
		Registry:  reg,
	}, nil
}

// buildProviders creates the OpenAI client and the failover chain. The
// primary client is returned separately because retrieval needs its
// embeddings.
func buildProviders(cfg *config.Config, logger *slog.Logger) (*provider.Chain, *openai.Provider, error) {
	primary, err := openai.New(cfg.OpenAI, logger)
	if err != nil {
		return nil, nil, err
	}
	health := provider.HealthConfig{
		InitialBackoff: cfg.Providers.InitialBackoff,
		MaxBackoff:     cfg.Providers.MaxBackoff,
		MaxFailures:    cfg.Providers.MaxFailures,
	}

	entries := []provider.ChainEntry{
		{Name: "openai/classify", Provider: primary, Role: provider.RoleClassify, Health: health},
		{Name: "openai/answer", Provider: primary, Role: provider.RoleAnswer, Health: health},
		{Name: "openai/summarize", Provider: primary, Role: provider.RoleSummarize, Health: health},
	}
	if cfg.Providers.Fallback != nil {
		fallback, err := openai.New(*cfg.Providers.Fallback, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("providers.fallback: %w", err)
		}
		entries = append(entries, provider.ChainEntry{
			Name:     "fallback",
			Provider: fallback,
			Role:     provider.RoleFallback,
			Health:   health,
		})
	}

	chain, err := provider.NewChain(entries, provider.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return chain, primary, nil
}

// buildPipeline creates the model-backed collaborators, the state reader
// and the orchestrator.
func buildPipeline(
	cfg *config.Config,
	chain *provider.Chain,
	embedder provider.Embedder,
	store conversation.Store,
	notifier pipeline.Notifier,
	faq []pipeline.FAQEntry,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*pipeline.Orchestrator, error) {
	pc := cfg.Pipeline

	classifier, err := rag.NewClassifier(chain.For(provider.RoleClassify))
	if err != nil {
		return nil, err
	}
	answerer, err := rag.NewAnswerer(chain.For(provider.RoleAnswer), rag.AnswererConfig{
		Company:  pc.Company,
		Language: pc.Language,
	})
	if err != nil {
		return nil, err
	}
	summarizer, err := rag.NewSummarizer(chain.For(provider.RoleSummarize))
	if err != nil {
		return nil, err
	}
	retriever, err := azure.New(cfg.Search, embedder, logger)
	if err != nil {
		return nil, err
	}
	loc, err := pc.Location()
	if err != nil {
		return nil, err
	}

	reader := conversation.NewReader(conversation.ReaderConfig{
		Store:        store,
		Compactor:    summarizer,
		HistoryLimit: pc.HistoryLimit,
		MaxChars:     pc.MaxHistoryChars,
		Logger:       logger,
	})

	orch, err := pipeline.NewOrchestrator(pipeline.Config{
		ResetSentinel:        pc.ResetSentinel,
		ResetReply:           pc.ResetReply,
		FallbackReply:        pc.FallbackReply,
		AnswerFailureReply:   pc.AnswerFailureReply,
		FAQ:                  pipeline.NewFAQ(faq),
		Service:              pipeline.RetrievalParams{TopK: pc.Service.TopK, Skip: pc.Service.Skip},
		Product:              pipeline.RetrievalParams{TopK: pc.Product.TopK, Skip: pc.Product.Skip},
		More:                 pipeline.RetrievalParams{TopK: pc.More.TopK, Skip: pc.More.Skip},
		ClassifyWithHistory:  pc.ClassifyWithHistory == nil || *pc.ClassifyWithHistory,
		SpeculativeRetrieval: pc.SpeculativeRetrieval,
		Classifier:           classifier,
		Retriever:            retriever,
		Condenser:            summarizer,
		Answerer:             answerer,
		Notifier:             notifier,
		State:                reader,
		Store:                store,
		Location:             loc,
		PersistTimeout:       pc.PersistTimeout,
		Logger:               logger,
		Metrics:              m,
	})
	if err != nil {
		return nil, err
	}
	return orch, nil
}

// newAuditLogger writes audit events to cfg.Path as JSONL, or to the
// process log when no path is set. The returned file, if any, must be
// closed on shutdown.
func newAuditLogger(cfg config.AuditConfig, redactor *security.Redactor, logger *slog.Logger) (*security.AuditLogger, *os.File, error) {
	if cfg.Path == "" {
		return security.NewAuditLogger(security.AuditLoggerConfig{
			Redactor: redactor,
			OnEvent: func(e security.AuditEvent) {
				logger.Info("audit", "type", string(e.Type), "actor", e.Actor, "user", e.UserID, "source", e.Source, "detail", e.Detail)
			},
		}), nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("audit: create directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("audit: open %s: %w", cfg.Path, err)
	}
	return security.NewAuditLogger(security.AuditLoggerConfig{Writer: f, Redactor: redactor}), f, nil
}
