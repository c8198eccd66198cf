package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"fedreg-fetcher/config"
	"fedreg-fetcher/extractor"
	"fedreg-fetcher/fedreg"
	"fedreg-fetcher/ratelimit"
	"fedreg-fetcher/retriever"
	"fedreg-fetcher/retry"
	"fedreg-fetcher/scheduler"
	"fedreg-fetcher/storage"
)

func main() {
	// Structured JSON logging to stdout
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfgPath := flag.String("config", "./config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"agencies", cfg.Agencies, "page_size", cfg.PageSize,
		"document_limit", cfg.DocumentLimit, "workers", cfg.Workers)

	// Set log level
	switch cfg.LogLevel {
	case "debug":
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))
	case "warn":
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})))
	case "error":
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
	}

	// Initialize storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("storage initialized", "db_path", cfg.DBPath)

	// Initialize components: one limiter and one retry handler shared by
	// the search client and the content extractor.
	limiter := ratelimit.New(cfg.RequestRate, cfg.RequestBurst)
	retrier := retry.New(cfg.RetryConfig(), limiter)
	apiClient := fedreg.NewClientWithBaseURL(cfg.BaseURL, limiter, cfg.FetchTimeout(), cfg.UserAgent)
	walker := fedreg.NewWalker(apiClient, retrier, cfg.PageSize)
	ext := extractor.New(limiter, retrier, cfg.FetchTimeout(), extractor.Config{
		MinContentLength: cfg.MinContentChars,
		MaxContentLength: cfg.MaxContentChars,
		EnableFallback:   cfg.HTMLFallback,
		UserAgent:        cfg.UserAgent,
	})
	engine := retriever.New(walker, ext, &documentCacheAdapter{store: store})

	// Graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	runOnce := func() {
		results := engine.RetrieveAll(ctx, cfg.Agencies, cfg.DocumentLimit, cfg.Workers)
		for _, res := range results {
			st := res.Stats
			if err := store.SaveRun(&storage.Run{
				ID:         st.RunID,
				AgencySlug: st.AgencySlug,
				Attempted:  st.Attempted,
				Succeeded:  st.Succeeded,
				Failed:     st.Failed,
				Incomplete: st.Incomplete,
				StartedAt:  st.StartedAt,
				Elapsed:    st.Elapsed,
			}); err != nil {
				slog.Error("failed to record run", "agency", st.AgencySlug, "error", err)
			}
		}
	}

	if cfg.ScheduleTime == "" {
		slog.Info("starting one-shot retrieval")
		runOnce()
		slog.Info("retrieval complete")
		return
	}

	sched, err := scheduler.New(cfg.Timezone)
	if err != nil {
		slog.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	if err := sched.Schedule(cfg.ScheduleTime, runOnce); err != nil {
		slog.Error("failed to schedule retrieval", "error", err)
		os.Exit(1)
	}
	sched.Start()
	slog.Info("scheduler started", "schedule_time", cfg.ScheduleTime, "timezone", cfg.Timezone)

	<-ctx.Done()
	sched.Stop()
	slog.Info("shutdown complete")
}

// --- Adapters to bridge package types ---

// documentCacheAdapter bridges storage.Store to retriever.DocumentCache
type documentCacheAdapter struct {
	store *storage.Store
}

func (a *documentCacheAdapter) Get(documentNumber string) (*retriever.CachedDocument, error) {
	doc, err := a.store.GetDocument(documentNumber)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return &retriever.CachedDocument{
		DocumentNumber:  doc.DocumentNumber,
		Title:           doc.Title,
		AgencySlug:      doc.AgencySlug,
		PublicationDate: doc.PublicationDate,
		Content:         doc.Content,
		Source:          doc.ContentSource,
		ContentLength:   doc.ContentLength,
	}, nil
}

func (a *documentCacheAdapter) Put(doc *retriever.CachedDocument) error {
	return a.store.SaveDocument(&storage.Document{
		DocumentNumber:  doc.DocumentNumber,
		Title:           doc.Title,
		AgencySlug:      doc.AgencySlug,
		PublicationDate: doc.PublicationDate,
		Content:         doc.Content,
		ContentSource:   doc.Source,
		ContentLength:   doc.ContentLength,
	})
}
