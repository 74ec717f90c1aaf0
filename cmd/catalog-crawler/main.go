package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/catalog-crawler/internal/api"
	"github.com/maltedev/catalog-crawler/internal/browser"
	"github.com/maltedev/catalog-crawler/internal/config"
	"github.com/maltedev/catalog-crawler/internal/crawler"
	"github.com/maltedev/catalog-crawler/internal/database"
	"github.com/maltedev/catalog-crawler/internal/docstore"
	"github.com/maltedev/catalog-crawler/internal/events"
	"github.com/maltedev/catalog-crawler/internal/jobs"
	"github.com/maltedev/catalog-crawler/internal/media"
	"github.com/maltedev/catalog-crawler/internal/ratelimit"
	"github.com/maltedev/catalog-crawler/internal/resolver"
	"github.com/maltedev/catalog-crawler/internal/site"
	"github.com/maltedev/catalog-crawler/internal/storage"
	"github.com/maltedev/catalog-crawler/pkg/logger"
)

const (
	modeCrawl = "crawl"
	modeServe = "serve"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		mode      = flag.String("mode", modeCrawl, "crawl runs once and exits, serve starts the HTTP API")
		envFile   = flag.String("env", ".env", "optional dotenv file")
		startPage = flag.Int("start-page", 0, "first listing page (overrides CRAWL_START_PAGE)")
		rulesFile = flag.String("rules", "", "site rules YAML file (overrides SITE_RULES_FILE)")
		preset    = flag.String("preset", "", "built-in site preset (overrides SITE_PRESET)")
	)
	flag.Parse()

	if err := checkMode(*mode); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, err := config.LoadFile(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return 1
	}
	if *startPage > 0 {
		cfg.Crawl.StartPage = *startPage
	}
	if *rulesFile != "" {
		cfg.Site.RulesFile = *rulesFile
	}
	if *preset != "" {
		cfg.Site.Preset = *preset
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log, closer := logger.NewWithFile(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closer.Close()
	slog.SetDefault(log)

	rules, err := cfg.Ruleset()
	if err != nil {
		log.Error("failed to load site rules", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, closeSinks, err := buildSinks(ctx, cfg, rules, log)
	if err != nil {
		log.Error("failed to set up sinks", "error", err)
		return 1
	}
	defer closeSinks()

	b, err := browser.New(browserOptions(cfg), log)
	if err != nil {
		log.Error("failed to initialize browser", "error", err)
		return 1
	}
	defer b.Close()

	crawl := newCrawl(cfg, rules, b, sink, log)

	if *mode == modeServe {
		if err := serve(ctx, cfg, rules, crawl, log); err != nil {
			log.Error("server failed", "error", err)
			return 1
		}
		return 0
	}

	if _, err := crawl(ctx, nil); err != nil {
		log.Error("crawl failed", "error", err)
		return 1
	}
	return 0
}

func checkMode(mode string) error {
	switch mode {
	case modeCrawl, modeServe:
		return nil
	default:
		return fmt.Errorf("unknown mode %q, want %s or %s", mode, modeCrawl, modeServe)
	}
}

func browserOptions(cfg *config.Config) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout
	if cfg.Browser.UserAgent != "" {
		opts.UserAgent = cfg.Browser.UserAgent
	}
	if cfg.Browser.Locale != "" {
		opts.Locale = cfg.Browser.Locale
	}
	if cfg.Browser.Timezone != "" {
		opts.TimezoneID = cfg.Browser.Timezone
	}
	return opts
}

// newCrawl returns a RunFunc that drives one full crawl on a fresh browser
// tab. Runs must not overlap.
func newCrawl(cfg *config.Config, rules *site.Ruleset, b *browser.Browser, sink storage.Sink, log *slog.Logger) jobs.RunFunc {
	backoff := browser.Backoff{Initial: cfg.Crawl.PollInitial, Max: cfg.Crawl.PollMax}
	layout := storage.DefaultLayout(cfg.Storage.OutputDir)
	limiter := ratelimit.New(cfg.Crawl.MinInterval)
	materializer := media.New(resolver.New(rules.BaseURL), media.Options{
		Timeout:   cfg.Image.Timeout,
		UserAgent: browserOptions(cfg).UserAgent,
	}, log)

	return func(ctx context.Context, onProgress func(crawler.Progress)) (crawler.Stats, error) {
		session, err := b.NewSession(browser.SessionOptions{
			NavigationTimeout: cfg.Browser.Timeout,
			StepTimeout:       browser.DefaultSessionOptions().StepTimeout,
			Backoff:           backoff,
		})
		if err != nil {
			return crawler.Stats{}, err
		}
		defer session.Close()

		pipeline, err := crawler.NewPipeline(crawler.Deps{
			Page:         session,
			Rules:        rules,
			Materializer: materializer,
			Layout:       layout,
			Sink:         sink,
			Limiter:      limiter,
		}, crawler.Options{
			StartPage:        cfg.Crawl.StartPage,
			ReadyTimeout:     cfg.Crawl.ReadyTimeout,
			RevealSteps:      cfg.Crawl.RevealSteps,
			EmptyPageRetries: cfg.Crawl.EmptyPageRetries,
			Backoff:          backoff,
			Credentials:      cfg.Credentials(),
			OnProgress:       onProgress,
		}, log)
		if err != nil {
			return crawler.Stats{}, err
		}

		return pipeline.Run(ctx)
	}
}

// buildSinks always writes the per-product directory and fans out to every
// enabled store after it.
func buildSinks(ctx context.Context, cfg *config.Config, rules *site.Ruleset, log *slog.Logger) (storage.Sink, func(), error) {
	sinks := storage.MultiSink{
		storage.NewDirectorySink(storage.DefaultLayout(cfg.Storage.OutputDir), log),
	}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Database.Enabled {
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Name,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		closers = append(closers, db.Close)

		records := database.NewRecordSink(db, rules.Name, log)
		if err := records.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, records)
	}

	if cfg.Redis.Enabled {
		client, err := events.Connect(ctx, events.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		stream := events.NewStreamSink(client, cfg.Redis.Stream, rules.Name, log)
		closers = append(closers, func() { _ = stream.Close() })
		sinks = append(sinks, stream)
	}

	if cfg.Mongo.Enabled {
		mcfg := docstore.Config{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		}
		client, err := docstore.Connect(ctx, mcfg)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = client.Disconnect(context.Background()) })
		sinks = append(sinks, docstore.NewSink(client, mcfg, rules.Name, log))
	}

	log.Info("sinks ready", "count", len(sinks),
		"database", cfg.Database.Enabled, "redis", cfg.Redis.Enabled, "mongo", cfg.Mongo.Enabled)
	return sinks, closeAll, nil
}

func serve(ctx context.Context, cfg *config.Config, rules *site.Ruleset, crawl jobs.RunFunc, log *slog.Logger) error {
	manager := jobs.NewManager(crawl, log)
	defer manager.Close()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(api.NewHandlers(manager, rules.Name, log)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("server starting", "port", cfg.Server.Port, "site", rules.Name)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	log.Info("server stopped")
	return nil
}
