// redactd is the redaction service: POST a PDF or DOCX with a template and
// get back the rewritten, verified document.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"vaultredact/config"
	"vaultredact/detect"
	"vaultredact/observability"
	"vaultredact/store"
	"vaultredact/suggest"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "redactd:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	// Local development keeps secrets in .env; absence is not an error.
	godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := observability.NewZapLogger(observability.ZapConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	templateData, err := os.ReadFile(cfg.Template.Path)
	if err != nil {
		return fmt.Errorf("read template: %w", err)
	}
	template, err := detect.ParseTemplate(templateData)
	if err != nil {
		return err
	}

	var cache *redis.Client
	if cfg.Redis.Addr != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := cache.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, suggestion cache disabled",
				observability.Error("error", err))
			cache = nil
		}
	}

	var suggester *suggest.Client
	if cfg.Suggest.BaseURL != "" {
		suggester = suggest.NewClient(suggest.Config{
			BaseURL:           cfg.Suggest.BaseURL,
			APIKey:            cfg.Suggest.APIKey,
			RequestsPerSecond: cfg.Suggest.RequestsPerSecond,
			Burst:             cfg.Suggest.Burst,
			Timeout:           cfg.Suggest.Timeout,
			CacheTTL:          cfg.Suggest.CacheTTL,
		}, cache, log)
	}

	var reports *store.ReportStore
	if cfg.Database.DSN != "" {
		reports, err = store.OpenReportStore(ctx, cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open report store: %w", err)
		}
		defer reports.Close()
	}

	storage, err := store.NewFSStorage(cfg.Storage.Dir)
	if err != nil {
		return err
	}

	srv := newServer(serverDeps{
		cfg:       cfg,
		log:       log,
		template:  template,
		suggester: suggester,
		reports:   reports,
		storage:   storage,
	})

	// Template edits take effect without a restart.
	err = config.WatchFile(ctx, cfg.Template.Path, log, func(data []byte) {
		tpl, err := detect.ParseTemplate(data)
		if err != nil {
			log.Error("template reload rejected", observability.Error("error", err))
			return
		}
		srv.swapTemplate(tpl)
		log.Info("template reloaded", observability.String("version", tpl.Version))
	})
	if err != nil {
		log.Warn("template watch disabled", observability.Error("error", err))
	}

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", observability.String("addr", cfg.Server.Addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
