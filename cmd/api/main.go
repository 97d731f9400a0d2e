package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"paperpedia/api/internal/app"
	"paperpedia/api/internal/archive"
	"paperpedia/api/internal/article"
	"paperpedia/api/internal/cache"
	"paperpedia/api/internal/config"
	"paperpedia/api/internal/email"
	"paperpedia/api/internal/export"
	"paperpedia/api/internal/logging"
	"paperpedia/api/internal/registration"
	"paperpedia/api/internal/search"
	"paperpedia/api/internal/session"
	"paperpedia/api/internal/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("PAPERPEDIA_CONFIG"))
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	if err := store.MigrateUp(cfg.DatabaseURL); err != nil {
		log.WithError(err).Fatal("migrations failed")
	}

	if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
		log.WithError(err).Fatal("create archive dir")
	}

	dataStore := store.NewPostgresStore(db)
	archiveService := archive.New(cfg.ArchiveDir)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPgFTS(db), log)
	if meiliClient != nil && meiliClient.Healthy() {
		go func() {
			n, err := searchService.ReindexAll(ctx, dataStore)
			if err != nil {
				log.WithError(err).Warn("initial reindex failed")
				return
			}
			log.WithField("articles", n).Info("search index rebuilt")
		}()
	}

	articles := article.NewService(dataStore,
		article.WithIndexer(searchService),
		article.WithArchiver(archiveService),
		article.WithLogger(log),
		article.WithSearchLimit(cfg.SearchLimit),
	)

	pending := registration.NewPendingCache(cfg.PendingRegistrationTTL)
	recent := registration.NewRecentCache(cfg.RecentSignupTTL)
	sweeper := cache.NewSweeper(log, pending, recent)
	go sweeper.Run(ctx)

	sender, mailDelivers := email.NewSender(cfg, log)
	if !mailDelivers {
		log.Warn("no mail backend configured, verification links are only logged")
	}
	registry := registration.NewService(dataStore, email.NewMailer(sender), pending, recent, cfg.FrontendURL,
		registration.WithLogger(log),
	)

	checks := map[string]app.Pinger{"database": dataStore}
	var sessions app.SessionStore = dataStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("redis connection failed")
		}
		defer redisStore.Close()
		log.Info("using redis for refresh sessions")
		sessions = redisStore
		checks["redis"] = redisStore
	} else {
		log.Info("using postgres for refresh sessions")
		go purgeExpiredSessions(ctx, dataStore, log)
	}

	service := app.NewService(cfg, app.Dependencies{
		Articles:     articles,
		Registry:     registry,
		Sessions:     sessions,
		Users:        dataStore,
		Search:       searchService,
		Archive:      archiveService,
		Exporter:     export.NewService(dataStore, chromeOption(cfg.ChromePath)...),
		Checks:       checks,
		MailDelivers: mailDelivers,
	}, log)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Addr).Info("PaperPedia API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
	articles.Wait()
}

func chromeOption(path string) []export.Option {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	return []export.Option{export.WithChromePath(path)}
}

func purgeExpiredSessions(ctx context.Context, dataStore *store.PostgresStore, log logrus.FieldLogger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := dataStore.PurgeExpiredSessions(ctx)
			if err != nil {
				log.WithError(err).Warn("purge expired refresh sessions")
				continue
			}
			if n > 0 {
				log.WithField("purged", n).Debug("expired refresh sessions removed")
			}
		}
	}
}
