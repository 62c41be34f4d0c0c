package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/btmullin/supertl2/internal/api"
	"github.com/btmullin/supertl2/internal/auth"
	"github.com/btmullin/supertl2/internal/config"
	"github.com/btmullin/supertl2/internal/domain"
	persistence "github.com/btmullin/supertl2/internal/persistence/postgres"
	"github.com/btmullin/supertl2/internal/reconcile"
	"github.com/btmullin/supertl2/internal/repair"
	httptransport "github.com/btmullin/supertl2/internal/transport/http"
)

func main() {
	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pool.Close()

	activities := persistence.NewRepository(pool)
	annotations := persistence.NewAnnotationRepository(pool)
	lookups := persistence.NewLookupRepository(pool)

	service := domain.NewService(activities, annotations, lookups)
	engine := reconcile.NewEngine(activities, reconcile.Config{
		Tolerance:       cfg.MatchTolerance,
		MetricTolerance: cfg.MetricTolerance,
		DefaultZone:     cfg.DefaultTimezone,
	}, log)

	repairer := repair.NewRepairer(annotations, cfg.RepairPollInterval, log)
	go repairer.Start(ctx)

	priority := make([]domain.Source, 0, len(cfg.SourcePriority))
	for _, name := range cfg.SourcePriority {
		source := domain.Source(name)
		if source.Valid() {
			priority = append(priority, source)
		}
	}

	handler := api.NewHandler(service, engine, activities, api.HandlerConfig{
		FallbackZone: cfg.DefaultTimezone,
		Priority:     priority,
		WeekStart:    cfg.WeekStart,
	})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(httptransport.WithRequestLogging(log, mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.WithField("address", cfg.HTTPAddress).Info("training log api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}

	repairer.Wait()
}
