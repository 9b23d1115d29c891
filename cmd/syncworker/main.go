package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"

	"github.com/MartinT518/MomentumTracker-sub003/internal/config"
	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
	persistence "github.com/MartinT518/MomentumTracker-sub003/internal/persistence/postgres"
	"github.com/MartinT518/MomentumTracker-sub003/internal/platform"
	syncsvc "github.com/MartinT518/MomentumTracker-sub003/internal/sync"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)

	oauthConfigs := buildOAuthConfigs(cfg)
	clients := platform.NewRegistry(
		platform.NewStravaClient(),
		platform.NewGarminClient(),
		platform.NewPolarClient(),
	)
	refresher := platform.NewRefresher(oauthConfigs)
	reconciler := syncsvc.NewReconciler(repo.Activities())
	orchestrator := syncsvc.NewOrchestrator(repo, repo, reconciler, clients, refresher)
	scheduler := syncsvc.NewScheduler(repo, orchestrator, cfg.AutoSyncPollInterval, cfg.DailySyncInterval, cfg.AutoSyncBatchSize)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		log.Printf("sync worker metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	go scheduler.Start(ctx)
	log.Printf("sync worker started (interval=%s, dailyInterval=%s, batch=%d)", cfg.AutoSyncPollInterval, cfg.DailySyncInterval, cfg.AutoSyncBatchSize)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("sync worker received shutdown signal")
	cancel()

	scheduler.Wait()
	orchestrator.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}
}

func buildOAuthConfigs(cfg config.Config) map[domain.Platform]*oauth2.Config {
	credentials := map[domain.Platform]config.OAuthCredentials{
		domain.PlatformStrava: cfg.Strava,
		domain.PlatformGarmin: cfg.Garmin,
		domain.PlatformPolar:  cfg.Polar,
	}

	configs := make(map[domain.Platform]*oauth2.Config)
	for p, creds := range credentials {
		if creds.ClientID == "" {
			continue
		}
		oc, err := platform.NewOAuthConfig(p, creds.ClientID, creds.ClientSecret, cfg.OAuthRedirectBase)
		if err != nil {
			log.Fatalf("failed to build %s oauth config: %v", p, err)
		}
		configs[p] = oc
	}
	return configs
}
