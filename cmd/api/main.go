package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"

	"github.com/MartinT518/MomentumTracker-sub003/internal/api"
	"github.com/MartinT518/MomentumTracker-sub003/internal/auth"
	"github.com/MartinT518/MomentumTracker-sub003/internal/config"
	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
	"github.com/MartinT518/MomentumTracker-sub003/internal/outbox"
	persistence "github.com/MartinT518/MomentumTracker-sub003/internal/persistence/postgres"
	"github.com/MartinT518/MomentumTracker-sub003/internal/planner"
	"github.com/MartinT518/MomentumTracker-sub003/internal/platform"
	syncsvc "github.com/MartinT518/MomentumTracker-sub003/internal/sync"
	httptransport "github.com/MartinT518/MomentumTracker-sub003/internal/transport/http"
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
	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)

	go dispatcher.Start(ctx)

	oauthConfigs := buildOAuthConfigs(cfg)
	clients := platform.NewRegistry(
		platform.NewStravaClient(),
		platform.NewGarminClient(),
		platform.NewPolarClient(),
	)
	refresher := platform.NewRefresher(oauthConfigs)
	reconciler := syncsvc.NewReconciler(repo.Activities())
	orchestrator := syncsvc.NewOrchestrator(repo, repo, reconciler, clients, refresher)

	var planAdjuster api.PlanAdjuster
	if cfg.GeminiAPIKey != "" {
		gemini, err := planner.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatalf("failed to create gemini client: %v", err)
		}
		defer gemini.Close()
		planAdjuster = planner.NewService(gemini)
	} else {
		log.Printf("GEMINI_API_KEY not set, plan adjustment disabled")
	}

	handler := api.NewHandler(orchestrator, repo, repo.Activities(), planAdjuster, oauthConfigs)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Simple CORS middleware for local dev
	cors := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost:5173")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	// The OAuth callback is hit by a browser redirect and carries no bearer
	// token; identity comes from the state parameter instead.
	skipper := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/metrics" ||
			strings.HasPrefix(r.URL.Path, api.CallbackPathPrefix)
	}
	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, skipper)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(logger(cors(mux))))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("integration-service listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	orchestrator.Wait()
	dispatcher.Wait()
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
			log.Printf("%s oauth credentials not set, platform disabled", p)
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
