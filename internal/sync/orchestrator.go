package sync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
	"github.com/MartinT518/MomentumTracker-sub003/internal/observability"
	"github.com/MartinT518/MomentumTracker-sub003/internal/platform"
)

// TokenRefresher exchanges a refresh token for fresh credentials.
type TokenRefresher interface {
	Refresh(ctx context.Context, p domain.Platform, refreshToken string) (*oauth2.Token, error)
}

// Option configures optional behaviour for the Orchestrator.
type Option func(*Orchestrator)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// Orchestrator triggers sync attempts, runs fetch+reconcile off the request
// path, and exposes the latest status for polling clients.
type Orchestrator struct {
	connections domain.ConnectionRepository
	logs        domain.SyncLogRepository
	reconciler  *Reconciler
	clients     platform.Registry
	refresher   TokenRefresher
	logger      *log.Logger
	wg          sync.WaitGroup
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(connections domain.ConnectionRepository, logs domain.SyncLogRepository, reconciler *Reconciler, clients platform.Registry, refresher TokenRefresher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		connections: connections,
		logs:        logs,
		reconciler:  reconciler,
		clients:     clients,
		refresher:   refresher,
		logger:      log.New(log.Writer(), "[sync] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// TriggerSync starts a sync attempt for the (user, platform) pair. The
// returned log is in pending; the fetch+reconcile runs on a detached
// goroutine and always drives the log to a terminal status.
func (o *Orchestrator) TriggerSync(ctx context.Context, tenantID, userID string, p domain.Platform, force bool, triggeredBy string) (*domain.SyncLog, error) {
	conn, err := o.connections.GetByUserPlatform(ctx, tenantID, userID, p)
	if err != nil {
		return nil, err
	}
	if conn == nil || !conn.Active {
		return nil, domain.ErrNotConnected
	}

	if latest, err := o.logs.Latest(ctx, tenantID, userID, p); err != nil {
		return nil, err
	} else if latest != nil && !latest.Status.Terminal() && !force {
		return nil, domain.ErrSyncInProgress
	}

	entry := domain.SyncLog{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		UserID:      userID,
		Platform:    p,
		Status:      domain.SyncStatusPending,
		TriggeredBy: triggeredBy,
		StartedAt:   time.Now().UTC(),
	}
	if err := o.logs.Create(ctx, entry, force); err != nil {
		return nil, err
	}

	syncsTriggeredCounter.WithLabelValues(string(p), triggeredBy).Inc()
	syncsInFlightGauge.Inc()

	o.wg.Add(1)
	go o.run(context.WithoutCancel(ctx), *conn, entry)

	return &entry, nil
}

// LastSyncStatus returns the most recent sync log by start time, or nil if
// the pair has never synced. Side-effect free.
func (o *Orchestrator) LastSyncStatus(ctx context.Context, tenantID, userID string, p domain.Platform) (*domain.SyncLog, error) {
	return o.logs.Latest(ctx, tenantID, userID, p)
}

// SyncHistory lists recent sync logs, newest first.
func (o *Orchestrator) SyncHistory(ctx context.Context, tenantID, userID string, p domain.Platform, limit int) ([]domain.SyncLog, error) {
	return o.logs.List(ctx, tenantID, userID, p, limit)
}

// Wait blocks until all in-flight sync attempts have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, conn domain.IntegrationConnection, entry domain.SyncLog) {
	defer o.wg.Done()
	defer syncsInFlightGauge.Dec()
	defer func() {
		if rec := recover(); rec != nil {
			o.finish(ctx, entry, domain.SyncStatusFailed, domain.SyncResult{}, fmt.Sprintf("panic: %v", rec))
		}
	}()

	if err := o.logs.MarkInProgress(ctx, entry.TenantID, entry.ID); err != nil {
		o.logger.Printf("mark in_progress failed (sync=%s): %v", entry.ID, err)
	}

	client, ok := o.clients.Client(conn.Platform)
	if !ok {
		o.finish(ctx, entry, domain.SyncStatusFailed, domain.SyncResult{}, fmt.Sprintf("no client registered for platform %s", conn.Platform))
		return
	}

	token, err := o.ensureToken(ctx, &conn)
	if err != nil {
		o.finish(ctx, entry, domain.SyncStatusFailed, domain.SyncResult{}, err.Error())
		return
	}

	since := time.Time{}
	if conn.LastSyncedAt != nil {
		since = *conn.LastSyncedAt
	}

	externals, err := client.ListActivities(ctx, token, since)
	if err == platform.ErrTokenExpired {
		// The stored expiry was stale; refresh once and retry.
		token, err = o.refreshTokens(ctx, &conn)
		if err == nil {
			externals, err = client.ListActivities(ctx, token, since)
		}
	}
	if err != nil {
		o.finish(ctx, entry, domain.SyncStatusFailed, domain.SyncResult{}, err.Error())
		return
	}

	result, err := o.reconciler.Reconcile(ctx, entry.TenantID, entry.UserID, entry.Platform, externals)
	if err != nil {
		o.finish(ctx, entry, domain.SyncStatusFailed, result, err.Error())
		return
	}

	o.finish(ctx, entry, domain.SyncStatusCompleted, result, "")

	if err := o.connections.MarkSynced(ctx, conn.TenantID, conn.ID, time.Now().UTC()); err != nil {
		o.logger.Printf("mark synced failed (connection=%s): %v", conn.ID, err)
	}
}

// ensureToken returns a usable access token, refreshing up front when the
// stored expiry has passed. A refresh failure degrades the connection.
func (o *Orchestrator) ensureToken(ctx context.Context, conn *domain.IntegrationConnection) (string, error) {
	if !conn.TokenExpired(time.Now().UTC()) {
		return conn.AccessToken, nil
	}
	return o.refreshTokens(ctx, conn)
}

func (o *Orchestrator) refreshTokens(ctx context.Context, conn *domain.IntegrationConnection) (string, error) {
	token, err := o.refresher.Refresh(ctx, conn.Platform, conn.RefreshToken)
	if err != nil {
		if stateErr := o.connections.SetState(ctx, conn.TenantID, conn.ID, domain.ConnectionStateDegraded); stateErr != nil {
			o.logger.Printf("degrade connection failed (connection=%s): %v", conn.ID, stateErr)
		}
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	refreshToken := conn.RefreshToken
	if token.RefreshToken != "" {
		refreshToken = token.RefreshToken
	}
	if err := o.connections.SaveTokens(ctx, conn.TenantID, conn.ID, token.AccessToken, refreshToken, token.Expiry.UTC()); err != nil {
		o.logger.Printf("save tokens failed (connection=%s): %v", conn.ID, err)
	}

	conn.AccessToken = token.AccessToken
	conn.RefreshToken = refreshToken
	conn.ExpiresAt = token.Expiry.UTC()
	return token.AccessToken, nil
}

func (o *Orchestrator) finish(ctx context.Context, entry domain.SyncLog, status domain.SyncStatus, result domain.SyncResult, errorMessage string) {
	finishedAt := time.Now().UTC()
	if err := o.logs.Finish(ctx, entry.TenantID, entry.ID, status, result, errorMessage, finishedAt); err != nil {
		o.logger.Printf("finish failed (sync=%s, status=%s): %v", entry.ID, status, err)
		return
	}

	syncsFinishedCounter.WithLabelValues(string(entry.Platform), string(status)).Inc()
	syncDuration.Observe(finishedAt.Sub(entry.StartedAt).Seconds())
	if status == domain.SyncStatusCompleted {
		observability.RecordSyncCompleted(finishedAt)
	} else {
		o.logger.Printf("sync failed (sync=%s, platform=%s): %s", entry.ID, entry.Platform, errorMessage)
	}
}
