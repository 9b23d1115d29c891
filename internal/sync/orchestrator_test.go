package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
	"github.com/MartinT518/MomentumTracker-sub003/internal/persistence/memory"
	"github.com/MartinT518/MomentumTracker-sub003/internal/platform"
)

type fakeClient struct {
	platform              domain.Platform
	activities            []platform.ExternalActivity
	err                   error
	failuresBeforeSuccess int
	calls                 int
}

func (f *fakeClient) Platform() domain.Platform { return f.platform }

func (f *fakeClient) ListActivities(ctx context.Context, accessToken string, since time.Time) ([]platform.ExternalActivity, error) {
	f.calls++
	if f.failuresBeforeSuccess > 0 {
		f.failuresBeforeSuccess--
		return nil, platform.ErrTokenExpired
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.activities, nil
}

type fakeRefresher struct {
	token *oauth2.Token
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context, p domain.Platform, refreshToken string) (*oauth2.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

func seedOrchestratorConnection(t *testing.T, store *memory.Store, expiresAt time.Time) domain.IntegrationConnection {
	t.Helper()
	now := time.Now().UTC()
	conn := domain.IntegrationConnection{
		ID:            "conn-1",
		TenantID:      testTenant,
		UserID:        testUser,
		Platform:      domain.PlatformStrava,
		AccessToken:   "access",
		RefreshToken:  "refresh",
		ExpiresAt:     expiresAt,
		State:         domain.ConnectionStateConnected,
		Active:        true,
		AutoSync:      true,
		SyncFrequency: domain.SyncFrequencyDaily,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := store.Upsert(context.Background(), conn); err != nil {
		t.Fatalf("seed connection: %v", err)
	}
	return conn
}

func newOrchestrator(store *memory.Store, client platform.Client, refresher TokenRefresher) *Orchestrator {
	registry := platform.Registry{}
	if client != nil {
		registry = platform.NewRegistry(client)
	}
	return NewOrchestrator(store, store, NewReconciler(store.Activities()), registry, refresher)
}

func TestTriggerSyncRequiresActiveConnection(t *testing.T) {
	store := memory.NewStore()
	orchestrator := newOrchestrator(store, nil, nil)

	_, err := orchestrator.TriggerSync(context.Background(), testTenant, testUser, domain.PlatformStrava, false, domain.TriggeredByManual)
	if !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestTriggerSyncRejectsConcurrentAttempt(t *testing.T) {
	store := memory.NewStore()
	seedOrchestratorConnection(t, store, time.Now().Add(time.Hour))
	err := store.Create(context.Background(), domain.SyncLog{
		ID:          "sync-running",
		TenantID:    testTenant,
		UserID:      testUser,
		Platform:    domain.PlatformStrava,
		Status:      domain.SyncStatusInProgress,
		TriggeredBy: domain.TriggeredByManual,
		StartedAt:   time.Now().UTC(),
	}, false)
	if err != nil {
		t.Fatalf("seed log: %v", err)
	}

	orchestrator := newOrchestrator(store, nil, nil)
	_, err = orchestrator.TriggerSync(context.Background(), testTenant, testUser, domain.PlatformStrava, false, domain.TriggeredByManual)
	if !errors.Is(err, domain.ErrSyncInProgress) {
		t.Fatalf("expected ErrSyncInProgress, got %v", err)
	}

	logs, err := store.List(context.Background(), testTenant, testUser, domain.PlatformStrava, 10)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("rejected trigger must not leave a log row, got %d", len(logs))
	}
}

func TestTriggerSyncForceBypassesGuard(t *testing.T) {
	store := memory.NewStore()
	seedOrchestratorConnection(t, store, time.Now().Add(time.Hour))
	err := store.Create(context.Background(), domain.SyncLog{
		ID:        "sync-stuck",
		TenantID:  testTenant,
		UserID:    testUser,
		Platform:  domain.PlatformStrava,
		Status:    domain.SyncStatusInProgress,
		StartedAt: time.Now().UTC().Add(-time.Hour),
	}, false)
	if err != nil {
		t.Fatalf("seed log: %v", err)
	}

	client := &fakeClient{platform: domain.PlatformStrava}
	orchestrator := newOrchestrator(store, client, nil)

	entry, err := orchestrator.TriggerSync(context.Background(), testTenant, testUser, domain.PlatformStrava, true, domain.TriggeredByForced)
	if err != nil {
		t.Fatalf("forced trigger: %v", err)
	}
	orchestrator.Wait()

	final, err := store.Latest(context.Background(), testTenant, testUser, domain.PlatformStrava)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if final.ID != entry.ID || final.Status != domain.SyncStatusCompleted {
		t.Fatalf("expected forced sync to complete, got %+v", final)
	}

	// The stuck attempt is superseded, keeping a single non-terminal log.
	history, err := store.List(context.Background(), testTenant, testUser, domain.PlatformStrava, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, log := range history {
		if log.ID != "sync-stuck" {
			continue
		}
		if log.Status != domain.SyncStatusFailed || log.FinishedAt == nil {
			t.Fatalf("stuck log not superseded: %+v", log)
		}
		return
	}
	t.Fatal("stuck log missing from history")
}

func TestSyncCompletesAndRecordsCounts(t *testing.T) {
	store := memory.NewStore()
	seedOrchestratorConnection(t, store, time.Now().Add(time.Hour))

	base := time.Date(2026, time.August, 20, 7, 0, 0, 0, time.UTC)
	client := &fakeClient{
		platform: domain.PlatformStrava,
		activities: []platform.ExternalActivity{
			{ExternalID: "ext-1", ActivityType: "Run", StartedAt: base, DurationMin: 40, DistanceMeters: 8000, ModifiedAt: base},
			{ExternalID: "ext-2", ActivityType: "Ride", StartedAt: base.Add(time.Hour), DurationMin: 60, DistanceMeters: 20000, ModifiedAt: base},
		},
	}
	orchestrator := newOrchestrator(store, client, nil)

	entry, err := orchestrator.TriggerSync(context.Background(), testTenant, testUser, domain.PlatformStrava, false, domain.TriggeredByManual)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if entry.Status != domain.SyncStatusPending {
		t.Fatalf("trigger must return a pending log, got %s", entry.Status)
	}
	orchestrator.Wait()

	final, err := store.Latest(context.Background(), testTenant, testUser, domain.PlatformStrava)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if final.Status != domain.SyncStatusCompleted {
		t.Fatalf("expected completed, got %+v", final)
	}
	if final.ItemsSynced != 2 || final.Created != 2 {
		t.Fatalf("unexpected counts: %+v", final)
	}
	if final.FinishedAt == nil {
		t.Fatal("completed log must carry finished_at")
	}

	conn, err := store.GetByUserPlatform(context.Background(), testTenant, testUser, domain.PlatformStrava)
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	if conn.LastSyncedAt == nil {
		t.Fatal("successful sync must advance last_synced_at")
	}
}

func TestSyncFailureIsTerminal(t *testing.T) {
	store := memory.NewStore()
	seedOrchestratorConnection(t, store, time.Now().Add(time.Hour))

	client := &fakeClient{platform: domain.PlatformStrava, err: errors.New("upstream 500")}
	orchestrator := newOrchestrator(store, client, nil)

	if _, err := orchestrator.TriggerSync(context.Background(), testTenant, testUser, domain.PlatformStrava, false, domain.TriggeredByManual); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	orchestrator.Wait()

	final, err := store.Latest(context.Background(), testTenant, testUser, domain.PlatformStrava)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if final.Status != domain.SyncStatusFailed {
		t.Fatalf("expected failed, got %+v", final)
	}
	if final.ErrorMessage == "" {
		t.Fatal("failed log must carry the error message")
	}
}

func TestSyncRefreshesExpiredTokenOnce(t *testing.T) {
	store := memory.NewStore()
	seedOrchestratorConnection(t, store, time.Now().Add(-time.Minute))

	base := time.Date(2026, time.August, 20, 7, 0, 0, 0, time.UTC)
	client := &fakeClient{
		platform:   domain.PlatformStrava,
		activities: []platform.ExternalActivity{{ExternalID: "ext-1", ActivityType: "Run", StartedAt: base, ModifiedAt: base}},
	}
	refresher := &fakeRefresher{token: &oauth2.Token{
		AccessToken:  "fresh-access",
		RefreshToken: "fresh-refresh",
		Expiry:       time.Now().Add(6 * time.Hour),
	}}
	orchestrator := newOrchestrator(store, client, refresher)

	if _, err := orchestrator.TriggerSync(context.Background(), testTenant, testUser, domain.PlatformStrava, false, domain.TriggeredByManual); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	orchestrator.Wait()

	final, err := store.Latest(context.Background(), testTenant, testUser, domain.PlatformStrava)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if final.Status != domain.SyncStatusCompleted {
		t.Fatalf("expected completed after refresh, got %+v", final)
	}

	conn, err := store.GetByUserPlatform(context.Background(), testTenant, testUser, domain.PlatformStrava)
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	if conn.AccessToken != "fresh-access" || conn.RefreshToken != "fresh-refresh" {
		t.Fatalf("refreshed tokens not persisted: %+v", conn)
	}
}

func TestSyncDegradesConnectionOnRefreshFailure(t *testing.T) {
	store := memory.NewStore()
	seedOrchestratorConnection(t, store, time.Now().Add(-time.Minute))

	client := &fakeClient{platform: domain.PlatformStrava}
	refresher := &fakeRefresher{err: errors.New("invalid_grant")}
	orchestrator := newOrchestrator(store, client, refresher)

	if _, err := orchestrator.TriggerSync(context.Background(), testTenant, testUser, domain.PlatformStrava, false, domain.TriggeredByManual); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	orchestrator.Wait()

	final, err := store.Latest(context.Background(), testTenant, testUser, domain.PlatformStrava)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if final.Status != domain.SyncStatusFailed {
		t.Fatalf("expected failed, got %+v", final)
	}

	conn, err := store.GetByUserPlatform(context.Background(), testTenant, testUser, domain.PlatformStrava)
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	if conn.State != domain.ConnectionStateDegraded {
		t.Fatalf("expected degraded connection, got %s", conn.State)
	}
}

func TestSyncRetriesAfterMidFetchTokenExpiry(t *testing.T) {
	store := memory.NewStore()
	seedOrchestratorConnection(t, store, time.Now().Add(time.Hour))

	base := time.Date(2026, time.August, 20, 7, 0, 0, 0, time.UTC)
	client := &fakeClient{
		platform:              domain.PlatformStrava,
		failuresBeforeSuccess: 1,
		activities:            []platform.ExternalActivity{{ExternalID: "ext-1", ActivityType: "Run", StartedAt: base, ModifiedAt: base}},
	}
	refresher := &fakeRefresher{token: &oauth2.Token{AccessToken: "fresh", Expiry: time.Now().Add(time.Hour)}}
	orchestrator := newOrchestrator(store, client, refresher)

	if _, err := orchestrator.TriggerSync(context.Background(), testTenant, testUser, domain.PlatformStrava, false, domain.TriggeredByManual); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	orchestrator.Wait()

	final, err := store.Latest(context.Background(), testTenant, testUser, domain.PlatformStrava)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if final.Status != domain.SyncStatusCompleted {
		t.Fatalf("expected completed after retry, got %+v", final)
	}
	if client.calls != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", client.calls)
	}
}
