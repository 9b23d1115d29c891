package sync

import (
	"context"
	"testing"
	"time"

	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
	"github.com/MartinT518/MomentumTracker-sub003/internal/persistence/memory"
)

func seedAutoSyncConnection(t *testing.T, store *memory.Store, id, userID string, frequency domain.SyncFrequency, lastSyncedAt *time.Time) {
	t.Helper()
	now := time.Now().UTC()
	err := store.Upsert(context.Background(), domain.IntegrationConnection{
		ID:            id,
		TenantID:      testTenant,
		UserID:        userID,
		Platform:      domain.PlatformStrava,
		AccessToken:   "access",
		ExpiresAt:     now.Add(time.Hour),
		State:         domain.ConnectionStateConnected,
		Active:        true,
		AutoSync:      true,
		SyncFrequency: frequency,
		LastSyncedAt:  lastSyncedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("seed connection: %v", err)
	}
}

func newScheduler(store *memory.Store, client *fakeClient) *Scheduler {
	orchestrator := newOrchestrator(store, client, nil)
	return NewScheduler(store, orchestrator, time.Minute, 24*time.Hour, 50)
}

func TestSchedulerTriggersStaleDaily(t *testing.T) {
	store := memory.NewStore()
	now := time.Now().UTC()
	stale := now.Add(-25 * time.Hour)
	fresh := now.Add(-time.Hour)
	seedAutoSyncConnection(t, store, "conn-stale", "user-stale", domain.SyncFrequencyDaily, &stale)
	seedAutoSyncConnection(t, store, "conn-fresh", "user-fresh", domain.SyncFrequencyDaily, &fresh)

	client := &fakeClient{platform: domain.PlatformStrava}
	scheduler := newScheduler(store, client)

	triggered, err := scheduler.RunOnce(context.Background(), now)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if triggered != 1 {
		t.Fatalf("expected 1 trigger, got %d", triggered)
	}
	scheduler.orchestrator.Wait()

	staleLog, err := store.Latest(context.Background(), testTenant, "user-stale", domain.PlatformStrava)
	if err != nil {
		t.Fatalf("latest stale: %v", err)
	}
	if staleLog == nil || staleLog.TriggeredBy != domain.TriggeredByScheduled {
		t.Fatalf("stale connection not triggered as scheduled: %+v", staleLog)
	}

	freshLog, err := store.Latest(context.Background(), testTenant, "user-fresh", domain.PlatformStrava)
	if err != nil {
		t.Fatalf("latest fresh: %v", err)
	}
	if freshLog != nil {
		t.Fatalf("fresh daily connection must not be triggered: %+v", freshLog)
	}
}

func TestSchedulerTriggersNeverSyncedConnection(t *testing.T) {
	store := memory.NewStore()
	seedAutoSyncConnection(t, store, "conn-new", "user-new", domain.SyncFrequencyDaily, nil)

	client := &fakeClient{platform: domain.PlatformStrava}
	scheduler := newScheduler(store, client)

	triggered, err := scheduler.RunOnce(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if triggered != 1 {
		t.Fatalf("never-synced connection should be due, got %d", triggered)
	}
	scheduler.orchestrator.Wait()
}

func TestSchedulerTriggersRealtimeEveryPass(t *testing.T) {
	store := memory.NewStore()
	recent := time.Now().UTC().Add(-time.Minute)
	seedAutoSyncConnection(t, store, "conn-rt", "user-rt", domain.SyncFrequencyRealtime, &recent)

	client := &fakeClient{platform: domain.PlatformStrava}
	scheduler := newScheduler(store, client)

	triggered, err := scheduler.RunOnce(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if triggered != 1 {
		t.Fatalf("realtime connection should be due every pass, got %d", triggered)
	}
	scheduler.orchestrator.Wait()
}

func TestSchedulerSkipsDisconnected(t *testing.T) {
	store := memory.NewStore()
	stale := time.Now().UTC().Add(-48 * time.Hour)
	seedAutoSyncConnection(t, store, "conn-gone", "user-gone", domain.SyncFrequencyDaily, &stale)
	if err := store.Disconnect(context.Background(), testTenant, "user-gone", domain.PlatformStrava); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	client := &fakeClient{platform: domain.PlatformStrava}
	scheduler := newScheduler(store, client)

	triggered, err := scheduler.RunOnce(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if triggered != 0 {
		t.Fatalf("disconnected connection must not be triggered, got %d", triggered)
	}
}

func TestSchedulerToleratesRunningSync(t *testing.T) {
	store := memory.NewStore()
	stale := time.Now().UTC().Add(-48 * time.Hour)
	seedAutoSyncConnection(t, store, "conn-busy", "user-busy", domain.SyncFrequencyDaily, &stale)
	err := store.Create(context.Background(), domain.SyncLog{
		ID:        "sync-busy",
		TenantID:  testTenant,
		UserID:    "user-busy",
		Platform:  domain.PlatformStrava,
		Status:    domain.SyncStatusInProgress,
		StartedAt: time.Now().UTC(),
	}, false)
	if err != nil {
		t.Fatalf("seed log: %v", err)
	}

	client := &fakeClient{platform: domain.PlatformStrava}
	scheduler := newScheduler(store, client)

	triggered, err := scheduler.RunOnce(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("run once must tolerate a running sync: %v", err)
	}
	if triggered != 0 {
		t.Fatalf("busy connection must not double-trigger, got %d", triggered)
	}
}
