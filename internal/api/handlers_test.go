package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/MartinT518/MomentumTracker-sub003/internal/auth"
	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
	"github.com/MartinT518/MomentumTracker-sub003/internal/persistence/memory"
	"github.com/MartinT518/MomentumTracker-sub003/internal/planner"
	syncsvc "github.com/MartinT518/MomentumTracker-sub003/internal/sync"
)

func authedRequest(method, target string, body string, scopes ...string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	scopeSet := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		scopeSet[scope] = struct{}{}
	}
	claims := &auth.Claims{
		Subject:   "user-1",
		TenantID:  "tenant-1",
		Scopes:    scopeSet,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func newTestHandler(store *memory.Store) *Handler {
	reconciler := syncsvc.NewReconciler(store.Activities())
	orchestrator := syncsvc.NewOrchestrator(store, store, reconciler, nil, nil)
	return NewHandler(orchestrator, store, store.Activities(), nil, nil)
}

func seedConnection(t *testing.T, store *memory.Store, platform domain.Platform) {
	t.Helper()
	now := time.Now().UTC()
	err := store.Upsert(context.Background(), domain.IntegrationConnection{
		ID:            "conn-1",
		TenantID:      "tenant-1",
		UserID:        "user-1",
		Platform:      platform,
		AccessToken:   "token",
		RefreshToken:  "refresh",
		ExpiresAt:     now.Add(time.Hour),
		State:         domain.ConnectionStateConnected,
		Active:        true,
		AutoSync:      true,
		SyncFrequency: domain.SyncFrequencyDaily,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("seed connection: %v", err)
	}
}

func TestTriggerSyncNotConnected(t *testing.T) {
	store := memory.NewStore()
	handler := newTestHandler(store)

	req := authedRequest(http.MethodPost, "/v1/integrations/strava/sync", "", auth.ScopeIntegrationsWrite)
	rr := httptest.NewRecorder()
	handler.integrationSubroutes(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["type"] != "not_connected" {
		t.Fatalf("expected not_connected got %q", resp["type"])
	}
}

func TestTriggerSyncConflictWhenAlreadyRunning(t *testing.T) {
	store := memory.NewStore()
	seedConnection(t, store, domain.PlatformStrava)
	err := store.Create(context.Background(), domain.SyncLog{
		ID:          "sync-1",
		TenantID:    "tenant-1",
		UserID:      "user-1",
		Platform:    domain.PlatformStrava,
		Status:      domain.SyncStatusInProgress,
		TriggeredBy: domain.TriggeredByManual,
		StartedAt:   time.Now().UTC(),
	}, false)
	if err != nil {
		t.Fatalf("seed sync log: %v", err)
	}
	handler := newTestHandler(store)

	req := authedRequest(http.MethodPost, "/v1/integrations/strava/sync", "", auth.ScopeIntegrationsWrite)
	rr := httptest.NewRecorder()
	handler.integrationSubroutes(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["type"] != "sync_in_progress" {
		t.Fatalf("expected sync_in_progress got %q", resp["type"])
	}
}

func TestSyncStatusNotFoundWithoutAttempts(t *testing.T) {
	store := memory.NewStore()
	seedConnection(t, store, domain.PlatformGarmin)
	handler := newTestHandler(store)

	req := authedRequest(http.MethodGet, "/v1/integrations/garmin/sync-status", "", auth.ScopeIntegrationsRead)
	rr := httptest.NewRecorder()
	handler.integrationSubroutes(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSyncStatusReturnsLatestAttempt(t *testing.T) {
	store := memory.NewStore()
	seedConnection(t, store, domain.PlatformStrava)
	started := time.Date(2026, time.August, 20, 7, 0, 0, 0, time.UTC)
	for i, status := range []domain.SyncStatus{domain.SyncStatusCompleted, domain.SyncStatusFailed} {
		entry := domain.SyncLog{
			ID:          "sync-" + string(rune('a'+i)),
			TenantID:    "tenant-1",
			UserID:      "user-1",
			Platform:    domain.PlatformStrava,
			Status:      status,
			TriggeredBy: domain.TriggeredByManual,
			StartedAt:   started.Add(time.Duration(i) * time.Hour),
		}
		if err := store.Create(context.Background(), entry, false); err != nil {
			t.Fatalf("seed sync log: %v", err)
		}
	}
	handler := newTestHandler(store)

	req := authedRequest(http.MethodGet, "/v1/integrations/strava/sync-status", "", auth.ScopeIntegrationsRead)
	rr := httptest.NewRecorder()
	handler.integrationSubroutes(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp SyncLogView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != string(domain.SyncStatusFailed) {
		t.Fatalf("expected latest attempt, got status %q", resp.Status)
	}
}

func TestListConnectionsOmitsTokens(t *testing.T) {
	store := memory.NewStore()
	seedConnection(t, store, domain.PlatformPolar)
	handler := newTestHandler(store)

	req := authedRequest(http.MethodGet, "/v1/integrations", "", auth.ScopeIntegrationsRead)
	rr := httptest.NewRecorder()
	handler.integrations(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "token") {
		t.Fatalf("response leaked credentials: %s", rr.Body.String())
	}
	var resp ListConnectionsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Platform != "polar" {
		t.Fatalf("unexpected items: %+v", resp.Items)
	}
}

func TestUpdateSettingsValidatesFrequency(t *testing.T) {
	store := memory.NewStore()
	seedConnection(t, store, domain.PlatformStrava)
	handler := newTestHandler(store)

	req := authedRequest(http.MethodPatch, "/v1/integrations/strava", `{"auto_sync":true,"sync_frequency":"hourly"}`, auth.ScopeIntegrationsWrite)
	rr := httptest.NewRecorder()
	handler.integrationSubroutes(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestUpdateSettingsAppliesRealtime(t *testing.T) {
	store := memory.NewStore()
	seedConnection(t, store, domain.PlatformStrava)
	handler := newTestHandler(store)

	req := authedRequest(http.MethodPatch, "/v1/integrations/strava", `{"auto_sync":true,"sync_frequency":"realtime"}`, auth.ScopeIntegrationsWrite)
	rr := httptest.NewRecorder()
	handler.integrationSubroutes(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp ConnectionView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.SyncFrequency != "realtime" {
		t.Fatalf("expected realtime got %q", resp.SyncFrequency)
	}
}

func TestDisconnectRemovesFromListing(t *testing.T) {
	store := memory.NewStore()
	seedConnection(t, store, domain.PlatformGarmin)
	handler := newTestHandler(store)

	req := authedRequest(http.MethodDelete, "/v1/integrations/garmin", "", auth.ScopeIntegrationsWrite)
	rr := httptest.NewRecorder()
	handler.integrationSubroutes(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d: %s", rr.Code, rr.Body.String())
	}

	conn, err := store.GetByUserPlatform(context.Background(), "tenant-1", "user-1", domain.PlatformGarmin)
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	if conn.Active || conn.State != domain.ConnectionStateDisconnected {
		t.Fatalf("expected disconnected, got %+v", conn)
	}
}

func TestConnectRequiresWriteScope(t *testing.T) {
	store := memory.NewStore()
	handler := newTestHandler(store)

	req := authedRequest(http.MethodPost, "/v1/integrations/strava/connect", "", auth.ScopeIntegrationsRead)
	rr := httptest.NewRecorder()
	handler.integrationSubroutes(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestConnectIssuesAuthorizeURL(t *testing.T) {
	store := memory.NewStore()
	handler := newTestHandler(store)
	handler.oauthConfigs = map[domain.Platform]*oauth2.Config{
		domain.PlatformStrava: {
			ClientID: "client-1",
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://www.strava.com/oauth/authorize",
				TokenURL: "https://www.strava.com/oauth/token",
			},
			RedirectURL: "https://api.example.com/v1/integrations/callback/strava",
			Scopes:      []string{"activity:read_all"},
		},
	}

	req := authedRequest(http.MethodPost, "/v1/integrations/strava/connect", "", auth.ScopeIntegrationsWrite)
	rr := httptest.NewRecorder()
	handler.integrationSubroutes(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp ConnectResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.State == "" || !strings.Contains(resp.AuthorizeURL, "strava.com/oauth/authorize") {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if _, ok := handler.states.take(resp.State); !ok {
		t.Fatalf("state %q was not stored", resp.State)
	}
}

func TestCallbackRejectsUnknownState(t *testing.T) {
	store := memory.NewStore()
	handler := newTestHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/integrations/callback/strava?code=abc&state=missing", nil)
	rr := httptest.NewRecorder()
	handler.integrationSubroutes(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestListActivitiesPaginates(t *testing.T) {
	store := memory.NewStore()
	base := time.Date(2026, time.August, 10, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := store.Activities().Create(context.Background(), domain.Activity{
			ID:           "act-" + string(rune('a'+i)),
			TenantID:     "tenant-1",
			UserID:       "user-1",
			ActivityType: "Run",
			StartedAt:    base.Add(time.Duration(i) * 24 * time.Hour),
			DurationMin:  40,
			Source:       domain.SourceManual,
		})
		if err != nil {
			t.Fatalf("seed activity: %v", err)
		}
	}
	handler := newTestHandler(store)

	req := authedRequest(http.MethodGet, "/v1/activities?limit=2", "", auth.ScopeActivitiesRead)
	rr := httptest.NewRecorder()
	handler.listActivities(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var first ListActivitiesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(first.Items) != 2 || first.NextCursor == "" {
		t.Fatalf("expected 2 items and a cursor, got %+v", first)
	}

	req = authedRequest(http.MethodGet, "/v1/activities?limit=2&cursor="+first.NextCursor, "", auth.ScopeActivitiesRead)
	rr = httptest.NewRecorder()
	handler.listActivities(rr, req)

	var second ListActivitiesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &second); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(second.Items) != 1 {
		t.Fatalf("expected final page of 1, got %+v", second)
	}
	if second.Items[0].ID == first.Items[0].ID || second.Items[0].ID == first.Items[1].ID {
		t.Fatalf("pages overlap: %+v vs %+v", first.Items, second.Items)
	}
}

type stubGenerator struct {
	reply string
	err   error
}

func (s stubGenerator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return s.reply, s.err
}

func TestAdjustPlanUnavailableWithoutPlanner(t *testing.T) {
	store := memory.NewStore()
	handler := newTestHandler(store)

	req := authedRequest(http.MethodPost, "/v1/plans/adjust", `{"goal":"sub-4 marathon","recent_summary":"3 runs"}`, auth.ScopePlansWrite)
	rr := httptest.NewRecorder()
	handler.adjustPlan(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdjustPlanReturnsAdjustments(t *testing.T) {
	store := memory.NewStore()
	handler := newTestHandler(store)
	handler.planner = planner.NewService(stubGenerator{
		reply: `{"summary":"reduce load","adjustments":[{"day":"tuesday","change":"swap intervals for easy run","reason":"fatigue"}]}`,
	})

	req := authedRequest(http.MethodPost, "/v1/plans/adjust", `{"goal":"sub-4 marathon","recent_summary":"missed two sessions","feedback":"legs heavy"}`, auth.ScopePlansWrite)
	rr := httptest.NewRecorder()
	handler.adjustPlan(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp planner.PlanAdjustment
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Summary != "reduce load" || len(resp.Adjustments) != 1 {
		t.Fatalf("unexpected adjustment: %+v", resp)
	}
}

func TestAdjustPlanValidation(t *testing.T) {
	store := memory.NewStore()
	handler := newTestHandler(store)
	handler.planner = planner.NewService(stubGenerator{reply: "{}"})

	req := authedRequest(http.MethodPost, "/v1/plans/adjust", `{"goal":""}`, auth.ScopePlansWrite)
	rr := httptest.NewRecorder()
	handler.adjustPlan(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAdjustPlanUpstreamError(t *testing.T) {
	store := memory.NewStore()
	handler := newTestHandler(store)
	handler.planner = planner.NewService(stubGenerator{err: errors.New("quota exceeded")})

	req := authedRequest(http.MethodPost, "/v1/plans/adjust", `{"goal":"10k PR","recent_summary":"consistent week"}`, auth.ScopePlansWrite)
	rr := httptest.NewRecorder()
	handler.adjustPlan(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d: %s", rr.Code, rr.Body.String())
	}
}
