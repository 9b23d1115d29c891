// Package api exposes HTTP handlers for the integration service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/MartinT518/MomentumTracker-sub003/internal/auth"
	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
	"github.com/MartinT518/MomentumTracker-sub003/internal/observability"
	"github.com/MartinT518/MomentumTracker-sub003/internal/persistence"
	"github.com/MartinT518/MomentumTracker-sub003/internal/planner"
	syncsvc "github.com/MartinT518/MomentumTracker-sub003/internal/sync"
)

// CallbackPathPrefix is exempt from bearer auth: the platforms redirect the
// user's browser here and identity is carried by the opaque state parameter.
const CallbackPathPrefix = "/v1/integrations/callback/"

// PlanAdjuster is the surface the handler needs from the planner service.
type PlanAdjuster interface {
	AdjustPlan(ctx context.Context, input planner.AdjustmentInput) (*planner.PlanAdjustment, error)
}

// Handler coordinates HTTP requests with the sync workflow.
type Handler struct {
	orchestrator *syncsvc.Orchestrator
	connections  domain.ConnectionRepository
	activities   domain.ActivityRepository
	planner      PlanAdjuster
	oauthConfigs map[domain.Platform]*oauth2.Config
	states       *stateStore
}

// NewHandler builds a Handler. planner may be nil when no API key is configured.
func NewHandler(orchestrator *syncsvc.Orchestrator, connections domain.ConnectionRepository, activities domain.ActivityRepository, planAdjuster PlanAdjuster, oauthConfigs map[domain.Platform]*oauth2.Config) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		connections:  connections,
		activities:   activities,
		planner:      planAdjuster,
		oauthConfigs: oauthConfigs,
		states:       newStateStore(10 * time.Minute),
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/integrations", h.integrations)
	mux.HandleFunc("/v1/integrations/", h.integrationSubroutes)
	mux.HandleFunc("/v1/activities", h.listActivities)
	mux.HandleFunc("/v1/plans/adjust", h.adjustPlan)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) integrations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	h.listConnections(w, r)
}

func (h *Handler) integrationSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/integrations/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	if len(parts) == 2 && parts[0] == "callback" {
		h.oauthCallback(w, r, parts[1])
		return
	}

	platform, err := domain.ParsePlatform(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.disconnect(w, r, platform)
	case len(parts) == 1 && r.Method == http.MethodPatch:
		h.updateSettings(w, r, platform)
	case len(parts) == 2 && parts[1] == "connect" && r.Method == http.MethodPost:
		h.connect(w, r, platform)
	case len(parts) == 2 && parts[1] == "sync" && r.Method == http.MethodPost:
		h.triggerSync(w, r, platform)
	case len(parts) == 2 && parts[1] == "sync-status" && r.Method == http.MethodGet:
		h.syncStatus(w, r, platform)
	case len(parts) == 2 && parts[1] == "sync-history" && r.Method == http.MethodGet:
		h.syncHistory(w, r, platform)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) listConnections(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeIntegrationsRead, auth.ScopeIntegrationsWrite)
	if !ok {
		return
	}

	connections, err := h.connections.ListByUser(r.Context(), claims.TenantID, claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ConnectionView, 0, len(connections))
	for _, conn := range connections {
		items = append(items, toConnectionView(conn))
	}
	writeJSON(w, http.StatusOK, ListConnectionsResponse{Items: items})
}

func (h *Handler) connect(w http.ResponseWriter, r *http.Request, platform domain.Platform) {
	claims, ok := requireScope(w, r, auth.ScopeIntegrationsWrite)
	if !ok {
		return
	}

	cfg, found := h.oauthConfigs[platform]
	if !found {
		writeError(w, http.StatusBadRequest, "invalid_request", "platform not configured")
		return
	}

	state := uuid.NewString()
	h.states.put(state, pendingConnect{
		TenantID: claims.TenantID,
		UserID:   claims.Subject,
		Platform: platform,
	})

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	writeJSON(w, http.StatusOK, ConnectResponse{AuthorizeURL: authURL, State: state})
}

func (h *Handler) oauthCallback(w http.ResponseWriter, r *http.Request, rawPlatform string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	platform, err := domain.ParsePlatform(rawPlatform)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing code or state")
		return
	}

	pending, found := h.states.take(state)
	if !found || pending.Platform != platform {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown or expired state")
		return
	}

	cfg, found := h.oauthConfigs[platform]
	if !found {
		writeError(w, http.StatusBadRequest, "invalid_request", "platform not configured")
		return
	}

	token, err := cfg.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusBadGateway, "oauth_exchange_failed", err.Error())
		return
	}

	now := time.Now().UTC()
	conn := domain.IntegrationConnection{
		ID:            uuid.NewString(),
		TenantID:      pending.TenantID,
		UserID:        pending.UserID,
		Platform:      platform,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		ExpiresAt:     token.Expiry.UTC(),
		State:         domain.ConnectionStateConnected,
		Active:        true,
		AutoSync:      true,
		SyncFrequency: domain.SyncFrequencyDaily,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := h.connections.Upsert(r.Context(), conn); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	observability.RecordConnectionActivated(now)

	writeJSON(w, http.StatusOK, map[string]string{
		"platform": string(platform),
		"state":    string(domain.ConnectionStateConnected),
	})
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request, platform domain.Platform) {
	claims, ok := requireScope(w, r, auth.ScopeIntegrationsWrite)
	if !ok {
		return
	}

	if err := h.connections.Disconnect(r.Context(), claims.TenantID, claims.Subject, platform); err != nil {
		if errors.Is(err, domain.ErrConnectionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no connection for platform")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request, platform domain.Platform) {
	claims, ok := requireScope(w, r, auth.ScopeIntegrationsWrite)
	if !ok {
		return
	}

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	frequency, err := req.Validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	conn, err := h.connections.UpdateSettings(r.Context(), claims.TenantID, claims.Subject, platform, req.AutoSync, frequency)
	if err != nil {
		if errors.Is(err, domain.ErrConnectionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no connection for platform")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toConnectionView(*conn))
}

func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request, platform domain.Platform) {
	claims, ok := requireScope(w, r, auth.ScopeIntegrationsWrite)
	if !ok {
		return
	}

	var req TriggerSyncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
	}

	triggeredBy := domain.TriggeredByManual
	if req.ForceSync {
		triggeredBy = domain.TriggeredByForced
	}

	entry, err := h.orchestrator.TriggerSync(r.Context(), claims.TenantID, claims.Subject, platform, req.ForceSync, triggeredBy)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotConnected):
			writeError(w, http.StatusNotFound, "not_connected", "no active connection for platform")
		case errors.Is(err, domain.ErrSyncInProgress):
			writeError(w, http.StatusConflict, "sync_in_progress", "a sync is already running for this platform")
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, toSyncLogView(*entry))
}

func (h *Handler) syncStatus(w http.ResponseWriter, r *http.Request, platform domain.Platform) {
	claims, ok := requireScope(w, r, auth.ScopeIntegrationsRead, auth.ScopeIntegrationsWrite)
	if !ok {
		return
	}

	entry, err := h.orchestrator.LastSyncStatus(r.Context(), claims.TenantID, claims.Subject, platform)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "not_found", "no sync attempts for platform")
		return
	}
	writeJSON(w, http.StatusOK, toSyncLogView(*entry))
}

func (h *Handler) syncHistory(w http.ResponseWriter, r *http.Request, platform domain.Platform) {
	claims, ok := requireScope(w, r, auth.ScopeIntegrationsRead, auth.ScopeIntegrationsWrite)
	if !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	entries, err := h.orchestrator.SyncHistory(r.Context(), claims.TenantID, claims.Subject, platform, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]SyncLogView, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toSyncLogView(entry))
	}
	writeJSON(w, http.StatusOK, SyncHistoryResponse{Items: items})
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, next, err := h.activities.ListByUser(r.Context(), claims.TenantID, claims.Subject, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, activity := range activities {
		items = append(items, toActivityView(activity))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: items, NextCursor: persistence.EncodeCursor(next)})
}

func (h *Handler) adjustPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	if _, ok := requireScope(w, r, auth.ScopePlansWrite); !ok {
		return
	}

	if h.planner == nil {
		writeError(w, http.StatusServiceUnavailable, "planner_unavailable", "plan adjustment is not configured")
		return
	}

	var req AdjustPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	adjustment, err := h.planner.AdjustPlan(r.Context(), planner.AdjustmentInput{
		Goal:           req.Goal,
		RecentSummary:  req.RecentSummary,
		ClientFeedback: req.Feedback,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, "planner_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, adjustment)
}

// requireScope resolves claims and enforces that any of the scopes is present.
func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return nil, false
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
