// Package memory provides in-memory repositories for local development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
)

// Store holds all three repositories behind one mutex so unit tests can
// exercise the orchestrator and scheduler without Postgres.
type Store struct {
	mu          sync.RWMutex
	connections map[string]domain.IntegrationConnection
	syncLogs    map[string]domain.SyncLog
	activities  map[string]domain.Activity
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		connections: make(map[string]domain.IntegrationConnection),
		syncLogs:    make(map[string]domain.SyncLog),
		activities:  make(map[string]domain.Activity),
	}
}

// GetByUserPlatform implements domain.ConnectionRepository.
func (s *Store) GetByUserPlatform(ctx context.Context, tenantID, userID string, platform domain.Platform) (*domain.IntegrationConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, conn := range s.connections {
		if conn.TenantID == tenantID && conn.UserID == userID && conn.Platform == platform {
			copied := conn
			return &copied, nil
		}
	}
	return nil, nil
}

// ListByUser implements domain.ConnectionRepository.
func (s *Store) ListByUser(ctx context.Context, tenantID, userID string) ([]domain.IntegrationConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.IntegrationConnection, 0)
	for _, conn := range s.connections {
		if conn.TenantID == tenantID && conn.UserID == userID {
			out = append(out, conn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

// Upsert implements domain.ConnectionRepository. The existing row for the
// (user, platform) pair is replaced, keeping the pair unique.
func (s *Store) Upsert(ctx context.Context, conn domain.IntegrationConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(conn.ID) == "" {
		conn.ID = uuid.NewString()
	}
	for id, existing := range s.connections {
		if existing.TenantID == conn.TenantID && existing.UserID == conn.UserID && existing.Platform == conn.Platform {
			conn.ID = id
			break
		}
	}
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = time.Now().UTC()
	}
	conn.UpdatedAt = time.Now().UTC()
	s.connections[conn.ID] = conn
	return nil
}

// UpdateSettings implements domain.ConnectionRepository.
func (s *Store) UpdateSettings(ctx context.Context, tenantID, userID string, platform domain.Platform, autoSync bool, frequency domain.SyncFrequency) (*domain.IntegrationConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conn := range s.connections {
		if conn.TenantID == tenantID && conn.UserID == userID && conn.Platform == platform {
			conn.AutoSync = autoSync
			conn.SyncFrequency = frequency
			conn.UpdatedAt = time.Now().UTC()
			s.connections[id] = conn
			copied := conn
			return &copied, nil
		}
	}
	return nil, domain.ErrConnectionNotFound
}

// Disconnect implements domain.ConnectionRepository.
func (s *Store) Disconnect(ctx context.Context, tenantID, userID string, platform domain.Platform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, conn := range s.connections {
		if conn.TenantID == tenantID && conn.UserID == userID && conn.Platform == platform {
			conn.Active = false
			conn.AutoSync = false
			conn.State = domain.ConnectionStateDisconnected
			conn.UpdatedAt = time.Now().UTC()
			s.connections[id] = conn
			return nil
		}
	}
	return domain.ErrConnectionNotFound
}

// SetState implements domain.ConnectionRepository.
func (s *Store) SetState(ctx context.Context, tenantID, connectionID string, state domain.ConnectionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[connectionID]
	if !ok || conn.TenantID != tenantID {
		return domain.ErrConnectionNotFound
	}
	conn.State = state
	conn.UpdatedAt = time.Now().UTC()
	s.connections[connectionID] = conn
	return nil
}

// SaveTokens implements domain.ConnectionRepository.
func (s *Store) SaveTokens(ctx context.Context, tenantID, connectionID, accessToken, refreshToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[connectionID]
	if !ok || conn.TenantID != tenantID {
		return domain.ErrConnectionNotFound
	}
	conn.AccessToken = accessToken
	conn.RefreshToken = refreshToken
	conn.ExpiresAt = expiresAt
	conn.UpdatedAt = time.Now().UTC()
	s.connections[connectionID] = conn
	return nil
}

// MarkSynced implements domain.ConnectionRepository.
func (s *Store) MarkSynced(ctx context.Context, tenantID, connectionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[connectionID]
	if !ok || conn.TenantID != tenantID {
		return domain.ErrConnectionNotFound
	}
	conn.LastSyncedAt = &at
	conn.UpdatedAt = time.Now().UTC()
	s.connections[connectionID] = conn
	return nil
}

// ListDueAutoSync implements domain.ConnectionRepository.
func (s *Store) ListDueAutoSync(ctx context.Context, now time.Time, dailyInterval time.Duration, limit int) ([]domain.IntegrationConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.IntegrationConnection, 0)
	for _, conn := range s.connections {
		if len(out) >= limit {
			break
		}
		if !conn.Active || !conn.AutoSync || conn.State != domain.ConnectionStateConnected {
			continue
		}
		switch conn.SyncFrequency {
		case domain.SyncFrequencyRealtime:
			out = append(out, conn)
		case domain.SyncFrequencyDaily:
			if conn.LastSyncedAt == nil || !conn.LastSyncedAt.After(now.Add(-dailyInterval)) {
				out = append(out, conn)
			}
		}
	}
	return out, nil
}

// Create implements domain.SyncLogRepository. At most one non-terminal log
// exists per pair; a forced trigger marks the in-flight log failed before
// inserting its own.
func (s *Store) Create(ctx context.Context, entry domain.SyncLog, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.syncLogs {
		if existing.TenantID != entry.TenantID || existing.UserID != entry.UserID || existing.Platform != entry.Platform || existing.Status.Terminal() {
			continue
		}
		if !force {
			return domain.ErrSyncInProgress
		}
		finished := entry.StartedAt
		existing.Status = domain.SyncStatusFailed
		existing.FinishedAt = &finished
		existing.ErrorMessage = "superseded by forced sync"
		s.syncLogs[id] = existing
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	s.syncLogs[entry.ID] = entry
	return nil
}

// Latest implements domain.SyncLogRepository.
func (s *Store) Latest(ctx context.Context, tenantID, userID string, platform domain.Platform) (*domain.SyncLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.SyncLog
	for _, entry := range s.syncLogs {
		if entry.TenantID != tenantID || entry.UserID != userID || entry.Platform != platform {
			continue
		}
		if latest == nil || entry.StartedAt.After(latest.StartedAt) {
			copied := entry
			latest = &copied
		}
	}
	return latest, nil
}

// List implements domain.SyncLogRepository.
func (s *Store) List(ctx context.Context, tenantID, userID string, platform domain.Platform, limit int) ([]domain.SyncLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SyncLog, 0)
	for _, entry := range s.syncLogs {
		if entry.TenantID == tenantID && entry.UserID == userID && entry.Platform == platform {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkInProgress implements domain.SyncLogRepository.
func (s *Store) MarkInProgress(ctx context.Context, tenantID, syncID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.syncLogs[syncID]
	if !ok || entry.TenantID != tenantID || entry.Status.Terminal() {
		return nil
	}
	entry.Status = domain.SyncStatusInProgress
	s.syncLogs[syncID] = entry
	return nil
}

// Finish implements domain.SyncLogRepository.
func (s *Store) Finish(ctx context.Context, tenantID, syncID string, status domain.SyncStatus, result domain.SyncResult, errorMessage string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.syncLogs[syncID]
	if !ok || entry.TenantID != tenantID || entry.Status.Terminal() {
		return nil
	}
	entry.Status = status
	entry.FinishedAt = &finishedAt
	entry.ItemsSynced = result.ItemsSynced
	entry.Created = result.Created
	entry.Updated = result.Updated
	entry.Skipped = result.Skipped
	entry.ErrorMessage = errorMessage
	s.syncLogs[syncID] = entry
	return nil
}

// FindByExternalID implements domain.ActivityRepository.
func (s *Store) FindByExternalID(ctx context.Context, tenantID, userID, source, externalID string) (*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, activity := range s.activities {
		if activity.TenantID == tenantID && activity.UserID == userID && activity.Source == source && activity.ExternalID == externalID {
			copied := activity
			return &copied, nil
		}
	}
	return nil, nil
}

// FindByDay implements domain.ActivityRepository.
func (s *Store) FindByDay(ctx context.Context, tenantID, userID, activityType string, day time.Time) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Activity, 0)
	for _, activity := range s.activities {
		if activity.TenantID != tenantID || activity.UserID != userID || activity.ActivityType != activityType {
			continue
		}
		if activity.StartedAt.UTC().Truncate(24 * time.Hour).Equal(day) {
			out = append(out, activity)
		}
	}
	return out, nil
}

// CreateActivity implements domain.ActivityRepository via Create; the method
// set collides with SyncLogRepository.Create, so the Store exposes the
// activity repository through a typed view.
type activityView struct {
	store *Store
}

// Activities returns the Store as a domain.ActivityRepository.
func (s *Store) Activities() domain.ActivityRepository {
	return activityView{store: s}
}

func (v activityView) FindByExternalID(ctx context.Context, tenantID, userID, source, externalID string) (*domain.Activity, error) {
	return v.store.FindByExternalID(ctx, tenantID, userID, source, externalID)
}

func (v activityView) FindByDay(ctx context.Context, tenantID, userID, activityType string, day time.Time) ([]domain.Activity, error) {
	return v.store.FindByDay(ctx, tenantID, userID, activityType, day)
}

func (v activityView) Create(ctx context.Context, activity domain.Activity) error {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	if strings.TrimSpace(activity.ID) == "" {
		activity.ID = uuid.NewString()
	}
	v.store.activities[activity.ID] = activity
	return nil
}

func (v activityView) Update(ctx context.Context, activity domain.Activity) error {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	v.store.activities[activity.ID] = activity
	return nil
}

func (v activityView) ListByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()

	all := make([]domain.Activity, 0)
	for _, activity := range v.store.activities {
		if activity.TenantID == tenantID && activity.UserID == userID {
			all = append(all, activity)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].StartedAt.After(all[j].StartedAt)
		}
		return all[i].ID > all[j].ID
	})

	start := 0
	if cursor != nil {
		for i, activity := range all {
			if activity.StartedAt.Before(cursor.StartedAt) || (activity.StartedAt.Equal(cursor.StartedAt) && activity.ID < cursor.ID) {
				start = i
				break
			}
			start = len(all)
		}
	}

	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	page := all[start:end]

	var next *domain.Cursor
	if len(page) == limit && end < len(all) {
		last := page[len(page)-1]
		next = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return page, next, nil
}
