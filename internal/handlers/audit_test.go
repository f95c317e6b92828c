package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/arvense/authtrail/internal/models"
	"github.com/arvense/authtrail/internal/repository"
)

// =============================================================================
// Mock AuditLogRepository
// =============================================================================

type mockAuditRepo struct {
	listFunc         func(ctx context.Context, filter models.AuditFilter, page, limit int) ([]models.AuditLog, int64, error)
	listByEntityFunc func(ctx context.Context, entity, entityID string, page, limit int) ([]models.AuditLog, int64, error)
	listByUserFunc   func(ctx context.Context, userID string, page, limit int) ([]models.AuditLog, int64, error)
	statsFunc        func(ctx context.Context, filter models.AuditFilter) ([]models.AuditStat, error)
	exportFunc       func(ctx context.Context, filter models.AuditFilter, cap int) ([]models.AuditLog, error)
	getByIDFunc      func(ctx context.Context, id string) (*models.AuditLog, error)
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	return errors.New("not implemented")
}

func (m *mockAuditRepo) GetByID(ctx context.Context, id string) (*models.AuditLog, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockAuditRepo) List(ctx context.Context, filter models.AuditFilter, page, limit int) ([]models.AuditLog, int64, error) {
	return m.listFunc(ctx, filter, page, limit)
}

func (m *mockAuditRepo) ListByEntity(ctx context.Context, entity, entityID string, page, limit int) ([]models.AuditLog, int64, error) {
	return m.listByEntityFunc(ctx, entity, entityID, page, limit)
}

func (m *mockAuditRepo) ListByUser(ctx context.Context, userID string, page, limit int) ([]models.AuditLog, int64, error) {
	return m.listByUserFunc(ctx, userID, page, limit)
}

func (m *mockAuditRepo) Stats(ctx context.Context, filter models.AuditFilter) ([]models.AuditStat, error) {
	return m.statsFunc(ctx, filter)
}

func (m *mockAuditRepo) Export(ctx context.Context, filter models.AuditFilter, cap int) ([]models.AuditLog, error) {
	return m.exportFunc(ctx, filter, cap)
}

func (m *mockAuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, errors.New("not implemented")
}

// =============================================================================
// Test Setup
// =============================================================================

func sampleEntries() []models.AuditLog {
	return []models.AuditLog{{
		ID:          "log-1",
		UserID:      "user-1",
		Action:      models.ActionUpdate,
		Entity:      "User",
		EntityID:    "user-1",
		Method:      "PUT",
		Route:       "/api/v1/auth/profile",
		StatusCode:  200,
		RequestID:   "req-1",
		Description: "Updated User with ID user-1",
		CreatedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}}
}

func newAuditTestRouter(repo repository.AuditLogRepository, userID, role string) *gin.Engine {
	h := NewAuditHandler(repo, 10000)
	r := gin.New()
	audit := r.Group("/api/v1/audit", asUser(userID, role))
	audit.GET("/logs", h.ListLogs)
	audit.GET("/entity/:entity/:entityId", h.EntityLogs)
	audit.GET("/user/:userId/activity", h.UserActivity)
	audit.GET("/stats", h.Stats)
	audit.GET("/log/:logId", h.GetLog)
	audit.GET("/export", h.Export)
	return r
}

func getPath(r *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// =============================================================================
// Ownership Tests
// =============================================================================

func TestListLogsForcesOwnScopeForNonAdmins(t *testing.T) {
	var gotFilter models.AuditFilter
	repo := &mockAuditRepo{
		listFunc: func(ctx context.Context, filter models.AuditFilter, page, limit int) ([]models.AuditLog, int64, error) {
			gotFilter = filter
			return sampleEntries(), 1, nil
		},
	}
	r := newAuditTestRouter(repo, "user-1", models.RoleUser)

	// The caller asks for someone else's entries; the handler overrides.
	w := getPath(r, "/api/v1/audit/logs?userId=user-2")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotFilter.UserID != "user-1" {
		t.Errorf("filter user = %q, want forced to the caller's own id", gotFilter.UserID)
	}
}

func TestListLogsAdminKeepsRequestedScope(t *testing.T) {
	var gotFilter models.AuditFilter
	repo := &mockAuditRepo{
		listFunc: func(ctx context.Context, filter models.AuditFilter, page, limit int) ([]models.AuditLog, int64, error) {
			gotFilter = filter
			return sampleEntries(), 1, nil
		},
	}
	r := newAuditTestRouter(repo, "admin-1", models.RoleAdmin)

	w := getPath(r, "/api/v1/audit/logs?userId=user-2&action=UPDATE")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotFilter.UserID != "user-2" || gotFilter.Action != models.ActionUpdate {
		t.Errorf("admin filter = %+v, want requested scope preserved", gotFilter)
	}
}

func TestListLogsRejectsBadDates(t *testing.T) {
	repo := &mockAuditRepo{
		listFunc: func(ctx context.Context, filter models.AuditFilter, page, limit int) ([]models.AuditLog, int64, error) {
			t.Fatal("repository must not be called on a bad filter")
			return nil, 0, nil
		},
	}
	r := newAuditTestRouter(repo, "user-1", models.RoleUser)

	w := getPath(r, "/api/v1/audit/logs?startDate=yesterday")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestEntityLogsOwnershipGate(t *testing.T) {
	repo := &mockAuditRepo{
		listByEntityFunc: func(ctx context.Context, entity, entityID string, page, limit int) ([]models.AuditLog, int64, error) {
			return sampleEntries(), 1, nil
		},
	}

	tests := []struct {
		name       string
		role       string
		path       string
		wantStatus int
	}{
		{"own user record", models.RoleUser, "/api/v1/audit/entity/User/user-1", http.StatusOK},
		{"someone else's record", models.RoleUser, "/api/v1/audit/entity/User/user-2", http.StatusForbidden},
		{"non-user entity", models.RoleUser, "/api/v1/audit/entity/Session/user-1", http.StatusForbidden},
		{"admin sees anything", models.RoleAdmin, "/api/v1/audit/entity/Session/user-2", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newAuditTestRouter(repo, "user-1", tt.role)
			if w := getPath(r, tt.path); w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestUserActivitySelfOrAdmin(t *testing.T) {
	repo := &mockAuditRepo{
		listByUserFunc: func(ctx context.Context, userID string, page, limit int) ([]models.AuditLog, int64, error) {
			return sampleEntries(), 1, nil
		},
	}

	tests := []struct {
		name       string
		role       string
		path       string
		wantStatus int
	}{
		{"own activity", models.RoleUser, "/api/v1/audit/user/user-1/activity", http.StatusOK},
		{"other's activity", models.RoleUser, "/api/v1/audit/user/user-2/activity", http.StatusForbidden},
		{"admin any activity", models.RoleAdmin, "/api/v1/audit/user/user-2/activity", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newAuditTestRouter(repo, "user-1", tt.role)
			if w := getPath(r, tt.path); w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

// =============================================================================
// Stats / Get / Export Tests
// =============================================================================

func TestStatsReturnsAggregates(t *testing.T) {
	repo := &mockAuditRepo{
		statsFunc: func(ctx context.Context, filter models.AuditFilter) ([]models.AuditStat, error) {
			return []models.AuditStat{{Entity: "User", Action: models.ActionUpdate, Count: 7}}, nil
		},
	}
	r := newAuditTestRouter(repo, "admin-1", models.RoleAdmin)

	w := getPath(r, "/api/v1/audit/stats")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"count":7`) {
		t.Errorf("aggregate missing from response: %s", w.Body.String())
	}
}

func TestGetLogNotFound(t *testing.T) {
	repo := &mockAuditRepo{
		getByIDFunc: func(ctx context.Context, id string) (*models.AuditLog, error) {
			return nil, gorm.ErrRecordNotFound
		},
	}
	r := newAuditTestRouter(repo, "admin-1", models.RoleAdmin)

	if w := getPath(r, "/api/v1/audit/log/missing"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestExportJSON(t *testing.T) {
	repo := &mockAuditRepo{
		exportFunc: func(ctx context.Context, filter models.AuditFilter, cap int) ([]models.AuditLog, error) {
			if cap != 10000 {
				t.Errorf("cap = %d, want configured 10000", cap)
			}
			return sampleEntries(), nil
		},
	}
	r := newAuditTestRouter(repo, "admin-1", models.RoleAdmin)

	w := getPath(r, "/api/v1/audit/export")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "audit-export.json") {
		t.Errorf("Content-Disposition = %q, want json attachment", w.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(w.Body.String(), `"count":1`) {
		t.Errorf("count missing from export: %s", w.Body.String())
	}
}

func TestExportCSV(t *testing.T) {
	repo := &mockAuditRepo{
		exportFunc: func(ctx context.Context, filter models.AuditFilter, cap int) ([]models.AuditLog, error) {
			return sampleEntries(), nil
		},
	}
	r := newAuditTestRouter(repo, "admin-1", models.RoleAdmin)

	w := getPath(r, "/api/v1/audit/export?format=csv")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d, want header + 1 row", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,user_id,action,entity") {
		t.Errorf("header row = %q", lines[0])
	}
	if !strings.Contains(lines[1], "log-1") || !strings.Contains(lines[1], models.ActionUpdate) {
		t.Errorf("data row = %q", lines[1])
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	repo := &mockAuditRepo{
		exportFunc: func(ctx context.Context, filter models.AuditFilter, cap int) ([]models.AuditLog, error) {
			return sampleEntries(), nil
		},
	}
	r := newAuditTestRouter(repo, "admin-1", models.RoleAdmin)

	if w := getPath(r, "/api/v1/audit/export?format=xml"); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
