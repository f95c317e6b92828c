package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arvense/authtrail/internal/models"
)

func seedAuditEntry(t *testing.T, repo AuditLogRepository, userID, action, entity string, at time.Time) *models.AuditLog {
	t.Helper()
	entry := &models.AuditLog{
		ID:          uuid.NewString(),
		UserID:      userID,
		Action:      action,
		Entity:      entity,
		EntityID:    userID,
		IPAddress:   "10.0.0.1",
		Route:       "/api/v1/auth/profile",
		Method:      "PUT",
		StatusCode:  200,
		RequestID:   uuid.NewString(),
		Description: "test entry",
		CreatedAt:   at,
	}
	if err := repo.Create(context.Background(), entry); err != nil {
		t.Fatalf("failed to seed audit entry: %v", err)
	}
	return entry
}

func TestListOrdersNewestFirst(t *testing.T) {
	repo := NewAuditLogRepository(newTestDB(t))

	base := time.Now().Add(-time.Hour)
	seedAuditEntry(t, repo, "user-1", models.ActionCreate, "User", base)
	seedAuditEntry(t, repo, "user-1", models.ActionUpdate, "User", base.Add(time.Minute))
	newest := seedAuditEntry(t, repo, "user-1", models.ActionDelete, "User", base.Add(2*time.Minute))

	entries, total, err := repo.List(context.Background(), models.AuditFilter{}, 1, 20)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(entries) != 3 || entries[0].ID != newest.ID {
		t.Errorf("first entry = %v, want newest", entries[0].ID)
	}
}

func TestListFilters(t *testing.T) {
	repo := NewAuditLogRepository(newTestDB(t))

	base := time.Now().Add(-time.Hour)
	seedAuditEntry(t, repo, "user-1", models.ActionCreate, "User", base)
	seedAuditEntry(t, repo, "user-1", models.ActionUpdate, "User", base.Add(time.Minute))
	seedAuditEntry(t, repo, "user-2", models.ActionUpdate, "Session", base.Add(2*time.Minute))

	tests := []struct {
		name   string
		filter models.AuditFilter
		want   int64
	}{
		{"by user", models.AuditFilter{UserID: "user-1"}, 2},
		{"by action", models.AuditFilter{Action: models.ActionUpdate}, 2},
		{"by entity", models.AuditFilter{Entity: "Session"}, 1},
		{"user and action", models.AuditFilter{UserID: "user-1", Action: models.ActionCreate}, 1},
		{"no match", models.AuditFilter{UserID: "ghost"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, total, err := repo.List(context.Background(), tt.filter, 1, 20)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if total != tt.want {
				t.Errorf("total = %d, want %d", total, tt.want)
			}
		})
	}
}

func TestListDateRangeFilter(t *testing.T) {
	repo := NewAuditLogRepository(newTestDB(t))

	base := time.Now().Add(-3 * time.Hour)
	seedAuditEntry(t, repo, "user-1", models.ActionCreate, "User", base)
	inRange := seedAuditEntry(t, repo, "user-1", models.ActionUpdate, "User", base.Add(time.Hour))
	seedAuditEntry(t, repo, "user-1", models.ActionDelete, "User", base.Add(2*time.Hour))

	start := base.Add(30 * time.Minute)
	end := base.Add(90 * time.Minute)
	entries, total, err := repo.List(context.Background(), models.AuditFilter{StartDate: &start, EndDate: &end}, 1, 20)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || len(entries) != 1 || entries[0].ID != inRange.ID {
		t.Errorf("date range returned %d entries, want only the one inside the window", total)
	}
}

func TestListPagination(t *testing.T) {
	repo := NewAuditLogRepository(newTestDB(t))

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		seedAuditEntry(t, repo, "user-1", models.ActionRead, "User", base.Add(time.Duration(i)*time.Minute))
	}

	page1, total, err := repo.List(context.Background(), models.AuditFilter{}, 1, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 5 || len(page1) != 2 {
		t.Fatalf("page 1: total = %d len = %d, want 5/2", total, len(page1))
	}

	page3, _, err := repo.List(context.Background(), models.AuditFilter{}, 3, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page3) != 1 {
		t.Errorf("page 3 len = %d, want 1", len(page3))
	}

	// Out-of-range paging inputs fall back to sane values.
	fallback, _, err := repo.List(context.Background(), models.AuditFilter{}, -1, 5000)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(fallback) != 5 {
		t.Errorf("fallback page len = %d, want all 5 under default limit", len(fallback))
	}
}

func TestStatsGroupsByEntityAndAction(t *testing.T) {
	repo := NewAuditLogRepository(newTestDB(t))

	base := time.Now().Add(-time.Hour)
	seedAuditEntry(t, repo, "user-1", models.ActionUpdate, "User", base)
	seedAuditEntry(t, repo, "user-2", models.ActionUpdate, "User", base.Add(time.Minute))
	seedAuditEntry(t, repo, "user-1", models.ActionCreate, "User", base.Add(2*time.Minute))

	stats, err := repo.Stats(context.Background(), models.AuditFilter{})
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("stats rows = %d, want 2", len(stats))
	}

	// Ordered by count descending, so UPDATE (2) comes first.
	if stats[0].Action != models.ActionUpdate || stats[0].Count != 2 {
		t.Errorf("first row = %+v, want User/UPDATE count 2", stats[0])
	}
	if stats[1].Action != models.ActionCreate || stats[1].Count != 1 {
		t.Errorf("second row = %+v, want User/CREATE count 1", stats[1])
	}
}

func TestStatsTieBreakIsStable(t *testing.T) {
	repo := NewAuditLogRepository(newTestDB(t))

	base := time.Now().Add(-time.Hour)
	seedAuditEntry(t, repo, "user-1", models.ActionUpdate, "User", base)
	seedAuditEntry(t, repo, "user-1", models.ActionUpdate, "User", base.Add(time.Minute))
	seedAuditEntry(t, repo, "user-1", models.ActionDelete, "User", base.Add(2*time.Minute))
	seedAuditEntry(t, repo, "user-2", models.ActionCreate, "Session", base.Add(3*time.Minute))

	stats, err := repo.Stats(context.Background(), models.AuditFilter{})
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}

	// Busiest pair first; equal counts fall back to entity then action
	// order, so repeated calls return identical rows.
	want := []struct {
		entity string
		action string
		count  int64
	}{
		{"User", models.ActionUpdate, 2},
		{"Session", models.ActionCreate, 1},
		{"User", models.ActionDelete, 1},
	}
	if len(stats) != len(want) {
		t.Fatalf("stats rows = %d, want %d", len(stats), len(want))
	}
	for i, w := range want {
		if stats[i].Entity != w.entity || stats[i].Action != w.action || stats[i].Count != w.count {
			t.Errorf("row %d = %+v, want %s/%s count %d", i, stats[i], w.entity, w.action, w.count)
		}
	}
}

func TestExportRespectsCap(t *testing.T) {
	repo := NewAuditLogRepository(newTestDB(t))

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		seedAuditEntry(t, repo, "user-1", models.ActionRead, "User", base.Add(time.Duration(i)*time.Minute))
	}

	entries, err := repo.Export(context.Background(), models.AuditFilter{}, 4)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("exported %d entries, want capped at 4", len(entries))
	}
	// Newest first, same as List.
	if !entries[0].CreatedAt.After(entries[3].CreatedAt) {
		t.Error("export should be ordered newest first")
	}
}

func TestDeleteOlderThan(t *testing.T) {
	repo := NewAuditLogRepository(newTestDB(t))

	cutoff := time.Now().Add(-24 * time.Hour)
	seedAuditEntry(t, repo, "user-1", models.ActionCreate, "User", cutoff.Add(-time.Hour))
	seedAuditEntry(t, repo, "user-1", models.ActionUpdate, "User", cutoff.Add(-time.Minute))
	kept := seedAuditEntry(t, repo, "user-1", models.ActionDelete, "User", cutoff.Add(time.Hour))

	deleted, err := repo.DeleteOlderThan(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	entries, total, err := repo.List(context.Background(), models.AuditFilter{}, 1, 20)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || entries[0].ID != kept.ID {
		t.Errorf("remaining = %d entries, want only the recent one", total)
	}
}
