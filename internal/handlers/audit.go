package handlers

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arvense/authtrail/internal/apperr"
	"github.com/arvense/authtrail/internal/middleware"
	"github.com/arvense/authtrail/internal/models"
	"github.com/arvense/authtrail/internal/repository"
)

// AuditHandler serves the audit-trail query surface.
type AuditHandler struct {
	auditRepo repository.AuditLogRepository
	exportCap int
}

// NewAuditHandler creates a new AuditHandler instance.
func NewAuditHandler(auditRepo repository.AuditLogRepository, exportCap int) *AuditHandler {
	if exportCap < 1 {
		exportCap = 10000
	}
	return &AuditHandler{auditRepo: auditRepo, exportCap: exportCap}
}

// ListLogs godoc
// @Summary Query audit logs
// @Description Non-admin callers only ever see their own entries, whatever filters they pass
// @Tags audit
// @Security BearerAuth
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param action query string false "CREATE|READ|UPDATE|DELETE"
// @Param entity query string false "Entity name"
// @Param entityId query string false "Entity id"
// @Param userId query string false "Actor id (admin only)"
// @Param startDate query string false "RFC3339 or YYYY-MM-DD"
// @Param endDate query string false "RFC3339 or YYYY-MM-DD"
// @Success 200 {object} map[string]interface{}
// @Router /audit/logs [get]
func (h *AuditHandler) ListLogs(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		RespondError(c, err)
		return
	}

	// Ownership is not negotiable for non-admins.
	if !isAdmin(c) {
		filter.UserID = c.GetString(middleware.ContextUserID)
	}

	page, limit := pageParams(c)
	entries, total, err := h.auditRepo.List(c.Request.Context(), filter, page, limit)
	if err != nil {
		RespondError(c, apperr.FromStorage(err, "audit logs not found"))
		return
	}

	respondPage(c, entries, total, page, limit)
}

// EntityLogs godoc
// @Summary Audit history of one entity
// @Tags audit
// @Security BearerAuth
// @Produce json
// @Param entity path string true "Entity name"
// @Param entityId path string true "Entity id"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Router /audit/entity/{entity}/{entityId} [get]
func (h *AuditHandler) EntityLogs(c *gin.Context) {
	entity := c.Param("entity")
	entityID := c.Param("entityId")

	// Non-admins may inspect only their own user record's history.
	if !isAdmin(c) {
		if entity != "User" || entityID != c.GetString(middleware.ContextUserID) {
			RespondError(c, apperr.Forbidden("you may only view your own audit history"))
			return
		}
	}

	page, limit := pageParams(c)
	entries, total, err := h.auditRepo.ListByEntity(c.Request.Context(), entity, entityID, page, limit)
	if err != nil {
		RespondError(c, apperr.FromStorage(err, "audit logs not found"))
		return
	}

	respondPage(c, entries, total, page, limit)
}

// UserActivity godoc
// @Summary Audit activity of one actor
// @Tags audit
// @Security BearerAuth
// @Produce json
// @Param userId path string true "Actor id"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]interface{}
// @Router /audit/user/{userId}/activity [get]
func (h *AuditHandler) UserActivity(c *gin.Context) {
	userID := c.Param("userId")
	if !isAdmin(c) && userID != c.GetString(middleware.ContextUserID) {
		RespondError(c, apperr.Forbidden("you may only view your own activity"))
		return
	}

	page, limit := pageParams(c)
	entries, total, err := h.auditRepo.ListByUser(c.Request.Context(), userID, page, limit)
	if err != nil {
		RespondError(c, apperr.FromStorage(err, "audit logs not found"))
		return
	}

	respondPage(c, entries, total, page, limit)
}

// Stats godoc
// @Summary Grouped audit counts per entity and action
// @Tags audit
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /audit/stats [get]
func (h *AuditHandler) Stats(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		RespondError(c, err)
		return
	}

	stats, err := h.auditRepo.Stats(c.Request.Context(), filter)
	if err != nil {
		RespondError(c, apperr.FromStorage(err, "audit stats not found"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// GetLog godoc
// @Summary Single audit entry by id
// @Tags audit
// @Security BearerAuth
// @Produce json
// @Param logId path string true "Entry id"
// @Success 200 {object} models.AuditLog
// @Failure 404 {object} map[string]interface{}
// @Router /audit/log/{logId} [get]
func (h *AuditHandler) GetLog(c *gin.Context) {
	entry, err := h.auditRepo.GetByID(c.Request.Context(), c.Param("logId"))
	if err != nil {
		RespondError(c, apperr.FromStorage(err, "audit log not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": entry})
}

// Export godoc
// @Summary Bulk export of audit entries, capped
// @Tags audit
// @Security BearerAuth
// @Produce json
// @Param format query string false "json or csv"
// @Success 200
// @Router /audit/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		RespondError(c, err)
		return
	}

	entries, repoErr := h.auditRepo.Export(c.Request.Context(), filter, h.exportCap)
	if repoErr != nil {
		RespondError(c, apperr.FromStorage(repoErr, "audit logs not found"))
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "csv":
		h.exportCSV(c, entries)
	case "json":
		c.Header("Content-Disposition", `attachment; filename="audit-export.json"`)
		c.JSON(http.StatusOK, gin.H{"logs": entries, "count": len(entries)})
	default:
		RespondError(c, apperr.Validation("format must be json or csv", nil))
	}
}

func (h *AuditHandler) exportCSV(c *gin.Context, entries []models.AuditLog) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="audit-export.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"id", "user_id", "action", "entity", "entity_id", "method", "route", "status_code", "ip_address", "request_id", "description", "created_at"})
	for _, e := range entries {
		_ = w.Write([]string{
			e.ID, e.UserID, e.Action, e.Entity, e.EntityID,
			e.Method, e.Route, strconv.Itoa(e.StatusCode),
			e.IPAddress, e.RequestID, e.Description,
			e.CreatedAt.Format(time.RFC3339),
		})
	}
	w.Flush()
}

func isAdmin(c *gin.Context) bool {
	return c.GetString(middleware.ContextUserRole) == models.RoleAdmin
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, limit
}

func filterFromQuery(c *gin.Context) (models.AuditFilter, error) {
	filter := models.AuditFilter{
		UserID:   c.Query("userId"),
		Action:   c.Query("action"),
		Entity:   c.Query("entity"),
		EntityID: c.Query("entityId"),
	}

	for _, q := range []struct {
		name string
		dst  **time.Time
	}{
		{"startDate", &filter.StartDate},
		{"endDate", &filter.EndDate},
	} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		t, err := parseDate(raw)
		if err != nil {
			return filter, apperr.Validation(q.name+" must be RFC3339 or YYYY-MM-DD", nil)
		}
		*q.dst = &t
	}

	return filter, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func respondPage(c *gin.Context, entries []models.AuditLog, total int64, page, limit int) {
	c.JSON(http.StatusOK, gin.H{
		"logs":  entries,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}
