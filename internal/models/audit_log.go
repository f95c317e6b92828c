package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audit actions. Every entry records exactly one of these.
const (
	ActionCreate = "CREATE"
	ActionRead   = "READ"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// EntityIDUnknown is the sentinel entity id recorded when an id could
// not be inferred from the request or response.
const EntityIDUnknown = "unknown"

// AuditLog is one immutable fact about one action taken against one
// entity. Entries are append-only: nothing in this service updates or
// deletes them except the retention sweep.
type AuditLog struct {
	ID          string         `json:"id" gorm:"primaryKey;type:uuid"`
	UserID      string         `json:"user_id" gorm:"index:idx_audit_user_time,priority:1;not null"`
	Action      string         `json:"action" gorm:"index:idx_audit_action_time,priority:1;not null"`
	Entity      string         `json:"entity" gorm:"index:idx_audit_entity_time,priority:1;not null"`
	EntityID    string         `json:"entity_id" gorm:"not null"`
	Before      datatypes.JSON `json:"before,omitempty"`
	After       datatypes.JSON `json:"after,omitempty"`
	IPAddress   string         `json:"ip_address"`
	UserAgent   string         `json:"user_agent"`
	Route       string         `json:"route"`
	Method      string         `json:"method"`
	StatusCode  int            `json:"status_code"`
	RequestID   string         `json:"request_id" gorm:"index"`
	Description string         `json:"description"`
	CreatedAt   time.Time      `json:"created_at" gorm:"index:idx_audit_user_time,priority:2;index:idx_audit_action_time,priority:2;index:idx_audit_entity_time,priority:2"`
}

// TableName returns the database table name for the AuditLog model.
func (AuditLog) TableName() string {
	return "audit_logs"
}

// RequestMeta is the request-scoped metadata attached to every entry.
type RequestMeta struct {
	IPAddress  string `json:"ip_address"`
	UserAgent  string `json:"user_agent"`
	Route      string `json:"route"`
	Method     string `json:"method"`
	StatusCode int    `json:"status_code"`
	RequestID  string `json:"request_id"`
}

// AuditFilter narrows audit queries. Zero values mean "no constraint".
type AuditFilter struct {
	UserID    string
	Action    string
	Entity    string
	EntityID  string
	StartDate *time.Time
	EndDate   *time.Time
}

// AuditStat is one row of the aggregate view: activity for one
// (entity, action) pair.
type AuditStat struct {
	Entity       string    `json:"entity"`
	Action       string    `json:"action"`
	Count        int64     `json:"count"`
	LastActivity time.Time `json:"last_activity"`
}
