package service

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/datatypes"

	"github.com/arvense/authtrail/internal/models"
	"github.com/arvense/authtrail/internal/repository"
)

var (
	auditEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authtrail_audit_entries_enqueued_total",
		Help: "Audit entries accepted onto the recording queue.",
	})
	auditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authtrail_audit_entries_dropped_total",
		Help: "Audit entries dropped because the recording queue was full.",
	})
	auditFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authtrail_audit_persist_failures_total",
		Help: "Audit entries that failed to persist.",
	})
)

// AuditRecorder is the façade the handlers and the audit middleware
// both call. It never returns an error: audit recording is best-effort
// and must never fail or delay the primary request.
type AuditRecorder interface {
	LogCreate(actorID, entity, entityID string, after interface{}, meta models.RequestMeta, description string)
	LogRead(actorID, entity, entityID string, meta models.RequestMeta, description string)
	LogUpdate(actorID, entity, entityID string, before, after interface{}, meta models.RequestMeta, description string)
	LogDelete(actorID, entity, entityID string, before interface{}, meta models.RequestMeta, description string)
	// Close drains the queue; used at shutdown and in tests.
	Close()
}

type auditRecorder struct {
	repo  repository.AuditLogRepository
	queue chan *models.AuditLog
	done  chan struct{}
}

// NewAuditRecorder starts a single background worker draining a
// bounded queue. A full queue drops the newest entry and counts the
// drop; blocking the request path is never acceptable here.
func NewAuditRecorder(repo repository.AuditLogRepository, queueSize int) AuditRecorder {
	if queueSize < 1 {
		queueSize = 1024
	}
	r := &auditRecorder{
		repo:  repo,
		queue: make(chan *models.AuditLog, queueSize),
		done:  make(chan struct{}),
	}
	go r.worker()
	return r
}

func (r *auditRecorder) worker() {
	defer close(r.done)
	for entry := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.repo.Create(ctx, entry); err != nil {
			auditFailed.Inc()
			log.Printf("audit: failed to persist %s %s/%s: %v", entry.Action, entry.Entity, entry.EntityID, err)
		}
		cancel()
	}
}

func (r *auditRecorder) Close() {
	close(r.queue)
	<-r.done
}

func (r *auditRecorder) LogCreate(actorID, entity, entityID string, after interface{}, meta models.RequestMeta, description string) {
	r.enqueue(actorID, models.ActionCreate, entity, entityID, nil, after, meta, description)
}

func (r *auditRecorder) LogRead(actorID, entity, entityID string, meta models.RequestMeta, description string) {
	r.enqueue(actorID, models.ActionRead, entity, entityID, nil, nil, meta, description)
}

func (r *auditRecorder) LogUpdate(actorID, entity, entityID string, before, after interface{}, meta models.RequestMeta, description string) {
	r.enqueue(actorID, models.ActionUpdate, entity, entityID, before, after, meta, description)
}

func (r *auditRecorder) LogDelete(actorID, entity, entityID string, before interface{}, meta models.RequestMeta, description string) {
	r.enqueue(actorID, models.ActionDelete, entity, entityID, before, nil, meta, description)
}

func (r *auditRecorder) enqueue(actorID, action, entity, entityID string, before, after interface{}, meta models.RequestMeta, description string) {
	entry := &models.AuditLog{
		ID:          uuid.NewString(),
		UserID:      actorID,
		Action:      action,
		Entity:      entity,
		EntityID:    entityID,
		Before:      toSnapshot(before),
		After:       toSnapshot(after),
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		Route:       meta.Route,
		Method:      meta.Method,
		StatusCode:  meta.StatusCode,
		RequestID:   meta.RequestID,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}

	select {
	case r.queue <- entry:
		auditEnqueued.Inc()
	default:
		auditDropped.Inc()
	}
}

// toSnapshot marshals a snapshot value to JSON with sensitive fields
// removed. Unmarshalable values are recorded as null rather than
// failing the entry.
func toSnapshot(v interface{}) datatypes.JSON {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil
	}
	sanitized, err := json.Marshal(Sanitize(generic))
	if err != nil {
		return nil
	}
	return datatypes.JSON(sanitized)
}

// Sanitize strips credential material out of snapshot values before
// they reach storage. It recurses through maps and slices; matching
// keys are replaced with a redaction marker so the field's presence
// stays visible in the trail.
func Sanitize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			if isSensitiveKey(k) {
				out[k] = "[REDACTED]"
				continue
			}
			out[k] = Sanitize(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = Sanitize(inner)
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, needle := range []string{"password", "token", "secret", "hash", "authorization"} {
		if strings.Contains(k, needle) {
			return true
		}
	}
	return false
}
