package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arvense/authtrail/internal/models"
	"github.com/arvense/authtrail/internal/service"
)

// Context keys used by the audit interceptor.
const (
	// ContextAuditOriginal lets a handler attach the pre-change value
	// of the entity when it is cheaply available, used as the "before"
	// snapshot for UPDATE and DELETE.
	ContextAuditOriginal = "audit_original"
	// ContextAuditHandled marks a request whose handler already wrote
	// a precise audit entry, so the interceptor stays quiet.
	ContextAuditHandled = "audit_handled"
)

// MarkAuditHandled suppresses the automatic interceptor for the
// current request. Handlers call it when their service layer records a
// precise entry itself.
func MarkAuditHandled(c *gin.Context) {
	c.Set(ContextAuditHandled, true)
}

// SetAuditOriginal attaches the pre-change entity value for the
// interceptor's "before" snapshot.
func SetAuditOriginal(c *gin.Context, original interface{}) {
	c.Set(ContextAuditOriginal, original)
}

// EntityRule maps a path prefix to an entity name, first match wins.
type EntityRule struct {
	Prefix string
	Entity string
}

// AuditTrailConfig controls what the interceptor records.
type AuditTrailConfig struct {
	// SkipPrefixes are never audited (health, metrics, the audit query
	// surface itself).
	SkipPrefixes []string
	// SensitiveReads are GET prefixes that are audited despite being
	// reads.
	SensitiveReads []string
	// Entities is the ordered path-to-entity table. Exact matches win
	// over prefix matches; unmatched paths fall back to the
	// capitalized first path segment.
	Entities []EntityRule
}

// DefaultAuditTrailConfig returns the mapping used in production.
func DefaultAuditTrailConfig() AuditTrailConfig {
	return AuditTrailConfig{
		SkipPrefixes: []string{
			"/health",
			"/metrics",
			"/api/v1/audit",
			"/swagger",
		},
		SensitiveReads: []string{
			"/api/v1/auth/me",
		},
		Entities: []EntityRule{
			{Prefix: "/api/v1/auth", Entity: "User"},
			{Prefix: "/api/v1/users", Entity: "User"},
		},
	}
}

var (
	uuidPattern    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	hex24Pattern   = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
	versionPattern = regexp.MustCompile(`^v\d+$`)
)

// captureWriter tees everything written to the response so the
// interceptor can read the payload after it has been sent. It changes
// neither the bytes nor the timing the client observes.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// AuditTrail records mutating API calls without the handlers having to
// know about logging. It infers action, entity and entity id from the
// traffic shape and enqueues an entry on the recorder after the
// response has been written; a failure anywhere in here can only lose
// an audit entry, never affect the response.
func AuditTrail(recorder service.AuditRecorder, cfg AuditTrailConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, prefix := range cfg.SkipPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		// The request body is consumed by binding, so snapshot it up
		// front and restore the reader.
		var reqBody []byte
		if c.Request.Body != nil && c.Request.Method != http.MethodGet {
			reqBody, _ = io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
			c.Request.Body = io.NopCloser(bytes.NewReader(reqBody))
		}

		cw := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = cw

		c.Next()

		// Response is flushed; everything below is off the client's
		// critical path except for this (cheap, allocation-only)
		// decision code. Persistence happens on the recorder's worker.
		if c.GetBool(ContextAuditHandled) {
			return
		}
		actorID := c.GetString(ContextUserID)
		if actorID == "" {
			return
		}
		if c.Request.Method == http.MethodGet && !matchesPrefix(path, cfg.SensitiveReads) {
			return
		}

		action := actionForMethod(c.Request.Method)
		entity := entityForPath(path, cfg.Entities)
		entityID := inferEntityID(path, cw.body.Bytes(), reqBody)
		if entity == "" || entityID == models.EntityIDUnknown {
			return
		}

		meta := Meta(c)
		description := describe(action, entity, entityID)

		switch action {
		case models.ActionCreate:
			recorder.LogCreate(actorID, entity, entityID, jsonValue(cw.body.Bytes()), meta, description)
		case models.ActionUpdate:
			before, _ := c.Get(ContextAuditOriginal)
			recorder.LogUpdate(actorID, entity, entityID, before, jsonValue(reqBody), meta, description)
		case models.ActionDelete:
			before, _ := c.Get(ContextAuditOriginal)
			recorder.LogDelete(actorID, entity, entityID, before, meta, description)
		default:
			recorder.LogRead(actorID, entity, entityID, meta, description)
		}
	}
}

func matchesPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func actionForMethod(method string) string {
	switch method {
	case http.MethodPost:
		return models.ActionCreate
	case http.MethodPut, http.MethodPatch:
		return models.ActionUpdate
	case http.MethodDelete:
		return models.ActionDelete
	default:
		return models.ActionRead
	}
}

// entityForPath resolves an entity name from the request path: exact
// rule match first, then prefix match in table order, then the
// capitalized first meaningful path segment.
func entityForPath(path string, rules []EntityRule) string {
	for _, rule := range rules {
		if path == rule.Prefix {
			return rule.Entity
		}
	}
	for _, rule := range rules {
		if strings.HasPrefix(path, rule.Prefix) {
			return rule.Entity
		}
	}

	segments := splitPath(path)
	for _, seg := range segments {
		// Skip version prefixes like /api/v1.
		if seg == "api" || versionPattern.MatchString(seg) {
			continue
		}
		return strings.ToUpper(seg[:1]) + seg[1:]
	}
	return ""
}

// inferEntityID looks for an identifier in, in order: a path segment
// shaped like an id, the response payload, the request body.
func inferEntityID(path string, respBody, reqBody []byte) string {
	for _, seg := range splitPath(path) {
		if uuidPattern.MatchString(seg) || hex24Pattern.MatchString(seg) {
			return seg
		}
	}

	if id := idFromPayload(respBody, [][]string{
		{"data", "id"},
		{"data", "_id"},
		{"data", "user", "id"},
		{"user", "id"},
		{"id"},
	}); id != "" {
		return id
	}

	if id := idFromPayload(reqBody, [][]string{
		{"id"},
		{"_id"},
		{"userId"},
	}); id != "" {
		return id
	}

	return models.EntityIDUnknown
}

func idFromPayload(body []byte, paths [][]string) string {
	if len(body) == 0 {
		return ""
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, keys := range paths {
		if id := digString(payload, keys); id != "" {
			return id
		}
	}
	return ""
}

func digString(payload map[string]interface{}, keys []string) string {
	var current interface{} = payload
	for _, key := range keys {
		m, ok := current.(map[string]interface{})
		if !ok {
			return ""
		}
		current, ok = m[key]
		if !ok {
			return ""
		}
	}
	if s, ok := current.(string); ok {
		return s
	}
	return ""
}

func splitPath(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func describe(action, entity, entityID string) string {
	verb := map[string]string{
		models.ActionCreate: "Created",
		models.ActionRead:   "Read",
		models.ActionUpdate: "Updated",
		models.ActionDelete: "Deleted",
	}[action]
	return verb + " " + entity + " with ID " + entityID
}

// jsonValue turns a raw JSON body into a generic value for the
// snapshot, or nil when it is empty or not JSON.
func jsonValue(body []byte) interface{} {
	if len(body) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return nil
	}
	return v
}
