// Package api exposes the action-execution and retrieval core over HTTP
// and MCP. Every route is workspace-scoped: the X-Tenant-ID header is
// required and its absence is a request-level error.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mkravets/agenda/internal/actions"
	"github.com/mkravets/agenda/internal/apperr"
	"github.com/mkravets/agenda/internal/retrieval"
	"github.com/mkravets/agenda/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxDocumentBodySize = 10 << 20

// TenantHeader carries the workspace id on every request.
const TenantHeader = "X-Tenant-ID"

// Deps holds the handler dependencies.
type Deps struct {
	Store      *storage.Store
	Pool       *storage.Pool
	Executor   *actions.Executor
	Retriever  *retrieval.Retriever
	Token      string
	HTTPClient *http.Client // used to fetch url-type documents
}

// NewHandler assembles the API router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Use(RequireTenant)

		r.Post("/v1/actions", handleExecuteAction(deps))
		r.Get("/v1/appointments", handleListAppointments(deps))
		r.Post("/v1/search", handleSearch(deps))
		r.Post("/v1/documents", handleIngestDocument(deps))
		r.Get("/v1/documents", handleListDocuments(deps))
		r.Post("/v1/services", handleCreateService(deps))
		r.Post("/v1/staff", handleCreateStaff(deps))
	})

	return r
}

// BearerAuth rejects requests without the configured bearer token.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type ctxKey int

const tenantKey ctxKey = 0

// RequireTenant extracts the workspace id from the tenant header. There
// is no default workspace: a missing header is a 400.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := strings.TrimSpace(r.Header.Get(TenantHeader))
		if tenant == "" {
			httpError(w, http.StatusBadRequest, "invalid_workspace", "missing %s header", TenantHeader)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantKey, tenant)))
	})
}

func tenantID(r *http.Request) string {
	tenant, _ := r.Context().Value(tenantKey).(string)
	return tenant
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// respondError maps taxonomy errors to HTTP status classes: 400 for
// input the caller must fix, 409 for conflicts worth retrying or
// reporting, 503 for pool pressure, 500 otherwise.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		httpError(w, http.StatusBadRequest, "validation_error", "%v", err)
	case errors.Is(err, apperr.ErrUnknownAction):
		httpError(w, http.StatusBadRequest, "unknown_action", "%v", err)
	case errors.Is(err, apperr.ErrInvalidTenant):
		httpError(w, http.StatusBadRequest, "invalid_workspace", "%v", err)
	case errors.Is(err, apperr.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, apperr.ErrInFlight):
		httpError(w, http.StatusConflict, "in_flight", "%v", err)
	case errors.Is(err, apperr.ErrConflict):
		httpError(w, http.StatusConflict, "conflict", "%v", err)
	case errors.Is(err, apperr.ErrPoolExhausted):
		httpError(w, http.StatusServiceUnavailable, "pool_exhausted", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "internal_error", "%v", err)
	}
}
