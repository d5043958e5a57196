package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mkravets/agenda/internal/actions"
	"github.com/mkravets/agenda/internal/retrieval"
	"github.com/mkravets/agenda/internal/storage"
)

const (
	testToken  = "test-token"
	testTenant = "88888888-8888-8888-8888-888888888888"
)

type fakeEmbedClient struct{}

func (fakeEmbedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1, 0}, nil
}

type apiEnv struct {
	handler http.Handler
	pool    *storage.Pool
	deps    Deps
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	s, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	pool := storage.NewPool(s, 4, time.Second)
	embedder := retrieval.NewEmbedder(fakeEmbedClient{})
	vectors := retrieval.NewStore(pool)

	deps := Deps{
		Store:     s,
		Pool:      pool,
		Executor:  actions.NewExecutor(pool),
		Retriever: retrieval.NewRetriever(embedder, vectors),
		Token:     testToken,
	}
	return &apiEnv{handler: NewHandler(deps), pool: pool, deps: deps}
}

func (env *apiEnv) request(t *testing.T, method, path string, body any, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set(TenantHeader, testTenant)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %s: %v", rec.Body.String(), err)
	}
}

func errType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	decodeBody(t, rec, &body)
	return body.Error.Type
}

// seedCatalog provisions a service and one staff member over the admin API.
func (env *apiEnv) seedCatalog(t *testing.T) {
	t.Helper()
	rec := env.request(t, "POST", "/v1/services", map[string]any{
		"name": "Haircut", "duration_minutes": 30, "price": "45.00",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create service: status %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.request(t, "POST", "/v1/staff", map[string]any{
		"name": "Alex", "email": "alex@example.com",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create staff: status %d: %s", rec.Code, rec.Body.String())
	}
}

func bookingBody() map[string]any {
	return map[string]any{
		"action_name": "book_appointment",
		"payload": map[string]any{
			"service_type_name": "Haircut",
			"client_name":       "Jane Doe",
			"client_email":      "jane@example.com",
			"appointment_date":  "2026-09-15",
			"appointment_time":  "14:30",
		},
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", rec.Code)
	}
}

func TestBearerAuthRequired(t *testing.T) {
	env := newAPIEnv(t)

	for _, auth := range []string{"", "Bearer wrong-token", "Basic dXNlcg=="} {
		rec := env.request(t, "POST", "/v1/actions", bookingBody(), func(r *http.Request) {
			r.Header.Del("Authorization")
			if auth != "" {
				r.Header.Set("Authorization", auth)
			}
		})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("auth %q: status = %d, want 401", auth, rec.Code)
		}
	}
}

func TestTenantHeaderRequired(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.request(t, "POST", "/v1/actions", bookingBody(), func(r *http.Request) {
		r.Header.Del(TenantHeader)
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := errType(t, rec); got != "invalid_workspace" {
		t.Errorf("error type = %q, want invalid_workspace", got)
	}
}

func TestExecuteActionEndToEnd(t *testing.T) {
	env := newAPIEnv(t)
	env.seedCatalog(t)

	rec := env.request(t, "POST", "/v1/actions", bookingBody(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("book: status %d: %s", rec.Code, rec.Body.String())
	}

	var result struct {
		AppointmentID   string `json:"appointment_id"`
		StaffName       string `json:"staff_name"`
		ServiceName     string `json:"service_name"`
		DurationMinutes int    `json:"duration_minutes"`
		Status          string `json:"status"`
	}
	decodeBody(t, rec, &result)
	if result.AppointmentID == "" || result.StaffName != "Alex" || result.Status != "confirmed" {
		t.Errorf("result = %+v", result)
	}

	// The identical request replays the same appointment.
	rec = env.request(t, "POST", "/v1/actions", bookingBody(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay: status %d: %s", rec.Code, rec.Body.String())
	}
	var replay struct {
		AppointmentID string `json:"appointment_id"`
	}
	decodeBody(t, rec, &replay)
	if replay.AppointmentID != result.AppointmentID {
		t.Errorf("replay appointment = %s, want %s", replay.AppointmentID, result.AppointmentID)
	}

	// Listing shows it on the booked date.
	rec = env.request(t, "GET", "/v1/appointments?date=2026-09-15", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var list struct {
		Total int `json:"total"`
	}
	decodeBody(t, rec, &list)
	if list.Total != 1 {
		t.Errorf("appointments total = %d, want 1", list.Total)
	}
}

func TestActionErrorStatusMapping(t *testing.T) {
	env := newAPIEnv(t)
	env.seedCatalog(t)

	// Occupy the only staff member's slot.
	if rec := env.request(t, "POST", "/v1/actions", bookingBody(), nil); rec.Code != http.StatusOK {
		t.Fatalf("seed booking: status %d: %s", rec.Code, rec.Body.String())
	}

	conflicting := bookingBody()
	conflicting["payload"].(map[string]any)["client_name"] = "John Roe"

	missingField := bookingBody()
	delete(missingField["payload"].(map[string]any), "client_name")

	cancelMissing := map[string]any{
		"action_name": "cancel_appointment",
		"payload":     map[string]any{"appointment_id": "no-such-id"},
	}

	tests := []struct {
		name     string
		body     map[string]any
		wantCode int
		wantType string
	}{
		{"validation", missingField, http.StatusBadRequest, "validation_error"},
		{"unknown action", map[string]any{"action_name": "forge_invoice", "payload": map[string]any{}}, http.StatusBadRequest, "unknown_action"},
		{"wrong field name", map[string]any{"action": "book_appointment", "payload": map[string]any{}}, http.StatusBadRequest, "unknown_action"},
		{"conflict", conflicting, http.StatusConflict, "conflict"},
		{"not found", cancelMissing, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.request(t, "POST", "/v1/actions", tt.body, nil)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if got := errType(t, rec); got != tt.wantType {
				t.Errorf("error type = %q, want %q", got, tt.wantType)
			}
		})
	}
}

func TestInvalidWorkspaceID(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.request(t, "POST", "/v1/actions", bookingBody(), func(r *http.Request) {
		r.Header.Set(TenantHeader, "not-a-uuid")
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	if got := errType(t, rec); got != "invalid_workspace" {
		t.Errorf("error type = %q, want invalid_workspace", got)
	}
}

func TestSearchEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	// Store chunks directly through a bound session.
	conn, err := env.pool.Acquire(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	chunks := []retrieval.Chunk{
		{ID: "c1", DocumentID: "d1", Seq: 0, Text: "We open at nine.", Embedding: []float32{1, 0, 0}},
		{ID: "c2", DocumentID: "d1", Seq: 1, Text: "Deposits are required.", Embedding: []float32{0, 1, 0}},
	}
	if err := retrieval.Insert(context.Background(), conn, chunks); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	conn.Release()

	rec := env.request(t, "POST", "/v1/search", map[string]any{
		"vector": []float32{1, 0, 0},
		"top_k":  5,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: status %d: %s", rec.Code, rec.Body.String())
	}

	var out struct {
		Results []struct {
			DocumentID string  `json:"document_id"`
			ChunkID    string  `json:"chunk_id"`
			Score      float32 `json:"score"`
			Preview    string  `json:"preview"`
		} `json:"results"`
		Total int `json:"total"`
	}
	decodeBody(t, rec, &out)
	if out.Total != 2 || len(out.Results) != 2 {
		t.Fatalf("total = %d, results = %d, want 2/2", out.Total, len(out.Results))
	}
	if out.Results[0].ChunkID != "c1" {
		t.Errorf("top result = %s, want c1", out.Results[0].ChunkID)
	}
	if out.Results[0].Preview == "" {
		t.Error("missing preview")
	}

	// Text queries go through the embedder.
	rec = env.request(t, "POST", "/v1/search", map[string]any{"query": "opening hours"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("text search: status %d: %s", rec.Code, rec.Body.String())
	}

	// Neither query nor vector is a validation error.
	rec = env.request(t, "POST", "/v1/search", map[string]any{}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty search request: status %d, want 400", rec.Code)
	}
}

func TestSearchEmptyWorkspaceIsNotAnError(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.request(t, "POST", "/v1/search", map[string]any{"query": "anything"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Total int `json:"total"`
	}
	decodeBody(t, rec, &out)
	if out.Total != 0 {
		t.Errorf("total = %d, want 0", out.Total)
	}
}

func TestIngestDocumentQueuesJob(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.request(t, "POST", "/v1/documents", map[string]any{
		"type":    "text",
		"title":   "FAQ",
		"content": "We close at 18:00 on Saturdays.",
	}, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeBody(t, rec, &out)
	if out.ID == "" || out.Status != "queued" {
		t.Errorf("response = %+v", out)
	}

	// Empty documents are rejected before anything is stored.
	rec = env.request(t, "POST", "/v1/documents", map[string]any{"type": "text", "content": "  "}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty document: status %d, want 400", rec.Code)
	}
}

func TestListDocuments(t *testing.T) {
	env := newAPIEnv(t)

	for _, title := range []string{"FAQ", "Opening hours"} {
		rec := env.request(t, "POST", "/v1/documents", map[string]any{
			"type": "text", "title": title, "content": "Some knowledge about " + title,
		}, nil)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("ingest %q: status %d: %s", title, rec.Code, rec.Body.String())
		}
	}

	rec := env.request(t, "GET", "/v1/documents", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Documents []struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			CreatedAt string `json:"created_at"`
		} `json:"documents"`
		Total int `json:"total"`
	}
	decodeBody(t, rec, &out)
	if out.Total != 2 || len(out.Documents) != 2 {
		t.Fatalf("total = %d, documents = %d, want 2", out.Total, len(out.Documents))
	}
	for _, doc := range out.Documents {
		ts, err := time.Parse(time.RFC3339, doc.CreatedAt)
		if err != nil {
			t.Fatalf("document %s: created_at %q: %v", doc.ID, doc.CreatedAt, err)
		}
		if ts.IsZero() {
			t.Errorf("document %s: created_at is the zero time", doc.ID)
		}
	}

	rec = env.request(t, "GET", "/v1/documents?limit=1", nil, nil)
	decodeBody(t, rec, &out)
	if len(out.Documents) != 1 {
		t.Errorf("limit=1 returned %d documents", len(out.Documents))
	}

	rec = env.request(t, "GET", "/v1/documents?limit=zero", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status %d, want 400", rec.Code)
	}
}

func TestCreateSetsTimestamps(t *testing.T) {
	env := newAPIEnv(t)
	env.seedCatalog(t)

	conn, err := env.pool.Acquire(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer conn.Release()

	svc, err := storage.GetServiceByName(context.Background(), conn, "Haircut")
	if err != nil {
		t.Fatalf("GetServiceByName: %v", err)
	}
	if svc.CreatedAt.IsZero() {
		t.Errorf("service created_at is the zero time")
	}

	staff, err := storage.ListStaff(context.Background(), conn)
	if err != nil {
		t.Fatalf("ListStaff: %v", err)
	}
	if len(staff) != 1 {
		t.Fatalf("staff count = %d, want 1", len(staff))
	}
	if staff[0].CreatedAt.IsZero() {
		t.Errorf("staff created_at is the zero time")
	}
}

func TestCreateServiceValidatesPrice(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.request(t, "POST", "/v1/services", map[string]any{
		"name": "Haircut", "duration_minutes": 30, "price": "forty-five",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	if got := errType(t, rec); got != "validation_error" {
		t.Errorf("error type = %q, want validation_error", got)
	}
}

func TestRespondErrorFallsBackTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, errors.New("disk on fire"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var body struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body.Error.Type != "internal_error" {
		t.Errorf("error type = %q, want internal_error", body.Error.Type)
	}
}
