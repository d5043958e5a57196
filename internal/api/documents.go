package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mkravets/agenda/internal/actions"
	"github.com/mkravets/agenda/internal/ingest"
	"github.com/mkravets/agenda/internal/storage"
)

type ingestDocumentRequest struct {
	Type    string `json:"type"` // "text", "pdf", "url"
	Title   string `json:"title"`
	Content string `json:"content"` // text body, or base64 for pdf
	URL     string `json:"url"`
}

// handleIngestDocument accepts a document, stores it, and queues an
// embedding job. Extraction for pdf and url sources happens inline so
// a bad source is rejected before anything is persisted.
func handleIngestDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestDocumentRequest
		body := http.MaxBytesReader(w, r.Body, maxDocumentBodySize)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: %v", err)
			return
		}

		text, source, err := extractContent(deps, &req)
		if err != nil {
			httpError(w, http.StatusBadRequest, "validation_error", "%v", err)
			return
		}
		if strings.TrimSpace(text) == "" {
			httpError(w, http.StatusBadRequest, "validation_error", "document has no extractable text")
			return
		}

		conn, err := deps.Pool.Acquire(r.Context(), tenantID(r))
		if err != nil {
			respondError(w, err)
			return
		}
		defer conn.Release()

		doc := storage.Document{
			ID:        uuid.NewString(),
			Title:     req.Title,
			Content:   text,
			Source:    source,
			CreatedAt: time.Now().UTC(),
		}
		if doc.Title == "" {
			doc.Title = doc.ID
		}
		if err := storage.SaveDocument(r.Context(), conn, doc); err != nil {
			respondError(w, err)
			return
		}

		payload, _ := json.Marshal(ingest.JobPayload{DocumentID: doc.ID})
		job := storage.Job{
			ID:          uuid.NewString(),
			TenantID:    tenantID(r),
			Type:        ingest.JobType,
			PayloadJSON: string(payload),
			MaxAttempts: 3,
		}
		if err := deps.Store.EnqueueJob(r.Context(), job); err != nil {
			respondError(w, err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"id":     doc.ID,
			"status": "queued",
		})
	}
}

type documentView struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Source    string `json:"source"`
	CreatedAt string `json:"created_at"`
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "validation_error", "limit must be a positive integer")
				return
			}
			limit = n
		}

		conn, err := deps.Pool.Acquire(r.Context(), tenantID(r))
		if err != nil {
			respondError(w, err)
			return
		}
		defer conn.Release()

		docs, err := storage.ListDocuments(r.Context(), conn, limit)
		if err != nil {
			respondError(w, err)
			return
		}

		views := make([]documentView, 0, len(docs))
		for _, d := range docs {
			views = append(views, documentView{
				ID:        d.ID,
				Title:     d.Title,
				Source:    d.Source,
				CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"documents": views,
			"total":     len(views),
		})
	}
}

func extractContent(deps Deps, req *ingestDocumentRequest) (text, source string, err error) {
	switch req.Type {
	case "", "text":
		return req.Content, "text", nil
	case "pdf":
		raw, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			return "", "", fmt.Errorf("content must be base64-encoded PDF data: %w", err)
		}
		text, err := ingest.ExtractPDF(raw)
		if err != nil {
			return "", "", fmt.Errorf("extract pdf: %w", err)
		}
		return text, "pdf", nil
	case "url":
		if req.URL == "" {
			return "", "", fmt.Errorf("url is required for url-type documents")
		}
		text, err := fetchURL(deps, req.URL)
		if err != nil {
			return "", "", err
		}
		return text, req.URL, nil
	default:
		return "", "", fmt.Errorf("unknown document type %q", req.Type)
	}
}

func fetchURL(deps Deps, url string) (string, error) {
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return ingest.ExtractHTML(resp.Body)
}

type createServiceRequest struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
}

func handleCreateService(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createServiceRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: %v", err)
			return
		}
		if req.Name == "" || req.DurationMinutes <= 0 {
			httpError(w, http.StatusBadRequest, "validation_error", "name and a positive duration_minutes are required")
			return
		}
		cents, err := actions.ParseMoney(req.Price)
		if err != nil {
			httpError(w, http.StatusBadRequest, "validation_error", "price: %v", err)
			return
		}

		conn, err := deps.Pool.Acquire(r.Context(), tenantID(r))
		if err != nil {
			respondError(w, err)
			return
		}
		defer conn.Release()

		svc := storage.Service{
			ID:              uuid.NewString(),
			Name:            req.Name,
			DurationMinutes: req.DurationMinutes,
			PriceCents:      cents,
			CreatedAt:       time.Now().UTC(),
		}
		if err := storage.CreateService(r.Context(), conn, svc); err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":    svc.ID,
			"name":  svc.Name,
			"price": actions.FormatMoney(svc.PriceCents),
		})
	}
}

type createStaffRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func handleCreateStaff(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createStaffRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: %v", err)
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "validation_error", "name is required")
			return
		}

		conn, err := deps.Pool.Acquire(r.Context(), tenantID(r))
		if err != nil {
			respondError(w, err)
			return
		}
		defer conn.Release()

		st := storage.Staff{
			ID:        uuid.NewString(),
			Name:      req.Name,
			Email:     req.Email,
			CreatedAt: time.Now().UTC(),
		}
		if err := storage.CreateStaff(r.Context(), conn, st); err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":   st.ID,
			"name": st.Name,
		})
	}
}
