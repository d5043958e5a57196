package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mkravets/agenda/internal/retrieval"
)

const previewRunes = 200

type searchRequest struct {
	Query  string    `json:"query"`
	Vector []float32 `json:"vector"`
	TopK   int       `json:"top_k"`
}

type searchResult struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Score      float32 `json:"score"`
	Preview    string  `json:"preview"`
}

// handleSearch performs similarity retrieval over the workspace's
// chunks. A raw vector is accepted as an alternative to a text query;
// an all-zero vector is allowed and returns unscored results.
func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: %v", err)
			return
		}

		var (
			results []retrieval.ScoredChunk
			err     error
		)
		switch {
		case len(req.Vector) > 0:
			results, err = deps.Retriever.Search(r.Context(), tenantID(r), req.Vector, req.TopK)
		case strings.TrimSpace(req.Query) != "":
			results, err = deps.Retriever.SearchText(r.Context(), tenantID(r), req.Query, req.TopK)
		default:
			httpError(w, http.StatusBadRequest, "validation_error", "either query or vector is required")
			return
		}
		if err != nil {
			respondError(w, err)
			return
		}

		out := make([]searchResult, 0, len(results))
		for _, res := range results {
			out = append(out, searchResult{
				DocumentID: res.DocumentID,
				ChunkID:    res.ID,
				Score:      res.Score,
				Preview:    preview(res.Text),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"results": out,
			"total":   len(out),
		})
	}
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes]) + "..."
}
