package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mkravets/agenda/internal/actions"
	"github.com/mkravets/agenda/internal/storage"
)

type executeActionRequest struct {
	ActionName string          `json:"action_name"`
	Payload    json.RawMessage `json:"payload"`
}

// handleExecuteAction runs a structured action through the executor.
// The same request body replayed yields the same response body: fresh
// execution and replayed completion are indistinguishable to callers.
func handleExecuteAction(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req executeActionRequest
		body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: %v", err)
			return
		}

		action, err := actions.Parse(req.ActionName, req.Payload)
		if err != nil {
			respondError(w, err)
			return
		}

		result, err := deps.Executor.Execute(r.Context(), tenantID(r), action)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

type appointmentView struct {
	ID              string `json:"appointment_id"`
	ServiceID       string `json:"service_id"`
	StaffID         string `json:"staff_id"`
	ClientName      string `json:"client_name"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
}

func handleListAppointments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			date = time.Now().Format("2006-01-02")
		}
		if _, err := time.Parse("2006-01-02", date); err != nil {
			httpError(w, http.StatusBadRequest, "validation_error", "date must be YYYY-MM-DD")
			return
		}

		conn, err := deps.Pool.Acquire(r.Context(), tenantID(r))
		if err != nil {
			respondError(w, err)
			return
		}
		defer conn.Release()

		appts, err := storage.ListAppointmentsByDate(r.Context(), conn, date)
		if err != nil {
			respondError(w, err)
			return
		}

		views := make([]appointmentView, 0, len(appts))
		for _, a := range appts {
			views = append(views, appointmentView{
				ID:              a.ID,
				ServiceID:       a.ServiceID,
				StaffID:         a.StaffID,
				ClientName:      a.ClientName,
				Date:            a.Date,
				Time:            a.Time,
				DurationMinutes: a.DurationMinutes,
				Status:          a.Status,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"appointments": views,
			"total":        len(views),
		})
	}
}
