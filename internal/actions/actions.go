// Package actions implements the tool-call execution path: typed action
// payloads, validation, and the idempotent executor that applies each
// logical request at most once per workspace.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mkravets/agenda/internal/apperr"
	"github.com/mkravets/agenda/internal/storage"
)

// Action is one side-effecting operation requested by the conversational
// layer. Each variant validates its own field set, contributes the fields
// that define its logical identity, and knows how to apply itself inside
// a tenant-bound transaction. The variant set is closed: construction
// goes through Parse.
type Action interface {
	Name() string
	Validate() error

	// identity returns the fields that determine the action's logical
	// identity for fingerprinting. Informational fields (notes, staff
	// preference) are excluded so retries that only differ there still
	// replay the original outcome.
	identity() map[string]string

	apply(ctx context.Context, tx *storage.TenantTx) (Result, error)
}

// Result is the immutable outcome of a successful action.
type Result struct {
	AppointmentID   string `json:"appointment_id"`
	StaffName       string `json:"staff_name,omitempty"`
	StaffEmail      string `json:"staff_email,omitempty"`
	ServiceName     string `json:"service_name,omitempty"`
	Date            string `json:"date,omitempty"`
	Time            string `json:"time,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Status          string `json:"status"`
	GoogleEventID   string `json:"google_event_id,omitempty"`
}

// Parse decodes a raw payload into the typed action for actionName.
// Unknown names fail with apperr.ErrUnknownAction and malformed payloads
// with apperr.ErrValidation, both before any database interaction.
func Parse(actionName string, payload json.RawMessage) (Action, error) {
	var action Action
	switch actionName {
	case "book_appointment":
		action = &BookAppointment{}
	case "cancel_appointment":
		action = &CancelAppointment{}
	default:
		return nil, fmt.Errorf("%w: %q", apperr.ErrUnknownAction, actionName)
	}

	dec := json.NewDecoder(strings.NewReader(string(payload)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(action); err != nil {
		return nil, fmt.Errorf("%w: decoding %s payload: %v", apperr.ErrValidation, actionName, err)
	}
	return action, nil
}

// BookAppointment books a service slot for a client, assigning a staff
// member automatically unless one is requested.
type BookAppointment struct {
	ServiceTypeName string `json:"service_type_name"`
	ClientName      string `json:"client_name"`
	ClientEmail     string `json:"client_email,omitempty"`
	ClientPhone     string `json:"client_phone,omitempty"`
	AppointmentDate string `json:"appointment_date"` // YYYY-MM-DD
	AppointmentTime string `json:"appointment_time"` // HH:MM
	StaffID         string `json:"staff_id,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

func (a *BookAppointment) Name() string { return "book_appointment" }

func (a *BookAppointment) Validate() error {
	var missing []string
	if strings.TrimSpace(a.ServiceTypeName) == "" {
		missing = append(missing, "service_type_name")
	}
	if strings.TrimSpace(a.ClientName) == "" {
		missing = append(missing, "client_name")
	}
	if a.AppointmentDate == "" {
		missing = append(missing, "appointment_date")
	}
	if a.AppointmentTime == "" {
		missing = append(missing, "appointment_time")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", apperr.ErrValidation, strings.Join(missing, ", "))
	}

	if _, err := time.Parse("2006-01-02", a.AppointmentDate); err != nil {
		return fmt.Errorf("%w: appointment_date %q is not YYYY-MM-DD", apperr.ErrValidation, a.AppointmentDate)
	}
	if _, err := time.Parse("15:04", a.AppointmentTime); err != nil {
		return fmt.Errorf("%w: appointment_time %q is not HH:MM", apperr.ErrValidation, a.AppointmentTime)
	}
	if a.ClientEmail != "" && !strings.Contains(a.ClientEmail, "@") {
		return fmt.Errorf("%w: client_email %q is not an email address", apperr.ErrValidation, a.ClientEmail)
	}
	return nil
}

func (a *BookAppointment) identity() map[string]string {
	return map[string]string{
		"service": a.ServiceTypeName,
		"client":  a.ClientName,
		"date":    a.AppointmentDate,
		"time":    a.AppointmentTime,
	}
}

// CancelAppointment cancels a previously confirmed appointment.
type CancelAppointment struct {
	AppointmentID string `json:"appointment_id"`
}

func (a *CancelAppointment) Name() string { return "cancel_appointment" }

func (a *CancelAppointment) Validate() error {
	if strings.TrimSpace(a.AppointmentID) == "" {
		return fmt.Errorf("%w: missing required fields: appointment_id", apperr.ErrValidation)
	}
	return nil
}

func (a *CancelAppointment) identity() map[string]string {
	return map[string]string{"appointment_id": a.AppointmentID}
}
