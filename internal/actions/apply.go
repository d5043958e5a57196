package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkravets/agenda/internal/apperr"
	"github.com/mkravets/agenda/internal/storage"
)

func (a *BookAppointment) apply(ctx context.Context, tx *storage.TenantTx) (Result, error) {
	svc, err := storage.GetServiceByName(ctx, tx, a.ServiceTypeName)
	if err != nil {
		return Result{}, err
	}

	start := minuteOfDay(a.AppointmentTime)

	var assigned storage.Staff
	if a.StaffID != "" {
		st, err := storage.GetStaff(ctx, tx, a.StaffID)
		if err != nil {
			return Result{}, err
		}
		free, err := staffIsFree(ctx, tx, st.ID, a.AppointmentDate, start, svc.DurationMinutes)
		if err != nil {
			return Result{}, err
		}
		if !free {
			return Result{}, fmt.Errorf("%w: %s is already booked at %s %s",
				apperr.ErrConflict, st.Name, a.AppointmentDate, a.AppointmentTime)
		}
		assigned = st
	} else {
		staff, err := storage.ListStaff(ctx, tx)
		if err != nil {
			return Result{}, err
		}
		if len(staff) == 0 {
			return Result{}, fmt.Errorf("%w: no staff configured for this workspace", apperr.ErrNotFound)
		}
		for _, st := range staff {
			free, err := staffIsFree(ctx, tx, st.ID, a.AppointmentDate, start, svc.DurationMinutes)
			if err != nil {
				return Result{}, err
			}
			if free {
				assigned = st
				break
			}
		}
		if assigned.ID == "" {
			return Result{}, fmt.Errorf("%w: no staff available at %s %s",
				apperr.ErrConflict, a.AppointmentDate, a.AppointmentTime)
		}
	}

	appt := storage.Appointment{
		ID:              uuid.New().String(),
		ServiceID:       svc.ID,
		StaffID:         assigned.ID,
		ClientName:      a.ClientName,
		ClientEmail:     a.ClientEmail,
		ClientPhone:     a.ClientPhone,
		Date:            a.AppointmentDate,
		Time:            a.AppointmentTime,
		DurationMinutes: svc.DurationMinutes,
		Status:          "confirmed",
		Notes:           a.Notes,
		CreatedAt:       time.Now().UTC(),
	}
	if err := storage.InsertAppointment(ctx, tx, appt); err != nil {
		return Result{}, fmt.Errorf("inserting appointment: %w", err)
	}

	return Result{
		AppointmentID:   appt.ID,
		StaffName:       assigned.Name,
		StaffEmail:      assigned.Email,
		ServiceName:     svc.Name,
		Date:            appt.Date,
		Time:            appt.Time,
		DurationMinutes: appt.DurationMinutes,
		Status:          appt.Status,
	}, nil
}

func (a *CancelAppointment) apply(ctx context.Context, tx *storage.TenantTx) (Result, error) {
	if err := storage.CancelAppointment(ctx, tx, a.AppointmentID); err != nil {
		return Result{}, err
	}
	return Result{AppointmentID: a.AppointmentID, Status: "cancelled"}, nil
}

// staffIsFree reports whether the staff member has no overlapping
// non-cancelled appointment on the date.
func staffIsFree(ctx context.Context, tx *storage.TenantTx, staffID, date string, start, duration int) (bool, error) {
	existing, err := storage.ListStaffAppointments(ctx, tx, staffID, date)
	if err != nil {
		return false, fmt.Errorf("listing appointments for %s: %w", staffID, err)
	}
	end := start + duration
	for _, e := range existing {
		eStart := minuteOfDay(e.Time)
		eEnd := eStart + e.DurationMinutes
		if start < eEnd && eStart < end {
			return false, nil
		}
	}
	return true, nil
}

// minuteOfDay converts a validated HH:MM string to minutes since
// midnight. Callers validate the format before apply runs.
func minuteOfDay(hhmm string) int {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0
	}
	return t.Hour()*60 + t.Minute()
}
