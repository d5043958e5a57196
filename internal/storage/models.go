package storage

import "time"

type Service struct {
	ID              string
	Name            string
	DurationMinutes int
	PriceCents      int64
	CreatedAt       time.Time
}

type Staff struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

type Appointment struct {
	ID              string
	ServiceID       string
	StaffID         string
	ClientName      string
	ClientEmail     string
	ClientPhone     string
	Date            string // YYYY-MM-DD
	Time            string // HH:MM
	DurationMinutes int
	Status          string // "confirmed", "cancelled"
	Notes           string
	GoogleEventID   string
	CreatedAt       time.Time
}

type Document struct {
	ID        string
	Title     string
	Content   string
	Source    string
	CreatedAt time.Time
}

type Job struct {
	ID          string
	TenantID    string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
