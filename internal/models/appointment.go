package models

import "time"

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
)

type Appointment struct {
	ID              string            `json:"id"`
	CustomerID      string            `json:"customer_id"`
	AppointmentDate time.Time         `json:"appointment_date"`
	ServiceType     string            `json:"service_type"`
	Status          AppointmentStatus `json:"status"`
	Notes           string            `json:"notes"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Customer        *Customer         `json:"customers,omitempty"`
}
