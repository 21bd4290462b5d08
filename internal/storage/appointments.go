package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"voiceassist/internal/models"
)

// FindCustomerByPhone returns the customer with the given phone number;
// sql.ErrNoRows when there is none.
func (d *DB) FindCustomerByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	var (
		c     models.Customer
		email sql.NullString
		ph    sql.NullString
		prefs []byte
	)
	err := d.QueryRowContext(ctx, d.Rebind(
		`SELECT id, name, email, phone, preferences, created_at FROM customers WHERE phone = ? LIMIT 1`),
		strings.TrimSpace(phone),
	).Scan(&c.ID, &c.Name, &email, &ph, &prefs, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find customer: %w", err)
	}
	if email.Valid {
		c.Email = &email.String
	}
	if ph.Valid {
		c.Phone = &ph.String
	}
	c.Preferences = prefs
	return &c, nil
}

// UpcomingAppointments lists a customer's non-cancelled appointments at or
// after from, soonest first.
func (d *DB) UpcomingAppointments(ctx context.Context, customerID string, from time.Time) ([]*models.Appointment, error) {
	rows, err := d.QueryContext(ctx, d.Rebind(
		`SELECT id, customer_id, appointment_date, service_type, status, notes, created_at, updated_at
		 FROM appointments
		 WHERE customer_id = ? AND appointment_date >= ? AND status <> ?
		 ORDER BY appointment_date ASC`),
		customerID, from.UTC(), string(models.AppointmentCancelled),
	)
	if err != nil {
		return nil, fmt.Errorf("list upcoming appointments: %w", err)
	}
	defer rows.Close()

	var out []*models.Appointment
	for rows.Next() {
		var a models.Appointment
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.AppointmentDate, &a.ServiceType, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// SetAppointmentStatus updates the status of one appointment; sql.ErrNoRows
// when the id is unknown.
func (d *DB) SetAppointmentStatus(ctx context.Context, id string, status models.AppointmentStatus) error {
	res, err := d.ExecContext(ctx, d.Rebind(
		`UPDATE appointments SET status = ?, updated_at = ? WHERE id = ?`),
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("appointment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
