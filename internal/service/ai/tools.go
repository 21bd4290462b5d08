package ai

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	log "github.com/echocat/slf4g"

	"voiceassist/internal/models"
	"voiceassist/internal/storage"
)

var errToolRateLimited = errors.New("too many tool calls in this conversation, try again in a minute")

// SchedulingTools exposes the appointment book to the agent.
func SchedulingTools(store *storage.DB, now func() time.Time) []tool.BaseTool {
	s := &scheduler{store: store, now: now, limiter: newToolRateLimiter(ToolRateLimit, ToolRateWindow)}
	return []tool.BaseTool{
		s.findTool(),
		s.bookTool(),
		s.cancelTool(),
	}
}

type scheduler struct {
	store   *storage.DB
	now     func() time.Time
	limiter *toolRateLimiter
}

func (s *scheduler) allow(ctx context.Context) error {
	key, ok := ToolConversationFromContext(ctx)
	if !ok {
		key = "anonymous"
	}
	if !s.limiter.Allow(key) {
		log.With("conversationId", key).Warn("Scheduling tool rate limit reached.")
		return errToolRateLimited
	}
	return nil
}

type findParams struct {
	Phone string `json:"phone"`
}

func (s *scheduler) findTool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: "find_appointments",
		Desc: "List the customer's upcoming appointments, soonest first. Use before cancelling or when the customer asks what they have booked.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"phone": {
				Desc:     "Customer phone number exactly as given.",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, s.find)
}

func (s *scheduler) find(ctx context.Context, params *findParams) (string, error) {
	if err := s.allow(ctx); err != nil {
		return "", err
	}
	if params == nil || strings.TrimSpace(params.Phone) == "" {
		return "", errors.New("phone must not be empty")
	}
	customer, err := s.store.FindCustomerByPhone(ctx, params.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return "No customer is registered with that phone number.", nil
	}
	if err != nil {
		return "", err
	}
	appts, err := s.store.UpcomingAppointments(ctx, customer.ID, s.now())
	if err != nil {
		return "", err
	}
	if len(appts) == 0 {
		return fmt.Sprintf("%s has no upcoming appointments.", customer.Name), nil
	}
	return encodeResult(appts)
}

type bookParams struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Email           string `json:"email,omitempty"`
	ServiceType     string `json:"service_type"`
	AppointmentDate string `json:"appointment_date"`
	Notes           string `json:"notes,omitempty"`
}

func (s *scheduler) bookTool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: "book_appointment",
		Desc: "Book a confirmed appointment. Only call after the customer has agreed to the service, date and time.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"name":             {Desc: "Customer full name.", Type: schema.String, Required: true},
			"phone":            {Desc: "Customer phone number.", Type: schema.String, Required: true},
			"email":            {Desc: "Customer email, if given.", Type: schema.String},
			"service_type":     {Desc: "Service to book, e.g. haircut.", Type: schema.String, Required: true},
			"appointment_date": {Desc: "Start time in RFC 3339, e.g. 2026-03-06T15:00:00-05:00.", Type: schema.String, Required: true},
			"notes":            {Desc: "Anything else the customer asked for.", Type: schema.String},
		}),
	}
	return utils.NewTool(info, s.book)
}

func (s *scheduler) book(ctx context.Context, params *bookParams) (string, error) {
	if err := s.allow(ctx); err != nil {
		return "", err
	}
	if params == nil {
		return "", errors.New("missing booking parameters")
	}
	name := strings.TrimSpace(params.Name)
	phone := strings.TrimSpace(params.Phone)
	service := strings.TrimSpace(params.ServiceType)
	if name == "" || phone == "" || service == "" {
		return "", errors.New("name, phone and service_type are required")
	}
	at, err := time.Parse(time.RFC3339, strings.TrimSpace(params.AppointmentDate))
	if err != nil {
		return "", fmt.Errorf("appointment_date must be RFC 3339: %w", err)
	}
	if at.Before(s.now()) {
		return "", errors.New("appointment_date is in the past")
	}

	customer, err := s.store.FindCustomerByPhone(ctx, phone)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		customer = &models.Customer{Name: name, Phone: &phone}
		if email := strings.TrimSpace(params.Email); email != "" {
			customer.Email = &email
		}
		if err := s.store.InsertCustomer(ctx, customer); err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	}

	appt := &models.Appointment{
		CustomerID:      customer.ID,
		AppointmentDate: at,
		ServiceType:     service,
		Status:          models.AppointmentConfirmed,
		Notes:           strings.TrimSpace(params.Notes),
	}
	if err := s.store.InsertAppointment(ctx, appt); err != nil {
		return "", err
	}
	log.With("appointmentId", appt.ID).
		With("serviceType", service).
		Info("Appointment booked.")
	return encodeResult(appt)
}

type cancelParams struct {
	AppointmentID string `json:"appointment_id"`
}

func (s *scheduler) cancelTool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: "cancel_appointment",
		Desc: "Cancel one appointment by id. Look the id up with find_appointments and confirm with the customer first.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"appointment_id": {Desc: "Id returned by find_appointments.", Type: schema.String, Required: true},
		}),
	}
	return utils.NewTool(info, s.cancel)
}

func (s *scheduler) cancel(ctx context.Context, params *cancelParams) (string, error) {
	if err := s.allow(ctx); err != nil {
		return "", err
	}
	if params == nil || strings.TrimSpace(params.AppointmentID) == "" {
		return "", errors.New("appointment_id must not be empty")
	}
	err := s.store.SetAppointmentStatus(ctx, params.AppointmentID, models.AppointmentCancelled)
	if errors.Is(err, sql.ErrNoRows) {
		return "No appointment has that id.", nil
	}
	if err != nil {
		return "", err
	}
	return "Appointment cancelled.", nil
}

func encodeResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(data), nil
}
