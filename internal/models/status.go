package models

// StatusTone is how a conversation or appointment status is rendered.
type StatusTone string

const (
	ToneOK      StatusTone = "ok"
	ToneBad     StatusTone = "bad"
	ToneWaiting StatusTone = "waiting"
	ToneUnknown StatusTone = "unknown"
)

// ToneOf classifies conversation and appointment statuses alike.
func ToneOf(status string) StatusTone {
	switch status {
	case string(ConversationCompleted), string(AppointmentConfirmed):
		return ToneOK
	case string(ConversationFailed), string(AppointmentCancelled):
		return ToneBad
	case string(ConversationActive), string(AppointmentPending):
		return ToneWaiting
	default:
		return ToneUnknown
	}
}
