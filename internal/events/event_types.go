package events

import (
	"time"

	"github.com/spec-kit/issue-tracker/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketOpened    EventType = "ticket_opened"
	EventTicketLinked    EventType = "ticket_linked"
	EventTicketResolved  EventType = "ticket_resolved"
	EventTicketEscalated EventType = "ticket_escalated"
)

// Event represents a domain event emitted by the tracker.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketOpenedPayload payload.
type TicketOpenedPayload struct {
	ReporterEmail string                `json:"reporter_email"`
	Title         string                `json:"title"`
	Priority      domain.TicketPriority `json:"priority"`
}

// TicketLinkedPayload payload. Emitted once the external task exists and the
// ref has been recorded; notification handlers use it to confirm intake.
type TicketLinkedPayload struct {
	ExternalRef   string `json:"external_ref"`
	ReporterEmail string `json:"reporter_email"`
	Title         string `json:"title"`
}

// TicketResolvedPayload payload.
type TicketResolvedPayload struct {
	ExternalRef string `json:"external_ref"`
	Title       string `json:"title"`
}

// TicketEscalatedPayload payload carrying the waited-time breakdown for
// reminder mails.
type TicketEscalatedPayload struct {
	ExternalRef    string `json:"external_ref"`
	Title          string `json:"title"`
	TotalWaitHours int    `json:"total_wait_hours"`
	Days           int    `json:"days"`
	Hours          int    `json:"hours"`
}
