package domain

import "time"

// TicketPriority enumerates urgency as reported by the classifier.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "Low"
	TicketPriorityMedium TicketPriority = "Medium"
	TicketPriorityHigh   TicketPriority = "High"
)

// ValidPriority reports whether p belongs to the closed priority set.
func ValidPriority(p TicketPriority) bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// ExternalRefUnassigned is the sentinel held by tickets whose task has not
// been created in the external tracker yet.
const ExternalRefUnassigned = ""

// Ticket is the local record of a reported issue and its resolution state.
type Ticket struct {
	ID            int64
	ExternalRef   string
	ReporterEmail string
	Title         string
	Summary       string
	Priority      TicketPriority
	Resolved      bool
	WaitHours     int
	CreatedAt     time.Time
}

// Linked reports whether the ticket has been assigned an external ref.
func (t *Ticket) Linked() bool {
	return t.ExternalRef != ExternalRefUnassigned
}

// Issue is a classified inbound message judged actionable.
type Issue struct {
	Title         string
	ReporterEmail string
	Summary       string
	Priority      TicketPriority
}

// WaitBreakdown splits a total waited-hours count into whole days plus
// leftover hours for reminder messages.
func WaitBreakdown(totalHours int) (days, hours int) {
	return totalHours / 24, totalHours % 24
}
