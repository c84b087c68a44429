package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/issue-tracker/internal/events"
	"github.com/spec-kit/issue-tracker/internal/mailer"
)

// NotificationService turns ticket events into outbound emails. Delivery
// failures are logged and swallowed; a ticket is considered opened or
// escalated regardless of whether its mail went out.
type NotificationService struct {
	dispatcher    events.Dispatcher
	mailer        mailer.Mailer
	logger        *zap.Logger
	employeeEmail string
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, m mailer.Mailer, logger *zap.Logger, employeeEmail string) *NotificationService {
	return &NotificationService{
		dispatcher:    dispatcher,
		mailer:        m,
		logger:        logger,
		employeeEmail: employeeEmail,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketLinked, n.handleTicketLinked)
	n.dispatcher.Subscribe(events.EventTicketEscalated, n.handleTicketEscalated)
	n.dispatcher.Subscribe(events.EventTicketResolved, n.handleTicketResolved)
}

func (n *NotificationService) handleTicketLinked(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketLinkedPayload)
	if !ok {
		n.logger.Error("unexpected payload for ticket_linked", zap.Int64("ticket_id", event.TicketID))
		return nil
	}

	n.send(ctx, payload.ReporterEmail,
		fmt.Sprintf("Your Support Ticket #%s", payload.ExternalRef),
		fmt.Sprintf(`Hello,

We have received your issue and are working on it.

Your support ticket ID is: %s

We will get back to you as soon as possible.

Thank you for contacting us!

Best regards,
Support Team`, payload.ExternalRef))

	n.send(ctx, n.employeeEmail,
		"Task Assignment Notification",
		fmt.Sprintf(`Hello,

You have been assigned a new task. Please review the task details and start working on it at your earliest convenience.

Task ID: %s
Task Title: %s

Kindly update the progress regularly.

Best regards,
Support Team`, payload.ExternalRef, payload.Title))
	return nil
}

func (n *NotificationService) handleTicketEscalated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketEscalatedPayload)
	if !ok {
		n.logger.Error("unexpected payload for ticket_escalated", zap.Int64("ticket_id", event.TicketID))
		return nil
	}

	n.send(ctx, n.employeeEmail,
		fmt.Sprintf("Reminder: Please Fix the Issue with %s", payload.Title),
		fmt.Sprintf(`Hello,

This is a reminder to fix the issue below.

Task ID: %s
Task Title: %s

Pending since %d days %d hours.

Please look into this at the earliest and update once the issue has been resolved.

Thank you for your prompt attention to this matter.

Best regards,
Support Team`, payload.ExternalRef, payload.Title, payload.Days, payload.Hours))
	return nil
}

func (n *NotificationService) handleTicketResolved(ctx context.Context, event events.Event) error {
	// No outbound mail on resolution; the record is enough.
	n.logger.Info("ticket resolved", zap.Int64("ticket_id", event.TicketID))
	return nil
}

func (n *NotificationService) send(ctx context.Context, to, subject, body string) {
	if to == "" {
		n.logger.Warn("notification skipped: empty recipient", zap.String("subject", subject))
		return
	}
	if err := n.mailer.Send(ctx, to, subject, body); err != nil {
		n.logger.Warn("notification delivery failed",
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err))
		return
	}
	n.logger.Info("notification sent", zap.String("to", to), zap.String("subject", subject))
}
