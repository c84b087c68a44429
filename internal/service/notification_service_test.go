package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-tracker/internal/events"
)

func TestTicketLinkedSendsReporterAndEmployeeMail(t *testing.T) {
	mail := &fakeMailer{}
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, mail, zap.NewNop(), "staff@corp.com").RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventTicketLinked,
		TicketID: 1,
		Payload: events.TicketLinkedPayload{
			ExternalRef:   "task-9",
			ReporterEmail: "user@x.com",
			Title:         "Login crash",
		},
	})
	require.NoError(t, err)

	require.Len(t, mail.sent, 2)

	reporter := mail.byRecipient("user@x.com")
	require.Len(t, reporter, 1)
	require.Equal(t, "Your Support Ticket #task-9", reporter[0].subject)

	employee := mail.byRecipient("staff@corp.com")
	require.Len(t, employee, 1)
	require.Equal(t, "Task Assignment Notification", employee[0].subject)
}

func TestTicketEscalatedSendsReminder(t *testing.T) {
	mail := &fakeMailer{}
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, mail, zap.NewNop(), "staff@corp.com").RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventTicketEscalated,
		TicketID: 1,
		Payload: events.TicketEscalatedPayload{
			ExternalRef:    "task-9",
			Title:          "Login crash",
			TotalWaitHours: 34,
			Days:           1,
			Hours:          10,
		},
	})
	require.NoError(t, err)

	require.Len(t, mail.sent, 1)
	require.Equal(t, "staff@corp.com", mail.sent[0].to)
	require.Equal(t, "Reminder: Please Fix the Issue with Login crash", mail.sent[0].subject)
}

func TestDeliveryFailureDoesNotPropagate(t *testing.T) {
	mail := &fakeMailer{err: errors.New("smtp unreachable")}
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, mail, zap.NewNop(), "staff@corp.com").RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventTicketLinked,
		TicketID: 1,
		Payload: events.TicketLinkedPayload{
			ExternalRef:   "task-9",
			ReporterEmail: "user@x.com",
			Title:         "Login crash",
		},
	})
	require.NoError(t, err)
	require.Empty(t, mail.sent)
}

func TestUnexpectedPayloadIsIgnored(t *testing.T) {
	mail := &fakeMailer{}
	dispatcher := events.NewInMemoryDispatcher()
	NewNotificationService(dispatcher, mail, zap.NewNop(), "staff@corp.com").RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventTicketLinked,
		TicketID: 1,
		Payload:  "not a struct",
	})
	require.NoError(t, err)
	require.Empty(t, mail.sent)
}
