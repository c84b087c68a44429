package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/issue-tracker/internal/classifier"
	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/events"
	"github.com/spec-kit/issue-tracker/internal/gitscrum"
	"github.com/spec-kit/issue-tracker/internal/mailbox"
	"github.com/spec-kit/issue-tracker/internal/observability"
	"github.com/spec-kit/issue-tracker/internal/repository"
	"github.com/spec-kit/issue-tracker/pkg/util"
)

const (
	sweepIntake    = "intake"
	sweepReconcile = "reconcile"
)

// TrackerService owns the ticket lifecycle: intake of classified issues,
// linking to external tasks, and periodic reconciliation against the external
// tracker with time-based escalation.
type TrackerService struct {
	tickets     repository.TicketRepository
	mail        mailbox.Source
	seen        *mailbox.SeenCache
	classifier  classifier.Classifier
	gateway     gitscrum.Gateway
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
	waitPerPass int
	parallelism int
}

// TrackerDependencies bundles collaborators for the tracker.
type TrackerDependencies struct {
	TicketRepo repository.TicketRepository
	Mail       mailbox.Source
	SeenCache  *mailbox.SeenCache
	Classifier classifier.Classifier
	Gateway    gitscrum.Gateway
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics

	// WaitHoursPerPass is the reconcile sweep period in hours; each pass adds
	// it to every still-unresolved ticket.
	WaitHoursPerPass int
	Parallelism      int
}

// NewTrackerService constructs the service.
func NewTrackerService(deps TrackerDependencies) *TrackerService {
	parallelism := deps.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	return &TrackerService{
		tickets:     deps.TicketRepo,
		mail:        deps.Mail,
		seen:        deps.SeenCache,
		classifier:  deps.Classifier,
		gateway:     deps.Gateway,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		waitPerPass: deps.WaitHoursPerPass,
		parallelism: parallelism,
	}
}

// IntakeSweep retries linking for tickets stuck without an external task,
// then pulls unread mail and processes each message independently. A failed
// message never aborts the rest of the sweep.
func (s *TrackerService) IntakeSweep(ctx context.Context) {
	s.metrics.RecordSweep(sweepIntake)
	s.relinkPending(ctx)

	messages, err := s.mail.FetchUnread(ctx)
	if err != nil {
		s.logger.Warn("mail fetch failed", zap.Error(err))
		return
	}
	if len(messages) == 0 {
		s.logger.Debug("no new messages")
		return
	}
	s.logger.Info("processing inbound messages", zap.Int("count", len(messages)))

	g := new(errgroup.Group)
	g.SetLimit(s.parallelism)
	for _, msg := range messages {
		msg := msg
		g.Go(func() error {
			if err := s.processMessage(ctx, msg); err != nil {
				s.itemFailure(sweepIntake, err,
					zap.Uint32("uid", msg.UID),
					zap.String("from", msg.From),
					zap.String("subject", msg.Subject))
			} else {
				s.metrics.RecordItem(sweepIntake)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *TrackerService) processMessage(ctx context.Context, msg mailbox.Message) error {
	if !s.seen.Claim(ctx, msg.UID) {
		s.logger.Debug("message already claimed", zap.Uint32("uid", msg.UID))
		return nil
	}

	issue, err := s.classifier.Classify(ctx, msg.Subject, msg.Body, msg.From)
	if err != nil {
		return fmt.Errorf("classify message: %w", err)
	}
	if issue == nil {
		s.logger.Debug("message not actionable", zap.Uint32("uid", msg.UID))
		return nil
	}

	ticket := &domain.Ticket{
		ReporterEmail: issue.ReporterEmail,
		Title:         issue.Title,
		Summary:       issue.Summary,
		Priority:      issue.Priority,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketOpened,
		TicketID: ticket.ID,
		Payload: events.TicketOpenedPayload{
			ReporterEmail: ticket.ReporterEmail,
			Title:         ticket.Title,
			Priority:      ticket.Priority,
		},
	})
	s.logger.Info("ticket opened",
		zap.Int64("ticket_id", ticket.ID),
		zap.String("title", ticket.Title),
		zap.String("priority", string(ticket.Priority)))

	return s.linkTicket(ctx, ticket)
}

// linkTicket creates the external task and records its ref. On gateway
// failure the ticket stays unlinked and the next intake sweep retries.
func (s *TrackerService) linkTicket(ctx context.Context, ticket *domain.Ticket) error {
	ref, err := s.gateway.CreateTask(ctx,
		fmt.Sprintf("%s (%s)", ticket.Title, ticket.Priority),
		ticket.Summary)
	if err != nil {
		return fmt.Errorf("create external task for ticket %d: %w", ticket.ID, err)
	}

	if err := s.tickets.AssignExternalRef(ctx, ticket.ID, ref); err != nil {
		return fmt.Errorf("assign external ref %s to ticket %d: %w", ref, ticket.ID, err)
	}
	ticket.ExternalRef = ref

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketLinked,
		TicketID: ticket.ID,
		Payload: events.TicketLinkedPayload{
			ExternalRef:   ref,
			ReporterEmail: ticket.ReporterEmail,
			Title:         ticket.Title,
		},
	})
	s.logger.Info("ticket linked", zap.Int64("ticket_id", ticket.ID), zap.String("external_ref", ref))
	return nil
}

func (s *TrackerService) relinkPending(ctx context.Context) {
	stuck, err := s.tickets.ListUnlinked(ctx)
	if err != nil {
		s.logger.Warn("list unlinked tickets failed", zap.Error(err))
		return
	}
	for i := range stuck {
		if err := s.linkTicket(ctx, &stuck[i]); err != nil {
			s.itemFailure(sweepIntake, err, zap.Int64("ticket_id", stuck[i].ID))
		} else {
			s.metrics.RecordItem(sweepIntake)
		}
	}
}

// ReconcileSweep polls the external tracker for every unresolved ticket.
// Finished tasks resolve the local ticket; anything else accrues waited hours
// and triggers a reminder. Failures are isolated per ticket.
func (s *TrackerService) ReconcileSweep(ctx context.Context) {
	s.metrics.RecordSweep(sweepReconcile)

	tickets, err := s.tickets.ListUnresolved(ctx)
	if err != nil {
		s.logger.Warn("list unresolved tickets failed", zap.Error(err))
		return
	}
	if len(tickets) == 0 {
		s.logger.Debug("no unresolved tickets")
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(s.parallelism)
	for _, ticket := range tickets {
		ticket := ticket
		g.Go(func() error {
			if err := s.reconcileTicket(ctx, ticket); err != nil {
				s.itemFailure(sweepReconcile, err,
					zap.Int64("ticket_id", ticket.ID),
					zap.String("external_ref", ticket.ExternalRef))
			} else {
				s.metrics.RecordItem(sweepReconcile)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *TrackerService) reconcileTicket(ctx context.Context, ticket domain.Ticket) error {
	status, err := s.gateway.TaskStatus(ctx, ticket.ExternalRef)
	if err != nil {
		return fmt.Errorf("status for %s: %w", ticket.ExternalRef, err)
	}

	if status == gitscrum.StatusComplete {
		if err := s.tickets.MarkResolved(ctx, ticket.ExternalRef); err != nil {
			return fmt.Errorf("mark %s resolved: %w", ticket.ExternalRef, err)
		}
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketResolved,
			TicketID: ticket.ID,
			Payload: events.TicketResolvedPayload{
				ExternalRef: ticket.ExternalRef,
				Title:       ticket.Title,
			},
		})
		s.logger.Info("ticket resolved", zap.Int64("ticket_id", ticket.ID), zap.String("external_ref", ticket.ExternalRef))
		return nil
	}

	total, err := s.tickets.AddWait(ctx, ticket.ExternalRef, s.waitPerPass)
	if err != nil {
		return fmt.Errorf("accrue wait for %s: %w", ticket.ExternalRef, err)
	}
	days, hours := domain.WaitBreakdown(total)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketEscalated,
		TicketID: ticket.ID,
		Payload: events.TicketEscalatedPayload{
			ExternalRef:    ticket.ExternalRef,
			Title:          ticket.Title,
			TotalWaitHours: total,
			Days:           days,
			Hours:          hours,
		},
	})
	s.logger.Info("ticket escalated",
		zap.Int64("ticket_id", ticket.ID),
		zap.String("external_ref", ticket.ExternalRef),
		zap.Int("days", days),
		zap.Int("hours", hours))
	return nil
}

// itemFailure records a per-item failure without aborting the sweep.
// Invariant violations point at a logic bug or a race and log louder.
func (s *TrackerService) itemFailure(sweep string, err error, fields ...zap.Field) {
	s.metrics.RecordItemError(sweep)
	fields = append(fields, zap.Error(err))
	if util.IsInvalidState(err) {
		s.logger.Error("sweep item hit invalid state", fields...)
		return
	}
	s.logger.Warn("sweep item failed", fields...)
}

func (s *TrackerService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
