package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/internal/events"
	"github.com/spec-kit/issue-tracker/internal/gitscrum"
	"github.com/spec-kit/issue-tracker/internal/mailbox"
	"github.com/spec-kit/issue-tracker/internal/observability"
	"github.com/spec-kit/issue-tracker/internal/repository"
)

type fakeSource struct {
	messages []mailbox.Message
	err      error
}

func (f *fakeSource) FetchUnread(ctx context.Context) ([]mailbox.Message, error) {
	return f.messages, f.err
}

type fakeClassifier struct {
	issues map[string]*domain.Issue // keyed by subject
	err    error
}

func (f *fakeClassifier) Classify(ctx context.Context, subject, body, sender string) (*domain.Issue, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.issues[subject], nil
}

type fakeGateway struct {
	mu          sync.Mutex
	nextRef     int
	createCalls int
	createErr   error
	statuses    map[string]string
	statusErr   map[string]error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		statuses:  make(map[string]string),
		statusErr: make(map[string]error),
	}
}

func (f *fakeGateway) CreateTask(ctx context.Context, title, description string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextRef++
	ref := fmt.Sprintf("task-%d", f.nextRef)
	f.statuses[ref] = "Sprint Backlog"
	return ref, nil
}

func (f *fakeGateway) TaskStatus(ctx context.Context, externalRef string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.statusErr[externalRef]; err != nil {
		return "", err
	}
	return f.statuses[externalRef], nil
}

type sentMail struct {
	to      string
	subject string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject})
	return nil
}

func (f *fakeMailer) byRecipient(to string) []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMail
	for _, m := range f.sent {
		if m.to == to {
			out = append(out, m)
		}
	}
	return out
}

type trackerFixture struct {
	tracker *TrackerService
	repo    repository.TicketRepository
	source  *fakeSource
	class   *fakeClassifier
	gateway *fakeGateway
	mail    *fakeMailer
}

func newTrackerFixture(t *testing.T, waitHours int) *trackerFixture {
	t.Helper()

	logger := zap.NewNop()
	repo := repository.NewMemoryTicketRepository()
	source := &fakeSource{}
	class := &fakeClassifier{issues: make(map[string]*domain.Issue)}
	gateway := newFakeGateway()
	mail := &fakeMailer{}
	dispatcher := events.NewInMemoryDispatcher()

	NewNotificationService(dispatcher, mail, logger, "staff@corp.com").RegisterHandlers()

	tracker := NewTrackerService(TrackerDependencies{
		TicketRepo:       repo,
		Mail:             source,
		SeenCache:        mailbox.NewSeenCache(nil, logger),
		Classifier:       class,
		Gateway:          gateway,
		Dispatcher:       dispatcher,
		Logger:           logger,
		Metrics:          observability.NewMetrics(),
		WaitHoursPerPass: waitHours,
		Parallelism:      4,
	})

	return &trackerFixture{
		tracker: tracker,
		repo:    repo,
		source:  source,
		class:   class,
		gateway: gateway,
		mail:    mail,
	}
}

func TestIntakeSweepOpensAndLinksTicket(t *testing.T) {
	f := newTrackerFixture(t, 4)
	f.source.messages = []mailbox.Message{
		{UID: 1, From: "user@x.com", Subject: "App crashes on login", Body: "stack trace..."},
	}
	f.class.issues["App crashes on login"] = &domain.Issue{
		Title:         "Login crash",
		ReporterEmail: "user@x.com",
		Summary:       "crashes right after submitting credentials",
		Priority:      domain.TicketPriorityHigh,
	}

	f.tracker.IntakeSweep(context.Background())

	unresolved, err := f.repo.ListUnresolved(context.Background())
	require.NoError(t, err)
	require.Len(t, unresolved, 1)

	ticket := unresolved[0]
	require.Equal(t, "Login crash", ticket.Title)
	require.Equal(t, "user@x.com", ticket.ReporterEmail)
	require.Equal(t, domain.TicketPriorityHigh, ticket.Priority)
	require.False(t, ticket.Resolved)
	require.Equal(t, 0, ticket.WaitHours)
	require.True(t, ticket.Linked())

	require.Equal(t, 1, f.gateway.createCalls)

	require.Len(t, f.mail.sent, 2)
	require.Len(t, f.mail.byRecipient("user@x.com"), 1)
	require.Len(t, f.mail.byRecipient("staff@corp.com"), 1)
}

func TestIntakeSweepDropsNonActionableMessage(t *testing.T) {
	f := newTrackerFixture(t, 4)
	f.source.messages = []mailbox.Message{
		{UID: 7, From: "user@x.com", Subject: "Thanks!", Body: "all good now"},
	}
	// classifier returns nil for this subject

	f.tracker.IntakeSweep(context.Background())

	unresolved, err := f.repo.ListUnresolved(context.Background())
	require.NoError(t, err)
	require.Empty(t, unresolved)
	unlinked, err := f.repo.ListUnlinked(context.Background())
	require.NoError(t, err)
	require.Empty(t, unlinked)
	require.Zero(t, f.gateway.createCalls)
	require.Empty(t, f.mail.sent)
}

func TestIntakeSweepRetriesLinkOnNextPass(t *testing.T) {
	f := newTrackerFixture(t, 4)
	f.source.messages = []mailbox.Message{
		{UID: 2, From: "user@x.com", Subject: "Broken export", Body: "csv empty"},
	}
	f.class.issues["Broken export"] = &domain.Issue{
		Title:         "Export produces empty file",
		ReporterEmail: "user@x.com",
		Summary:       "csv export has headers only",
		Priority:      domain.TicketPriorityMedium,
	}
	f.gateway.createErr = errors.New("gateway down")

	f.tracker.IntakeSweep(context.Background())

	// Ticket exists but is invisible to reconciliation until linked.
	unlinked, err := f.repo.ListUnlinked(context.Background())
	require.NoError(t, err)
	require.Len(t, unlinked, 1)
	unresolved, err := f.repo.ListUnresolved(context.Background())
	require.NoError(t, err)
	require.Empty(t, unresolved)
	require.Empty(t, f.mail.sent)

	// Gateway recovers; the next intake sweep relinks without a new message.
	f.gateway.createErr = nil
	f.source.messages = nil
	f.tracker.IntakeSweep(context.Background())

	unlinked, err = f.repo.ListUnlinked(context.Background())
	require.NoError(t, err)
	require.Empty(t, unlinked)
	unresolved, err = f.repo.ListUnresolved(context.Background())
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	require.Len(t, f.mail.sent, 2)
}

func TestReconcileSweepAccruesWaitAndEscalates(t *testing.T) {
	f := newTrackerFixture(t, 4)
	ref := openLinkedTicket(t, f, "Login crash")

	f.mail.sent = nil
	f.tracker.ReconcileSweep(context.Background())

	ticket, err := f.repo.GetByExternalRef(context.Background(), ref)
	require.NoError(t, err)
	require.False(t, ticket.Resolved)
	require.Equal(t, 4, ticket.WaitHours)

	reminders := f.mail.byRecipient("staff@corp.com")
	require.Len(t, reminders, 1)
	require.Contains(t, reminders[0].subject, "Reminder")
}

func TestReconcileSweepBreakdownAfterManyHours(t *testing.T) {
	f := newTrackerFixture(t, 4)
	ref := openLinkedTicket(t, f, "Login crash")

	// Accrue 30 hours up front, then run one 4-hour pass: 34 = 1 day 10 hours.
	_, err := f.repo.AddWait(context.Background(), ref, 30)
	require.NoError(t, err)

	f.tracker.ReconcileSweep(context.Background())

	ticket, err := f.repo.GetByExternalRef(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, 34, ticket.WaitHours)

	days, hours := domain.WaitBreakdown(ticket.WaitHours)
	require.Equal(t, 1, days)
	require.Equal(t, 10, hours)
}

func TestReconcileSweepResolvesCompletedTask(t *testing.T) {
	f := newTrackerFixture(t, 4)
	ref := openLinkedTicket(t, f, "Login crash")
	f.gateway.statuses[ref] = gitscrum.StatusComplete
	f.mail.sent = nil

	f.tracker.ReconcileSweep(context.Background())

	ticket, err := f.repo.GetByExternalRef(context.Background(), ref)
	require.NoError(t, err)
	require.True(t, ticket.Resolved)
	require.Equal(t, 0, ticket.WaitHours, "no wait accrues on the resolving pass")
	require.Empty(t, f.mail.sent, "no reminder for a resolved ticket")

	unresolved, err := f.repo.ListUnresolved(context.Background())
	require.NoError(t, err)
	require.Empty(t, unresolved)

	// Further sweeps leave the ticket untouched.
	f.tracker.ReconcileSweep(context.Background())
	ticket, err = f.repo.GetByExternalRef(context.Background(), ref)
	require.NoError(t, err)
	require.True(t, ticket.Resolved)
	require.Equal(t, 0, ticket.WaitHours)
}

func TestReconcileSweepIsolatesPerTicketFailures(t *testing.T) {
	f := newTrackerFixture(t, 4)

	refs := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		refs = append(refs, openLinkedTicket(t, f, fmt.Sprintf("Issue %d", i)))
	}
	f.gateway.statusErr[refs[2]] = errors.New("gateway unreachable")

	f.tracker.ReconcileSweep(context.Background())

	for i, ref := range refs {
		ticket, err := f.repo.GetByExternalRef(context.Background(), ref)
		require.NoError(t, err)
		if i == 2 {
			require.Equal(t, 0, ticket.WaitHours, "failed ticket must not accrue")
		} else {
			require.Equal(t, 4, ticket.WaitHours)
		}
	}
}

func TestReconcileWaitIsMonotonic(t *testing.T) {
	f := newTrackerFixture(t, 4)
	ref := openLinkedTicket(t, f, "Login crash")

	previous := 0
	for i := 0; i < 5; i++ {
		f.tracker.ReconcileSweep(context.Background())
		ticket, err := f.repo.GetByExternalRef(context.Background(), ref)
		require.NoError(t, err)
		require.GreaterOrEqual(t, ticket.WaitHours, previous)
		previous = ticket.WaitHours
	}
	require.Equal(t, 20, previous)
}

// openLinkedTicket drives one message through intake and returns the
// resulting external ref.
func openLinkedTicket(t *testing.T, f *trackerFixture, title string) string {
	t.Helper()

	subject := "mail: " + title
	f.source.messages = []mailbox.Message{
		{UID: uint32(len(f.gateway.statuses) + 100), From: "user@x.com", Subject: subject, Body: "details"},
	}
	f.class.issues[subject] = &domain.Issue{
		Title:         title,
		ReporterEmail: "user@x.com",
		Summary:       "details",
		Priority:      domain.TicketPriorityHigh,
	}
	f.tracker.IntakeSweep(context.Background())
	f.source.messages = nil

	unresolved, err := f.repo.ListUnresolved(context.Background())
	require.NoError(t, err)
	for _, ticket := range unresolved {
		if ticket.Title == title {
			return ticket.ExternalRef
		}
	}
	t.Fatalf("ticket %q not linked", title)
	return ""
}
