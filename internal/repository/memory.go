package repository

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/pkg/util"
)

// memoryTicketRepository is a mutex-guarded in-memory TicketRepository with
// the same transition semantics as the Postgres implementation. It backs the
// service when no POSTGRES_DSN is configured and is the fixture for tests.
type memoryTicketRepository struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*domain.Ticket
}

// NewMemoryTicketRepository instantiates the in-memory repository.
func NewMemoryTicketRepository() TicketRepository {
	return &memoryTicketRepository{
		nextID: 1,
		byID:   make(map[int64]*domain.Ticket),
	}
}

func (r *memoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket.ID = r.nextID
	r.nextID++
	ticket.ExternalRef = domain.ExternalRefUnassigned
	ticket.Resolved = false
	ticket.WaitHours = 0
	ticket.CreatedAt = time.Now()

	stored := *ticket
	r.byID[ticket.ID] = &stored
	return nil
}

func (r *memoryTicketRepository) AssignExternalRef(ctx context.Context, id int64, externalRef string) error {
	if externalRef == domain.ExternalRefUnassigned {
		return util.NewInvalidState("cannot assign the unassigned sentinel as external ref",
			map[string]any{"ticket_id": id})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.byID[id]
	if !ok {
		return util.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	switch ticket.ExternalRef {
	case domain.ExternalRefUnassigned:
		ticket.ExternalRef = externalRef
		return nil
	case externalRef:
		return nil
	default:
		return util.NewInvalidState("ticket already linked to a different external ref",
			map[string]any{"ticket_id": id, "assigned_ref": ticket.ExternalRef, "attempted_ref": externalRef})
	}
}

func (r *memoryTicketRepository) GetByExternalRef(ctx context.Context, externalRef string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket := r.findByRef(externalRef)
	if ticket == nil {
		return nil, util.NewNotFound("ticket", map[string]any{"external_ref": externalRef})
	}
	copied := *ticket
	return &copied, nil
}

func (r *memoryTicketRepository) ListUnresolved(ctx context.Context) ([]domain.Ticket, error) {
	return r.filter(func(t *domain.Ticket) bool {
		return !t.Resolved && t.Linked()
	}), nil
}

func (r *memoryTicketRepository) ListUnlinked(ctx context.Context) ([]domain.Ticket, error) {
	return r.filter(func(t *domain.Ticket) bool {
		return !t.Linked()
	}), nil
}

func (r *memoryTicketRepository) MarkResolved(ctx context.Context, externalRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket := r.findByRef(externalRef)
	if ticket == nil {
		return util.NewNotFound("ticket", map[string]any{"external_ref": externalRef})
	}
	ticket.Resolved = true
	return nil
}

func (r *memoryTicketRepository) AddWait(ctx context.Context, externalRef string, hours int) (int, error) {
	if hours < 0 {
		return 0, util.NewInvalidState("wait increment must be non-negative",
			map[string]any{"external_ref": externalRef, "hours": hours})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ticket := r.findByRef(externalRef)
	if ticket == nil {
		return 0, util.NewNotFound("ticket", map[string]any{"external_ref": externalRef})
	}
	if ticket.Resolved {
		return ticket.WaitHours, nil
	}
	ticket.WaitHours += hours
	return ticket.WaitHours, nil
}

func (r *memoryTicketRepository) filter(keep func(*domain.Ticket) bool) []domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.Ticket
	for _, ticket := range r.byID {
		if keep(ticket) {
			result = append(result, *ticket)
		}
	}
	return result
}

// findByRef assumes r.mu is held.
func (r *memoryTicketRepository) findByRef(externalRef string) *domain.Ticket {
	if externalRef == domain.ExternalRefUnassigned {
		return nil
	}
	for _, ticket := range r.byID {
		if ticket.ExternalRef == externalRef {
			return ticket
		}
	}
	return nil
}
