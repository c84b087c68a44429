package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/issue-tracker/internal/domain"
	"github.com/spec-kit/issue-tracker/pkg/util"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	AssignExternalRef(ctx context.Context, id int64, externalRef string) error
	GetByExternalRef(ctx context.Context, externalRef string) (*domain.Ticket, error)
	ListUnresolved(ctx context.Context) ([]domain.Ticket, error)
	ListUnlinked(ctx context.Context) ([]domain.Ticket, error)
	MarkResolved(ctx context.Context, externalRef string) error
	AddWait(ctx context.Context, externalRef string, hours int) (int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_ref, reporter_email, title, summary, priority)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, resolved, wait_hours, created_at`
	err := r.pool.QueryRow(ctx, query,
		domain.ExternalRefUnassigned,
		ticket.ReporterEmail,
		ticket.Title,
		ticket.Summary,
		ticket.Priority,
	).Scan(&ticket.ID, &ticket.Resolved, &ticket.WaitHours, &ticket.CreatedAt)
	if err != nil {
		return util.NewStorageError("insert ticket", err)
	}
	ticket.ExternalRef = domain.ExternalRefUnassigned
	return nil
}

func (r *ticketRepository) AssignExternalRef(ctx context.Context, id int64, externalRef string) error {
	if externalRef == domain.ExternalRefUnassigned {
		return util.NewInvalidState("cannot assign the unassigned sentinel as external ref",
			map[string]any{"ticket_id": id})
	}

	const query = `UPDATE tickets SET external_ref=$2 WHERE id=$1 AND external_ref=''`
	cmd, err := r.pool.Exec(ctx, query, id, externalRef)
	if err != nil {
		return util.NewStorageError("assign external ref", err)
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}

	// Nothing matched: the ticket is missing or already linked. A retry with
	// the same ref is a no-op; a different ref is an invariant violation.
	var current string
	err = r.pool.QueryRow(ctx, `SELECT external_ref FROM tickets WHERE id=$1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return util.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	if err != nil {
		return util.NewStorageError("load ticket for ref check", err)
	}
	if current == externalRef {
		return nil
	}
	return util.NewInvalidState("ticket already linked to a different external ref",
		map[string]any{"ticket_id": id, "assigned_ref": current, "attempted_ref": externalRef})
}

func (r *ticketRepository) GetByExternalRef(ctx context.Context, externalRef string) (*domain.Ticket, error) {
	const query = `
        SELECT id, external_ref, reporter_email, title, summary, priority, resolved, wait_hours, created_at
        FROM tickets WHERE external_ref=$1`
	var ticket domain.Ticket
	err := r.pool.QueryRow(ctx, query, externalRef).Scan(
		&ticket.ID,
		&ticket.ExternalRef,
		&ticket.ReporterEmail,
		&ticket.Title,
		&ticket.Summary,
		&ticket.Priority,
		&ticket.Resolved,
		&ticket.WaitHours,
		&ticket.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, util.NewNotFound("ticket", map[string]any{"external_ref": externalRef})
	}
	if err != nil {
		return nil, util.NewStorageError("load ticket", err)
	}
	return &ticket, nil
}

func (r *ticketRepository) ListUnresolved(ctx context.Context) ([]domain.Ticket, error) {
	const query = `
        SELECT id, external_ref, reporter_email, title, summary, priority, resolved, wait_hours, created_at
        FROM tickets WHERE resolved=FALSE AND external_ref <> ''`
	return r.list(ctx, query)
}

func (r *ticketRepository) ListUnlinked(ctx context.Context) ([]domain.Ticket, error) {
	const query = `
        SELECT id, external_ref, reporter_email, title, summary, priority, resolved, wait_hours, created_at
        FROM tickets WHERE external_ref = ''`
	return r.list(ctx, query)
}

func (r *ticketRepository) list(ctx context.Context, query string) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, util.NewStorageError("list tickets", err)
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.ExternalRef,
			&ticket.ReporterEmail,
			&ticket.Title,
			&ticket.Summary,
			&ticket.Priority,
			&ticket.Resolved,
			&ticket.WaitHours,
			&ticket.CreatedAt,
		); err != nil {
			return nil, util.NewStorageError("scan ticket", err)
		}
		result = append(result, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, util.NewStorageError("list tickets", err)
	}
	return result, nil
}

func (r *ticketRepository) MarkResolved(ctx context.Context, externalRef string) error {
	const query = `UPDATE tickets SET resolved=TRUE WHERE external_ref=$1`
	cmd, err := r.pool.Exec(ctx, query, externalRef)
	if err != nil {
		return util.NewStorageError("mark ticket resolved", err)
	}
	if cmd.RowsAffected() == 0 {
		return util.NewNotFound("ticket", map[string]any{"external_ref": externalRef})
	}
	return nil
}

func (r *ticketRepository) AddWait(ctx context.Context, externalRef string, hours int) (int, error) {
	if hours < 0 {
		return 0, util.NewInvalidState("wait increment must be non-negative",
			map[string]any{"external_ref": externalRef, "hours": hours})
	}

	// Single UPDATE keeps concurrent increments from losing each other.
	const query = `
        UPDATE tickets SET wait_hours = wait_hours + $2
        WHERE external_ref=$1 AND resolved=FALSE
        RETURNING wait_hours`
	var total int
	err := r.pool.QueryRow(ctx, query, externalRef, hours).Scan(&total)
	if err == nil {
		return total, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, util.NewStorageError("add wait hours", err)
	}

	// Resolved between listing and accrual: the counter is frozen, so report
	// the current total without incrementing.
	ticket, getErr := r.GetByExternalRef(ctx, externalRef)
	if getErr != nil {
		return 0, getErr
	}
	return ticket.WaitHours, nil
}
