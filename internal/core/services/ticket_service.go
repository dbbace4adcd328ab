package services

import (
	"context"
	"fmt"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
	"guildwarden/pkg/clock"
	"guildwarden/pkg/errors"
	"guildwarden/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxTicketSubjectLen = 120

type ticketService struct {
	tickets   ports.TicketRepository
	community ports.CommunityService
	clk       clock.Clock
	metrics   Metrics
	logger    *zap.SugaredLogger
}

func NewTicketService(
	tickets ports.TicketRepository,
	community ports.CommunityService,
	clk clock.Clock,
	metrics Metrics,
	logger *zap.SugaredLogger,
) ports.TicketService {
	return &ticketService{
		tickets:   tickets,
		community: community,
		clk:       clk,
		metrics:   metrics,
		logger:    logger,
	}
}

func (t *ticketService) Open(ctx context.Context, author domain.UserID, subject, body string) (*domain.Ticket, error) {
	subject = utils.SanitizeString(subject)
	if subject == "" {
		return nil, errors.NewInvalidInputError("ticket subject is required")
	}
	subject = utils.TruncateString(subject, maxTicketSubjectLen)

	ticket := &domain.Ticket{
		ID:        domain.TicketID(uuid.New().String()),
		AuthorID:  author,
		Subject:   subject,
		Body:      utils.SanitizeString(body),
		Status:    domain.TicketOpen,
		CreatedAt: t.clk.Now(),
	}
	if err := t.tickets.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}

	t.metrics.TicketOpened()
	t.community.StaffLog(ctx, "ticket opened",
		fmt.Sprintf("%s by %s: %s", ticket.ID, author, subject))
	t.logger.Infow("ticket opened", "ticket_id", ticket.ID, "author_id", author)
	return ticket, nil
}

func (t *ticketService) Claim(ctx context.Context, id domain.TicketID, staff domain.UserID) (*domain.Ticket, error) {
	ticket, err := t.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketClosed {
		return nil, domain.ErrTicketClosed
	}
	if ticket.Status == domain.TicketClaimed && ticket.ClaimedBy == staff {
		return ticket, nil
	}

	ticket.Status = domain.TicketClaimed
	ticket.ClaimedBy = staff
	if err := t.tickets.Update(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to claim ticket %s: %w", id, err)
	}

	t.logger.Infow("ticket claimed", "ticket_id", id, "staff_id", staff)
	return ticket, nil
}

func (t *ticketService) Close(ctx context.Context, id domain.TicketID, staff domain.UserID) (*domain.Ticket, error) {
	ticket, err := t.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketClosed {
		return ticket, nil
	}

	now := t.clk.Now()
	ticket.Status = domain.TicketClosed
	ticket.ClosedAt = &now
	if ticket.ClaimedBy == "" {
		ticket.ClaimedBy = staff
	}
	if err := t.tickets.Update(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to close ticket %s: %w", id, err)
	}

	t.metrics.TicketClosed()
	t.community.StaffLog(ctx, "ticket closed",
		fmt.Sprintf("%s closed by %s", id, staff))
	t.logger.Infow("ticket closed", "ticket_id", id, "staff_id", staff)
	return ticket, nil
}

func (t *ticketService) Get(ctx context.Context, id domain.TicketID) (*domain.Ticket, error) {
	return t.tickets.GetByID(ctx, id)
}

func (t *ticketService) ListOpen(ctx context.Context) ([]*domain.Ticket, error) {
	return t.tickets.ListOpen(ctx)
}
