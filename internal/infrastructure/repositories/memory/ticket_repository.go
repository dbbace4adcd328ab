package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
)

type MemoryTicketRepository struct {
	tickets map[domain.TicketID]*domain.Ticket
	mu      sync.RWMutex
}

func NewMemoryTicketRepository() ports.TicketRepository {
	return &MemoryTicketRepository{
		tickets: make(map[domain.TicketID]*domain.Ticket),
	}
}

func (r *MemoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tickets[ticket.ID]; exists {
		return fmt.Errorf("ticket already exists: %s", ticket.ID)
	}

	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *MemoryTicketRepository) GetByID(ctx context.Context, id domain.TicketID) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ticket, exists := r.tickets[id]
	if !exists {
		return nil, domain.ErrTicketNotFound
	}

	copied := *ticket
	return &copied, nil
}

func (r *MemoryTicketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tickets[ticket.ID]; !exists {
		return domain.ErrTicketNotFound
	}

	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *MemoryTicketRepository) ListOpen(ctx context.Context) ([]*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var open []*domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.Status != domain.TicketClosed {
			copied := *ticket
			open = append(open, &copied)
		}
	}
	sortTickets(open)
	return open, nil
}

func (r *MemoryTicketRepository) All(ctx context.Context) ([]*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.Ticket, 0, len(r.tickets))
	for _, ticket := range r.tickets {
		copied := *ticket
		all = append(all, &copied)
	}
	sortTickets(all)
	return all, nil
}

func sortTickets(tickets []*domain.Ticket) {
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
	})
}
