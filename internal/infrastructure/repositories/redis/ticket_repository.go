package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisTicketRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisTicketRepository(client *redis.Client) ports.TicketRepository {
	return &RedisTicketRepository{
		client: client,
		prefix: "guildwarden:ticket:",
	}
}

func (r *RedisTicketRepository) ticketKey(id domain.TicketID) string {
	return r.prefix + string(id)
}

func (r *RedisTicketRepository) openTicketsKey() string {
	return r.prefix + "open"
}

func (r *RedisTicketRepository) allTicketsKey() string {
	return r.prefix + "all"
}

func (r *RedisTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	data, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.ticketKey(ticket.ID), data, 0)
	pipe.SAdd(ctx, r.allTicketsKey(), string(ticket.ID))
	if ticket.Status != domain.TicketClosed {
		pipe.SAdd(ctx, r.openTicketsKey(), string(ticket.ID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set ticket in Redis: %w", err)
	}
	return nil
}

func (r *RedisTicketRepository) GetByID(ctx context.Context, id domain.TicketID) (*domain.Ticket, error) {
	data, err := r.client.Get(ctx, r.ticketKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket from Redis: %w", err)
	}

	var ticket domain.Ticket
	if err := json.Unmarshal([]byte(data), &ticket); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ticket: %w", err)
	}
	return &ticket, nil
}

func (r *RedisTicketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	if _, err := r.GetByID(ctx, ticket.ID); err != nil {
		return err
	}

	data, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.ticketKey(ticket.ID), data, 0)
	if ticket.Status == domain.TicketClosed {
		pipe.SRem(ctx, r.openTicketsKey(), string(ticket.ID))
	} else {
		pipe.SAdd(ctx, r.openTicketsKey(), string(ticket.ID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update ticket in Redis: %w", err)
	}
	return nil
}

func (r *RedisTicketRepository) ListOpen(ctx context.Context) ([]*domain.Ticket, error) {
	return r.listSet(ctx, r.openTicketsKey())
}

func (r *RedisTicketRepository) All(ctx context.Context) ([]*domain.Ticket, error) {
	return r.listSet(ctx, r.allTicketsKey())
}

func (r *RedisTicketRepository) listSet(ctx context.Context, key string) ([]*domain.Ticket, error) {
	ids, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets from Redis: %w", err)
	}

	var tickets []*domain.Ticket
	for _, id := range ids {
		ticket, err := r.GetByID(ctx, domain.TicketID(id))
		if err == domain.ErrTicketNotFound {
			// Index entry without a ticket key; skip it.
			continue
		}
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
	})
	return tickets, nil
}
