package domain

import "time"

type TicketID string

type TicketStatus string

const (
	TicketOpen    TicketStatus = "open"
	TicketClaimed TicketStatus = "claimed"
	TicketClosed  TicketStatus = "closed"
)

// Ticket is one support request opened by a member.
type Ticket struct {
	ID        TicketID     `json:"id"`
	AuthorID  UserID       `json:"author_id"`
	Subject   string       `json:"subject"`
	Body      string       `json:"body,omitempty"`
	Status    TicketStatus `json:"status"`
	ClaimedBy UserID       `json:"claimed_by,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	ClosedAt  *time.Time   `json:"closed_at,omitempty"`
}
