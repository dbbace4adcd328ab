package domain

import "time"

type ReminderID string

// Reminder is a scheduled message to post back to its author.
type Reminder struct {
	ID        ReminderID `json:"id"`
	AuthorID  UserID     `json:"author_id"`
	ChannelID ChannelID  `json:"channel_id"`
	Message   string     `json:"message"`
	TriggerAt time.Time  `json:"trigger_at"`
}

// Due reports whether the reminder should fire at or before now.
func (r *Reminder) Due(now time.Time) bool {
	return !r.TriggerAt.After(now)
}
