package domain

import "errors"

var (
	ErrMemberGone        = errors.New("member no longer in guild")
	ErrNotFound          = errors.New("resource not found")
	ErrPermissionDenied  = errors.New("permission denied by platform")
	ErrTransientService  = errors.New("transient platform failure")
	ErrAuditUnavailable  = errors.New("audit log unavailable")
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrReminderNotFound  = errors.New("reminder not found")
	ErrSupervisorActive  = errors.New("freeze supervisor already active for user")
	ErrTicketClosed      = errors.New("ticket already closed")
)
