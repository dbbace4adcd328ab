package http

import (
	"net/http"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
	"guildwarden/internal/core/services"
	infrabackup "guildwarden/internal/infrastructure/backup"
	"guildwarden/internal/infrastructure/monitoring"
	"guildwarden/pkg/errors"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes the staff-facing management API: supervisor
// inspection, manual verification and restoration, tickets, reminders and
// backup management.
type AdminHandler struct {
	verification ports.VerificationService
	tickets      ports.TicketService
	reminders    ports.ReminderService
	snapshots    ports.SnapshotRepository
	bypass       ports.BypassRegistry
	registry     *services.SupervisorRegistry
	restore      *infrabackup.RestoreService
	health       *monitoring.HealthChecker
}

func NewAdminHandler(
	verification ports.VerificationService,
	tickets ports.TicketService,
	reminders ports.ReminderService,
	snapshots ports.SnapshotRepository,
	bypass ports.BypassRegistry,
	registry *services.SupervisorRegistry,
	restore *infrabackup.RestoreService,
	health *monitoring.HealthChecker,
) *AdminHandler {
	return &AdminHandler{
		verification: verification,
		tickets:      tickets,
		reminders:    reminders,
		snapshots:    snapshots,
		bypass:       bypass,
		registry:     registry,
		restore:      restore,
		health:       health,
	}
}

// SetupRoutes registers the protected admin routes. Health is registered
// separately because it must stay reachable without a token.
func (h *AdminHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/freeze/supervisors", h.ListSupervisors)
	api.GET("/freeze/snapshots", h.ListSnapshots)
	api.GET("/verification/pending", h.PendingVerifications)

	api.POST("/members/:id/verify", h.VerifyMember)
	api.POST("/members/:id/bypass", h.GrantBypass)

	// Ticket routes are absent entirely when the ticket workflow is
	// switched off in config.
	if h.tickets != nil {
		api.POST("/tickets", h.OpenTicket)
		api.GET("/tickets", h.ListOpenTickets)
		api.GET("/tickets/:id", h.GetTicket)
		api.POST("/tickets/:id/claim", h.ClaimTicket)
		api.POST("/tickets/:id/close", h.CloseTicket)
	}

	api.POST("/reminders", h.ScheduleReminder)
	api.GET("/reminders", h.ListReminders)

	api.POST("/backups/:name/restore", h.RestoreBackup)
}

func (h *AdminHandler) SetupHealthRoute(router *gin.Engine) {
	router.GET("/health", h.Health)
}

func (h *AdminHandler) Health(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *AdminHandler) ListSupervisors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"supervisors": h.registry.Statuses(),
	})
}

func (h *AdminHandler) ListSnapshots(c *gin.Context) {
	snapshots, err := h.snapshots.All(c.Request.Context())
	if err != nil {
		c.Error(errors.NewInternalError("failed to list snapshots"))
		return
	}

	out := make(map[string][]string, len(snapshots))
	for userID, set := range snapshots {
		roles := make([]string, 0, set.Len())
		for _, role := range set.Sorted() {
			roles = append(roles, string(role))
		}
		out[string(userID)] = roles
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": out})
}

func (h *AdminHandler) PendingVerifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"pending": h.verification.PendingCount(),
	})
}

// VerifyMember forces verification completion for a member, restoring their
// snapshotted roles.
func (h *AdminHandler) VerifyMember(c *gin.Context) {
	userID := domain.UserID(c.Param("id"))
	if userID == "" {
		c.Error(errors.NewInvalidInputError("member id required"))
		return
	}

	if err := h.verification.CompleteVerification(c.Request.Context(), userID); err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "verification failed", http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": string(userID)})
}

type BypassRequest struct {
	TTLSeconds int `json:"ttl_seconds" binding:"required,min=1,max=3600"`
}

func (h *AdminHandler) GrantBypass(c *gin.Context) {
	userID := domain.UserID(c.Param("id"))
	if userID == "" {
		c.Error(errors.NewInvalidInputError("member id required"))
		return
	}

	var req BypassRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	h.bypass.Grant(userID, ttl)
	c.JSON(http.StatusOK, gin.H{
		"user_id":     string(userID),
		"ttl_seconds": req.TTLSeconds,
	})
}

type OpenTicketRequest struct {
	AuthorID string `json:"author_id" binding:"required,max=32"`
	Subject  string `json:"subject" binding:"required,min=1,max=200"`
	Body     string `json:"body" binding:"max=4000"`
}

func (h *AdminHandler) OpenTicket(c *gin.Context) {
	var req OpenTicketRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	ticket, err := h.tickets.Open(c.Request.Context(), domain.UserID(req.AuthorID), req.Subject, req.Body)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ticket": ticket})
}

func (h *AdminHandler) ListOpenTickets(c *gin.Context) {
	tickets, err := h.tickets.ListOpen(c.Request.Context())
	if err != nil {
		c.Error(errors.NewInternalError("failed to list tickets"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

func (h *AdminHandler) GetTicket(c *gin.Context) {
	ticket, err := h.tickets.Get(c.Request.Context(), domain.TicketID(c.Param("id")))
	if err != nil {
		if err == domain.ErrTicketNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
			return
		}
		c.Error(errors.NewInternalError("failed to get ticket"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

type TicketActionRequest struct {
	StaffID string `json:"staff_id" binding:"required,max=32"`
}

func (h *AdminHandler) ClaimTicket(c *gin.Context) {
	var req TicketActionRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	ticket, err := h.tickets.Claim(c.Request.Context(), domain.TicketID(c.Param("id")), domain.UserID(req.StaffID))
	if err != nil {
		h.ticketError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

func (h *AdminHandler) CloseTicket(c *gin.Context) {
	var req TicketActionRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	ticket, err := h.tickets.Close(c.Request.Context(), domain.TicketID(c.Param("id")), domain.UserID(req.StaffID))
	if err != nil {
		h.ticketError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

func (h *AdminHandler) ticketError(c *gin.Context, err error) {
	switch err {
	case domain.ErrTicketNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
	case domain.ErrTicketClosed:
		c.JSON(http.StatusConflict, gin.H{"error": "ticket already closed"})
	default:
		c.Error(errors.NewInternalError("ticket operation failed"))
	}
}

type ScheduleReminderRequest struct {
	AuthorID  string `json:"author_id" binding:"required,max=32"`
	ChannelID string `json:"channel_id" binding:"required,max=32"`
	Message   string `json:"message" binding:"required,min=1,max=2000"`
	InSeconds int    `json:"in_seconds" binding:"required,min=1"`
}

func (h *AdminHandler) ScheduleReminder(c *gin.Context) {
	var req ScheduleReminderRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	reminder, err := h.reminders.Schedule(
		c.Request.Context(),
		domain.UserID(req.AuthorID),
		domain.ChannelID(req.ChannelID),
		req.Message,
		time.Duration(req.InSeconds)*time.Second,
	)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"reminder": reminder})
}

func (h *AdminHandler) ListReminders(c *gin.Context) {
	reminders, err := h.reminders.List(c.Request.Context())
	if err != nil {
		c.Error(errors.NewInternalError("failed to list reminders"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminders": reminders})
}

type RestoreBackupRequest struct {
	Overwrite bool `json:"overwrite"`
}

func (h *AdminHandler) RestoreBackup(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.Error(errors.NewInvalidInputError("backup name required"))
		return
	}

	var req RestoreBackupRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	options := infrabackup.DefaultRestoreOptions()
	options.OverwriteExisting = req.Overwrite

	if err := h.restore.RestoreFromBackup(c.Request.Context(), name, options); err != nil {
		c.Error(errors.WrapError(err, errors.ErrCodeInternal, "restore failed", http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": name})
}
