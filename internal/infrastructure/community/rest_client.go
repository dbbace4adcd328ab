package community

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
	"guildwarden/pkg/cache"
	"guildwarden/pkg/tracing"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	permManageRoles   = 1 << 28
	permAdministrator = 1 << 3

	auditActionMemberRoleUpdate = 25

	// Milliseconds since the Unix epoch at which platform snowflake IDs
	// start counting.
	snowflakeEpochMs = 1420070400000

	rolePermCacheKey = "guild-role-permissions"
	rolePermCacheTTL = 5 * time.Minute
)

// RESTClient implements ports.CommunityService against the platform's HTTP
// API. Role mutations share one rate limiter so freeze, restoration and
// manual admin actions cannot collectively exceed the platform budget.
type RESTClient struct {
	baseURL         string
	token           string
	guildID         domain.GuildID
	staffLogChannel domain.ChannelID
	httpClient      *http.Client
	limiter         *rate.Limiter
	roleCache       *cache.Cache
	logger          *zap.SugaredLogger
}

type Options struct {
	BaseURL         string
	Token           string
	GuildID         domain.GuildID
	StaffLogChannel domain.ChannelID
	Timeout         time.Duration
	MutationRate    float64
	MutationBurst   int
}

func NewRESTClient(opts Options, logger *zap.SugaredLogger) ports.CommunityService {
	return &RESTClient{
		baseURL:         opts.BaseURL,
		token:           opts.Token,
		guildID:         opts.GuildID,
		staffLogChannel: opts.StaffLogChannel,
		httpClient:      &http.Client{Timeout: opts.Timeout},
		limiter:         rate.NewLimiter(rate.Limit(opts.MutationRate), opts.MutationBurst),
		roleCache:       cache.New(rolePermCacheTTL),
		logger:          logger,
	}
}

type memberPayload struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Roles    []string  `json:"roles"`
	JoinedAt time.Time `json:"joined_at"`
}

func (c *RESTClient) GetMember(ctx context.Context, userID domain.UserID) (*domain.Member, error) {
	ctx, span := tracing.TracePlatformCall(ctx, "get_member", string(userID))
	defer span.End()

	var payload memberPayload
	path := fmt.Sprintf("/guilds/%s/members/%s", c.guildID, userID)
	if err := c.do(ctx, http.MethodGet, path, nil, "", &payload); err != nil {
		return nil, memberErr(err)
	}

	roles := make([]domain.RoleID, 0, len(payload.Roles))
	for _, r := range payload.Roles {
		roles = append(roles, domain.RoleID(r))
	}
	return &domain.Member{
		ID:       userID,
		Username: payload.User.Username,
		Roles:    roles,
		JoinedAt: payload.JoinedAt,
	}, nil
}

func (c *RESTClient) AddRoles(ctx context.Context, userID domain.UserID, roles []domain.RoleID, reason string) ([]ports.RoleResult, error) {
	return c.mutateRoles(ctx, http.MethodPut, userID, roles, reason)
}

func (c *RESTClient) RemoveRoles(ctx context.Context, userID domain.UserID, roles []domain.RoleID, reason string) ([]ports.RoleResult, error) {
	return c.mutateRoles(ctx, http.MethodDelete, userID, roles, reason)
}

func (c *RESTClient) mutateRoles(ctx context.Context, method string, userID domain.UserID, roles []domain.RoleID, reason string) ([]ports.RoleResult, error) {
	op := "add_roles"
	if method == http.MethodDelete {
		op = "remove_roles"
	}
	ctx, span := tracing.TracePlatformCall(ctx, op, string(userID))
	defer span.End()

	results := make([]ports.RoleResult, 0, len(roles))
	for _, role := range roles {
		if err := c.limiter.Wait(ctx); err != nil {
			return results, err
		}
		path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s", c.guildID, userID, role)
		err := c.do(ctx, method, path, nil, reason, nil)
		results = append(results, ports.RoleResult{Role: role, Err: memberErr(err)})
	}
	return results, nil
}

func (c *RESTClient) KickMember(ctx context.Context, userID domain.UserID, reason string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	path := fmt.Sprintf("/guilds/%s/members/%s", c.guildID, userID)
	return memberErr(c.do(ctx, http.MethodDelete, path, nil, reason, nil))
}

type auditLogPayload struct {
	Entries []struct {
		ID       string `json:"id"`
		UserID   string `json:"user_id"`
		TargetID string `json:"target_id"`
	} `json:"audit_log_entries"`
}

func (c *RESTClient) RecentRoleChangeAudit(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	q := url.Values{}
	q.Set("action_type", strconv.Itoa(auditActionMemberRoleUpdate))
	q.Set("limit", strconv.Itoa(limit))
	path := fmt.Sprintf("/guilds/%s/audit-logs?%s", c.guildID, q.Encode())

	var payload auditLogPayload
	if err := c.do(ctx, http.MethodGet, path, nil, "", &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuditUnavailable, err)
	}

	entries := make([]domain.AuditEntry, 0, len(payload.Entries))
	for _, e := range payload.Entries {
		canManage, isAdmin := c.actorPermissions(ctx, domain.UserID(e.UserID))
		entries = append(entries, domain.AuditEntry{
			TargetUser:          domain.UserID(e.TargetID),
			Actor:               domain.UserID(e.UserID),
			Timestamp:           snowflakeTime(e.ID),
			ActorCanManageRoles: canManage,
			ActorIsAdmin:        isAdmin,
		})
	}
	return entries, nil
}

func (c *RESTClient) SendMessage(ctx context.Context, channelID domain.ChannelID, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/channels/%s/messages", channelID)
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), "", nil)
}

func (c *RESTClient) StaffLog(ctx context.Context, title, body string) {
	if c.staffLogChannel == "" {
		return
	}
	content := fmt.Sprintf("**%s**\n%s", title, body)
	if err := c.SendMessage(ctx, c.staffLogChannel, content); err != nil {
		c.logger.Warnw("staff log delivery failed", "title", title, "error", err)
	}
}

// actorPermissions resolves whether the actor can manage roles, from the
// actor's roles and the cached guild role permission table. Unresolvable
// actors get no capability, which means no bypass.
func (c *RESTClient) actorPermissions(ctx context.Context, actor domain.UserID) (canManage, isAdmin bool) {
	perms, err := c.rolePermissions(ctx)
	if err != nil {
		c.logger.Debugw("failed to resolve guild role permissions", "error", err)
		return false, false
	}
	member, err := c.GetMember(ctx, actor)
	if err != nil {
		c.logger.Debugw("failed to resolve audit actor", "actor", actor, "error", err)
		return false, false
	}

	var combined int64
	for _, role := range member.Roles {
		combined |= perms[role]
	}
	return combined&permManageRoles != 0, combined&permAdministrator != 0
}

type rolePayload struct {
	ID          string `json:"id"`
	Permissions string `json:"permissions"`
}

func (c *RESTClient) rolePermissions(ctx context.Context) (map[domain.RoleID]int64, error) {
	if cached, ok := c.roleCache.Get(rolePermCacheKey); ok {
		return cached.(map[domain.RoleID]int64), nil
	}

	var payload []rolePayload
	path := fmt.Sprintf("/guilds/%s/roles", c.guildID)
	if err := c.do(ctx, http.MethodGet, path, nil, "", &payload); err != nil {
		return nil, err
	}

	perms := make(map[domain.RoleID]int64, len(payload))
	for _, role := range payload {
		bits, err := strconv.ParseInt(role.Permissions, 10, 64)
		if err != nil {
			continue
		}
		perms[domain.RoleID(role.ID)] = bits
	}
	c.roleCache.Set(rolePermCacheKey, perms)
	return perms, nil
}

func (c *RESTClient) do(ctx context.Context, method, path string, body io.Reader, reason string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if reason != "" {
		req.Header.Set("X-Audit-Log-Reason", reason)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransientService, err)
	}
	defer resp.Body.Close()

	if err := mapStatus(resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body)
		return err
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// memberErr narrows the generic not-found to "member left". Only
// member-scoped endpoints may draw that conclusion; a missing channel or
// guild resource stays ErrNotFound.
func memberErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrMemberGone
	}
	return err
}

func mapStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusForbidden:
		return domain.ErrPermissionDenied
	case status == http.StatusNotFound:
		return domain.ErrNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: platform returned %d", domain.ErrTransientService, status)
	default:
		return fmt.Errorf("platform returned unexpected status %d", status)
	}
}

// snowflakeTime extracts the creation time embedded in a snowflake ID.
func snowflakeTime(id string) time.Time {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return time.Time{}
	}
	ms := int64(n>>22) + snowflakeEpochMs
	return time.UnixMilli(ms)
}
