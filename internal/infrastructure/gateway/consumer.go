package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"guildwarden/internal/core/domain"
	"guildwarden/internal/core/ports"
	"guildwarden/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	eventMemberJoin   = "member_join"
	eventMemberUpdate = "member_update"
	eventMemberLeave  = "member_leave"

	readLimit    = 1 << 20
	pongWait     = 90 * time.Second
	writeTimeout = 10 * time.Second
)

// Consumer reads the platform's member event stream over a websocket and
// dispatches each event to the verification service. The connection is
// re-established with backoff whenever it drops; events arriving while
// disconnected are lost, which the per-tick supervisor re-observation
// tolerates.
type Consumer struct {
	url          string
	token        string
	verification ports.VerificationService
	retryCfg     retry.Config
	logger       *zap.SugaredLogger
}

func NewConsumer(url, token string, verification ports.VerificationService, logger *zap.SugaredLogger) *Consumer {
	return &Consumer{
		url:          url,
		token:        token,
		verification: verification,
		retryCfg: retry.Config{
			MaxAttempts:  8,
			InitialDelay: time.Second,
			MaxDelay:     2 * time.Minute,
			Multiplier:   2.0,
			Jitter:       true,
		},
		logger: logger,
	}
}

type envelope struct {
	Event  string          `json:"event"`
	Member json.RawMessage `json:"member"`
}

type memberEvent struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Roles    []string  `json:"roles"`
	JoinedAt time.Time `json:"joined_at"`
}

// Run consumes the stream until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	for ctx.Err() == nil {
		conn, err := retry.RetryWithResult(ctx, c.retryCfg, func() (*websocket.Conn, error) {
			return c.dial(ctx)
		})
		if err != nil {
			c.logger.Errorw("gateway connection failed after retries", "error", err)
			continue
		}

		c.logger.Infow("gateway connected", "url", c.url)
		c.readLoop(ctx, conn)
		conn.Close()

		if ctx.Err() == nil {
			c.logger.Warnw("gateway connection lost, reconnecting")
		}
	}
}

func (c *Consumer) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("gateway handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("gateway dial failed: %w", err)
	}

	conn.SetReadLimit(readLimit)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	auth := map[string]string{"op": "identify", "token": c.token}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		return nil, fmt.Errorf("gateway identify failed: %w", err)
	}
	return conn, nil
}

func (c *Consumer) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock ReadMessage on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.dispatch(ctx, data)
	}
}

func (c *Consumer) dispatch(ctx context.Context, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warnw("undecodable gateway frame", "error", err)
		return
	}

	var ev memberEvent
	if len(env.Member) > 0 {
		if err := json.Unmarshal(env.Member, &ev); err != nil {
			c.logger.Warnw("undecodable member payload", "event", env.Event, "error", err)
			return
		}
	}
	if ev.ID == "" {
		return
	}

	switch env.Event {
	case eventMemberJoin:
		if err := c.verification.HandleJoin(ctx, toMember(&ev)); err != nil {
			c.logger.Errorw("join handling failed", "user_id", ev.ID, "error", err)
		}
	case eventMemberUpdate:
		c.verification.HandleRoleChange(ctx, toMember(&ev))
	case eventMemberLeave:
		c.verification.HandleLeave(ctx, domain.UserID(ev.ID))
	default:
		// Events this service does not act on.
	}
}

func toMember(ev *memberEvent) *domain.Member {
	roles := make([]domain.RoleID, 0, len(ev.Roles))
	for _, r := range ev.Roles {
		roles = append(roles, domain.RoleID(r))
	}
	return &domain.Member{
		ID:       domain.UserID(ev.ID),
		Username: ev.Username,
		Roles:    roles,
		JoinedAt: ev.JoinedAt,
	}
}
