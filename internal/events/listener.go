// Package events turns PostgreSQL notifications about ingredient cost writes
// into propagation calls, so writers that bypass the HTTP API are still seen.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"prepcost/internal/log"
)

const (
	DefaultChannel    = "ingredient_cost_changed"
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

// Handler is called once per notification with the changed ingredient id.
type Handler func(ctx context.Context, ingredientID uint) error

// Config configures a Listener.
type Config struct {
	URL            string
	Channel        string
	InstallTrigger bool
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
}

type conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Listener holds a dedicated connection LISTENing on one channel and
// reconnects with backoff when it drops.
type Listener struct {
	cfg       Config
	handle    Handler
	resync    func(ctx context.Context)
	connect   func(ctx context.Context, url string) (conn, error)
	connected bool
}

// NewListener builds a listener. Run starts it.
func NewListener(cfg Config, handle Handler) *Listener {
	if strings.TrimSpace(cfg.Channel) == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaultMinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	return &Listener{
		cfg:    cfg,
		handle: handle,
		connect: func(ctx context.Context, url string) (conn, error) {
			return pgx.Connect(ctx, url)
		},
	}
}

// OnReconnect registers fn to run after every reconnect, to cover
// notifications sent while the listener was down.
func (l *Listener) OnReconnect(fn func(ctx context.Context)) {
	l.resync = fn
}

// Run blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	if l.handle == nil {
		return errors.New("events: nil handler")
	}
	backoff := l.cfg.MinBackoff
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = l.cfg.MinBackoff
			continue
		}

		log.Warn(ctx, "notification listener disconnected", "channel", l.cfg.Channel, "error", err, "retry_in", backoff)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff *= 2
		if backoff > l.cfg.MaxBackoff {
			backoff = l.cfg.MaxBackoff
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	c, err := l.connect(ctx, l.cfg.URL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = c.Close(closeCtx)
	}()

	if l.cfg.InstallTrigger {
		if err := InstallTrigger(ctx, c, l.cfg.Channel); err != nil {
			return err
		}
	}
	if _, err := c.Exec(ctx, "LISTEN "+pgx.Identifier{l.cfg.Channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.cfg.Channel, err)
	}
	log.Info(ctx, "listening for ingredient cost changes", "channel", l.cfg.Channel)

	if l.connected && l.resync != nil {
		l.resync(ctx)
	}
	l.connected = true

	for {
		n, err := c.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.dispatch(ctx, n)
	}
}

func (l *Listener) dispatch(ctx context.Context, n *pgconn.Notification) {
	ingredientID, err := ParsePayload(n.Payload)
	if err != nil {
		log.Warn(ctx, "ignoring malformed notification", "channel", n.Channel, "payload", n.Payload, "error", err)
		return
	}
	log.Debug(ctx, "ingredient cost notification", "ingredient_id", ingredientID, "pid", n.PID)
	if err := l.handle(ctx, ingredientID); err != nil {
		log.Error(ctx, "propagation from notification failed", "ingredient_id", ingredientID, "error", err)
	}
}

// ParsePayload accepts {"ingredient_id": N} or a bare id.
func ParsePayload(payload string) (uint, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return 0, errors.New("empty payload")
	}

	var id uint64
	if strings.HasPrefix(payload, "{") {
		var body struct {
			IngredientID uint64 `json:"ingredient_id"`
		}
		if err := json.Unmarshal([]byte(payload), &body); err != nil {
			return 0, fmt.Errorf("decode payload: %w", err)
		}
		id = body.IngredientID
	} else {
		parsed, err := strconv.ParseUint(payload, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse ingredient id: %w", err)
		}
		id = parsed
	}
	if id == 0 {
		return 0, errors.New("ingredient id must be positive")
	}
	return uint(id), nil
}
