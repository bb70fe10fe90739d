package costing

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Kind enumerates the failure classes surfaced by the engine.
type Kind string

const (
	KindValidation               Kind = "validation_error"
	KindExclusivity              Kind = "exclusivity_violation"
	KindDuplicateEdge            Kind = "duplicate_edge"
	KindReferentialDeleteBlocked Kind = "referential_delete_blocked"
	KindNotFound                 Kind = "not_found"
	KindConcurrencyConflict      Kind = "concurrency_conflict"
	KindUpstreamUnavailable      Kind = "upstream_unavailable"
)

// Sentinels for errors.Is; they match any *Error of the same Kind.
var (
	ErrValidation               = &Error{Kind: KindValidation}
	ErrExclusivity              = &Error{Kind: KindExclusivity}
	ErrDuplicateEdge            = &Error{Kind: KindDuplicateEdge}
	ErrReferentialDeleteBlocked = &Error{Kind: KindReferentialDeleteBlocked}
	ErrNotFound                 = &Error{Kind: KindNotFound}
	ErrConcurrencyConflict      = &Error{Kind: KindConcurrencyConflict}
	ErrUpstreamUnavailable      = &Error{Kind: KindUpstreamUnavailable}
)

// Reference describes rows that still point at an entity being deleted.
type Reference struct {
	Entity string   `json:"entity"`
	Count  int64    `json:"count"`
	Names  []string `json:"names,omitempty"`
}

// Error is the single error type returned by the engine.
type Error struct {
	Kind       Kind
	Entity     string
	ID         uint
	Field      string
	Message    string
	References []Reference
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Entity != "" {
		b.WriteString(": ")
		b.WriteString(e.Entity)
		if e.ID != 0 {
			fmt.Fprintf(&b, " %d", e.ID)
		}
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " (%s)", e.Field)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Entity == "" && t.ID == 0 && t.Message == ""
}

// KindOf returns the Kind of err, or "" for errors the engine did not classify.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether err is transient: an optimistic-lock conflict or
// an unreachable store. Validation and structural errors never are.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConcurrencyConflict, KindUpstreamUnavailable:
		return true
	default:
		return false
	}
}

func validationError(entity, field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Entity: entity, Field: field, Message: fmt.Sprintf(format, args...)}
}

func notFound(entity string, id uint) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: id, Message: "does not exist"}
}

func conflict(entity string, id uint, version int) *Error {
	return &Error{
		Kind:    KindConcurrencyConflict,
		Entity:  entity,
		ID:      id,
		Message: fmt.Sprintf("version %d is no longer current", version),
	}
}

// classify maps a driver or gorm error onto the engine's kinds. Errors that
// are already classified pass through unchanged.
func classify(err error, entity string, id uint) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound(entity, id)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &Error{Kind: KindDuplicateEdge, Entity: entity, ID: id, Message: "already exists", Err: err}
	case isUnavailable(err):
		return &Error{Kind: KindUpstreamUnavailable, Entity: entity, ID: id, Message: "store unreachable", Err: err}
	}
	return err
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, gorm.ErrInvalidDB) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 08: connection exception, 57P: operator intervention, 40001: serialization failure.
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P") || pgErr.Code == "40001"
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "connection refused")
}
