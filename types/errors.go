package types

import (
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("not found")

// NotFoundError wraps ErrNotFound with the entity that was looked up.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ValidationError is a recoverable input error; the flow re-prompts in the same state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type ConflictKind string

const (
	ConflictBotToken ConflictKind = "bot_token"
	ConflictHasShop  ConflictKind = "has_shop"
)

// ConflictError reports a uniqueness or ownership conflict.
type ConflictError struct {
	Kind ConflictKind
}

func (e *ConflictError) Error() string {
	switch e.Kind {
	case ConflictBotToken:
		return "bot token already used by another shop"
	case ConflictHasShop:
		return "user already owns a shop"
	default:
		return "conflict: " + string(e.Kind)
	}
}

func IsConflict(err error, kind ConflictKind) bool {
	var ce *ConflictError
	return errors.As(err, &ce) && ce.Kind == kind
}

// AlreadyDecidedError is returned when a payment decision targets a resolved payment.
type AlreadyDecidedError struct {
	PaymentID string
	Status    PaymentStatus
	By        int64
	At        time.Time
}

func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("payment %s already %s by %d at %s", e.PaymentID, e.Status, e.By, e.At.UTC().Format(time.RFC3339))
}
