package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrMatchNotFound   = errors.New("match not found")
	ErrPetNotFound     = errors.New("pet not found")
	ErrProfileNotFound = errors.New("profile not found")

	ErrCannotMatchSelf      = errors.New("a pet cannot match with itself")
	ErrCannotMatchOwnPet    = errors.New("cannot match with your own pet")
	ErrMatchRejected        = errors.New("match was declined")
	ErrMatchAlreadyAccepted = errors.New("match already accepted")
	ErrMatchPairExists      = errors.New("a match already exists for this pair")
)

// IsNotFound reports whether err means a requested record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMatchNotFound) ||
		errors.Is(err, ErrPetNotFound) ||
		errors.Is(err, ErrProfileNotFound)
}

// IsConflict reports whether err is a domain rule violation on an existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCannotMatchSelf) ||
		errors.Is(err, ErrCannotMatchOwnPet) ||
		errors.Is(err, ErrMatchRejected) ||
		errors.Is(err, ErrMatchAlreadyAccepted) ||
		errors.Is(err, ErrMatchPairExists)
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned before any store call is made.
type ValidationError struct {
	Fields []FieldError
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// GatewayError wraps a failure of the persistence store.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func (e *GatewayError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Retryable reports whether the caller may reasonably try again. Nothing in
// this package retries on its own.
func (e *GatewayError) Retryable() bool {
	if e.Timeout() {
		return true
	}
	var netErr net.Error
	if errors.As(e.Err, &netErr) {
		return true
	}
	var connErr *pgconn.ConnectError
	return errors.As(e.Err, &connErr)
}

// AsGatewayError returns the GatewayError in err's chain, if any.
func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

type FanoutFailure struct {
	MatchID uuid.UUID
	Err     error
}

// PartialFanoutError lists the matches a notice could not be delivered to.
type PartialFanoutError struct {
	Failures []FanoutFailure
}

func (e *PartialFanoutError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.MatchID.String())
	}
	return fmt.Sprintf("notice delivery failed for %d match(es): %s", len(e.Failures), strings.Join(ids, ", "))
}

func (e *PartialFanoutError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

func (e *PartialFanoutError) FailedMatchIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.MatchID)
	}
	return ids
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
