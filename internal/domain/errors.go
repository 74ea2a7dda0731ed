package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed, so the caller can fix them in one pass.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation error"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation error: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// OrNil returns nil when nothing was added, so it can be returned directly.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

type InvalidMileageError struct {
	Mileage int32
	Minimum int32
}

func (e *InvalidMileageError) Error() string {
	return fmt.Sprintf("invalid mileage %d: must be at least %d", e.Mileage, e.Minimum)
}

type InvalidFuelLevelError struct {
	Level string
}

func (e *InvalidFuelLevelError) Error() string {
	return fmt.Sprintf("invalid fuel level %q: must be one of empty, quarter, half, three_quarters, full", e.Level)
}

type InvalidStateError struct {
	Operation string
	Status    BookingStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s a booking in status %s", e.Operation, e.Status)
}

type AlreadyCheckedInError struct {
	BookingID int32
	Status    BookingStatus
}

func (e *AlreadyCheckedInError) Error() string {
	return fmt.Sprintf("booking %d is already checked in (status %s)", e.BookingID, e.Status)
}

type AlreadyCheckedOutError struct {
	BookingID int32
	Status    BookingStatus
}

func (e *AlreadyCheckedOutError) Error() string {
	return fmt.Sprintf("booking %d is already checked out (status %s)", e.BookingID, e.Status)
}

type NoCheckInRecordError struct {
	BookingID int32
	Status    BookingStatus
}

func (e *NoCheckInRecordError) Error() string {
	return fmt.Sprintf("booking %d has no check-in record (status %s)", e.BookingID, e.Status)
}

type StaleDocumentError struct {
	DocType   DocumentType
	ExpiresOn time.Time
}

func (e *StaleDocumentError) Error() string {
	return fmt.Sprintf("%s expired on %s", e.DocType, e.ExpiresOn.Format("2006-01-02"))
}

type OutOfWindowError struct {
	Now    time.Time
	Opens  time.Time
	Closes time.Time
	Status BookingStatus
}

func (e *OutOfWindowError) Error() string {
	if e.Now.Before(e.Opens) {
		return fmt.Sprintf("check-in opens at %s", e.Opens.Format(time.RFC3339))
	}
	return fmt.Sprintf("check-in closed at %s", e.Closes.Format(time.RFC3339))
}

type ConcurrentModificationError struct {
	Resource string
	ID       int32
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("%s %d was modified concurrently; re-read and retry", e.Resource, e.ID)
}

type PaymentMismatchError struct {
	ExpectedCents int32
	ChargedCents  int32
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("charged %d cents but booking total is %d cents", e.ChargedCents, e.ExpectedCents)
}

type PaymentDeclinedError struct {
	Reason string
}

func (e *PaymentDeclinedError) Error() string {
	return "payment declined: " + e.Reason
}

func IsValidation(err error) bool {
	var (
		v  *ValidationError
		m  *InvalidMileageError
		fl *InvalidFuelLevelError
		pm *PaymentMismatchError
	)
	return errors.As(err, &v) || errors.As(err, &m) || errors.As(err, &fl) || errors.As(err, &pm)
}

func IsState(err error) bool {
	var (
		s   *InvalidStateError
		ci  *AlreadyCheckedInError
		co  *AlreadyCheckedOutError
		nci *NoCheckInRecordError
		sd  *StaleDocumentError
		ow  *OutOfWindowError
	)
	return errors.As(err, &s) || errors.As(err, &ci) || errors.As(err, &co) ||
		errors.As(err, &nci) || errors.As(err, &sd) || errors.As(err, &ow)
}

func IsConcurrency(err error) bool {
	var c *ConcurrentModificationError
	return errors.As(err, &c)
}

func IsPaymentDeclined(err error) bool {
	var d *PaymentDeclinedError
	return errors.As(err, &d)
}
