package entity

import (
	"errors"
	"fmt"
)

// ErrorKind groups errors by how the caller has to react to them.
type ErrorKind string

const (
	KindValidation        ErrorKind = "VALIDATION_ERROR"
	KindInvalidState      ErrorKind = "INVALID_STATE"
	KindContentViolation  ErrorKind = "CONTENT_VIOLATION"
	KindAccountRestricted ErrorKind = "ACCOUNT_RESTRICTED"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindInternal          ErrorKind = "INTERNAL_ERROR"
)

// Error is a domain error with a stable machine readable code.
// Two errors match with errors.Is when their codes are equal.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func NewError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy with the same kind and code and a more specific message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Validation builds an ad hoc validation error.
func Validation(format string, args ...interface{}) *Error {
	return ErrInvalidInput.WithMessage(format, args...)
}

// KindOf classifies any error. Errors that are not domain errors are internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the domain code of err or INTERNAL_ERROR.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return string(KindInternal)
}

var (
	// General errors
	ErrInvalidInput = NewError(KindValidation, "VALIDATION_ERROR", "invalid input")

	// Booking errors
	ErrBookingNotFound      = NewError(KindNotFound, "BOOKING_NOT_FOUND", "booking not found")
	ErrInvalidTransition    = NewError(KindInvalidState, "INVALID_TRANSITION", "booking status does not allow this operation")
	ErrResponseWindowClosed = NewError(KindInvalidState, "RESPONSE_WINDOW_CLOSED", "response deadline has passed")
	ErrProviderRestricted   = NewError(KindAccountRestricted, "PROVIDER_RESTRICTED", "provider account is restricted")
	ErrDuplicateBooking     = NewError(KindInvalidState, "DUPLICATE_BOOKING", "an active booking with this provider already exists")

	// Commission errors
	ErrCommissionNotFound = NewError(KindNotFound, "COMMISSION_NOT_FOUND", "commission record not found")
	ErrCommissionSettled  = NewError(KindInvalidState, "COMMISSION_ALREADY_PAID", "commission is already paid")

	// Chat errors
	ErrRoomNotFound      = NewError(KindNotFound, "ROOM_NOT_FOUND", "chat room not found")
	ErrNotRoomMember     = NewError(KindValidation, "NOT_ROOM_MEMBER", "sender is not a participant of this room")
	ErrContentViolation  = NewError(KindContentViolation, "CONTENT_VIOLATION", "sharing contact information is prohibited")
	ErrAccountRestricted = NewError(KindAccountRestricted, "ACCOUNT_RESTRICTED", "account has been restricted due to policy violations")

	// Review errors
	ErrReviewNotFound       = NewError(KindNotFound, "REVIEW_NOT_FOUND", "review not found")
	ErrAlreadyReviewed      = NewError(KindInvalidState, "ALREADY_REVIEWED", "booking already reviewed")
	ErrBookingNotCompleted  = NewError(KindInvalidState, "BOOKING_NOT_COMPLETED", "booking is not completed yet")
	ErrReviewLinkNotFound   = NewError(KindNotFound, "REVIEW_LINK_NOT_FOUND", "review link not found")
	ErrReviewLinkExpired    = NewError(KindInvalidState, "REVIEW_LINK_EXPIRED", "review link has expired")
	ErrDiscountAlreadyGiven = NewError(KindInvalidState, "DISCOUNT_ALREADY_ISSUED", "discount already issued for this review")

	// Discount errors
	ErrDiscountNotFound    = NewError(KindNotFound, "CODE_NOT_FOUND", "discount code not found")
	ErrDiscountExpired     = NewError(KindInvalidState, "CODE_EXPIRED", "discount code has expired")
	ErrDiscountUsed        = NewError(KindInvalidState, "CODE_ALREADY_USED", "discount code already used")
	ErrDiscountWrongOwner  = NewError(KindInvalidState, "CODE_WRONG_PROVIDER", "discount code is not valid for this provider")
	ErrDiscountNotAllowed  = NewError(KindInvalidState, "DISCOUNT_NOT_APPLICABLE", "discount cannot be applied to this booking")
	ErrBookingDiscountUsed = NewError(KindInvalidState, "BOOKING_ALREADY_DISCOUNTED", "booking already has a discount")
)
