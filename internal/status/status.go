package status

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindAuthorization
	KindValidation
	KindNotFound
	KindConflict
	KindExternalService
	KindIntegrity
)

// Error is a classified error. Code overrides the default status of the kind.
type Error struct {
	Kind    Kind
	Code    int
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, code int, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrUnauthenticated = newError(KindAuthentication, http.StatusUnauthorized, "auth: missing or expired session")
	ErrForbidden       = newError(KindAuthorization, http.StatusForbidden, "auth: operator role required")

	ErrInvalidRequest = newError(KindValidation, http.StatusBadRequest, "request: invalid input")

	ErrEventNotFound   = newError(KindNotFound, http.StatusNotFound, "event: event not found")
	ErrTicketNotFound  = newError(KindNotFound, http.StatusNotFound, "ticket: ticket not found")
	ErrIntentNotFound  = newError(KindNotFound, http.StatusNotFound, "payment: no intent for reference")
	ErrWalletNotFound  = newError(KindNotFound, http.StatusNotFound, "wallet: wallet not found")
	ErrUnknownTierPlan = newError(KindValidation, http.StatusBadRequest, "membership: unknown plan")

	ErrEventNotActive       = newError(KindConflict, http.StatusConflict, "event: event not active")
	ErrEventCancelled       = newError(KindConflict, http.StatusConflict, "event: event was cancelled")
	ErrSoldOut              = newError(KindConflict, http.StatusConflict, "event: sold out")
	ErrDuplicateTicket      = newError(KindConflict, http.StatusConflict, "ticket: user already holds an unused ticket for this event")
	ErrTicketNotUnused      = newError(KindConflict, http.StatusConflict, "ticket: ticket is not unused")
	ErrInsufficientBalance  = newError(KindConflict, http.StatusBadRequest, "wallet: insufficient balance")
	ErrAlreadyApplied       = newError(KindConflict, http.StatusConflict, "wallet: movement already applied")
	ErrPurchaseInProgress   = newError(KindConflict, http.StatusConflict, "payment: purchase already in progress")
	ErrIntentNotRetryable   = newError(KindConflict, http.StatusConflict, "payment: only failed intents can be retried")
	ErrIntentContextInvalid = newError(KindConflict, http.StatusConflict, "payment: intent does not belong to this purchase")

	ErrProviderTimeout     = newError(KindExternalService, http.StatusGatewayTimeout, "provider: request timed out")
	ErrProviderUnavailable = newError(KindExternalService, http.StatusBadGateway, "provider: request failed")
	ErrFailedPayment       = newError(KindExternalService, http.StatusBadRequest, "payment: payment failed")

	ErrAmountMismatch = newError(KindIntegrity, http.StatusBadRequest, "payment: amount mismatch")
	ErrBadSignature   = newError(KindIntegrity, http.StatusUnauthorized, "webhook: signature mismatch")

	ErrFulfillmentFailed = newError(KindInternal, http.StatusInternalServerError, "payment: charged but not fulfilled")
)

// HTTPCode maps any error to a response status. Unclassified errors are 500.
func HTTPCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var se *Error
	if errors.As(err, &se) {
		if se.Code != 0 {
			return se.Code
		}
		return kindCode(se.Kind)
	}
	return http.StatusInternalServerError
}

// Message returns the classified message of err, or a generic one.
func Message(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return "internal error"
}

// KindOf returns the kind of a classified error, KindInternal otherwise.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

func kindCode(k Kind) int {
	switch k {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation, KindIntegrity:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindExternalService:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
