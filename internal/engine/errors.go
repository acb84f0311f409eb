package engine

import (
	"errors"
	"fmt"

	"expertline/internal/engine/access"
	"expertline/internal/repo"
)

// Code classifies an engine failure. Codes are stable and surface verbatim in
// API error envelopes.
type Code string

const (
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeForbidden        Code = "FORBIDDEN"
	CodeNotFound         Code = "NOT_FOUND"
	CodeInvalidStatus    Code = "INVALID_STATUS"
	CodeAlreadyExists    Code = "ALREADY_EXISTS"
	CodeAlreadyFinalized Code = "ALREADY_FINALIZED"
	CodeSelfOffer        Code = "SELF_OFFER"
	CodeNoProfile        Code = "NO_PROFILE"
	CodeIncomplete       Code = "INCOMPLETE"
	CodeTransferRequired Code = "TRANSFER_REQUIRED"
	CodePaymentRequired  Code = "PAYMENT_REQUIRED"
	CodeAIError          Code = "AI_ERROR"
	CodeAuthFailed       Code = "AUTH_FAILED"
	CodeValidation       Code = "VALIDATION"
)

// Error is a classified engine failure.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errf builds a classified error with a formatted message.
func Errf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the classification of an error, mapping repo and access
// failures onto the taxonomy. Unclassified errors report an empty code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, repo.ErrNotFound) {
		return CodeNotFound
	}
	if errors.Is(err, access.ErrUnauthenticated) {
		return CodeUnauthorized
	}
	var forbidden access.ForbiddenError
	if errors.As(err, &forbidden) {
		return CodeForbidden
	}
	return ""
}

// classify converts access and repo errors into classified ones; already
// classified errors pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch code := CodeOf(err); code {
	case CodeNotFound:
		return Errf(CodeNotFound, "%s", err.Error())
	case CodeUnauthorized:
		return Errf(CodeUnauthorized, "%s", err.Error())
	case CodeForbidden:
		return Errf(CodeForbidden, "%s", err.Error())
	}
	return err
}
