// Package apperrors defines the gateway error taxonomy on top of go-errors envelopes.
//
// Every failure a command reports travels as a *goerrors.Error whose TextCode names
// its kind. The wire envelope only carries the message; the kind is used for logs
// and metrics.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to gateway errors.
const (
	CodeNotFound        = "FUNCTION_NOT_FOUND"
	CodeValidation      = "VALIDATION_ERROR"
	CodeUnauthorized    = "AUTHORIZATION_ERROR"
	CodeVerification    = "VERIFICATION_ERROR"
	CodeUpstream        = "UPSTREAM_ERROR"
	CodeUpstreamTimeout = "UPSTREAM_TIMEOUT"
	CodeInternal        = "INTERNAL_ERROR"
)

// Kind is the coarse error class reported in logs and metrics.
type Kind string

const (
	KindNone          Kind = "ok"
	KindNotFound      Kind = "not_found"
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindVerification  Kind = "verification"
	KindUpstream      Kind = "upstream"
	KindTimeout       Kind = "timeout"
	KindInternal      Kind = "internal"
)

const defaultInternalMessage = "Internal error"

func newError(message string, category goerrors.Category, code int, textCode string) *goerrors.Error {
	return goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
}

func wrapError(source error, message string, category goerrors.Category, code int, textCode string) *goerrors.Error {
	if source == nil {
		return newError(message, category, code, textCode)
	}
	return goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
}

// NotFound reports an unregistered command name.
func NotFound(name string) *goerrors.Error {
	return newError(fmt.Sprintf("Function '%s' not found", name), goerrors.CategoryNotFound, http.StatusNotFound, CodeNotFound)
}

// Validation reports missing or malformed command input.
func Validation(message string) *goerrors.Error {
	return newError(message, goerrors.CategoryValidation, http.StatusBadRequest, CodeValidation)
}

// Unauthorized reports a rejected credential (admin token, OAuth token).
func Unauthorized(message string) *goerrors.Error {
	return newError(message, goerrors.CategoryAuthz, http.StatusForbidden, CodeUnauthorized)
}

// Verification reports an inbound notification whose signature could not be verified.
func Verification(message string, source error) *goerrors.Error {
	return wrapError(source, message, goerrors.CategoryAuth, http.StatusUnauthorized, CodeVerification)
}

// Upstream reports a failure reaching or reading from an external provider.
func Upstream(message string, source error) *goerrors.Error {
	return wrapError(source, message, goerrors.CategoryExternal, http.StatusBadGateway, CodeUpstream)
}

// UpstreamTimeout reports an external call that exceeded its deadline.
func UpstreamTimeout(message string, source error) *goerrors.Error {
	return wrapError(source, message, goerrors.CategoryExternal, http.StatusGatewayTimeout, CodeUpstreamTimeout)
}

// Internal reports an unexpected fault.
func Internal(message string, source error) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = defaultInternalMessage
	}
	return wrapError(source, message, goerrors.CategoryInternal, http.StatusInternalServerError, CodeInternal)
}

// From normalizes any error into a gateway error. Errors that already carry a
// go-errors envelope are returned as-is. A nil *goerrors.Error held in a non-nil error
// is still a failure and becomes Internal.
func From(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		if rich == nil {
			return Internal(defaultInternalMessage, nil)
		}
		return rich
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return UpstreamTimeout(err.Error(), err)
	}
	return Internal(err.Error(), err)
}

// Message returns the client-facing message for err.
func Message(err error) string {
	rich := From(err)
	if rich == nil {
		return ""
	}
	if msg := strings.TrimSpace(rich.Message); msg != "" {
		return msg
	}
	return defaultInternalMessage
}

// KindOf classifies err. A nil error is KindNone.
func KindOf(err error) Kind {
	rich := From(err)
	if rich == nil {
		return KindNone
	}
	switch rich.TextCode {
	case CodeNotFound:
		return KindNotFound
	case CodeValidation:
		return KindValidation
	case CodeUnauthorized:
		return KindAuthorization
	case CodeVerification:
		return KindVerification
	case CodeUpstream:
		return KindUpstream
	case CodeUpstreamTimeout:
		return KindTimeout
	case CodeInternal:
		return KindInternal
	}
	switch rich.Category {
	case goerrors.CategoryNotFound:
		return KindNotFound
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return KindValidation
	case goerrors.CategoryAuthz:
		return KindAuthorization
	case goerrors.CategoryAuth:
		return KindVerification
	case goerrors.CategoryExternal:
		return KindUpstream
	default:
		return KindInternal
	}
}
