// Package dispatcher routes named invocations to registered commands and wraps every
// outcome in the uniform result/error envelope.
package dispatcher

import (
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/morezero/marketplace-gateway/pkg/apperrors"
)

// Envelope is the wire shape of every invocation outcome. Exactly one field is non-nil.
type Envelope struct {
	Result *string `json:"result"`
	Error  *string `json:"error"`
}

// Success builds an envelope carrying result.
func Success(result string) Envelope {
	return Envelope{Result: &result}
}

// Failure builds an envelope carrying message.
func Failure(message string) Envelope {
	return Envelope{Error: &message}
}

// Outcome is the full record of one dispatch, before it is reduced to an Envelope.
type Outcome struct {
	Name     string
	Result   string
	Err      *goerrors.Error
	Duration time.Duration
}

// Ok reports whether the command succeeded.
func (o Outcome) Ok() bool {
	return o.Err == nil
}

// Kind returns the error kind, or apperrors.KindNone on success.
func (o Outcome) Kind() apperrors.Kind {
	if o.Err == nil {
		return apperrors.KindNone
	}
	return apperrors.KindOf(o.Err)
}

// Envelope reduces the outcome to its wire shape.
func (o Outcome) Envelope() Envelope {
	if o.Err != nil {
		return Failure(apperrors.Message(o.Err))
	}
	return Success(o.Result)
}
