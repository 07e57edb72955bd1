package remote

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed submission attempt.
type ErrorKind string

const (
	// KindTransport covers timeouts and connection drops: the backend
	// outcome is unknown and the attempt is always safe to retry on the
	// same idempotency key.
	KindTransport ErrorKind = "transport"
	// KindRejected is a definitive business refusal with a displayable code.
	KindRejected ErrorKind = "rejected"
	// KindPayment is a decline or payment-processor error; surfaced to the
	// UI on a dedicated channel so staff can switch tender.
	KindPayment ErrorKind = "payment"
)

// SubmitError carries the classification of a failed submission attempt.
type SubmitError struct {
	Kind      ErrorKind
	Code      string
	Message   string
	Permanent bool
}

func (e *SubmitError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// AsSubmitError unwraps err into a *SubmitError if it is one.
func AsSubmitError(err error) (*SubmitError, bool) {
	var se *SubmitError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
