package cypher

import (
	"errors"
	"fmt"
	"strings"
)

// Errors reported by the cypher package.
//
// Decoding errors (ErrTypeMismatch, ErrUnexpectedNull, ErrColumnNotFound)
// are local and non-fatal: the caller can retry the conversion with a
// different type or inspect the raw Value. Transport and server errors
// surface immediately from the operation that triggered them; this layer
// never retries.
var (
	// ErrTypeMismatch is returned when a cell's runtime variant does not
	// match the requested static type, or a numeric narrowing would
	// overflow.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrUnexpectedNull is returned when a null cell is read into a
	// non-optional target type.
	ErrUnexpectedNull = errors.New("unexpected null")

	// ErrColumnNotFound is returned when a row lookup names a column the
	// server did not return. Lookup is case-sensitive.
	ErrColumnNotFound = errors.New("column not found")

	// ErrInvalidTransactionState is returned when an operation is invoked
	// on a transaction in a state that does not permit it. This is a
	// programmer error, not a transient condition.
	ErrInvalidTransactionState = errors.New("invalid transaction state")

	// ErrTransactionExpired is returned when the server reports that the
	// transaction no longer exists. The caller must start a new one.
	ErrTransactionExpired = errors.New("transaction expired")

	// ErrNoResults is returned when the server answered a query call with
	// an empty results list.
	ErrNoResults = errors.New("no results returned from server")
)

// Neo4jError is a single entry of the response errors list, in the
// server's wire format.
type Neo4jError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e Neo4jError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ServerError is returned when a response carries a non-empty errors
// list. The batch is treated as failed as a whole: no partial ResultSets
// are returned alongside it.
type ServerError struct {
	Errors []Neo4jError
}

func (e *ServerError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "server error"
	case 1:
		return "server error: " + e.Errors[0].Error()
	default:
		msgs := make([]string, len(e.Errors))
		for i, ne := range e.Errors {
			msgs[i] = ne.Error()
		}
		return fmt.Sprintf("server errors (%d): %s", len(e.Errors), strings.Join(msgs, "; "))
	}
}

// hasCodePrefix reports whether any server error code starts with the
// given prefix, e.g. "Neo.ClientError.Transaction.".
func (e *ServerError) hasCodePrefix(prefix string) bool {
	for _, ne := range e.Errors {
		if strings.HasPrefix(ne.Code, prefix) {
			return true
		}
	}
	return false
}

// TransportError wraps a network, timeout or malformed-body failure from
// the underlying HTTP round trip. It is never retried by this layer;
// retries, if desired, belong to the transport collaborator.
type TransportError struct {
	Op       string // "post" or "delete"
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// stateError builds an ErrInvalidTransactionState with the offending
// operation and the state it was invoked in.
func stateError(op string, state TxState) error {
	return fmt.Errorf("%w: %s not allowed in state %s", ErrInvalidTransactionState, op, state)
}
