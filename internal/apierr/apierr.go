// Package apierr defines the error taxonomy shared by the gas pool, sponsor
// service and coin manager, and maps each kind to the HTTP status the API
// surface should report (spec §7).
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind discriminates the taxonomy entries from spec §7.
type Kind int

const (
	// KindDecode is a base64/BCS decoding failure. Caller error.
	KindDecode Kind = iota
	// KindUnsupportedTx is an admission-check failure.
	KindUnsupportedTx
	// KindPoolEmpty means the broker had no messages to dequeue.
	KindPoolEmpty
	// KindEquivocation means the lease registry detected a duplicate lease.
	KindEquivocation
	// KindChain is an RPC failure or on-chain execution failure.
	KindChain
	// KindInfra is a broker or KV store transport failure.
	KindInfra
	// KindConfig is a fatal startup/config error.
	KindConfig
)

// Error wraps an underlying cause with a taxonomy Kind so the HTTP layer can
// pick a status code without string-matching error messages.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a taxonomy error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Decode(op string, err error) *Error           { return New(KindDecode, op, err) }
func Unsupported(op string, err error) *Error      { return New(KindUnsupportedTx, op, err) }
func PoolEmpty(op string) *Error                   { return New(KindPoolEmpty, op, errors.New("gas pool empty")) }
func Equivocation(op string, err error) *Error      { return New(KindEquivocation, op, err) }
func Chain(op string, err error) *Error            { return New(KindChain, op, err) }
func Infra(op string, err error) *Error            { return New(KindInfra, op, err) }
func Config(op string, err error) *Error           { return New(KindConfig, op, err) }

// HTTPStatus resolves the status code for err per spec §7. Unknown/untyped
// errors default to 500.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindDecode:
		return http.StatusBadRequest
	case KindUnsupportedTx:
		return http.StatusUnprocessableEntity
	case KindPoolEmpty:
		return http.StatusServiceUnavailable
	case KindEquivocation:
		return http.StatusInternalServerError
	case KindChain:
		return http.StatusBadGateway
	case KindInfra:
		return http.StatusServiceUnavailable
	case KindConfig:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// IsPoolEmpty reports whether err (or a wrapped cause) is a PoolEmpty error.
func IsPoolEmpty(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindPoolEmpty
}

// IsEquivocation reports whether err (or a wrapped cause) is an Equivocation error.
func IsEquivocation(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindEquivocation
}

// IsUnsupported reports whether err (or a wrapped cause) is an admission
// rejection (KindUnsupportedTx).
func IsUnsupported(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindUnsupportedTx
}
