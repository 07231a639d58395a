// Package errs provides types and support related to web v1 functionality.
package errs

import (
	"errors"
	"net/http"

	"github.com/ardanlabs/chainengine/foundation/blockchain/consensus"
	"github.com/ardanlabs/chainengine/foundation/blockchain/database"
	"github.com/ardanlabs/chainengine/foundation/blockchain/mempool"
	"github.com/ardanlabs/chainengine/foundation/blockchain/state"
)

// Response is the form used for API responses from failures in the API.
type Response struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted is used to pass an error during the request through the
// application with web specific context.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted wraps a provided error with an HTTP status code. This
// function should be used when handlers encounter expected errors.
func NewTrusted(err error, status int) error {
	return &Trusted{err, status}
}

// Error implements the error interface. It uses the default message of the
// wrapped error. This is what will be shown in the services' logs.
func (re *Trusted) Error() string {
	return re.Err.Error()
}

// Unwrap returns the wrapped error.
func (re *Trusted) Unwrap() error {
	return re.Err
}

// IsTrusted checks if an error of type Trusted exists.
func IsTrusted(err error) bool {
	var re *Trusted
	return errors.As(err, &re)
}

// GetTrusted returns a copy of the Trusted pointer.
func GetTrusted(err error) *Trusted {
	var re *Trusted
	if !errors.As(err, &re) {
		return nil
	}
	return re
}

// =============================================================================

// statuses maps the expected engine errors to the status code returned
// to the caller. Order matters, the first match wins.
var statuses = []struct {
	err    error
	status int
}{
	{database.ErrInvalidTransaction, http.StatusBadRequest},
	{mempool.ErrDuplicateTransaction, http.StatusConflict},
	{state.ErrEmptyMempool, http.StatusConflict},
	{state.ErrStaleTip, http.StatusConflict},
	{state.ErrNotFound, http.StatusNotFound},
	{consensus.ErrNoEligibleWinner, http.StatusNotAcceptable},
	{consensus.ErrNotAuthority, http.StatusNotAcceptable},
	{database.ErrProofRejected, http.StatusNotAcceptable},
	{database.ErrChainLinkage, http.StatusConflict},
	{database.ErrIndex, http.StatusConflict},
}

// FromEngine turns an expected engine error into a trusted error. Anything
// else is returned untouched and reported as an internal error.
func FromEngine(err error) error {
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return NewTrusted(err, s.status)
		}
	}
	return err
}
