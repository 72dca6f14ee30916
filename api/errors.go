package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/zdao/zdao-node/log"
	"github.com/zdao/zdao-node/types"
	"github.com/zdao/zdao-node/voting"
)

// Error satisfies the error interface. Error codes in the 40001-49999 range
// are the client's fault and return HTTP 4xx; codes 50001-59999 are the
// server's fault and return 5xx. Never change an existing code, only append.
type Error struct {
	Err        error
	Code       int
	HTTPstatus int
}

// Error returns the human-readable description of the error.
func (e Error) Error() string {
	return e.Err.Error()
}

// WithErr returns a copy of the Error with the underlying cause appended to
// the message.
func (e Error) WithErr(err error) Error {
	e.Err = fmt.Errorf("%v: %v", e.Err, err)
	return e
}

// Write replies to the request with the error's HTTP status and a JSON body
// carrying the code and message.
func (e Error) Write(w http.ResponseWriter) {
	body, err := json.Marshal(map[string]any{
		"error": e.Err.Error(),
		"code":  e.Code,
	})
	if err != nil {
		log.Warnw("failed to marshal error response", "error", err.Error())
		http.Error(w, e.Err.Error(), e.HTTPstatus)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPstatus)
	if _, err := w.Write(body); err != nil {
		log.Warnw("failed to write error response", "error", err.Error())
	}
}

var (
	ErrResourceNotFound     = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody        = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedProposalID  = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed proposal ID")}
	ErrInvalidVoteChoice    = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid vote choice")}
	ErrProposalNotFound     = Error{Code: 40005, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("proposal not found")}
	ErrAlreadyVoted         = Error{Code: 40006, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("already voted")}
	ErrVotingClosed         = Error{Code: 40007, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("voting is closed")}
	ErrRevealInProgress     = Error{Code: 40008, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("reveal already in progress")}
	ErrNotReady             = Error{Code: 40009, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("engine not ready")}
	ErrWrongNetwork         = Error{Code: 40010, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("wrong network")}
	ErrPermissionDenied     = Error{Code: 40011, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("permission denied")}
	ErrGenericInternalError = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrMarshalingJSONFailed = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling JSON failed")}
	ErrRelayerUnavailable   = Error{Code: 50003, HTTPstatus: http.StatusBadGateway, Err: fmt.Errorf("relayer unavailable")}
)

// fromEngineError maps a typed engine error to its API error.
func fromEngineError(err error) Error {
	switch {
	case errors.Is(err, types.ErrAlreadyVoted):
		return ErrAlreadyVoted
	case errors.Is(err, types.ErrVotingClosed):
		return ErrVotingClosed
	case errors.Is(err, types.ErrInvalidProposal):
		return ErrProposalNotFound
	case errors.Is(err, types.ErrNotReady):
		return ErrNotReady
	case errors.Is(err, types.ErrWrongNetwork):
		return ErrWrongNetwork
	case errors.Is(err, types.ErrPermissionDenied):
		return ErrPermissionDenied
	case errors.Is(err, types.ErrRelayerUnavailable):
		return ErrRelayerUnavailable
	case errors.Is(err, voting.ErrRevealInProgress):
		return ErrRevealInProgress
	default:
		return ErrGenericInternalError.WithErr(err)
	}
}
