package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zdao/zdao-node/types"
)

var errEmptyDescription = errors.New("empty description")

// voteRequest is the body of POST /proposals/{proposalId}/vote.
type voteRequest struct {
	Choice types.VoteChoice `json:"choice"`
}

// createProposalRequest is the body of POST /proposals.
type createProposalRequest struct {
	Description string `json:"description"`
}

func (a *API) proposalID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "proposalId"), 10, 64)
	return id, err == nil
}

// listProposals returns the session's proposal list, loading it from the
// ledger when empty.
func (a *API) listProposals(w http.ResponseWriter, r *http.Request) {
	proposals := a.session.Proposals()
	if len(proposals) == 0 {
		var err error
		if proposals, err = a.coord.LoadProposals(r.Context()); err != nil {
			fromEngineError(err).Write(w)
			return
		}
	}
	httpWriteJSON(w, proposals)
}

// createProposal creates a proposal on the ledger.
func (a *API) createProposal(w http.ResponseWriter, r *http.Request) {
	var req createProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if req.Description == "" {
		ErrMalformedBody.WithErr(errEmptyDescription).Write(w)
		return
	}
	if err := a.coord.CreateProposal(r.Context(), req.Description); err != nil {
		fromEngineError(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// proposal returns a single proposal read fresh from the ledger.
func (a *API) proposal(w http.ResponseWriter, r *http.Request) {
	id, ok := a.proposalID(r)
	if !ok {
		ErrMalformedProposalID.Write(w)
		return
	}
	p, err := a.coord.Ledger().Proposal(r.Context(), id)
	if err != nil {
		fromEngineError(err).Write(w)
		return
	}
	httpWriteJSON(w, p)
}

// castVote encrypts and submits a ballot for the connected voter.
func (a *API) castVote(w http.ResponseWriter, r *http.Request) {
	id, ok := a.proposalID(r)
	if !ok {
		ErrMalformedProposalID.Write(w)
		return
	}
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if req.Choice != types.VoteYes && req.Choice != types.VoteNo {
		ErrInvalidVoteChoice.Write(w)
		return
	}
	if err := a.coord.CastVote(r.Context(), id, req.Choice); err != nil {
		fromEngineError(err).Write(w)
		return
	}
	httpWriteOK(w)
}

// reveal runs the reveal and reconciliation cycle for a proposal and
// returns the resolved tally with any soft warnings.
func (a *API) reveal(w http.ResponseWriter, r *http.Request) {
	id, ok := a.proposalID(r)
	if !ok {
		ErrMalformedProposalID.Write(w)
		return
	}
	result, err := a.coord.RevealAndSync(r.Context(), id)
	if err != nil {
		fromEngineError(err).Write(w)
		return
	}
	httpWriteJSON(w, result)
}

// userVotes returns the connected voter's resolved ballots.
func (a *API) userVotes(w http.ResponseWriter, _ *http.Request) {
	httpWriteJSON(w, a.session.UserVotes())
}

// refreshVotes re-resolves the voter's ballots across all proposals.
func (a *API) refreshVotes(w http.ResponseWriter, r *http.Request) {
	votes, err := a.coord.RefreshVoteStatus(r.Context())
	if err != nil {
		fromEngineError(err).Write(w)
		return
	}
	httpWriteJSON(w, votes)
}
