package types

import "errors"

// Typed errors shared across the engine. Preconditions fail fast with one of
// these before any state is mutated; the ledger gateway maps raw revert
// reasons into them so coordinators never branch on contract strings.
var (
	// ErrNotReady means a required dependency (usually the relayer
	// session) is not initialized yet.
	ErrNotReady = errors.New("dependency not initialized")

	// ErrWrongNetwork means the wallet session is connected to a chain
	// other than the one the contract is deployed on.
	ErrWrongNetwork = errors.New("wrong network")

	// ErrVotingClosed means the proposal tally has been made public and
	// no further ballots are accepted.
	ErrVotingClosed = errors.New("voting is closed")

	// ErrAlreadyVoted means the voter already holds a ballot for the
	// proposal.
	ErrAlreadyVoted = errors.New("already voted")

	// ErrInvalidProposal means the proposal id does not exist on the
	// ledger.
	ErrInvalidProposal = errors.New("invalid proposal")

	// ErrNotVoted means the voter has no ballot for the proposal.
	ErrNotVoted = errors.New("not voted")

	// ErrPermissionDenied means the ledger rejected an operation on an
	// encrypted handle for lack of FHE access permission.
	ErrPermissionDenied = errors.New("fhe permission denied")

	// ErrMalformedHandle means an encrypted handle is not a well-formed
	// 0x-prefixed hex string.
	ErrMalformedHandle = errors.New("malformed encrypted handle")

	// ErrUnsupportedResponseShape means the relayer returned a decryption
	// response whose keys match none of the known envelope shapes.
	ErrUnsupportedResponseShape = errors.New("unsupported relayer response shape")

	// ErrRelayerUnavailable means relayer session initialization exhausted
	// its retry budget; the client stays unavailable until reset.
	ErrRelayerUnavailable = errors.New("relayer unavailable")

	// ErrEncodingUnsupported means the relayer session cannot encode the
	// requested plaintext bit-width.
	ErrEncodingUnsupported = errors.New("plaintext encoding unsupported")

	// ErrSignatureRejected means the voter declined to sign the decryption
	// authorization.
	ErrSignatureRejected = errors.New("signature rejected by signer")
)
