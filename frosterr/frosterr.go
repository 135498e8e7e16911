// Package frosterr defines the sentinel error kinds shared across the
// wallet. Call sites wrap one of these with fmt.Errorf("...: %w", err) and
// callers compare with errors.Is, matching the teacher's plain errors.New
// style rather than a custom error type hierarchy.
package frosterr

import "errors"

var (
	// ErrProtocolViolation marks a malformed frame, unexpected tag, an
	// identifier outside the group, or a share/commitment from a signer
	// not in the selected set. Local and non-fatal: log and drop/buffer.
	ErrProtocolViolation = errors.New("frost: protocol violation")

	// ErrInsufficientParticipants marks fewer than n (DKG) or fewer than
	// t (signing) responses before a deadline. Terminal for the session.
	ErrInsufficientParticipants = errors.New("frost: insufficient participants")

	// ErrInconsistentInputs marks a part2/part3/aggregate mismatch, e.g.
	// divergent commitments. Terminal; indicates a deviating peer or an
	// encoding non-determinism bug.
	ErrInconsistentInputs = errors.New("frost: inconsistent inputs")

	// ErrIoFailure marks a transport connect/read/write error. Retried up
	// to the bounded attempt count by the peer package, then surfaced.
	ErrIoFailure = errors.New("frost: io failure")

	// ErrPersistenceFailure marks an inability to read/write key-share
	// files. Surfaced immediately; DKG is not complete until persistence
	// succeeds.
	ErrPersistenceFailure = errors.New("frost: persistence failure")

	// ErrRecoveryIdNotFound marks that no recid in {0,1} recovers the
	// wallet's secp256k1 address. Terminal.
	ErrRecoveryIdNotFound = errors.New("frost: recovery id not found")
)
