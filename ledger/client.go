package ledger

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrSubmissionFailed is returned when the ledger accepted the call
	// but produced no usable transaction, or the transaction reverted.
	ErrSubmissionFailed = errors.New("ledger submission failed")
	// ErrTimeout is returned when a ledger call exceeded its deadline.
	ErrTimeout = errors.New("ledger call timed out")
	// ErrAlreadyWhitelisted is a benign outcome of GlobalWhitelist: the
	// address was eligible before the call. Callers treat it as success.
	ErrAlreadyWhitelisted = errors.New("address already whitelisted")
	// ErrEventNotFound is returned when no vote event exists for a
	// transaction hash.
	ErrEventNotFound = errors.New("vote event not found")
)

// VoteEvent is the vote record as emitted by the ledger.
type VoteEvent struct {
	ElectionID        uint   `json:"election_id"`
	PostID            uint   `json:"post_id"`
	CandidateLedgerID string `json:"candidate_ledger_id"`
	VoterAddress      string `json:"voter_address"`
}

// Matches reports whether the emitted event carries exactly the intended
// vote. Addresses compare case-insensitively.
func (e VoteEvent) Matches(other VoteEvent) bool {
	return e.ElectionID == other.ElectionID &&
		e.PostID == other.PostID &&
		e.CandidateLedgerID == other.CandidateLedgerID &&
		strings.EqualFold(e.VoterAddress, other.VoterAddress)
}

// Client is the capability set of the append-only voting ledger. Every
// call is network-bound and may fail transiently or permanently; no call
// is retried by this backend.
type Client interface {
	SubmitElection(ctx context.Context, id uint, title, description string, start, end time.Time) (string, error)
	SubmitPost(ctx context.Context, electionID, postID uint, name string, maxVotes int) (string, error)
	SubmitCandidate(ctx context.Context, electionID, postID uint, candidateLedgerID, name string) (string, error)
	GlobalWhitelist(ctx context.Context, address string) (string, error)
	StartVoting(ctx context.Context, electionID uint) (string, error)
	EndVoting(ctx context.Context, electionID uint) (string, error)
	SubmitVote(ctx context.Context, electionID, postID uint, candidateLedgerID, voterAddress string) (string, error)
	GetVoteEventByTx(ctx context.Context, txHash string) (*VoteEvent, error)
	GetTally(ctx context.Context, electionID uint, candidateLedgerID string) (uint64, error)
	HasVoted(ctx context.Context, electionID uint, voterAddress string) (bool, error)
	QueryVoteEvents(ctx context.Context, electionID uint) ([]VoteEvent, error)
}
