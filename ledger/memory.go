package ledger

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"
)

// Memory is an in-process ledger used for local runs and deterministic
// tests. It mirrors the contract's bookkeeping: registered elections,
// whitelisted addresses, per-candidate tallies and emitted vote events
// keyed by transaction hash.
type Memory struct {
	mu          sync.RWMutex
	elections   map[uint]bool
	voting      map[uint]bool // electionID -> voting open
	whitelisted map[string]bool
	tallies     map[uint]map[string]uint64 // electionID -> candidateLedgerID -> count
	voted       map[uint]map[string]bool   // electionID -> voterAddress -> voted any post
	events      map[string]VoteEvent       // txHash -> event
	byElection  map[uint][]VoteEvent
	txCounter   uint64

	// FailSubmit forces SubmitVote to fail, for exercising the
	// partial-failure paths in tests.
	FailSubmit bool
	// TamperEvents makes emitted events disagree with the submitted
	// vote, for exercising post-submission verification.
	TamperEvents bool
	// Hang blocks write calls until the caller's context expires, then
	// returns ErrTimeout. Exercises per-call ledger deadlines: a caller
	// that forgets to bound its context never returns from here.
	Hang bool
}

// await simulates a call that outlives its deadline when Hang is set.
// Checked before the lock so a hanging call never blocks the others.
func (m *Memory) await(ctx context.Context) error {
	if !m.Hang {
		return nil
	}
	<-ctx.Done()
	return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
}

func NewMemory() *Memory {
	return &Memory{
		elections:   make(map[uint]bool),
		voting:      make(map[uint]bool),
		whitelisted: make(map[string]bool),
		tallies:     make(map[uint]map[string]uint64),
		voted:       make(map[uint]map[string]bool),
		events:      make(map[string]VoteEvent),
		byElection:  make(map[uint][]VoteEvent),
	}
}

func (m *Memory) nextTx(parts ...string) string {
	m.txCounter++
	d := sha3.NewLegacyKeccak256()
	fmt.Fprintf(d, "%d", m.txCounter)
	for _, p := range parts {
		d.Write([]byte(p))
	}
	return "0x" + hex.EncodeToString(d.Sum(nil))
}

func (m *Memory) SubmitElection(ctx context.Context, id uint, title, description string, start, end time.Time) (string, error) {
	if err := m.await(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elections[id] = true
	if m.tallies[id] == nil {
		m.tallies[id] = make(map[string]uint64)
	}
	return m.nextTx("election", title), nil
}

func (m *Memory) SubmitPost(ctx context.Context, electionID, postID uint, name string, maxVotes int) (string, error) {
	if err := m.await(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.elections[electionID] {
		return "", fmt.Errorf("%w: unknown election %d", ErrSubmissionFailed, electionID)
	}
	return m.nextTx("post", name), nil
}

func (m *Memory) SubmitCandidate(ctx context.Context, electionID, postID uint, candidateLedgerID, name string) (string, error) {
	if err := m.await(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.elections[electionID] {
		return "", fmt.Errorf("%w: unknown election %d", ErrSubmissionFailed, electionID)
	}
	if m.tallies[electionID] == nil {
		m.tallies[electionID] = make(map[string]uint64)
	}
	m.tallies[electionID][candidateLedgerID] = 0
	return m.nextTx("candidate", candidateLedgerID), nil
}

func (m *Memory) GlobalWhitelist(ctx context.Context, address string) (string, error) {
	if err := m.await(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := strings.ToLower(address)
	if m.whitelisted[addr] {
		return "", ErrAlreadyWhitelisted
	}
	m.whitelisted[addr] = true
	return m.nextTx("whitelist", addr), nil
}

func (m *Memory) StartVoting(ctx context.Context, electionID uint) (string, error) {
	if err := m.await(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.elections[electionID] {
		return "", fmt.Errorf("%w: unknown election %d", ErrSubmissionFailed, electionID)
	}
	m.voting[electionID] = true
	return m.nextTx("start"), nil
}

func (m *Memory) EndVoting(ctx context.Context, electionID uint) (string, error) {
	if err := m.await(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.voting[electionID] {
		return "", fmt.Errorf("%w: voting not open for election %d", ErrSubmissionFailed, electionID)
	}
	m.voting[electionID] = false
	return m.nextTx("end"), nil
}

func (m *Memory) SubmitVote(ctx context.Context, electionID, postID uint, candidateLedgerID, voterAddress string) (string, error) {
	if err := m.await(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSubmit {
		return "", ErrSubmissionFailed
	}
	if !m.voting[electionID] {
		return "", fmt.Errorf("%w: voting not open for election %d", ErrSubmissionFailed, electionID)
	}

	addr := strings.ToLower(voterAddress)
	if m.tallies[electionID] == nil {
		m.tallies[electionID] = make(map[string]uint64)
	}
	m.tallies[electionID][candidateLedgerID]++
	if m.voted[electionID] == nil {
		m.voted[electionID] = make(map[string]bool)
	}
	m.voted[electionID][addr] = true

	event := VoteEvent{
		ElectionID:        electionID,
		PostID:            postID,
		CandidateLedgerID: candidateLedgerID,
		VoterAddress:      addr,
	}
	if m.TamperEvents {
		event.CandidateLedgerID = "tampered-" + candidateLedgerID
	}

	tx := m.nextTx("vote", addr, candidateLedgerID)
	m.events[tx] = event
	m.byElection[electionID] = append(m.byElection[electionID], event)
	return tx, nil
}

func (m *Memory) GetVoteEventByTx(ctx context.Context, txHash string) (*VoteEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	event, ok := m.events[txHash]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &event, nil
}

func (m *Memory) GetTally(ctx context.Context, electionID uint, candidateLedgerID string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tallies[electionID][candidateLedgerID], nil
}

func (m *Memory) HasVoted(ctx context.Context, electionID uint, voterAddress string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.voted[electionID][strings.ToLower(voterAddress)], nil
}

func (m *Memory) QueryVoteEvents(ctx context.Context, electionID uint) ([]VoteEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]VoteEvent, len(m.byElection[electionID]))
	copy(events, m.byElection[electionID])
	return events, nil
}

// IsWhitelisted reports whether an address has been globally whitelisted.
func (m *Memory) IsWhitelisted(address string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.whitelisted[strings.ToLower(address)]
}
