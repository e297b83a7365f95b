package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"votex-backend/ledger"
	"votex-backend/models"
	"votex-backend/storage"
)

// Registrar handles the admin-side entity writes that have a ledger
// counterpart: elections, posts and candidates are persisted off-chain
// and announced to the ledger in the same admin action. Parties, party
// members and voter identities are off-chain only.
type Registrar struct {
	store       *storage.Store
	ledger      ledger.Client
	log         *zap.Logger
	coordinator *VoteCoordinator
}

func NewRegistrar(store *storage.Store, lc ledger.Client, coordinator *VoteCoordinator, log *zap.Logger) *Registrar {
	return &Registrar{
		store:       store,
		ledger:      lc,
		log:         log.Named("registrar"),
		coordinator: coordinator,
	}
}

func (r *Registrar) CreateElection(ctx context.Context, e *models.Election) error {
	if strings.TrimSpace(e.Title) == "" {
		return E(CodeBadRequest, "election title is required")
	}
	if !e.EndTime.After(e.StartTime) {
		return E(CodeBadRequest, "election end time must be after start time")
	}
	e.Status = models.ElectionPending

	if err := r.store.CreateElection(e); err != nil {
		return Wrap(CodeInternal, err, "failed to persist election")
	}

	lctx, cancel := r.coordinator.ledgerCtx(ctx)
	defer cancel()
	tx, err := r.ledger.SubmitElection(lctx, e.ID, e.Title, e.Description, e.StartTime, e.EndTime)
	if err != nil {
		return mapLedgerErr(err, "submit election")
	}

	r.log.Info("election registered",
		zap.Uint("election_id", e.ID), zap.String("tx_hash", tx))
	return nil
}

func (r *Registrar) CreatePost(ctx context.Context, p *models.Post) error {
	if strings.TrimSpace(p.Name) == "" || p.ElectionID == 0 {
		return E(CodeBadRequest, "post name and election id are required")
	}
	if p.MaxVotesPerVoter < 1 {
		p.MaxVotesPerVoter = 1
	}

	if err := r.store.CreatePost(p); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return E(CodeNotFound, "election %d not found", p.ElectionID)
		}
		return Wrap(CodeInternal, err, "failed to persist post")
	}

	lctx, cancel := r.coordinator.ledgerCtx(ctx)
	defer cancel()
	tx, err := r.ledger.SubmitPost(lctx, p.ElectionID, p.ID, p.Name, p.MaxVotesPerVoter)
	if err != nil {
		return mapLedgerErr(err, "submit post")
	}

	r.log.Info("post registered",
		zap.Uint("post_id", p.ID), zap.String("tx_hash", tx))
	return nil
}

func (r *Registrar) CreateCandidate(ctx context.Context, c *models.Candidate) error {
	if strings.TrimSpace(c.Name) == "" || c.PostID == 0 || c.PartyMemberID == 0 {
		return E(CodeBadRequest, "candidate name, post id and party member id are required")
	}

	post, err := r.store.FindPost(c.PostID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return E(CodeNotFound, "post %d not found", c.PostID)
		}
		return Wrap(CodeInternal, err, "failed to load post")
	}
	if _, err := r.store.FindPartyMember(c.PartyMemberID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return E(CodeNotFound, "party member %d not found", c.PartyMemberID)
		}
		return Wrap(CodeInternal, err, "failed to load party member")
	}

	if c.BlockchainCandidateID == "" {
		c.BlockchainCandidateID = DeriveCandidateLedgerID(c.PostID, c.PartyMemberID, c.Name)
	}

	if err := r.store.CreateCandidate(c); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return E(CodeConflict, "party member %d already stands for post %d", c.PartyMemberID, c.PostID)
		}
		return Wrap(CodeInternal, err, "failed to persist candidate")
	}

	lctx, cancel := r.coordinator.ledgerCtx(ctx)
	defer cancel()
	tx, err := r.ledger.SubmitCandidate(lctx, post.ElectionID, c.PostID, c.BlockchainCandidateID, c.Name)
	if err != nil {
		return mapLedgerErr(err, "submit candidate")
	}

	r.log.Info("candidate registered",
		zap.Uint("candidate_id", c.ID),
		zap.String("ledger_id", c.BlockchainCandidateID),
		zap.String("tx_hash", tx))
	return nil
}

func (r *Registrar) CreateParty(p *models.Party) error {
	if strings.TrimSpace(p.Name) == "" {
		return E(CodeBadRequest, "party name is required")
	}
	if err := r.store.CreateParty(p); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return E(CodeConflict, "party %q already exists", p.Name)
		}
		return Wrap(CodeInternal, err, "failed to persist party")
	}
	return nil
}

func (r *Registrar) CreatePartyMember(m *models.PartyMember) error {
	if strings.TrimSpace(m.Name) == "" || m.PartyID == 0 {
		return E(CodeBadRequest, "member name and party id are required")
	}
	if err := r.store.CreatePartyMember(m); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return E(CodeNotFound, "party %d not found", m.PartyID)
		}
		return Wrap(CodeInternal, err, "failed to persist party member")
	}
	return nil
}

// RegisterVoter pre-registers a voter identity. The wallet is bound later
// by the voter through the challenge-response flow.
func (r *Registrar) RegisterVoter(v *models.Voter) error {
	if strings.TrimSpace(v.Email) == "" || strings.TrimSpace(v.Name) == "" {
		return E(CodeBadRequest, "voter email and name are required")
	}
	v.Email = strings.ToLower(strings.TrimSpace(v.Email))
	v.WalletAddress = ""
	v.AuthNonce = ""
	if v.RegistrationStatus == "" {
		v.RegistrationStatus = models.StatusEmailVerified
	}

	if err := r.store.CreateVoter(v); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return E(CodeConflict, "voter %s is already registered", v.Email)
		}
		return Wrap(CodeInternal, err, "failed to persist voter")
	}
	return nil
}

// DeriveCandidateLedgerID derives the identifier a candidate is addressed
// by on the ledger when none is supplied at creation. The derivation is
// deterministic so re-creation of the same candidate yields the same id.
func DeriveCandidateLedgerID(postID, partyMemberID uint, name string) string {
	d := sha3.NewLegacyKeccak256()
	fmt.Fprintf(d, "%d:%d:%s", postID, partyMemberID, name)
	return hex.EncodeToString(d.Sum(nil)[:8])
}
