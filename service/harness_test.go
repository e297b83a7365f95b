package service

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"votex-backend/ledger"
	"votex-backend/models"
	"votex-backend/storage"
)

// env bundles the services over an in-memory store and ledger.
type env struct {
	store       *storage.Store
	ledger      *ledger.Memory
	tokens      *TokenService
	auth        *AuthService
	coordinator *VoteCoordinator
	registrar   *Registrar
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store, err := storage.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	mem := ledger.NewMemory()
	log := zap.NewNop()
	tokens := NewTokenService([]byte("test-secret"), time.Hour)
	coordinator := NewVoteCoordinator(store, mem, log, 5*time.Second)

	return &env{
		store:       store,
		ledger:      mem,
		tokens:      tokens,
		auth:        NewAuthService(store, mem, tokens, log, 5*time.Second),
		coordinator: coordinator,
		registrar:   NewRegistrar(store, mem, coordinator, log),
	}
}

func (e *env) seedVoter(t *testing.T, email string, age int, gender string) *models.Voter {
	t.Helper()
	voter := &models.Voter{Email: email, Name: "Voter " + email, Age: age, Gender: gender}
	if err := e.registrar.RegisterVoter(voter); err != nil {
		t.Fatalf("seed voter %s: %v", email, err)
	}
	return voter
}

// seedContest creates an election with one post and the given candidates,
// returning the election, post and candidates in creation order.
func (e *env) seedContest(t *testing.T, candidateNames ...string) (*models.Election, *models.Post, []*models.Candidate) {
	t.Helper()
	ctx := context.Background()

	election := &models.Election{
		Title:     "General Election",
		StartTime: time.Now(),
		EndTime:   time.Now().Add(24 * time.Hour),
	}
	if err := e.registrar.CreateElection(ctx, election); err != nil {
		t.Fatalf("seed election: %v", err)
	}

	post := &models.Post{ElectionID: election.ID, Name: "President"}
	if err := e.registrar.CreatePost(ctx, post); err != nil {
		t.Fatalf("seed post: %v", err)
	}

	party := &models.Party{Name: fmt.Sprintf("Party %d", election.ID)}
	if err := e.registrar.CreateParty(party); err != nil {
		t.Fatalf("seed party: %v", err)
	}

	candidates := make([]*models.Candidate, 0, len(candidateNames))
	for _, name := range candidateNames {
		member := &models.PartyMember{PartyID: party.ID, Name: name}
		if err := e.registrar.CreatePartyMember(member); err != nil {
			t.Fatalf("seed member %s: %v", name, err)
		}
		candidate := &models.Candidate{PostID: post.ID, PartyMemberID: member.ID, Name: name}
		if err := e.registrar.CreateCandidate(ctx, candidate); err != nil {
			t.Fatalf("seed candidate %s: %v", name, err)
		}
		candidates = append(candidates, candidate)
	}

	return election, post, candidates
}

func (e *env) startElection(t *testing.T, id uint) {
	t.Helper()
	if _, err := e.coordinator.StartElection(context.Background(), id); err != nil {
		t.Fatalf("start election %d: %v", id, err)
	}
}

// newWallet generates a key pair and its address in lower-cased hex.
func newWallet(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	return key, addr.Hex()
}

// signMessage signs with the personal-sign scheme wallets use, including
// the 27-offset recovery id.
func signMessage(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		t.Fatalf("sign message: %v", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig)
}

func codeOf(t *testing.T, err error) Code {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	return CodeOf(err)
}
