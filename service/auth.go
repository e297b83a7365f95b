package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"votex-backend/ledger"
	"votex-backend/models"
	"votex-backend/storage"
)

// ChallengePrefix is shown to the voter inside the message they sign, so
// a signature produced here cannot be replayed in another system.
const ChallengePrefix = "Authenticate to VoteX: "

// nonceBytes gives 128 bits of entropy per challenge.
const nonceBytes = 16

// AuthService binds pre-registered voter identities to self-custodied
// wallets through a single-use challenge-response signature scheme.
type AuthService struct {
	store         *storage.Store
	ledger        ledger.Client
	tokens        *TokenService
	log           *zap.Logger
	ledgerTimeout time.Duration
}

func NewAuthService(store *storage.Store, lc ledger.Client, tokens *TokenService, log *zap.Logger, ledgerTimeout time.Duration) *AuthService {
	if ledgerTimeout <= 0 {
		ledgerTimeout = 90 * time.Second
	}
	return &AuthService{
		store:         store,
		ledger:        lc,
		tokens:        tokens,
		log:           log.Named("auth"),
		ledgerTimeout: ledgerTimeout,
	}
}

// AuthResult is returned on a successful authentication.
type AuthResult struct {
	Token string        `json:"token"`
	Voter *models.Voter `json:"voter"`
}

// RequestChallenge issues a fresh challenge for the voter. Any prior
// unused challenge is invalidated by the overwrite.
func (as *AuthService) RequestChallenge(ctx context.Context, email string) (string, error) {
	voter, err := as.store.FindVoterByEmail(email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", E(CodeNotFound, "no voter registered for %s", email)
		}
		return "", Wrap(CodeInternal, err, "failed to load voter")
	}

	nonce, err := generateNonce()
	if err != nil {
		return "", Wrap(CodeInternal, err, "failed to generate challenge nonce")
	}

	if err := as.store.SetVoterNonce(voter.ID, nonce); err != nil {
		return "", Wrap(CodeInternal, err, "failed to persist challenge nonce")
	}

	return ChallengePrefix + nonce, nil
}

// Authenticate verifies a signed challenge, binds the recovered wallet to
// the voter and issues a bearer token.
//
// The stored nonce is cleared on success, so a captured (message,
// signature) pair cannot be replayed. Whitelisting the wallet on the
// ledger is best-effort: its failure never blocks authentication.
func (as *AuthService) Authenticate(ctx context.Context, email, claimedWallet, message, signature string) (*AuthResult, error) {
	voter, err := as.store.FindVoterByEmail(email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, E(CodeNotFound, "no voter registered for %s", email)
		}
		return nil, Wrap(CodeInternal, err, "failed to load voter")
	}

	// 1. The supplied message must match the currently stored challenge
	// byte for byte. A stale or forged challenge fails closed here.
	if voter.AuthNonce == "" || message != ChallengePrefix+voter.AuthNonce {
		return nil, E(CodeInvalidChallenge, "challenge does not match the one issued")
	}

	// 2. Recover the signing address and compare it with the claim.
	recovered, err := RecoverSigner(message, signature)
	if err != nil {
		return nil, Wrap(CodeSignatureMismatch, err, "failed to recover signer")
	}
	if recovered != common.HexToAddress(claimedWallet) {
		return nil, E(CodeSignatureMismatch,
			"signature was produced by %s, not the claimed address", recovered.Hex())
	}
	wallet := strings.ToLower(recovered.Hex())

	// 3. Clear the nonce and bind the wallet in one write. A wallet
	// already bound to another voter trips the uniqueness constraint.
	upd := storage.VoterUpdate{
		ClearNonce:         true,
		RegistrationStatus: voter.RegistrationStatus.AtLeast(models.StatusWalletLinked),
	}
	if voter.WalletAddress != wallet {
		upd.WalletAddress = wallet
	}
	if err := as.store.ApplyVoterUpdate(voter.ID, upd); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, E(CodeConflict, "wallet is already bound to another voter")
		}
		return nil, Wrap(CodeInternal, err, "failed to bind wallet")
	}
	voter.AuthNonce = ""
	voter.WalletAddress = wallet
	voter.RegistrationStatus = upd.RegistrationStatus

	// 4. Best-effort global whitelist. "Already whitelisted" counts as
	// eligible; any other failure is logged and authentication proceeds.
	as.whitelist(ctx, voter)

	token, err := as.tokens.IssueVoter(voter.ID, voter.Email, wallet)
	if err != nil {
		return nil, err
	}

	as.log.Info("voter authenticated",
		zap.String("email", voter.Email),
		zap.String("wallet", wallet),
		zap.String("status", string(voter.RegistrationStatus)))

	return &AuthResult{Token: token, Voter: voter}, nil
}

func (as *AuthService) whitelist(ctx context.Context, voter *models.Voter) {
	if voter.IsEligibleOnChain {
		return
	}

	// The whitelist call carries its own deadline so a stalled ledger
	// cannot hang the login it must never block.
	lctx, cancel := context.WithTimeout(ctx, as.ledgerTimeout)
	defer cancel()
	_, err := as.ledger.GlobalWhitelist(lctx, voter.WalletAddress)
	if err != nil && !errors.Is(err, ledger.ErrAlreadyWhitelisted) {
		as.log.Warn("wallet whitelisting failed, continuing",
			zap.String("wallet", voter.WalletAddress), zap.Error(err))
		return
	}

	eligible := true
	upd := storage.VoterUpdate{
		RegistrationStatus: voter.RegistrationStatus.AtLeast(models.StatusEligibleOnChain),
		EligibleOnChain:    &eligible,
	}
	if err := as.store.ApplyVoterUpdate(voter.ID, upd); err != nil {
		as.log.Warn("failed to record on-chain eligibility", zap.Error(err))
		return
	}
	voter.IsEligibleOnChain = true
	voter.RegistrationStatus = upd.RegistrationStatus
}

// RecoverSigner recovers the address that signed message with the
// standard personal-sign scheme.
func RecoverSigner(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("malformed signature: %v", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}

	// Wallets encode the recovery id as 27/28.
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed: %v", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func generateNonce() (string, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
