package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// votingABI is the fragment of the voting contract this backend talks to.
const votingABI = `[
  {"type":"function","name":"createElection","inputs":[{"name":"electionId","type":"uint256"},{"name":"title","type":"string"},{"name":"description","type":"string"},{"name":"startTime","type":"uint256"},{"name":"endTime","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"addPost","inputs":[{"name":"electionId","type":"uint256"},{"name":"postId","type":"uint256"},{"name":"name","type":"string"},{"name":"maxVotes","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"addCandidate","inputs":[{"name":"electionId","type":"uint256"},{"name":"postId","type":"uint256"},{"name":"candidateId","type":"string"},{"name":"name","type":"string"}],"outputs":[]},
  {"type":"function","name":"whitelistVoter","inputs":[{"name":"voter","type":"address"}],"outputs":[]},
  {"type":"function","name":"isWhitelisted","inputs":[{"name":"voter","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
  {"type":"function","name":"startVoting","inputs":[{"name":"electionId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"endVoting","inputs":[{"name":"electionId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"castVote","inputs":[{"name":"electionId","type":"uint256"},{"name":"postId","type":"uint256"},{"name":"candidateId","type":"string"},{"name":"voter","type":"address"}],"outputs":[]},
  {"type":"function","name":"getTally","inputs":[{"name":"electionId","type":"uint256"},{"name":"candidateId","type":"string"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
  {"type":"function","name":"hasVoted","inputs":[{"name":"electionId","type":"uint256"},{"name":"voter","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
  {"type":"event","name":"VoteCast","inputs":[{"name":"electionId","type":"uint256","indexed":true},{"name":"postId","type":"uint256","indexed":false},{"name":"candidateId","type":"string","indexed":false},{"name":"voter","type":"address","indexed":false}]}
]`

// EVMClient talks to the voting contract over JSON-RPC. All transactions
// are signed with the backend's admin key, injected once at construction.
type EVMClient struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	parsed   abi.ABI
	address  common.Address
	opts     *bind.TransactOpts
}

type voteCastEvent struct {
	ElectionId  *big.Int
	PostId      *big.Int
	CandidateId string
	Voter       common.Address
}

// NewEVMClient dials the RPC endpoint and binds the voting contract.
func NewEVMClient(rpcURL, contractAddress, adminKeyHex string, chainID int64) (*EVMClient, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger rpc: %v", err)
	}

	parsed, err := abi.JSON(strings.NewReader(votingABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse voting ABI: %v", err)
	}

	key, err := parseAdminKey(adminKeyHex)
	if err != nil {
		return nil, err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(chainID))
	if err != nil {
		return nil, fmt.Errorf("failed to build transactor: %v", err)
	}

	address := common.HexToAddress(contractAddress)
	contract := bind.NewBoundContract(address, parsed, client, client, client)

	return &EVMClient{
		client:   client,
		contract: contract,
		parsed:   parsed,
		address:  address,
		opts:     opts,
	}, nil
}

func parseAdminKey(keyHex string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse admin key: %v", err)
	}
	return key, nil
}

// transact submits one contract call and waits for it to be mined. The
// returned hash identifies the transaction even when the wait fails, so
// callers can surface it for independent verification.
func (c *EVMClient) transact(ctx context.Context, method string, args ...interface{}) (string, error) {
	opts := *c.opts
	opts.Context = ctx

	tx, err := c.contract.Transact(&opts, method, args...)
	if err != nil {
		return "", wrapLedgerErr(ctx, err, method)
	}

	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		return tx.Hash().Hex(), wrapLedgerErr(ctx, err, method)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx.Hash().Hex(), fmt.Errorf("%w: %s reverted in tx %s",
			ErrSubmissionFailed, method, tx.Hash().Hex())
	}

	return tx.Hash().Hex(), nil
}

func (c *EVMClient) call(ctx context.Context, out *[]interface{}, method string, args ...interface{}) error {
	err := c.contract.Call(&bind.CallOpts{Context: ctx}, out, method, args...)
	if err != nil {
		return wrapLedgerErr(ctx, err, method)
	}
	return nil
}

// unpackBool and unpackUint64 read a single-value contract return,
// guarding against an empty or mistyped result instead of panicking.
func unpackBool(method string, out []interface{}) (bool, error) {
	if len(out) != 1 {
		return false, fmt.Errorf("%w: %s returned %d values", ErrSubmissionFailed, method, len(out))
	}
	v, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s returned unexpected type", ErrSubmissionFailed, method)
	}
	return v, nil
}

func unpackUint64(method string, out []interface{}) (uint64, error) {
	if len(out) != 1 {
		return 0, fmt.Errorf("%w: %s returned %d values", ErrSubmissionFailed, method, len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s returned unexpected type", ErrSubmissionFailed, method)
	}
	return v.Uint64(), nil
}

func wrapLedgerErr(ctx context.Context, err error, method string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, method, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrSubmissionFailed, method, err)
}

func (c *EVMClient) SubmitElection(ctx context.Context, id uint, title, description string, start, end time.Time) (string, error) {
	return c.transact(ctx, "createElection",
		new(big.Int).SetUint64(uint64(id)), title, description,
		big.NewInt(start.Unix()), big.NewInt(end.Unix()))
}

func (c *EVMClient) SubmitPost(ctx context.Context, electionID, postID uint, name string, maxVotes int) (string, error) {
	return c.transact(ctx, "addPost",
		new(big.Int).SetUint64(uint64(electionID)),
		new(big.Int).SetUint64(uint64(postID)),
		name, big.NewInt(int64(maxVotes)))
}

func (c *EVMClient) SubmitCandidate(ctx context.Context, electionID, postID uint, candidateLedgerID, name string) (string, error) {
	return c.transact(ctx, "addCandidate",
		new(big.Int).SetUint64(uint64(electionID)),
		new(big.Int).SetUint64(uint64(postID)),
		candidateLedgerID, name)
}

func (c *EVMClient) GlobalWhitelist(ctx context.Context, address string) (string, error) {
	addr := common.HexToAddress(address)

	var out []interface{}
	if err := c.call(ctx, &out, "isWhitelisted", addr); err == nil {
		if already, err := unpackBool("isWhitelisted", out); err == nil && already {
			return "", ErrAlreadyWhitelisted
		}
	}

	return c.transact(ctx, "whitelistVoter", addr)
}

func (c *EVMClient) StartVoting(ctx context.Context, electionID uint) (string, error) {
	return c.transact(ctx, "startVoting", new(big.Int).SetUint64(uint64(electionID)))
}

func (c *EVMClient) EndVoting(ctx context.Context, electionID uint) (string, error) {
	return c.transact(ctx, "endVoting", new(big.Int).SetUint64(uint64(electionID)))
}

func (c *EVMClient) SubmitVote(ctx context.Context, electionID, postID uint, candidateLedgerID, voterAddress string) (string, error) {
	return c.transact(ctx, "castVote",
		new(big.Int).SetUint64(uint64(electionID)),
		new(big.Int).SetUint64(uint64(postID)),
		candidateLedgerID,
		common.HexToAddress(voterAddress))
}

func (c *EVMClient) GetVoteEventByTx(ctx context.Context, txHash string) (*VoteEvent, error) {
	receipt, err := c.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, wrapLedgerErr(ctx, err, "getVoteEventByTx")
	}

	eventID := c.parsed.Events["VoteCast"].ID
	for _, entry := range receipt.Logs {
		if entry.Address != c.address || len(entry.Topics) == 0 || entry.Topics[0] != eventID {
			continue
		}
		var ev voteCastEvent
		if err := c.contract.UnpackLog(&ev, "VoteCast", *entry); err != nil {
			return nil, fmt.Errorf("failed to unpack vote event: %v", err)
		}
		return &VoteEvent{
			ElectionID:        uint(ev.ElectionId.Uint64()),
			PostID:            uint(ev.PostId.Uint64()),
			CandidateLedgerID: ev.CandidateId,
			VoterAddress:      strings.ToLower(ev.Voter.Hex()),
		}, nil
	}

	return nil, ErrEventNotFound
}

func (c *EVMClient) GetTally(ctx context.Context, electionID uint, candidateLedgerID string) (uint64, error) {
	var out []interface{}
	err := c.call(ctx, &out, "getTally",
		new(big.Int).SetUint64(uint64(electionID)), candidateLedgerID)
	if err != nil {
		return 0, err
	}
	return unpackUint64("getTally", out)
}

func (c *EVMClient) HasVoted(ctx context.Context, electionID uint, voterAddress string) (bool, error) {
	var out []interface{}
	err := c.call(ctx, &out, "hasVoted",
		new(big.Int).SetUint64(uint64(electionID)), common.HexToAddress(voterAddress))
	if err != nil {
		return false, err
	}
	return unpackBool("hasVoted", out)
}

func (c *EVMClient) QueryVoteEvents(ctx context.Context, electionID uint) ([]VoteEvent, error) {
	eventID := c.parsed.Events["VoteCast"].ID
	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.address},
		Topics: [][]common.Hash{
			{eventID},
			{common.BigToHash(new(big.Int).SetUint64(uint64(electionID)))},
		},
	}

	logs, err := c.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, wrapLedgerErr(ctx, err, "queryVoteEvents")
	}

	events := make([]VoteEvent, 0, len(logs))
	for _, entry := range logs {
		var ev voteCastEvent
		if err := c.contract.UnpackLog(&ev, "VoteCast", entry); err != nil {
			continue
		}
		events = append(events, VoteEvent{
			ElectionID:        uint(ev.ElectionId.Uint64()),
			PostID:            uint(ev.PostId.Uint64()),
			CandidateLedgerID: ev.CandidateId,
			VoterAddress:      strings.ToLower(ev.Voter.Hex()),
		})
	}
	return events, nil
}
