package models

import "time"

// VoteLog is the off-chain audit record of a cast vote. Rows are created
// only after the ledger submission succeeds and are never updated or
// deleted afterwards; the ledger remains the authoritative record.
type VoteLog struct {
	ID                 uint      `gorm:"primarykey" json:"id"`
	ElectionID         uint      `gorm:"not null;index" json:"election_id"`
	PostID             uint      `gorm:"not null;index" json:"post_id"`
	CandidateID        uint      `gorm:"not null" json:"candidate_id"`
	VoterWallet        string    `gorm:"not null;index" json:"voter_wallet"`
	TransactionHash    string    `gorm:"uniqueIndex;not null" json:"transaction_hash"`
	VerificationFailed bool      `json:"verification_failed"` // flagged for manual audit review
	CreatedAt          time.Time `json:"created_at"`
}

// VoterReceipt is the voter-queryable proof of a cast vote. It shares the
// transaction hash with the matching VoteLog row.
type VoterReceipt struct {
	ID              uint      `gorm:"primarykey" json:"id"`
	ReceiptID       string    `gorm:"uniqueIndex" json:"receipt_id"`
	ElectionID      uint      `gorm:"not null;index" json:"election_id"`
	PostID          uint      `gorm:"not null" json:"post_id"`
	CandidateID     uint      `gorm:"not null" json:"candidate_id"`
	VoterWallet     string    `gorm:"not null;index" json:"voter_wallet"`
	TransactionHash string    `gorm:"uniqueIndex;not null" json:"transaction_hash"`
	CreatedAt       time.Time `json:"created_at"`
}
