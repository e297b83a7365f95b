package models

import "time"

// ElectionStatus is the lifecycle state of an election. Transitions only
// move pending -> active -> ended; ended is terminal.
type ElectionStatus string

const (
	ElectionPending ElectionStatus = "pending"
	ElectionActive  ElectionStatus = "active"
	ElectionEnded   ElectionStatus = "ended"
)

type Election struct {
	ID                 uint           `gorm:"primarykey" json:"id"`
	Title              string         `gorm:"not null" json:"title"`
	Description        string         `json:"description"`
	StartTime          time.Time      `json:"start_time"`
	EndTime            time.Time      `json:"end_time"`
	Status             ElectionStatus `gorm:"default:pending" json:"status"`
	ContractAddress    string         `json:"contract_address,omitempty"`
	Results            string         `json:"results,omitempty"` // serialized tally map, set at ended
	WinningCandidateID *uint          `json:"winning_candidate_id,omitempty"`
	Posts              []Post         `gorm:"constraint:OnDelete:CASCADE" json:"posts,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Post is a single contest within an election, e.g. one office.
type Post struct {
	ID               uint        `gorm:"primarykey" json:"id"`
	ElectionID       uint        `gorm:"not null;index" json:"election_id"`
	Name             string      `gorm:"not null" json:"name"`
	Description      string      `json:"description"`
	MaxVotesPerVoter int         `gorm:"default:1" json:"max_votes_per_voter"`
	Candidates       []Candidate `gorm:"constraint:OnDelete:CASCADE" json:"candidates,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Candidate ties a party member to a post. BlockchainCandidateID is the
// identifier used when addressing the ledger; when not supplied at
// creation it is derived deterministically from the post, member and name.
type Candidate struct {
	ID                    uint      `gorm:"primarykey" json:"id"`
	PostID                uint      `gorm:"not null;uniqueIndex:idx_post_member" json:"post_id"`
	PartyMemberID         uint      `gorm:"not null;uniqueIndex:idx_post_member" json:"party_member_id"`
	Name                  string    `gorm:"not null" json:"name"`
	BlockchainCandidateID string    `gorm:"not null" json:"blockchain_candidate_id"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}
