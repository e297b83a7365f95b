package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"votex-backend/models"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// Store wraps the relational database holding all off-chain state: voter
// identities, election metadata and the append-only vote audit trail.
type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	// URI paths (file:...) pass through untouched, plain paths are
	// resolved so the database lands where the operator asked.
	if !strings.HasPrefix(path, "file:") {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path: %v", err)
		}
		path = absPath
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Party{},
		&models.PartyMember{},
		&models.Voter{},
		&models.Election{},
		&models.Post{},
		&models.Candidate{},
		&models.VoteLog{},
		&models.VoterReceipt{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %v", err)
	}

	// Wallets are unique once bound; unlinked voters all carry the empty
	// string, so the index must skip it.
	err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_voters_wallet_bound
		ON voters(wallet_address) WHERE wallet_address <> ''`).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet index: %v", err)
	}

	return &Store{db: db}, nil
}

var memCounter uint64

// OpenInMemory opens a throwaway database, used by tests. Each call gets
// its own database; cache=shared keeps the pool's connections on it.
func OpenInMemory() (*Store, error) {
	n := atomic.AddUint64(&memCounter, 1)
	return Open(fmt.Sprintf("file:votexmem%d?mode=memory&cache=shared", n))
}

// translate maps gorm errors onto the store's sentinel errors so callers
// never depend on the driver.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey),
		strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return ErrDuplicate
	default:
		return err
	}
}

// Voter access

func (s *Store) CreateVoter(v *models.Voter) error {
	return translate(s.db.Create(v).Error)
}

func (s *Store) FindVoterByEmail(email string) (*models.Voter, error) {
	var v models.Voter
	if err := s.db.Where("email = ?", email).First(&v).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (s *Store) FindVoterByWallet(wallet string) (*models.Voter, error) {
	var v models.Voter
	if err := s.db.Where("wallet_address = ?", strings.ToLower(wallet)).First(&v).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

// SetVoterNonce overwrites the voter's challenge nonce. Overwriting
// invalidates any outstanding unused challenge for that voter.
func (s *Store) SetVoterNonce(voterID uint, nonce string) error {
	return translate(s.db.Model(&models.Voter{}).Where("id = ?", voterID).
		Update("auth_nonce", nonce).Error)
}

// VoterUpdate enumerates the fields the authenticator may change after a
// successful signature verification. Updates are applied as one write.
type VoterUpdate struct {
	ClearNonce         bool
	WalletAddress      string
	RegistrationStatus models.RegistrationStatus
	EligibleOnChain    *bool
}

func (s *Store) ApplyVoterUpdate(voterID uint, upd VoterUpdate) error {
	fields := map[string]interface{}{}
	if upd.ClearNonce {
		fields["auth_nonce"] = ""
	}
	if upd.WalletAddress != "" {
		fields["wallet_address"] = strings.ToLower(upd.WalletAddress)
	}
	if upd.RegistrationStatus != "" {
		fields["registration_status"] = upd.RegistrationStatus
	}
	if upd.EligibleOnChain != nil {
		fields["is_eligible_on_chain"] = *upd.EligibleOnChain
	}
	if len(fields) == 0 {
		return nil
	}
	return translate(s.db.Model(&models.Voter{}).Where("id = ?", voterID).
		Updates(fields).Error)
}

// User access

func (s *Store) FindOrCreateAdmin(email, name string) (*models.User, error) {
	var u models.User
	err := s.db.Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		u = models.User{Email: email, Name: name, Role: "admin"}
		err = s.db.Create(&u).Error
	}
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// Party access

func (s *Store) CreateParty(p *models.Party) error {
	return translate(s.db.Create(p).Error)
}

func (s *Store) CreatePartyMember(m *models.PartyMember) error {
	var party models.Party
	if err := s.db.First(&party, m.PartyID).Error; err != nil {
		return translate(err)
	}
	return translate(s.db.Create(m).Error)
}

func (s *Store) FindPartyMember(id uint) (*models.PartyMember, error) {
	var m models.PartyMember
	if err := s.db.First(&m, id).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// Election access

func (s *Store) CreateElection(e *models.Election) error {
	return translate(s.db.Create(e).Error)
}

func (s *Store) FindElection(id uint) (*models.Election, error) {
	var e models.Election
	if err := s.db.First(&e, id).Error; err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (s *Store) SetElectionStatus(id uint, status models.ElectionStatus) error {
	return translate(s.db.Model(&models.Election{}).Where("id = ?", id).
		Update("status", status).Error)
}

// FinalizeElection persists the terminal state of an election as a single
// update: status, serialized results and the winning candidate.
func (s *Store) FinalizeElection(id uint, results string, winnerID *uint) error {
	return translate(s.db.Model(&models.Election{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":               models.ElectionEnded,
			"results":              results,
			"winning_candidate_id": winnerID,
		}).Error)
}

// Post access

func (s *Store) CreatePost(p *models.Post) error {
	var e models.Election
	if err := s.db.First(&e, p.ElectionID).Error; err != nil {
		return translate(err)
	}
	return translate(s.db.Create(p).Error)
}

func (s *Store) FindPost(id uint) (*models.Post, error) {
	var p models.Post
	if err := s.db.First(&p, id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) PostsByElection(electionID uint) ([]models.Post, error) {
	var posts []models.Post
	if err := s.db.Where("election_id = ?", electionID).Order("id").Find(&posts).Error; err != nil {
		return nil, translate(err)
	}
	return posts, nil
}

// Candidate access

func (s *Store) CreateCandidate(c *models.Candidate) error {
	var p models.Post
	if err := s.db.First(&p, c.PostID).Error; err != nil {
		return translate(err)
	}
	return translate(s.db.Create(c).Error)
}

func (s *Store) FindCandidate(id uint) (*models.Candidate, error) {
	var c models.Candidate
	if err := s.db.First(&c, id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) CandidatesByPost(postID uint) ([]models.Candidate, error) {
	var candidates []models.Candidate
	if err := s.db.Where("post_id = ?", postID).Order("id").Find(&candidates).Error; err != nil {
		return nil, translate(err)
	}
	return candidates, nil
}

// CandidatesByElection returns all candidates across the election's posts
// in ascending candidate id order.
func (s *Store) CandidatesByElection(electionID uint) ([]models.Candidate, error) {
	var candidates []models.Candidate
	err := s.db.
		Joins("JOIN posts ON posts.id = candidates.post_id").
		Where("posts.election_id = ?", electionID).
		Order("candidates.id").
		Find(&candidates).Error
	if err != nil {
		return nil, translate(err)
	}
	return candidates, nil
}

// Vote audit trail

func (s *Store) HasVoteLog(electionID, postID uint, wallet string) (bool, error) {
	var count int64
	err := s.db.Model(&models.VoteLog{}).
		Where("election_id = ? AND post_id = ? AND voter_wallet = ?",
			electionID, postID, strings.ToLower(wallet)).
		Count(&count).Error
	if err != nil {
		return false, translate(err)
	}
	return count > 0, nil
}

func (s *Store) AppendVoteLog(vl *models.VoteLog) error {
	vl.VoterWallet = strings.ToLower(vl.VoterWallet)
	return translate(s.db.Create(vl).Error)
}

func (s *Store) AppendVoterReceipt(r *models.VoterReceipt) error {
	r.VoterWallet = strings.ToLower(r.VoterWallet)
	return translate(s.db.Create(r).Error)
}

func (s *Store) VoteLogsByElection(electionID uint) ([]models.VoteLog, error) {
	var logs []models.VoteLog
	if err := s.db.Where("election_id = ?", electionID).Order("id").Find(&logs).Error; err != nil {
		return nil, translate(err)
	}
	return logs, nil
}

func (s *Store) ReceiptsByWallet(electionID uint, wallet string) ([]models.VoterReceipt, error) {
	var receipts []models.VoterReceipt
	err := s.db.Where("election_id = ? AND voter_wallet = ?",
		electionID, strings.ToLower(wallet)).Order("id").Find(&receipts).Error
	if err != nil {
		return nil, translate(err)
	}
	return receipts, nil
}

// DemographicTally re-aggregates votes for an ended election from the
// audit trail joined with voter demographics. Gender is an exact match
// when non-empty; the age range is inclusive on both ends and applied
// only when filterAge is set, so a range of 0-0 still filters.
func (s *Store) DemographicTally(electionID uint, gender string, minAge, maxAge int, filterAge bool) (map[uint]int64, error) {
	rows := []struct {
		CandidateID uint
		Count       int64
	}{}

	q := s.db.Model(&models.VoteLog{}).
		Select("vote_logs.candidate_id AS candidate_id, COUNT(*) AS count").
		Joins("JOIN voters ON voters.wallet_address = vote_logs.voter_wallet").
		Where("vote_logs.election_id = ?", electionID)
	if gender != "" {
		q = q.Where("voters.gender = ?", gender)
	}
	if filterAge {
		q = q.Where("voters.age >= ? AND voters.age <= ?", minAge, maxAge)
	}

	if err := q.Group("vote_logs.candidate_id").Scan(&rows).Error; err != nil {
		return nil, translate(err)
	}

	tally := make(map[uint]int64, len(rows))
	for _, r := range rows {
		tally[r.CandidateID] = r.Count
	}
	return tally, nil
}
