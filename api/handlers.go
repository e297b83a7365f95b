package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"votex-backend/models"
	"votex-backend/service"
	"votex-backend/storage"
)

// Authentication

type challengeRequest struct {
	Email string `json:"email"`
}

type challengeResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleRequestChallenge(c *fiber.Ctx) error {
	var req challengeRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" {
		return s.fail(c, service.E(service.CodeBadRequest, "email is required"))
	}

	message, err := s.auth.RequestChallenge(c.Context(), req.Email)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(challengeResponse{Message: message})
}

type authenticateRequest struct {
	Email         string `json:"email"`
	WalletAddress string `json:"wallet_address"`
	Message       string `json:"message"`
	Signature     string `json:"signature"`
}

func (s *Server) handleAuthenticate(c *fiber.Ctx) error {
	var req authenticateRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, service.E(service.CodeBadRequest, "invalid request body"))
	}
	if req.Email == "" || req.WalletAddress == "" || req.Message == "" || req.Signature == "" {
		return s.fail(c, service.E(service.CodeBadRequest,
			"email, wallet_address, message and signature are all required"))
	}

	result, err := s.auth.Authenticate(c.Context(), req.Email, req.WalletAddress, req.Message, req.Signature)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(result)
}

// Voting

type castVoteRequest struct {
	ElectionID  uint `json:"election_id"`
	PostID      uint `json:"post_id"`
	CandidateID uint `json:"candidate_id"`
}

func (s *Server) handleCastVote(c *fiber.Ctx) error {
	var req castVoteRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, service.E(service.CodeBadRequest, "invalid request body"))
	}

	// The wallet comes from the verified token, never the body.
	claims := claimsFrom(c)
	result, err := s.coordinator.CastVote(c.Context(), service.CastVoteInput{
		ElectionID:  req.ElectionID,
		PostID:      req.PostID,
		CandidateID: req.CandidateID,
		VoterWallet: claims.WalletAddress,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (s *Server) handleVoterStatus(c *fiber.Ctx) error {
	electionID, err := c.ParamsInt("id")
	if err != nil || electionID <= 0 {
		return s.fail(c, service.E(service.CodeBadRequest, "invalid election id"))
	}

	claims := claimsFrom(c)
	status, err := s.coordinator.GetVoterElectionStatus(c.Context(), uint(electionID), claims.WalletAddress)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(status)
}

func (s *Server) handleGetElection(c *fiber.Ctx) error {
	electionID, err := c.ParamsInt("id")
	if err != nil || electionID <= 0 {
		return s.fail(c, service.E(service.CodeBadRequest, "invalid election id"))
	}

	election, err := s.store.FindElection(uint(electionID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.fail(c, service.E(service.CodeNotFound, "election %d not found", electionID))
		}
		return s.fail(c, err)
	}
	return c.JSON(election)
}

func (s *Server) handleListPosts(c *fiber.Ctx) error {
	electionID, err := c.ParamsInt("id")
	if err != nil || electionID <= 0 {
		return s.fail(c, service.E(service.CodeBadRequest, "invalid election id"))
	}

	posts, err := s.store.PostsByElection(uint(electionID))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(posts)
}

func (s *Server) handleListCandidates(c *fiber.Ctx) error {
	postID, err := c.ParamsInt("id")
	if err != nil || postID <= 0 {
		return s.fail(c, service.E(service.CodeBadRequest, "invalid post id"))
	}

	candidates, err := s.store.CandidatesByPost(uint(postID))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(candidates)
}

func (s *Server) handleElectionResults(c *fiber.Ctx) error {
	electionID, err := c.ParamsInt("id")
	if err != nil || electionID <= 0 {
		return s.fail(c, service.E(service.CodeBadRequest, "invalid election id"))
	}

	filter := service.ResultsFilter{
		Gender:   c.Query("gender"),
		AgeRange: c.Query("age_range"),
	}
	results, err := s.coordinator.GetElectionResults(c.Context(), uint(electionID), filter)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(results)
}

// Admin

type createElectionRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

func (s *Server) handleCreateElection(c *fiber.Ctx) error {
	var req createElectionRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, service.E(service.CodeBadRequest, "invalid request body"))
	}

	election := &models.Election{
		Title:       req.Title,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	}
	if err := s.registrar.CreateElection(c.Context(), election); err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(election)
}

func (s *Server) handleStartElection(c *fiber.Ctx) error {
	electionID, err := c.ParamsInt("id")
	if err != nil || electionID <= 0 {
		return s.fail(c, service.E(service.CodeBadRequest, "invalid election id"))
	}

	election, err := s.coordinator.StartElection(c.Context(), uint(electionID))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(election)
}

func (s *Server) handleEndElection(c *fiber.Ctx) error {
	electionID, err := c.ParamsInt("id")
	if err != nil || electionID <= 0 {
		return s.fail(c, service.E(service.CodeBadRequest, "invalid election id"))
	}

	election, err := s.coordinator.EndElection(c.Context(), uint(electionID))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(election)
}

type createPostRequest struct {
	ElectionID       uint   `json:"election_id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	MaxVotesPerVoter int    `json:"max_votes_per_voter"`
}

func (s *Server) handleCreatePost(c *fiber.Ctx) error {
	var req createPostRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, service.E(service.CodeBadRequest, "invalid request body"))
	}

	post := &models.Post{
		ElectionID:       req.ElectionID,
		Name:             req.Name,
		Description:      req.Description,
		MaxVotesPerVoter: req.MaxVotesPerVoter,
	}
	if err := s.registrar.CreatePost(c.Context(), post); err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

type createCandidateRequest struct {
	PostID                uint   `json:"post_id"`
	PartyMemberID         uint   `json:"party_member_id"`
	Name                  string `json:"name"`
	BlockchainCandidateID string `json:"blockchain_candidate_id"`
}

func (s *Server) handleCreateCandidate(c *fiber.Ctx) error {
	var req createCandidateRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, service.E(service.CodeBadRequest, "invalid request body"))
	}

	candidate := &models.Candidate{
		PostID:                req.PostID,
		PartyMemberID:         req.PartyMemberID,
		Name:                  req.Name,
		BlockchainCandidateID: req.BlockchainCandidateID,
	}
	if err := s.registrar.CreateCandidate(c.Context(), candidate); err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(candidate)
}

type createPartyRequest struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

func (s *Server) handleCreateParty(c *fiber.Ctx) error {
	var req createPartyRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, service.E(service.CodeBadRequest, "invalid request body"))
	}

	party := &models.Party{Name: req.Name, Symbol: req.Symbol}
	if err := s.registrar.CreateParty(party); err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(party)
}

type createPartyMemberRequest struct {
	PartyID uint   `json:"party_id"`
	Name    string `json:"name"`
}

func (s *Server) handleCreatePartyMember(c *fiber.Ctx) error {
	var req createPartyMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, service.E(service.CodeBadRequest, "invalid request body"))
	}

	member := &models.PartyMember{PartyID: req.PartyID, Name: req.Name}
	if err := s.registrar.CreatePartyMember(member); err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(member)
}

type registerVoterRequest struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Age        int    `json:"age"`
	Gender     string `json:"gender"`
	NationalID string `json:"national_id"`
}

func (s *Server) handleRegisterVoter(c *fiber.Ctx) error {
	var req registerVoterRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, service.E(service.CodeBadRequest, "invalid request body"))
	}

	voter := &models.Voter{
		Email:      req.Email,
		Name:       req.Name,
		Age:        req.Age,
		Gender:     req.Gender,
		NationalID: req.NationalID,
	}
	if err := s.registrar.RegisterVoter(voter); err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(voter)
}
