package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	"votex-backend/service"
	"votex-backend/storage"
)

// Server wires the HTTP surface to the services. Handlers stay thin:
// decode, delegate, map the error taxonomy onto status codes.
type Server struct {
	app         *fiber.App
	auth        *service.AuthService
	coordinator *service.VoteCoordinator
	registrar   *service.Registrar
	tokens      *service.TokenService
	store       *storage.Store
	log         *zap.Logger
}

func NewServer(
	auth *service.AuthService,
	coordinator *service.VoteCoordinator,
	registrar *service.Registrar,
	tokens *service.TokenService,
	store *storage.Store,
	log *zap.Logger,
) *Server {
	s := &Server{
		app:         fiber.New(fiber.Config{DisableStartupMessage: true}),
		auth:        auth,
		coordinator: coordinator,
		registrar:   registrar,
		tokens:      tokens,
		store:       store,
		log:         log.Named("api"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Use(cors.New())

	api := s.app.Group("/api")

	// Wallet linking, open to anyone holding a registered email.
	api.Post("/auth/challenge", s.handleRequestChallenge)
	api.Post("/auth/login", s.handleAuthenticate)

	// Voter surface.
	api.Post("/votes", s.requireRole(service.RoleVoter), s.handleCastVote)
	api.Get("/elections/:id/my-status", s.requireRole(service.RoleVoter), s.handleVoterStatus)

	// Election metadata and results are public.
	api.Get("/elections/:id", s.handleGetElection)
	api.Get("/elections/:id/posts", s.handleListPosts)
	api.Get("/posts/:id/candidates", s.handleListCandidates)
	api.Get("/elections/:id/results", s.handleElectionResults)

	// Admin surface.
	admin := api.Group("/admin", s.requireRole(service.RoleAdmin))
	admin.Post("/elections", s.handleCreateElection)
	admin.Post("/elections/:id/start", s.handleStartElection)
	admin.Post("/elections/:id/end", s.handleEndElection)
	admin.Post("/posts", s.handleCreatePost)
	admin.Post("/candidates", s.handleCreateCandidate)
	admin.Post("/parties", s.handleCreateParty)
	admin.Post("/party-members", s.handleCreatePartyMember)
	admin.Post("/voters", s.handleRegisterVoter)
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(code service.Code) int {
	switch code {
	case service.CodeBadRequest:
		return fiber.StatusBadRequest
	case service.CodeUnauthorized, service.CodeInvalidChallenge, service.CodeSignatureMismatch:
		return fiber.StatusUnauthorized
	case service.CodeForbidden:
		return fiber.StatusForbidden
	case service.CodeNotFound:
		return fiber.StatusNotFound
	case service.CodeConflict, service.CodeAlreadyVoted,
		service.CodeInvalidState, service.CodeInvalidTransition:
		return fiber.StatusConflict
	case service.CodeLedgerTimeout:
		return fiber.StatusGatewayTimeout
	case service.CodeLedgerSubmission:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

type errorResponse struct {
	Error           string `json:"error"`
	Code            string `json:"code"`
	TransactionHash string `json:"transaction_hash,omitempty"`
}

// fail renders a taxonomy error. Internal causes are logged, not leaked;
// a transaction hash attached to the error is included so the client can
// verify the ledger state independently after a partial failure.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	code := service.CodeOf(err)
	status := statusFor(code)

	resp := errorResponse{Code: string(code), TransactionHash: service.TxHashOf(err)}
	var se *service.Error
	// Partial-completion errors carry a transaction hash; surface their
	// message so the caller knows which transaction to check.
	if errors.As(err, &se) && (status < fiber.StatusInternalServerError || resp.TransactionHash != "") {
		resp.Error = se.Message
	} else {
		resp.Error = "internal error"
	}
	if status >= fiber.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}

	return c.Status(status).JSON(resp)
}
