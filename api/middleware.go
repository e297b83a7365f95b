package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"votex-backend/service"
)

const claimsKey = "claims"

// requireRole verifies the bearer token and checks the role claim.
// Missing or malformed credentials are unauthorized; a valid token with
// the wrong role is forbidden.
func (s *Server) requireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return s.fail(c, service.E(service.CodeUnauthorized, "missing bearer token"))
		}

		claims, err := s.tokens.Verify(token)
		if err != nil {
			return s.fail(c, err)
		}
		if claims.Role != role {
			return s.fail(c, service.E(service.CodeForbidden, "insufficient role"))
		}

		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

func claimsFrom(c *fiber.Ctx) *service.Claims {
	claims, _ := c.Locals(claimsKey).(*service.Claims)
	return claims
}
