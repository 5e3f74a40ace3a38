package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/luxclinic/sessiond/internal/domain"
	"github.com/luxclinic/sessiond/internal/session"
)

// Context keys for storing user info
const (
	UserIDKey  = "userID"
	EmailKey   = "email"
	ProfileKey = "profile"
)

// VerifySessionToken validates a provider access token and checks that
// it belongs to the identity the daemon currently holds. The daemon
// serves one workstation; a token for any other subject is rejected.
func VerifySessionToken(jwtSecret string, sessions *session.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization token",
			})
		}

		// Extract token (format: "Bearer <token>")
		tokenString := authHeader
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenString = authHeader[7:]
		}

		token, err := jwt.ParseWithClaims(tokenString, &domain.AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
			}
			return []byte(jwtSecret), nil
		})
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		claims, ok := token.Claims.(*domain.AccessClaims)
		if !ok || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token claims",
			})
		}

		ident := sessions.Identity()
		if ident == nil || ident.ID != claims.Subject {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Token does not match the active session",
			})
		}

		c.Locals(UserIDKey, claims.Subject)
		c.Locals(EmailKey, claims.Email)

		return c.Next()
	}
}

// RequireProfile ensures the session manager has finished loading a
// profile and stores it in the request context.
func RequireProfile(sessions *session.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		state := sessions.Snapshot()
		if state.Profile == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "No active session",
			})
		}
		c.Locals(ProfileKey, state.Profile)
		return c.Next()
	}
}

// RequireSuperAdmin restricts a route to the platform super admin.
func RequireSuperAdmin(sessions *session.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		state := sessions.Snapshot()
		if state.Profile == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "No active session",
			})
		}
		if !state.Profile.IsSuperAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient permissions",
			})
		}
		c.Locals(ProfileKey, state.Profile)
		return c.Next()
	}
}

// ProfileFromContext returns the profile stored by RequireProfile or
// RequireSuperAdmin.
func ProfileFromContext(c *fiber.Ctx) *domain.Profile {
	profile, _ := c.Locals(ProfileKey).(*domain.Profile)
	return profile
}
