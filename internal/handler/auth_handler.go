package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/luxclinic/sessiond/internal/domain"
	"github.com/luxclinic/sessiond/internal/session"
)

// AuthHandler exposes the session manager's auth actions over HTTP
type AuthHandler struct {
	sessions *session.Manager
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(sessions *session.Manager) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "email and password are required",
		})
	}

	if err := h.sessions.SignIn(c.Context(), req.Email, req.Password); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	// The profile load runs in the background; the client polls
	// GET /v1/session until loading settles.
	return c.JSON(fiber.Map{
		"message": "Signed in",
		"state":   h.sessions.Snapshot(),
	})
}

// SignUp handles POST /v1/auth/signup
func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var req session.SignUpInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Email == "" || req.Password == "" || req.OrganizationName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "email, password and organization_name are required",
		})
	}

	outcome, err := h.sessions.SignUp(c.Context(), req)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	message := "Account created"
	if outcome.ConfirmationRequired {
		message = "Account created. Check your email to confirm it."
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":               message,
		"confirmation_required": outcome.ConfirmationRequired,
		"organization":          outcome.Organization,
	})
}

// Logout handles POST /v1/auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.sessions.SignOut(c.Context()); err != nil {
		// Local state is already cleared; report the provider failure.
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"message": "Signed out",
	})
}

type resetRequest struct {
	Email string `json:"email"`
}

// ResetPassword handles POST /v1/auth/reset-password
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "email is required",
		})
	}

	if err := h.sessions.RequestPasswordReset(c.Context(), req.Email); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"message": "Recovery email sent",
	})
}

type updatePasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// UpdatePassword handles POST /v1/auth/password
func (h *AuthHandler) UpdatePassword(c *fiber.Ctx) error {
	var req updatePasswordRequest
	if err := c.BodyParser(&req); err != nil || req.NewPassword == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "new_password is required",
		})
	}

	if err := h.sessions.UpdatePassword(c.Context(), req.NewPassword); err != nil {
		if errors.Is(err, domain.ErrNoIdentity) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "No active session",
			})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"message": "Password updated",
	})
}
