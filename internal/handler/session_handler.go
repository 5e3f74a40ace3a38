package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/luxclinic/sessiond/internal/session"
)

// SessionHandler exposes the current session state
type SessionHandler struct {
	sessions *session.Manager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *session.Manager) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
	}
}

// Get handles GET /v1/session
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	state := h.sessions.Snapshot()
	return c.JSON(fiber.Map{
		"loading":        state.Loading,
		"signed_in":      state.Identity != nil,
		"is_super_admin": state.IsSuperAdmin(),
		"identity":       state.Identity,
		"profile":        state.Profile,
		"organization":   state.Organization,
	})
}

// Reload handles POST /v1/session/reload. It refetches profile and
// organization synchronously and returns the refreshed state.
func (h *SessionHandler) Reload(c *fiber.Ctx) error {
	if err := h.sessions.Reload(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return h.Get(c)
}

type recoverRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Recover handles POST /v1/session/recover. The front-desk app lands
// here with the token pair from a password-recovery redirect.
func (h *SessionHandler) Recover(c *fiber.Ctx) error {
	var req recoverRequest
	if err := c.BodyParser(&req); err != nil || req.AccessToken == "" || req.RefreshToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "access_token and refresh_token are required",
		})
	}

	if err := h.sessions.RecoverSession(c.Context(), req.AccessToken, req.RefreshToken); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"message": "Session recovered",
	})
}
