package handler

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/luxclinic/sessiond/internal/domain"
	"github.com/luxclinic/sessiond/internal/middleware"
	"github.com/luxclinic/sessiond/internal/service"
)

// AdminHandler exposes the super-admin platform operations
type AdminHandler struct {
	admin           *service.AdminService
	maxUploadSizeMB int64
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(admin *service.AdminService, maxUploadSizeMB int64) *AdminHandler {
	return &AdminHandler{
		admin:           admin,
		maxUploadSizeMB: maxUploadSizeMB,
	}
}

type provisionRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	FullName         string `json:"full_name"`
	OrganizationName string `json:"organization_name"`
}

// ProvisionOrganization handles POST /v1/admin/organizations
func (h *AdminHandler) ProvisionOrganization(c *fiber.Ctx) error {
	var req provisionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	org, err := h.admin.ProvisionOrganization(c.Context(), middleware.ProfileFromContext(c), service.ProvisionRequest{
		Email:            req.Email,
		Password:         req.Password,
		FullName:         req.FullName,
		OrganizationName: req.OrganizationName,
	})
	if err != nil {
		return adminError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":      "Organization provisioned",
		"organization": org,
	})
}

// ListOrganizations handles GET /v1/admin/organizations
func (h *AdminHandler) ListOrganizations(c *fiber.Ctx) error {
	summaries, err := h.admin.ListOrganizations(c.Context(), middleware.ProfileFromContext(c))
	if err != nil {
		return adminError(c, err)
	}
	return c.JSON(fiber.Map{
		"organizations": summaries,
	})
}

// UploadLogo handles POST /v1/admin/organizations/:id/logo
func (h *AdminHandler) UploadLogo(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("logo")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "logo file is required",
		})
	}
	if fileHeader.Size > h.maxUploadSizeMB*1024*1024 {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "logo exceeds the upload size limit",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to read logo file",
		})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to read logo file",
		})
	}

	url, err := h.admin.UploadLogo(c.Context(), middleware.ProfileFromContext(c), c.Params("id"), data, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		return adminError(c, err)
	}

	return c.JSON(fiber.Map{
		"logo_url": url,
	})
}

type activeRequest struct {
	IsActive bool `json:"is_active"`
}

// SetActive handles PATCH /v1/admin/organizations/:id/active
func (h *AdminHandler) SetActive(c *fiber.Ctx) error {
	var req activeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.admin.SetOrganizationActive(c.Context(), middleware.ProfileFromContext(c), c.Params("id"), req.IsActive); err != nil {
		return adminError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Organization updated",
	})
}

func adminError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Insufficient permissions",
		})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Organization not found",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
