package service

import (
	"context"
	"fmt"
	"log"
	"mime"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/luxclinic/sessiond/internal/domain"
	"github.com/luxclinic/sessiond/internal/infrastructure/workflow"
	"github.com/luxclinic/sessiond/internal/provider/gotrue"
	"github.com/luxclinic/sessiond/internal/session"
)

// AdminAccounts is the provider's admin surface: privileged account
// creation and the delete used to roll it back. Satisfied by
// *gotrue.Client, declared here so tests can mock it.
type AdminAccounts interface {
	AdminCreateUser(ctx context.Context, email, password string) (*gotrue.AdminUser, error)
	AdminDeleteUser(ctx context.Context, id string) error
}

// RegistrationNotifier fires the onboarding workflow after a clinic is
// created.
type RegistrationNotifier interface {
	NotifyRegistration(ctx context.Context, event workflow.RegistrationEvent) error
}

// AdminService implements the super-admin platform operations:
// provisioning clinics, listing them with member counts, and managing
// their logos and active state.
type AdminService struct {
	accounts  AdminAccounts
	registrar domain.Registrar
	orgRepo   domain.OrganizationRepository
	profiles  domain.ProfileRepository
	files     domain.FileRepository
	notifier  RegistrationNotifier
}

// NewAdminService creates a new admin service. notifier may be nil when
// no workflow instance is configured.
func NewAdminService(
	accounts AdminAccounts,
	registrar domain.Registrar,
	orgRepo domain.OrganizationRepository,
	profiles domain.ProfileRepository,
	files domain.FileRepository,
	notifier RegistrationNotifier,
) *AdminService {
	return &AdminService{
		accounts:  accounts,
		registrar: registrar,
		orgRepo:   orgRepo,
		profiles:  profiles,
		files:     files,
		notifier:  notifier,
	}
}

// ProvisionRequest contains the params for creating a clinic on behalf
// of its future admin.
type ProvisionRequest struct {
	Email            string
	Password         string
	FullName         string
	OrganizationName string
}

// OrganizationSummary is an organization enriched with its member count
// for the platform dashboard.
type OrganizationSummary struct {
	*domain.Organization
	MemberCount int64 `json:"member_count"`
}

// ProvisionOrganization creates the auth account, then the clinic and
// its admin profile. When the second step fails the auth account is
// deleted again so the email can be retried.
func (s *AdminService) ProvisionOrganization(ctx context.Context, actor *domain.Profile, req ProvisionRequest) (*domain.Organization, error) {
	if actor == nil || !actor.IsSuperAdmin {
		return nil, domain.ErrForbidden
	}
	if req.Email == "" || req.Password == "" || req.OrganizationName == "" {
		return nil, fmt.Errorf("email, password and organization name are required")
	}

	account, err := s.accounts.AdminCreateUser(ctx, req.Email, req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth account: %w", err)
	}

	org, err := s.registrar.RegisterUserWithOrganization(ctx, domain.Registration{
		UserID:           account.ID,
		FullName:         req.FullName,
		OrganizationName: req.OrganizationName,
		Slug:             session.UniqueSlug(req.OrganizationName),
	})
	if err != nil {
		// Roll back the auth account on a fresh deadline so the email
		// stays reusable even when the request context is gone.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if delErr := s.accounts.AdminDeleteUser(cleanupCtx, account.ID); delErr != nil {
			log.Printf("[Admin] rollback of auth account %s failed: %v", account.ID, delErr)
		}
		return nil, fmt.Errorf("failed to register organization: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyRegistration(ctx, workflow.RegistrationEvent{
			OrganizationID:   org.ID,
			OrganizationName: org.Name,
			Slug:             org.Slug,
			AdminEmail:       req.Email,
			Provisioned:      true,
		}); err != nil {
			log.Printf("[Admin] registration webhook failed: %v", err)
		}
	}

	return org, nil
}

// ListOrganizations returns all clinics with their member counts. The
// counts are fetched concurrently, one query per clinic.
func (s *AdminService) ListOrganizations(ctx context.Context, actor *domain.Profile) ([]*OrganizationSummary, error) {
	if actor == nil || !actor.IsSuperAdmin {
		return nil, domain.ErrForbidden
	}

	orgs, err := s.orgRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}

	summaries := make([]*OrganizationSummary, len(orgs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i, org := range orgs {
		g.Go(func() error {
			count, err := s.profiles.CountByOrganization(gCtx, org.ID)
			if err != nil {
				return fmt.Errorf("counting members of %s: %w", org.ID, err)
			}
			summaries[i] = &OrganizationSummary{Organization: org, MemberCount: count}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// UploadLogo stores a clinic logo and records its URL on the
// organization.
func (s *AdminService) UploadLogo(ctx context.Context, actor *domain.Profile, orgID string, data []byte, contentType string) (string, error) {
	if actor == nil || !actor.IsSuperAdmin {
		return "", domain.ErrForbidden
	}

	org, err := s.orgRepo.GetByID(ctx, orgID)
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("logos/%s-%s%s", orgID, ulid.Make().String(), extensionFor(contentType))
	url, err := s.files.Upload(ctx, data, filename, contentType)
	if err != nil {
		return "", fmt.Errorf("failed to upload logo: %w", err)
	}

	org.LogoURL = url
	if err := s.orgRepo.Update(ctx, org); err != nil {
		return "", fmt.Errorf("failed to record logo url: %w", err)
	}
	return url, nil
}

// SetOrganizationActive flips a clinic's active flag.
func (s *AdminService) SetOrganizationActive(ctx context.Context, actor *domain.Profile, orgID string, active bool) error {
	if actor == nil || !actor.IsSuperAdmin {
		return domain.ErrForbidden
	}

	org, err := s.orgRepo.GetByID(ctx, orgID)
	if err != nil {
		return err
	}
	org.IsActive = active
	return s.orgRepo.Update(ctx, org)
}

func extensionFor(contentType string) string {
	exts, err := mime.ExtensionsByType(contentType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
