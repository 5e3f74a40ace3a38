package server

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/luxclinic/sessiond/internal/config"
	"github.com/luxclinic/sessiond/internal/domain"
	"github.com/luxclinic/sessiond/internal/handler"
	"github.com/luxclinic/sessiond/internal/infrastructure/workflow"
	"github.com/luxclinic/sessiond/internal/middleware"
	"github.com/luxclinic/sessiond/internal/repository"
	"github.com/luxclinic/sessiond/internal/service"
	"github.com/luxclinic/sessiond/internal/session"
	"github.com/luxclinic/sessiond/internal/telemetry"
)

// AppDependencies holds the dependencies required to start the application
type AppDependencies struct {
	Config      *config.Config
	MongoDB     *mongo.Database
	RedisClient *redis.Client
	Provider    domain.IdentityProvider
	Accounts    service.AdminAccounts
}

// NewApp wires the repositories, starts the session manager, and
// returns the configured Fiber application. The returned manager must
// be closed on shutdown.
func NewApp(deps AppDependencies) (*fiber.App, *session.Manager, error) {
	// Initialize repositories
	profileRepo := repository.NewMongoProfileRepository(deps.MongoDB)
	orgRepo := repository.NewMongoOrganizationRepository(deps.MongoDB)
	registrar := repository.NewMongoRegistrar(deps.MongoDB)
	snapshotCache := repository.NewRedisSnapshotCache(deps.RedisClient)

	// S3 is optional; without it logo uploads fail at request time.
	var fileRepo domain.FileRepository
	if deps.Config.S3.Endpoint != "" {
		s3Repo, err := repository.NewSeaweedS3Repository(context.Background(), deps.Config.S3)
		if err != nil {
			log.Printf("Warning: Failed to initialize S3 repository: %v", err)
		} else {
			fileRepo = s3Repo
		}
	}

	var notifier service.RegistrationNotifier
	if deps.Config.Workflow.BaseURL != "" {
		notifier = workflow.NewClient(workflow.Config{
			BaseURL:   deps.Config.Workflow.BaseURL,
			AuthToken: deps.Config.Workflow.AuthToken,
		})
	}

	// Start the session manager
	sessions := session.NewManager(deps.Provider, profileRepo, orgRepo, snapshotCache, registrar, session.Options{
		LoadTimeout:      deps.Config.Session.LoadTimeout,
		MaxProfileAge:    deps.Config.Session.MaxProfileAge,
		ResetRedirectURL: deps.Config.Session.ResetRedirectURL,
	})
	if err := sessions.Start(context.Background()); err != nil {
		return nil, nil, err
	}

	adminService := service.NewAdminService(deps.Accounts, registrar, orgRepo, profileRepo, fileRepo, notifier)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(sessions)
	sessionHandler := handler.NewSessionHandler(sessions)
	adminHandler := handler.NewAdminHandler(adminService, deps.Config.Server.MaxUploadSizeMB)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "LuxClinic Session Gateway",
		BodyLimit:    int(deps.Config.Server.MaxUploadSizeMB * 1024 * 1024),
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Correlation-ID",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))
	if deps.Config.OTEL.Enabled {
		app.Use(telemetry.FiberMiddleware())
	}

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "luxclinic-sessiond",
		})
	})

	// API v1 routes
	v1 := app.Group("/v1")

	// Auth endpoints
	auth := v1.Group("/auth")
	auth.Post("/login", authHandler.Login)
	auth.Post("/signup", middleware.Idempotency(deps.RedisClient, 10*time.Minute), authHandler.SignUp)
	auth.Post("/logout", authHandler.Logout)
	auth.Post("/reset-password", authHandler.ResetPassword)
	auth.Post("/password", middleware.RequireProfile(sessions), authHandler.UpdatePassword)

	// Session state endpoints
	sess := v1.Group("/session")
	sess.Get("/", sessionHandler.Get)
	sess.Post("/reload", sessionHandler.Reload)
	sess.Post("/recover", sessionHandler.Recover)

	// Platform endpoints (super admin only)
	admin := v1.Group("/admin")
	if deps.Config.Auth.JWTSecret != "" {
		admin.Use(middleware.VerifySessionToken(deps.Config.Auth.JWTSecret, sessions))
	}
	admin.Use(middleware.RequireSuperAdmin(sessions))

	adminOrgs := admin.Group("/organizations")
	adminOrgs.Post("/", middleware.Idempotency(deps.RedisClient, 10*time.Minute), adminHandler.ProvisionOrganization)
	adminOrgs.Get("/", adminHandler.ListOrganizations)
	adminOrgs.Post("/:id/logo", adminHandler.UploadLogo)
	adminOrgs.Patch("/:id/active", adminHandler.SetActive)

	return app, sessions, nil
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	log.Printf("Error: %v", err)
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
