package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"directory-api/internal/address"
	"directory-api/internal/auth"
	"directory-api/internal/catalog"
	"directory-api/internal/codestore"
	"directory-api/internal/contact"
	"directory-api/internal/document"
	"directory-api/internal/httpx"
	"directory-api/internal/mail"
	"directory-api/internal/maintenance"
	"directory-api/internal/observability"
	"directory-api/internal/person"
	"directory-api/internal/proceeding"
	"directory-api/internal/recovery"
	"directory-api/internal/session"
	"directory-api/internal/storage"
)

// components holds the wired services and handlers behind the router.
type components struct {
	cfg     Config
	db      *sql.DB
	redis   *redis.Client
	metrics *observability.Metrics

	authService    *auth.Service
	authHandler    *auth.Handler
	loginLimiter   *auth.LoginRateLimiter
	sessionService *session.Service
	sessionHandler *session.Handler
	personHandler  *person.Handler
	catalogHandler *catalog.Handler
	addressHandler *address.Handler
	contactHandler *contact.Handler
	proceedings    *proceeding.Handler
	documents      *document.Handler
	recovery       *recovery.Handler
	cleanup        *maintenance.CleanupHandler
	localFiles     *storage.MemoryStore
}

func assemble(ctx context.Context, cfg Config, database *sql.DB, redisClient *redis.Client, logger *observability.Logger) (*components, error) {
	metrics := observability.NewMetrics()

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, cfg.JWTSecret)
	authService.WithSecurityConfig(cfg.LoginMaxAttempts, cfg.LoginLockDuration, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	var limitStore auth.IPLimitStore = authRepo
	if redisClient != nil {
		limitStore = auth.NewRedisIPLimitStore(redisClient)
	}

	sessionService := session.NewService(session.NewRepository(database), cfg.SessionTTL, metrics)

	var images storage.ImageUploader
	if cfg.CloudinaryURL != "" {
		cloudinary, err := storage.NewCloudinary(cfg.CloudinaryURL)
		if err != nil {
			return nil, fmt.Errorf("init cloudinary: %w", err)
		}
		images = cloudinary
	}
	personService := person.NewService(person.NewRepository(database), sessionService, images, metrics, logger)

	var (
		codes  codestore.Store
		pruner maintenance.CodePruner
	)
	if redisClient != nil {
		codes = codestore.NewRedisStore(redisClient)
	} else {
		memory := codestore.NewMemoryStore()
		codes, pruner = memory, memory
	}
	issuer := codestore.NewIssuer(codes, cfg.ResetCodeTTL, metrics)

	var mailer mail.Mailer
	if cfg.SES.FromEmail != "" {
		ses, err := mail.NewSESMailer(ctx, cfg.SES)
		if err != nil {
			return nil, fmt.Errorf("init ses: %w", err)
		}
		mailer = ses
	} else {
		mailer = mail.NewLogMailer(logger, cfg.MailLogBodies)
	}
	composer, err := mail.NewComposer()
	if err != nil {
		return nil, fmt.Errorf("load mail templates: %w", err)
	}

	var (
		objects    storage.ObjectStore
		localFiles *storage.MemoryStore
	)
	if cfg.S3.Bucket != "" {
		s3Store, err := storage.NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("init s3: %w", err)
		}
		objects = s3Store
	} else {
		localFiles = storage.NewMemoryStore(cfg.LocalFilesURL)
		objects = localFiles
	}

	catalogRepo := catalog.NewRepository(database)
	proceedingRepo := proceeding.NewRepository(database)

	documentService := document.NewService(document.NewRepository(database), catalogRepo, proceedingRepo, objects, metrics, logger)
	documentService.WithURLTTL(cfg.DocumentURLTTL)

	recoveryService := recovery.NewService(personService, issuer, mailer, composer, logger)

	return &components{
		cfg:     cfg,
		db:      database,
		redis:   redisClient,
		metrics: metrics,

		authService:    authService,
		authHandler:    auth.NewHandler(authService),
		loginLimiter:   auth.NewLoginRateLimiter(limitStore, cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow).WithMetrics(metrics.RateLimited),
		sessionService: sessionService,
		sessionHandler: session.NewHandler(sessionService, personService, cfg.SecureCookies()),
		personHandler:  person.NewHandler(personService),
		catalogHandler: catalog.NewHandler(catalogRepo),
		addressHandler: address.NewHandler(address.NewRepository(database), catalogRepo),
		contactHandler: contact.NewHandler(contact.NewRepository(database), catalogRepo),
		proceedings:    proceeding.NewHandler(proceedingRepo),
		documents:      document.NewHandler(documentService),
		recovery:       recovery.NewHandler(recoveryService, recovery.NewRepository(database)),
		cleanup:        maintenance.NewCleanupHandler(authRepo, sessionService, pruner, logger, cfg.Cleanup),
		localFiles:     localFiles,
	}, nil
}

func (c *components) routes() http.Handler {
	r := chi.NewRouter()
	if len(c.cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   c.cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", session.HeaderName},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(observability.MetricsMiddleware(c.metrics))

	r.Get("/health", c.health)
	r.Method(http.MethodGet, "/metrics", c.metrics.Handler())
	if c.localFiles != nil {
		r.Get("/files/*", serveLocalFile(c.localFiles))
	}

	requireUser := auth.Middleware(c.cfg.JWTSecret)
	requireStaff := auth.RequireRole(auth.RoleAdmin, auth.RoleStaff)
	requireAdmin := auth.RequireRole(auth.RoleAdmin)

	r.Route("/api", func(r chi.Router) {
		r.With(c.loginLimiter.Middleware).Post("/auth/login", c.authHandler.Login)
		r.Post("/auth/refresh", c.authHandler.Refresh)
		r.Post("/auth/logout", c.authHandler.Logout)
		r.Get("/internal/maintenance/cleanup", c.cleanup.Handle)
		r.Post("/internal/maintenance/cleanup", c.cleanup.Handle)

		r.Route("/catalogs", func(r chi.Router) {
			r.Get("/countries", c.catalogHandler.ListCountries)
			r.Get("/countries/{countryID}/states", c.catalogHandler.ListStates)
			r.Get("/states/{stateID}/municipalities", c.catalogHandler.ListMunicipalities)
			r.Get("/municipalities/{municipalityID}/colonies", c.catalogHandler.ListColonies)
			r.Get("/contact-types", c.catalogHandler.ListContactTypes)
			r.Get("/document-types", c.catalogHandler.ListDocumentTypes)

			r.Group(func(r chi.Router) {
				r.Use(requireUser, requireAdmin)
				r.Post("/countries", c.catalogHandler.CreateCountry)
				r.Post("/countries/{countryID}/states", c.catalogHandler.CreateState)
				r.Post("/states/{stateID}/municipalities", c.catalogHandler.CreateMunicipality)
				r.Post("/municipalities/{municipalityID}/colonies", c.catalogHandler.CreateColony)
				r.Post("/contact-types", c.catalogHandler.CreateContactType)
				r.Post("/document-types", c.catalogHandler.CreateDocumentType)
			})
		})

		r.With(c.loginLimiter.Scoped("person_login")).Post("/people/login", c.sessionHandler.Login)
		r.Post("/people/register", c.personHandler.Register)

		r.With(c.loginLimiter.Scoped("password_reset")).Post("/recovery/password", c.recovery.RequestPasswordReset)
		r.With(c.loginLimiter.Scoped("reset_code")).Post("/recovery/password/validate", c.recovery.ValidateResetCode)
		r.With(c.loginLimiter.Scoped("reset_code")).Post("/recovery/password/reset", c.recovery.ResetPassword)
		r.With(c.loginLimiter.Scoped("recovery_request")).Post("/recovery/requests", c.recovery.CreateRequest)

		r.Route("/me", func(r chi.Router) {
			r.Use(session.Middleware(c.sessionService))
			r.Get("/", c.personHandler.Get)
			r.Put("/", c.personHandler.Update)
			r.Delete("/", c.personHandler.Delete)
			r.Put("/password", c.personHandler.ChangePassword)
			r.Put("/photo", c.personHandler.UploadPhoto)
			r.Post("/logout", c.sessionHandler.Logout)
			r.Get("/sessions", c.sessionHandler.List)
			r.Delete("/sessions/{sessionID}", c.sessionHandler.RevokeOne)
			r.Post("/sessions/revoke-others", c.sessionHandler.RevokeOthers)
			r.Post("/email", c.recovery.RequestEmailChange)
			r.Post("/email/confirm", c.recovery.ConfirmEmailChange)
			c.mountPersonResources(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/auth/me", c.authHandler.Me)
			r.With(requireAdmin).Get("/auth/users", c.authHandler.ListUsers)
			r.With(requireAdmin).Post("/auth/users", c.authHandler.CreateUser)

			r.Group(func(r chi.Router) {
				r.Use(requireStaff)
				r.Get("/people", c.personHandler.List)
				r.Post("/people", c.personHandler.Register)
				r.Route("/people/{personID}", func(r chi.Router) {
					r.Use(c.personHandler.Scope)
					r.Get("/", c.personHandler.Get)
					r.Put("/", c.personHandler.Update)
					r.Delete("/", c.personHandler.Delete)
					r.Put("/photo", c.personHandler.UploadPhoto)
					r.Get("/bans", c.personHandler.BanHistory)
					r.With(requireAdmin).Post("/ban", c.personHandler.Ban)
					r.With(requireAdmin).Post("/unban", c.personHandler.Unban)
					c.mountPersonResources(r)
				})

				r.Get("/recovery/requests", c.recovery.ListRequests)
				r.Get("/recovery/requests/{requestID}", c.recovery.GetRequest)
				r.Post("/recovery/requests/{requestID}/resolve", c.recovery.ResolveRequest)
				r.With(requireAdmin).Delete("/recovery/requests/{requestID}", c.recovery.DeleteRequest)
			})
		})
	})

	return r
}

// mountPersonResources registers the routes shared by /me and staff access
// to /people/{personID}. The person id comes from the request context.
func (c *components) mountPersonResources(r chi.Router) {
	r.Get("/addresses", c.addressHandler.List)
	r.Post("/addresses", c.addressHandler.Create)
	r.Get("/addresses/{addressID}", c.addressHandler.Get)
	r.Put("/addresses/{addressID}", c.addressHandler.Update)
	r.Delete("/addresses/{addressID}", c.addressHandler.Delete)

	r.Get("/contacts", c.contactHandler.List)
	r.Post("/contacts", c.contactHandler.Create)
	r.Get("/contacts/{contactID}", c.contactHandler.Get)
	r.Put("/contacts/{contactID}", c.contactHandler.Update)
	r.Delete("/contacts/{contactID}", c.contactHandler.Delete)

	r.Get("/proceedings", c.proceedings.List)
	r.Post("/proceedings", c.proceedings.Create)
	r.Get("/proceedings/{proceedingID}", c.proceedings.Get)
	r.Put("/proceedings/{proceedingID}", c.proceedings.Update)
	r.Delete("/proceedings/{proceedingID}", c.proceedings.Delete)
	r.Get("/proceedings/{proceedingID}/documents", c.documents.ListByProceeding)

	r.Get("/documents", c.documents.List)
	r.Post("/documents", c.documents.Upload)
	r.Get("/documents/{documentID}", c.documents.Get)
	r.Delete("/documents/{documentID}", c.documents.Delete)
}

func (c *components) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{"database": "ok"}
	if err := c.db.PingContext(ctx); err != nil {
		status = http.StatusServiceUnavailable
		checks["database"] = "down"
	}
	if c.redis != nil {
		checks["redis"] = "ok"
		if err := c.redis.Ping(ctx).Err(); err != nil {
			status = http.StatusServiceUnavailable
			checks["redis"] = "down"
		}
	}

	body := map[string]any{"status": "ok", "checks": checks, "time": time.Now().UTC().Format(time.RFC3339)}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	httpx.WriteJSON(w, status, body)
}

// serveLocalFile streams objects held by the in-memory store so presigned
// download URLs resolve during local development.
func serveLocalFile(store *storage.MemoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := url.PathUnescape(chi.URLParam(r, "*"))
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid file key")
			return
		}
		data, contentType, ok := store.Get(key)
		if !ok {
			httpx.WriteError(w, http.StatusNotFound, "file not found")
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
