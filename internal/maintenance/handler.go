package maintenance

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"directory-api/internal/auth"
	"directory-api/internal/httpx"
	"directory-api/internal/observability"
)

type AuthCleaner interface {
	CleanupStaleAuthData(ctx context.Context, refreshRetention, loginAttemptRetention time.Duration, batchSize int) (auth.CleanupResult, error)
}

type SessionPurger interface {
	PurgeExpired(ctx context.Context, batchSize int) (int64, error)
}

// CodePruner drops expired codes from an in-process code store.
type CodePruner interface {
	Prune() int
}

type Result struct {
	Auth            auth.CleanupResult `json:"auth"`
	DeletedSessions int64              `json:"deleted_sessions"`
	PrunedCodes     int                `json:"pruned_codes"`
}

type CleanupHandler struct {
	auth                  AuthCleaner
	sessions              SessionPurger
	codes                 CodePruner
	logger                *observability.Logger
	cronSecret            string
	refreshRetention      time.Duration
	loginAttemptRetention time.Duration
	batchSize             int
}

type Options struct {
	CronSecret            string
	RefreshRetention      time.Duration
	LoginAttemptRetention time.Duration
	BatchSize             int
}

// NewCleanupHandler builds the cron endpoint. codes may be nil when the code
// store expires entries on its own.
func NewCleanupHandler(authRepo AuthCleaner, sessions SessionPurger, codes CodePruner, logger *observability.Logger, opts Options) *CleanupHandler {
	return &CleanupHandler{
		auth:                  authRepo,
		sessions:              sessions,
		codes:                 codes,
		logger:                logger,
		cronSecret:            strings.TrimSpace(opts.CronSecret),
		refreshRetention:      opts.RefreshRetention,
		loginAttemptRetention: opts.LoginAttemptRetention,
		batchSize:             opts.BatchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		httpx.WriteError(w, http.StatusNotFound, "not found")
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") ||
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(h.cronSecret)) != 1 {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := h.run(r.Context())
	if err != nil {
		observability.CaptureError(h.logger, "cleanup_failed", err, nil)
		httpx.WriteError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}

	h.logger.Info("cleanup_completed", map[string]any{
		"deleted_refresh_tokens": result.Auth.DeletedRefreshTokens,
		"deleted_login_attempts": result.Auth.DeletedLoginAttempts,
		"deleted_ip_limits":      result.Auth.DeletedIPLimits,
		"deleted_sessions":       result.DeletedSessions,
		"pruned_codes":           result.PrunedCodes,
	})

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func (h *CleanupHandler) run(ctx context.Context) (Result, error) {
	var result Result
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		result.Auth, err = h.auth.CleanupStaleAuthData(ctx, h.refreshRetention, h.loginAttemptRetention, h.batchSize)
		return err
	})
	g.Go(func() error {
		var err error
		result.DeletedSessions, err = h.sessions.PurgeExpired(ctx, h.batchSize)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if h.codes != nil {
		result.PrunedCodes = h.codes.Prune()
	}
	return result, nil
}
