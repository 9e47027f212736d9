package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"

	"automationstation.io/internal/audit"
	"automationstation.io/internal/auth"
	"automationstation.io/internal/config"
	"automationstation.io/internal/notify"
	"automationstation.io/internal/obs"
)

// ReadyProbe checks downstream readiness (database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer of the portal backend.
type API struct {
	mux        *http.ServeMux
	cfg        *config.Config
	store      auth.Store
	tokens     *auth.Tokens
	local      *auth.LocalStrategy
	saml       *auth.SAMLProcessor // nil when SSO is disabled
	recorder   *audit.Recorder
	slack      *notify.Slack // nil when the relay is disabled
	readyProbe ReadyProbe
	version    string
	log        *zap.Logger
}

// Options bundles the collaborators New needs.
type Options struct {
	Config     *config.Config
	Store      auth.Store
	Tokens     *auth.Tokens
	SAML       *auth.SAMLProcessor
	Recorder   *audit.Recorder
	Slack      *notify.Slack
	ReadyProbe ReadyProbe
	Version    string
	Logger     *zap.Logger
}

func New(opts Options) *API {
	log := opts.Logger
	if log == nil {
		log = obs.Logger()
	}
	a := &API{
		mux:        http.NewServeMux(),
		cfg:        opts.Config,
		store:      opts.Store,
		tokens:     opts.Tokens,
		local:      auth.NewLocalStrategy(opts.Store),
		saml:       opts.SAML,
		recorder:   opts.Recorder,
		slack:      opts.Slack,
		readyProbe: opts.ReadyProbe,
		version:    opts.Version,
		log:        log,
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReady)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/api/auth/register", a.handleRegister)
	a.mux.HandleFunc("/api/auth/login", a.handleLogin)
	a.mux.HandleFunc("/api/auth/sso/", a.handleSSO)
	a.mux.HandleFunc("/api/auth/saml/metadata", a.handleSAMLMetadata)
	a.mux.HandleFunc("/api/auth/me", a.requireAuth(a.handleMe))
	a.mux.HandleFunc("/api/auth/refresh", a.requireAuth(a.handleRefresh))
	a.mux.HandleFunc("/api/auth/logout", a.requireAuth(a.handleLogout))

	a.mux.HandleFunc("/api/users/profile", a.requireAuth(a.handleProfile))

	a.mux.HandleFunc("/api/admin/users", a.requireRole("admin", a.handleAdminUsers))
	a.mux.HandleFunc("/api/admin/users/", a.requireRole("admin", a.handleAdminUserScoped))
	a.mux.HandleFunc("/api/admin/audit", a.requireRole("admin", a.handleAuditList))

	a.mux.HandleFunc("/api/config", a.requireAuth(a.handleConfigList))
	a.mux.HandleFunc("/api/config/", a.requireRole("admin", a.handleConfigUpdate))

	a.mux.HandleFunc("/api/slack/notify", a.requireAuth(a.handleSlackNotify))
	a.mux.HandleFunc("/api/slack/status", a.requireAuth(a.handleSlackStatus))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "route not found")
	})

	return a
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	if a.cfg != nil {
		h = RateLimit(h, a.cfg.RateLimitMax, a.cfg.RateLimitWindow)
		h = CORS(h, a.cfg.AllowedOrigins)
	}
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "automation-station",
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
