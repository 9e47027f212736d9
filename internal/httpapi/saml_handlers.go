package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"automationstation.io/internal/audit"
	"automationstation.io/internal/auth"
	"automationstation.io/internal/obs"
)

// handleSSO serves /api/auth/sso/{provider} and
// /api/auth/sso/{provider}/callback.
func (a *API) handleSSO(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/auth/sso/"), "/")
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		a.handleSSOInitiate(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "callback":
		a.handleSSOCallback(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, codeNotFound, "route not found")
	}
}

func (a *API) handleSSOInitiate(w http.ResponseWriter, r *http.Request, provider string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.saml == nil || provider != a.saml.Provider() {
		writeError(w, r, http.StatusBadRequest, codeSSODisabled, "SSO is not enabled")
		return
	}
	redirectURL, err := a.saml.Initiate(w)
	if err != nil {
		a.log.Error("sso initiation failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "failed to start SSO login")
		return
	}
	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

func (a *API) handleSSOCallback(w http.ResponseWriter, r *http.Request, provider string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.saml == nil || provider != a.saml.Provider() {
		writeError(w, r, http.StatusBadRequest, codeSSODisabled, "SSO is not enabled")
		return
	}
	http.SetCookie(w, auth.ExpireRelayCookie(a.saml.SecureCookies()))

	user, _, err := a.saml.Exchange(r.Context(), r)
	if err != nil {
		obs.ObserveLogin("saml", false)
		reason := "sso_failed"
		if errors.Is(err, auth.ErrMissingEmail) {
			reason = "missing_email"
		}
		a.log.Warn("sso callback rejected", zap.Error(err))
		http.Redirect(w, r, a.loginRedirect(reason), http.StatusFound)
		return
	}

	token, _, err := a.tokens.Issue(user)
	if err != nil {
		obs.ObserveLogin("saml", false)
		a.log.Error("sso token issuance failed", zap.Error(err))
		http.Redirect(w, r, a.loginRedirect("sso_failed"), http.StatusFound)
		return
	}

	obs.ObserveLogin("saml", true)
	a.recorder.RecordRequest(r, user.ID, audit.ActionSSOLogin, "auth", "",
		a.saml.Provider()+" SSO login")

	target := strings.TrimRight(a.cfg.FrontendURL, "/") + "/auth/callback?token=" + url.QueryEscape(token)
	http.Redirect(w, r, target, http.StatusFound)
}

func (a *API) handleSAMLMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.saml == nil {
		writeError(w, r, http.StatusBadRequest, codeSSODisabled, "SAML is not configured")
		return
	}
	metadata, err := a.saml.Metadata()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, codeStoreFailure, "failed to generate metadata")
		return
	}
	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	_, _ = w.Write(metadata)
}

func (a *API) loginRedirect(reason string) string {
	loginURL := a.cfg.LoginURL
	if loginURL == "" {
		loginURL = strings.TrimRight(a.cfg.FrontendURL, "/") + "/login"
	}
	sep := "?"
	if strings.Contains(loginURL, "?") {
		sep = "&"
	}
	return loginURL + sep + "error=" + url.QueryEscape(reason)
}
