package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crewjam/saml"
)

const relayCookieName = "station_saml_relay"

// Attribute URIs tried when the assertion does not carry friendly names.
// Order matters: it is the documented fallback order.
var (
	emailAttributes = []string{
		"email", "mail", "emailaddress",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress",
	}
	displayNameAttributes = []string{
		"displayName", "name",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name",
	}
	firstNameAttributes = []string{
		"firstName", "givenName",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/givenname",
	}
	lastNameAttributes = []string{
		"lastName", "surname",
		"http://schemas.xmlsoap.org/ws/2005/05/identity/claims/surname",
	}
	pictureAttributes = []string{"picture", "profilePicture"}
)

// SAMLConfig carries the identity-provider settings the processor needs.
type SAMLConfig struct {
	EntryPoint   string // IdP SSO URL
	Issuer       string // SP entity ID
	Certificate  string // IdP signing certificate, PEM or raw base64
	CallbackURL  string // assertion consumer service URL
	MetadataPath string // path of the SP metadata endpoint
	Provider     string // provider slug, e.g. "cyberark"
	ProviderName string // stored in users.sso_provider
	DefaultRole  string // seeded on just-in-time provisioning
	CookieSecret string // signs the transient relay-state cookie
}

// SAMLProcessor validates inbound federation assertions, maps them to local
// accounts (provisioning on first login) and hands the resolved user back for
// token minting. It is stateless across calls apart from the store.
type SAMLProcessor struct {
	sp           *saml.ServiceProvider
	store        Store
	provider     string
	providerName string
	defaultRole  string
	cookieSecret []byte
	secureCookie bool
}

var _ Strategy = (*SAMLProcessor)(nil)

// NewSAMLProcessor builds the service-provider side of the handshake. Any
// configuration problem is returned to the caller, which is expected to
// degrade SSO to disabled rather than abort startup.
func NewSAMLProcessor(cfg SAMLConfig, store Store) (*SAMLProcessor, error) {
	if cfg.EntryPoint == "" {
		return nil, errors.New("saml: entry point is required")
	}
	if cfg.CookieSecret == "" {
		return nil, errors.New("saml: session cookie secret is required")
	}
	certData, err := normalizeCertificate(cfg.Certificate)
	if err != nil {
		return nil, err
	}
	acsURL, err := url.Parse(cfg.CallbackURL)
	if err != nil || acsURL.Host == "" {
		return nil, fmt.Errorf("saml: invalid callback url %q", cfg.CallbackURL)
	}
	metadataPath := cfg.MetadataPath
	if metadataPath == "" {
		metadataPath = "/api/auth/saml/metadata"
	}
	metadataURL := *acsURL
	metadataURL.Path = metadataPath
	metadataURL.RawQuery = ""

	idpMetadata := &saml.EntityDescriptor{
		EntityID: cfg.EntryPoint,
		IDPSSODescriptors: []saml.IDPSSODescriptor{{
			SSODescriptor: saml.SSODescriptor{
				RoleDescriptor: saml.RoleDescriptor{
					KeyDescriptors: []saml.KeyDescriptor{{
						Use: "signing",
						KeyInfo: saml.KeyInfo{
							X509Data: saml.X509Data{
								X509Certificates: []saml.X509Certificate{{Data: certData}},
							},
						},
					}},
				},
			},
			SingleSignOnServices: []saml.Endpoint{
				{Binding: saml.HTTPRedirectBinding, Location: cfg.EntryPoint},
				{Binding: saml.HTTPPostBinding, Location: cfg.EntryPoint},
			},
		}},
	}

	sp := &saml.ServiceProvider{
		EntityID:          cfg.Issuer,
		AcsURL:            *acsURL,
		MetadataURL:       metadataURL,
		IDPMetadata:       idpMetadata,
		AuthnNameIDFormat: saml.EmailAddressNameIDFormat,
		AllowIDPInitiated: true,
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "cyberark"
	}
	providerName := cfg.ProviderName
	if providerName == "" {
		providerName = "CyberArk Identity"
	}
	defaultRole := cfg.DefaultRole
	if defaultRole == "" {
		defaultRole = "viewer"
	}

	return &SAMLProcessor{
		sp:           sp,
		store:        store,
		provider:     provider,
		providerName: providerName,
		defaultRole:  defaultRole,
		cookieSecret: []byte(cfg.CookieSecret),
		secureCookie: acsURL.Scheme == "https",
	}, nil
}

func (p *SAMLProcessor) Name() string { return "saml" }

// Provider returns the route slug this processor serves.
func (p *SAMLProcessor) Provider() string { return p.provider }

// Initiate starts the redirect binding into the IdP. The AuthnRequest ID is
// kept in an HMAC-signed cookie so the callback can validate InResponseTo.
func (p *SAMLProcessor) Initiate(w http.ResponseWriter) (*url.URL, error) {
	req, err := p.sp.MakeAuthenticationRequest(
		p.sp.GetSSOBindingLocation(saml.HTTPRedirectBinding),
		saml.HTTPRedirectBinding, saml.HTTPPostBinding)
	if err != nil {
		return nil, err
	}
	redirectURL, err := req.Redirect("", p.sp)
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     relayCookieName,
		Value:    p.signRelay(req.ID),
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   p.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return redirectURL, nil
}

// Authenticate consumes the IdP's POSTed assertion and resolves it to a local
// user. Satisfies the Strategy interface.
func (p *SAMLProcessor) Authenticate(ctx context.Context, r *http.Request) (*User, error) {
	user, _, err := p.Exchange(ctx, r)
	return user, err
}

// Exchange runs the full assertion flow and returns the user with role list.
func (p *SAMLProcessor) Exchange(ctx context.Context, r *http.Request) (*User, []string, error) {
	possibleRequestIDs := p.relayRequestIDs(r)

	assertion, err := p.sp.ParseResponse(r, possibleRequestIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("saml: assertion rejected: %w", unwrapSAMLError(err))
	}

	profile := extractProfile(assertion)
	if profile.Email == "" {
		return nil, nil, ErrMissingEmail
	}

	user, err := p.resolveUser(ctx, profile)
	if err != nil {
		return nil, nil, err
	}

	roles, err := p.store.Roles().ListForUser(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, roles, nil
}

// Metadata renders the SP metadata document for IdP configuration.
func (p *SAMLProcessor) Metadata() ([]byte, error) {
	buf, err := xml.MarshalIndent(p.sp.Metadata(), "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), buf...), nil
}

// samlProfile is the identity derived from an assertion.
type samlProfile struct {
	SubjectID string
	Email     string
	FullName  string
	Picture   string
}

func extractProfile(assertion *saml.Assertion) samlProfile {
	attrs := flattenAttributes(assertion)

	var profile samlProfile
	if assertion.Subject != nil && assertion.Subject.NameID != nil {
		profile.SubjectID = strings.TrimSpace(assertion.Subject.NameID.Value)
	}

	// Email: subject identifier first, then the attribute fallback chain.
	if strings.Contains(profile.SubjectID, "@") {
		profile.Email = profile.SubjectID
	}
	if profile.Email == "" {
		profile.Email = firstAttribute(attrs, emailAttributes)
	}
	if profile.SubjectID == "" {
		profile.SubjectID = profile.Email
	}

	// Display name, else composed from first+last, else the email itself.
	profile.FullName = firstAttribute(attrs, displayNameAttributes)
	if profile.FullName == "" {
		first := firstAttribute(attrs, firstNameAttributes)
		last := firstAttribute(attrs, lastNameAttributes)
		profile.FullName = strings.TrimSpace(first + " " + last)
	}
	if profile.FullName == "" {
		profile.FullName = profile.Email
	}

	profile.Picture = firstAttribute(attrs, pictureAttributes)
	return profile
}

func flattenAttributes(assertion *saml.Assertion) map[string]string {
	attrs := make(map[string]string)
	for _, stmt := range assertion.AttributeStatements {
		for _, attr := range stmt.Attributes {
			var value string
			for _, v := range attr.Values {
				if v.Value != "" {
					value = v.Value
					break
				}
			}
			if value == "" {
				continue
			}
			for _, key := range []string{attr.FriendlyName, attr.Name} {
				if key = strings.TrimSpace(key); key != "" {
					if _, seen := attrs[key]; !seen {
						attrs[key] = value
					}
				}
			}
		}
	}
	return attrs
}

func firstAttribute(attrs map[string]string, names []string) string {
	for _, name := range names {
		if v := attrs[name]; v != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// resolveUser maps the assertion identity to an account: existing accounts are
// refreshed from the assertion, unknown subjects are provisioned together with
// the default role in one transaction.
func (p *SAMLProcessor) resolveUser(ctx context.Context, profile samlProfile) (*User, error) {
	users := p.store.Users()

	existing, err := users.FindBySSO(ctx, profile.SubjectID, profile.Email)
	switch {
	case err == nil:
		if err := users.RefreshFromSSO(ctx, existing.ID, profile.FullName, profile.Picture); err != nil {
			return nil, err
		}
		return users.Find(ctx, existing.ID)
	case errors.Is(err, ErrNotFound):
		// fall through to provisioning
	default:
		return nil, err
	}

	user := &User{
		Username:       profile.Email,
		Email:          profile.Email,
		FullName:       profile.FullName,
		ProfilePicture: profile.Picture,
		IsSSOUser:      true,
		SSOProvider:    p.providerName,
		SSOUserID:      profile.SubjectID,
		IsActive:       true,
	}
	if err := users.Provision(ctx, user, p.defaultRole); err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			// Lost a provisioning race; the winner's row is authoritative.
			return users.FindBySSO(ctx, profile.SubjectID, profile.Email)
		}
		return nil, err
	}
	return users.Find(ctx, user.ID)
}

func (p *SAMLProcessor) signRelay(requestID string) string {
	mac := hmac.New(sha256.New, p.cookieSecret)
	mac.Write([]byte(requestID))
	return requestID + "." + hex.EncodeToString(mac.Sum(nil))
}

// relayRequestIDs returns the AuthnRequest IDs the callback may answer. An
// absent or tampered cookie yields none, which still admits IdP-initiated
// responses because AllowIDPInitiated is set.
func (p *SAMLProcessor) relayRequestIDs(r *http.Request) []string {
	cookie, err := r.Cookie(relayCookieName)
	if err != nil {
		return nil
	}
	id, sig, ok := strings.Cut(cookie.Value, ".")
	if !ok || id == "" {
		return nil
	}
	mac := hmac.New(sha256.New, p.cookieSecret)
	mac.Write([]byte(id))
	if !hmac.Equal([]byte(sig), []byte(hex.EncodeToString(mac.Sum(nil)))) {
		return nil
	}
	return []string{id}
}

func unwrapSAMLError(err error) error {
	var ire *saml.InvalidResponseError
	if errors.As(err, &ire) && ire.PrivateErr != nil {
		return ire.PrivateErr
	}
	return err
}

// normalizeCertificate accepts a PEM block or raw base64 and returns the bare
// base64 body the metadata document expects.
func normalizeCertificate(cert string) (string, error) {
	cleaned := strings.ReplaceAll(cert, "-----BEGIN CERTIFICATE-----", "")
	cleaned = strings.ReplaceAll(cleaned, "-----END CERTIFICATE-----", "")
	cleaned = strings.Join(strings.Fields(cleaned), "")
	if cleaned == "" {
		return "", errors.New("saml: idp certificate is required")
	}
	return cleaned, nil
}

// ExpireRelayCookie returns a cookie that removes the relay state after the
// handshake completes.
func ExpireRelayCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     relayCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SecureCookies reports whether the callback URL uses HTTPS.
func (p *SAMLProcessor) SecureCookies() bool { return p.secureCookie }
