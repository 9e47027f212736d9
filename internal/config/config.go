package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// SAML holds identity-provider settings for the SSO handshake.
type SAML struct {
	EntryPoint  string // IdP single sign-on URL
	Issuer      string // our SP entity ID
	Certificate string // IdP signing certificate, PEM or raw base64
	CallbackURL string // assertion consumer service URL
	Provider    string // provider slug used in routes, e.g. "cyberark"
}

// Slack holds the notification relay settings.
type Slack struct {
	Enabled        bool
	WebhookURL     string
	DefaultChannel string
}

// Config is assembled once at startup and passed by reference. Fields are
// never mutated after Load returns.
type Config struct {
	Addr        string
	Environment string
	PostgresDSN string

	JWTSecret string
	JWTTTL    time.Duration

	SSOEnabled    bool
	SAML          SAML
	SessionSecret string

	FrontendURL string
	LoginURL    string

	AllowedOrigins []string

	RateLimitWindow time.Duration
	RateLimitMax    int

	Slack Slack

	DefaultRole string
}

// Load reads configuration from the environment, applying defaults that match
// a local development setup.
func Load() Config {
	return Config{
		Addr:        getenv("STATION_ADDR", ":5000"),
		Environment: getenv("STATION_ENV", "development"),
		PostgresDSN: getenv("STATION_PG_DSN", ""),

		JWTSecret: getenv("STATION_JWT_SECRET", ""),
		JWTTTL:    getDuration("STATION_JWT_TTL", 24*time.Hour),

		SSOEnabled: getBool("STATION_SSO_ENABLED", false),
		SAML: SAML{
			EntryPoint:  getenv("STATION_SAML_ENTRY_POINT", ""),
			Issuer:      getenv("STATION_SAML_ISSUER", "ca-automation-station"),
			Certificate: getenv("STATION_SAML_CERT", ""),
			CallbackURL: getenv("STATION_SAML_CALLBACK_URL", "http://localhost:5000/api/auth/sso/cyberark/callback"),
			Provider:    getenv("STATION_SAML_PROVIDER", "cyberark"),
		},
		SessionSecret: getenv("STATION_SESSION_SECRET", ""),

		FrontendURL: getenv("STATION_FRONTEND_URL", "http://localhost:3000"),
		LoginURL:    getenv("STATION_LOGIN_URL", "http://localhost:3000/login"),

		AllowedOrigins: getList("STATION_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		RateLimitWindow: getDuration("STATION_RATE_LIMIT_WINDOW", 15*time.Minute),
		RateLimitMax:    getInt("STATION_RATE_LIMIT_MAX", 100),

		Slack: Slack{
			Enabled:        getBool("STATION_SLACK_ENABLED", false),
			WebhookURL:     getenv("STATION_SLACK_WEBHOOK_URL", ""),
			DefaultChannel: getenv("STATION_SLACK_CHANNEL", "#automation-station"),
		},

		DefaultRole: getenv("STATION_DEFAULT_ROLE", "viewer"),
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getBool(key string, def bool) bool {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// getDuration accepts Go duration strings ("30m") and falls back to whole
// seconds for bare integers.
func getDuration(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}

func getList(key string, def []string) []string {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
