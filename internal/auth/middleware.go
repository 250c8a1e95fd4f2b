package auth

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/crm-access/internal/domain"
	"github.com/spec-kit/crm-access/internal/observability"
)

// Gate decision outcomes, used as metric labels.
const (
	OutcomeExcluded        = "excluded"
	OutcomePublic          = "public"
	OutcomeRedirectLanding = "redirect_landing"
	OutcomeAllowed         = "allowed"
	OutcomeMissingToken    = "missing_token"
	OutcomeInvalidToken    = "invalid_token"
)

// Verifier validates session tokens.
type Verifier interface {
	Verify(token string) (domain.Identity, error)
}

// GateConfig controls path classification and redirects.
type GateConfig struct {
	Cookie           CookieConfig
	SignInPath       string
	LandingPath      string
	APIPrefix        string
	PublicPrefixes   []string
	ExcludedPrefixes []string
}

// DefaultGateConfig returns the standard path layout.
func DefaultGateConfig(cookie CookieConfig, signInPath, landingPath string) GateConfig {
	return GateConfig{
		Cookie:           cookie,
		SignInPath:       signInPath,
		LandingPath:      landingPath,
		APIPrefix:        "/api",
		PublicPrefixes:   []string{"/auth", "/api/auth"},
		ExcludedPrefixes: []string{"/_next", "/static", "/favicon.ico", "/health", "/metrics"},
	}
}

// RequestGate authenticates every request from the session cookie. It only
// performs token cryptography and path matching, never store lookups.
type RequestGate struct {
	verifier Verifier
	cfg      GateConfig
	metrics  *observability.Metrics
}

// NewRequestGate constructs the gate.
func NewRequestGate(verifier Verifier, cfg GateConfig, metrics *observability.Metrics) *RequestGate {
	cfg.SignInPath = normalizePath(cfg.SignInPath)
	cfg.APIPrefix = normalizePath(cfg.APIPrefix)
	cfg.PublicPrefixes = normalizePaths(cfg.PublicPrefixes)
	cfg.ExcludedPrefixes = normalizePaths(cfg.ExcludedPrefixes)
	return &RequestGate{verifier: verifier, cfg: cfg, metrics: metrics}
}

// Handle decides allow, redirect or reject for one request.
func (g *RequestGate) Handle(c *fiber.Ctx) error {
	c.Request().Header.Del(TrustedUserHeader)

	path := normalizePath(c.Path())
	if matchesAny(path, g.cfg.ExcludedPrefixes) {
		g.record(OutcomeExcluded)
		return c.Next()
	}

	token := c.Cookies(g.cfg.Cookie.Name)

	if matchesAny(path, g.cfg.PublicPrefixes) {
		if path == g.cfg.SignInPath && token != "" {
			if _, err := g.verifier.Verify(token); err == nil {
				g.record(OutcomeRedirectLanding)
				return c.Redirect(g.cfg.LandingPath, http.StatusFound)
			}
			g.cfg.Cookie.Clear(c)
		}
		g.record(OutcomePublic)
		return c.Next()
	}

	if token == "" {
		g.record(OutcomeMissingToken)
		return g.reject(c, path)
	}

	identity, err := g.verifier.Verify(token)
	if err != nil {
		g.record(OutcomeInvalidToken)
		g.cfg.Cookie.Clear(c)
		return g.reject(c, path)
	}

	setIdentity(c, identity)
	g.record(OutcomeAllowed)
	return c.Next()
}

// reject answers API requests with a generic 401 and pages with a sign-in redirect.
func (g *RequestGate) reject(c *fiber.Ctx, path string) error {
	if hasPathPrefix(path, g.cfg.APIPrefix) {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{"error": fiber.Map{
			"code":    "UNAUTHORIZED",
			"message": "invalid session",
		}})
	}
	return c.Redirect(g.cfg.SignInPath, http.StatusFound)
}

func (g *RequestGate) record(outcome string) {
	g.metrics.RecordGateDecision(outcome)
}

func matchesAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if hasPathPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// hasPathPrefix matches whole path segments: "/auth" covers "/auth" and
// "/auth/signin" but not "/authors".
func hasPathPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if path == prefix {
		return true
	}
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(path, prefix)
	}
	return strings.HasPrefix(path, prefix+"/")
}

// normalizePath folds case and drops a trailing slash, matching fiber's
// default case-insensitive, non-strict routing.
func normalizePath(path string) string {
	path = strings.ToLower(path)
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

func normalizePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, normalizePath(p))
	}
	return out
}
