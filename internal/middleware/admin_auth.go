package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/transitlab/sirihub/pkg/auth"
	_ "github.com/transitlab/sirihub/pkg/auth/jwks"
	_ "github.com/transitlab/sirihub/pkg/auth/static"
	"github.com/transitlab/sirihub/pkg/config"

	"github.com/gin-gonic/gin"
)

const adminScope = "sirihub:admin"

// AdminAuthMiddleware protects the admin surface. A static token takes
// precedence when configured (single-operator deployments); otherwise tokens
// are validated against the configured JWKS endpoint. In dev with neither
// configured the surface is open.
func AdminAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	validator, err := newAdminValidator(cfg)
	if err != nil {
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "admin validator not configured"})
		}
	}
	if validator == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		claims, err := validateBearer(validator, c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set("adminClaims", claims)
		c.Next()
	}
}

// RequireAdminScope rejects tokens that authenticate but lack the admin
// scope. Static tokens pass regardless: possession is the authorization.
func RequireAdminScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get("adminClaims")
		if !ok {
			// Open dev surface.
			c.Next()
			return
		}
		claims, _ := v.(*auth.Claims)
		if claims == nil || (len(claims.Scopes) > 0 && !claims.HasScope(adminScope)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin scope required"})
			return
		}
		c.Next()
	}
}

func newAdminValidator(cfg *config.Config) (auth.Validator, error) {
	if cfg.AdminStaticToken != "" {
		return auth.NewValidator(auth.ProviderConfig{
			Type:   "static",
			Config: json.RawMessage(fmt.Sprintf("%q", cfg.AdminStaticToken)),
		})
	}
	if cfg.AdminJwksURL != "" {
		providerCfg, err := json.Marshal(map[string]any{
			"jwksUrl":          cfg.AdminJwksURL,
			"issuer":           cfg.AdminIssuer,
			"audience":         cfg.AdminAudience,
			"clockSkewSeconds": cfg.AllowedClockSkewSeconds,
		})
		if err != nil {
			return nil, err
		}
		return auth.NewValidator(auth.ProviderConfig{Type: "jwks", Config: providerCfg})
	}
	if strings.EqualFold(cfg.Env, "dev") {
		return nil, nil
	}
	return nil, fmt.Errorf("no admin auth configured")
}

func validateBearer(validator auth.Validator, authHeader string) (*auth.Claims, error) {
	if strings.TrimSpace(authHeader) == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, fmt.Errorf("invalid Authorization format")
	}
	return validator.Validate(parts[1])
}
