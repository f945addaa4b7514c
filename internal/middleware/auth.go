package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/salesalert/internal/auth"
	"github.com/charlesng35/salesalert/pkg/errors"
	"github.com/charlesng35/salesalert/pkg/response"
)

const (
	CtxClaimsKey  = "authClaims"
	CtxUserIDKey  = "userID"
	CtxServiceKey = "serviceCaller"

	// ServiceTokenHeader carries a shared token for machine callers.
	ServiceTokenHeader = "X-Service-Token"
)

// Auth enforces JWT authentication using the supplied JWT service.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticateBearer(c, jwt) {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}

// AuthOrService accepts either a user JWT or a configured service token. Service
// callers have no user identity and act on behalf of the user named in the request.
func AuthOrService(jwt *iauth.JWTService, tokens *iauth.ServiceTokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := strings.TrimSpace(c.GetHeader(ServiceTokenHeader)); token != "" {
			if !tokens.Verify(token) {
				response.Error(c, errors.ErrUnauthorized)
				c.Abort()
				return
			}
			c.Set(CtxServiceKey, true)
			c.Next()
			return
		}

		if !authenticateBearer(c, jwt) {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects callers whose claims lack the admin role. Service callers
// are treated as administrators.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsServiceCaller(c) {
			c.Next()
			return
		}
		claims, ok := ClaimsFrom(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !claims.HasRole(iauth.RoleAdmin) {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the JWT claims stored by Auth.
func ClaimsFrom(c *gin.Context) (*iauth.Claims, bool) {
	v, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*iauth.Claims)
	return claims, ok && claims != nil
}

// IsServiceCaller reports whether the request authenticated with a service token.
func IsServiceCaller(c *gin.Context) bool {
	return c.GetBool(CtxServiceKey)
}

func authenticateBearer(c *gin.Context, jwt *iauth.JWTService) bool {
	authz := c.GetHeader("Authorization")
	if jwt == nil || len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return false
	}

	claims, err := jwt.ValidateAccessToken(strings.TrimSpace(authz[7:]))
	if err != nil {
		return false
	}

	// Propagate identity into request context
	c.Set(CtxClaimsKey, claims)
	c.Set(CtxUserIDKey, claims.UserID)
	return true
}
