package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/courtclub/pkg/ledger"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const contextKeyClaims = "auth_claims"

// SessionClaims carries the authenticated identity supplied by the auth
// collaborator. The core trusts this identity; authorization capability
// checks happen here, before any core operation runs.
type SessionClaims struct {
	UserID string
	Role   ledger.Role
}

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (server *Server) sessionMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := extractToken(ctx, server.cfg.SessionCookieName)
		if token == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
			return
		}
		claims, err := server.parseSession(token)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid session"))
			return
		}
		if _, err := server.ledgerService.EnsureUser(ctx.Request.Context(), claims.UserID, claims.Role); err != nil {
			ctx.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse("user_bootstrap_failed", "could not resolve user"))
			return
		}
		ctx.Set(contextKeyClaims, claims)
		ctx.Next()
	}
}

func (server *Server) parseSession(token string) (SessionClaims, error) {
	parsed := sessionClaims{}
	_, err := jwt.ParseWithClaims(token, &parsed, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(server.cfg.SessionSigningKey), nil
	}, jwt.WithIssuer(server.cfg.SessionIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return SessionClaims{}, err
	}
	userID := strings.TrimSpace(parsed.Subject)
	if userID == "" {
		return SessionClaims{}, fmt.Errorf("session subject is empty")
	}
	role, err := ledger.ParseRole(parsed.Role)
	if err != nil {
		role = ledger.RoleMember
	}
	return SessionClaims{UserID: userID, Role: role}, nil
}

func requireRole(roles ...ledger.Role) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims := getClaims(ctx)
		for _, role := range roles {
			if claims.Role == role {
				ctx.Next()
				return
			}
		}
		ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse("forbidden", "insufficient role"))
	}
}

func getClaims(ctx *gin.Context) SessionClaims {
	claimsValue, ok := ctx.Get(contextKeyClaims)
	if !ok {
		return SessionClaims{}
	}
	claims, _ := claimsValue.(SessionClaims)
	return claims
}

func extractToken(ctx *gin.Context, cookieName string) string {
	if cookie, err := ctx.Cookie(cookieName); err == nil && cookie != "" {
		return cookie
	}
	authorization := ctx.GetHeader("Authorization")
	if strings.HasPrefix(authorization, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authorization, "Bearer "))
	}
	return ""
}
