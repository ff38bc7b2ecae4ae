package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// AdminKey is set on the gin context for requests that passed AdminGuard.
	AdminKey = "admin"
	// ActorKey holds the token subject, recorded as the actor in audit logs.
	ActorKey = "actor"

	// AdminRole must appear in the token's roles claim.
	AdminRole = "admin"
)

// AdminClaims is the token payload AdminGuard accepts.
type AdminClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

var errNotAdmin = errors.New("token lacks the admin role")

// AdminGuard requires "Authorization: Bearer <jwt>" signed with secret
// (HS256) and carrying the admin role. An empty secret disables the check.
func AdminGuard(secret string) gin.HandlerFunc {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	return func(c *gin.Context) {
		if secret == "" {
			c.Set(AdminKey, true)
			c.Next()
			return
		}

		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Admin authorization required"})
			return
		}

		claims, err := parseAdmin(parser, key, raw)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, errNotAdmin) {
				status = http.StatusForbidden
			}
			c.AbortWithStatusJSON(status, gin.H{"success": false, "error": "Admin authorization required"})
			return
		}

		c.Set(AdminKey, true)
		if claims.Subject != "" {
			c.Set(ActorKey, claims.Subject)
		}
		c.Next()
	}
}

func parseAdmin(parser *jwt.Parser, key []byte, raw string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return key, nil }); err != nil {
		return nil, err
	}
	if !slices.Contains(claims.Roles, AdminRole) {
		return nil, errNotAdmin
	}
	return claims, nil
}
