package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sudharshan-ks/dev-postmark-challenge/config"
)

// Scopes an Auth0 access token can grant to API clients
const (
	// QueryScope allows asking questions through the query API
	QueryScope = "query:execute"
	// RawSQLScope additionally allows running caller-written SQL
	RawSQLScope = "query:sql"
	// SchemaScope allows reading the schema description
	SchemaScope = "schema:read"
)

// Context keys set by EnsureValidToken
const (
	UserIDKey = "user_id"
	ClaimsKey = "validated_claims"
)

// CustomClaims carries the space-separated scope claim of an access token
type CustomClaims struct {
	Scope string `json:"scope"`
}

// Validate satisfies validator.CustomClaims; scopes are checked per route.
func (c CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// Scopes lists the granted scopes
func (c CustomClaims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// HasScope reports whether scope was granted
func (c CustomClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes() {
		if s == scope {
			return true
		}
	}
	return false
}

// EnsureValidToken rejects requests without a valid Auth0 bearer token and
// stores the caller's subject and claims on the context.
func EnsureValidToken(cfg *config.Config) gin.HandlerFunc {
	checker, err := newTokenChecker(cfg)
	if err != nil {
		config.GetLogger().Fatalf("Failed to set up token validation: %v", err)
	}

	return func(c *gin.Context) {
		authenticated := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
			if !ok {
				return
			}
			c.Set(UserIDKey, claims.RegisteredClaims.Subject)
			c.Set(ClaimsKey, claims)
			authenticated = true
		})
		checker.CheckJWT(next).ServeHTTP(c.Writer, c.Request)

		if !authenticated {
			if !c.Writer.Written() {
				writeAuthError(c.Writer, http.StatusUnauthorized, "INVALID_TOKEN", "Failed to validate JWT.")
			}
			c.Abort()
			return
		}
		c.Next()
	}
}

func newTokenChecker(cfg *config.Config) (*jwtmiddleware.JWTMiddleware, error) {
	issuerURL, err := url.Parse("https://" + cfg.Auth0Domain + "/")
	if err != nil {
		return nil, err
	}
	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	tokenValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{cfg.Auth0Audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &CustomClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}

	return jwtmiddleware.New(
		tokenValidator.ValidateToken,
		jwtmiddleware.WithErrorHandler(tokenErrorHandler),
	), nil
}

func tokenErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	code, message := "INVALID_TOKEN", "Failed to validate JWT."
	if errors.Is(err, jwtmiddleware.ErrJWTMissing) {
		code, message = "MISSING_TOKEN", "A bearer token is required."
	}
	config.GetLogger().WithError(err).WithFields(logrus.Fields{
		"path": r.URL.Path,
		"code": code,
	}).Warn("Rejected API token")

	writeAuthError(w, http.StatusUnauthorized, code, message)
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(gin.H{
		"success": false,
		"error":   gin.H{"code": code, "message": message},
	}); err != nil {
		config.GetLogger().WithError(err).Error("Failed to write error response")
	}
}

// GetUserID extracts the user ID from the Gin context
func GetUserID(c *gin.Context) (string, error) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", &AuthError{Code: "MISSING_USER_ID", Message: "User ID not found in context"}
	}

	userIDStr, ok := userID.(string)
	if !ok {
		return "", &AuthError{Code: "INVALID_USER_ID", Message: "User ID is not a string"}
	}

	return userIDStr, nil
}

// GetClaims extracts the validated JWT claims from the Gin context
func GetClaims(c *gin.Context) (*validator.ValidatedClaims, error) {
	claims, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_CLAIMS", Message: "Claims not found in context"}
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, &AuthError{Code: "INVALID_CLAIMS", Message: "Claims are not in the expected format"}
	}

	return validatedClaims, nil
}

func scopesOf(claims *validator.ValidatedClaims) CustomClaims {
	if custom, ok := claims.CustomClaims.(*CustomClaims); ok && custom != nil {
		return *custom
	}
	return CustomClaims{}
}

// Granted reports whether the caller may use scope. Requests that did not
// pass through EnsureValidToken carry no claims and are always granted.
func Granted(c *gin.Context, scope string) bool {
	claims, err := GetClaims(c)
	if err != nil {
		_, present := c.Get(ClaimsKey)
		return !present
	}
	return scopesOf(claims).HasScope(scope)
}

// RequireScope aborts with 403 unless the token grants scope
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := GetClaims(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "MISSING_CLAIMS",
					"message": "Could not retrieve token claims",
				},
			})
			return
		}

		if !scopesOf(claims).HasScope(scope) {
			config.GetLogger().WithFields(logrus.Fields{
				"request_id": GetRequestID(c),
				"user_id":    claims.RegisteredClaims.Subject,
				"scope":      scope,
				"path":       c.FullPath(),
			}).Warn("Token lacks required scope")

			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INSUFFICIENT_SCOPE",
					"message": "This token lacks the " + scope + " scope",
				},
			})
			return
		}

		c.Next()
	}
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
