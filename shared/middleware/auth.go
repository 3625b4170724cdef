package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/care-intake-portal/shared/cache"
	"github.com/pavitra93/care-intake-portal/shared/models"
	"github.com/pavitra93/care-intake-portal/shared/remote"
	"github.com/pavitra93/care-intake-portal/shared/session"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

// Context keys set by RequireAuth
const (
	KeyUserID      = "user_id"
	KeyEmail       = "email"
	KeyTenantID    = "tenant_id"
	KeyRole        = "role"
	KeyAccessToken = "access_token"
)

const (
	// localTTL bounds how long a verified token skips the shared session lookup
	localTTL = time.Minute
	// lookupTTL is the session lifetime when the token expiry cannot be read
	lookupTTL = 5 * time.Minute
)

var (
	ErrMissingToken = errors.New("authorization token required")
	ErrRevoked      = errors.New("session has been signed out")
)

// UserLookup resolves an access token through the auth service
type UserLookup interface {
	GetUser(ctx context.Context, accessToken string) (*models.AuthUser, error)
}

// AccessClaims are the claims of an access token issued by the auth service
type AccessClaims struct {
	Email       string                 `json:"email"`
	Role        string                 `json:"role"`
	AppMetadata map[string]interface{} `json:"app_metadata"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies access tokens. Tokens are checked locally with the
// shared JWT secret when one is configured, otherwise by asking the auth
// service. Verified users are cached in the session store (shared between
// instances) and in a small in-process cache in front of it.
type AuthMiddleware struct {
	jwtSecret []byte
	users     UserLookup
	sessions  *session.Manager
	local     *ristretto.Cache[string, models.UserInfo]
	now       func() time.Time
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(jwtSecret string, users UserLookup, sessions *session.Manager) (*AuthMiddleware, error) {
	local, err := ristretto.NewCache(&ristretto.Config[string, models.UserInfo]{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create claims cache: %w", err)
	}
	if jwtSecret == "" {
		logrus.Warn("REMOTE_JWT_SECRET not set, access tokens are verified by the auth service")
	}

	return &AuthMiddleware{
		jwtSecret: []byte(jwtSecret),
		users:     users,
		sessions:  sessions,
		local:     local,
		now:       time.Now,
	}, nil
}

// RequireAuth middleware validates access tokens
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			utils.AbortWithError(c, 401, utils.CodeUnauthorized, "Authorization token required")
			return
		}

		user, err := am.Authenticate(c.Request.Context(), token)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"path":  c.FullPath(),
				"error": err,
			}).Debug("Rejected access token")

			if errors.Is(err, utils.ErrCircuitOpen) {
				utils.AbortWithError(c, 503, utils.CodeUnavailable, "Authentication service unavailable")
				return
			}
			utils.AbortWithError(c, 401, utils.CodeInvalidSession, "Invalid or expired session")
			return
		}

		c.Set(KeyUserID, user.UserID)
		c.Set(KeyEmail, user.Email)
		c.Set(KeyTenantID, user.TenantID)
		c.Set(KeyRole, string(user.Role))
		c.Set(KeyAccessToken, token)

		// remote calls made for this request run as the user
		c.Request = c.Request.WithContext(remote.WithAccessToken(c.Request.Context(), token))

		c.Next()
	}
}

// Authenticate returns the user an access token belongs to
func (am *AuthMiddleware) Authenticate(ctx context.Context, token string) (*models.UserInfo, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	localKey := cache.HashKey("", token)

	if user, ok := am.local.Get(localKey); ok {
		return &user, nil
	}

	if am.sessions != nil {
		sess, err := am.sessions.Get(ctx, token)
		switch {
		case err == nil:
			am.remember(localKey, sess.User, time.Until(sess.ExpiresAt))
			return &sess.User, nil
		case errors.Is(err, session.ErrSessionExpired):
			return nil, err
		}
		if am.sessions.IsRevoked(ctx, token) {
			return nil, ErrRevoked
		}
	}

	user, expiresAt, err := am.verify(ctx, token)
	if err != nil {
		return nil, err
	}

	ttl := expiresAt.Sub(am.now())
	if am.sessions != nil {
		if _, err := am.sessions.Create(ctx, token, *user, ttl); err != nil {
			logrus.WithError(err).Warn("Failed to store session")
		}
	}
	am.remember(localKey, *user, ttl)
	return user, nil
}

// Forget drops a token from the in-process cache (after sign-out)
func (am *AuthMiddleware) Forget(token string) {
	am.local.Del(cache.HashKey("", token))
	am.local.Wait()
}

func (am *AuthMiddleware) remember(key string, user models.UserInfo, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if ttl > localTTL {
		ttl = localTTL
	}
	am.local.SetWithTTL(key, user, 1, ttl)
	am.local.Wait()
}

// verify checks the token and returns the user and the token's expiry
func (am *AuthMiddleware) verify(ctx context.Context, token string) (*models.UserInfo, time.Time, error) {
	if len(am.jwtSecret) > 0 {
		return am.verifyLocal(token)
	}
	if am.users == nil {
		return nil, time.Time{}, errors.New("no token verifier configured")
	}

	authUser, err := am.users.GetUser(ctx, token)
	if err != nil {
		return nil, time.Time{}, err
	}
	info := authUser.Info()

	expiresAt := am.now().Add(lookupTTL)
	// the auth service accepted the token, so its expiry can be trusted
	var claims AccessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil && claims.ExpiresAt != nil {
		if claims.ExpiresAt.Time.Before(expiresAt) {
			expiresAt = claims.ExpiresAt.Time
		}
	}
	return &info, expiresAt, nil
}

func (am *AuthMiddleware) verifyLocal(token string) (*models.UserInfo, time.Time, error) {
	var claims AccessClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return am.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(am.now),
	)
	if err != nil || !parsed.Valid {
		return nil, time.Time{}, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return nil, time.Time{}, errors.New("invalid token: missing subject")
	}

	authUser := models.AuthUser{
		ID:          claims.Subject,
		Email:       claims.Email,
		AppMetadata: claims.AppMetadata,
	}
	info := authUser.Info()
	return &info, claims.ExpiresAt.Time, nil
}

// RequireRole middleware allows only the listed roles
func (am *AuthMiddleware) RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := UserFromContext(c)
		if !ok {
			utils.AbortWithError(c, 401, utils.CodeUnauthorized, "User role not found in context")
			return
		}
		for _, r := range roles {
			if user.Role == r || (r == models.RoleAdmin && user.IsAdminUser()) {
				c.Next()
				return
			}
		}
		utils.AbortWithError(c, 403, utils.CodeForbidden, "Insufficient permissions")
	}
}

// RequireTenantOwnerOrAdmin allows admins, and tenant owners on their own tenant
func (am *AuthMiddleware) RequireTenantOwnerOrAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := UserFromContext(c)
		if !ok {
			utils.AbortWithError(c, 401, utils.CodeUnauthorized, "User not found in context")
			return
		}
		if user.CanManageTenant(tenantParam(c)) {
			c.Next()
			return
		}
		if user.IsTenantOwner() {
			utils.AbortWithError(c, 403, utils.CodeForbidden, "Tenant owners can only manage their own tenant")
			return
		}
		utils.AbortWithError(c, 403, utils.CodeForbidden, "Insufficient permissions")
	}
}

// RequireTenantAccess allows admins (all tenants) and members of the tenant in the path
func (am *AuthMiddleware) RequireTenantAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := UserFromContext(c)
		if !ok {
			utils.AbortWithError(c, 401, utils.CodeUnauthorized, "Tenant information not found")
			return
		}
		if !user.CanAccessTenant(tenantParam(c)) {
			utils.AbortWithError(c, 403, utils.CodeForbidden, "Access denied to this tenant")
			return
		}
		c.Next()
	}
}

func tenantParam(c *gin.Context) string {
	if id := c.Param("id"); id != "" {
		return id
	}
	return c.Param("tenant_id")
}

// ExtractToken reads the bearer token from the Authorization header
func ExtractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return authHeader
}

// UserFromContext rebuilds the user set by RequireAuth
func UserFromContext(c *gin.Context) (models.UserInfo, bool) {
	userID := c.GetString(KeyUserID)
	if userID == "" {
		return models.UserInfo{}, false
	}
	role := models.UserRole(c.GetString(KeyRole))
	return models.UserInfo{
		UserID:   userID,
		Email:    c.GetString(KeyEmail),
		Role:     role,
		TenantID: c.GetString(KeyTenantID),
		IsAdmin:  role == models.RoleAdmin,
	}, true
}
