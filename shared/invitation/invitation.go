// Package invitation encodes the token carried in invitation links.
//
// The token only pre-fills the invited user's login form and tenant context;
// it never grants access. Tokens are HS256-signed so a link cannot be edited
// to point at another tenant or role.
package invitation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pavitra93/care-intake-portal/shared/models"
)

const (
	// QueryParam is the login page parameter holding the token
	QueryParam = "invite"
	issuer     = "care-intake-portal"

	DefaultTTL = 7 * 24 * time.Hour
)

var ErrInvalidInvitation = errors.New("invalid invitation")

type claims struct {
	TenantID string          `json:"tid"`
	Email    string          `json:"email"`
	Role     models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Codec signs and verifies invitation tokens
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewCodec(secret string, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Encode signs inv. IssuedAt and Nonce are filled in when empty.
func (c *Codec) Encode(inv models.Invitation) (string, error) {
	if inv.TenantID == "" || inv.Email == "" {
		return "", fmt.Errorf("%w: tenant and email are required", ErrInvalidInvitation)
	}
	if inv.Role == "" {
		inv.Role = models.RoleUser
	}
	if !inv.Role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInvitation, inv.Role)
	}
	if inv.IssuedAt.IsZero() {
		inv.IssuedAt = c.now()
	}
	if inv.Nonce == "" {
		inv.Nonce = uuid.New().String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		TenantID: inv.TenantID,
		Email:    inv.Email,
		Role:     inv.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ID:        inv.Nonce,
			IssuedAt:  jwt.NewNumericDate(inv.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(inv.IssuedAt.Add(c.ttl)),
		},
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign invitation: %w", err)
	}
	return signed, nil
}

// Decode returns the invitation in token, or nil when the token is malformed,
// mis-signed or expired
func (c *Codec) Decode(token string) *models.Invitation {
	if token == "" {
		return nil
	}

	var cl claims
	parsed, err := jwt.ParseWithClaims(token, &cl, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid {
		return nil
	}
	if cl.TenantID == "" || cl.Email == "" || !cl.Role.Valid() {
		return nil
	}

	inv := &models.Invitation{
		TenantID: cl.TenantID,
		Email:    cl.Email,
		Role:     cl.Role,
		Nonce:    cl.ID,
	}
	if cl.IssuedAt != nil {
		inv.IssuedAt = cl.IssuedAt.Time
	}
	return inv
}

// Link builds the login URL an invitee follows
func Link(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/login?" + url.Values{QueryParam: {token}}.Encode()
}

// FromQuery decodes the invitation in a login page query, if any
func (c *Codec) FromQuery(q url.Values) *models.Invitation {
	return c.Decode(q.Get(QueryParam))
}
