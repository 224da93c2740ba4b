// Package auth issues and verifies bearer tokens and carries the resulting
// identity through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"quickeats/gorest/models"
)

// Identity is who is making a request.
type Identity struct {
	UserID primitive.ObjectID
	Role   models.Role
}

func (id Identity) IsAdmin() bool {
	return id.Role.IsAdmin()
}

// CanActOn reports whether the identity may read or act on a resource owned by
// ownerID: admins on anything, customers only on their own.
func (id Identity) CanActOn(ownerID primitive.ObjectID) bool {
	if id.Role.IsAdmin() {
		return true
	}
	return id.Role == models.RoleCustomer && !id.UserID.IsZero() && id.UserID == ownerID
}

func RequireAdmin(id Identity) error {
	if !id.IsAdmin() {
		return fmt.Errorf("admin access required: %w", models.ErrForbidden)
	}
	return nil
}

// Claims is the token payload.
type Claims struct {
	UserID string      `json:"userId"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// UserLookup resolves a user id; it returns models.ErrNotFound for unknown ids.
type UserLookup interface {
	FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// Guard turns an Authorization header into an Identity.
type Guard struct {
	secret []byte
	users  UserLookup
	now    func() time.Time
}

func NewGuard(secret []byte, users UserLookup) *Guard {
	return &Guard{secret: secret, users: users, now: time.Now}
}

// Authenticate verifies a "Bearer <token>" header. The role is taken from the
// stored user so a demoted or deleted account loses access immediately.
func (g *Guard) Authenticate(ctx context.Context, header string) (Identity, error) {
	tokenString, err := bearerToken(header)
	if err != nil {
		return Identity{}, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, models.ErrExpired
		}
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return Identity{}, models.ErrUnauthenticated
		}
		return Identity{}, fmt.Errorf("%w: %v", models.ErrInvalidCredential, err)
	}
	if !token.Valid {
		return Identity{}, models.ErrInvalidCredential
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: bad subject", models.ErrInvalidCredential)
	}

	user, err := g.users.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return Identity{}, fmt.Errorf("%w: user no longer exists", models.ErrInvalidCredential)
		}
		return Identity{}, err
	}
	if !user.Role.Valid() {
		return Identity{}, fmt.Errorf("%w: unknown role", models.ErrInvalidCredential)
	}

	return Identity{UserID: user.ID, Role: user.Role}, nil
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", models.ErrUnauthenticated
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", models.ErrUnauthenticated
	}
	return strings.TrimSpace(token), nil
}

// Issuer mints tokens with a lifetime chosen by role.
type Issuer struct {
	secret      []byte
	customerTTL time.Duration
	adminTTL    time.Duration
	now         func() time.Time
}

func NewIssuer(secret []byte, customerTTL, adminTTL time.Duration) *Issuer {
	return &Issuer{secret: secret, customerTTL: customerTTL, adminTTL: adminTTL, now: time.Now}
}

func (i *Issuer) Issue(user *models.User) (string, time.Time, error) {
	ttl := i.customerTTL
	if user.Role.IsAdmin() {
		ttl = i.adminTTL
	}
	now := i.now()
	expires := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: user.ID.Hex(),
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
