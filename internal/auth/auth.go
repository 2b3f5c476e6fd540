package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/classcast/classcast/internal/storage"
)

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Identity is the authenticated principal behind a connection, resolved once
// at connect time and immutable thereafter.
type Identity struct {
	UserID string
	Name   string
	Role   Role
}

var (
	ErrMissingToken    = errors.New("missing credential token")
	ErrInvalidToken    = errors.New("invalid credential token")
	ErrAccountInactive = errors.New("account is deactivated")
)

type UserStore interface {
	FindUserByID(id string) (storage.User, error)
}

// Claims mirrors the token payload issued by the account service at login.
type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates handshake bearer tokens and resolves them to identities.
type Verifier struct {
	secret []byte
	users  UserStore
}

func NewVerifier(secret string, users UserStore) *Verifier {
	return &Verifier{secret: []byte(secret), users: users}
}

// Verify parses and validates a signed token, loads the referenced account,
// and rejects deactivated accounts. The returned identity carries the role
// stored on the account, not the one claimed by the token.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Identity{}, ErrMissingToken
	}
	if len(v.secret) == 0 {
		return Identity{}, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return Identity{}, ErrInvalidToken
	}

	user, err := v.users.FindUserByID(claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, fmt.Errorf("resolve user %s: %w", claims.UserID, err)
	}
	if !user.IsActive {
		return Identity{}, ErrAccountInactive
	}

	return Identity{UserID: user.ID, Name: user.Name(), Role: Role(user.Role)}, nil
}

// Sign issues a token for a user id and role. Used by tests and by the demo
// account seeder; production tokens come from the account service.
func Sign(secret, userID string, role Role) (string, error) {
	claims := &Claims{
		UserID:           userID,
		Role:             string(role),
		RegisteredClaims: jwt.RegisteredClaims{},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
