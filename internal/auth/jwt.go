package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is stamped on every token and required on validation.
const Issuer = "chainfund-payouts"

var ErrInvalidSubject = errors.New("token subject is not a user id")

// Identity is what a validated bearer token says about the caller.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   Role
}

type payoutClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// GenerateToken issues an HS256 token whose subject is the user id.
func GenerateToken(userID uuid.UUID, email string, role Role, secret string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := payoutClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Email: email,
		Role:  string(role),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("GenerateToken: %w", err)
	}
	return signed, nil
}

func ValidateToken(tokenString string, secret string) (*Identity, error) {
	var claims payoutClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: %w", err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: %w", ErrInvalidSubject)
	}

	// Anything but an explicit admin role is an ordinary user.
	role := RoleUser
	if Role(claims.Role) == RoleAdmin {
		role = RoleAdmin
	}

	return &Identity{UserID: userID, Email: claims.Email, Role: role}, nil
}
