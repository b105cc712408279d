package auth

import (
	"context"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type identityKey struct{}

type identity struct {
	userID uuid.UUID
	role   Role
}

func ContextWithIdentity(ctx context.Context, id uuid.UUID, role Role) context.Context {
	return context.WithValue(ctx, identityKey{}, identity{userID: id, role: role})
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(identityKey{}).(identity)
	return id.userID, ok
}

func RoleFromContext(ctx context.Context) Role {
	id, _ := ctx.Value(identityKey{}).(identity)
	return id.role
}

func IsAdmin(ctx context.Context) bool {
	return RoleFromContext(ctx) == RoleAdmin
}
