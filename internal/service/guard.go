package service

import (
	"context"
	"slices"

	"postflow/internal/repository"
)

// AuthorizationGuard answers organization access questions from the
// membership table. It has no side effects.
type AuthorizationGuard struct {
	memberships repository.MembershipInterface
}

func NewAuthorizationGuard(memberships repository.MembershipInterface) *AuthorizationGuard {
	return &AuthorizationGuard{memberships: memberships}
}

func (g *AuthorizationGuard) VerifyMembership(ctx context.Context, userID, organizationID string) (bool, error) {
	if userID == "" || organizationID == "" {
		return false, nil
	}
	m, err := g.memberships.FindActive(ctx, userID, organizationID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

// VerifyRole requires an active membership whose role is one of allowed.
func (g *AuthorizationGuard) VerifyRole(ctx context.Context, userID, organizationID string, allowed ...string) (bool, error) {
	if userID == "" || organizationID == "" {
		return false, nil
	}
	m, err := g.memberships.FindActive(ctx, userID, organizationID)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}
	return slices.Contains(allowed, m.Role), nil
}
