package repository

import (
	"context"
	"errors"

	"postflow/internal/model"
	"postflow/pkg/constraints"

	"gorm.io/gorm"
)

// MembershipInterface reads organization memberships.
type MembershipInterface interface {
	FindActive(ctx context.Context, userID, organizationID string) (*model.OrganizationMembership, error)
}

type MembershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// FindActive returns nil, nil when the user has no active membership.
func (r *MembershipRepository) FindActive(ctx context.Context, userID, organizationID string) (*model.OrganizationMembership, error) {
	var m model.OrganizationMembership
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND organization_id = ? AND status = ?", userID, organizationID, constraints.MembershipActive).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}
