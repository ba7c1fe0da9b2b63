package repository

import (
	"context"
	"errors"
	"time"

	"postflow/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SecretRepository stores platform credentials in the settings table.
// Rows with an empty organization id are the shared global credentials.
type SecretRepository struct {
	db *gorm.DB
}

func NewSecretRepository(db *gorm.DB) *SecretRepository {
	return &SecretRepository{db: db}
}

// OrganizationSecret returns "" when nothing is stored.
func (r *SecretRepository) OrganizationSecret(ctx context.Context, organizationID, platform string) (string, error) {
	var s model.PlatformSecret
	err := r.db.WithContext(ctx).
		Select("value").
		Where("organization_id = ? AND platform = ?", organizationID, platform).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return s.Value, nil
}

func (r *SecretRepository) GlobalSecret(ctx context.Context, platform string) (string, error) {
	return r.OrganizationSecret(ctx, "", platform)
}

// Upsert replaces the credential for (organization, platform).
func (r *SecretRepository) Upsert(ctx context.Context, organizationID, platform, value, updatedBy string) error {
	now := time.Now().UTC()
	s := &model.PlatformSecret{
		OrganizationID: organizationID,
		Platform:       platform,
		Value:          value,
		UpdatedBy:      updatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}, {Name: "platform"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
	}).Create(s).Error
}
