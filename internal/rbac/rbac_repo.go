package rbac

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:generate mockgen -source=rbac_repo.go -destination=mock/rbac_repo_mock.go -package=mock
type Repository interface {
	GetRolePermissions(ctx context.Context) ([]RolePermission, error)
	GetRoleParents(ctx context.Context) ([]RoleParent, error)
	SeedDefaults(ctx context.Context) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetRolePermissions(ctx context.Context) ([]RolePermission, error) {
	var rows []RolePermission
	err := r.db.WithContext(ctx).Order("role, resource, action").Find(&rows).Error
	return rows, err
}

func (r *repository) GetRoleParents(ctx context.Context) ([]RoleParent, error) {
	var rows []RoleParent
	err := r.db.WithContext(ctx).Order("role, parent").Find(&rows).Error
	return rows, err
}

// SeedDefaults inserts the default grants, leaving existing rows alone.
func (r *repository) SeedDefaults(ctx context.Context) error {
	perms := append([]RolePermission(nil), DefaultPermissions...)
	parents := append([]RoleParent(nil), DefaultParents...)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&perms).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&parents).Error
	})
}
