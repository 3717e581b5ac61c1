package pass

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// GroupResolver lists the members of a user group.
type GroupResolver interface {
	MembersOf(ctx context.Context, groupID string) ([]string, error)
}

// GormGroupResolver resolves groups from the user_group_mappings table.
type GormGroupResolver struct {
	db *gorm.DB
}

// NewGormGroupResolver creates a resolver over db.
func NewGormGroupResolver(db *gorm.DB) *GormGroupResolver {
	return &GormGroupResolver{db: db}
}

// MembersOf returns member user IDs in ascending order.
func (r *GormGroupResolver) MembersOf(ctx context.Context, groupID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&UserGroupMapping{}).
		Where("user_group_id = ?", groupID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("resolve group %s: %w", groupID, err)
	}
	return ids, nil
}
