package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var defaultRoles = []Role{
	{Name: "student", DisplayName: "Student", Description: "Enrolled university student"},
	{Name: "teacher", DisplayName: "Teacher", Description: "Teaching staff"},
	{Name: "employee", DisplayName: "Employee", Description: "Administrative staff"},
	{Name: "schoolboy", DisplayName: "School student", Description: "Pre-university school student"},
	{Name: "admin", DisplayName: "Administrator", Description: "Portal administrator"},
}

// SeedRoles inserts the built-in roles if they are missing. Existing
// rows are left untouched.
func SeedRoles(ctx context.Context, db *gorm.DB) error {
	for _, role := range defaultRoles {
		var existing gormRole
		err := db.WithContext(ctx).First(&existing, "name = ?", role.Name).Error
		switch {
		case err == nil:
			continue
		case errors.Is(err, gorm.ErrRecordNotFound):
			row := gormRole{Name: role.Name, DisplayName: role.DisplayName, Description: role.Description}
			if err := db.WithContext(ctx).Create(&row).Error; err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

// ListRoles returns every assignable role.
func ListRoles(ctx context.Context, db *gorm.DB) ([]Role, error) {
	var rows []gormRole
	if err := db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Role, 0, len(rows))
	for _, row := range rows {
		out = append(out, Role{Name: row.Name, DisplayName: row.DisplayName, Description: row.Description})
	}
	return out, nil
}
