package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrDepartmentNotFound = errors.New("department not found")
	ErrDepartmentHasUnits = errors.New("department has child units")
)

type DepartmentRepository struct {
	db *gorm.DB
}

func NewDepartmentRepository(db *gorm.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

func (r *DepartmentRepository) Create(ctx context.Context, dept Department) (Department, error) {
	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}
	if dept.CreatedAt.IsZero() {
		dept.CreatedAt = time.Now().UTC()
	}
	if dept.ParentID != "" {
		var count int64
		err := r.db.WithContext(ctx).Model(&gormDepartment{}).
			Where("id = ?", dept.ParentID).Count(&count).Error
		if err != nil {
			return Department{}, err
		}
		if count == 0 {
			return Department{}, ErrDepartmentNotFound
		}
	}
	if err := r.db.WithContext(ctx).Create(fromDepartment(&dept)).Error; err != nil {
		return Department{}, err
	}
	return dept, nil
}

func (r *DepartmentRepository) Get(ctx context.Context, id string) (Department, error) {
	var row gormDepartment
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Department{}, ErrDepartmentNotFound
		}
		return Department{}, err
	}
	return toDepartment(&row), nil
}

func (r *DepartmentRepository) List(ctx context.Context) ([]Department, error) {
	var rows []gormDepartment
	if err := r.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Department, 0, len(rows))
	for i := range rows {
		out = append(out, toDepartment(&rows[i]))
	}
	return out, nil
}

func (r *DepartmentRepository) Update(ctx context.Context, dept Department) error {
	result := r.db.WithContext(ctx).Model(&gormDepartment{}).
		Where("id = ?", dept.ID).
		Updates(map[string]any{
			"name":         dept.Name,
			"short_name":   dept.ShortName,
			"description":  dept.Description,
			"parent_id":    dept.ParentID,
			"head_user_id": dept.HeadUserID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDepartmentNotFound
	}
	return nil
}

// Delete refuses to remove a department that still has children.
func (r *DepartmentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&gormDepartment{}).Where("parent_id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDepartmentHasUnits
		}
		result := tx.Delete(&gormDepartment{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrDepartmentNotFound
		}
		return nil
	})
}

func fromDepartment(d *Department) *gormDepartment {
	return &gormDepartment{
		ID:          d.ID,
		Name:        d.Name,
		ShortName:   d.ShortName,
		Description: d.Description,
		ParentID:    d.ParentID,
		HeadUserID:  d.HeadUserID,
		CreatedBy:   d.CreatedBy,
		CreatedAt:   d.CreatedAt,
	}
}

func toDepartment(row *gormDepartment) Department {
	return Department{
		ID:          row.ID,
		Name:        row.Name,
		ShortName:   row.ShortName,
		Description: row.Description,
		ParentID:    row.ParentID,
		HeadUserID:  row.HeadUserID,
		CreatedBy:   row.CreatedBy,
		CreatedAt:   row.CreatedAt,
	}
}
