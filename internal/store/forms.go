package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrFormNotFound = errors.New("form not found")

type FormRepository struct {
	db *gorm.DB
}

func NewFormRepository(db *gorm.DB) *FormRepository {
	return &FormRepository{db: db}
}

func (r *FormRepository) Create(ctx context.Context, form Form) (Form, error) {
	if form.ID == "" {
		form.ID = uuid.NewString()
	}
	if form.CreatedAt.IsZero() {
		form.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(fromForm(&form)).Error; err != nil {
		return Form{}, err
	}
	return form, nil
}

func (r *FormRepository) Get(ctx context.Context, id string) (Form, error) {
	var row gormForm
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Form{}, ErrFormNotFound
		}
		return Form{}, err
	}
	return toForm(&row), nil
}

// List returns forms, newest first, optionally filtered by type.
func (r *FormRepository) List(ctx context.Context, formType string) ([]Form, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if formType != "" {
		query = query.Where("form_type = ?", formType)
	}
	var rows []gormForm
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Form, 0, len(rows))
	for i := range rows {
		out = append(out, toForm(&rows[i]))
	}
	return out, nil
}

func (r *FormRepository) Update(ctx context.Context, form Form) error {
	result := r.db.WithContext(ctx).Model(&gormForm{}).
		Where("id = ?", form.ID).
		Updates(map[string]any{
			"name":        form.Name,
			"description": form.Description,
			"form_type":   form.FormType,
			"responsible": form.Responsible,
			"period":      form.Period,
			"fields":      form.Fields,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrFormNotFound
	}
	return nil
}

func (r *FormRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&gormForm{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrFormNotFound
	}
	return nil
}

func fromForm(f *Form) *gormForm {
	return &gormForm{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		FormType:    f.FormType,
		Responsible: f.Responsible,
		Period:      f.Period,
		Fields:      f.Fields,
		CreatedBy:   f.CreatedBy,
		CreatedAt:   f.CreatedAt,
	}
}

func toForm(row *gormForm) Form {
	return Form{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		FormType:    row.FormType,
		Responsible: row.Responsible,
		Period:      row.Period,
		Fields:      row.Fields,
		CreatedBy:   row.CreatedBy,
		CreatedAt:   row.CreatedAt,
	}
}
