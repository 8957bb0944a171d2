package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrCodeNotFound         = errors.New("verification code not found")
	ErrRegistrationNotFound = errors.New("registration data not found")
)

// RegistrationRepository holds the transient state of an in-progress
// registration: the email verification code and the staged form data.
type RegistrationRepository struct {
	db *gorm.DB
}

func NewRegistrationRepository(db *gorm.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// SaveCode replaces any previous code for the email so only the most
// recent one can be verified.
func (r *RegistrationRepository) SaveCode(ctx context.Context, code VerificationCode) (VerificationCode, error) {
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now().UTC()
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&gormVerificationCode{}, "email = ?", code.Email).Error; err != nil {
			return err
		}
		return tx.Create(&gormVerificationCode{
			ID:        code.ID,
			Email:     code.Email,
			Code:      code.Code,
			Verified:  code.Verified,
			CreatedAt: code.CreatedAt,
		}).Error
	})
	if err != nil {
		return VerificationCode{}, err
	}
	return code, nil
}

func (r *RegistrationRepository) GetCode(ctx context.Context, email string) (VerificationCode, error) {
	var row gormVerificationCode
	if err := r.db.WithContext(ctx).First(&row, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return VerificationCode{}, ErrCodeNotFound
		}
		return VerificationCode{}, err
	}
	return VerificationCode{
		ID:        row.ID,
		Email:     row.Email,
		Code:      row.Code,
		Verified:  row.Verified,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (r *RegistrationRepository) MarkCodeVerified(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&gormVerificationCode{}).
		Where("id = ?", id).Update("verified", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCodeNotFound
	}
	return nil
}

// SaveData upserts the staged registration blob for the email.
func (r *RegistrationRepository) SaveData(ctx context.Context, data RegistrationData) (RegistrationData, error) {
	if data.ID == "" {
		data.ID = uuid.NewString()
	}
	if data.CreatedAt.IsZero() {
		data.CreatedAt = time.Now().UTC()
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing gormRegistrationData
		err := tx.First(&existing, "email = ?", data.Email).Error
		switch {
		case err == nil:
			data.ID = existing.ID
			data.CreatedAt = existing.CreatedAt
			return tx.Model(&gormRegistrationData{}).
				Where("id = ?", existing.ID).Update("data", data.Data).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&gormRegistrationData{
				ID:        data.ID,
				Email:     data.Email,
				Data:      data.Data,
				CreatedAt: data.CreatedAt,
			}).Error
		default:
			return err
		}
	})
	if err != nil {
		return RegistrationData{}, err
	}
	return data, nil
}

func (r *RegistrationRepository) GetData(ctx context.Context, email string) (RegistrationData, error) {
	var row gormRegistrationData
	if err := r.db.WithContext(ctx).First(&row, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RegistrationData{}, ErrRegistrationNotFound
		}
		return RegistrationData{}, err
	}
	return RegistrationData{
		ID:        row.ID,
		Email:     row.Email,
		Data:      row.Data,
		CreatedAt: row.CreatedAt,
	}, nil
}

// Cleanup drops the code and staged data once registration completes.
func (r *RegistrationRepository) Cleanup(ctx context.Context, email string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&gormVerificationCode{}, "email = ?", email).Error; err != nil {
			return err
		}
		return tx.Delete(&gormRegistrationData{}, "email = ?", email).Error
	})
}
