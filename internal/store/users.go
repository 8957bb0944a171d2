package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already registered")
	ErrUsernameTaken = errors.New("username already registered")
	ErrRoleNotFound  = errors.New("role not found")
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create persists the user with its profile and role links in one
// transaction.
func (r *UserRepository) Create(ctx context.Context, user User) (User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&gormUser{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrEmailTaken
		}
		if err := tx.Model(&gormUser{}).Where("username = ?", user.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameTaken
		}
		if err := tx.Create(fromUser(&user)).Error; err != nil {
			return err
		}
		profile := fromProfile(user.ID, &user.Profile)
		profile.ID = uuid.NewString()
		if err := tx.Create(profile).Error; err != nil {
			return err
		}
		for _, role := range user.Roles {
			var roleCount int64
			if err := tx.Model(&gormRole{}).Where("name = ?", role).Count(&roleCount).Error; err != nil {
				return err
			}
			if roleCount == 0 {
				return ErrRoleNotFound
			}
			if err := tx.Create(&gormUserRole{UserID: user.ID, RoleName: role}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (User, error) {
	var row gormUser
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return r.hydrate(ctx, &row)
}

// GetByLogin resolves a user by email or username.
func (r *UserRepository) GetByLogin(ctx context.Context, login string) (User, error) {
	var row gormUser
	err := r.db.WithContext(ctx).
		Where("email = ? OR username = ?", login, login).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return r.hydrate(ctx, &row)
}

func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&gormUser{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&gormUser{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&gormUser{}).Where("id = ?", id).
		Update("last_login", at).Error
}

// ListEmployees returns users holding the employee or teacher role,
// optionally filtered by profile department. Profiles and roles are
// loaded in one batch query each rather than per user.
func (r *UserRepository) ListEmployees(ctx context.Context, department string) ([]User, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&gormUserRole{}).
		Where("role_name IN ?", []string{"employee", "teacher"}).
		Distinct("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []User{}, nil
	}

	profileQuery := r.db.WithContext(ctx).Where("user_id IN ?", ids)
	if department != "" {
		profileQuery = profileQuery.Where("department = ?", department)
	}
	var profiles []gormProfile
	if err := profileQuery.Order("last_name, first_name").Find(&profiles).Error; err != nil {
		return nil, err
	}
	kept := make([]string, 0, len(profiles))
	for i := range profiles {
		kept = append(kept, profiles[i].UserID)
	}
	if len(kept) == 0 {
		return []User{}, nil
	}

	var rows []gormUser
	if err := r.db.WithContext(ctx).Where("id IN ?", kept).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]User, len(rows))
	for i := range rows {
		byID[rows[i].ID] = toUser(&rows[i])
	}

	var links []gormUserRole
	if err := r.db.WithContext(ctx).Where("user_id IN ?", kept).Find(&links).Error; err != nil {
		return nil, err
	}
	rolesByID := make(map[string][]string, len(byID))
	for _, link := range links {
		rolesByID[link.UserID] = append(rolesByID[link.UserID], link.RoleName)
	}

	out := make([]User, 0, len(profiles))
	for i := range profiles {
		user, ok := byID[profiles[i].UserID]
		if !ok {
			continue
		}
		user.Profile = toProfile(&profiles[i])
		user.Roles = rolesByID[user.ID]
		out = append(out, user)
	}
	return out, nil
}

func (r *UserRepository) hydrate(ctx context.Context, row *gormUser) (User, error) {
	user := toUser(row)
	var profile gormProfile
	err := r.db.WithContext(ctx).First(&profile, "user_id = ?", row.ID).Error
	if err == nil {
		user.Profile = toProfile(&profile)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, err
	}
	var roles []string
	err = r.db.WithContext(ctx).Model(&gormUserRole{}).
		Where("user_id = ?", row.ID).
		Pluck("role_name", &roles).Error
	if err != nil {
		return User{}, err
	}
	user.Roles = roles
	return user, nil
}

func fromUser(u *User) *gormUser {
	return &gormUser{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Phone:        u.Phone,
		Verified:     u.Verified,
		CreatedAt:    u.CreatedAt,
		LastLogin:    u.LastLogin,
	}
}

func toUser(row *gormUser) User {
	return User{
		ID:           row.ID,
		Email:        row.Email,
		Username:     row.Username,
		PasswordHash: row.PasswordHash,
		Phone:        row.Phone,
		Verified:     row.Verified,
		CreatedAt:    row.CreatedAt,
		LastLogin:    row.LastLogin,
	}
}

func fromProfile(userID string, p *Profile) *gormProfile {
	return &gormProfile{
		UserID:     userID,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		MiddleName: p.MiddleName,
		BirthDate:  p.BirthDate,
		Gender:     p.Gender,
		Department: p.Department,
		Position:   p.Position,
		Course:     p.Course,
		GroupName:  p.GroupName,
		School:     p.School,
	}
}

func toProfile(row *gormProfile) Profile {
	return Profile{
		FirstName:  row.FirstName,
		LastName:   row.LastName,
		MiddleName: row.MiddleName,
		BirthDate:  row.BirthDate,
		Gender:     row.Gender,
		Department: row.Department,
		Position:   row.Position,
		Course:     row.Course,
		GroupName:  row.GroupName,
		School:     row.School,
	}
}
