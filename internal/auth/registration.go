package auth

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/campusgate/portal/internal/mail"
	"github.com/campusgate/portal/internal/store"
)

var (
	ErrEmailTaken       = errors.New("email already registered")
	ErrUsernameTaken    = errors.New("username already registered")
	ErrCodeInvalid      = errors.New("verification code invalid or expired")
	ErrEmailNotVerified = errors.New("email not verified")
	ErrStageIncomplete  = errors.New("registration step missing")
	ErrRoleNotAllowed   = errors.New("role cannot be self-assigned")
)

// selfAssignable lists roles a user may pick during registration. The
// admin role is only granted out of band.
var selfAssignable = map[string]bool{
	"student":   true,
	"teacher":   true,
	"employee":  true,
	"schoolboy": true,
}

// stagedRegistration is the JSON blob accumulated across the
// registration steps before the user row exists.
type stagedRegistration struct {
	Username     string `json:"username,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
	Phone        string `json:"phone,omitempty"`

	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	MiddleName string `json:"middle_name,omitempty"`
	BirthDate  string `json:"birth_date,omitempty"`
	Gender     string `json:"gender,omitempty"`
	Department string `json:"department,omitempty"`
	Position   string `json:"position,omitempty"`
	Course     int    `json:"course,omitempty"`
	GroupName  string `json:"group_name,omitempty"`
	School     string `json:"school,omitempty"`
}

// PersonalData carries the optional profile fields collected at step
// four.
type PersonalData struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	MiddleName string `json:"middle_name"`
	BirthDate  string `json:"birth_date"` // YYYY-MM-DD
	Gender     string `json:"gender"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
	Position   string `json:"position"`
	Course     int    `json:"course"`
	GroupName  string `json:"group_name"`
	School     string `json:"school"`
}

// RegistrationService drives the multi-step signup flow.
type RegistrationService struct {
	users           *store.UserRepository
	staging         *store.RegistrationRepository
	sender          mail.Sender
	logger          *zap.Logger
	codeTTL         time.Duration
	registrationTTL time.Duration
	nowFn           func() time.Time
}

func NewRegistrationService(
	users *store.UserRepository,
	staging *store.RegistrationRepository,
	sender mail.Sender,
	logger *zap.Logger,
	codeTTL, registrationTTL time.Duration,
) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if codeTTL <= 0 {
		codeTTL = 10 * time.Minute
	}
	if registrationTTL <= 0 {
		registrationTTL = time.Hour
	}
	return &RegistrationService{
		users:           users,
		staging:         staging,
		sender:          sender,
		logger:          logger,
		codeTTL:         codeTTL,
		registrationTTL: registrationTTL,
		nowFn:           time.Now,
	}
}

// Start checks the email is free and sends a fresh verification code.
// Any previous code for the email is invalidated.
func (s *RegistrationService) Start(ctx context.Context, email string) error {
	taken, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if taken {
		return ErrEmailTaken
	}
	code, err := generateCode()
	if err != nil {
		return err
	}
	_, err = s.staging.SaveCode(ctx, store.VerificationCode{Email: email, Code: code})
	if err != nil {
		return fmt.Errorf("save verification code: %w", err)
	}
	if err := s.sender.SendVerificationCode(ctx, email, code); err != nil {
		return fmt.Errorf("send verification code: %w", err)
	}
	s.logger.Info("registration started", zap.String("email", email))
	return nil
}

// Resend issues a new code, invalidating the previous one.
func (s *RegistrationService) Resend(ctx context.Context, email string) error {
	return s.Start(ctx, email)
}

// Verify checks the submitted code against the active one for the
// email. Expired codes behave like wrong codes.
func (s *RegistrationService) Verify(ctx context.Context, email, submitted string) error {
	code, err := s.staging.GetCode(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrCodeNotFound) {
			return ErrCodeInvalid
		}
		return err
	}
	if code.Expired(s.nowFn(), s.codeTTL) || code.Code != submitted {
		return ErrCodeInvalid
	}
	if err := s.staging.MarkCodeVerified(ctx, code.ID); err != nil {
		return err
	}
	s.logger.Info("email verified", zap.String("email", email))
	return nil
}

// SetCredentials stages username and password after the email has been
// verified.
func (s *RegistrationService) SetCredentials(ctx context.Context, email, username, password string) error {
	if err := s.requireVerified(ctx, email); err != nil {
		return err
	}
	taken, err := s.users.UsernameExists(ctx, username)
	if err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if taken {
		return ErrUsernameTaken
	}
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	staged, err := s.loadStaged(ctx, email)
	if err != nil && !errors.Is(err, store.ErrRegistrationNotFound) {
		return err
	}
	staged.Username = username
	staged.PasswordHash = hash
	return s.saveStaged(ctx, email, staged)
}

// SetPersonalData merges the optional profile fields into the staged
// registration.
func (s *RegistrationService) SetPersonalData(ctx context.Context, email string, data PersonalData) error {
	if err := s.requireVerified(ctx, email); err != nil {
		return err
	}
	staged, err := s.loadStaged(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrRegistrationNotFound) {
			return ErrStageIncomplete
		}
		return err
	}
	staged.FirstName = data.FirstName
	staged.LastName = data.LastName
	staged.MiddleName = data.MiddleName
	staged.BirthDate = data.BirthDate
	staged.Gender = data.Gender
	staged.Phone = data.Phone
	staged.Department = data.Department
	staged.Position = data.Position
	staged.Course = data.Course
	staged.GroupName = data.GroupName
	staged.School = data.School
	return s.saveStaged(ctx, email, staged)
}

// Complete creates the user from the staged data with the chosen
// roles, then drops the staging rows.
func (s *RegistrationService) Complete(ctx context.Context, email string, roles []string) (store.User, error) {
	if err := s.requireVerified(ctx, email); err != nil {
		return store.User{}, err
	}
	staged, err := s.loadStaged(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrRegistrationNotFound) {
			return store.User{}, ErrStageIncomplete
		}
		return store.User{}, err
	}
	if staged.Username == "" || staged.PasswordHash == "" {
		return store.User{}, ErrStageIncomplete
	}
	if len(roles) == 0 {
		roles = []string{"student"}
	}
	for _, role := range roles {
		if !selfAssignable[role] {
			return store.User{}, ErrRoleNotAllowed
		}
	}
	user := store.User{
		Email:        email,
		Username:     staged.Username,
		PasswordHash: staged.PasswordHash,
		Phone:        staged.Phone,
		Verified:     true,
		Roles:        roles,
		Profile: store.Profile{
			FirstName:  staged.FirstName,
			LastName:   staged.LastName,
			MiddleName: staged.MiddleName,
			Gender:     staged.Gender,
			Department: staged.Department,
			Position:   staged.Position,
			Course:     staged.Course,
			GroupName:  staged.GroupName,
			School:     staged.School,
		},
	}
	if staged.BirthDate != "" {
		if birth, err := time.Parse("2006-01-02", staged.BirthDate); err == nil {
			user.Profile.BirthDate = &birth
		}
	}
	created, err := s.users.Create(ctx, user)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEmailTaken):
			return store.User{}, ErrEmailTaken
		case errors.Is(err, store.ErrUsernameTaken):
			return store.User{}, ErrUsernameTaken
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	if err := s.staging.Cleanup(ctx, email); err != nil {
		s.logger.Warn("registration cleanup failed",
			zap.String("email", email), zap.Error(err))
	}
	s.logger.Info("registration completed",
		zap.String("user_id", created.ID),
		zap.Strings("roles", roles))
	return created, nil
}

func (s *RegistrationService) requireVerified(ctx context.Context, email string) error {
	code, err := s.staging.GetCode(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrCodeNotFound) {
			return ErrEmailNotVerified
		}
		return err
	}
	if !code.Verified || code.Expired(s.nowFn(), s.registrationTTL) {
		return ErrEmailNotVerified
	}
	return nil
}

func (s *RegistrationService) loadStaged(ctx context.Context, email string) (stagedRegistration, error) {
	var staged stagedRegistration
	data, err := s.staging.GetData(ctx, email)
	if err != nil {
		return staged, err
	}
	if data.Expired(s.nowFn(), s.registrationTTL) {
		return staged, store.ErrRegistrationNotFound
	}
	if err := json.Unmarshal([]byte(data.Data), &staged); err != nil {
		return staged, fmt.Errorf("decode staged registration: %w", err)
	}
	return staged, nil
}

func (s *RegistrationService) saveStaged(ctx context.Context, email string, staged stagedRegistration) error {
	blob, err := json.Marshal(staged)
	if err != nil {
		return err
	}
	_, err = s.staging.SaveData(ctx, store.RegistrationData{Email: email, Data: string(blob)})
	return err
}

// generateCode produces a 5-digit numeric verification code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(90000))
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%05d", n.Int64()+10000), nil
}
