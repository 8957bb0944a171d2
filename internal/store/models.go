package store

import (
	"time"

	"github.com/campusgate/portal/internal/oauth"
)

// Domain types returned by the repositories.

type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Phone        string
	Verified     bool
	CreatedAt    time.Time
	LastLogin    *time.Time
	Profile      Profile
	Roles        []string
}

type Profile struct {
	FirstName  string
	LastName   string
	MiddleName string
	BirthDate  *time.Time
	Gender     string
	Department string // employees
	Position   string // employees
	Course     int    // students
	GroupName  string // students
	School     string // schoolchildren
}

type Role struct {
	Name        string
	DisplayName string
	Description string
}

type VerificationCode struct {
	ID        string
	Email     string
	Code      string
	Verified  bool
	CreatedAt time.Time
}

func (v *VerificationCode) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(v.CreatedAt) > ttl
}

type RegistrationData struct {
	ID        string
	Email     string
	Data      string // JSON blob accumulated across registration steps
	CreatedAt time.Time
}

func (r *RegistrationData) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.CreatedAt) > ttl
}

type Department struct {
	ID          string
	Name        string
	ShortName   string
	Description string
	ParentID    string
	HeadUserID  string
	CreatedBy   string
	CreatedAt   time.Time
}

type Form struct {
	ID          string
	Name        string
	Description string
	FormType    string
	Responsible string
	Period      string
	Fields      string // JSON field definitions
	CreatedBy   string
	CreatedAt   time.Time
}

// GORM rows.

type gormUser struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;size:120"`
	Username     string `gorm:"uniqueIndex;size:80"`
	PasswordHash string
	Phone        string
	Verified     bool
	CreatedAt    time.Time
	LastLogin    *time.Time
}

func (gormUser) TableName() string { return "users" }

type gormProfile struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"uniqueIndex"`
	FirstName  string
	LastName   string
	MiddleName string
	BirthDate  *time.Time
	Gender     string
	Department string
	Position   string
	Course     int
	GroupName  string
	School     string
}

func (gormProfile) TableName() string { return "user_profiles" }

type gormRole struct {
	Name        string `gorm:"primaryKey;size:50"`
	DisplayName string
	Description string
}

func (gormRole) TableName() string { return "roles" }

type gormUserRole struct {
	UserID   string `gorm:"primaryKey"`
	RoleName string `gorm:"primaryKey;size:50"`
}

func (gormUserRole) TableName() string { return "user_roles" }

type gormVerificationCode struct {
	ID        string `gorm:"primaryKey"`
	Email     string `gorm:"index;size:120"`
	Code      string `gorm:"size:6"`
	Verified  bool
	CreatedAt time.Time
}

func (gormVerificationCode) TableName() string { return "verification_codes" }

type gormRegistrationData struct {
	ID        string `gorm:"primaryKey"`
	Email     string `gorm:"index;size:120"`
	Data      string
	CreatedAt time.Time
}

func (gormRegistrationData) TableName() string { return "registration_data" }

type gormDepartment struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"size:200"`
	ShortName   string `gorm:"size:50"`
	Description string
	ParentID    string `gorm:"index"`
	HeadUserID  string `gorm:"index"`
	CreatedBy   string
	CreatedAt   time.Time
}

func (gormDepartment) TableName() string { return "departments" }

type gormForm struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"size:200"`
	Description string
	FormType    string `gorm:"size:50"`
	Responsible string
	Period      string
	Fields      string
	CreatedBy   string `gorm:"index"`
	CreatedAt   time.Time
}

func (gormForm) TableName() string { return "forms" }

type gormOAuthClient struct {
	ClientID     string `gorm:"primaryKey;size:64"`
	SecretHash   string
	Name         string
	Description  string
	RedirectURIs string // space-delimited
	Scopes       string // space-delimited
	GrantTypes   string // space-delimited
	CreatedBy    string
	CreatedAt    time.Time
}

func (gormOAuthClient) TableName() string { return "oauth_clients" }

type gormOAuthCode struct {
	CodeHash            string `gorm:"primaryKey;size:64"`
	ClientID            string `gorm:"index;size:64"`
	UserID              string `gorm:"index"`
	RedirectURI         string
	Scope               string
	ResponseType        string `gorm:"size:40"`
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string `gorm:"size:10"`
	AuthTime            time.Time
	ExpiresAt           time.Time `gorm:"index"`
}

func (gormOAuthCode) TableName() string { return "oauth_codes" }

type gormOAuthToken struct {
	AccessTokenHash  string `gorm:"primaryKey;size:64"`
	RefreshTokenHash string `gorm:"index;size:64"`
	ClientID         string `gorm:"index;size:64"`
	UserID           string `gorm:"index"`
	Scope            string
	TokenType        string `gorm:"size:40"`
	IssuedAt         time.Time
	ExpiresIn        int64 // seconds
}

func (gormOAuthToken) TableName() string { return "oauth_tokens" }

// Mappers between the oauth domain types and their rows.

func fromOAuthClient(c oauth.Client) *gormOAuthClient {
	return &gormOAuthClient{
		ClientID:     c.ClientID,
		SecretHash:   c.SecretHash,
		Name:         c.Name,
		Description:  c.Description,
		RedirectURIs: oauth.JoinScope(c.RedirectURIs),
		Scopes:       oauth.JoinScope(c.Scopes),
		GrantTypes:   oauth.JoinScope(c.GrantTypes),
		CreatedBy:    c.CreatedBy,
		CreatedAt:    c.CreatedAt,
	}
}

func toOAuthClient(row *gormOAuthClient) oauth.Client {
	return oauth.Client{
		ClientID:     row.ClientID,
		SecretHash:   row.SecretHash,
		Name:         row.Name,
		Description:  row.Description,
		RedirectURIs: oauth.SplitScope(row.RedirectURIs),
		Scopes:       oauth.SplitScope(row.Scopes),
		GrantTypes:   oauth.SplitScope(row.GrantTypes),
		CreatedBy:    row.CreatedBy,
		CreatedAt:    row.CreatedAt,
	}
}

func fromOAuthCode(c oauth.AuthorizationCode) *gormOAuthCode {
	return &gormOAuthCode{
		CodeHash:            c.CodeHash,
		ClientID:            c.ClientID,
		UserID:              c.UserID,
		RedirectURI:         c.RedirectURI,
		Scope:               oauth.JoinScope(c.Scope),
		ResponseType:        c.ResponseType,
		Nonce:               c.Nonce,
		CodeChallenge:       c.CodeChallenge,
		CodeChallengeMethod: c.CodeChallengeMethod,
		AuthTime:            c.AuthTime,
		ExpiresAt:           c.ExpiresAt,
	}
}

func toOAuthCode(row *gormOAuthCode) oauth.AuthorizationCode {
	return oauth.AuthorizationCode{
		CodeHash:            row.CodeHash,
		ClientID:            row.ClientID,
		UserID:              row.UserID,
		RedirectURI:         row.RedirectURI,
		Scope:               oauth.SplitScope(row.Scope),
		ResponseType:        row.ResponseType,
		Nonce:               row.Nonce,
		CodeChallenge:       row.CodeChallenge,
		CodeChallengeMethod: row.CodeChallengeMethod,
		AuthTime:            row.AuthTime,
		ExpiresAt:           row.ExpiresAt,
	}
}

func fromOAuthToken(t oauth.Token) *gormOAuthToken {
	return &gormOAuthToken{
		AccessTokenHash:  t.AccessTokenHash,
		RefreshTokenHash: t.RefreshTokenHash,
		ClientID:         t.ClientID,
		UserID:           t.UserID,
		Scope:            oauth.JoinScope(t.Scope),
		TokenType:        t.TokenType,
		IssuedAt:         t.IssuedAt,
		ExpiresIn:        int64(t.ExpiresIn / time.Second),
	}
}

func toOAuthToken(row *gormOAuthToken) oauth.Token {
	return oauth.Token{
		AccessTokenHash:  row.AccessTokenHash,
		RefreshTokenHash: row.RefreshTokenHash,
		ClientID:         row.ClientID,
		UserID:           row.UserID,
		Scope:            oauth.SplitScope(row.Scope),
		TokenType:        row.TokenType,
		IssuedAt:         row.IssuedAt,
		ExpiresIn:        time.Duration(row.ExpiresIn) * time.Second,
	}
}
