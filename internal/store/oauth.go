package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/campusgate/portal/internal/oauth"
)

// OAuthStore is the relational implementation of oauth.Store. The compound
// operations run inside transactions: code consumption is a conditional
// delete whose affected-row count gates token issuance, and refresh
// rotation deletes the old row and inserts the replacement in one commit.
type OAuthStore struct {
	db *gorm.DB
}

func NewOAuthStore(db *gorm.DB) *OAuthStore {
	return &OAuthStore{db: db}
}

func (s *OAuthStore) CreateClient(ctx context.Context, client oauth.Client, rawSecret string) (oauth.Client, string, error) {
	prepared, rawSecret, err := oauth.PrepareClient(client, rawSecret)
	if err != nil {
		return oauth.Client{}, "", err
	}
	err = s.db.WithContext(ctx).Create(fromOAuthClient(prepared)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return oauth.Client{}, "", oauth.ErrClientExists
		}
		return oauth.Client{}, "", err
	}
	return prepared, rawSecret, nil
}

func (s *OAuthStore) GetClient(ctx context.Context, clientID string) (oauth.Client, error) {
	var row gormOAuthClient
	if err := s.db.WithContext(ctx).First(&row, "client_id = ?", clientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return oauth.Client{}, oauth.ErrClientNotFound
		}
		return oauth.Client{}, err
	}
	return toOAuthClient(&row), nil
}

func (s *OAuthStore) ListClients(ctx context.Context) ([]oauth.Client, error) {
	var rows []gormOAuthClient
	if err := s.db.WithContext(ctx).Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]oauth.Client, 0, len(rows))
	for i := range rows {
		out = append(out, toOAuthClient(&rows[i]))
	}
	return out, nil
}

func (s *OAuthStore) UpdateClient(ctx context.Context, client oauth.Client) (oauth.Client, error) {
	current, err := s.GetClient(ctx, client.ClientID)
	if err != nil {
		return oauth.Client{}, err
	}
	merged := oauth.MergeClientUpdate(current, client)
	if err := s.db.WithContext(ctx).Save(fromOAuthClient(merged)).Error; err != nil {
		return oauth.Client{}, err
	}
	return merged, nil
}

func (s *OAuthStore) SaveCode(ctx context.Context, code oauth.AuthorizationCode) error {
	return s.db.WithContext(ctx).Create(fromOAuthCode(code)).Error
}

func (s *OAuthStore) ExchangeCode(ctx context.Context, rawCode, clientID string, now time.Time, mint oauth.MintFunc) (oauth.Token, error) {
	hash := oauth.HashToken(rawCode)
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return oauth.Token{}, tx.Error
	}
	defer tx.Rollback()

	// No row lock here: sqlite has none, and the RowsAffected gate on the
	// delete below already picks exactly one winner.
	var row gormOAuthCode
	err := tx.First(&row, "code_hash = ? AND client_id = ?", hash, clientID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return oauth.Token{}, oauth.ErrCodeNotFound
		}
		return oauth.Token{}, err
	}
	res := tx.Delete(&gormOAuthCode{}, "code_hash = ?", hash)
	if res.Error != nil {
		return oauth.Token{}, res.Error
	}
	if res.RowsAffected == 0 {
		// A concurrent exchange took the code between the read and the
		// delete.
		return oauth.Token{}, oauth.ErrCodeNotFound
	}

	code := toOAuthCode(&row)
	if code.Expired(now) {
		// Commit so the expired code stays deleted, then report it
		// exactly like a missing code.
		if err := tx.Commit().Error; err != nil {
			return oauth.Token{}, err
		}
		return oauth.Token{}, oauth.ErrCodeNotFound
	}
	token, err := mint(code)
	if err != nil {
		// Single use holds even on a failed exchange: the consumption is
		// committed, no token is persisted.
		if commitErr := tx.Commit().Error; commitErr != nil {
			return oauth.Token{}, commitErr
		}
		return oauth.Token{}, err
	}
	if err := tx.Create(fromOAuthToken(token)).Error; err != nil {
		// Transient failure: roll the consumption back rather than
		// leaving a deleted code without an issued token.
		return oauth.Token{}, err
	}
	if err := tx.Commit().Error; err != nil {
		return oauth.Token{}, err
	}
	return token, nil
}

func (s *OAuthStore) SaveToken(ctx context.Context, token oauth.Token) error {
	return s.db.WithContext(ctx).Create(fromOAuthToken(token)).Error
}

func (s *OAuthStore) GetByAccessToken(ctx context.Context, rawAccess string) (oauth.Token, error) {
	var row gormOAuthToken
	err := s.db.WithContext(ctx).First(&row, "access_token_hash = ?", oauth.HashToken(rawAccess)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return oauth.Token{}, oauth.ErrTokenNotFound
		}
		return oauth.Token{}, err
	}
	return toOAuthToken(&row), nil
}

func (s *OAuthStore) GetByRefreshToken(ctx context.Context, rawRefresh string) (oauth.Token, error) {
	var row gormOAuthToken
	err := s.db.WithContext(ctx).First(&row, "refresh_token_hash = ?", oauth.HashToken(rawRefresh)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return oauth.Token{}, oauth.ErrTokenNotFound
		}
		return oauth.Token{}, err
	}
	return toOAuthToken(&row), nil
}

func (s *OAuthStore) RotateToken(ctx context.Context, oldRawRefresh string, next oauth.Token) error {
	hash := oauth.HashToken(oldRawRefresh)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&gormOAuthToken{}, "refresh_token_hash = ?", hash)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return oauth.ErrTokenNotFound
		}
		return tx.Create(fromOAuthToken(next)).Error
	})
}

// PurgeExpired removes authorization codes past their expiry. Consumed
// codes are already gone; this only sweeps the ones never redeemed.
func (s *OAuthStore) PurgeExpired(ctx context.Context, now time.Time) error {
	return s.db.WithContext(ctx).Delete(&gormOAuthCode{}, "expires_at < ?", now).Error
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
