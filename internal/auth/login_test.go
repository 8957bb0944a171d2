package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campusgate/portal/internal/store"
)

func newTestLogin(t *testing.T) (*LoginService, *store.UserRepository, *TokenService) {
	t.Helper()
	db, err := store.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := store.SeedRoles(context.Background(), db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	users := store.NewUserRepository(db)
	tokens := NewTokenService("unit-secret", time.Hour, time.Hour)
	return NewLoginService(users, tokens, nil), users, tokens
}

func seedUser(t *testing.T, users *store.UserRepository, username, password string, roles ...string) store.User {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if len(roles) == 0 {
		roles = []string{"student"}
	}
	user, err := users.Create(context.Background(), store.User{
		Email:        username + "@example.edu",
		Username:     username,
		PasswordHash: hash,
		Verified:     true,
		Roles:        roles,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestLoginByEmailAndUsername(t *testing.T) {
	svc, users, tokens := newTestLogin(t)
	seeded := seedUser(t, users, "sidorov", "pass-word-1")
	ctx := context.Background()

	for _, login := range []string{"sidorov", "sidorov@example.edu"} {
		user, pair, err := svc.Login(ctx, login, "pass-word-1")
		if err != nil {
			t.Fatalf("login %q: %v", login, err)
		}
		if user.ID != seeded.ID {
			t.Fatalf("login %q resolved wrong user", login)
		}
		claims, err := tokens.VerifyAccess(pair.AccessToken)
		if err != nil {
			t.Fatalf("issued access token invalid: %v", err)
		}
		if claims.Subject != seeded.ID {
			t.Fatalf("token subject = %q", claims.Subject)
		}
	}

	reloaded, err := users.GetByID(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.LastLogin == nil {
		t.Fatal("last_login not updated")
	}
}

func TestLoginWrongPasswordAndUnknownUser(t *testing.T) {
	svc, users, _ := newTestLogin(t)
	seedUser(t, users, "sidorov", "pass-word-1")
	ctx := context.Background()

	_, _, badPass := svc.Login(ctx, "sidorov", "wrong")
	_, _, noUser := svc.Login(ctx, "nobody", "wrong")
	if !errors.Is(badPass, ErrBadCredentials) || !errors.Is(noUser, ErrBadCredentials) {
		t.Fatalf("both failures must be ErrBadCredentials, got %v / %v", badPass, noUser)
	}
}

func TestRefreshReissuesWithCurrentRoles(t *testing.T) {
	svc, users, tokens := newTestLogin(t)
	seeded := seedUser(t, users, "sidorov", "pass-word-1", "student", "teacher")
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "sidorov", "pass-word-1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := tokens.VerifyAccess(next.AccessToken)
	if err != nil {
		t.Fatalf("refreshed access invalid: %v", err)
	}
	if claims.Subject != seeded.ID || len(claims.Roles) != 2 {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := svc.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrWrongTokenUse) {
		t.Fatalf("access token must not refresh, got %v", err)
	}
}
