package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusgate/portal/internal/auth"
	"github.com/campusgate/portal/internal/mail"
	"github.com/campusgate/portal/internal/oauth"
	"github.com/campusgate/portal/internal/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

type testEnv struct {
	router *gin.Engine
	users  *store.UserRepository
	oauth  oauth.Store
	tokens *auth.TokenService
}

func newTestEnv(t *testing.T) *testEnv {
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
	staging := store.NewRegistrationRepository(db)
	oauthStore := store.NewOAuthStore(db)
	tokens := auth.NewTokenService("router-test-secret", time.Hour, 24*time.Hour)

	router := NewRouter(Deps{
		Tokens:       tokens,
		Registration: auth.NewRegistrationService(users, staging, mail.NewConsoleSender(nil), nil, 10*time.Minute, time.Hour),
		Login:        auth.NewLoginService(users, tokens, nil),
		Users:        users,
		Departments:  store.NewDepartmentRepository(db),
		Forms:        store.NewFormRepository(db),
		Roles: func(ctx context.Context) ([]store.Role, error) {
			return store.ListRoles(ctx, db)
		},
		OAuth:        oauth.NewServer(oauthStore, oauth.Config{}, nil),
		OAuthStore:   oauthStore,
		Protector:    oauth.NewResourceProtector(oauthStore),
	})
	return &testEnv{router: router, users: users, oauth: oauthStore, tokens: tokens}
}

func (e *testEnv) seedUser(t *testing.T, username, password string, roles ...string) store.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if len(roles) == 0 {
		roles = []string{"student"}
	}
	user, err := e.users.Create(context.Background(), store.User{
		Email:        username + "@example.edu",
		Username:     username,
		PasswordHash: hash,
		Verified:     true,
		Roles:        roles,
		Profile:      store.Profile{FirstName: "Test", LastName: "User"},
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (e *testEnv) postJSON(t *testing.T, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) putJSON(t *testing.T, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPut, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(t *testing.T, path, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestLoginAndProfileOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ivanov", "pass-word-1")

	rec := env.postJSON(t, "/api/auth/login", "", map[string]string{
		"login": "ivanov", "password": "pass-word-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	access, _ := body["access_token"].(string)
	if access == "" {
		t.Fatal("no access token in login response")
	}

	profile := env.get(t, "/api/user/profile", access)
	if profile.Code != http.StatusOK {
		t.Fatalf("profile status = %d", profile.Code)
	}
	got := decodeBody(t, profile)
	if got["username"] != "ivanov" {
		t.Fatalf("profile = %v", got)
	}

	if anon := env.get(t, "/api/user/profile", ""); anon.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous profile status = %d", anon.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "ivanov", "pass-word-1")

	rec := env.postJSON(t, "/api/auth/login", "", map[string]string{
		"login": "ivanov", "password": "nope",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestClientAdminGuard(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, "student1", "pass-word-1")
	admin := env.seedUser(t, "rector", "pass-word-2", "admin")

	studentPair, err := env.tokens.Issue(student.ID, student.Roles)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	adminPair, err := env.tokens.Issue(admin.ID, admin.Roles)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	payload := map[string]any{
		"name":          "grades",
		"redirect_uris": []string{"https://grades.example.edu/callback"},
		"scopes":        []string{"read:profile"},
	}
	if rec := env.postJSON(t, "/api/admin/oauth/clients", studentPair.AccessToken, payload); rec.Code != http.StatusForbidden {
		t.Fatalf("student create status = %d", rec.Code)
	}

	rec := env.postJSON(t, "/api/admin/oauth/clients", adminPair.AccessToken, payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["client_id"] == "" || body["client_secret"] == "" {
		t.Fatalf("credentials missing: %v", body)
	}

	list := env.get(t, "/api/admin/oauth/clients", adminPair.AccessToken)
	if list.Code != http.StatusOK {
		t.Fatalf("list status = %d", list.Code)
	}
	if !strings.Contains(list.Body.String(), "grades") {
		t.Fatalf("list body = %s", list.Body.String())
	}
	// Stored clients never expose the secret again.
	if strings.Contains(list.Body.String(), body["client_secret"].(string)) {
		t.Fatal("secret leaked in listing")
	}
}

func TestClientAdminUpdate(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, "student1", "pass-word-1")
	admin := env.seedUser(t, "rector", "pass-word-2", "admin")

	studentPair, err := env.tokens.Issue(student.ID, student.Roles)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	adminPair, err := env.tokens.Issue(admin.ID, admin.Roles)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	client, _, err := env.oauth.CreateClient(context.Background(), oauth.Client{
		Name:         "grades",
		RedirectURIs: []string{"https://grades.example.edu/callback"},
	}, "")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	payload := map[string]any{
		"name":          "grades v2",
		"redirect_uris": []string{"https://grades.example.edu/cb2"},
	}
	path := "/api/admin/oauth/clients/" + client.ClientID
	if rec := env.putJSON(t, path, studentPair.AccessToken, payload); rec.Code != http.StatusForbidden {
		t.Fatalf("student update status = %d", rec.Code)
	}

	rec := env.putJSON(t, path, adminPair.AccessToken, payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin update status = %d body=%s", rec.Code, rec.Body.String())
	}
	updated, err := env.oauth.GetClient(context.Background(), client.ClientID)
	if err != nil {
		t.Fatalf("reload client: %v", err)
	}
	if updated.Name != "grades v2" || updated.RedirectURIs[0] != "https://grades.example.edu/cb2" {
		t.Fatalf("updated client = %+v", updated)
	}

	if rec := env.putJSON(t, "/api/admin/oauth/clients/cl_missing", adminPair.AccessToken, payload); rec.Code != http.StatusNotFound {
		t.Fatalf("missing client status = %d", rec.Code)
	}
}

func TestFormUpdateOwnerGuard(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedUser(t, "owner1", "pass-word-1")
	other := env.seedUser(t, "other1", "pass-word-2")

	ownerPair, err := env.tokens.Issue(owner.ID, owner.Roles)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	otherPair, err := env.tokens.Issue(other.ID, other.Roles)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	created := env.postJSON(t, "/api/forms", ownerPair.AccessToken, map[string]any{
		"name": "report", "form_type": "report",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("create status = %d", created.Code)
	}
	formID, _ := decodeBody(t, created)["id"].(string)

	payload := map[string]any{"name": "report v2", "form_type": "report", "period": "monthly"}
	if rec := env.putJSON(t, "/api/forms/"+formID, otherPair.AccessToken, payload); rec.Code != http.StatusForbidden {
		t.Fatalf("non-owner update status = %d", rec.Code)
	}
	if rec := env.putJSON(t, "/api/forms/"+formID, ownerPair.AccessToken, payload); rec.Code != http.StatusOK {
		t.Fatalf("owner update status = %d body=%s", rec.Code, rec.Body.String())
	}

	got := env.get(t, "/api/forms/"+formID, ownerPair.AccessToken)
	body := decodeBody(t, got)
	if body["name"] != "report v2" || body["period"] != "monthly" {
		t.Fatalf("form after update = %v", body)
	}
}

func TestRolesListing(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "student1", "pass-word-1")
	pair, err := env.tokens.Issue(user.ID, user.Roles)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := env.get(t, "/api/roles", pair.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"student"`) || !strings.Contains(rec.Body.String(), `"admin"`) {
		t.Fatalf("roles body = %s", rec.Body.String())
	}
}

func TestDepartmentWriteGuard(t *testing.T) {
	env := newTestEnv(t)
	student := env.seedUser(t, "student1", "pass-word-1")
	pair, err := env.tokens.Issue(student.ID, student.Roles)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := env.postJSON(t, "/api/departments", pair.AccessToken, map[string]string{"name": "Rogue Dept"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
	if tree := env.get(t, "/api/departments", pair.AccessToken); tree.Code != http.StatusOK {
		t.Fatalf("tree read status = %d", tree.Code)
	}
}

func TestAuthorizationCodeFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "ivanov", "pass-word-1")
	pair, err := env.tokens.Issue(user.ID, user.Roles)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	client, rawSecret, err := env.oauth.CreateClient(context.Background(), oauth.Client{
		Name:         "grades",
		RedirectURIs: []string{"https://grades.example.edu/callback"},
		Scopes:       []string{"read:profile", "profile"},
	}, "")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	query := url.Values{
		"response_type": {"code"},
		"client_id":     {client.ClientID},
		"redirect_uri":  {"https://grades.example.edu/callback"},
		"scope":         {"profile"},
		"state":         {"xyz"},
	}
	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+query.Encode(), nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("authorize status = %d body=%s", rec.Code, rec.Body.String())
	}
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	code := location.Query().Get("code")
	if code == "" || location.Query().Get("state") != "xyz" {
		t.Fatalf("redirect = %s", location)
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {client.ClientID},
		"client_secret": {rawSecret},
		"code":          {code},
		"redirect_uri":  {"https://grades.example.edu/callback"},
	}
	tokenReq := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	tokenReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	tokenRec := httptest.NewRecorder()
	env.router.ServeHTTP(tokenRec, tokenReq)
	if tokenRec.Code != http.StatusOK {
		t.Fatalf("token status = %d body=%s", tokenRec.Code, tokenRec.Body.String())
	}
	tokenBody := decodeBody(t, tokenRec)
	access, _ := tokenBody["access_token"].(string)
	if access == "" || tokenBody["token_type"] != "Bearer" {
		t.Fatalf("token response = %v", tokenBody)
	}

	info := env.get(t, "/oauth/userinfo", access)
	if info.Code != http.StatusOK {
		t.Fatalf("userinfo status = %d body=%s", info.Code, info.Body.String())
	}
	claims := decodeBody(t, info)
	if claims["sub"] != user.ID || claims["preferred_username"] != "ivanov" {
		t.Fatalf("claims = %v", claims)
	}
}

func TestAuthorizeWithoutSessionRedirectsAccessDenied(t *testing.T) {
	env := newTestEnv(t)
	client, _, err := env.oauth.CreateClient(context.Background(), oauth.Client{
		Name:         "grades",
		RedirectURIs: []string{"https://grades.example.edu/callback"},
		Scopes:       []string{"profile"},
	}, "")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	query := url.Values{
		"response_type": {"code"},
		"client_id":     {client.ClientID},
		"redirect_uri":  {"https://grades.example.edu/callback"},
		"state":         {"s1"},
	}
	rec := env.get(t, "/oauth/authorize?"+query.Encode(), "")
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d", rec.Code)
	}
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if location.Query().Get("error") != "access_denied" || location.Query().Get("state") != "s1" {
		t.Fatalf("redirect = %s", location)
	}
}

func TestAuthorizeUnknownRedirectAnsweredDirectly(t *testing.T) {
	env := newTestEnv(t)
	client, _, err := env.oauth.CreateClient(context.Background(), oauth.Client{
		Name:         "grades",
		RedirectURIs: []string{"https://grades.example.edu/callback"},
	}, "")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}

	query := url.Values{
		"response_type": {"code"},
		"client_id":     {client.ClientID},
		"redirect_uri":  {"https://evil.example.com/steal"},
	}
	rec := env.get(t, "/oauth/authorize?"+query.Encode(), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want direct 400", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "" {
		t.Fatalf("must not redirect to unregistered URI, got %s", loc)
	}
}
