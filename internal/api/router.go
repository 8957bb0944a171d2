package api

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campusgate/portal/internal/auth"
	"github.com/campusgate/portal/internal/httpx"
	"github.com/campusgate/portal/internal/oauth"
	"github.com/campusgate/portal/internal/store"
)

// Deps collects everything the router needs.
type Deps struct {
	Logger       *zap.Logger
	Tokens       *auth.TokenService
	Registration *auth.RegistrationService
	Login        *auth.LoginService
	Users        *store.UserRepository
	Departments  *store.DepartmentRepository
	Forms        *store.FormRepository
	Roles        RoleLister
	OAuth        *oauth.Server
	OAuthStore   oauth.Store
	Protector    *oauth.ResourceProtector
}

// NewRouter builds the gin engine with all portal and OAuth routes.
func NewRouter(deps Deps) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	middleware := auth.NewMiddleware(deps.Tokens)
	authHandler := NewAuthHandler(deps.Registration, deps.Login, deps.Logger)
	userHandler := NewUserHandler(deps.Users, deps.Logger)
	departmentHandler := NewDepartmentHandler(deps.Departments, deps.Logger)
	formHandler := NewFormHandler(deps.Forms, deps.Logger)
	clientHandler := NewClientAdminHandler(deps.OAuthStore, deps.Logger)

	api := engine.Group("/api")
	{
		register := api.Group("/auth/register")
		register.POST("/step1", authHandler.RegisterStep1)
		register.POST("/verify", authHandler.RegisterVerify)
		register.POST("/resend", authHandler.RegisterResend)
		register.POST("/step3", authHandler.RegisterStep3)
		register.POST("/step4", authHandler.RegisterStep4)
		register.POST("/complete", authHandler.RegisterComplete)

		api.POST("/auth/login", authHandler.Login)
		api.POST("/auth/refresh", authHandler.Refresh)

		authed := api.Group("", middleware.RequireAuth())
		authed.GET("/user/profile", userHandler.Profile)
		authed.GET("/users/employees", userHandler.Employees)
		authed.GET("/roles", RolesHandler(deps.Roles, deps.Logger))

		authed.GET("/departments", departmentHandler.Tree)
		adminOnly := middleware.RequireRole("admin")
		authed.POST("/departments", adminOnly, departmentHandler.Create)
		authed.PUT("/departments/:id", adminOnly, departmentHandler.Update)
		authed.DELETE("/departments/:id", adminOnly, departmentHandler.Delete)

		authed.GET("/forms", formHandler.List)
		authed.GET("/forms/:id", formHandler.Get)
		authed.POST("/forms", formHandler.Create)
		authed.PUT("/forms/:id", formHandler.Update)
		authed.DELETE("/forms/:id", formHandler.Delete)

		admin := authed.Group("/admin", adminOnly)
		admin.POST("/oauth/clients", clientHandler.Create)
		admin.GET("/oauth/clients", clientHandler.List)
		admin.PUT("/oauth/clients/:id", clientHandler.Update)
	}

	authorize := oauth.NewAuthorizeHandler(deps.OAuth, sessionUserResolver(deps.Tokens))
	token := oauth.NewTokenHandler(deps.OAuth)
	userinfo := oauth.NewUserInfoHandler(deps.Protector, profileResolver(deps.Users))

	engine.GET("/oauth/authorize", httpx.Handler(authorize.Handle))
	engine.POST("/oauth/token", httpx.Handler(token.Handle))
	engine.GET("/oauth/userinfo", httpx.Handler(userinfo.Handle))

	return engine
}

// sessionUserResolver authenticates the authorization endpoint with the
// portal session token.
func sessionUserResolver(tokens *auth.TokenService) oauth.UserResolver {
	return func(ctx httpx.Context) (string, error) {
		raw, ok := httpx.BearerToken(ctx)
		if !ok {
			return "", errors.New("no session token")
		}
		claims, err := tokens.VerifyAccess(raw)
		if err != nil {
			return "", err
		}
		return claims.Subject, nil
	}
}

// profileResolver shapes the userinfo response from the user record.
func profileResolver(users *store.UserRepository) oauth.ProfileResolver {
	return func(ctx context.Context, userID string) (map[string]any, error) {
		user, err := users.GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		claims := map[string]any{
			"sub":                user.ID,
			"preferred_username": user.Username,
			"email":              user.Email,
			"roles":              user.Roles,
		}
		if user.Profile.FirstName != "" || user.Profile.LastName != "" {
			claims["given_name"] = user.Profile.FirstName
			claims["family_name"] = user.Profile.LastName
		}
		return claims, nil
	}
}
