package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campusgate/portal/internal/auth"
	"github.com/campusgate/portal/internal/store"
)

type UserHandler struct {
	users  *store.UserRepository
	logger *zap.Logger
}

func NewUserHandler(users *store.UserRepository, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{users: users, logger: logger}
}

func (h *UserHandler) Profile(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), auth.UserID(c))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error("profile lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, userView(user))
}

func (h *UserHandler) Employees(c *gin.Context) {
	employees, err := h.users.ListEmployees(c.Request.Context(), c.Query("department"))
	if err != nil {
		h.logger.Error("employees listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	out := make([]gin.H, 0, len(employees))
	for _, user := range employees {
		out = append(out, gin.H{
			"id":         user.ID,
			"username":   user.Username,
			"first_name": user.Profile.FirstName,
			"last_name":  user.Profile.LastName,
			"department": user.Profile.Department,
			"position":   user.Profile.Position,
		})
	}
	c.JSON(http.StatusOK, gin.H{"employees": out})
}

// RoleLister yields the assignable roles, typically store.ListRoles bound
// to the database handle.
type RoleLister func(ctx context.Context) ([]store.Role, error)

// RolesHandler lists the fixed role set for registration and admin UIs.
func RolesHandler(list RoleLister, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		roles, err := list(c.Request.Context())
		if err != nil {
			logger.Error("roles listing failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		out := make([]gin.H, 0, len(roles))
		for _, role := range roles {
			out = append(out, gin.H{
				"name":         role.Name,
				"display_name": role.DisplayName,
				"description":  role.Description,
			})
		}
		c.JSON(http.StatusOK, gin.H{"roles": out})
	}
}

func userView(user store.User) gin.H {
	view := gin.H{
		"id":       user.ID,
		"email":    user.Email,
		"username": user.Username,
		"phone":    user.Phone,
		"roles":    user.Roles,
		"profile": gin.H{
			"first_name":  user.Profile.FirstName,
			"last_name":   user.Profile.LastName,
			"middle_name": user.Profile.MiddleName,
			"gender":      user.Profile.Gender,
			"department":  user.Profile.Department,
			"position":    user.Profile.Position,
			"course":      user.Profile.Course,
			"group_name":  user.Profile.GroupName,
			"school":      user.Profile.School,
		},
	}
	if user.Profile.BirthDate != nil {
		view["profile"].(gin.H)["birth_date"] = user.Profile.BirthDate.Format("2006-01-02")
	}
	if user.LastLogin != nil {
		view["last_login"] = user.LastLogin.Format(time.RFC3339)
	}
	return view
}
