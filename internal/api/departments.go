package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campusgate/portal/internal/auth"
	"github.com/campusgate/portal/internal/store"
)

type DepartmentHandler struct {
	departments *store.DepartmentRepository
	logger      *zap.Logger
}

func NewDepartmentHandler(departments *store.DepartmentRepository, logger *zap.Logger) *DepartmentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepartmentHandler{departments: departments, logger: logger}
}

// departmentNode is a department with its child units nested.
type departmentNode struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	ShortName   string            `json:"short_name,omitempty"`
	Description string            `json:"description,omitempty"`
	HeadUserID  string            `json:"head_user_id,omitempty"`
	Children    []*departmentNode `json:"children"`
}

// Tree returns all departments nested under their parents.
func (h *DepartmentHandler) Tree(c *gin.Context) {
	departments, err := h.departments.List(c.Request.Context())
	if err != nil {
		h.logger.Error("departments listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"departments": buildTree(departments)})
}

func buildTree(departments []store.Department) []*departmentNode {
	nodes := make(map[string]*departmentNode, len(departments))
	for _, d := range departments {
		nodes[d.ID] = &departmentNode{
			ID:          d.ID,
			Name:        d.Name,
			ShortName:   d.ShortName,
			Description: d.Description,
			HeadUserID:  d.HeadUserID,
			Children:    []*departmentNode{},
		}
	}
	roots := []*departmentNode{}
	for _, d := range departments {
		node := nodes[d.ID]
		if parent, ok := nodes[d.ParentID]; ok && d.ParentID != d.ID {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}
	return roots
}

type departmentRequest struct {
	Name        string `json:"name" binding:"required"`
	ShortName   string `json:"short_name"`
	Description string `json:"description"`
	ParentID    string `json:"parent_id"`
	HeadUserID  string `json:"head_user_id"`
}

func (h *DepartmentHandler) Create(c *gin.Context) {
	var req departmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}
	dept, err := h.departments.Create(c.Request.Context(), store.Department{
		Name:        req.Name,
		ShortName:   req.ShortName,
		Description: req.Description,
		ParentID:    req.ParentID,
		HeadUserID:  req.HeadUserID,
		CreatedBy:   auth.UserID(c),
	})
	if err != nil {
		if errors.Is(err, store.ErrDepartmentNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "parent department not found"})
			return
		}
		h.logger.Error("department create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": dept.ID})
}

func (h *DepartmentHandler) Update(c *gin.Context) {
	var req departmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}
	err := h.departments.Update(c.Request.Context(), store.Department{
		ID:          c.Param("id"),
		Name:        req.Name,
		ShortName:   req.ShortName,
		Description: req.Description,
		ParentID:    req.ParentID,
		HeadUserID:  req.HeadUserID,
	})
	if err != nil {
		if errors.Is(err, store.ErrDepartmentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "department not found"})
			return
		}
		h.logger.Error("department update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "department updated"})
}

func (h *DepartmentHandler) Delete(c *gin.Context) {
	err := h.departments.Delete(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "department deleted"})
	case errors.Is(err, store.ErrDepartmentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "department not found"})
	case errors.Is(err, store.ErrDepartmentHasUnits):
		c.JSON(http.StatusConflict, gin.H{"error": "department has child units"})
	default:
		h.logger.Error("department delete failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
