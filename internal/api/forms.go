package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campusgate/portal/internal/auth"
	"github.com/campusgate/portal/internal/store"
)

type FormHandler struct {
	forms  *store.FormRepository
	logger *zap.Logger
}

func NewFormHandler(forms *store.FormRepository, logger *zap.Logger) *FormHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormHandler{forms: forms, logger: logger}
}

func (h *FormHandler) List(c *gin.Context) {
	forms, err := h.forms.List(c.Request.Context(), c.Query("type"))
	if err != nil {
		h.logger.Error("forms listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	out := make([]gin.H, 0, len(forms))
	for _, form := range forms {
		out = append(out, formView(form))
	}
	c.JSON(http.StatusOK, gin.H{"forms": out})
}

func (h *FormHandler) Get(c *gin.Context) {
	form, err := h.forms.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrFormNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "form not found"})
			return
		}
		h.logger.Error("form lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, formView(form))
}

func (h *FormHandler) Create(c *gin.Context) {
	var req struct {
		Name        string          `json:"name" binding:"required"`
		Description string          `json:"description"`
		FormType    string          `json:"form_type" binding:"required"`
		Responsible string          `json:"responsible"`
		Period      string          `json:"period"`
		Fields      json.RawMessage `json:"fields"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and form_type required"})
		return
	}
	form, err := h.forms.Create(c.Request.Context(), store.Form{
		Name:        req.Name,
		Description: req.Description,
		FormType:    req.FormType,
		Responsible: req.Responsible,
		Period:      req.Period,
		Fields:      string(req.Fields),
		CreatedBy:   auth.UserID(c),
	})
	if err != nil {
		h.logger.Error("form create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": form.ID})
}

// Update edits a form definition. Only its creator or an admin may do so.
func (h *FormHandler) Update(c *gin.Context) {
	form, err := h.forms.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrFormNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "form not found"})
			return
		}
		h.logger.Error("form lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if form.CreatedBy != auth.UserID(c) && !auth.HasRole(c, "admin") {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the form owner"})
		return
	}
	var req struct {
		Name        string          `json:"name" binding:"required"`
		Description string          `json:"description"`
		FormType    string          `json:"form_type" binding:"required"`
		Responsible string          `json:"responsible"`
		Period      string          `json:"period"`
		Fields      json.RawMessage `json:"fields"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and form_type required"})
		return
	}
	err = h.forms.Update(c.Request.Context(), store.Form{
		ID:          form.ID,
		Name:        req.Name,
		Description: req.Description,
		FormType:    req.FormType,
		Responsible: req.Responsible,
		Period:      req.Period,
		Fields:      string(req.Fields),
	})
	if err != nil {
		h.logger.Error("form update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "form updated"})
}

// Delete removes a form. Only its creator or an admin may do so.
func (h *FormHandler) Delete(c *gin.Context) {
	form, err := h.forms.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrFormNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "form not found"})
			return
		}
		h.logger.Error("form lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if form.CreatedBy != auth.UserID(c) && !auth.HasRole(c, "admin") {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the form owner"})
		return
	}
	if err := h.forms.Delete(c.Request.Context(), form.ID); err != nil {
		h.logger.Error("form delete failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "form deleted"})
}

func formView(form store.Form) gin.H {
	view := gin.H{
		"id":          form.ID,
		"name":        form.Name,
		"description": form.Description,
		"form_type":   form.FormType,
		"responsible": form.Responsible,
		"period":      form.Period,
		"created_by":  form.CreatedBy,
	}
	if form.Fields != "" {
		view["fields"] = json.RawMessage(form.Fields)
	}
	return view
}
