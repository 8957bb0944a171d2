package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campusgate/portal/internal/auth"
	"github.com/campusgate/portal/internal/oauth"
)

// ClientAdminHandler manages registered OAuth clients. All routes are
// admin-guarded by the router.
type ClientAdminHandler struct {
	store  oauth.Store
	logger *zap.Logger
}

func NewClientAdminHandler(store oauth.Store, logger *zap.Logger) *ClientAdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClientAdminHandler{store: store, logger: logger}
}

func (h *ClientAdminHandler) Create(c *gin.Context) {
	var req struct {
		Name         string   `json:"name" binding:"required"`
		Description  string   `json:"description"`
		RedirectURIs []string `json:"redirect_uris" binding:"required,min=1"`
		Scopes       []string `json:"scopes"`
		GrantTypes   []string `json:"grant_types"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and redirect_uris required"})
		return
	}
	created, rawSecret, err := h.store.CreateClient(c.Request.Context(), oauth.Client{
		Name:         req.Name,
		Description:  req.Description,
		RedirectURIs: req.RedirectURIs,
		Scopes:       req.Scopes,
		GrantTypes:   req.GrantTypes,
		CreatedBy:    auth.UserID(c),
	}, "")
	if err != nil {
		if errors.Is(err, oauth.ErrClientExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "client already exists"})
			return
		}
		h.logger.Error("client create failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	// The raw secret is shown once and never again.
	c.JSON(http.StatusCreated, gin.H{
		"client_id":     created.ClientID,
		"client_secret": rawSecret,
		"name":          created.Name,
		"redirect_uris": created.RedirectURIs,
		"scopes":        created.Scopes,
		"grant_types":   created.GrantTypes,
	})
}

// Update edits the mutable client fields. The client_id and secret
// cannot be changed through this path.
func (h *ClientAdminHandler) Update(c *gin.Context) {
	var req struct {
		Name         string   `json:"name"`
		Description  string   `json:"description"`
		RedirectURIs []string `json:"redirect_uris"`
		Scopes       []string `json:"scopes"`
		GrantTypes   []string `json:"grant_types"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	updated, err := h.store.UpdateClient(c.Request.Context(), oauth.Client{
		ClientID:     c.Param("id"),
		Name:         req.Name,
		Description:  req.Description,
		RedirectURIs: req.RedirectURIs,
		Scopes:       req.Scopes,
		GrantTypes:   req.GrantTypes,
	})
	if err != nil {
		if errors.Is(err, oauth.ErrClientNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
			return
		}
		h.logger.Error("client update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"client_id":     updated.ClientID,
		"name":          updated.Name,
		"description":   updated.Description,
		"redirect_uris": updated.RedirectURIs,
		"scopes":        updated.Scopes,
		"grant_types":   updated.GrantTypes,
	})
}

func (h *ClientAdminHandler) List(c *gin.Context) {
	clients, err := h.store.ListClients(c.Request.Context())
	if err != nil {
		h.logger.Error("client listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	out := make([]gin.H, 0, len(clients))
	for _, client := range clients {
		out = append(out, gin.H{
			"client_id":     client.ClientID,
			"name":          client.Name,
			"description":   client.Description,
			"redirect_uris": client.RedirectURIs,
			"scopes":        client.Scopes,
			"grant_types":   client.GrantTypes,
			"created_at":    client.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"clients": out})
}
