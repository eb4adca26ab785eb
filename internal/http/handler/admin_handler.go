package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ambrosia-fish/armatillo-api/internal/http/middleware"
	"github.com/ambrosia-fish/armatillo-api/internal/service"
)

// AdminHandler exposes the access-request approval queue. All routes
// require an admin user.
type AdminHandler struct {
	Admin *service.AdminService
}

// NewAdminHandler creates the handler set.
func NewAdminHandler(admin *service.AdminService) *AdminHandler {
	return &AdminHandler{Admin: admin}
}

// ListAccessRequests returns the queue, optionally filtered with
// ?status=pending|approved|rejected.
func (h *AdminHandler) ListAccessRequests(c *gin.Context) {
	list, err := h.Admin.ListAccessRequests(c.Request.Context(), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": list})
}

// CreateAccessRequest enqueues a manual request.
func (h *AdminHandler) CreateAccessRequest(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Notes string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "email is required."})
		return
	}

	created, err := h.Admin.CreateAccessRequest(c.Request.Context(), req.Email, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ApproveAccessRequest approves a pending request.
func (h *AdminHandler) ApproveAccessRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	admin, _ := middleware.GetUser(c)

	updated, err := h.Admin.ApproveAccessRequest(c.Request.Context(), id, admin.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// RejectAccessRequest rejects a pending request.
func (h *AdminHandler) RejectAccessRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	admin, _ := middleware.GetUser(c)

	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	updated, err := h.Admin.RejectAccessRequest(c.Request.Context(), id, admin.Email, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid id."})
		return 0, false
	}
	return id, true
}
