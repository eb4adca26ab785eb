package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ambrosia-fish/armatillo-api/internal/domain"
	"github.com/ambrosia-fish/armatillo-api/internal/http/middleware"
	"github.com/ambrosia-fish/armatillo-api/internal/service"
)

// TrackingHandler exposes the behavior instance and strategy CRUD
// endpoints. All routes require an authenticated user.
type TrackingHandler struct {
	Tracking *service.TrackingService
}

// NewTrackingHandler creates the handler set.
func NewTrackingHandler(tracking *service.TrackingService) *TrackingHandler {
	return &TrackingHandler{Tracking: tracking}
}

func (h *TrackingHandler) CreateInstance(c *gin.Context) {
	user, _ := middleware.GetUser(c)

	var in domain.Instance
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid instance payload."})
		return
	}

	created, err := h.Tracking.CreateInstance(c.Request.Context(), user.ID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *TrackingHandler) GetInstance(c *gin.Context) {
	user, _ := middleware.GetUser(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	inst, err := h.Tracking.GetInstance(c.Request.Context(), user.ID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (h *TrackingHandler) ListInstances(c *gin.Context) {
	user, _ := middleware.GetUser(c)

	list, err := h.Tracking.ListInstances(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"instances": list})
}

func (h *TrackingHandler) UpdateInstance(c *gin.Context) {
	user, _ := middleware.GetUser(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	var in domain.Instance
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid instance payload."})
		return
	}

	updated, err := h.Tracking.UpdateInstance(c.Request.Context(), user.ID, id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *TrackingHandler) DeleteInstance(c *gin.Context) {
	user, _ := middleware.GetUser(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.Tracking.DeleteInstance(c.Request.Context(), user.ID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Instance deleted."})
}

func (h *TrackingHandler) CreateStrategy(c *gin.Context) {
	user, _ := middleware.GetUser(c)

	var in domain.Strategy
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid strategy payload."})
		return
	}

	created, err := h.Tracking.CreateStrategy(c.Request.Context(), user.ID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *TrackingHandler) GetStrategy(c *gin.Context) {
	user, _ := middleware.GetUser(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	strategy, err := h.Tracking.GetStrategy(c.Request.Context(), user.ID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, strategy)
}

func (h *TrackingHandler) ListStrategies(c *gin.Context) {
	user, _ := middleware.GetUser(c)

	list, err := h.Tracking.ListStrategies(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": list})
}

func (h *TrackingHandler) UpdateStrategy(c *gin.Context) {
	user, _ := middleware.GetUser(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	var in domain.Strategy
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid strategy payload."})
		return
	}

	updated, err := h.Tracking.UpdateStrategy(c.Request.Context(), user.ID, id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *TrackingHandler) DeleteStrategy(c *gin.Context) {
	user, _ := middleware.GetUser(c)
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.Tracking.DeleteStrategy(c.Request.Context(), user.ID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Strategy deleted."})
}
