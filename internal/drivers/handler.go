package drivers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/richxcame/ride-hailing/internal/platform/apperr"
)

// Handler exposes driver profile, location, and status endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a Handler over service.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register wires driver routes onto group.
func (h *Handler) Register(group *gin.RouterGroup) {
	group.GET("/drivers/:id", h.getDriver)
	group.POST("/drivers/:id/location", h.updateLocation)
	group.POST("/drivers/:id/status", h.setStatus)
	group.GET("/drivers/:id/penalties", h.listPenalties)
	group.POST("/drivers/:id/penalties/:penaltyId/settle", h.settlePenalty)
}

func (h *Handler) getDriver(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.NewValidation("invalid driver id"))
		return
	}
	driver, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, driver)
}

type locationRequest struct {
	Lat float64 `json:"lat" binding:"required"`
	Lng float64 `json:"lng" binding:"required"`
}

func (h *Handler) updateLocation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.NewValidation("invalid driver id"))
		return
	}
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.NewValidation(err.Error()))
		return
	}
	if err := h.service.UpdateLocation(c.Request.Context(), id, req.Lat, req.Lng); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type statusRequest struct {
	Online bool `json:"online"`
}

func (h *Handler) setStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.NewValidation("invalid driver id"))
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.NewValidation(err.Error()))
		return
	}
	if err := h.service.SetOnlineStatus(c.Request.Context(), id, req.Online); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listPenalties(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.NewValidation("invalid driver id"))
		return
	}
	penalties, err := h.service.Penalties(c.Request.Context(), id)
	if err != nil {
		respondErr(c, apperr.NewInternal("failed to list penalties", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"penalties": penalties})
}

func (h *Handler) settlePenalty(c *gin.Context) {
	penaltyID, err := uuid.Parse(c.Param("penaltyId"))
	if err != nil {
		respondErr(c, apperr.NewValidation("invalid penalty id"))
		return
	}
	if err := h.service.SettlePenalty(c.Request.Context(), penaltyID); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func respondErr(c *gin.Context, err error) {
	if ae, ok := apperr.As(err); ok {
		c.JSON(ae.HTTPStatus, gin.H{"error": gin.H{"code": ae.Code, "message": ae.Message}})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": apperr.CodeInternal, "message": "internal error"}})
}
