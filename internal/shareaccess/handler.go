package shareaccess

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/richxcame/ride-hailing/internal/platform/apperr"
)

// Handler exposes share-link issuance and resolution over HTTP.
type Handler struct {
	service *Service
}

// NewHandler builds a Handler over service.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register wires share-link routes. The issue route is part of the
// authenticated ride API group; the resolve route is deliberately
// public — anyone holding the token can view the minimal projection.
func (h *Handler) Register(group *gin.RouterGroup, public *gin.RouterGroup) {
	group.POST("/rides/:id/share", h.issue)
	public.GET("/share/:token", h.resolve)
}

func (h *Handler) issue(c *gin.Context) {
	rideID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.NewValidation("invalid ride id"))
		return
	}
	token, err := h.service.IssueToken(c.Request.Context(), rideID)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, token)
}

func (h *Handler) resolve(c *gin.Context) {
	view, err := h.service.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func respondErr(c *gin.Context, err error) {
	if ae, ok := apperr.As(err); ok {
		c.JSON(ae.HTTPStatus, gin.H{"error": gin.H{"code": ae.Code, "message": ae.Message}})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": apperr.CodeInternal, "message": "internal error"}})
}
