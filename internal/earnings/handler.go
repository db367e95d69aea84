package earnings

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/richxcame/ride-hailing/internal/platform/apperr"
)

// Handler exposes earnings queries over HTTP.
type Handler struct {
	service *Service
}

// NewHandler builds a Handler over service.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register wires earnings routes onto group.
func (h *Handler) Register(group *gin.RouterGroup) {
	group.GET("/drivers/:id/earnings", h.history)
	group.GET("/drivers/:id/earnings/summary", h.summary)
}

func (h *Handler) parsePeriod(c *gin.Context) (uuid.UUID, time.Time, time.Time, bool) {
	driverID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.NewValidation("invalid driver id"))
		return uuid.Nil, time.Time{}, time.Time{}, false
	}

	to := time.Now()
	from := to.AddDate(0, 0, -30)
	if v := c.Query("from"); v != "" {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			from = parsed
		}
	}
	if v := c.Query("to"); v != "" {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			to = parsed
		}
	}
	return driverID, from, to, true
}

func (h *Handler) history(c *gin.Context) {
	driverID, from, to, ok := h.parsePeriod(c)
	if !ok {
		return
	}
	earnings, err := h.service.History(c.Request.Context(), driverID, from, to, 50, 0)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, earnings)
}

func (h *Handler) summary(c *gin.Context) {
	driverID, from, to, ok := h.parsePeriod(c)
	if !ok {
		return
	}
	summary, err := h.service.Summary(c.Request.Context(), driverID, from, to)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func respondErr(c *gin.Context, err error) {
	if ae, ok := apperr.As(err); ok {
		c.JSON(ae.HTTPStatus, gin.H{"error": gin.H{"code": ae.Code, "message": ae.Message}})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": apperr.CodeInternal, "message": "internal error"}})
}
