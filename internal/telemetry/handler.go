package telemetry

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/richxcame/ride-hailing/internal/models"
	"github.com/richxcame/ride-hailing/internal/platform/apperr"
)

// Handler exposes a lightweight REST front door for telemetry pings,
// for driver clients that post over HTTP rather than the realtime
// websocket channel.
type Handler struct {
	sink *Sink
}

// NewHandler builds a Handler over sink.
func NewHandler(sink *Sink) *Handler {
	return &Handler{sink: sink}
}

// Register wires telemetry routes onto group.
func (h *Handler) Register(group *gin.RouterGroup) {
	group.POST("/telemetry/:driverId/location", h.reportLocation)
	group.POST("/telemetry/:driverId/status", h.reportStatus)
}

type locationPingRequest struct {
	Lat         float64            `json:"lat" binding:"required"`
	Lng         float64            `json:"lng" binding:"required"`
	VehicleType models.VehicleType `json:"vehicle_type" binding:"required"`
	Heading     *float64           `json:"heading"`
	Speed       *float64           `json:"speed"`
}

func (h *Handler) reportLocation(c *gin.Context) {
	driverID, err := uuid.Parse(c.Param("driverId"))
	if err != nil {
		respondErr(c, apperr.NewValidation("invalid driver id"))
		return
	}
	var req locationPingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.NewValidation(err.Error()))
		return
	}
	if err := h.sink.ReportLocationWithMotion(c.Request.Context(), driverID, req.Lat, req.Lng, req.VehicleType, req.Heading, req.Speed); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type statusPingRequest struct {
	Online    bool `json:"online"`
	Available bool `json:"available"`
}

func (h *Handler) reportStatus(c *gin.Context) {
	driverID, err := uuid.Parse(c.Param("driverId"))
	if err != nil {
		respondErr(c, apperr.NewValidation("invalid driver id"))
		return
	}
	var req statusPingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.NewValidation(err.Error()))
		return
	}
	if err := h.sink.ReportStatus(c.Request.Context(), driverID, req.Online, req.Available); err != nil {
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
