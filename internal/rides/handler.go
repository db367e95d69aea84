package rides

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/richxcame/ride-hailing/internal/models"
	"github.com/richxcame/ride-hailing/internal/platform/apperr"
	"github.com/richxcame/ride-hailing/internal/platform/middleware"
)

// rideWithOTP is the only wire shape that ever carries the ride-start
// OTP: models.Ride itself marshals OTP as json:"-", so a caller must
// go through this DTO to see it, and only the two call sites below
// (createRide's response, getRide when the requester is the rider)
// build one.
type rideWithOTP struct {
	*models.Ride
	RideOTP string `json:"ride_otp,omitempty"`
}

func withOTP(ride *models.Ride) rideWithOTP {
	return rideWithOTP{Ride: ride, RideOTP: ride.OTP}
}

func parseLatLng(c *gin.Context) (lat, lng float64, ok bool) {
	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr == "" || lngStr == "" {
		return 0, 0, false
	}
	var err error
	lat, err = strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err = strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

func parseFloatOr(raw string, fallback float64) float64 {
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

// Handler exposes the ride lifecycle over HTTP.
type Handler struct {
	service *Service
}

// NewHandler builds a Handler over service.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register wires ride routes onto group.
func (h *Handler) Register(group *gin.RouterGroup) {
	group.POST("/rides", h.createRide)
	group.GET("/rides", h.listMyRides)
	group.GET("/rides/:id", h.getRide)
	group.PATCH("/rides/:id/status", h.updateStatus)
	group.GET("/rides/available", h.availableRides)
	group.GET("/rides/estimate", h.estimateFares)
	group.POST("/rides/:id/accept", h.accept)
	group.POST("/rides/:id/confirm", h.confirm)
	group.POST("/rides/:id/arrived", h.arrived)
	group.POST("/rides/:id/start", h.start)
	group.POST("/rides/:id/complete", h.complete)
	group.POST("/rides/:id/cancel", h.cancel)
	group.POST("/rides/:id/rating", h.rate)
}

type createRideRequest struct {
	RiderID       uuid.UUID            `json:"rider_id" binding:"required"`
	PassengerName string               `json:"passenger_name"`
	VehicleType   models.VehicleType   `json:"vehicle_type" binding:"required"`
	PickupLat     float64              `json:"pickup_lat"`
	PickupLng     float64              `json:"pickup_lng"`
	DropLat       float64              `json:"drop_lat"`
	DropLng       float64              `json:"drop_lng"`
	PickupAddress string               `json:"pickup_address"`
	DropAddress   string               `json:"drop_address"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
}

func (h *Handler) createRide(c *gin.Context) {
	var req createRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.NewValidation(err.Error()))
		return
	}

	ride, err := h.service.CreateRide(c.Request.Context(), CreateRideRequest{
		RiderID:       req.RiderID,
		PassengerName: req.PassengerName,
		VehicleType:   req.VehicleType,
		PickupLat:     req.PickupLat,
		PickupLng:     req.PickupLng,
		DropLat:       req.DropLat,
		DropLng:       req.DropLng,
		PickupAddress: req.PickupAddress,
		DropAddress:   req.DropAddress,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	// OTP is disclosed only to the passenger who created the ride; the
	// create response is the one place it is always returned.
	c.JSON(http.StatusCreated, withOTP(ride))
}

// getRide returns the ride for the requesting actor (rider or
// assigned driver). The OTP is only ever embedded in the response
// when the caller is the ride's rider; a driver (or anyone else)
// fetching the same ride gets the plain ride, whose OTP field
// marshals as json:"-".
func (h *Handler) getRide(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.NewValidation("invalid ride id"))
		return
	}
	ride, err := h.service.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		respondErr(c, apperr.NewNotFound("ride not found"))
		return
	}

	userID, authenticated := middleware.UserID(c)
	if authenticated && userID == ride.RiderID {
		c.JSON(http.StatusOK, withOTP(ride))
		return
	}
	if !authenticated || (userID != ride.RiderID && (ride.DriverID == nil || userID != *ride.DriverID)) {
		respondErr(c, apperr.NewForbidden("not a party to this ride"))
		return
	}
	c.JSON(http.StatusOK, ride)
}

// listMyRides pages through the authenticated caller's ride history —
// rides they requested as a rider plus rides they served as a driver.
func (h *Handler) listMyRides(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondErr(c, apperr.NewUnauthenticated("authentication required"))
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 || limit < 1 || limit > 50 {
		respondErr(c, apperr.NewValidation("page must be >= 1 and limit between 1 and 50"))
		return
	}

	rides, err := h.service.ListUserRides(c.Request.Context(), userID, page, limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rides": rides, "page": page, "limit": limit})
}

type updateStatusRequest struct {
	Status             models.RideStatus  `json:"status" binding:"required"`
	DriverID           uuid.UUID          `json:"driver_id"`
	ActorID            uuid.UUID          `json:"actor_id"`
	CancelledBy        models.CancelledBy `json:"cancelled_by"`
	CancellationReason string             `json:"cancellation_reason"`
	OTP                string             `json:"otp"`
}

// updateStatus is the single-endpoint form of the per-transition
// routes below: the target status selects the lifecycle step, and the
// OTP is required exactly when transitioning to RIDE_STARTED. PENDING
// and DRIVER_ASSIGNED cannot be reached this way — creation and the
// race-checked accept have their own endpoints.
func (h *Handler) updateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.NewValidation("invalid ride id"))
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.NewValidation(err.Error()))
		return
	}

	switch req.Status {
	case models.RideStatusConfirmed:
		err = h.service.ConfirmAssignment(c.Request.Context(), id, req.DriverID)
	case models.RideStatusDriverArrived:
		err = h.service.DriverArrived(c.Request.Context(), id, req.DriverID)
	case models.RideStatusStarted:
		if req.OTP == "" {
			respondErr(c, apperr.NewValidation("otp is required to start a ride"))
			return
		}
		err = h.service.StartRide(c.Request.Context(), id, req.DriverID, req.OTP)
	case models.RideStatusCompleted:
		err = h.service.CompleteRide(c.Request.Context(), id, req.DriverID)
	case models.RideStatusCancelled:
		if req.CancelledBy == "" {
			respondErr(c, apperr.NewValidation("cancelled_by is required to cancel a ride"))
			return
		}
		err = h.service.CancelRide(c.Request.Context(), id, req.ActorID, req.CancelledBy, req.CancellationReason)
	default:
		respondErr(c, apperr.NewValidation(fmt.Sprintf("status %s cannot be set directly", req.Status)))
		return
	}
	if err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) availableRides(c *gin.Context) {
	lat, lng, ok := parseLatLng(c)
	if !ok {
		respondErr(c, apperr.NewValidation("lat and lng query params are required"))
		return
	}
	vehicleType := models.VehicleType(c.Query("vehicle_type"))
	if vehicleType == "" {
		respondErr(c, apperr.NewValidation("vehicle_type query param is required"))
		return
	}
	radiusKm := parseFloatOr(c.Query("radius_km"), 10)

	rides, err := h.service.AvailableRides(c.Request.Context(), lat, lng, vehicleType, radiusKm)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rides": rides})
}

// estimateFares quotes every vehicle type's fare for a prospective
// trip before the rider commits to one.
func (h *Handler) estimateFares(c *gin.Context) {
	pickupLat := parseFloatOr(c.Query("pickup_lat"), math.NaN())
	pickupLng := parseFloatOr(c.Query("pickup_lng"), math.NaN())
	dropLat := parseFloatOr(c.Query("drop_lat"), math.NaN())
	dropLng := parseFloatOr(c.Query("drop_lng"), math.NaN())
	if math.IsNaN(pickupLat) || math.IsNaN(pickupLng) || math.IsNaN(dropLat) || math.IsNaN(dropLng) {
		respondErr(c, apperr.NewValidation("pickup_lat, pickup_lng, drop_lat and drop_lng query params are required"))
		return
	}

	fares, err := h.service.EstimateFares(pickupLat, pickupLng, dropLat, dropLng)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fares": fares})
}

type acceptRideRequest struct {
	DriverID uuid.UUID `json:"driver_id" binding:"required"`
}

func (h *Handler) accept(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.NewValidation("invalid ride id"))
		return
	}
	var req acceptRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.NewValidation(err.Error()))
		return
	}
	claimed, err := h.service.AssignDriver(c.Request.Context(), id, req.DriverID)
	if err != nil {
		respondErr(c, err)
		return
	}
	if !claimed {
		respondErr(c, apperr.NewRideAlreadyTaken())
		return
	}
	c.Status(http.StatusNoContent)
}

type driverActionRequest struct {
	DriverID uuid.UUID `json:"driver_id" binding:"required"`
}

func (h *Handler) confirm(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.NewValidation("invalid ride id"))
		return
	}
	var req driverActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.NewValidation(err.Error()))
		return
	}
	if err := h.service.ConfirmAssignment(c.Request.Context(), id, req.DriverID); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) arrived(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.NewValidation("invalid ride id"))
		return
	}
	var req driverActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.NewValidation(err.Error()))
		return
	}
	if err := h.service.DriverArrived(c.Request.Context(), id, req.DriverID); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type startRideRequest struct {
	DriverID uuid.UUID `json:"driver_id" binding:"required"`
	OTP      string    `json:"otp" binding:"required"`
}

func (h *Handler) start(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.NewValidation("invalid ride id"))
		return
	}
	var req startRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.NewValidation(err.Error()))
		return
	}
	if err := h.service.StartRide(c.Request.Context(), id, req.DriverID, req.OTP); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) complete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.NewValidation("invalid ride id"))
		return
	}
	var req driverActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.NewValidation(err.Error()))
		return
	}
	if err := h.service.CompleteRide(c.Request.Context(), id, req.DriverID); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type cancelRideRequest struct {
	ActorID     uuid.UUID          `json:"actor_id" binding:"required"`
	CancelledBy models.CancelledBy `json:"cancelled_by" binding:"required"`
	Reason      string             `json:"reason"`
}

func (h *Handler) cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.NewValidation("invalid ride id"))
		return
	}
	var req cancelRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.NewValidation(err.Error()))
		return
	}
	if err := h.service.CancelRide(c.Request.Context(), id, req.ActorID, req.CancelledBy, req.Reason); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type rateRideRequest struct {
	Role     models.RatingRole `json:"role" binding:"required"`
	Rating   int               `json:"rating" binding:"required"`
	Feedback string            `json:"feedback"`
}

func (h *Handler) rate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondErr(c, apperr.NewValidation("invalid ride id"))
		return
	}
	var req rateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.NewValidation(err.Error()))
		return
	}
	ride, err := h.service.SubmitRating(c.Request.Context(), id, req.Role, req.Rating, req.Feedback)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, ride)
}

func respondErr(c *gin.Context, err error) {
	if ae, ok := apperr.As(err); ok {
		c.JSON(ae.HTTPStatus, gin.H{"error": gin.H{"code": ae.Code, "message": ae.Message}})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"code": apperr.CodeInternal, "message": "internal error"}})
}
