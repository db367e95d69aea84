// Package shareaccess issues and resolves time-limited public share
// links for a ride — the kind a rider forwards to a family member.
// The public projection never carries phone numbers or the start
// OTP.
package shareaccess

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/richxcame/ride-hailing/internal/driverstore"
	"github.com/richxcame/ride-hailing/internal/models"
	"github.com/richxcame/ride-hailing/internal/platform/apperr"
)

const tokenTTL = 24 * time.Hour

// Repository persists share tokens.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository builds a Repository over db.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new token for rideID, expiring in tokenTTL.
func (r *Repository) Create(ctx context.Context, rideID uuid.UUID) (*models.ShareToken, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	token := &models.ShareToken{
		Token:     hex.EncodeToString(raw),
		RideID:    rideID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(tokenTTL),
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO share_tokens (token, ride_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, token.Token, token.RideID, token.CreatedAt, token.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Get fetches a token by its value.
func (r *Repository) Get(ctx context.Context, token string) (*models.ShareToken, error) {
	t := &models.ShareToken{}
	err := r.db.QueryRow(ctx, `
		SELECT token, ride_id, created_at, expires_at FROM share_tokens WHERE token = $1
	`, token).Scan(&t.Token, &t.RideID, &t.CreatedAt, &t.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// RideReader is the narrow read surface shareaccess needs from the
// ride lifecycle coordinator.
type RideReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Ride, error)
}

// DriverReader is the narrow read surface shareaccess needs to name
// the assigned driver in the public view.
type DriverReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Driver, error)
}

// Service issues and resolves share links.
type Service struct {
	repo    *Repository
	rides   RideReader
	drivers DriverReader
	store   driverstore.Store
}

// NewService builds a Service.
func NewService(repo *Repository, rides RideReader, drivers DriverReader, store driverstore.Store) *Service {
	return &Service{repo: repo, rides: rides, drivers: drivers, store: store}
}

// IssueToken creates a new 24h share link for rideID.
func (s *Service) IssueToken(ctx context.Context, rideID uuid.UUID) (*models.ShareToken, error) {
	if _, err := s.rides.GetByID(ctx, rideID); err != nil {
		return nil, apperr.NewNotFound("ride not found")
	}
	return s.repo.Create(ctx, rideID)
}

// Resolve returns the public, PII-stripped view of a ride for a valid,
// non-expired token. An expired or missing token surfaces as 404,
// indistinguishable from a token that never existed.
func (s *Service) Resolve(ctx context.Context, token string) (*models.PublicRideView, error) {
	t, err := s.repo.Get(ctx, token)
	if err != nil || t.Expired(time.Now()) {
		return nil, apperr.NewNotFound("share link not found or expired")
	}

	ride, err := s.rides.GetByID(ctx, t.RideID)
	if err != nil {
		return nil, apperr.NewNotFound("ride not found")
	}

	view := &models.PublicRideView{
		RideID:        ride.ID,
		Status:        ride.Status,
		PickupLat:     ride.PickupLat,
		PickupLng:     ride.PickupLng,
		PickupAddress: ride.PickupAddress,
		DropLat:       ride.DropLat,
		DropLng:       ride.DropLng,
		DropAddress:   ride.DropAddress,
		VehicleType:   ride.VehicleType,
	}

	if ride.DriverID != nil {
		if info, ok := s.store.Get(ctx, *ride.DriverID); ok {
			lat, lng := info.Lat, info.Lng
			view.DriverLat = &lat
			view.DriverLng = &lng
		}
		if driver, err := s.drivers.GetByID(ctx, *ride.DriverID); err == nil {
			view.DriverName = driver.DisplayName
		}
	}

	return view, nil
}
