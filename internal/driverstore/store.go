// Package driverstore is the Driver State Store: the authoritative,
// low-latency view of where online drivers are and whether they are
// free to take a ride. It ships in two backends behind the same Store
// interface — an in-process map (default, single instance) and a
// Redis-backed one (a GEOADD index plus per-cell driver-id sets read
// with SMEMBERS, for a horizontally scaled dispatch tier) — selected once at startup from
// config, never per call. UpdateLocation and SetStatus mutate the
// index (the map, or Redis) synchronously, so a read that follows
// either call always observes it; only the write-through to the
// durable Postgres record is deferred, coalesced to the latest update
// per driver and flushed through a retrying PersistenceSink every
// LocationFlushInterval.
package driverstore

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/richxcame/ride-hailing/internal/models"
	"github.com/richxcame/ride-hailing/internal/platform/resilience"
)

// LocationFlushInterval is the default period of the deferred location
// write-through; NewMemoryStoreTuned and NewRedisStore accept another.
// StatusFlushInterval is not read by either backend: SetStatus applies
// status to the index synchronously and has no deferred flush.
const (
	LocationFlushInterval = 2 * time.Second
	StatusFlushInterval   = 500 * time.Millisecond
	DefaultSearchMaxRing  = 4

	// DefaultHeartbeatStaleness is the maximum age of a driver's last
	// location update before it is excluded from NearbyAvailable,
	// even if it is still marked online/available.
	DefaultHeartbeatStaleness = 5 * time.Minute
)

// DriverInfo is a snapshot of one driver's dispatch-relevant state.
type DriverInfo struct {
	DriverID    uuid.UUID
	UserID      uuid.UUID
	Lat, Lng    float64
	H3Cell      string
	VehicleType models.VehicleType
	Online      bool
	Available   bool
	UpdatedAt   time.Time

	// DistanceKm is populated by NearbyAvailable only; it is the
	// great-circle distance from the query point, used to sort
	// results ascending before returning them.
	DistanceKm float64
}

// Metrics is a snapshot of the store's internal counters, returned by
// Store.Metrics. cmd/dispatch does not export it to Prometheus.
type Metrics struct {
	TrackedDrivers int
	// LocationFlushes counts persistence-sink flush ticks that applied
	// at least one batched location write.
	LocationFlushes uint64
	// StatusFlushes counts SetStatus calls applied to the index; status
	// has no deferred persistent side, so this increments synchronously
	// with each call rather than on a ticker.
	StatusFlushes uint64

	// QueuedWrites is the number of driver location updates waiting for
	// their next persistent-store flush.
	QueuedWrites int64
	// WriteFailures counts persistent-store writes that exhausted
	// their retry budget and were dropped.
	WriteFailures uint64
}

// PersistenceSink is the durable side a Driver State Store backend
// writes through to, on a delay, after its own index update has
// already been applied. internal/drivers.Repository implements it
// against Postgres; driverstore never talks to a database directly.
type PersistenceSink interface {
	UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64, h3Cell string) error
}

// persistRetryConfig governs the retry budget for a single driver's
// deferred persistent write, mirroring database.RetryableTransaction's
// backoff shape but over a shorter ceiling: a write that still fails
// after three attempts will simply be retried wholesale on the next
// flush tick once a fresher location arrives.
var persistRetryConfig = resilience.RetryConfig{
	MaxAttempts:       3,
	InitialBackoff:    100 * time.Millisecond,
	MaxBackoff:        2 * time.Second,
	BackoffMultiplier: 2.0,
	EnableJitter:      true,
}

// Store is the Driver State Store's public surface. Both backends
// implement it identically from the caller's perspective.
type Store interface {
	// UpdateLocation records a driver's new coordinates and recomputes
	// its matching-resolution H3 cell. The index update this performs
	// is synchronous and visible to the next NearbyAvailable/Get call
	// before UpdateLocation returns; only the write-through to the
	// PersistenceSink is deferred to the next flush tick.
	UpdateLocation(ctx context.Context, driverID uuid.UUID, lat, lng float64, vehicleType models.VehicleType) error

	// SetStatus flips a driver's online/available flags, synchronously
	// adding to or removing from the spatial index.
	SetStatus(ctx context.Context, driverID uuid.UUID, online, available bool) error

	// NearbyAvailable returns available drivers of vehicleType found
	// by progressively widening an H3 k-ring search around (lat,
	// lng), stopping at the first ring that yields a match or at the
	// store's maximum ring (DefaultSearchMaxRing unless SetMaxRing
	// overrides it), whichever comes first. Results are
	// filtered to isOnline && isAvailable && lastActiveAt within the
	// store's configured heartbeat staleness && distance <=
	// maxRadiusKm, and sorted ascending by distance. maxRadiusKm <= 0
	// disables the radius filter.
	NearbyAvailable(ctx context.Context, lat, lng float64, vehicleType models.VehicleType, maxRadiusKm float64, maxResults int) ([]DriverInfo, error)

	// Get returns the last known state for a single driver.
	Get(ctx context.Context, driverID uuid.UUID) (DriverInfo, bool)

	// GetByUserID returns the last known state for the driver whose
	// account is userID, when that mapping was loaded via Hydrate.
	GetByUserID(ctx context.Context, userID uuid.UUID) (DriverInfo, bool)

	// ResolveDriverID maps an id that may be either a driver id or that
	// driver's user id onto the driver id, trying the driver index
	// first.
	ResolveDriverID(ctx context.Context, id uuid.UUID) (uuid.UUID, bool)

	// Hydrate bulk-loads driver records at startup. A hydration failure
	// must block service readiness — a dispatch tier that boots with an
	// empty index silently matches nobody.
	Hydrate(ctx context.Context, records []DriverInfo) error

	Metrics() Metrics
	Close()
}

type locationUpdate struct {
	driverID    uuid.UUID
	lat, lng    float64
	vehicleType models.VehicleType
	at          time.Time
}

type statusUpdate struct {
	driverID  uuid.UUID
	online    bool
	available bool
	at        time.Time
}

// dirtyBuffer coalesces a driver's updates between flush ticks,
// keeping only the most recent one per driver, and hands each flush's
// batch to apply — used here only for the deferred PersistenceSink
// write, never for the index update itself, which both backends apply
// synchronously before ever touching the buffer.
type dirtyBuffer[T any] struct {
	interval time.Duration
	keyOf    func(T) uuid.UUID
	apply    func(map[uuid.UUID]T)
	flushes  func()

	in     chan T
	stopCh chan struct{}
	queued atomic.Int64
}

func newDirtyBuffer[T any](interval time.Duration, keyOf func(T) uuid.UUID, apply func(map[uuid.UUID]T), onFlush func()) *dirtyBuffer[T] {
	b := &dirtyBuffer[T]{
		interval: interval,
		keyOf:    keyOf,
		apply:    apply,
		flushes:  onFlush,
		in:       make(chan T, 256),
		stopCh:   make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *dirtyBuffer[T]) Enqueue(v T) {
	select {
	case b.in <- v:
	default:
		// Buffer channel full: drop the oldest signal by draining one
		// slot. A location/status update superseded by the next tick
		// anyway, so losing an intermediate one is harmless.
		select {
		case <-b.in:
		default:
		}
		b.in <- v
	}
}

// Queued reports how many distinct drivers have an update waiting for
// the next flush.
func (b *dirtyBuffer[T]) Queued() int64 {
	return b.queued.Load()
}

func (b *dirtyBuffer[T]) run() {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	pending := make(map[uuid.UUID]T)
	for {
		select {
		case v := <-b.in:
			pending[b.keyOf(v)] = v
			b.queued.Store(int64(len(pending)))
		case <-ticker.C:
			if len(pending) == 0 {
				continue
			}
			batch := pending
			pending = make(map[uuid.UUID]T)
			b.queued.Store(0)
			b.apply(batch)
			if b.flushes != nil {
				b.flushes()
			}
		case <-b.stopCh:
			if len(pending) > 0 {
				b.apply(pending)
			}
			return
		}
	}
}

func (b *dirtyBuffer[T]) Stop() {
	close(b.stopCh)
}
