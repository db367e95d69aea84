package rides

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/richxcame/ride-hailing/internal/models"
)

func TestValidCoordinate(t *testing.T) {
	assert.True(t, validCoordinate(12.9352, 77.6245))
	assert.False(t, validCoordinate(91, 0))
	assert.False(t, validCoordinate(0, -181))
}

func TestGenerateOTP_IsFourDigitsInRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		otp, err := generateOTP()
		assert.NoError(t, err)
		assert.Len(t, otp, 4)
		n, err := strconv.Atoi(otp)
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1000)
		assert.LessOrEqual(t, n, 9999)
	}
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 12.35, round2(12.345))
	assert.Equal(t, 12.30, round2(12.3))
}

func TestCanTransition_HappyPath(t *testing.T) {
	assert.True(t, models.CanTransition(models.RideStatusPending, models.RideStatusDriverAssigned))
	assert.True(t, models.CanTransition(models.RideStatusDriverAssigned, models.RideStatusConfirmed))
	assert.True(t, models.CanTransition(models.RideStatusConfirmed, models.RideStatusDriverArrived))
	assert.True(t, models.CanTransition(models.RideStatusDriverArrived, models.RideStatusStarted))
	assert.True(t, models.CanTransition(models.RideStatusStarted, models.RideStatusCompleted))
}

func TestCanTransition_RejectsSkippingStates(t *testing.T) {
	assert.False(t, models.CanTransition(models.RideStatusPending, models.RideStatusStarted))
	assert.False(t, models.CanTransition(models.RideStatusCompleted, models.RideStatusCancelled))
}

func TestCanTransition_CancellableFromEveryActiveState(t *testing.T) {
	assert.True(t, models.CanTransition(models.RideStatusPending, models.RideStatusCancelled))
	assert.True(t, models.CanTransition(models.RideStatusDriverAssigned, models.RideStatusCancelled))
	assert.True(t, models.CanTransition(models.RideStatusConfirmed, models.RideStatusCancelled))
	assert.True(t, models.CanTransition(models.RideStatusDriverArrived, models.RideStatusCancelled))
	assert.True(t, models.CanTransition(models.RideStatusStarted, models.RideStatusCancelled))
}
