package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShareToken_Expired(t *testing.T) {
	now := time.Now()
	token := &ShareToken{CreatedAt: now, ExpiresAt: now.Add(24 * time.Hour)}

	assert.False(t, token.Expired(now.Add(1*time.Hour)))
	assert.True(t, token.Expired(now.Add(25*time.Hour)))
}

func TestCanTransition_SampledPairs(t *testing.T) {
	cases := []struct {
		from, to RideStatus
		want     bool
	}{
		{RideStatusPending, RideStatusDriverAssigned, true},
		{RideStatusPending, RideStatusConfirmed, false},
		{RideStatusDriverAssigned, RideStatusDriverArrived, false},
		{RideStatusStarted, RideStatusCancelled, true},
		{RideStatusStarted, RideStatusCompleted, true},
		{RideStatusCompleted, RideStatusPending, false},
		{RideStatusCancelled, RideStatusDriverAssigned, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestIsTerminal(t *testing.T) {
	completed := &Ride{Status: RideStatusCompleted}
	cancelled := &Ride{Status: RideStatusCancelled}
	active := &Ride{Status: RideStatusStarted}

	assert.True(t, completed.IsTerminal())
	assert.True(t, cancelled.IsTerminal())
	assert.False(t, active.IsTerminal())
}
