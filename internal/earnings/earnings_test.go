package earnings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/richxcame/ride-hailing/internal/platform/apperr"
)

func TestService_Summary_RejectsInvertedPeriod(t *testing.T) {
	s := NewService(&Repository{})

	from := time.Now()
	to := from.AddDate(0, 0, -1)

	_, err := s.Summary(context.Background(), uuid.New(), from, to)
	ae, ok := apperr.As(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.CodeValidation, ae.Code)
}

func TestService_History_RejectsInvertedPeriod(t *testing.T) {
	s := NewService(&Repository{})

	from := time.Now()
	to := from.AddDate(0, 0, -1)

	_, err := s.History(context.Background(), uuid.New(), from, to, 10, 0)
	ae, ok := apperr.As(err)
	assert.True(t, ok)
	assert.Equal(t, apperr.CodeValidation, ae.Code)
}
