package driverstore

import (
	"fmt"
	"time"

	"github.com/richxcame/ride-hailing/internal/platform/apperr"
)

// nowFunc is a seam for tests; production always uses time.Now.
var nowFunc = time.Now

func errInvalidCoordinate(lat, lng float64) error {
	return apperr.NewBadCoordinate(fmt.Sprintf("invalid coordinate: lat=%v lng=%v", lat, lng))
}
