package ingest

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/signalsfoundry/fleet-motion/model"
)

// Validate rejects reports the motion core must never see: an empty id or a
// non-finite or out of range coordinate. Optional fields are not checked
// here; the adapters drop unusable ones.
func Validate(r model.PositionReport) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: id", ErrMissingField)
	}
	if !finite(r.Lat) || r.Lat < -90 || r.Lat > 90 {
		return fmt.Errorf("%w: %s: latitude %v out of range", ErrInvalidReport, r.ID, r.Lat)
	}
	if !finite(r.Lng) || r.Lng < -180 || r.Lng > 180 {
		return fmt.Errorf("%w: %s: longitude %v out of range", ErrInvalidReport, r.ID, r.Lng)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func normalizeBearing(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// maxEpochMillis is 9999-12-31T23:59:59.999Z. Source timestamps past it are
// treated as absent.
const maxEpochMillis = 253402300799999

func epochMillis(ms float64) (time.Time, bool) {
	if !finite(ms) || ms <= 0 || ms > maxEpochMillis {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}

func epochSeconds(s uint64) (time.Time, bool) {
	if s == 0 || s > maxEpochMillis/1000 {
		return time.Time{}, false
	}
	return time.Unix(int64(s), 0).UTC(), true
}
