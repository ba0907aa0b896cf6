package ingest

import (
	"fmt"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"github.com/signalsfoundry/fleet-motion/model"
)

// ReportsFromFeed converts the VehiclePosition entities of a GTFS-Realtime
// feed into reports. Entities without a position are skipped silently;
// entities that fail validation are returned as errors alongside the good
// reports.
//
// The vehicle id is the VehicleDescriptor id, falling back to the entity id.
// Speed is converted from m/s to km/h and STOPPED_AT maps to moving=false.
func ReportsFromFeed(feed *gtfsrtpb.FeedMessage) ([]model.PositionReport, []error) {
	if feed == nil {
		return nil, nil
	}
	var (
		out  []model.PositionReport
		errs []error
	)
	for _, e := range feed.GetEntity() {
		if e.GetIsDeleted() {
			continue
		}
		vp := e.GetVehicle()
		if vp == nil || vp.GetPosition() == nil {
			continue
		}
		r, err := reportFromVehicle(e.GetId(), vp, feed.GetHeader().GetTimestamp())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, r)
	}
	return out, errs
}

func reportFromVehicle(entityID string, vp *gtfsrtpb.VehiclePosition, headerTS uint64) (model.PositionReport, error) {
	id := vp.GetVehicle().GetId()
	if id == "" {
		id = entityID
	}
	pos := vp.GetPosition()
	if pos.Latitude == nil || pos.Longitude == nil {
		return model.PositionReport{}, fmt.Errorf("%w: %s: position without coordinates", ErrMissingField, id)
	}

	r := model.PositionReport{
		ID:  id,
		Lat: float64(pos.GetLatitude()),
		Lng: float64(pos.GetLongitude()),
	}
	if pos.Speed != nil {
		if mps := float64(pos.GetSpeed()); finite(mps) && mps >= 0 {
			r.SpeedKmh = model.Float(mps * 3.6)
		}
	}
	if pos.Bearing != nil {
		if b := float64(pos.GetBearing()); finite(b) {
			r.Heading = model.Float(normalizeBearing(b))
		}
	}

	ts := vp.GetTimestamp()
	if ts == 0 {
		ts = headerTS
	}
	if t, ok := epochSeconds(ts); ok {
		r.Timestamp = t
	}

	if vp.CurrentStatus != nil {
		moving := vp.GetCurrentStatus() != gtfsrtpb.VehiclePosition_STOPPED_AT
		r.Motion = &model.MotionHint{Moving: model.Bool(moving)}
	}

	if err := Validate(r); err != nil {
		return model.PositionReport{}, err
	}
	return r, nil
}
