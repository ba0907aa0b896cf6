package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/fleet-motion/model"
)

// ReportFromStruct decodes a loosely typed report:
//
//	{id, lat, lng, speedKmh?, bearing?, timestamp? (epoch ms), motion?: {moving?, ignition?}}
//
// id and the coordinates are required. Optional fields that do not parse are
// treated as absent rather than zero. The result has passed Validate.
func ReportFromStruct(s *structpb.Struct) (model.PositionReport, error) {
	if s == nil {
		return model.PositionReport{}, fmt.Errorf("%w: empty report", ErrMissingField)
	}
	fields := s.GetFields()

	id, ok := idValue(fields["id"])
	if !ok {
		return model.PositionReport{}, fmt.Errorf("%w: id", ErrMissingField)
	}
	r := model.PositionReport{ID: id}

	lat, ok := numberValue(fields["lat"])
	if !ok {
		return model.PositionReport{}, fmt.Errorf("%w: %s: lat", ErrMissingField, id)
	}
	lng, ok := numberValue(fields["lng"])
	if !ok {
		return model.PositionReport{}, fmt.Errorf("%w: %s: lng", ErrMissingField, id)
	}
	r.Lat, r.Lng = lat, lng

	if v, ok := numberValue(fields["speedKmh"]); ok && finite(v) && v >= 0 {
		r.SpeedKmh = model.Float(v)
	}
	if v, ok := numberValue(fields["bearing"]); ok && finite(v) {
		r.Heading = model.Float(normalizeBearing(v))
	}
	if v, ok := numberValue(fields["timestamp"]); ok {
		if ts, ok := epochMillis(v); ok {
			r.Timestamp = ts
		}
	}
	if m := fields["motion"].GetStructValue(); m != nil {
		r.Motion = motionHint(m.GetFields())
	}

	if err := Validate(r); err != nil {
		return model.PositionReport{}, err
	}
	return r, nil
}

func motionHint(fields map[string]*structpb.Value) *model.MotionHint {
	var hint model.MotionHint
	if b, ok := fields["moving"].GetKind().(*structpb.Value_BoolValue); ok {
		hint.Moving = model.Bool(b.BoolValue)
	}
	switch strings.ToLower(fields["ignition"].GetStringValue()) {
	case "on":
		hint.Ignition = model.IgnitionOn
	case "off":
		hint.Ignition = model.IgnitionOff
	}
	if hint.Moving == nil && hint.Ignition == model.IgnitionUnknown {
		return nil
	}
	return &hint
}

func idValue(v *structpb.Value) (string, bool) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		id := strings.TrimSpace(k.StringValue)
		return id, id != ""
	case *structpb.Value_NumberValue:
		if !finite(k.NumberValue) {
			return "", false
		}
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64), true
	default:
		return "", false
	}
}

// numberValue accepts JSON numbers and numeric strings.
func numberValue(v *structpb.Value) (float64, bool) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return k.NumberValue, true
	case *structpb.Value_StringValue:
		f, err := strconv.ParseFloat(strings.TrimSpace(k.StringValue), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ReportToStruct encodes r in the vocabulary ReportFromStruct accepts.
func ReportToStruct(r model.PositionReport) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"id":  structpb.NewStringValue(r.ID),
		"lat": structpb.NewNumberValue(r.Lat),
		"lng": structpb.NewNumberValue(r.Lng),
	}
	if r.SpeedKmh != nil {
		fields["speedKmh"] = structpb.NewNumberValue(*r.SpeedKmh)
	}
	if r.Heading != nil {
		fields["bearing"] = structpb.NewNumberValue(*r.Heading)
	}
	if r.HasTimestamp() {
		fields["timestamp"] = structpb.NewNumberValue(float64(r.Timestamp.UnixMilli()))
	}
	if m := r.Motion; m != nil {
		motion := map[string]*structpb.Value{}
		if m.Moving != nil {
			motion["moving"] = structpb.NewBoolValue(*m.Moving)
		}
		switch m.Ignition {
		case model.IgnitionOn:
			motion["ignition"] = structpb.NewStringValue("on")
		case model.IgnitionOff:
			motion["ignition"] = structpb.NewStringValue("off")
		}
		fields["motion"] = structpb.NewStructValue(&structpb.Struct{Fields: motion})
	}
	return &structpb.Struct{Fields: fields}
}

// EstimateToStruct renders an estimate in the same loose vocabulary.
func EstimateToStruct(id string, est model.MotionEstimate) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"id":                structpb.NewStringValue(id),
		"lat":               structpb.NewNumberValue(est.Pose.Lat),
		"lng":               structpb.NewNumberValue(est.Pose.Lng),
		"bearing":           structpb.NewNumberValue(est.Pose.Heading),
		"speedMps":          structpb.NewNumberValue(est.Pose.Speed),
		"uncertaintyRadius": structpb.NewNumberValue(est.Pose.UncertaintyRadius),
		"state":             structpb.NewStringValue(est.State.String()),
		"confidence":        structpb.NewNumberValue(est.Confidence),
	}
	intent := map[string]*structpb.Value{
		"action":     structpb.NewStringValue(est.Intent.Action.String()),
		"confidence": structpb.NewNumberValue(est.Intent.Confidence),
	}
	if est.Intent.MeanHeading != nil {
		intent["meanBearing"] = structpb.NewNumberValue(*est.Intent.MeanHeading)
	}
	fields["intent"] = structpb.NewStructValue(&structpb.Struct{Fields: intent})
	if !est.Timestamp.IsZero() {
		fields["timestamp"] = structpb.NewNumberValue(float64(est.Timestamp.UnixMilli()))
	}
	return &structpb.Struct{Fields: fields}
}
