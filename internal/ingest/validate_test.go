package ingest

import (
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/fleet-motion/model"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		r    model.PositionReport
		want error
	}{
		{"ok", model.PositionReport{ID: "a", Lat: 19.4, Lng: -99.1}, nil},
		{"blank id", model.PositionReport{ID: "  ", Lat: 1, Lng: 1}, ErrMissingField},
		{"nan lat", model.PositionReport{ID: "a", Lat: math.NaN(), Lng: 1}, ErrInvalidReport},
		{"inf lng", model.PositionReport{ID: "a", Lat: 1, Lng: math.Inf(1)}, ErrInvalidReport},
		{"lat range", model.PositionReport{ID: "a", Lat: 91, Lng: 1}, ErrInvalidReport},
		{"lng range", model.PositionReport{ID: "a", Lat: 1, Lng: -181}, ErrInvalidReport},
		{"poles and antimeridian", model.PositionReport{ID: "a", Lat: -90, Lng: 180}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.r)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNormalizeBearing(t *testing.T) {
	for in, want := range map[float64]float64{0: 0, 360: 0, 370: 10, -90: 270, 720.5: 0.5} {
		if got := normalizeBearing(in); got != want {
			t.Fatalf("normalizeBearing(%v) = %v, want %v", in, got, want)
		}
	}
}
