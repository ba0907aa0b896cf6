package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/signalsfoundry/fleet-motion/core"
	"github.com/signalsfoundry/fleet-motion/internal/logging"
	"github.com/signalsfoundry/fleet-motion/internal/observability"
	"github.com/signalsfoundry/fleet-motion/kb"
	"github.com/signalsfoundry/fleet-motion/model"
	"github.com/signalsfoundry/fleet-motion/timectrl"
)

type recordingSink struct {
	reports   []model.PositionReport
	estimates map[string]model.MotionEstimate
	removed   []string
}

func (s *recordingSink) Update(r model.PositionReport) error {
	s.reports = append(s.reports, r)
	return nil
}

func (s *recordingSink) Remove(id string) bool {
	s.removed = append(s.removed, id)
	_, ok := s.estimates[id]
	return ok
}

func (s *recordingSink) Estimate(id string) (model.MotionEstimate, bool) {
	est, ok := s.estimates[id]
	return est, ok
}

func startServer(t *testing.T, sink Sink, collector *observability.MotionCollector) *TelemetryClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := NewServer(sink, logging.Noop(), collector)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewTelemetryClient(conn)
}

func TestPublishReportRoutesToController(t *testing.T) {
	ctrl := core.NewMotionController(nil)
	client := startServer(t, ctrl, nil)
	ctx := context.Background()

	in := mustStruct(t, map[string]any{
		"id": "bus-7", "lat": 19.4326, "lng": -99.1332,
		"speedKmh": 36, "bearing": 90, "timestamp": 1740830400000,
	})
	if _, err := client.PublishReport(ctx, in); err != nil {
		t.Fatalf("PublishReport: %v", err)
	}

	out, err := client.GetEstimate(ctx, "bus-7")
	if err != nil {
		t.Fatalf("GetEstimate: %v", err)
	}
	m := out.AsMap()
	if m["state"] != "REAL" || m["lat"] != 19.4326 || m["bearing"] != 90.0 {
		t.Fatalf("estimate = %v, want REAL at the reported fix", m)
	}
}

func TestPublishReportInvalidArgument(t *testing.T) {
	sink := &recordingSink{}
	client := startServer(t, sink, nil)

	_, err := client.PublishReport(context.Background(), mustStruct(t, map[string]any{"id": "a", "lat": "NaN", "lng": 1}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("PublishReport(NaN) code = %v, want InvalidArgument", status.Code(err))
	}
	if len(sink.reports) != 0 {
		t.Fatalf("sink received %d reports, want 0", len(sink.reports))
	}
}

func TestGetEstimateNotFound(t *testing.T) {
	client := startServer(t, &recordingSink{}, nil)

	_, err := client.GetEstimate(context.Background(), "ghost")
	if status.Code(err) != codes.NotFound {
		t.Fatalf("GetEstimate(ghost) code = %v, want NotFound", status.Code(err))
	}
	_, err = client.GetEstimate(context.Background(), "")
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("GetEstimate(\"\") code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestPublishFeedCountsAcceptedAndRejected(t *testing.T) {
	sink := &recordingSink{}
	reg := prometheus.NewRegistry()
	collector, err := observability.NewMotionCollector(reg)
	if err != nil {
		t.Fatalf("NewMotionCollector: %v", err)
	}
	client := startServer(t, sink, collector)

	feed := feedOf(1740830400,
		vehicleEntity("1", "bus-1", 19.5, -99.25),
		vehicleEntity("2", "bus-2", 19.25, -99.5),
		vehicleEntity("3", "bad", 95, 0),
	)
	out, err := client.PublishFeed(context.Background(), feed)
	if err != nil {
		t.Fatalf("PublishFeed: %v", err)
	}
	m := out.AsMap()
	if m["accepted"] != 2.0 || m["rejected"] != 1.0 {
		t.Fatalf("PublishFeed result = %v, want accepted 2 rejected 1", m)
	}
	if len(sink.reports) != 2 || sink.reports[1].ID != "bus-2" {
		t.Fatalf("sink reports = %+v, want bus-1 and bus-2", sink.reports)
	}
	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("TelemetryService", "PublishFeed", "OK")); got != 1 {
		t.Fatalf("motion_rpc_requests_total{PublishFeed,OK} = %v, want 1", got)
	}
}

func TestPublishFeedWithoutHeaderRejected(t *testing.T) {
	svc := NewTelemetryService(&recordingSink{}, nil)
	_, err := svc.PublishFeed(context.Background(), &gtfsrtpb.FeedMessage{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("PublishFeed(no header) code = %v, want InvalidArgument", status.Code(err))
	}
}

func TestRequestIDInterceptorUsesHeader(t *testing.T) {
	var seen string
	interceptor := RequestIDUnaryServerInterceptor(nil)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-request-id", "req-123"))
	info := &grpc.UnaryServerInfo{FullMethod: "/" + TelemetryServiceName + "/GetEstimate"}

	_, err := interceptor(ctx, wrapperspb.String("x"), info, func(ctx context.Context, req any) (any, error) {
		seen = logging.RequestIDFromContext(ctx)
		if logging.FromContext(ctx, nil) == nil {
			t.Fatalf("no logger on context")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if seen != "req-123" {
		t.Fatalf("request id = %q, want req-123", seen)
	}
}

func TestRequestIDInterceptorGeneratesID(t *testing.T) {
	var seen string
	info := &grpc.UnaryServerInfo{FullMethod: "/" + TelemetryServiceName + "/PublishReport"}
	_, _ = RequestIDUnaryServerInterceptor(logging.Noop())(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		seen = logging.RequestIDFromContext(ctx)
		return nil, nil
	})
	if len(seen) != 36 {
		t.Fatalf("generated request id = %q, want a uuid", seen)
	}
}

func TestTracingInterceptorPassesErrorsThrough(t *testing.T) {
	boom := errors.New("boom")
	info := &grpc.UnaryServerInfo{FullMethod: "/" + TelemetryServiceName + "/PublishReport"}
	_, err := TracingUnaryServerInterceptor()(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("interceptor error = %v, want boom", err)
	}
}

func TestToStatusError(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{ErrNotFound, codes.NotFound},
		{ErrInvalidReport, codes.InvalidArgument},
		{ErrMissingField, codes.InvalidArgument},
		{fmt.Errorf("wrapped: %w", model.ErrFutureTimestamp), codes.InvalidArgument},
		{errors.New("other"), codes.Internal},
		{status.Error(codes.Unavailable, "down"), codes.Unavailable},
	}
	for _, tc := range cases {
		if got := status.Code(ToStatusError(tc.err)); got != tc.want {
			t.Fatalf("ToStatusError(%v) code = %v, want %v", tc.err, got, tc.want)
		}
	}
	if ToStatusError(nil) != nil {
		t.Fatalf("ToStatusError(nil) != nil")
	}
}

func TestTelemetryClientDeadline(t *testing.T) {
	client := startServer(t, &recordingSink{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	feed := &gtfsrtpb.FeedMessage{Header: &gtfsrtpb.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")}}
	if _, err := client.PublishFeed(ctx, feed); status.Code(err) != codes.DeadlineExceeded {
		t.Fatalf("PublishFeed(expired ctx) code = %v, want DeadlineExceeded", status.Code(err))
	}
}

func TestPublishReportFromFutureRejected(t *testing.T) {
	now := time.UnixMilli(1740830400000).UTC()
	ctrl := core.NewMotionController(nil, core.WithClock(timectrl.NewManualClock(now)))
	client := startServer(t, ctrl, nil)
	ctx := context.Background()

	future := mustStruct(t, map[string]any{
		"id": "bus-7", "lat": 1, "lng": 2,
		"timestamp": float64(now.AddDate(10, 0, 0).UnixMilli()),
	})
	_, err := client.PublishReport(ctx, future)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("PublishReport(future) code = %v, want InvalidArgument", status.Code(err))
	}
	if _, err := client.GetEstimate(ctx, "bus-7"); status.Code(err) != codes.NotFound {
		t.Fatalf("GetEstimate after rejected report code = %v, want NotFound", status.Code(err))
	}

	fix := mustStruct(t, map[string]any{
		"id": "bus-7", "lat": 10, "lng": 20,
		"timestamp": float64(now.Add(time.Second).UnixMilli()),
	})
	if _, err := client.PublishReport(ctx, fix); err != nil {
		t.Fatalf("PublishReport(fix): %v", err)
	}
	ctrl.Frame(now.Add(2 * time.Second))
	out, err := client.GetEstimate(ctx, "bus-7")
	if err != nil {
		t.Fatalf("GetEstimate: %v", err)
	}
	if m := out.AsMap(); m["lat"] != 10.0 || m["lng"] != 20.0 {
		t.Fatalf("estimate = %v, want the real fix at (10, 20)", m)
	}
}

func TestPublishFeedCountsFutureReportsAsRejected(t *testing.T) {
	now := time.Unix(1740830400, 0).UTC()
	ctrl := core.NewMotionController(nil, core.WithClock(timectrl.NewManualClock(now)))
	client := startServer(t, ctrl, nil)

	late := vehicleEntity("2", "bus-2", 19.25, -99.5)
	late.Vehicle.Timestamp = proto.Uint64(uint64(now.Add(time.Hour).Unix()))
	feed := feedOf(uint64(now.Unix()), vehicleEntity("1", "bus-1", 19.5, -99.25), late)

	out, err := client.PublishFeed(context.Background(), feed)
	if err != nil {
		t.Fatalf("PublishFeed: %v", err)
	}
	if m := out.AsMap(); m["accepted"] != 1.0 || m["rejected"] != 1.0 {
		t.Fatalf("PublishFeed result = %v, want accepted 1 rejected 1", m)
	}
	if ids := ctrl.IDs(); len(ids) != 1 || ids[0] != "bus-1" {
		t.Fatalf("tracked ids = %v, want [bus-1]", ids)
	}
}

func TestRemoveEntityDropsEngineAndMarker(t *testing.T) {
	markers := kb.NewMarkerStore()
	ctrl := core.NewMotionController(markers)
	client := startServer(t, ctrl, nil)
	ctx := context.Background()

	in := mustStruct(t, map[string]any{"id": "bus-7", "lat": 19.4326, "lng": -99.1332, "timestamp": 1740830400000})
	if _, err := client.PublishReport(ctx, in); err != nil {
		t.Fatalf("PublishReport: %v", err)
	}
	ctrl.Frame(time.UnixMilli(1740830401000))
	if markers.Len() != 1 {
		t.Fatalf("markers = %d before remove, want 1", markers.Len())
	}

	if _, err := client.RemoveEntity(ctx, "bus-7"); err != nil {
		t.Fatalf("RemoveEntity: %v", err)
	}
	if ctrl.Len() != 0 || markers.Len() != 0 {
		t.Fatalf("after RemoveEntity controller=%d markers=%d, want 0/0", ctrl.Len(), markers.Len())
	}
	if _, err := client.RemoveEntity(ctx, "bus-7"); status.Code(err) != codes.NotFound {
		t.Fatalf("second RemoveEntity code = %v, want NotFound", status.Code(err))
	}
	if _, err := client.RemoveEntity(ctx, ""); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("RemoveEntity(\"\") code = %v, want InvalidArgument", status.Code(err))
	}
}
