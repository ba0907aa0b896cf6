package ingest

import (
	"context"
	"fmt"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/signalsfoundry/fleet-motion/internal/logging"
	"github.com/signalsfoundry/fleet-motion/model"
)

// TelemetryServiceName is the fully qualified gRPC service name.
const TelemetryServiceName = "motion.v1.TelemetryService"

// Sink is the part of the motion controller the service feeds.
type Sink interface {
	Update(r model.PositionReport) error
	Estimate(id string) (model.MotionEstimate, bool)
	Remove(id string) bool
}

// TelemetryServer is the server API of motion.v1.TelemetryService. Messages
// are protobuf well-known types and GTFS-Realtime feeds, so no generated
// code is needed.
type TelemetryServer interface {
	PublishReport(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	PublishFeed(context.Context, *gtfsrtpb.FeedMessage) (*structpb.Struct, error)
	GetEstimate(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	RemoveEntity(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

// TelemetryService accepts position reports and serves current estimates.
type TelemetryService struct {
	sink Sink
	log  logging.Logger
}

// NewTelemetryService constructs a service feeding sink.
func NewTelemetryService(sink Sink, log logging.Logger) *TelemetryService {
	if log == nil {
		log = logging.Noop()
	}
	return &TelemetryService{sink: sink, log: log}
}

// PublishReport ingests a single structured report.
func (s *TelemetryService) PublishReport(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	log := logging.FromContext(ctx, s.log)

	r, err := ReportFromStruct(in)
	if err != nil {
		log.Debug(ctx, "report rejected", logging.Err(err))
		return nil, ToStatusError(err)
	}

	_, span := startSpan(ctx, "Telemetry.Route", attribute.String("entity_id", r.ID))
	err = s.sink.Update(r)
	span.End()
	if err != nil {
		log.Debug(ctx, "report rejected", logging.EntityID(r.ID), logging.Err(err))
		return nil, ToStatusError(err)
	}
	return &emptypb.Empty{}, nil
}

// PublishFeed ingests every vehicle position in a GTFS-Realtime feed and
// reports how many were accepted and rejected. Rejections do not fail the
// call.
func (s *TelemetryService) PublishFeed(ctx context.Context, feed *gtfsrtpb.FeedMessage) (*structpb.Struct, error) {
	log := logging.FromContext(ctx, s.log)
	if feed == nil || feed.GetHeader() == nil {
		return nil, ToStatusError(fmt.Errorf("%w: feed header", ErrMissingField))
	}

	reports, errs := ReportsFromFeed(feed)
	_, span := startSpan(ctx, "Telemetry.RouteFeed", attribute.Int("reports", len(reports)))
	accepted := 0
	for _, r := range reports {
		if err := s.sink.Update(r); err != nil {
			errs = append(errs, err)
			continue
		}
		accepted++
	}
	span.SetAttributes(attribute.Int("accepted", accepted), attribute.Int("rejected", len(errs)))
	span.End()

	for _, err := range errs {
		log.Debug(ctx, "feed entity rejected", logging.Err(err))
	}
	log.Debug(ctx, "feed ingested",
		logging.Int("accepted", accepted),
		logging.Int("rejected", len(errs)),
	)

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"accepted": structpb.NewNumberValue(float64(accepted)),
		"rejected": structpb.NewNumberValue(float64(len(errs))),
	}}, nil
}

// GetEstimate returns the current estimate for an entity id.
func (s *TelemetryService) GetEstimate(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := in.GetValue()
	if id == "" {
		return nil, ToStatusError(fmt.Errorf("%w: id", ErrMissingField))
	}
	est, ok := s.sink.Estimate(id)
	if !ok {
		return nil, ToStatusError(fmt.Errorf("%w: entity %q", ErrNotFound, id))
	}
	return EstimateToStruct(id, est), nil
}

// RemoveEntity stops tracking an entity and drops its marker.
func (s *TelemetryService) RemoveEntity(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	id := in.GetValue()
	if id == "" {
		return nil, ToStatusError(fmt.Errorf("%w: id", ErrMissingField))
	}
	if !s.sink.Remove(id) {
		return nil, ToStatusError(fmt.Errorf("%w: entity %q", ErrNotFound, id))
	}
	logging.FromContext(ctx, s.log).Info(ctx, "entity removed", logging.EntityID(id))
	return &emptypb.Empty{}, nil
}

// RegisterTelemetryServer registers srv on s.
func RegisterTelemetryServer(s grpc.ServiceRegistrar, srv TelemetryServer) {
	s.RegisterService(&TelemetryServiceDesc, srv)
}

// TelemetryServiceDesc describes motion.v1.TelemetryService for grpc.
var TelemetryServiceDesc = grpc.ServiceDesc{
	ServiceName: TelemetryServiceName,
	HandlerType: (*TelemetryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PublishReport", Handler: publishReportHandler},
		{MethodName: "PublishFeed", Handler: publishFeedHandler},
		{MethodName: "GetEstimate", Handler: getEstimateHandler},
		{MethodName: "RemoveEntity", Handler: removeEntityHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "motion/v1/telemetry.proto",
}

func publishReportHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TelemetryServer).PublishReport(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + TelemetryServiceName + "/PublishReport"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(TelemetryServer).PublishReport(ctx, req.(*structpb.Struct))
	})
}

func publishFeedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(gtfsrtpb.FeedMessage)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TelemetryServer).PublishFeed(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + TelemetryServiceName + "/PublishFeed"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(TelemetryServer).PublishFeed(ctx, req.(*gtfsrtpb.FeedMessage))
	})
}

func getEstimateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TelemetryServer).GetEstimate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + TelemetryServiceName + "/GetEstimate"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(TelemetryServer).GetEstimate(ctx, req.(*wrapperspb.StringValue))
	})
}

func removeEntityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TelemetryServer).RemoveEntity(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + TelemetryServiceName + "/RemoveEntity"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(TelemetryServer).RemoveEntity(ctx, req.(*wrapperspb.StringValue))
	})
}
