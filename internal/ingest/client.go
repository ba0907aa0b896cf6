package ingest

import (
	"context"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// TelemetryClient calls motion.v1.TelemetryService.
type TelemetryClient struct {
	cc grpc.ClientConnInterface
}

func NewTelemetryClient(cc grpc.ClientConnInterface) *TelemetryClient {
	return &TelemetryClient{cc: cc}
}

func (c *TelemetryClient) PublishReport(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/"+TelemetryServiceName+"/PublishReport", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TelemetryClient) PublishFeed(ctx context.Context, in *gtfsrtpb.FeedMessage, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+TelemetryServiceName+"/PublishFeed", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TelemetryClient) GetEstimate(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+TelemetryServiceName+"/GetEstimate", wrapperspb.String(id), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TelemetryClient) RemoveEntity(ctx context.Context, id string, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/"+TelemetryServiceName+"/RemoveEntity", wrapperspb.String(id), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
