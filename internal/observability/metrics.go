// Package observability exposes Prometheus metrics for the motion controller
// and ingest RPCs, and sets up OpenTelemetry tracing.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/fleet-motion/model"
)

// MotionCollector bundles the motion metrics. It satisfies
// core.MetricsRecorder and provides a gRPC interceptor and /metrics handler.
type MotionCollector struct {
	gatherer prometheus.Gatherer

	Entities       *prometheus.GaugeVec
	Reports        *prometheus.CounterVec
	Teleports      prometheus.Counter
	FrameDurations prometheus.Histogram
	FrameEntities  prometheus.Gauge

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
}

// NewMotionCollector registers the motion metrics against reg, defaulting to
// the global registry when nil. Registering twice on one registry returns
// collectors bound to the existing metrics.
func NewMotionCollector(reg prometheus.Registerer) (*MotionCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	entities, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "motion_entities",
		Help: "Tracked entities by motion state at the last frame.",
	}, []string{"state"}), "motion_entities")
	if err != nil {
		return nil, err
	}
	reports, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "motion_reports_total",
		Help: "Position reports offered to entity buffers, labeled by buffer outcome.",
	}, []string{"result"}), "motion_reports_total")
	if err != nil {
		return nil, err
	}
	teleports, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "motion_teleports_total",
		Help: "Observations that exceeded the teleport threshold and hard-snapped the estimate.",
	}), "motion_teleports_total")
	if err != nil {
		return nil, err
	}
	frames, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "motion_frame_duration_seconds",
		Help:    "Time spent ticking and rendering all entities in one frame.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}), "motion_frame_duration_seconds")
	if err != nil {
		return nil, err
	}
	frameEntities, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "motion_frame_entities",
		Help: "Entities ticked in the last frame, including uninitialised ones.",
	}), "motion_frame_entities")
	if err != nil {
		return nil, err
	}
	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "motion_rpc_requests_total",
		Help: "Handled telemetry RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "motion_rpc_requests_total")
	if err != nil {
		return nil, err
	}
	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "motion_rpc_duration_seconds",
		Help:    "Telemetry RPC latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"service", "method"}), "motion_rpc_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &MotionCollector{
		gatherer:       gatherer,
		Entities:       entities,
		Reports:        reports,
		Teleports:      teleports,
		FrameDurations: frames,
		FrameEntities:  frameEntities,
		RPCRequests:    requests,
		RPCDurations:   durations,
	}, nil
}

// SetEntityStates publishes the per-state entity counts of a frame.
func (c *MotionCollector) SetEntityStates(counts map[model.MotionState]int) {
	if c == nil || c.Entities == nil {
		return
	}
	for _, s := range model.AllMotionStates {
		c.Entities.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

// ObserveFrame records one frame's duration and size.
func (c *MotionCollector) ObserveFrame(d time.Duration, entities int) {
	if c == nil {
		return
	}
	if c.FrameDurations != nil {
		c.FrameDurations.Observe(d.Seconds())
	}
	if c.FrameEntities != nil {
		c.FrameEntities.Set(float64(entities))
	}
}

// IncReport counts a report by buffer outcome or rejection reason.
func (c *MotionCollector) IncReport(result string) {
	if c == nil || c.Reports == nil {
		return
	}
	c.Reports.WithLabelValues(result).Inc()
}

func (c *MotionCollector) IncTeleport() {
	if c == nil || c.Teleports == nil {
		return
	}
	c.Teleports.Inc()
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *MotionCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}
		return resp, err
	}
}

// Handler exposes a /metrics handler for the collector's registry.
func (c *MotionCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses "/pkg.Service/Method" into its short service and method
// names, returning "unknown" for parts it cannot find.
func SplitMethod(fullMethod string) (string, string) {
	parts := strings.Split(strings.TrimPrefix(fullMethod, "/"), "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

// register adds col to reg, reusing an already registered collector of the
// same type.
func register[T prometheus.Collector](reg prometheus.Registerer, col T, name string) (T, error) {
	if err := reg.Register(col); err != nil {
		var zero T
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return zero, err
		}
		existing, ok := are.ExistingCollector.(T)
		if !ok {
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return existing, nil
	}
	return col, nil
}
