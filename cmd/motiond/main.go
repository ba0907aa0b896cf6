// Command motiond ingests position telemetry over gRPC and maintains a
// smoothed motion estimate for every reporting entity.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/signalsfoundry/fleet-motion/core"
	"github.com/signalsfoundry/fleet-motion/internal/config"
	"github.com/signalsfoundry/fleet-motion/internal/ingest"
	"github.com/signalsfoundry/fleet-motion/internal/logging"
	"github.com/signalsfoundry/fleet-motion/internal/observability"
	"github.com/signalsfoundry/fleet-motion/kb"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	grpcAddr := flag.String("grpc-addr", "", "Override server.grpc_addr")
	metricsAddr := flag.String("metrics-addr", "", "Override server.metrics_addr; \"off\" disables the HTTP listener")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "motiond: %v\n", err)
		os.Exit(2)
	}
	if *grpcAddr != "" {
		cfg.Server.GRPCAddr = *grpcAddr
	}
	switch *metricsAddr {
	case "":
	case "off":
		cfg.Server.MetricsAddr = ""
	default:
		cfg.Server.MetricsAddr = *metricsAddr
	}

	log := logging.NewFromEnv(cfg.LoggerConfig())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Server.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}
	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "motiond exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves until ctx is cancelled. It owns lis.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := observability.NewMotionCollector(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	markers := kb.NewMarkerStore()
	controller := core.NewMotionController(markers,
		core.WithEngineOptions(cfg.EngineOptions()),
		core.WithFrameInterval(cfg.Controller.FrameInterval),
		core.WithMaxFrameGap(cfg.Controller.MaxFrameGap),
		core.WithMaxFutureSkew(cfg.Controller.MaxFutureSkew),
		core.WithLogger(log),
		core.WithMetricsRecorder(collector),
	)
	controller.Start()
	defer controller.Stop()

	httpSrv := serveHTTP(cfg.Server.MetricsAddr, collector, markers, log)

	server := ingest.NewServer(controller, log, collector)
	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "serving telemetry gRPC", logging.String("addr", lis.Addr().String()))
		serveErr <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("grpc serve: %w", err)
		}
	}

	log.Info(context.Background(), "shutting down motiond")
	server.GracefulStop()

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// serveHTTP exposes /metrics and a /markers snapshot. An empty addr
// disables the listener.
func serveHTTP(addr string, collector *observability.MotionCollector, markers *kb.MarkerStore, log logging.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	mux.Handle("/markers", markersHandler(markers))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "http server exited", logging.Err(err))
		}
	}()
	log.Info(context.Background(), "serving metrics and markers", logging.String("addr", addr))
	return srv
}

type markerView struct {
	ID                string   `json:"id"`
	Lat               float64  `json:"lat"`
	Lng               float64  `json:"lng"`
	Rotation          float64  `json:"rotation"`
	State             string   `json:"state,omitempty"`
	Confidence        float64  `json:"confidence"`
	UncertaintyRadius float64  `json:"uncertaintyRadius"`
	Intent            string   `json:"intent,omitempty"`
	MeanBearing       *float64 `json:"meanBearing,omitempty"`
}

func markersHandler(markers *kb.MarkerStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		list := markers.List()
		out := make([]markerView, 0, len(list))
		for _, m := range list {
			v := markerView{ID: m.ID, Lat: m.Lat, Lng: m.Lng, Rotation: m.Rotation}
			if m.HasEstimate {
				v.State = m.Estimate.State.String()
				v.Confidence = m.Estimate.Confidence
				v.UncertaintyRadius = m.Estimate.Pose.UncertaintyRadius
				v.Intent = m.Estimate.Intent.Action.String()
				v.MeanBearing = m.Estimate.Intent.MeanHeading
			}
			out = append(out, v)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})
}
