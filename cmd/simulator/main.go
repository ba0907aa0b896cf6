// Command simulator drives synthetic, jittered telemetry through the motion
// controller and prints how far each estimate is from ground truth.
//
// With -target it instead publishes the reports to a running motiond.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/fleet-motion/core"
	"github.com/signalsfoundry/fleet-motion/internal/ingest"
	"github.com/signalsfoundry/fleet-motion/internal/logging"
	"github.com/signalsfoundry/fleet-motion/kb"
	"github.com/signalsfoundry/fleet-motion/model"
	"github.com/signalsfoundry/fleet-motion/timectrl"
)

// ISS, epoch 2021-10-02.
const (
	issLine1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issLine2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

func main() {
	duration := flag.Duration("duration", 2*time.Minute, "simulated duration")
	tick := flag.Duration("tick", 100*time.Millisecond, "simulated time per frame")
	pace := flag.Duration("pace", 10*time.Millisecond, "wall time per frame in accelerated mode")
	accelerated := flag.Bool("accelerated", true, "run faster than real time")
	vehicles := flag.Int("vehicles", 3, "number of straight-line vehicles")
	interval := flag.Duration("report-interval", time.Second, "report sampling interval")
	maxDelay := flag.Duration("max-delay", 800*time.Millisecond, "maximum delivery delay")
	dropRate := flag.Float64("drop-rate", 0.1, "probability a report is lost")
	seed := flag.Uint64("seed", 1, "random seed")
	printEvery := flag.Duration("print-every", 10*time.Second, "simulated time between status lines")
	target := flag.String("target", "", "publish to a motiond gRPC address instead of a local controller")
	flag.Parse()

	log := logging.NewFromEnv(logging.Config{Level: "warn"})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Date(2021, 10, 2, 12, 0, 0, 0, time.UTC)
	if !*accelerated {
		start = time.Now().UTC().Truncate(time.Second)
	}
	sources := defaultSources(start, *vehicles)
	f := newFeed(feedConfig{Interval: *interval, MaxDelay: *maxDelay, DropRate: *dropRate}, start, *seed, sources...)

	var pub publisher
	if *target != "" {
		conn, err := grpc.NewClient(*target, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "simulator: dial %s: %v\n", *target, err)
			os.Exit(1)
		}
		defer conn.Close()
		pub = &remotePublisher{client: ingest.NewTelemetryClient(conn)}
	}

	sim := newSimulation(f, sources, pub, log)
	mode := timectrl.RealTime
	if *accelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(nil, *tick, mode)
	tc.Pace = *pace
	tc.SetTime(start)

	done := make(chan struct{})
	var once sync.Once
	nextPrint := start
	tc.AddListener(func(now time.Time) {
		sim.Frame(ctx, now)
		if !now.Before(nextPrint) {
			sim.Print(os.Stdout, now)
			nextPrint = nextPrint.Add(*printEvery)
		}
		if now.Sub(start) >= *duration {
			once.Do(func() { close(done) })
		}
	})

	fmt.Printf("Starting simulation: duration=%s tick=%s mode=%v sources=%d target=%q\n",
		*duration, *tick, mode, len(sources), *target)
	tc.Start()
	select {
	case <-done:
	case <-ctx.Done():
	}
	tc.Stop()
	fmt.Printf("Simulation complete: %d reports delivered, %d dropped.\n", f.sent, f.dropped)
}

func defaultSources(start time.Time, vehicles int) []source {
	out := []source{newOrbitSource("iss", issLine1, issLine2)}
	for i := range vehicles {
		v := &vehicleSource{
			id:       vehicleID(i),
			start:    start,
			lat:      19.4326 + 0.01*float64(i),
			lng:      -99.1332,
			heading:  float64(i*70) + 10,
			speedKmh: 30 + 15*float64(i),
		}
		if i%2 == 1 {
			v.parkAt, v.parkFor = 30*time.Second, 45*time.Second
		}
		out = append(out, v)
	}
	return out
}

// publisher delivers reports somewhere other than the local controller.
type publisher interface {
	Publish(ctx context.Context, r model.PositionReport) error
}

type remotePublisher struct {
	client *ingest.TelemetryClient
}

func (p *remotePublisher) Publish(ctx context.Context, r model.PositionReport) error {
	_, err := p.client.PublishReport(ctx, ingest.ReportToStruct(r))
	return err
}

// simulation wires the feed into a local controller rendering to a marker
// store, or into a remote publisher.
type simulation struct {
	feed       *feed
	sources    map[string]source
	order      []string
	controller *core.MotionController
	markers    *kb.MarkerStore
	remote     publisher
	log        logging.Logger
	now        time.Time
}

func newSimulation(f *feed, sources []source, remote publisher, log logging.Logger) *simulation {
	if log == nil {
		log = logging.Noop()
	}
	s := &simulation{
		feed:    f,
		sources: make(map[string]source, len(sources)),
		markers: kb.NewMarkerStore(),
		remote:  remote,
		log:     log,
	}
	for _, src := range sources {
		s.sources[src.ID()] = src
		s.order = append(s.order, src.ID())
	}
	// The controller is driven by the simulation's own frames, so receive
	// time is simulated time rather than the wall clock.
	s.controller = core.NewMotionController(s.markers,
		core.WithLogger(log),
		core.WithFrameClock(s),
	)
	return s
}

// Now returns the time of the frame being delivered. It implements
// timectrl.FrameClock for the controller.
func (s *simulation) Now() time.Time { return s.now }

// Frame delivers the reports due at now and renders one frame.
func (s *simulation) Frame(ctx context.Context, now time.Time) {
	s.now = now
	for _, r := range s.feed.Due(now) {
		if s.remote == nil {
			if err := s.controller.Update(r); err != nil {
				s.log.Warn(ctx, "report rejected", logging.EntityID(r.ID), logging.Err(err))
			}
			continue
		}
		if err := s.remote.Publish(ctx, r); err != nil {
			s.log.Warn(ctx, "publish failed", logging.EntityID(r.ID), logging.Err(err))
		}
	}
	if s.remote == nil {
		s.controller.Frame(now)
	}
}

// Errors returns each rendered entity's distance from ground truth in metres.
func (s *simulation) Errors(now time.Time) map[string]float64 {
	out := make(map[string]float64)
	for _, m := range s.markers.List() {
		src, ok := s.sources[m.ID]
		if !ok {
			continue
		}
		tr := src.Truth(now)
		out[m.ID] = core.Distance(m.Lat, m.Lng, tr.Lat, tr.Lng)
	}
	return out
}

func (s *simulation) Print(w io.Writer, now time.Time) {
	if s.remote != nil {
		fmt.Fprintf(w, "[%s] delivered=%d dropped=%d\n", now.Format(time.RFC3339), s.feed.sent, s.feed.dropped)
		return
	}
	errs := s.Errors(now)
	for _, id := range s.order {
		m, ok := s.markers.Get(id)
		if !ok || !m.HasEstimate {
			continue
		}
		est := m.Estimate
		fmt.Fprintf(w, "[%s] %-12s %-9s conf=%.2f intent=%-8s (%9.5f, %10.5f) hdg=%5.1f err=%8.1f m ±%.1f m\n",
			now.Format(time.RFC3339), id, est.State, est.Confidence, est.Intent.Action,
			m.Lat, m.Lng, m.Rotation, errs[id], est.Pose.UncertaintyRadius,
		)
	}
}
