// Command raygrid runs the ray-in-a-grid simulation and serves it to viewers
// over WebSocket and gRPC.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"raygrid/internal/auth"
	"raygrid/internal/camera"
	"raygrid/internal/config"
	"raygrid/internal/events"
	grpcapi "raygrid/internal/grpc"
	"raygrid/internal/httpapi"
	"raygrid/internal/logging"
	"raygrid/internal/networking"
	"raygrid/internal/particle"
	"raygrid/internal/random"
	"raygrid/internal/replay"
	"raygrid/internal/scene"
	"raygrid/internal/simulation"
	"raygrid/internal/viewer"
)

const (
	shutdownTimeout   = 5 * time.Second
	retentionInterval = 10 * time.Minute
	keyMinInterval    = 10 * time.Millisecond
	steeringLeeway    = 2 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("raygrid exited with error", logging.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	//1.- Build the static world; a bad scene file is fatal.
	world := scene.Default()
	if cfg.ScenePath != "" {
		loaded, err := scene.ReadFile(cfg.ScenePath)
		if err != nil {
			return fmt.Errorf("scene: %w", err)
		}
		world = loaded
	}
	static := world.Static()

	//2.- Seed once for the whole process; zero means the clock picked it.
	source := random.NewProcessSource(cfg.Seed)
	logger.Info("simulation seeded",
		logging.Int64("seed", int64(source.Seed())),
		logging.Bool("clock_seeded", cfg.Seed == 0),
		logging.Int("obstacles", world.Obstacles.Len()),
		logging.Float64("half_size", world.Bounds.HalfSize()),
	)

	ray, err := particle.New(particle.DefaultZenith, particle.DefaultAzimuth, cfg.Speed)
	if err != nil {
		return fmt.Errorf("particle: %w", err)
	}
	flights := simulation.NewFlightTracker()
	stepper := simulation.NewStepper(ray, world.Obstacles, world.Bounds, source,
		simulation.WithLogger(logger.With(logging.String("component", "simulation"))),
		simulation.WithObserver(flights))
	orbit := camera.NewOrbit()
	input := camera.NewInput()

	//3.- Outbound surfaces: viewer hub, in-process stream for gRPC, replay recorder.
	var steering viewer.Authenticator
	if cfg.SteeringSecret != "" {
		tokens, err := auth.NewSteeringTokens(cfg.SteeringSecret, steeringLeeway)
		if err != nil {
			return fmt.Errorf("steering: %w", err)
		}
		steering = tokens
		logger.Info("camera steering restricted to token holders")
	}
	delivery := networking.NewDeliveryMetrics()
	gate := viewer.NewKeyGate(viewer.GateConfig{MinInterval: keyMinInterval}, nil)
	budget := networking.NewFrameBudget(networking.DefaultViewerBytesPerSecond, nil)
	hub, err := viewer.NewHub(viewer.Options{
		Logger:         logger.With(logging.String("component", "viewer")),
		AllowedOrigins: cfg.AllowedOrigins,
		MaxClients:     cfg.MaxClients,
		PingInterval:   cfg.PingInterval,
		Static:         static,
		Input:          input,
		Gate:           gate,
		Budget:         budget,
		Metrics:        delivery,
		Steering:       steering,
	})
	if err != nil {
		return fmt.Errorf("viewer hub: %w", err)
	}
	defer hub.Close()
	stream := events.NewStream(events.Config{})

	var recorder *replay.Recorder
	var cleaner *replay.Cleaner
	if cfg.ReplayDir != "" {
		recorder, err = replay.NewRecorder(replay.RecorderConfig{
			Dir:       cfg.ReplayDir,
			SessionID: "raygrid",
			TickHz:    cfg.TickHz,
			Seed:      source.Seed(),
			Scene: replay.SceneParameters{
				CellCount: world.Bounds.CellCount,
				CellSize:  world.Bounds.CellSize,
				HalfSize:  world.Bounds.HalfSize(),
				Obstacles: world.Obstacles.Len(),
				Speed:     cfg.Speed,
				TickHz:    cfg.TickHz,
				ScenePath: cfg.ScenePath,
			},
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Warn("replay close failed", logging.Error(err))
			}
		}()
		cleaner = replay.NewCleaner(cfg.ReplayDir,
			replay.RetentionPolicy{MaxBundles: cfg.ReplayMaxBundles, MaxAge: cfg.ReplayMaxAge},
			func() string { return recorder.Stats().Bundle },
			logger.With(logging.String("component", "replay_retention")))
		go cleaner.Run(ctx, retentionInterval)
	}

	status := &hostStatus{clients: hub}
	monitor := simulation.NewTickMonitor(time.Duration(float64(time.Second) / cfg.TickHz))

	//4.- Operational HTTP surface shares the listener with the viewer socket.
	handlerOpts := httpapi.Options{
		Logger:      logger.With(logging.String("component", "httpapi")),
		Readiness:   status,
		Stats:       hub.Stats,
		Simulation:  stepper.Counters,
		Ticks:       monitor,
		Flights:     flights.Snapshot,
		KeyDrops:    gate.Drops,
		Delivery:    delivery,
		Budget:      budget,
		Stream:      stream,
		Scene:       static,
		AdminToken:  cfg.AdminToken,
		RateLimiter: httpapi.NewDumpLimiter(cfg.ReplayDumpWindow, cfg.ReplayDumpBurst, nil),
	}
	if recorder != nil {
		handlerOpts.Replay = httpapi.ReplayDumperFunc(recorder.Roll)
		handlerOpts.ReplayStats = recorder.Stats
		handlerOpts.Retention = cleaner.Stats
	}
	handlers, err := httpapi.NewHandlerSet(handlerOpts)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	handlers.Register(mux)
	server := &http.Server{
		Addr:              cfg.Address,
		Handler:           logging.HTTPTraceMiddleware(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	listener, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Address, err)
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			status.fail(fmt.Errorf("http server: %w", err))
			logger.Error("http server stopped", logging.Error(err))
		}
	}()
	logger.Info("viewer hub listening", logging.String("url", listenerURL("ws", cfg.Address, "/ws")))

	//5.- gRPC is optional; a failure after startup only flips readiness.
	var grpcServer *grpc.Server
	if cfg.GRPCAddress != "" {
		grpcListener, err := net.Listen("tcp", cfg.GRPCAddress)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.GRPCAddress, err)
		}
		grpcLogger := logger.With(logging.String("component", "grpc"))
		grpcServer = grpc.NewServer(grpcapi.ServerOptions(cfg.GRPCSecret, grpcLogger)...)
		grpcapi.Register(grpcServer, grpcapi.NewService(stream, grpcapi.WithLogger(grpcLogger)))
		go func() {
			if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				status.fail(fmt.Errorf("grpc server: %w", err))
				grpcLogger.Error("grpc server stopped", logging.Error(err))
			}
		}()
		logger.Info("frame stream listening",
			logging.String("url", listenerURL("grpc", cfg.GRPCAddress, "")),
			logging.Bool("shared_secret", cfg.GRPCSecret != ""))
	}

	//6.- The loop goroutine owns the particle and the orbit from here on.
	var sinks []frameSink
	sinks = append(sinks, hub, stream)
	if recorder != nil {
		sinks = append(sinks, recorder)
	}
	pipeline := newTickPipeline(stepper, orbit, input, sinks...)
	loop := simulation.NewLoop(cfg.TickHz, func(step time.Duration) { pipeline.Step(step) }, monitor)
	loop.Start(ctx)
	logger.Info("simulation running", logging.Float64("tick_hz", cfg.TickHz), logging.Float64("speed", cfg.Speed))

	<-ctx.Done()
	logger.Info("shutting down")

	//7.- Stop producing frames before tearing down the consumers.
	loop.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
	}
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", logging.Error(err))
	}
	counters := stepper.Counters()
	logger.Info("simulation stopped",
		logging.Int64("ticks", int64(counters.Ticks)),
		logging.Int64("obstacle_hits", int64(counters.ObstacleHits)),
		logging.Int64("boundary_exits", int64(counters.BoundaryExits)),
	)
	return nil
}
