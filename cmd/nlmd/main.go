// cmd/nlmd/main.go
package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	http_api "distributed-nlm/internal/api/http"
	"distributed-nlm/internal/cluster"
	"distributed-nlm/internal/config"
	"distributed-nlm/internal/domain"
	"distributed-nlm/internal/infra/codec"
	"distributed-nlm/internal/infra/etcd"
	"distributed-nlm/internal/infra/memory"
	"distributed-nlm/internal/nlm"
	"distributed-nlm/internal/rpc"
	"distributed-nlm/internal/scheduler"
	"distributed-nlm/internal/tracing"
	"distributed-nlm/internal/usecase"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// corsMiddleware wraps an http.Handler with CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding")

		// Handle pre-flight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// backend is the coordination service selected by configuration.
type backend struct {
	coord  domain.Coordination
	leader domain.LeaderElectionManager
	peers  domain.PeerDirectory
	// start runs background membership work; stop undoes it.
	start func(ctx context.Context) error
	stop  func()
}

func newEtcdBackend(cfg *config.Config, nodeID string, logger *slog.Logger) (*backend, error) {
	etcdClient, err := etcd.NewClient(etcd.ClientConfig{
		Endpoints:   cfg.EtcdEndpoints,
		DialTimeout: cfg.EtcdTimeout,
		Username:    cfg.EtcdUsername,
		Password:    cfg.EtcdPassword,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("connected to etcd", "endpoints", cfg.EtcdEndpoints)

	registry := cluster.NewRegistry(etcdClient, cfg.RootPath, logger)
	discovery := cluster.NewDiscovery(etcdClient, cfg.RootPath, logger)

	return &backend{
		coord:  etcd.NewEtcdCoordination(etcdClient, int(cfg.MutexSessionTTL.Seconds()), logger),
		leader: etcd.NewEtcdLeaderElectionManager(etcdClient, path.Join(cfg.RootPath, "leader"), nodeID, cfg.LeaderElectionTTL, logger),
		peers:  discovery,
		start: func(ctx context.Context) error {
			go discovery.Watch(ctx)
			regCtx, regCancel := context.WithTimeout(ctx, cfg.EtcdTimeout)
			defer regCancel()
			return registry.Register(regCtx, nodeID, cfg.Advertised(), int64(cfg.LeaderElectionTTL.Seconds()))
		},
		stop: func() {
			deregCtx, deregCancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer deregCancel()
			if err := registry.Deregister(deregCtx); err != nil {
				logger.Error("failed to deregister server", "error", err)
			}
			_ = etcdClient.Close()
		},
	}, nil
}

func newMemoryBackend(cfg *config.Config, nodeID string) *backend {
	return &backend{
		coord:  memory.NewCoordination(),
		leader: memory.NewLeaderElection(),
		peers:  memory.StaticPeers{{ID: nodeID, Addr: cfg.Advertised()}},
		start:  func(context.Context) error { return nil },
		stop:   func() {},
	}
}

func main() {
	// 1. Load configuration, then initialize logger and tracer
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = uuid.New().String()
	}
	logger = logger.With("node_id", nodeID)

	tracerShutdown, err := tracing.InitTracer("nlmd", nodeID, cfg.TracingExporter)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", "error", err)
		}
	}()

	logger.Info("starting nlmd", "backend", cfg.CoordinationBackend, "root", cfg.RootPath, "codec", cfg.RecordCodec)

	// 2. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel, logger)

	// 3. Coordination backend
	var be *backend
	switch cfg.CoordinationBackend {
	case "memory":
		be = newMemoryBackend(cfg, nodeID)
	default:
		be, err = newEtcdBackend(cfg, nodeID, logger)
		if err != nil {
			log.Fatalf("Failed to create etcd client: %v", err)
		}
	}
	defer be.stop()

	// 4. Instantiate components
	recordCodec, err := codec.New(cfg.RecordCodec)
	if err != nil {
		log.Fatalf("Failed to select record codec: %v", err)
	}
	coordinator := nlm.NewCoordinator(be.coord, recordCodec, logger, nlm.Options{
		Root:           cfg.RootPath,
		ReleaseTimeout: cfg.ReleaseTimeout,
	})
	initCtx, initCancel := context.WithTimeout(rootCtx, cfg.EtcdTimeout)
	err = coordinator.Init(initCtx)
	initCancel()
	if err != nil {
		log.Fatalf("Failed to initialize lock namespace: %v", err)
	}

	lockService := usecase.NewLockService(coordinator, logger)
	census := usecase.NewCensusService(coordinator, logger)
	cronScheduler := scheduler.NewCronScheduler(scheduler.DefaultTaskTimeout, logger)
	schedulerService := usecase.NewSchedularService(be.leader, cronScheduler, nodeID, logger, census.Task(cfg.CensusSchedule))

	// 5. gRPC server
	lis, err := net.Listen("tcp", cfg.GrpcListenAddr)
	if err != nil {
		log.Fatalf("Failed to listen for gRPC: %v", err)
	}
	grpcServer := rpc.NewGRPCServer(rpc.NewServer(lockService, logger))
	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GrpcListenAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("gRPC server failed: %v", err)
		}
	}()

	// 6. Register in the cluster once the gRPC address is reachable
	if err := be.start(rootCtx); err != nil {
		log.Fatalf("Failed to register server: %v", err)
	}

	// 7. Leader-only census
	go func() {
		if err := schedulerService.Start(rootCtx); err != nil && rootCtx.Err() == nil {
			logger.Error("scheduler service stopped with error", "error", err)
		}
	}()

	// 8. Admin HTTP API and metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	http_api.NewLockHandler(lockService, be.peers, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.HttpListenAddr,
		Handler:           corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP API server listening", "addr", cfg.HttpListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 9. Block until shutdown
	<-rootCtx.Done()
	logger.Info("shutting down nlmd gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	grpcServer.GracefulStop()

	logger.Info("nlmd shut down")
}

func setupGracefulShutdown(cancel context.CancelFunc, logger *slog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, initiating graceful shutdown", "signal", sig.String())
		cancel()
	}()
}
