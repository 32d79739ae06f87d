package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"evoloop/internal/events"
	"evoloop/internal/fitness"
	"evoloop/internal/health"
	"evoloop/internal/heartbeat"
	"evoloop/internal/lifecycle"
	"evoloop/internal/mutation"
	"evoloop/internal/persist"
	"evoloop/internal/profile"
)

const healthService = "evoloop"

// #region config

// pipelineConfig is the JSON file pointed at by EVOLOOP_PIPELINE. It carries
// the parameters shared by every profile: significance threshold, mutation
// rules, and fitness weights.
type pipelineConfig struct {
	GlobalThreshold float64            `json:"global_threshold"`
	Rules           []mutation.Rule    `json:"rules"`
	Weights         map[string]float64 `json:"weights"`
}

func loadPipelineConfig(path string) (pipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipelineConfig{}, fmt.Errorf("read pipeline config %s: %w", path, err)
	}
	var cfg pipelineConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return pipelineConfig{}, fmt.Errorf("parse pipeline config %s: %w", path, err)
	}
	return cfg, nil
}

// #endregion config

// #region main

func main() {
	// .env is optional; real environment always wins.
	_ = godotenv.Load()

	dbPath := envOr("EVOLOOP_DB", "evoloop.db")
	pipelinePath := envOr("EVOLOOP_PIPELINE", "pipeline.json")
	grpcAddr := envOr("EVOLOOP_GRPC_ADDR", ":50051")
	metricsAddr := envOr("EVOLOOP_METRICS_ADDR", ":9090")
	period := envDurationOr("EVOLOOP_PERIOD", 10*time.Millisecond)
	retention := envIntOr("EVOLOOP_HISTORY_RETENTION", profile.DefaultRetention)

	pipeline, err := loadPipelineConfig(pipelinePath)
	if err != nil {
		log.Fatalf("[MAIN] %v", err)
	}

	store, err := persist.NewStore(dbPath)
	if err != nil {
		log.Fatalf("[MAIN] open store: %v", err)
	}
	defer store.Close()

	registry := profile.NewRegistry(retention)

	evaluator, err := fitness.NewEvaluator(pipeline.Weights)
	if err != nil {
		log.Fatalf("[MAIN] fitness weights: %v", err)
	}

	promReg := prometheus.NewRegistry()
	metrics := health.NewMetrics(promReg)

	schedCfg := heartbeat.DefaultConfig()
	schedCfg.Period = period
	schedCfg.GlobalThreshold = pipeline.GlobalThreshold
	schedCfg.Rules = mutation.RuleSet(pipeline.Rules)

	sched, err := heartbeat.New(schedCfg, registry, evaluator, events.LogSink{}, metrics, lifecycle.FlushAll(store, registry))
	if err != nil {
		log.Fatalf("[MAIN] scheduler: %v", err)
	}

	mgr := lifecycle.NewManager(lifecycle.DefaultConfig(), store, registry, sched)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mgr.Startup(ctx); err != nil {
		log.Fatalf("[MAIN] startup: %v", err)
	}
	log.Printf("[MAIN] running: db=%s period=%s profiles=%d grpc=%s metrics=%s",
		dbPath, period, registry.Len(), grpcAddr, metricsAddr)

	healthServer := grpchealth.NewServer()
	healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_SERVING)
	grpcServer := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Fatalf("[MAIN] listen %s: %v", grpcAddr, err)
	}
	go func() {
		if serveErr := grpcServer.Serve(lis); serveErr != nil {
			log.Printf("[MAIN] grpc serve: %v", serveErr)
		}
	}()

	reporter := health.NewReporter(sched, registry)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if encErr := json.NewEncoder(w).Encode(reporter.Report()); encErr != nil {
			log.Printf("[MAIN] healthz encode: %v", encErr)
		}
	})
	httpServer := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			log.Printf("[MAIN] metrics serve: %v", serveErr)
		}
	}()

	<-ctx.Done()
	log.Printf("[MAIN] signal received, shutting down")
	healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		log.Printf("[MAIN] shutdown: %v", err)
	}
	grpcServer.GracefulStop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[MAIN] metrics shutdown: %v", err)
	}
	log.Printf("[MAIN] stopped")
}

// #endregion main

// #region helpers

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("[MAIN] %s: %v", key, err)
	}
	return d
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("[MAIN] %s: %v", key, err)
	}
	return n
}

// #endregion helpers
