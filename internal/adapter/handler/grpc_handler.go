package handler

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const probeTimeout = 2 * time.Second

// Pinger is a dependency whose reachability is reported by the health service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GRPCHandler publishes dependency health over grpc.health.v1. The overall
// service ("") is SERVING only while every dependency answers.
type GRPCHandler struct {
	health *health.Server
	deps   map[string]Pinger
	log    zerolog.Logger
}

func NewGRPCHandler(deps map[string]Pinger, log zerolog.Logger) *GRPCHandler {
	h := &GRPCHandler{
		health: health.NewServer(),
		deps:   deps,
		log:    log.With().Str("component", "grpc").Logger(),
	}
	h.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return h
}

// NewGRPCServer builds a server with tracing, the health service and reflection.
func NewGRPCServer(h *GRPCHandler) *grpc.Server {
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	grpc_health_v1.RegisterHealthServer(s, h.health)
	reflection.Register(s)
	return s
}

// Probe pings every dependency once and updates the serving status.
func (h *GRPCHandler) Probe(ctx context.Context) {
	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	overall := grpc_health_v1.HealthCheckResponse_SERVING
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := h.deps[name].Ping(pctx)
		cancel()

		status := grpc_health_v1.HealthCheckResponse_SERVING
		if err != nil {
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			overall = status
			h.log.Warn().Err(err).Str("dependency", name).Msg("health probe failed")
		}
		h.health.SetServingStatus(name, status)
	}
	h.health.SetServingStatus("", overall)
}

// Run probes on every tick until ctx is done, then marks everything
// NOT_SERVING.
func (h *GRPCHandler) Run(ctx context.Context, interval time.Duration) {
	h.Probe(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-ticker.C:
			h.Probe(ctx)
		}
	}
}
