package services

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"cinepulse/internal/infrastructure"
	"cinepulse/internal/pipeline"
	"cinepulse/pkg/contracts"
)

// ClientCounter reports connected streaming clients
type ClientCounter interface {
	ClientCount() int
}

// HealthService provides health check functionality
type HealthService struct {
	controller *pipeline.Controller
	clients    ClientCounter
	startTime  time.Time
	logger     *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                       `json:"status"`
	Timestamp time.Time                    `json:"timestamp"`
	Version   string                       `json:"version"`
	Uptime    string                       `json:"uptime"`
	Services  map[string]ServiceHealth     `json:"services,omitempty"`
	Keys      map[string]int               `json:"keys,omitempty"`
	Runtime   *infrastructure.RuntimeStats `json:"runtime,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService creates a new health service. clients may be nil.
func NewHealthService(controller *pipeline.Controller, clients ClientCounter, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		controller: controller,
		clients:    clients,
		startTime:  time.Now(),
		logger:     logger.With(slog.String("component", "health_service")),
	}
}

// LivenessCheck reports that the process is serving
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Uptime:    time.Since(hs.startTime).Round(time.Second).String(),
	}
}

// HealthCheck returns the detailed status: component readiness, keys per
// domain, and a runtime sample
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	stats := infrastructure.ReadRuntimeStats(hs.startTime)
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Uptime:    stats.Uptime.Round(time.Second).String(),
		Services: map[string]ServiceHealth{
			"store":     hs.checkStore(),
			"websocket": hs.checkWebSocket(),
		},
		Keys:    make(map[string]int, len(pipeline.Domains)),
		Runtime: &stats,
	}
	for _, sh := range status.Services {
		if sh.Status != "ready" {
			status.Status = "degraded"
		}
	}
	if hs.controller != nil {
		for _, d := range pipeline.Domains {
			status.Keys[string(d)] = len(hs.controller.Keys(d))
		}
	}

	hs.logger.DebugContext(ctx, "health check completed",
		slog.String("status", status.Status),
		slog.Int("goroutines", stats.Goroutines))
	return status
}

func (hs *HealthService) checkStore() ServiceHealth {
	if hs.controller == nil || hs.controller.Store() == nil {
		return ServiceHealth{Status: "not_ready", Message: "pipeline store not configured"}
	}
	if hs.controller.Store().Closed() {
		return ServiceHealth{Status: "not_ready", Message: "pipeline store closed"}
	}
	return ServiceHealth{Status: "ready", Message: pluralize(hs.controller.InFlight(), "transition") + " in flight"}
}

func (hs *HealthService) checkWebSocket() ServiceHealth {
	if hs.clients == nil {
		return ServiceHealth{Status: "ready", Message: "streaming disabled"}
	}
	return ServiceHealth{Status: "ready", Message: pluralize(hs.clients.ClientCount(), "client") + " connected"}
}

func pluralize(n int, noun string) string {
	s := strconv.Itoa(n) + " " + noun
	if n != 1 {
		s += "s"
	}
	return s
}
