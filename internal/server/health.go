package server

import (
	"context"
	"time"

	comms "github.com/nats-io/nats.go"
)

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthReport is the /health response body. Checks only lists configured dependencies.
type HealthReport struct {
	Status    string          `json:"status"`
	Checks    map[string]bool `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

// HealthChecker reports dependency health.
type HealthChecker interface {
	Health(ctx context.Context) *HealthReport
}

// Pinger is satisfied by the subscription repository.
type Pinger interface {
	Ping(ctx context.Context) error
}

// dependencyHealth checks the database and the COMMS connection when configured.
type dependencyHealth struct {
	db Pinger
	nc *comms.Conn
}

func (h *dependencyHealth) Health(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Status:    StatusHealthy,
		Checks:    map[string]bool{},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.db != nil {
		report.Checks["database"] = h.db.Ping(ctx) == nil
	}
	if h.nc != nil {
		report.Checks["comms"] = h.nc.IsConnected()
	}
	for _, ok := range report.Checks {
		if !ok {
			report.Status = StatusUnhealthy
		}
	}
	return report
}
