package db

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	Driver          string `json:"driver"`
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// Pinger is a database handle whose health can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
	Stats() *PoolStats
}

// PGPinger reports on a pgx pool.
type PGPinger struct{ Pool *pgxpool.Pool }

func (p PGPinger) Ping(ctx context.Context) error { return p.Pool.Ping(ctx) }

func (p PGPinger) Stats() *PoolStats {
	stat := p.Pool.Stat()
	return &PoolStats{
		Driver:          "postgres",
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// SQLPinger reports on a database/sql handle.
type SQLPinger struct{ DB *sql.DB }

func (p SQLPinger) Ping(ctx context.Context) error { return p.DB.PingContext(ctx) }

func (p SQLPinger) Stats() *PoolStats {
	stat := p.DB.Stats()
	return &PoolStats{
		Driver:          "sqlite",
		TotalConns:      int32(stat.OpenConnections),
		IdleConns:       int32(stat.Idle),
		AcquiredConns:   int32(stat.InUse),
		MaxConns:        int32(stat.MaxOpenConnections),
		AcquireCount:    stat.WaitCount,
		AcquireDuration: stat.WaitDuration.String(),
		Healthy:         true,
	}
}

// HealthHandler returns a handler for the database health check endpoint.
func HealthHandler(p Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := p.Ping(ctx)
		stats := p.Stats()

		if err != nil {
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   stats,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   stats,
		})
	}
}
