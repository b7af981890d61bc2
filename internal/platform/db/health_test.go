package db

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_SQLite(t *testing.T) {
	sqlDB, err := OpenSQLite(context.Background(), MemoryDSN)
	require.NoError(t, err)
	defer sqlDB.Close()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, HealthHandler(SQLPinger{DB: sqlDB})(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string    `json:"status"`
		Pool   PoolStats `json:"pool"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "sqlite", body.Pool.Driver)
	assert.Equal(t, int32(1), body.Pool.MaxConns)
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	sqlDB, err := OpenSQLite(context.Background(), MemoryDSN)
	require.NoError(t, err)
	sqlDB.Close()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, HealthHandler(SQLPinger{DB: sqlDB})(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unhealthy"`)
}

func TestPoolStats_JSONTags(t *testing.T) {
	data, err := json.Marshal(&PoolStats{TotalConns: 3, MaxConns: 10, Healthy: true})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total_conns":3`)
	assert.Contains(t, string(data), `"max_conns":10`)
	assert.Contains(t, string(data), `"healthy":true`)
}
