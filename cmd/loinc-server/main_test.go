package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/loinc-coder/internal/config"
	"github.com/ehr/loinc-coder/internal/domain/coding"
	"github.com/ehr/loinc-coder/internal/platform/db"
)

const seedSQL = `
INSERT INTO loinc (loinc_num, long_common_name, component, property, time_aspct, "system", scale_typ, method_typ, status, common_test_rank, common_order_rank, common_si_test_rank) VALUES
  ('2345-7', 'Glucose [Mass/volume] in Serum or Plasma', 'Glucose', 'MCnc', 'Pt', 'Ser/Plas', 'Qn', '', 'ACTIVE', 1, 1, 1),
  ('2339-0', 'Glucose [Mass/volume] in Blood',           'Glucose', 'MCnc', 'Pt', 'Bld',      'Qn', '', 'ACTIVE', 2, 1, 1);

INSERT INTO unit_property_scale_map (example_units, property, scale_typ, is_active) VALUES
  ('mg/dL', 'MCnc', 'Qn', 1);
`

const glucosePayload = `{
  "content": "glucose 105 mg/dL",
  "entities": [
    {"id": 0, "textSpan": [{"begin": 0, "end": 7, "text": "glucose"}], "type": "LABORATORY_DATA",
     "metadata": {"normalization": [], "labData": {"method": [], "system": [], "unit": [2], "value": [1]}}}
  ],
  "contextTokens": [
    {"id": 1, "begin": 8, "end": 11, "text": "105", "type": "NumberToken"},
    {"id": 2, "begin": 12, "end": 17, "text": "mg/dL", "type": "UnitToken"}
  ],
  "sentences": [{"id": 0, "begin": 0, "end": 17}]
}`

func testConfig() *config.Config {
	return &config.Config{
		Env:                "test",
		DBDriver:           config.DriverSQLite,
		DatabaseURL:        db.MemoryDSN,
		LabCacheMaxEntries: 100,
		BodyLimit:          "1M",
		RequestTimeout:     5 * time.Second,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	ctx := context.Background()

	b, err := openBackend(ctx, cfg)
	require.NoError(t, err)
	_, err = b.migrator.Up(ctx)
	require.NoError(t, err)
	sqlDB := b.pinger.(db.SQLPinger).DB
	_, err = sqlDB.ExecContext(ctx, seedSQL)
	require.NoError(t, err)

	a, err := assembleApp(ctx, cfg, zerolog.Nop(), b)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestServer_Health(t *testing.T) {
	e := newServer(newTestApp(t, testConfig()))

	for _, path := range []string{"/health", "/health/db"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServer_ResolveDocument(t *testing.T) {
	a := newTestApp(t, testConfig())
	assert.Equal(t, 1, a.rc.Index.Stats().Units)
	e := newServer(a)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/loinc/resolve", strings.NewReader(glucosePayload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var res coding.DocumentResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Result, 1)
	assert.Equal(t, "2345-7", res.Result[0].Code)
	assert.Equal(t, "glucose mg/dL", res.Result[0].Text)
}

func TestServer_LookupAndMetrics(t *testing.T) {
	e := newServer(newTestApp(t, testConfig()))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/loinc/2339-0", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Glucose [Mass/volume] in Blood")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `loinc_http_requests_total{method="GET",path="/api/v1/loinc/:code",status="200"} 1`)
}

func TestServer_TextEndpointWithoutNER(t *testing.T) {
	e := newServer(newTestApp(t, testConfig()))

	req := httptest.NewRequest(http.MethodPost, "/loinc_output", strings.NewReader(`{"content": "glucose"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_BodyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.BodyLimit = "64"
	e := newServer(newTestApp(t, cfg))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/loinc/resolve", bytes.NewReader([]byte(glucosePayload)))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAssembleApp_InvalidMethodCUIs(t *testing.T) {
	cfg := testConfig()
	cfg.RadiologyMethodCUIs = "C0040405,not-a-cui"

	b, err := openBackend(context.Background(), cfg)
	require.NoError(t, err)
	_, err = assembleApp(context.Background(), cfg, zerolog.Nop(), b)
	assert.ErrorContains(t, err, "RADIOLOGY_METHOD_CUIS")
}

func TestOpenBackend_UnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.DBDriver = "mysql"
	_, err := openBackend(context.Background(), cfg)
	assert.Error(t, err)
}

// seedDatabaseFile builds a migrated, seeded SQLite reference store on disk
// and points the environment at it.
func seedDatabaseFile(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loinc.db")
	cfg := testConfig()
	cfg.DatabaseURL = path

	ctx := context.Background()
	b, err := openBackend(ctx, cfg)
	require.NoError(t, err)
	_, err = b.migrator.Up(ctx)
	require.NoError(t, err)
	_, err = b.pinger.(db.SQLPinger).DB.ExecContext(ctx, seedSQL)
	require.NoError(t, err)
	require.NoError(t, b.store.Close())

	t.Setenv("DATABASE_URL", path)
	t.Setenv("DB_DRIVER", config.DriverSQLite)
	t.Setenv("ENV", "test")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_URL", "")
	t.Setenv("NER_ENDPOINT_URL", "")
}

func TestResolveCommand_StdoutIsOnlyJSON(t *testing.T) {
	seedDatabaseFile(t)

	var stdout, stderr bytes.Buffer
	cmd := resolveCmd()
	cmd.SetIn(strings.NewReader(glucosePayload))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--input", "-"})
	require.NoError(t, cmd.Execute())

	dec := json.NewDecoder(&stdout)
	var res coding.DocumentResult
	require.NoError(t, dec.Decode(&res), stdout.String())
	assert.False(t, dec.More(), "nothing but the result on stdout")
	require.Len(t, res.Result, 1)
	assert.Equal(t, "2345-7", res.Result[0].Code)

	logs := stderr.String()
	assert.Equal(t, 1, strings.Count(logs, `"message":"reference index loaded"`), logs)
	assert.Contains(t, logs, `"message":"document resolved"`)
}

func TestResolveCommand_InputFile(t *testing.T) {
	seedDatabaseFile(t)
	input := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(input, []byte(glucosePayload), 0o600))

	var stdout bytes.Buffer
	cmd := resolveCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--input", input})
	require.NoError(t, cmd.Execute())

	var res coding.DocumentResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	require.Len(t, res.Result, 1)
}

func TestIndexStatsCommand(t *testing.T) {
	seedDatabaseFile(t)

	var stdout, stderr bytes.Buffer
	cmd := indexCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"stats"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, stdout.String(), "units:    1")
	assert.NotContains(t, stdout.String(), "reference index loaded")
}

func TestMigrateCommand_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range migrateCmd().Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["up"])
	assert.True(t, names["status"])
}
