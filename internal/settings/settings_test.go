package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load("", writeFile(t, ".env", ""))
	require.NoError(t, err)

	assert.Equal(t, "memory", s.Store.DSN)
	assert.Equal(t, 1024, s.Store.CacheSize)
	assert.Equal(t, "nats://127.0.0.1:4222", s.NATS.URL)
	assert.Equal(t, "IMPORTS", s.NATS.RequestStream)
	assert.Equal(t, 10, s.Worker.BatchSize)
	assert.Equal(t, 5*time.Minute, s.Worker.ProcessTimeout)
	assert.Zero(t, s.Worker.Workers)
	assert.Equal(t, 10, s.Worker.BreakerThreshold)
	assert.Equal(t, 30*time.Second, s.Worker.BreakerResetTimeout)
	assert.Equal(t, time.Second, s.Scripting.Timeout)
	assert.False(t, s.Tracing.Enabled)
	assert.Nil(t, s.TracingConfig())
}

func TestLoadPrecedence(t *testing.T) {
	configFile := writeFile(t, "daedalus.yaml", `
schema: schema.yaml
store:
  dsn: sqlite://imports.db
nats:
  url: nats://file:4222
  report_subject: import.report.uat
worker:
  workers: 8
  process_timeout: 90s
tracing:
  enabled: true
  sample_ratio: 0.25
`)
	envFile := writeFile(t, ".env", "DAEDALUS_AZURE_CONTAINER=from-dotenv\nDAEDALUS_WORKER_BATCH_SIZE=99\n")
	t.Cleanup(func() {
		os.Unsetenv("DAEDALUS_AZURE_CONTAINER")
		os.Unsetenv("DAEDALUS_WORKER_BATCH_SIZE")
	})
	t.Setenv("DAEDALUS_NATS_URL", "nats://env:4222")
	t.Setenv("DAEDALUS_WORKER_BATCH_SIZE", "25")

	s, err := Load(configFile, envFile)
	require.NoError(t, err)

	assert.Equal(t, "schema.yaml", s.Schema)
	assert.Equal(t, "sqlite://imports.db", s.Store.DSN)
	assert.Equal(t, "nats://env:4222", s.NATS.URL, "environment overrides the file")
	assert.Equal(t, "import.report.uat", s.NATS.ReportSubject)
	assert.Equal(t, 8, s.Worker.Workers)
	assert.Equal(t, 90*time.Second, s.Worker.ProcessTimeout)
	assert.Equal(t, 25, s.Worker.BatchSize, ".env never overrides the environment")
	assert.Equal(t, "from-dotenv", s.Azure.Container)

	tracing := s.TracingConfig()
	require.NotNil(t, tracing)
	assert.Equal(t, 0.25, tracing.SampleRatio)
	assert.Equal(t, "daedalus", tracing.ServiceName)

	conn := s.Connection()
	assert.Equal(t, "nats://env:4222", conn.URL)
	assert.Equal(t, "import.report.uat", conn.ServiceConfig().ReportSubject)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), writeFile(t, ".env", ""))
	assert.Error(t, err)

	_, err = Load("", filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidateWorker(t *testing.T) {
	s, err := Load("", writeFile(t, ".env", ""))
	require.NoError(t, err)

	err = s.ValidateWorker()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema is required")

	s.Schema = "schema.yaml"
	assert.NoError(t, s.ValidateWorker())

	s.Worker.Workers = -1
	s.Azure.ConnectionString = "AccountName=a;AccountKey=b"
	s.Azure.Container = ""
	err = s.ValidateWorker()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker.workers must not be negative")
	assert.Contains(t, err.Error(), "azure.container is required")
}

func TestLogger(t *testing.T) {
	s := &Settings{Log: LogSettings{Level: "debug", Development: true}}
	logger, err := s.Logger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	s.Log.Level = "chatty"
	_, err = s.Logger()
	assert.Error(t, err)
}
