// Package settings loads the process settings of the Daedalus CLI and
// worker from a config file, DAEDALUS_* environment variables and .env files.
package settings

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	natsconn "github.com/wehubfusion/Daedalus/internal/nats"
	"github.com/wehubfusion/Daedalus/pkg/runner"
	"github.com/wehubfusion/Daedalus/pkg/scripting"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DAEDALUS"

// Settings is the full process configuration.
type Settings struct {
	// Schema is the metamodel file
	Schema string `mapstructure:"schema"`

	// Definitions is the directory of import definitions served by the worker
	Definitions string `mapstructure:"definitions"`

	Store     StoreSettings     `mapstructure:"store"`
	NATS      NATSSettings      `mapstructure:"nats"`
	Worker    WorkerSettings    `mapstructure:"worker"`
	Azure     AzureSettings     `mapstructure:"azure"`
	Scripting ScriptingSettings `mapstructure:"scripting"`
	Tracing   TracingSettings   `mapstructure:"tracing"`
	Sentry    SentrySettings    `mapstructure:"sentry"`
	Log       LogSettings       `mapstructure:"log"`
}

type StoreSettings struct {
	// DSN is "memory", a SQLite path/URL or a PostgreSQL URL
	DSN string `mapstructure:"dsn"`

	// CacheSize is the number of looked-up entities kept in the LRU; 0 disables it
	CacheSize int `mapstructure:"cache_size"`
}

type NATSSettings struct {
	URL               string `mapstructure:"url"`
	Name              string `mapstructure:"name"`
	Token             string `mapstructure:"token"`
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	RequestStream     string `mapstructure:"request_stream"`
	RequestSubject    string `mapstructure:"request_subject"`
	Consumer          string `mapstructure:"consumer"`
	MaxDeliver        int    `mapstructure:"max_deliver"`
	PublishMaxRetries int    `mapstructure:"publish_max_retries"`
	ReportStream      string `mapstructure:"report_stream"`
	ReportSubject     string `mapstructure:"report_subject"`
}

type WorkerSettings struct {
	BatchSize int `mapstructure:"batch_size"`

	// Workers is the pool size; 0 sizes the pool from the available CPUs
	Workers        int           `mapstructure:"workers"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`

	// BreakerThreshold consecutive redelivered requests pause pulling for
	// BreakerResetTimeout; 0 disables the breaker
	BreakerThreshold    int           `mapstructure:"breaker_threshold"`
	BreakerResetTimeout time.Duration `mapstructure:"breaker_reset_timeout"`
}

type AzureSettings struct {
	ConnectionString string `mapstructure:"connection_string"`
	Container        string `mapstructure:"container"`
}

type ScriptingSettings struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	SecurityLevel string        `mapstructure:"security_level"`
	PoolSize      int           `mapstructure:"pool_size"`
}

type TracingSettings struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Version     string  `mapstructure:"version"`
	Environment string  `mapstructure:"environment"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type SentrySettings struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type LogSettings struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// SetDefaults registers the default of every key. Keys without a default are
// invisible to environment variables.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("schema", "")
	v.SetDefault("definitions", "definitions")

	v.SetDefault("store.dsn", "memory")
	v.SetDefault("store.cache_size", 1024)

	nc := natsconn.DefaultConnectionConfig("nats://127.0.0.1:4222")
	v.SetDefault("nats.url", nc.URL)
	v.SetDefault("nats.name", nc.Name)
	v.SetDefault("nats.token", "")
	v.SetDefault("nats.username", "")
	v.SetDefault("nats.password", "")
	v.SetDefault("nats.request_stream", nc.RequestStream)
	v.SetDefault("nats.request_subject", nc.RequestSubject)
	v.SetDefault("nats.consumer", nc.Consumer)
	v.SetDefault("nats.max_deliver", nc.MaxDeliver)
	v.SetDefault("nats.publish_max_retries", nc.PublishMaxRetries)
	v.SetDefault("nats.report_stream", nc.ReportStream)
	v.SetDefault("nats.report_subject", nc.ReportSubject)

	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.workers", 0)
	v.SetDefault("worker.process_timeout", 5*time.Minute)
	v.SetDefault("worker.breaker_threshold", 10)
	v.SetDefault("worker.breaker_reset_timeout", 30*time.Second)

	v.SetDefault("azure.connection_string", "")
	v.SetDefault("azure.container", "daedalus")

	v.SetDefault("scripting.timeout", time.Second)
	v.SetDefault("scripting.security_level", scripting.SecurityLevelStandard)
	v.SetDefault("scripting.pool_size", 4)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "daedalus")
	v.SetDefault("tracing.version", "dev")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.endpoint", "127.0.0.1:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads settings. configFile is optional. envFiles are loaded into the
// environment first; with none given, a .env file in the working directory
// is loaded when present. Variables already set are never overridden.
func Load(configFile string, envFiles ...string) (*Settings, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return &s, nil
}

// ValidateWorker checks the settings the worker needs.
func (s *Settings) ValidateWorker() error {
	var problems []string
	if s.Schema == "" {
		problems = append(problems, "schema is required")
	}
	if s.NATS.URL == "" {
		problems = append(problems, "nats.url is required")
	}
	if s.Worker.BatchSize <= 0 {
		problems = append(problems, "worker.batch_size must be positive")
	}
	if s.Worker.Workers < 0 {
		problems = append(problems, "worker.workers must not be negative")
	}
	if s.Worker.ProcessTimeout <= 0 {
		problems = append(problems, "worker.process_timeout must be positive")
	}
	if s.Worker.BreakerThreshold < 0 {
		problems = append(problems, "worker.breaker_threshold must not be negative")
	}
	if s.Azure.ConnectionString != "" && s.Azure.Container == "" {
		problems = append(problems, "azure.container is required with a connection string")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid worker settings: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Connection returns the NATS connection configuration.
func (s *Settings) Connection() *natsconn.ConnectionConfig {
	nc := natsconn.DefaultConnectionConfig(s.NATS.URL)
	nc.Name = s.NATS.Name
	nc.Token = s.NATS.Token
	nc.Username = s.NATS.Username
	nc.Password = s.NATS.Password
	nc.RequestStream = s.NATS.RequestStream
	nc.RequestSubject = s.NATS.RequestSubject
	nc.Consumer = s.NATS.Consumer
	nc.MaxDeliver = s.NATS.MaxDeliver
	nc.PublishMaxRetries = s.NATS.PublishMaxRetries
	nc.ReportStream = s.NATS.ReportStream
	nc.ReportSubject = s.NATS.ReportSubject
	return nc
}

// ScriptingOptions returns the sandbox options of user scripts.
func (s *Settings) ScriptingOptions() scripting.Options {
	return scripting.Options{
		Timeout:       s.Scripting.Timeout,
		SecurityLevel: s.Scripting.SecurityLevel,
		PoolSize:      s.Scripting.PoolSize,
	}
}

// TracingConfig returns nil when tracing is disabled.
func (s *Settings) TracingConfig() *runner.TracingConfig {
	if !s.Tracing.Enabled {
		return nil
	}
	return &runner.TracingConfig{
		ServiceName:    s.Tracing.ServiceName,
		ServiceVersion: s.Tracing.Version,
		Environment:    s.Tracing.Environment,
		OTLPEndpoint:   s.Tracing.Endpoint,
		Insecure:       s.Tracing.Insecure,
		SampleRatio:    s.Tracing.SampleRatio,
	}
}

// Logger builds the process logger.
func (s *Settings) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(s.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", s.Log.Level, err)
	}
	cfg := zap.NewProductionConfig()
	if s.Log.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
