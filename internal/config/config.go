package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	// dotEnvFile seeds unset variables outside production
	dotEnvFile = ".env"
	// maxWindowDays matches the largest window the API accepts
	maxWindowDays = 3650
)

// Field names map to variables as PREFIX_SPLIT_WORDS, e.g. ClickHouse.MaxOpenConns
// is CLICKHOUSE_MAX_OPEN_CONNS. Explicit envconfig tags are avoided on nested
// fields because envconfig falls back to the bare tag (USER, HOST, PORT).
type Config struct {
	Service     Service
	SQS         SQS
	ClickHouse  ClickHouse
	Consumer    Consumer
	Metrics     Metrics
	Redis       Redis
	SourcesFile string `split_words:"true" default:"sources.yaml"`
}

type Service struct {
	Environment string `required:"true"`
	APIPort     string `split_words:"true" default:"8080"`
	Host        string `default:"localhost:8080"`
	LogLevel    string `split_words:"true" default:""`
}

type SQS struct {
	Endpoint string
	QueueURL string `split_words:"true" required:"true"`
	Region   string `required:"true"`
}

type ClickHouse struct {
	Host               string `required:"true"`
	Port               string `required:"true"`
	DB                 string `required:"true"`
	User               string `default:""`
	Password           string `default:""`
	UseTLS             bool   `split_words:"true" default:"false"`
	MaxOpenConns       int    `split_words:"true" default:"5"`
	MaxIdleConns       int    `split_words:"true" default:"2"`
	ConnMaxLifetimeSec int    `split_words:"true" default:"3600"`
}

type Consumer struct {
	ReceiveMaxMessages int32  `split_words:"true" default:"10"`
	ReceiveWaitSec     int32  `split_words:"true" default:"20"`
	BufferSize         int    `split_words:"true" default:"100"`
	BatchSizeMax       int    `split_words:"true" default:"2000"`
	BatchTimeoutSec    int    `split_words:"true" default:"10"`
	RetryVisibilitySec int32  `split_words:"true" default:"5"`
	HealthCheckPort    string `split_words:"true" default:"8081"`
}

// Metrics configures aggregation behaviour
type Metrics struct {
	WindowDays           int           `split_words:"true" default:"30"`
	UnknownOutcomePolicy string        `split_words:"true" default:"exclude"`
	FetchTimeout         time.Duration `split_words:"true" default:"30s"`
	RefreshInterval      time.Duration `split_words:"true" default:"5m"`
	ResultTTL            time.Duration `split_words:"true" default:"15m"`
}

type Redis struct {
	Enabled bool   `default:"false"`
	URL     string `default:"redis://localhost:6379/0"`
	Prefix  string `default:"dora:result:"`
}

func Load() (*Config, error) {
	if os.Getenv("SERVICE_ENVIRONMENT") != "production" {
		_ = godotenv.Load(dotEnvFile)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.Metrics.WindowDays < 1 || cfg.Metrics.WindowDays > maxWindowDays {
		return nil, fmt.Errorf("METRICS_WINDOW_DAYS must be between 1 and %d, got %d", maxWindowDays, cfg.Metrics.WindowDays)
	}
	if cfg.Metrics.RefreshInterval <= 0 {
		return nil, fmt.Errorf("METRICS_REFRESH_INTERVAL must be positive")
	}

	return &cfg, nil
}
