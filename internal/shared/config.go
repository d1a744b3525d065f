package shared

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"prod"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR"`

	MySQLDSN             string        `env:"MYSQL_DSN,required,notEmpty"`
	MySQLMaxOpenConns    int           `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"20"`
	MySQLMaxIdleConns    int           `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"10"`
	MySQLConnMaxLifetime time.Duration `env:"MYSQL_CONN_MAX_LIFETIME" envDefault:"5m"`
	MigrateOnStart       bool          `env:"MIGRATE_ON_START" envDefault:"false"`

	RedisAddr string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string        `env:"REDIS_PASSWORD"`
	RedisDB   int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL  time.Duration `env:"CACHE_TTL" envDefault:"5m"`

	AWSRegion         string        `env:"AWS_REGION" envDefault:"ap-northeast-2"`
	ReceiptBucket     string        `env:"RECEIPT_BUCKET"`
	ImageMaxBytes     int64         `env:"IMAGE_MAX_BYTES" envDefault:"10485760"`
	ImageFetchTimeout time.Duration `env:"IMAGE_FETCH_TIMEOUT" envDefault:"10s"`
	// ImageAllowedHosts limits http(s) receipt URLs to these hosts. Empty
	// allows any public host.
	ImageAllowedHosts []string `env:"IMAGE_ALLOWED_HOSTS" envSeparator:","`

	GCPCredentials string `env:"GCP_CREDENTIALS"`
	DetectRPS      int    `env:"DETECT_RPS" envDefault:"5"`

	ReceiptMinConfidence float64 `env:"RECEIPT_MIN_CONFIDENCE" envDefault:"80"`
	ReceiptKeyword       string  `env:"RECEIPT_KEYWORD" envDefault:"receipt"`
	// AddressLineKeywords narrows the OCR lines compared against the clinic
	// address. Empty compares every line.
	AddressLineKeywords []string `env:"ADDRESS_LINE_KEYWORDS" envSeparator:","`

	ReconcileWorkers int `env:"RECONCILE_WORKERS" envDefault:"8"`
}

// Load reads an optional .env file and then the process environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return Parse()
}

// Parse reads configuration from the process environment only.
func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if c.ImageMaxBytes <= 0 {
		return Config{}, fmt.Errorf("IMAGE_MAX_BYTES must be positive")
	}
	if c.DetectRPS <= 0 {
		c.DetectRPS = 5
	}
	if c.ReconcileWorkers <= 0 {
		c.ReconcileWorkers = 8
	}
	if c.GCPCredentials == "" {
		log.Warn().Msg("GCP_CREDENTIALS is empty; falling back to application default credentials")
	}
	return c, nil
}
