package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
)

type Config struct {
	endpoint            string
	marketplaceEndpoint string
	fulfillmentEndpoint string
	dsn                 string
	skuMapPath          string
	webhookURL          string
	natsURL             string
	logLevel            string
	env                 string
	authSecretKey       string

	orderPollInterval     time.Duration
	trackingSyncInterval  time.Duration
	inventorySyncInterval time.Duration
	stalenessThreshold    time.Duration

	marketplaceRPS float64
	fulfillmentRPS float64

	workers          int
	queueCapacity    int
	pageSize         int
	maxRetryAttempts int
	retryDelay       time.Duration
	maxHoldCycles    int
	inventoryGuard   bool

	clientMaxAttempts int
	retryInitialDelay time.Duration
	retryMultiplier   float64
	retryMaxDelay     time.Duration
	callTimeout       time.Duration
}

func generateRandomString(length int) string {
	b := make([]byte, length)
	_, err := rand.Read(b)
	if err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}

func NewConfig() Config {
	var config Config

	flag.StringVar(&config.endpoint, "a", "localhost:8090", "address and port to run operator API")
	flag.StringVar(&config.marketplaceEndpoint, "m", "http://localhost:8080", "marketplace API base address")
	flag.StringVar(&config.fulfillmentEndpoint, "f", "http://localhost:8081", "fulfillment provider API base address")
	flag.StringVar(&config.dsn, "d", "", "data source name for database connection")
	flag.StringVar(&config.skuMapPath, "s", "skumap.yaml", "path to the SKU mapping file")
	flag.DurationVar(&config.orderPollInterval, "poll-interval", time.Minute, "interval between marketplace order polls")
	flag.DurationVar(&config.trackingSyncInterval, "tracking-interval", 5*time.Minute, "interval between tracking sync sweeps")
	flag.DurationVar(&config.inventorySyncInterval, "inventory-interval", 10*time.Minute, "interval between inventory refreshes")
	flag.DurationVar(&config.stalenessThreshold, "staleness-threshold", 48*time.Hour, "time without tracking data before an order is reported stale")
	flag.Float64Var(&config.marketplaceRPS, "marketplace-rps", 5, "request rate limit for the marketplace API")
	flag.Float64Var(&config.fulfillmentRPS, "fulfillment-rps", 5, "request rate limit for the fulfillment API")
	flag.IntVar(&config.workers, "workers", 4, "number of pipeline workers")
	flag.IntVar(&config.queueCapacity, "queue-capacity", 256, "capacity of the job queue")
	flag.IntVar(&config.pageSize, "page-size", 50, "page size for marketplace order polling")
	flag.IntVar(&config.maxRetryAttempts, "max-retries", 5, "retry attempts per order before it is marked failed")
	flag.DurationVar(&config.retryDelay, "retry-delay", 30*time.Second, "delay before a failed order step is retried")
	flag.IntVar(&config.maxHoldCycles, "max-hold-cycles", 10, "inventory hold cycles before an order is marked failed")
	flag.BoolVar(&config.inventoryGuard, "inventory-guard", true, "check provider inventory before creating fulfillment orders")
	flag.IntVar(&config.clientMaxAttempts, "client-max-attempts", 3, "attempts per external API call before the error reaches the pipeline")
	flag.DurationVar(&config.retryInitialDelay, "retry-initial-delay", time.Second, "initial backoff delay between API call attempts")
	flag.Float64Var(&config.retryMultiplier, "retry-multiplier", 2, "backoff multiplier between API call attempts")
	flag.DurationVar(&config.retryMaxDelay, "retry-max-delay", 30*time.Second, "maximum backoff delay between API call attempts")
	flag.DurationVar(&config.callTimeout, "call-timeout", 15*time.Second, "timeout for a single external API call attempt")
	flag.Parse()

	if address := os.Getenv("RUN_ADDRESS"); address != "" {
		config.endpoint = address
	}

	if address := os.Getenv("MARKETPLACE_ADDRESS"); address != "" {
		config.marketplaceEndpoint = address
	}

	if address := os.Getenv("FULFILLMENT_ADDRESS"); address != "" {
		config.fulfillmentEndpoint = address
	}

	if d := os.Getenv("DATABASE_URI"); d != "" {
		config.dsn = d
	}

	if path := os.Getenv("SKU_MAP_PATH"); path != "" {
		config.skuMapPath = path
	}

	config.webhookURL = os.Getenv("EVENT_WEBHOOK_URL")
	config.natsURL = os.Getenv("NATS_URL")

	if l := os.Getenv("LOG_LEVEL"); l != "" {
		config.logLevel = l
	} else {
		config.logLevel = "info"
	}

	if e := os.Getenv("ENV"); e != "" {
		config.env = e
	} else {
		config.env = "production"
	}

	if secret := os.Getenv("AUTH_SECRET_KEY"); secret != "" {
		config.authSecretKey = secret
	} else {
		if config.env == "production" {
			config.authSecretKey = generateRandomString(10)
			log.Printf("WARNING: AUTH_SECRET_KEY has to be defined for production environment\n")
		} else {
			config.authSecretKey = "development-key"
		}
	}

	return config
}

// Validate собирает все ошибки конфигурации разом, чтобы оператор исправил их
// за один запуск.
func (c Config) Validate() error {
	var result *multierror.Error

	if c.dsn == "" {
		result = multierror.Append(result, fmt.Errorf("database DSN is required (-d or DATABASE_URI)"))
	}
	if c.skuMapPath == "" {
		result = multierror.Append(result, fmt.Errorf("SKU mapping file path is required (-s or SKU_MAP_PATH)"))
	}
	if c.workers <= 0 {
		result = multierror.Append(result, fmt.Errorf("workers must be positive, got %d", c.workers))
	}
	if c.queueCapacity <= 0 {
		result = multierror.Append(result, fmt.Errorf("queue capacity must be positive, got %d", c.queueCapacity))
	}
	if c.pageSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("page size must be positive, got %d", c.pageSize))
	}
	if c.maxRetryAttempts <= 0 {
		result = multierror.Append(result, fmt.Errorf("max retries must be positive, got %d", c.maxRetryAttempts))
	}
	if c.maxHoldCycles <= 0 {
		result = multierror.Append(result, fmt.Errorf("max hold cycles must be positive, got %d", c.maxHoldCycles))
	}
	if c.marketplaceRPS <= 0 || c.fulfillmentRPS <= 0 {
		result = multierror.Append(result, fmt.Errorf("rate limits must be positive"))
	}
	if c.clientMaxAttempts <= 0 {
		result = multierror.Append(result, fmt.Errorf("client max attempts must be positive, got %d", c.clientMaxAttempts))
	}
	if c.retryInitialDelay <= 0 {
		result = multierror.Append(result, fmt.Errorf("retry initial delay must be positive, got %s", c.retryInitialDelay))
	}
	if c.retryMultiplier < 1 {
		result = multierror.Append(result, fmt.Errorf("retry multiplier must be at least 1, got %g", c.retryMultiplier))
	}
	if c.retryMaxDelay < c.retryInitialDelay {
		result = multierror.Append(result, fmt.Errorf("retry max delay %s is below the initial delay %s", c.retryMaxDelay, c.retryInitialDelay))
	}
	if c.callTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("call timeout must be positive, got %s", c.callTimeout))
	}

	return result.ErrorOrNil()
}
