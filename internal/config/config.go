package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// batchMargin is how much earlier than the visibility timeout a batch is
// abandoned, leaving time to delete the completed messages.
const batchMargin = 10 * time.Second

type Config struct {
	// ----------------------------
	// Queue
	// ----------------------------
	QueueURL           string `envconfig:"SQS_EMAIL_QUEUE_URL" required:"true"`
	EnqueueConcurrency int    `envconfig:"ENQUEUE_CONCURRENCY" default:"5"`

	// ----------------------------
	// AWS
	// ----------------------------
	AWSRegion   string `envconfig:"AWS_REGION" default:""`
	SESRegion   string `envconfig:"SES_REGION" default:""`
	AWSEndpoint string `envconfig:"AWS_ENDPOINT_URL" default:""`

	// ----------------------------
	// Email transport
	// ----------------------------
	EmailTransport   string `envconfig:"EMAIL_TRANSPORT" default:"ses"`
	FromAddress      string `envconfig:"SES_FROM_ADDRESS" default:""`
	SendRetrySeconds int    `envconfig:"SEND_RETRY_SECONDS" default:"3"`

	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser     string `envconfig:"SMTP_USER" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" default:""`

	ResendAPIKey string `envconfig:"RESEND_API_KEY" default:""`

	// ----------------------------
	// Idempotency store
	// ----------------------------
	IdempotencyBackend string `envconfig:"IDEMPOTENCY_BACKEND" default:"dynamodb"`
	IdempotencyTable   string `envconfig:"IDEMPOTENCY_TABLE" default:"email-idempotency"`
	DatabaseURL        string `envconfig:"DATABASE_URL" default:""`
	SQLitePath         string `envconfig:"SQLITE_PATH" default:"idempotency.db"`

	// ----------------------------
	// Consumer
	// ----------------------------
	ConsumerBatchSize         int32 `envconfig:"CONSUMER_BATCH_SIZE" default:"10"`
	ConsumerWaitSeconds       int32 `envconfig:"CONSUMER_WAIT_SECONDS" default:"20"`
	ConsumerVisibilityTimeout int32 `envconfig:"CONSUMER_VISIBILITY_TIMEOUT" default:"310"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort      string `envconfig:"API_PORT" default:"8080"`
	APIRateLimit int    `envconfig:"API_RATE_LIMIT" default:"60"`

	// Only set behind a proxy that overwrites X-Forwarded-For.
	APITrustProxy bool `envconfig:"API_TRUST_PROXY" default:"false"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}

// SendRetryBudget is the SMTP sender's retry window.
func (c *Config) SendRetryBudget() time.Duration {
	return time.Duration(c.SendRetrySeconds) * time.Second
}

// EmailRegion is the region used for SES, defaulting to AWSRegion.
func (c *Config) EmailRegion() string {
	if c.SESRegion != "" {
		return c.SESRegion
	}
	return c.AWSRegion
}

// BatchTimeout bounds one consumer batch so it ends before its messages
// become visible again.
func (c *Config) BatchTimeout() time.Duration {
	return time.Duration(c.ConsumerVisibilityTimeout)*time.Second - batchMargin
}

// ValidateConsumer checks the settings only the consumer needs.
func (c *Config) ValidateConsumer() error {
	var errs []error

	if c.FromAddress == "" {
		errs = append(errs, errors.New("SES_FROM_ADDRESS is required"))
	}
	if c.ConsumerBatchSize < 1 || c.ConsumerBatchSize > 10 {
		errs = append(errs, fmt.Errorf("CONSUMER_BATCH_SIZE must be between 1 and 10, got %d", c.ConsumerBatchSize))
	}
	// 0 turns long polling off and the poller would spin on empty receives.
	if c.ConsumerWaitSeconds < 1 || c.ConsumerWaitSeconds > 20 {
		errs = append(errs, fmt.Errorf("CONSUMER_WAIT_SECONDS must be between 1 and 20, got %d", c.ConsumerWaitSeconds))
	}
	if c.BatchTimeout() <= 0 {
		errs = append(errs, fmt.Errorf("CONSUMER_VISIBILITY_TIMEOUT must exceed %d seconds, got %d",
			int(batchMargin.Seconds()), c.ConsumerVisibilityTimeout))
	}

	switch c.EmailTransport {
	case "ses", "smtp", "log":
	case "resend":
		if c.ResendAPIKey == "" {
			errs = append(errs, errors.New("RESEND_API_KEY is required for the resend transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_TRANSPORT %q", c.EmailTransport))
	}

	switch c.IdempotencyBackend {
	case "dynamodb":
		if c.IdempotencyTable == "" {
			errs = append(errs, errors.New("IDEMPOTENCY_TABLE is required for the dynamodb backend"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown IDEMPOTENCY_BACKEND %q", c.IdempotencyBackend))
	}

	return errors.Join(errs...)
}
