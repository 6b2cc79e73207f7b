package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds all process configuration. Domain configuration lives in the niche YAML.
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	OCR       OCRConfig
	LLM       LLMConfig
	Niche     NicheConfig
	Storage   StorageConfig
	Scheduler SchedulerConfig
	Locks     LockConfig
	Email     EmailConfig
	CRM       CRMConfig
	Ingest    IngestConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // postgres | sqlite
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
	AutoMigrate      bool
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	HTTPAddr        string
	GRPCAddr        string
	AppBaseURL      string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Backend             string // local | cloud-vision
	TesseractPath       string
	PDFToPPMPath        string
	HeicConverter       string
	TessdataDir         string
	Lang                string
	DPI                 int
	MaxPages            int
	PageTimeout         time.Duration
	GoogleVisionAPIKey  string
	GoogleVisionBaseURL string
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// NicheConfig points at the niche YAML files.
type NicheConfig struct {
	ConfigPath   string
	DefaultNiche string
}

// StorageConfig selects the blob backend.
type StorageConfig struct {
	Backend        string // local | minio
	LocalPath      string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// SchedulerConfig holds cron specs and dispatch limits.
type SchedulerConfig struct {
	Enabled           bool
	GenerateSpec      string
	DispatchSpec      string
	RefreshSpec       string
	CRMPushSpec       string
	NotifyMaxAttempts int
	NotifyBatchSize   int
}

// LockConfig configures job-level locks. An empty RedisURL selects in-process locks.
type LockConfig struct {
	RedisURL string
	TTL      time.Duration
}

// EmailConfig holds the outbound email transport settings.
type EmailConfig struct {
	Provider       string // console | smtp | sendgrid
	FromAddress    string
	FromName       string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SendGridAPIKey string
	SendGridURL    string
}

// IngestConfig enables the watched inbox directory. Empty Dir disables it.
type IngestConfig struct {
	Dir              string
	AccountID        string
	DocumentTypeCode string
	Process          bool
	Debounce         time.Duration
}

// CRMConfig holds CRM connector settings shared by all accounts.
type CRMConfig struct {
	SecretsKey     string
	HubSpotBaseURL string
	Timeout        time.Duration
	PushWorkers    int
	PushQueueSize  int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "postgres"),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
			AutoMigrate:      getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			HTTPAddr:        getEnv("HTTP_ADDR", ":8000"),
			GRPCAddr:        getEnv("GRPC_ADDR", ":8080"),
			AppBaseURL:      getEnv("APP_BASE_URL", "http://localhost:3000"),
			MaxUploadBytes:  int64(getEnvAsInt("MAX_UPLOAD_BYTES", 25<<20)),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		OCR: OCRConfig{
			Backend:             getEnv("OCR_BACKEND", "local"),
			TesseractPath:       getEnv("TESSERACT_PATH", "tesseract"),
			PDFToPPMPath:        getEnv("PDFTOPPM_PATH", "pdftoppm"),
			HeicConverter:       getEnv("HEIC_CONVERTER", "magick"),
			TessdataDir:         getEnv("TESSDATA_PREFIX", ""),
			Lang:                getEnv("OCR_LANG", "eng"),
			DPI:                 getEnvAsInt("OCR_DPI", 300),
			MaxPages:            getEnvAsInt("OCR_MAX_PAGES", 20),
			PageTimeout:         getEnvAsDuration("OCR_PAGE_TIMEOUT", 30*time.Second),
			GoogleVisionAPIKey:  getEnv("GOOGLE_VISION_API_KEY", ""),
			GoogleVisionBaseURL: getEnv("GOOGLE_VISION_BASE_URL", "https://vision.googleapis.com"),
		},
		LLM: LLMConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.1),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Niche: NicheConfig{
			ConfigPath:   getEnv("NICHES_CONFIG_PATH", "./configs/niches"),
			DefaultNiche: getEnv("DEFAULT_NICHE", "coi"),
		},
		Storage: StorageConfig{
			Backend:        getEnv("STORAGE_BACKEND", "local"),
			LocalPath:      getEnv("LOCAL_STORAGE_PATH", "./data/uploads"),
			MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
			MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
			MinioBucket:    getEnv("MINIO_BUCKET", "documents"),
			MinioUseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		Scheduler: SchedulerConfig{
			Enabled:           getEnvAsBool("SCHEDULER_ENABLED", true),
			GenerateSpec:      getEnv("SCHEDULE_GENERATE_NOTIFICATIONS", "0 6 * * *"),
			DispatchSpec:      getEnv("SCHEDULE_DISPATCH_NOTIFICATIONS", "*/5 * * * *"),
			RefreshSpec:       getEnv("SCHEDULE_REFRESH_REQUIREMENTS", "5 0 * * *"),
			CRMPushSpec:       getEnv("SCHEDULE_CRM_COMPLIANCE_PUSH", "30 * * * *"),
			NotifyMaxAttempts: getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 3),
			NotifyBatchSize:   getEnvAsInt("NOTIFY_BATCH_SIZE", 100),
		},
		Locks: LockConfig{
			RedisURL: getEnv("REDIS_URL", ""),
			TTL:      getEnvAsDuration("JOB_LOCK_TTL", 10*time.Minute),
		},
		Email: EmailConfig{
			Provider:       getEnv("EMAIL_PROVIDER", "console"),
			FromAddress:    getEnv("EMAIL_FROM_ADDRESS", "noreply@example.com"),
			FromName:       getEnv("EMAIL_FROM_NAME", "Compliance Tracker"),
			SMTPHost:       getEnv("SMTP_HOST", ""),
			SMTPPort:       getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername:   getEnv("SMTP_USERNAME", ""),
			SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			SendGridURL:    getEnv("SENDGRID_BASE_URL", "https://api.sendgrid.com"),
		},
		CRM: CRMConfig{
			SecretsKey:     getEnv("INTEGRATION_SECRETS_KEY", ""),
			HubSpotBaseURL: getEnv("HUBSPOT_BASE_URL", "https://api.hubapi.com"),
			Timeout:        getEnvAsDuration("CRM_TIMEOUT", 15*time.Second),
			PushWorkers:    getEnvAsInt("CRM_PUSH_WORKERS", 2),
			PushQueueSize:  getEnvAsInt("CRM_PUSH_QUEUE_SIZE", 256),
		},
		Ingest: IngestConfig{
			Dir:              getEnv("INGEST_DIR", ""),
			AccountID:        getEnv("INGEST_ACCOUNT_ID", ""),
			DocumentTypeCode: getEnv("INGEST_DOCUMENT_TYPE", ""),
			Process:          getEnvAsBool("INGEST_PROCESS", true),
			Debounce:         getEnvAsDuration("INGEST_DEBOUNCE", 2*time.Second),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the loaded configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		add("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		add("DB_URL is required")
	}
	if c.Server.HTTPAddr == "" {
		add("HTTP_ADDR is required")
	}
	switch c.OCR.Backend {
	case "local":
	case "cloud-vision":
		if c.OCR.GoogleVisionAPIKey == "" {
			add("GOOGLE_VISION_API_KEY is required when OCR_BACKEND=cloud-vision")
		}
	default:
		add("OCR_BACKEND must be local or cloud-vision, got %q", c.OCR.Backend)
	}
	if c.LLM.APIKey == "" {
		add("OPENAI_API_KEY is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("OPENAI_TEMPERATURE must be within [0,2]")
	}
	switch c.Storage.Backend {
	case "local":
	case "minio":
		if c.Storage.MinioEndpoint == "" || c.Storage.MinioBucket == "" {
			add("MINIO_ENDPOINT and MINIO_BUCKET are required when STORAGE_BACKEND=minio")
		}
	default:
		add("STORAGE_BACKEND must be local or minio, got %q", c.Storage.Backend)
	}
	switch c.Email.Provider {
	case "console":
	case "smtp":
		if c.Email.SMTPHost == "" {
			add("SMTP_HOST is required when EMAIL_PROVIDER=smtp")
		}
	case "sendgrid":
		if c.Email.SendGridAPIKey == "" {
			add("SENDGRID_API_KEY is required when EMAIL_PROVIDER=sendgrid")
		}
	default:
		add("EMAIL_PROVIDER must be console, smtp or sendgrid, got %q", c.Email.Provider)
	}
	if c.Scheduler.NotifyMaxAttempts < 1 {
		add("NOTIFY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Scheduler.NotifyBatchSize < 1 {
		add("NOTIFY_BATCH_SIZE must be at least 1")
	}
	if c.CRM.SecretsKey == "" {
		add("INTEGRATION_SECRETS_KEY is required")
	}
	if c.Ingest.Dir != "" {
		if _, err := uuid.Parse(c.Ingest.AccountID); err != nil {
			add("INGEST_ACCOUNT_ID must be a UUID when INGEST_DIR is set")
		}
		if c.Ingest.DocumentTypeCode == "" {
			add("INGEST_DOCUMENT_TYPE is required when INGEST_DIR is set")
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return NewAppError("CONFIG_ERROR", strings.Join(problems, "; "), ErrInvalidInput)
}

// IsConfigError reports whether err came from Validate.
func IsConfigError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == "CONFIG_ERROR"
}
