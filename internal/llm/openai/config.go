package openai

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

type Config struct {
	APIKey      string // falls back to OPENAI_API_KEY
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// ConfigFrom maps the process configuration onto the client config.
func ConfigFrom(c common.LLMConfig) Config {
	return Config{APIKey: c.APIKey, BaseURL: c.BaseURL, Model: c.Model, Temperature: c.Temperature, Timeout: c.Timeout}
}

// Client talks to an OpenAI-compatible chat/completions endpoint.
type Client struct {
	cfg    Config
	http   *resty.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")
	return &Client{cfg: cfg, http: rc, logger: logger}
}
