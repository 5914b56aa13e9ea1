package config

import (
	"os"
	"slices"
	"strings"
	"time"
)

type TelegramConfig struct {
	Token        string
	AllowedUsers []int64
	Debug        bool
	Timeout      int
	// SendRate is the outbound message budget per second.
	SendRate float64
}

// IsAllowed reports whether a user may talk to the bot. An empty list allows everyone.
func (c TelegramConfig) IsAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	return slices.Contains(c.AllowedUsers, userID)
}

type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	Stream      bool
}

type AgentConfig struct {
	Enabled            bool
	ToolPrefix         string
	MaxAttempts        int
	Backoff            time.Duration
	HistoryLimit       int
	SystemPrompt       string
	ContinuationPrompt string
	ValidateArguments  bool
}

type ToolsConfig struct {
	Enabled  []string
	Weather  WeatherToolConfig
	Currency CurrencyToolConfig
	Search   SearchToolConfig
}

func (c ToolsConfig) IsEnabled(name string) bool {
	return slices.Contains(c.Enabled, name)
}

type WeatherToolConfig struct {
	BaseURL string
	Timeout time.Duration
}

type CurrencyToolConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type SearchToolConfig struct {
	MaxResults int
	Region     string
	BaseURL    string
	Timeout    time.Duration
}

type HTTPConfig struct {
	proxy   string
	noProxy []string
}

func NewHTTPConfig(proxy string, noProxy ...string) HTTPConfig {
	return HTTPConfig{proxy: proxy, noProxy: noProxy}
}

// GetProxy falls back to the standard proxy env vars when nothing is configured.
func (c HTTPConfig) GetProxy() string {
	if c.proxy != "" {
		return c.proxy
	}
	for _, key := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// GetNoProxy returns hosts that bypass the proxy. The local model
// endpoint is always among them.
func (c HTTPConfig) GetNoProxy() []string {
	hosts := []string{"localhost", "127.0.0.1", "::1"}
	hosts = append(hosts, c.noProxy...)
	for _, key := range []string{"NO_PROXY", "no_proxy"} {
		if v := os.Getenv(key); v != "" {
			for h := range strings.SplitSeq(v, ",") {
				if h = strings.TrimSpace(h); h != "" {
					hosts = append(hosts, h)
				}
			}
		}
	}
	return hosts
}

type LoggingConfig struct {
	LogLevel    string
	Format      string
	WriteInFile bool
	FilePath    string
}

func (c LoggingConfig) Level() string {
	return strings.ToLower(c.LogLevel)
}

func (c LoggingConfig) IsDebug() bool {
	return c.Level() == "debug" || c.Level() == "trace"
}

type CleanupConfig struct {
	Schedule string
	// MessageTTL of zero keeps messages forever.
	MessageTTL time.Duration
}

type QueueOptions struct {
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	Concurrency int
}

type QueueConfig struct {
	PollInterval time.Duration
	Ask          QueueOptions
}
