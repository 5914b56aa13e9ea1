package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ollagram/ollagram/internal/agent"
	"github.com/ollagram/ollagram/internal/cache"
	"github.com/ollagram/ollagram/internal/config"
	"github.com/ollagram/ollagram/internal/logger"
)

const (
	ToolWeather  = "get_weather"
	ToolCurrency = "convert_currency"
	ToolSearch   = "web_search"
)

var ErrUpstream = errors.New("upstream service error")

type Deps struct {
	HTTPClient *http.Client
	// Cache is optional. Currency rates are refetched on every call without it.
	Cache  cache.Cache
	Config config.ToolsConfig
	Logger logger.Logger
}

// Register adds every enabled tool to the registry, in the configured order.
// Unknown names in the enabled list are logged and skipped.
func Register(registry *agent.Registry, deps Deps) error {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	client := deps.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	available := map[string]func() agent.ToolSpec{
		ToolWeather: func() agent.ToolSpec {
			return NewWeather(client, deps.Config.Weather.BaseURL, log).Spec()
		},
		ToolCurrency: func() agent.ToolSpec {
			return NewCurrency(client, deps.Config.Currency, deps.Cache, log).Spec()
		},
		ToolSearch: func() agent.ToolSpec {
			return NewSearch(client, deps.Config.Search, log).Spec()
		},
	}

	for _, name := range deps.Config.Enabled {
		build, ok := available[name]
		if !ok {
			log.WithField("tool", name).Warn("Unknown tool in config, skipping")
			continue
		}
		if err := registry.Register(build()); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
	}
	log.WithField("tools", registry.Names()).Info("Tools registered")
	return nil
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.URL, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrUpstream
}
