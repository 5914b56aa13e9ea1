package ai

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollagram/ollagram/internal/logger"
)

const maxLoggedField = 1000

type baseHTTPClient struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

func newBaseHTTPClient(client *http.Client, baseURL string, log logger.Logger) *baseHTTPClient {
	return &baseHTTPClient{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  log,
	}
}

// Do resolves relative URLs against the base URL and logs the request body at debug level.
func (c *baseHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if !req.URL.IsAbs() {
		u, err := url.Parse(c.baseURL + "/" + strings.TrimPrefix(req.URL.String(), "/"))
		if err != nil {
			return nil, err
		}
		req.URL = u
		req.Host = u.Host
	}
	req.Header.Set("Content-Type", "application/json")

	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	c.logRequest(req, body)

	return c.client.Do(req)
}

func (c *baseHTTPClient) logRequest(req *http.Request, body []byte) {
	var payload any
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		if m, ok := payload.(map[string]any); ok {
			truncateLargeFields(m)
		}
	}
	c.logger.WithFields(logger.Fields{
		"url":    req.URL.String(),
		"method": req.Method,
		"body":   payload,
	}).Trace("HTTP request")
}

func truncateLargeFields(data map[string]any) {
	for k, v := range data {
		switch val := v.(type) {
		case string:
			if k == "content" && len(val) > maxLoggedField {
				data[k] = val[:maxLoggedField] + "...[truncated]"
			}
		case map[string]any:
			truncateLargeFields(val)
		case []any:
			for _, item := range val {
				if m, ok := item.(map[string]any); ok {
					truncateLargeFields(m)
				}
			}
		}
	}
}
