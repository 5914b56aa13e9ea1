package network

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/ollagram/ollagram/internal/config"
	"github.com/ollagram/ollagram/internal/logger"
)

const LogProxyNotConfigured = "Proxy not configured, using direct connection"

type HTTPClientConfig struct {
	ProxyURL            string
	NoProxy             []string
	Timeout             time.Duration
	DisableKeepAlives   bool
	MaxIdleConns        int
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration
	DisableCompression  bool
}

// NewToolsHTTPClientConfig is for short outbound API calls made by tools.
func NewToolsHTTPClientConfig(cfg config.HTTPConfig, timeout time.Duration) HTTPClientConfig {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return HTTPClientConfig{
		ProxyURL:            cfg.GetProxy(),
		NoProxy:             cfg.GetNoProxy(),
		Timeout:             timeout,
		MaxIdleConns:        20,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// NewModelHTTPClientConfig is for the model backend. Generation can be slow,
// and streamed bodies must not be cut by a client-wide timeout, so only the
// non-stream path is bounded by timeout through the request context.
func NewModelHTTPClientConfig(cfg config.HTTPConfig) HTTPClientConfig {
	return HTTPClientConfig{
		ProxyURL:            cfg.GetProxy(),
		NoProxy:             cfg.GetNoProxy(),
		Timeout:             0,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true,
	}
}

// NewTelegramHTTPClientConfig must outlive a long-poll request of pollTimeout.
func NewTelegramHTTPClientConfig(cfg config.HTTPConfig, pollTimeout time.Duration) HTTPClientConfig {
	return HTTPClientConfig{
		ProxyURL:            cfg.GetProxy(),
		NoProxy:             cfg.GetNoProxy(),
		Timeout:             pollTimeout + 30*time.Second,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

func SetupHTTPClient(cfg HTTPClientConfig, log logger.Logger) (*http.Client, error) {
	transport := &http.Transport{
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		DisableKeepAlives:     cfg.DisableKeepAlives,
		DisableCompression:    cfg.DisableCompression,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		DialContext:           newDialer().DialContext,
	}

	if cfg.ProxyURL != "" {
		if err := configureProxy(transport, cfg.ProxyURL, cfg.NoProxy, log); err != nil {
			return nil, err
		}
	} else {
		log.Debug(LogProxyNotConfigured)
	}

	return &http.Client{Transport: transport, Timeout: cfg.Timeout}, nil
}

func configureProxy(transport *http.Transport, proxyURL string, noProxy []string, log logger.Logger) error {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("failed to parse proxy URL: %w", err)
	}

	switch parsed.Scheme {
	case "socks5", "socks5h":
		dial, err := socks5DialContext(parsed, noProxy)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.DialContext = dial
	case "http", "https":
		transport.Proxy = proxyFunc(parsed, noProxy)
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", parsed.Scheme)
	}

	log.WithFields(logger.Fields{
		"proxy":    parsed.Redacted(),
		"no_proxy": noProxy,
	}).Info("Proxy configured")
	return nil
}

func proxyFunc(proxyURL *url.URL, noProxy []string) func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		if bypass(req.URL.Hostname(), noProxy) {
			return nil, nil
		}
		return proxyURL, nil
	}
}

// bypass reports whether host matches a no_proxy entry. Entries may be exact
// hosts, glob patterns ("*.lan") or domain suffixes (".internal").
func bypass(host string, noProxy []string) bool {
	for _, pattern := range noProxy {
		switch {
		case pattern == host:
			return true
		case strings.HasPrefix(pattern, ".") && strings.HasSuffix(host, pattern):
			return true
		case strings.ContainsAny(pattern, "*?["):
			if ok, _ := path.Match(pattern, host); ok {
				return true
			}
		}
	}
	return false
}

func newDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
}

func socks5DialContext(proxyURL *url.URL, noProxy []string) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	direct := newDialer()
	proxyDialer, err := proxy.FromURL(proxyURL, direct)
	if err != nil {
		return nil, err
	}
	ctxDialer, ok := proxyDialer.(proxy.ContextDialer)

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		if bypass(host, noProxy) {
			return direct.DialContext(ctx, network, addr)
		}
		if ok {
			return ctxDialer.DialContext(ctx, network, addr)
		}
		return proxyDialer.Dial(network, addr)
	}, nil
}
