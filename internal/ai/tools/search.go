package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ollagram/ollagram/internal/agent"
	"github.com/ollagram/ollagram/internal/config"
	"github.com/ollagram/ollagram/internal/logger"
)

const maxSearchResults = 10

var ErrSearchRateLimited = errors.New("search rate limited")

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:130.0) Gecko/20100101 Firefox/130.0",
}

type SearchResult struct {
	Title string `json:"title"`
	Href  string `json:"href"`
	Body  string `json:"body"`
}

// Search scrapes the DuckDuckGo HTML endpoint.
type Search struct {
	client     *http.Client
	baseURL    string
	region     string
	maxResults int
	logger     logger.Logger
}

func NewSearch(client *http.Client, cfg config.SearchToolConfig, log logger.Logger) *Search {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 3
	}
	return &Search{
		client:     client,
		baseURL:    cfg.BaseURL,
		region:     cfg.Region,
		maxResults: maxResults,
		logger:     log,
	}
}

func (s *Search) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name:        ToolSearch,
		Description: "Search the web with DuckDuckGo. Use when you need fresh or more relevant information.",
		Parameters: agent.Schema{
			Type: agent.TypeObject,
			Properties: map[string]agent.Property{
				"query":       {Type: agent.TypeString, Description: "Search query"},
				"max_results": {Type: agent.TypeInteger, Description: fmt.Sprintf("Max search results. Min: 1, max: %d", maxSearchResults)},
				"time_limit": {
					Type:        agent.TypeString,
					Enum:        []string{"", "d", "w", "m", "y"},
					Description: "Time range: 'd' (last 24h), 'w' (last week), 'm' (last month), 'y' (last year). Leave empty for all time.",
				},
			},
			Required: []string{"query"},
		},
		Func: s.call,
	}
}

func (s *Search) call(ctx context.Context, args agent.Arguments) (any, error) {
	query, err := args.String("query")
	if err != nil {
		return nil, err
	}
	limit, err := args.IntOr("max_results", s.maxResults)
	if err != nil {
		return nil, err
	}
	timeLimit := ""
	if args.Has("time_limit") {
		if timeLimit, err = args.String("time_limit"); err != nil {
			return nil, err
		}
	}
	return s.Text(ctx, query, timeLimit, limit)
}

// Text returns up to maxResults organic results. Ads and redirect links are skipped.
func (s *Search) Text(ctx context.Context, query, timeLimit string, maxResults int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", agent.ErrInvalidArguments)
	}
	maxResults = min(max(maxResults, 1), maxSearchResults)

	form := url.Values{}
	form.Set("q", query)
	form.Set("b", "")
	form.Set("kl", s.region)
	form.Set("df", timeLimit)

	body, err := s.post(ctx, form)
	if err != nil {
		return nil, err
	}

	results := []SearchResult{}
	if bytes.Contains(body, []byte("No results.")) {
		return results, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse search page: %w", err)
	}

	seen := make(map[string]bool)
	doc.Find("div.result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find("a.result__a")
		href, ok := link.Attr("href")
		if !ok || href == "" || seen[href] || isNoise(href) {
			return true
		}
		seen[href] = true
		results = append(results, SearchResult{
			Title: normalizeSpace(link.Text()),
			Href:  normalizeURL(href),
			Body:  normalizeSpace(sel.Find(".result__snippet").Text()),
		})
		return len(results) < maxResults
	})

	s.logger.WithFields(logger.Fields{"query": query, "results": len(results)}).Debug("Search finished")
	return results, nil
}

func (s *Search) post(ctx context.Context, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", "https://duckduckgo.com/")
	req.Header.Set("User-Agent", userAgents[rand.IntN(len(userAgents))])

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: search request failed: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrSearchRateLimited, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{URL: s.baseURL, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

func isNoise(href string) bool {
	return strings.HasPrefix(href, "http://www.google.com/search?q=") ||
		strings.HasPrefix(href, "https://duckduckgo.com/y.js?ad_domain")
}

// normalizeURL unwraps DuckDuckGo redirect links ("//duckduckgo.com/l/?uddg=...").
func normalizeURL(href string) string {
	if u, err := url.Parse(href); err == nil && strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
	}
	unescaped, err := url.QueryUnescape(href)
	if err != nil {
		return href
	}
	return strings.ReplaceAll(unescaped, " ", "+")
}

func normalizeSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
