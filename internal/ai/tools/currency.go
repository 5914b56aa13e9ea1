package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ollagram/ollagram/internal/agent"
	"github.com/ollagram/ollagram/internal/cache"
	"github.com/ollagram/ollagram/internal/config"
	"github.com/ollagram/ollagram/internal/logger"
)

// BaseCurrency is the currency NBRB quotes every rate against.
const BaseCurrency = "BYN"

type Currency struct {
	client  *http.Client
	baseURL string
	ttl     time.Duration
	cache   cache.Cache
	logger  logger.Logger
}

type Conversion struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
	Result float64 `json:"result"`
}

type nbrbRate struct {
	Abbreviation string  `json:"Cur_Abbreviation"`
	Scale        float64 `json:"Cur_Scale"`
	OfficialRate float64 `json:"Cur_OfficialRate"`
}

func NewCurrency(client *http.Client, cfg config.CurrencyToolConfig, c cache.Cache, log logger.Logger) *Currency {
	return &Currency{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		ttl:     cfg.CacheTTL,
		cache:   c,
		logger:  log,
	}
}

func (c *Currency) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name:        ToolCurrency,
		Description: "Convert amount from one currency to another",
		Parameters: agent.Schema{
			Type: agent.TypeObject,
			Properties: map[string]agent.Property{
				"from_currency": {Type: agent.TypeString, Description: "Currency code to convert from (e.g., USD, EUR, RUB)"},
				"to_currency":   {Type: agent.TypeString, Description: "Currency code to convert to (e.g., BYN, EUR, USD)"},
				"amount":        {Type: agent.TypeNumber, Description: "Amount to convert", Default: 1.0},
			},
			Required: []string{"from_currency", "to_currency"},
		},
		Func: c.call,
	}
}

func (c *Currency) call(ctx context.Context, args agent.Arguments) (any, error) {
	from, err := args.String("from_currency")
	if err != nil {
		return nil, err
	}
	to, err := args.String("to_currency")
	if err != nil {
		return nil, err
	}
	amount := 1.0
	if args.Has("amount") {
		if amount, err = args.Float("amount"); err != nil {
			return nil, err
		}
	}

	result, err := c.Convert(ctx, from, to, amount)
	if err != nil {
		return nil, err
	}
	return Conversion{
		From:   strings.ToUpper(from),
		To:     strings.ToUpper(to),
		Amount: amount,
		Result: result,
	}, nil
}

// Convert converts amount through BYN and rounds to four decimal places.
func (c *Currency) Convert(ctx context.Context, from, to string, amount float64) (float64, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" {
		return 0, fmt.Errorf("%w: currency code is empty", agent.ErrInvalidArguments)
	}

	var rateFrom, rateTo float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rateFrom, err = c.Rate(gctx, from)
		return err
	})
	g.Go(func() (err error) {
		rateTo, err = c.Rate(gctx, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}

	return round4(amount * rateFrom / rateTo), nil
}

// Rate returns the BYN price of one unit of code.
func (c *Currency) Rate(ctx context.Context, code string) (float64, error) {
	code = strings.ToUpper(code)
	if code == BaseCurrency {
		return 1, nil
	}

	key := "nbrb:rate:" + code
	if c.cache != nil {
		var cached float64
		if cache.GetJSON(ctx, c.cache, key, &cached) {
			return cached, nil
		}
	}

	var data nbrbRate
	endpoint := fmt.Sprintf("%s/%s?parammode=2", c.baseURL, url.PathEscape(code))
	if err := getJSON(ctx, c.client, endpoint, &data); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return 0, fmt.Errorf("%w: unknown currency %s", agent.ErrInvalidArguments, code)
		}
		return 0, fmt.Errorf("failed to get %s rate: %w", code, err)
	}
	if data.Scale <= 0 || data.OfficialRate <= 0 {
		return 0, fmt.Errorf("%w: malformed rate for %s", ErrUpstream, code)
	}

	rate := data.OfficialRate / data.Scale
	if c.cache != nil {
		if err := cache.SetJSON(ctx, c.cache, key, rate, c.ttl); err != nil {
			c.logger.WithError(err).Warn("Failed to cache currency rate")
		}
	}
	c.logger.WithFields(logger.Fields{"currency": code, "rate": rate}).Debug("Currency rate fetched")
	return rate, nil
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
