package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ollagram/ollagram/internal/agent"
	"github.com/ollagram/ollagram/internal/logger"
)

type Weather struct {
	client  *http.Client
	baseURL string
	logger  logger.Logger
}

type CurrentWeather struct {
	Time          string  `json:"time"`
	Temperature   float64 `json:"temperature_2m"`
	WindSpeed     float64 `json:"wind_speed_10m"`
	TemperatureIn string  `json:"temperature_unit,omitempty"`
	WindSpeedIn   string  `json:"wind_speed_unit,omitempty"`
}

type forecastResponse struct {
	Current      CurrentWeather `json:"current"`
	CurrentUnits struct {
		Temperature string `json:"temperature_2m"`
		WindSpeed   string `json:"wind_speed_10m"`
	} `json:"current_units"`
}

func NewWeather(client *http.Client, baseURL string, log logger.Logger) *Weather {
	return &Weather{client: client, baseURL: baseURL, logger: log}
}

func (w *Weather) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name:        ToolWeather,
		Description: "Get current weather for provided coordinates in celsius.",
		Parameters: agent.Schema{
			Type: agent.TypeObject,
			Properties: map[string]agent.Property{
				"latitude":  {Type: agent.TypeNumber, Description: "Latitude in decimal degrees"},
				"longitude": {Type: agent.TypeNumber, Description: "Longitude in decimal degrees"},
			},
			Required: []string{"latitude", "longitude"},
		},
		Func: w.call,
	}
}

func (w *Weather) call(ctx context.Context, args agent.Arguments) (any, error) {
	lat, err := args.Float("latitude")
	if err != nil {
		return nil, err
	}
	lon, err := args.Float("longitude")
	if err != nil {
		return nil, err
	}
	return w.Current(ctx, lat, lon)
}

// Current fetches the current temperature and wind speed at a point.
func (w *Weather) Current(ctx context.Context, lat, lon float64) (*CurrentWeather, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: coordinates out of range: %v, %v", agent.ErrInvalidArguments, lat, lon)
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("timezone", "auto")
	q.Set("current", "temperature_2m,wind_speed_10m")

	var data forecastResponse
	if err := getJSON(ctx, w.client, w.baseURL+"?"+q.Encode(), &data); err != nil {
		return nil, err
	}

	current := data.Current
	current.TemperatureIn = data.CurrentUnits.Temperature
	current.WindSpeedIn = data.CurrentUnits.WindSpeed

	w.logger.WithFields(logger.Fields{
		"latitude":    lat,
		"longitude":   lon,
		"temperature": current.Temperature,
	}).Debug("Weather fetched")
	return &current, nil
}
