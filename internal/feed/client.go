package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/quantora/signalmind/models"
)

// Options configures the market data client.
type Options struct {
	BaseURL        string
	APIKey         string
	Symbol         string
	Interval       string
	CandleCount    int
	RequestTimeout time.Duration
}

// Client fetches candles and quotes from a Twelve Data compatible API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	opts       Options
	logger     zerolog.Logger
}

// NewClient creates a rate-limited API client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.twelvedata.com"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.CandleCount <= 0 {
		opts.CandleCount = 100
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 5), // 5 requests per second
		opts:       opts,
		logger:     log.With().Str("component", "feed").Logger(),
	}
}

type timeSeriesResponse struct {
	Values []struct {
		Datetime string `json:"datetime"`
		Open     string `json:"open"`
		High     string `json:"high"`
		Low      string `json:"low"`
		Close    string `json:"close"`
		Volume   string `json:"volume"`
	} `json:"values"`
}

type priceResponse struct {
	Price string `json:"price"`
}

// GetCandles fetches the configured candle window, oldest first.
func (c *Client) GetCandles(ctx context.Context) ([]models.Candle, error) {
	return c.fetchSeries(ctx, c.opts.CandleCount)
}

// GetHistoricalCandles fetches a larger window for offline validation.
func (c *Client) GetHistoricalCandles(ctx context.Context, count int) ([]models.Candle, error) {
	return c.fetchSeries(ctx, count)
}

func (c *Client) fetchSeries(ctx context.Context, count int) ([]models.Candle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	q := url.Values{}
	q.Set("symbol", c.opts.Symbol)
	q.Set("interval", c.opts.Interval)
	q.Set("outputsize", strconv.Itoa(count))
	q.Set("apikey", c.opts.APIKey)
	endpoint := c.opts.BaseURL + "/time_series?" + q.Encode()

	c.logger.Debug().Str("symbol", c.opts.Symbol).Int("count", count).Msg("fetching candles")

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var data timeSeriesResponse
	if err := json.Unmarshal(body, &data); err != nil {
		c.logger.Error().Err(err).Str("response", string(body)).Msg("error parsing time series")
		return nil, fmt.Errorf("parsing time series: %w", err)
	}
	if len(data.Values) == 0 {
		c.logger.Warn().Str("response", string(body)).Msg("no candles in response")
		return nil, fmt.Errorf("empty data returned")
	}

	// Oldest first for proper indicator calculations.
	sort.Slice(data.Values, func(i, j int) bool {
		return data.Values[i].Datetime < data.Values[j].Datetime
	})

	candles := make([]models.Candle, 0, len(data.Values))
	for _, v := range data.Values {
		candle, err := parseCandle(v.Datetime, v.Open, v.High, v.Low, v.Close, v.Volume)
		if err != nil {
			return nil, fmt.Errorf("parsing candle at %s: %w", v.Datetime, err)
		}
		candles = append(candles, candle)
	}

	c.logger.Debug().Int("count", len(candles)).Msg("fetched candles")
	return candles, nil
}

// GetLatestPrice fetches the current quote for the configured symbol.
func (c *Client) GetLatestPrice(ctx context.Context) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter error: %w", err)
	}

	q := url.Values{}
	q.Set("symbol", c.opts.Symbol)
	q.Set("apikey", c.opts.APIKey)
	endpoint := c.opts.BaseURL + "/price?" + q.Encode()

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return 0, err
	}

	var data priceResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return 0, fmt.Errorf("parsing price response: %w", err)
	}
	price, err := strconv.ParseFloat(data.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing price %q: %w", data.Price, err)
	}
	return price, nil
}

// get performs a GET with exponential-backoff retries and API error detection.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	var resp *http.Response
	operation := func() error {
		var err error
		resp, err = c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("HTTP request failed: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("non-200 status code: %d", resp.StatusCode)
		}
		return nil
	}

	backoffStrategy := backoff.NewExponentialBackOff()
	backoffStrategy.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(backoffStrategy, ctx)); err != nil {
		return nil, fmt.Errorf("after retries: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if strings.Contains(string(body), `"status":"error"`) {
		c.logger.Error().Str("response", string(body)).Msg("market data API error")
		return nil, fmt.Errorf("market data API error: %s", string(body))
	}
	return body, nil
}

func parseCandle(datetime, open, high, low, closePrice, volume string) (models.Candle, error) {
	o, err := strconv.ParseFloat(open, 64)
	if err != nil {
		return models.Candle{}, fmt.Errorf("open: %w", err)
	}
	h, err := strconv.ParseFloat(high, 64)
	if err != nil {
		return models.Candle{}, fmt.Errorf("high: %w", err)
	}
	l, err := strconv.ParseFloat(low, 64)
	if err != nil {
		return models.Candle{}, fmt.Errorf("low: %w", err)
	}
	cl, err := strconv.ParseFloat(closePrice, 64)
	if err != nil {
		return models.Candle{}, fmt.Errorf("close: %w", err)
	}
	var vol int64
	if volume != "" {
		vol, _ = strconv.ParseInt(volume, 10, 64)
	}
	return models.Candle{Datetime: datetime, Open: o, High: h, Low: l, Close: cl, Volume: vol}, nil
}
