// Package upstream fetches the current Cup of the Day map from the rotation
// and tagging services and merges them into a single record.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jaxron/axonet/middleware/circuitbreaker"
	"github.com/jaxron/axonet/middleware/retry"
	"github.com/jaxron/axonet/middleware/singleflight"
	"github.com/jaxron/axonet/pkg/client"
	"github.com/jaxron/axonet/pkg/client/middleware"
	"github.com/robalyx/cotd/internal/setup/config"
	"github.com/robalyx/cotd/internal/setup/telemetry/logger"
	"github.com/robalyx/cotd/internal/style"
	"go.uber.org/zap"
)

// Map is the merged view of the current map from both services.
type Map struct {
	UID          string
	Date         time.Time
	Name         string
	Author       string
	AuthorTime   float64
	Tags         []string
	TagIDs       []int
	ThumbnailURL string
}

// rotationResponse is the subset of the rotation service payload we read.
type rotationResponse struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Days  []struct {
		MonthDay int `json:"monthday"`
		Map      *struct {
			UID          string  `json:"mapUid"`
			Name         string  `json:"name"`
			AuthorScore  float64 `json:"authorScore"`
			ThumbnailURL string  `json:"thumbnailUrl"`
			AuthorPlayer struct {
				Name string `json:"name"`
			} `json:"authorplayer"`
		} `json:"map"`
	} `json:"days"`
}

// taggingResponse is the subset of the tagging service payload we read.
type taggingResponse struct {
	Tags string `json:"Tags"` //nolint:tagliatelle // upstream uses PascalCase
}

// Options configures the upstream client.
type Options struct {
	Upstream       *config.Upstream
	EnvName        string
	CircuitBreaker config.CircuitBreaker
	Retry          config.Retry
}

// Client fetches and normalizes the current map.
type Client struct {
	http        *client.Client
	vocab       *style.Vocabulary
	rotationURL string
	taggingURL  string
	userAgent   string
	logger      *zap.Logger
}

// NewClient builds an upstream client with the configured middleware chain.
// Middlewares with a zero configuration are left out. Both services describe
// the current state, so responses are never cached.
func NewClient(opts Options, vocab *style.Vocabulary, zapLogger *zap.Logger) *Client {
	zapLogger = zapLogger.Named("upstream")
	cfg := opts.Upstream

	timeout := time.Duration(cfg.RequestTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	// Build middleware chain - order matters!
	var middlewares []middleware.Middleware
	if opts.CircuitBreaker.MaxRequests > 0 {
		middlewares = append(middlewares, circuitbreaker.New(
			opts.CircuitBreaker.MaxRequests,
			time.Duration(opts.CircuitBreaker.Interval)*time.Millisecond,
			time.Duration(opts.CircuitBreaker.Timeout)*time.Millisecond,
		))
	}

	if opts.Retry.MaxRetries > 0 {
		middlewares = append(middlewares, retry.New(
			opts.Retry.MaxRetries,
			time.Duration(opts.Retry.Delay)*time.Millisecond,
			time.Duration(opts.Retry.MaxDelay)*time.Millisecond,
		))
	}

	middlewares = append(middlewares, singleflight.New())

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "robalyx-cotd-bot"
	}

	if opts.EnvName != "" {
		userAgent += "-" + opts.EnvName
	}

	return &Client{
		http: client.NewClient(
			client.WithMarshalFunc(sonic.Marshal),
			client.WithUnmarshalFunc(sonic.Unmarshal),
			client.WithLogger(logger.New(zapLogger)),
			client.WithTimeout(timeout),
			client.WithMiddleware(middlewares...),
		),
		vocab:       vocab,
		rotationURL: cfg.RotationURL,
		taggingURL:  cfg.TaggingURL,
		userAgent:   userAgent,
		logger:      zapLogger,
	}
}

// FetchCurrentMap returns today's map merged with its style tags.
func (c *Client) FetchCurrentMap(ctx context.Context) (*Map, error) {
	rotation, err := c.fetchRotation(ctx)
	if err != nil {
		return nil, err
	}

	// The rotation lists the current month up to and including today
	day := rotation.Days[len(rotation.Days)-1]
	if day.Map == nil || day.Map.UID == "" {
		return nil, fmt.Errorf("%w: latest rotation entry has no map", ErrNotYetIndexed)
	}

	monthDay := day.MonthDay
	if monthDay == 0 {
		monthDay = len(rotation.Days)
	}

	date := time.Date(rotation.Year, time.Month(rotation.Month), monthDay, 0, 0, 0, 0, time.UTC)

	tagIDs, err := c.fetchTagCodes(ctx, day.Map.UID)
	if err != nil {
		return nil, err
	}

	tags, err := c.vocab.Resolve(tagIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tags: %w (uid=%s)", err, day.Map.UID)
	}

	m := &Map{
		UID:          day.Map.UID,
		Date:         date,
		Name:         SanitizeName(day.Map.Name),
		Author:       day.Map.AuthorPlayer.Name,
		AuthorTime:   day.Map.AuthorScore / 1000,
		Tags:         tags,
		TagIDs:       tagIDs,
		ThumbnailURL: day.Map.ThumbnailURL,
	}

	c.logger.Info("Fetched current map",
		zap.String("uid", m.UID),
		zap.String("date", m.Date.Format(time.DateOnly)),
		zap.String("name", m.Name),
		zap.String("author", m.Author),
		zap.Float64("authorTime", m.AuthorTime),
		zap.Strings("tags", m.Tags))

	return m, nil
}

// fetchRotation requests the current month of the rotation.
func (c *Client) fetchRotation(ctx context.Context) (*rotationResponse, error) {
	body, status, err := c.get(ctx, c.rotationURL)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: rotation service returned status %d", ErrUpstreamUnavailable, status)
	}

	var rotation rotationResponse
	if err := sonic.Unmarshal(body, &rotation); err != nil {
		return nil, fmt.Errorf("%w: invalid rotation response: %w", ErrUpstreamUnavailable, err)
	}

	if len(rotation.Days) == 0 {
		return nil, fmt.Errorf("%w: rotation response has no days", ErrUpstreamUnavailable)
	}

	return &rotation, nil
}

// fetchTagCodes requests the comma-separated tag codes for a map.
// Unindexed maps come back as an error body or no tags at all.
func (c *Client) fetchTagCodes(ctx context.Context, uid string) ([]int, error) {
	body, status, err := c.get(ctx, c.taggingURL+uid)
	if err != nil {
		return nil, err
	}

	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: uid=%s", ErrNotYetIndexed, uid)
	}

	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: tagging service returned status %d", ErrUpstreamUnavailable, status)
	}

	var tagging taggingResponse
	if err := sonic.Unmarshal(body, &tagging); err != nil {
		c.logger.Info("Tagging service returned a non-JSON body",
			zap.String("uid", uid),
			zap.Int("size", len(body)))

		return nil, fmt.Errorf("%w: uid=%s", ErrNotYetIndexed, uid)
	}

	if strings.TrimSpace(tagging.Tags) == "" {
		return nil, fmt.Errorf("%w: no tags for uid=%s", ErrNotYetIndexed, uid)
	}

	parts := strings.Split(tagging.Tags, ",")
	codes := make([]int, 0, len(parts))

	for _, part := range parts {
		code, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid tag code %q (uid=%s)", style.ErrUnknownStyleCode, part, uid)
		}

		codes = append(codes, code)
	}

	return codes, nil
}

// get performs a GET request and returns the body and status code.
func (c *Client) get(ctx context.Context, url string) ([]byte, int, error) {
	resp, err := c.http.NewRequest().
		Method(http.MethodGet).
		URL(url).
		Header("User-Agent", c.userAgent).
		Do(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, 0, err
		}

		return nil, 0, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to read response: %w", ErrUpstreamUnavailable, err)
	}

	return body, resp.StatusCode, nil
}
