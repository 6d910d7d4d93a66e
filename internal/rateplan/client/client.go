package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/metering/internal/orgcontext"
	"github.com/smallbiznis/metering/internal/rateplan/domain"
)

// Client fetches rate plans over HTTP from the pricing catalog service.
type Client struct {
	baseURL          string
	httpClient       *http.Client
	maxResponseBytes int64
	log              *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithMaxResponseBytes(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.maxResponseBytes = limit
		}
	}
}

func New(baseURL string, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:          baseURL,
		httpClient:       &http.Client{Timeout: 10 * time.Second},
		maxResponseBytes: 4 << 20,
		log:              log.Named("rateplan.client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves the rate plan by id. On a 5xx from the by-id endpoint it
// makes one fallback call to the list endpoint and filters locally, since a
// 5xx does not distinguish "plan missing" from "plan momentarily
// unreachable".
func (c *Client) Fetch(ctx context.Context, ratePlanID int64) (*domain.RatePlan, error) {
	status, body, err := c.get(ctx, fmt.Sprintf("%s/api/rateplans/%d", c.baseURL, ratePlanID))
	if err != nil {
		c.log.Error("fetch rate plan failed", zap.Int64("rate_plan_id", ratePlanID), zap.Error(err))
		return nil, domain.ErrUnavailable
	}

	switch {
	case status == http.StatusOK:
		var plan domain.RatePlan
		if err := json.Unmarshal(body, &plan); err != nil {
			c.log.Error("decode rate plan failed", zap.Int64("rate_plan_id", ratePlanID), zap.Error(err))
			return nil, domain.ErrUnavailable
		}
		return &plan, nil
	case status == http.StatusNotFound:
		c.log.Warn("rate plan not found", zap.Int64("rate_plan_id", ratePlanID))
		return nil, domain.ErrNotFound
	case status >= 500:
		c.log.Warn("rate plan upstream degraded, falling back to list",
			zap.Int64("rate_plan_id", ratePlanID),
			zap.Int("status", status),
		)
		return c.fetchFromList(ctx, ratePlanID)
	default:
		c.log.Error("unexpected rate plan response",
			zap.Int64("rate_plan_id", ratePlanID),
			zap.Int("status", status),
		)
		return nil, domain.ErrUnavailable
	}
}

func (c *Client) fetchFromList(ctx context.Context, ratePlanID int64) (*domain.RatePlan, error) {
	status, body, err := c.get(ctx, c.baseURL+"/api/rateplans")
	if err != nil || status != http.StatusOK {
		c.log.Error("rate plan list fallback failed",
			zap.Int64("rate_plan_id", ratePlanID),
			zap.Int("status", status),
			zap.Error(err),
		)
		return nil, domain.ErrUnavailable
	}

	var plans []domain.RatePlan
	if err := json.Unmarshal(body, &plans); err != nil {
		return nil, domain.ErrUnavailable
	}
	for i := range plans {
		if plans[i].RatePlanID == ratePlanID {
			return &plans[i], nil
		}
	}
	return nil, domain.ErrUnavailable
}

func (c *Client) get(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}

	if orgID, ok := orgcontext.OrgIDFromContext(ctx); ok {
		req.Header.Set("X-Organization-Id", strconv.FormatInt(orgID, 10))
	}
	if credential := orgcontext.CredentialFromContext(ctx); credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}
