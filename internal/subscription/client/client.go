package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/metering/internal/orgcontext"
	"github.com/smallbiznis/metering/internal/subscription/domain"
)

// Client fetches subscriptions over HTTP from the subscription service.
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
		log:              log.Named("subscription.client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Get(ctx context.Context, subscriptionID int64) (*domain.Subscription, error) {
	status, body, err := c.get(ctx, fmt.Sprintf("%s/api/subscriptions/%d", c.baseURL, subscriptionID))
	if err != nil {
		c.log.Error("fetch subscription failed", zap.Int64("subscription_id", subscriptionID), zap.Error(err))
		return nil, domain.ErrUnavailable
	}

	switch {
	case status == http.StatusOK:
		var sub domain.Subscription
		if err := json.Unmarshal(body, &sub); err != nil {
			c.log.Error("decode subscription failed", zap.Int64("subscription_id", subscriptionID), zap.Error(err))
			return nil, domain.ErrUnavailable
		}
		return &sub, nil
	case status == http.StatusNotFound:
		return nil, domain.ErrNotFound
	default:
		c.log.Error("unexpected subscription response",
			zap.Int64("subscription_id", subscriptionID),
			zap.Int("status", status),
		)
		return nil, domain.ErrUnavailable
	}
}

func (c *Client) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	orgID, err := orgcontext.RequireOrgID(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("organizationId", strconv.FormatInt(orgID, 10))
	query.Set("status", domain.StatusActive)

	status, body, err := c.get(ctx, c.baseURL+"/api/subscriptions?"+query.Encode())
	if err != nil || status != http.StatusOK {
		c.log.Warn("list active subscriptions failed, treating as empty",
			zap.Int64("org_id", orgID),
			zap.Int("status", status),
			zap.Error(err),
		)
		return []domain.Subscription{}, nil
	}

	var subs []domain.Subscription
	if err := json.Unmarshal(body, &subs); err != nil {
		c.log.Warn("decode subscriptions failed, treating as empty",
			zap.Int64("org_id", orgID),
			zap.Error(err),
		)
		return []domain.Subscription{}, nil
	}
	return subs, nil
}

func (c *Client) get(ctx context.Context, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
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
