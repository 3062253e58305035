// Package client is a Go client for the booking HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/afiqaffendi/rbs/internal/allocation"
	"github.com/afiqaffendi/rbs/internal/domain"
	"github.com/afiqaffendi/rbs/internal/lifecycle"
	"github.com/afiqaffendi/rbs/internal/models"
)

// Client calls the booking API as one user (bearer token) and/or one machine client (API key).
type Client struct {
	baseURL    string
	token      string
	apiKey     string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithToken returns a copy of c that authenticates with a bearer token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// WithAPIKey returns a copy of c that sends the x-api-key header.
func (c *Client) WithAPIKey(key string) *Client {
	cp := *c
	cp.apiKey = key
	return &cp
}

// UseRedisCache caches restaurant reads. Availability is never cached.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// APIError is a non-2xx response. It unwraps to the matching models sentinel.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Reason     string `json:"reason"`
	Retryable  bool   `json:"retryable"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return models.ErrValidation
	case http.StatusUnprocessableEntity:
		return models.ErrConfiguration
	case http.StatusNotFound:
		return models.ErrNotFound
	case http.StatusForbidden:
		return models.ErrForbidden
	case http.StatusTooManyRequests:
		return models.ErrRateLimited
	case http.StatusConflict:
		switch {
		case e.Reason == allocation.ReasonNoSuitableTable:
			return models.ErrNoSuitableTable
		case e.Retryable:
			return models.ErrConcurrencyConflict
		default:
			return models.ErrInvalidTransition
		}
	}
	return nil
}

func (c *Client) GetRestaurant(ctx context.Context, id int64) (*models.Restaurant, error) {
	cacheKey := fmt.Sprintf("client:restaurant:%d", id)
	var r models.Restaurant
	if c.readCache(ctx, cacheKey, &r) {
		return &r, nil
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/restaurants/%d", id), nil, &r); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, r)
	return &r, nil
}

func (c *Client) SlotAvailability(ctx context.Context, restaurantID int64, date string, pax int) ([]models.SlotAvailability, error) {
	q := url.Values{"date": {date}, "pax": {strconv.Itoa(pax)}}
	var wrap struct {
		Slots []models.SlotAvailability `json:"slots"`
	}
	path := fmt.Sprintf("/api/v1/restaurants/%d/slots?%s", restaurantID, q.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, &wrap); err != nil {
		return nil, err
	}
	return wrap.Slots, nil
}

func (c *Client) CheckAvailability(ctx context.Context, restaurantID int64, date, slot string, pax int) (*allocation.Result, error) {
	q := url.Values{"date": {date}, "slot": {slot}, "pax": {strconv.Itoa(pax)}}
	var res allocation.Result
	path := fmt.Sprintf("/api/v1/restaurants/%d/availability?%s", restaurantID, q.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) CreateBooking(ctx context.Context, req domain.CreateBookingRequest) (*models.Booking, error) {
	var b models.Booking
	if err := c.do(ctx, http.MethodPost, "/api/v1/bookings", req, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) CancelBooking(ctx context.Context, id int64) (*models.Booking, error) {
	var b models.Booking
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/cancel", id), nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// SendPaymentEvent posts a gateway verdict. It needs an API key with the payments:callback permission.
func (c *Client) SendPaymentEvent(ctx context.Context, ev lifecycle.PaymentEvent) (*models.Booking, error) {
	var b models.Booking
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments/callback", ev, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
