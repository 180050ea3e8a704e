package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// MaxPageSize is the upstream API's hard limit per request.
	MaxPageSize = 100

	defaultMaxRetries    = 3
	defaultRateLimitWait = 60 * time.Second
	maxRateLimitWait     = 5 * time.Minute
	maxBackoff           = 30 * time.Second
)

// Client talks to the upstream message-group API. One instance is shared by
// both sync drivers so the underlying HTTP connections get reused.
type Client struct {
	httpClient *http.Client
	baseUrl    string
	token      string
	groupID    int64
	userAgent  string
	maxRetries int
}

func NewClient(httpClient *http.Client, baseUrl, token string, groupID int64, userAgent string) *Client {
	return &Client{
		httpClient: httpClient,
		baseUrl:    baseUrl,
		token:      token,
		groupID:    groupID,
		userAgent:  userAgent,
		maxRetries: defaultMaxRetries,
	}
}

// FetchPage requests one page of messages. pageToken is nil on the first
// call; limit is clamped to MaxPageSize. Transient failures are retried with
// exponential backoff, 429 responses are absorbed by sleeping out the
// Retry-After hint, and 4xx responses fail immediately with ErrConfig.
func (c *Client) FetchPage(ctx context.Context, direction Direction, pageToken *int64, limit int) (*Page, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	params := url.Values{}
	params.Set("group_id", strconv.FormatInt(c.groupID, 10))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sort_dir", string(direction))
	params.Set("sort_field", "id")
	if pageToken != nil {
		params.Set("page_token", strconv.FormatInt(*pageToken, 10))
	}

	requestUrl := c.baseUrl + "/getmessages?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoffDelay(attempt)); err != nil {
				return nil, err
			}
		}

		page, retryable, err := c.doRequest(ctx, requestUrl)
		if err == nil {
			return page, nil
		}
		if !retryable {
			return nil, err
		}

		lastErr = err
		slog.Warn("Source request failed, will retry",
			"attempt", attempt+1, "max_retries", c.maxRetries, "error", err)
	}

	if rateErr, ok := lastErr.(*RateLimitError); ok {
		return nil, rateErr
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// doRequest performs a single request. The second return value reports
// whether the failure is worth retrying.
func (c *Client) doRequest(ctx context.Context, requestUrl string) (*Page, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestUrl, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := retryAfterHint(resp)
		slog.Warn("Source rate limited, cooling down", "retry_after", wait.String())
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, false, err
		}
		return nil, true, &RateLimitError{RetryAfter: wait}

	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)

	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("%w: %d %s: %s", ErrConfig, resp.StatusCode, resp.Status, body)
	}

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, true, fmt.Errorf("failed to decode response: %w", err)
	}

	return &Page{
		Records:       decoded.Data,
		NextPageToken: decoded.NextPageToken,
		HasMore:       decoded.HasMore,
		TotalCount:    decoded.TotalCount,
	}, false, nil
}

func retryAfterHint(resp *http.Response) time.Duration {
	wait := defaultRateLimitWait
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			wait = time.Duration(seconds) * time.Second
		}
	}
	if wait > maxRateLimitWait {
		wait = maxRateLimitWait
	}
	return wait
}

func backoffDelay(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt-1)) * time.Second
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
