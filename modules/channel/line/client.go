package line

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

const (
	maxRetries     = 3
	initialBackoff = time.Second
)

// Client wraps the Messaging API SDK with status mapping and 429 retries.
type Client struct {
	token   string
	baseURL string
	http    *http.Client

	// backoff is the first 429 wait when no Retry-After header is sent.
	backoff time.Duration
}

// NewClient creates a Messaging API client.
func NewClient(token, baseURL string, timeout time.Duration) *Client {
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		backoff: initialBackoff,
	}
}

// APIError is a non-2xx Messaging API response.
type APIError struct {
	Status  int
	Message string
	err     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("line: HTTP %d: %s", e.Status, e.Message)
}

// Unwrap exposes the sentinel the status maps to.
func (e *APIError) Unwrap() error { return e.err }

// api returns an SDK client bound to ctx. The SDK stores the context on
// the client, so every call gets its own instance over the shared
// transport.
func (c *Client) api(ctx context.Context) (*messaging_api.MessagingApiAPI, error) {
	api, err := messaging_api.NewMessagingApiAPI(c.token,
		messaging_api.WithEndpoint(c.baseURL),
		messaging_api.WithHTTPClient(c.http),
	)
	if err != nil {
		return nil, fmt.Errorf("line: create client: %w", err)
	}
	return api.WithContext(ctx), nil
}

// call runs fn until it succeeds, fails with something other than 429, or
// runs out of attempts. Retry-After is honoured when present.
func (c *Client) call(ctx context.Context, op string, fn func(*messaging_api.MessagingApiAPI) (*http.Response, error)) error {
	api, err := c.api(ctx)
	if err != nil {
		return err
	}

	backoff := c.backoff
	for attempt := range maxRetries {
		res, err := fn(api)
		if res != nil {
			_, _ = io.Copy(io.Discard, res.Body)
			_ = res.Body.Close()
		}
		if err == nil {
			return nil
		}
		if res == nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
		}

		if res.StatusCode == http.StatusTooManyRequests && attempt < maxRetries-1 {
			if secs, err := strconv.Atoi(res.Header.Get("Retry-After")); err == nil && secs > 0 {
				backoff = time.Duration(secs) * time.Second
			}
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
			continue
		}
		return newAPIError(res.StatusCode, err)
	}
	return fmt.Errorf("%w: %s: max retries exceeded", ErrRateLimit, op)
}

func newAPIError(status int, cause error) *APIError {
	apiErr := &APIError{Status: status, Message: cause.Error()}
	switch {
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "reply token"):
		apiErr.err = ErrInvalidReplyToken
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		apiErr.err = ErrUnauthorized
	case status == http.StatusTooManyRequests:
		apiErr.err = ErrRateLimit
	case status >= 500:
		apiErr.err = ErrUnavailable
	}
	return apiErr
}

// Reply sends up to five messages with a single-use reply token.
func (c *Client) Reply(ctx context.Context, req *messaging_api.ReplyMessageRequest) error {
	return c.call(ctx, "reply", func(api *messaging_api.MessagingApiAPI) (*http.Response, error) {
		res, _, err := api.ReplyMessageWithHttpInfo(req)
		return res, err
	})
}

// StartLoading shows the typing animation in a one-to-one chat.
func (c *Client) StartLoading(ctx context.Context, userID string, seconds int) error {
	req := &messaging_api.ShowLoadingAnimationRequest{
		ChatId:         userID,
		LoadingSeconds: int32(seconds),
	}
	return c.call(ctx, "loading", func(api *messaging_api.MessagingApiAPI) (*http.Response, error) {
		res, _, err := api.ShowLoadingAnimationWithHttpInfo(req)
		return res, err
	})
}
