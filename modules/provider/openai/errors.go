package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/flemzord/seline/internal/provider"
)

var errAuth = errors.New("openai: credentials rejected")

// Error codes returned in the "code" field of OpenAI and Azure OpenAI
// error bodies.
const (
	codeContextLength = "context_length_exceeded"
	codeQuota         = "insufficient_quota"
	codeContentFilter = "content_filter"
)

// mapHTTPError turns a non-2xx response into one of the provider sentinels.
// The error code in the body wins over the status code.
func mapHTTPError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	code := apiErr.Error.Code
	if code == "" && strings.Contains(strings.ToLower(msg), codeContextLength) {
		code = codeContextLength
	}

	var sentinel error
	switch {
	case code == codeContextLength:
		sentinel = provider.ErrContextLength
	case code == codeContentFilter:
		sentinel = provider.ErrContentFiltered
	case code == codeQuota:
		// A drained quota does not recover on retry; the next provider may.
		sentinel = provider.ErrProviderDown
	case status == http.StatusTooManyRequests:
		sentinel = provider.ErrRateLimit
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		sentinel = errAuth
	case status >= http.StatusInternalServerError:
		sentinel = provider.ErrProviderDown
	default:
		return fmt.Errorf("openai: status %d: %s", status, msg)
	}
	return fmt.Errorf("%w (status %d): %s", sentinel, status, msg)
}

// mapConnectionError classifies transport failures. Cancellation is
// returned as is so callers can tell it apart from an outage.
func mapConnectionError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	return fmt.Errorf("openai: %w", err)
}
