// Package line implements the LINE Messaging API channel: the webhook
// receiver that feeds the router and the reply client used as the
// pipeline's notifier.
package line

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Sentinel errors mapped from Messaging API responses.
var (
	// ErrInvalidReplyToken is returned when the reply token was already used
	// or has expired. Reply tokens are single use.
	ErrInvalidReplyToken = errors.New("line: invalid reply token")
	ErrEmptyMessage      = errors.New("line: empty message text")
	ErrUnauthorized      = errors.New("line: unauthorized")
	ErrRateLimit         = errors.New("line: rate limited")
	ErrUnavailable       = errors.New("line: service unavailable")
)

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUnavailable)
}

// Messaging API limits.
const (
	maxTextLength        = 5000
	maxMessagesPerReply  = 5
	maxQuickReplyItems   = 13
	maxQuickReplyLabel   = 20
	minLoadingSeconds    = 5
	maxLoadingSeconds    = 60
	defaultAPIURL        = "https://api.line.me"
	defaultLoadingSecond = 30
)

// Config holds the LINE channel configuration.
type Config struct {
	ChannelSecret string `yaml:"channel_secret"`
	AccessToken   string `yaml:"access_token"`
	APIURL        string `yaml:"api_url"`

	// LoadingSeconds is how long the typing animation is shown when a
	// burst starts. A negative value disables the indicator.
	LoadingSeconds int `yaml:"loading_seconds"`

	// LoadingQPS caps loading indicator calls across all users.
	LoadingQPS float64 `yaml:"loading_qps"`

	MaxMessageLength int           `yaml:"max_message_length"`
	Timeout          time.Duration `yaml:"timeout"`
}

// Defaults applies default values to unset fields.
func (c *Config) Defaults() {
	if c.APIURL == "" {
		c.APIURL = defaultAPIURL
	}
	if c.LoadingSeconds == 0 {
		c.LoadingSeconds = defaultLoadingSecond
	}
	if c.LoadingQPS <= 0 {
		c.LoadingQPS = 20
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = maxTextLength
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
}

// Validate checks field constraints. It expects Defaults to have run.
func (c Config) Validate() error {
	var errs []error
	if c.ChannelSecret == "" {
		errs = append(errs, errors.New("line: channel_secret is required"))
	}
	if c.AccessToken == "" {
		errs = append(errs, errors.New("line: access_token is required"))
	}
	if u, err := url.Parse(c.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("line: api_url must be a valid http/https URL, got %q", c.APIURL))
	}
	if c.LoadingSeconds > 0 &&
		(c.LoadingSeconds < minLoadingSeconds || c.LoadingSeconds > maxLoadingSeconds || c.LoadingSeconds%5 != 0) {
		errs = append(errs, fmt.Errorf("line: loading_seconds must be a multiple of 5 in 5-60, got %d", c.LoadingSeconds))
	}
	if c.MaxMessageLength > maxTextLength {
		errs = append(errs, fmt.Errorf("line: max_message_length must be at most %d, got %d", maxTextLength, c.MaxMessageLength))
	}
	return errors.Join(errs...)
}
