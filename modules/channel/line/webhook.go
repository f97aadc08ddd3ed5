package line

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/flemzord/seline/internal/gateway"
	"github.com/flemzord/seline/internal/router"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the request body.
const SignatureHeader = "X-Line-Signature"

// Verifier returns the gateway verifier for webhooks signed with secret.
// A body that is correctly signed but not valid JSON passes here and is
// rejected by the receiver.
func Verifier(secret string) gateway.Verifier {
	return func(body []byte, headers http.Header) bool {
		if secret == "" {
			return false
		}
		req, err := http.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
		if err != nil {
			return false
		}
		req.Header.Set(SignatureHeader, headers.Get(SignatureHeader))
		_, err = webhook.ParseRequest(secret, req)
		return !errors.Is(err, webhook.ErrInvalidSignature)
	}
}

// WebhookReceiver turns text messages from users into router fragments.
// It implements gateway.WebhookHandler; signatures are checked by the
// dispatcher through Verifier.
type WebhookReceiver struct {
	submit func(router.Fragment) error
	logger *slog.Logger
}

// NewWebhookReceiver creates a WebhookReceiver that feeds submit.
func NewWebhookReceiver(submit func(router.Fragment) error, logger *slog.Logger) *WebhookReceiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookReceiver{submit: submit, logger: logger}
}

// HandleWebhook implements gateway.WebhookHandler. Events other than
// active text messages from a user are acknowledged and dropped. Submit
// failures are logged; the caller always gets a success unless the
// payload is malformed.
func (w *WebhookReceiver) HandleWebhook(_ context.Context, _ string, body []byte, _ http.Header) error {
	var cb webhook.CallbackRequest
	if err := json.Unmarshal(body, &cb); err != nil {
		return fmt.Errorf("%w: line: invalid callback JSON: %w", gateway.ErrBadPayload, err)
	}

	for _, ev := range cb.Events {
		f, ok := toFragment(ev)
		if !ok {
			w.logger.Debug("line: event ignored", "type", ev.GetType())
			continue
		}
		if err := w.submit(f); err != nil {
			w.logger.Warn("line: fragment not accepted", "user", f.UserID, "error", err)
		}
	}
	return nil
}

func toFragment(ev webhook.EventInterface) (router.Fragment, bool) {
	msg, ok := ev.(webhook.MessageEvent)
	if !ok {
		return router.Fragment{}, false
	}
	if msg.Mode != "" && msg.Mode != "active" {
		return router.Fragment{}, false
	}
	text, ok := msg.Message.(webhook.TextMessageContent)
	if !ok || text.Text == "" {
		return router.Fragment{}, false
	}
	user, ok := msg.Source.(webhook.UserSource)
	if !ok || user.UserId == "" {
		return router.Fragment{}, false
	}
	return router.Fragment{
		UserID:      user.UserId,
		Text:        text.Text,
		ReplyHandle: msg.ReplyToken,
	}, true
}

var _ gateway.WebhookHandler = (*WebhookReceiver)(nil)
