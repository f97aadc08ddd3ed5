package line

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flemzord/seline/internal/pipeline"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"golang.org/x/time/rate"
)

const loadingTimeout = 5 * time.Second

// Notifier delivers pipeline replies through the reply endpoint and shows
// the loading animation while a burst is being debounced.
type Notifier struct {
	client         *Client
	quickReply     *messaging_api.QuickReply
	maxLen         int
	loadingSeconds int
	limiter        *rate.Limiter
	logger         *slog.Logger
}

// NewNotifier creates a Notifier. Every reply carries one quick reply
// button per FAQ entry.
func NewNotifier(client *Client, cfg Config, faq []pipeline.FAQEntry, logger *slog.Logger) *Notifier {
	cfg.Defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client:         client,
		quickReply:     buildQuickReply(faq),
		maxLen:         cfg.MaxMessageLength,
		loadingSeconds: cfg.LoadingSeconds,
		limiter:        rate.NewLimiter(rate.Limit(cfg.LoadingQPS), max(1, int(cfg.LoadingQPS))),
		logger:         logger,
	}
}

func buildQuickReply(faq []pipeline.FAQEntry) *messaging_api.QuickReply {
	if len(faq) == 0 {
		return nil
	}
	if len(faq) > maxQuickReplyItems {
		faq = faq[:maxQuickReplyItems]
	}
	qr := &messaging_api.QuickReply{Items: make([]messaging_api.QuickReplyItem, 0, len(faq))}
	for _, e := range faq {
		qr.Items = append(qr.Items, messaging_api.QuickReplyItem{
			ImageUrl: e.ImageURL,
			Action: &messaging_api.MessageAction{
				Label: truncateRunes(e.Question, maxQuickReplyLabel),
				Text:  e.Question,
			},
		})
	}
	return qr
}

// Reply implements pipeline.Notifier. Long texts are split into several
// messages; the quick reply bar is attached to the last one.
func (n *Notifier) Reply(ctx context.Context, handle, text string) error {
	if handle == "" {
		return ErrInvalidReplyToken
	}

	chunks := splitText(text, n.maxLen)
	if len(chunks) == 0 || (len(chunks) == 1 && strings.TrimSpace(chunks[0]) == "") {
		return ErrEmptyMessage
	}
	if len(chunks) > maxMessagesPerReply {
		n.logger.Warn("line: reply truncated", "chunks", len(chunks), "max", maxMessagesPerReply)
		chunks = chunks[:maxMessagesPerReply]
	}

	msgs := make([]messaging_api.MessageInterface, len(chunks))
	for i, c := range chunks {
		msg := &messaging_api.TextMessage{Text: c}
		if i == len(chunks)-1 {
			msg.QuickReply = n.quickReply
		}
		msgs[i] = msg
	}

	err := n.client.Reply(ctx, &messaging_api.ReplyMessageRequest{ReplyToken: handle, Messages: msgs})
	if err != nil {
		return fmt.Errorf("line: reply: %w", err)
	}
	n.logger.Debug("line: reply sent", "messages", len(msgs))
	return nil
}

// StartLoading shows the loading animation to userID.
func (n *Notifier) StartLoading(ctx context.Context, userID string) error {
	if n.loadingSeconds <= 0 {
		return nil
	}
	if !n.limiter.Allow() {
		return ErrRateLimit
	}
	return n.client.StartLoading(ctx, userID, n.loadingSeconds)
}

// OnBurstStart is the router hook fired when a user's buffer goes from
// empty to pending. Failures are logged and otherwise ignored.
func (n *Notifier) OnBurstStart(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), loadingTimeout)
	defer cancel()

	if err := n.StartLoading(ctx, userID); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, ErrRateLimit) {
			level = slog.LevelDebug
		}
		n.logger.Log(ctx, level, "line: loading indicator failed", "user", userID, "error", err)
	}
}

var _ pipeline.Notifier = (*Notifier)(nil)
