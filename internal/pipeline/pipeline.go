// Package pipeline implements the routing state machine that turns one
// coalesced batch into exactly one reply and its persisted history.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/flemzord/seline/internal/conversation"
	"github.com/flemzord/seline/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Defaults for the fixed replies and retrieval parameters.
const (
	DefaultResetSentinel      = "CHAT RESET"
	DefaultResetReply         = "แชทของคุณถูกรีเซ็ตเรียบร้อยแล้ว"
	DefaultFallbackReply      = "ขออภัย ระบบขัดข้องชั่วคราว กรุณาลองใหม่อีกครั้งในภายหลัง"
	DefaultAnswerFailureReply = "ขออภัย ขณะนี้ไม่สามารถตอบคำถามของคุณได้ กรุณาลองใหม่อีกครั้ง"

	defaultPersistTimeout = 10 * time.Second
	tracerName            = "github.com/flemzord/seline/internal/pipeline"
)

// Sentinel errors returned by NewOrchestrator.
var (
	ErrNoClassifier = errors.New("pipeline: no classifier configured")
	ErrNoRetriever  = errors.New("pipeline: no retriever configured")
	ErrNoAnswerer   = errors.New("pipeline: no answerer configured")
	ErrNoNotifier   = errors.New("pipeline: no notifier configured")
	ErrNoStore      = errors.New("pipeline: no conversation store configured")
	ErrNoState      = errors.New("pipeline: no state reader configured")
)

// Classifier maps a query and its history to a raw route label.
type Classifier interface {
	Decide(ctx context.Context, query, history string) (string, error)
}

// SearchRequest describes one retrieval.
type SearchRequest struct {
	Query         string
	TopK          int
	Skip          int
	ServiceScoped bool
}

// Retriever returns a context blob for a query. An empty string is a
// valid "no results" response.
type Retriever interface {
	Search(ctx context.Context, req SearchRequest) (string, error)
}

// Condenser rewrites a follow-up into a self-contained retrieval query.
type Condenser interface {
	Condense(ctx context.Context, query, priorUserTurn string) (string, error)
}

// AnswerRequest is the input of one answer generation. An empty History
// means no history is given.
type AnswerRequest struct {
	Query   string
	Context string
	History string
}

// Answerer generates the final answer text.
type Answerer interface {
	Generate(ctx context.Context, req AnswerRequest) (string, error)
}

// Notifier delivers a reply through a single-use reply handle.
type Notifier interface {
	Reply(ctx context.Context, handle, text string) error
}

// StateReader derives the conversation state of a user.
type StateReader interface {
	State(ctx context.Context, userID string) (conversation.State, error)
}

// RetrievalParams are the paging parameters of one route.
type RetrievalParams struct {
	TopK int
	Skip int
}

// Config configures an Orchestrator.
type Config struct {
	ResetSentinel      string
	ResetReply         string
	FallbackReply      string
	AnswerFailureReply string
	FAQ                FAQ

	Service RetrievalParams
	Product RetrievalParams
	More    RetrievalParams

	// ClassifyWithHistory passes the conversation history to the
	// classifier, which requires reading state before classifying. When
	// false the two run concurrently and the classifier gets no history.
	ClassifyWithHistory bool

	// SpeculativeRetrieval starts the service, product and next-page
	// searches while classification runs; only the matching one is used.
	SpeculativeRetrieval bool

	Classifier Classifier
	Retriever  Retriever
	Condenser  Condenser
	Answerer   Answerer
	Notifier   Notifier
	State      StateReader
	Store      conversation.Store

	Location       *time.Location
	PersistTimeout time.Duration
	Now            func() time.Time
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Tracer         trace.Tracer
}

func (c Config) withDefaults() Config {
	if c.ResetSentinel == "" {
		c.ResetSentinel = DefaultResetSentinel
	}
	if c.ResetReply == "" {
		c.ResetReply = DefaultResetReply
	}
	if c.FallbackReply == "" {
		c.FallbackReply = DefaultFallbackReply
	}
	if c.AnswerFailureReply == "" {
		c.AnswerFailureReply = DefaultAnswerFailureReply
	}
	if c.Service.TopK <= 0 {
		c.Service.TopK = 3
	}
	if c.Product.TopK <= 0 {
		c.Product.TopK = 7
	}
	if c.More.TopK <= 0 {
		c.More = RetrievalParams{TopK: c.Product.TopK, Skip: c.Product.TopK}
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = defaultPersistTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer(tracerName)
	}
	return c
}

func (c Config) validate() error {
	var errs []error
	if c.Classifier == nil {
		errs = append(errs, ErrNoClassifier)
	}
	if c.Retriever == nil {
		errs = append(errs, ErrNoRetriever)
	}
	if c.Answerer == nil {
		errs = append(errs, ErrNoAnswerer)
	}
	if c.Notifier == nil {
		errs = append(errs, ErrNoNotifier)
	}
	if c.Store == nil {
		errs = append(errs, ErrNoStore)
	}
	if c.State == nil {
		errs = append(errs, ErrNoState)
	}
	return errors.Join(errs...)
}
