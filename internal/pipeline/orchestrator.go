package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/flemzord/seline/internal/conversation"
	"github.com/flemzord/seline/internal/route"
	"github.com/flemzord/seline/internal/router"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Path identifies which branch of the state machine a run took.
type Path string

// Paths.
const (
	PathSkipped Path = "skipped"
	PathReset   Path = "reset"
	PathFAQ     Path = "faq"
	PathRouted  Path = "routed"
)

// Request is one coalesced batch.
type Request struct {
	BatchID     string
	UserID      string
	Query       string
	ReplyHandle string
}

// Result describes the outcome of one run.
type Result struct {
	Path         Path
	Classified   route.Route
	Resolved     route.Route
	Answer       string
	Delivered    bool
	UsedFallback bool
	Persisted    int
}

// Orchestrator runs the routing state machine for one batch at a time.
// It is safe for concurrent use across users.
type Orchestrator struct {
	cfg Config
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{cfg: cfg}, nil
}

var _ router.BatchHandler = (*Orchestrator)(nil)

// HandleBatch implements router.BatchHandler.
func (o *Orchestrator) HandleBatch(ctx context.Context, b router.Batch) {
	o.Run(ctx, Request{
		BatchID:     b.ID,
		UserID:      b.UserID,
		Query:       b.Query(),
		ReplyHandle: b.ReplyHandle,
	})
}

// Run processes one request. It never returns an error: collaborator
// failures degrade the answer, and delivery or persistence failures are
// logged and reported in the Result.
func (o *Orchestrator) Run(ctx context.Context, req Request) Result {
	start := o.cfg.Now()
	logger := o.cfg.Logger.With("user", req.UserID, "batch", req.BatchID)

	ctx, span := o.cfg.Tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("batch.id", req.BatchID),
	))
	defer span.End()

	res := o.run(ctx, req, logger)

	span.SetAttributes(
		attribute.String("pipeline.path", string(res.Path)),
		attribute.String("route.classified", string(res.Classified)),
		attribute.String("route.resolved", string(res.Resolved)),
		attribute.Bool("reply.delivered", res.Delivered),
	)
	if !res.Delivered && res.Path != PathSkipped {
		span.SetStatus(codes.Error, "reply not delivered")
	}
	o.cfg.Metrics.ObservePipeline(o.cfg.Now().Sub(start))
	return res
}

func (o *Orchestrator) run(ctx context.Context, req Request, logger *slog.Logger) Result {
	// Step 1: Contract checks. An empty query or a missing handle is a no-op.
	if strings.TrimSpace(req.Query) == "" {
		logger.Warn("pipeline: empty query, nothing to do")
		return Result{Path: PathSkipped}
	}
	if req.ReplyHandle == "" {
		logger.Warn("pipeline: missing reply handle, nothing to do")
		return Result{Path: PathSkipped}
	}

	// Step 2: Reset sentinel clears history and confirms. No turns are stored.
	if req.Query == o.cfg.ResetSentinel {
		if err := o.cfg.Store.Clear(ctx, req.UserID); err != nil {
			logger.Error("pipeline: clearing history failed", "error", err)
		}
		delivered, fallback := o.deliver(ctx, req, o.cfg.ResetReply)
		logger.Info("pipeline: conversation reset", "delivered", delivered)
		return Result{
			Path:         PathReset,
			Classified:   route.Reset,
			Resolved:     route.Reset,
			Answer:       o.cfg.ResetReply,
			Delivered:    delivered,
			UsedFallback: fallback,
		}
	}

	// Step 3: FAQ short-circuit.
	if answer, ok := o.cfg.FAQ.Lookup(req.Query); ok {
		logger.Info("pipeline: faq answered")
		res := Result{Path: PathFAQ, Classified: route.OffTopic, Resolved: route.OffTopic, Answer: answer}
		res.Delivered, res.UsedFallback = o.deliver(ctx, req, answer)
		res.Persisted = o.persist(ctx, req, o.deliveredText(res, answer), route.OffTopic)
		o.cfg.Metrics.Route(string(res.Classified), string(res.Resolved))
		return res
	}

	// Step 4: Speculative retrieval for the candidate routes.
	var spec *speculation
	if o.cfg.SpeculativeRetrieval {
		spec = o.speculate(ctx, req.Query)
		defer spec.discard()
	}

	// Step 5: Conversation state and classification.
	state, classified := o.stateAndClassify(ctx, req, logger)
	logger.Info("pipeline: classified",
		"route", string(classified),
		"latest_route", string(state.LatestRoute),
	)

	// Step 6: Resolve context, turning meta-routes into concrete ones.
	resolved, contextText, history := o.resolve(ctx, req, classified, state, spec, logger)

	// Step 7: Answer.
	answer := o.answer(ctx, req.Query, contextText, history, logger)

	// Step 8: Deliver, then persist both turns.
	res := Result{Path: PathRouted, Classified: classified, Resolved: resolved, Answer: answer}
	res.Delivered, res.UsedFallback = o.deliver(ctx, req, answer)
	res.Persisted = o.persist(ctx, req, o.deliveredText(res, answer), resolved)

	o.cfg.Metrics.Route(string(classified), string(resolved))
	logger.Info("pipeline: completed",
		"classified", string(classified),
		"resolved", string(resolved),
		"context_chars", len(contextText),
		"delivered", res.Delivered,
		"fallback", res.UsedFallback,
		"persisted", res.Persisted,
	)
	return res
}

// stateAndClassify reads the conversation state and classifies the query.
// Failures degrade: an unreadable state is empty and a failed or unknown
// classification is OFF_TOPIC.
func (o *Orchestrator) stateAndClassify(ctx context.Context, req Request, logger *slog.Logger) (conversation.State, route.Route) {
	var (
		state conversation.State
		label string
	)

	readState := func() {
		st, err := o.cfg.State.State(ctx, req.UserID)
		if err != nil {
			logger.Warn("pipeline: reading conversation state failed", "error", err)
			o.cfg.Metrics.Degraded("state")
			return
		}
		state = st
	}
	classify := func(history string) {
		ctx, span := o.cfg.Tracer.Start(ctx, "pipeline.classify")
		defer span.End()
		l, err := o.cfg.Classifier.Decide(ctx, req.Query, history)
		if err != nil {
			span.RecordError(err)
			logger.Warn("pipeline: classification failed, using OFF_TOPIC", "error", err)
			o.cfg.Metrics.Degraded("classify")
			return
		}
		label = l
	}

	if o.cfg.ClassifyWithHistory {
		readState()
		classify(state.SummarizedHistory)
	} else {
		var g errgroup.Group
		g.Go(func() error { readState(); return nil })
		g.Go(func() error { classify(""); return nil })
		_ = g.Wait()
	}

	classified := route.Classification(label)
	if label != "" {
		if r, ok := route.Parse(label); !ok || r == route.Reset {
			logger.Warn("pipeline: unexpected classifier label, using OFF_TOPIC", "label", label)
		}
	}
	return state, classified
}

// resolve picks the context for the classified route. It returns the
// persisted route, the context blob, and the history to give the answerer
// (empty when history is suppressed).
func (o *Orchestrator) resolve(
	ctx context.Context,
	req Request,
	classified route.Route,
	state conversation.State,
	spec *speculation,
	logger *slog.Logger,
) (route.Route, string, string) {
	switch classified {
	case route.InsuranceService:
		return route.InsuranceService, o.retrieve(ctx, spec.service(), o.serviceRequest(req.Query), logger), state.SummarizedHistory

	case route.InsuranceProduct:
		return route.InsuranceProduct, o.retrieve(ctx, spec.product(), o.productRequest(req.Query), logger), state.SummarizedHistory

	case route.More:
		return route.InsuranceProduct, o.retrieve(ctx, spec.more(), o.moreRequest(req.Query), logger), state.SummarizedHistory

	case route.ContinueConversation:
		if state.LatestRoute != route.InsuranceService && state.LatestRoute != route.InsuranceProduct {
			logger.Info("pipeline: nothing to continue, demoted to OFF_TOPIC",
				"latest_route", string(state.LatestRoute))
			return route.OffTopic, "", ""
		}
		sub := o.condense(ctx, req.Query, state.LatestUserMessage, logger)
		if state.LatestRoute == route.InsuranceService {
			return route.InsuranceService, o.retrieve(ctx, nil, o.serviceRequest(sub), logger), state.SummarizedHistory
		}
		return route.InsuranceProduct, o.retrieve(ctx, nil, o.productRequest(sub), logger), state.SummarizedHistory

	default:
		return route.OffTopic, "", ""
	}
}

func (o *Orchestrator) serviceRequest(q string) SearchRequest {
	return SearchRequest{Query: q, TopK: o.cfg.Service.TopK, Skip: o.cfg.Service.Skip, ServiceScoped: true}
}

func (o *Orchestrator) productRequest(q string) SearchRequest {
	return SearchRequest{Query: q, TopK: o.cfg.Product.TopK, Skip: o.cfg.Product.Skip}
}

func (o *Orchestrator) moreRequest(q string) SearchRequest {
	return SearchRequest{Query: q, TopK: o.cfg.More.TopK, Skip: o.cfg.More.Skip}
}

// retrieve uses the speculative result when there is one, otherwise it
// searches now. A failed search yields an empty context.
func (o *Orchestrator) retrieve(ctx context.Context, f *future, req SearchRequest, logger *slog.Logger) string {
	var (
		text string
		err  error
	)
	if f != nil {
		text, err = f.wait(ctx)
	} else {
		text, err = o.search(ctx, req)
	}
	if err != nil {
		logger.Warn("pipeline: retrieval failed, answering without context",
			"service_scoped", req.ServiceScoped,
			"top_k", req.TopK,
			"skip", req.Skip,
			"error", err,
		)
		o.cfg.Metrics.Degraded("retrieve")
		return ""
	}
	return text
}

func (o *Orchestrator) search(ctx context.Context, req SearchRequest) (string, error) {
	ctx, span := o.cfg.Tracer.Start(ctx, "pipeline.retrieve", trace.WithAttributes(
		attribute.Int("search.top_k", req.TopK),
		attribute.Int("search.skip", req.Skip),
		attribute.Bool("search.service_scoped", req.ServiceScoped),
	))
	defer span.End()
	text, err := o.cfg.Retriever.Search(ctx, req)
	if err != nil {
		span.RecordError(err)
	}
	return text, err
}

// condense rewrites a follow-up into a retrieval query. Without a
// condenser, or on failure, the follow-up itself is used.
func (o *Orchestrator) condense(ctx context.Context, query, prior string, logger *slog.Logger) string {
	if o.cfg.Condenser == nil {
		return query
	}
	ctx, span := o.cfg.Tracer.Start(ctx, "pipeline.condense")
	defer span.End()
	sub, err := o.cfg.Condenser.Condense(ctx, query, prior)
	if err != nil || strings.TrimSpace(sub) == "" {
		if err != nil {
			span.RecordError(err)
		}
		logger.Warn("pipeline: condensing follow-up failed, using the query", "error", err)
		o.cfg.Metrics.Degraded("condense")
		return query
	}
	return sub
}

func (o *Orchestrator) answer(ctx context.Context, query, contextText, history string, logger *slog.Logger) string {
	ctx, span := o.cfg.Tracer.Start(ctx, "pipeline.answer")
	defer span.End()
	answer, err := o.cfg.Answerer.Generate(ctx, AnswerRequest{
		Query:   query,
		Context: contextText,
		History: history,
	})
	if err == nil && strings.TrimSpace(answer) != "" {
		return strings.TrimSpace(answer)
	}
	if err != nil {
		span.RecordError(err)
	}
	logger.Warn("pipeline: answer generation failed, using apology", "error", err)
	o.cfg.Metrics.Degraded("answer")
	return o.cfg.AnswerFailureReply
}

// deliver sends text and, if that fails, exactly one fallback apology on
// the same handle. It reports whether something was delivered and whether
// it was the fallback.
func (o *Orchestrator) deliver(ctx context.Context, req Request, text string) (delivered, fallback bool) {
	ctx, span := o.cfg.Tracer.Start(ctx, "pipeline.deliver")
	defer span.End()
	logger := o.cfg.Logger.With("user", req.UserID, "batch", req.BatchID)

	err := o.cfg.Notifier.Reply(ctx, req.ReplyHandle, text)
	if err == nil {
		return true, false
	}
	span.RecordError(err)
	o.cfg.Metrics.DeliveryFailed("primary")
	logger.Warn("pipeline: reply failed, sending fallback", "error", err)

	if err := o.cfg.Notifier.Reply(ctx, req.ReplyHandle, o.cfg.FallbackReply); err != nil {
		span.RecordError(err)
		o.cfg.Metrics.DeliveryFailed("fallback")
		logger.Error("pipeline: fallback reply failed, giving up", "error", err)
		return false, true
	}
	return true, true
}

// deliveredText is what the user actually saw: the fallback apology when
// it replaced the answer, the answer otherwise.
func (o *Orchestrator) deliveredText(res Result, answer string) string {
	if res.Delivered && res.UsedFallback {
		return o.cfg.FallbackReply
	}
	return answer
}

// persist appends the user turn then the assistant turn, both tagged with
// resolved. A route that may not be stored is recorded as OFF_TOPIC.
// Failures are logged and never retried. The assistant turn is skipped
// when the user turn could not be stored. It returns the number of turns
// stored.
func (o *Orchestrator) persist(ctx context.Context, req Request, assistantText string, resolved route.Route) int {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.PersistTimeout)
	defer cancel()
	logger := o.cfg.Logger.With("user", req.UserID, "batch", req.BatchID)

	if !resolved.Persistable() {
		logger.Error("pipeline: unresolved route at persistence, storing OFF_TOPIC",
			"route", resolved.String(),
			"meta", resolved.IsMeta(),
		)
		resolved = route.OffTopic
	}

	turns := []conversation.Turn{
		{UserID: req.UserID, Sender: conversation.SenderUser, Message: req.Query, Route: resolved},
		{UserID: req.UserID, Sender: conversation.SenderAssistant, Message: assistantText, Route: resolved},
	}
	for i := range turns {
		turns[i].Timestamp = o.now()
		if err := o.cfg.Store.Append(ctx, turns[i]); err != nil {
			o.cfg.Metrics.PersistFailed()
			logger.Error("pipeline: persisting turn failed",
				"sender", string(turns[i].Sender),
				"error", err,
			)
			return i
		}
	}
	return len(turns)
}

func (o *Orchestrator) now() time.Time {
	return o.cfg.Now().In(o.cfg.Location)
}
