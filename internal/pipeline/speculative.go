package pipeline

import "context"

// future is a retrieval started before its result is known to be needed.
type future struct {
	cancel context.CancelFunc
	done   chan struct{}
	text   string
	err    error
}

func (o *Orchestrator) start(ctx context.Context, req SearchRequest) *future {
	ctx, cancel := context.WithCancel(ctx)
	f := &future{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.text, f.err = o.search(ctx, req)
	}()
	return f
}

// wait blocks until the retrieval completes or ctx is done.
func (f *future) wait(ctx context.Context) (string, error) {
	select {
	case <-f.done:
		return f.text, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// speculation holds the candidate retrievals of one run. A nil
// *speculation has no candidates.
type speculation struct {
	svc, prod, next *future
}

func (o *Orchestrator) speculate(ctx context.Context, query string) *speculation {
	return &speculation{
		svc:  o.start(ctx, o.serviceRequest(query)),
		prod: o.start(ctx, o.productRequest(query)),
		next: o.start(ctx, o.moreRequest(query)),
	}
}

func (s *speculation) service() *future {
	if s == nil {
		return nil
	}
	return s.svc
}

func (s *speculation) product() *future {
	if s == nil {
		return nil
	}
	return s.prod
}

func (s *speculation) more() *future {
	if s == nil {
		return nil
	}
	return s.next
}

// discard cancels every candidate and waits for them to return, so no
// search outlives the run.
func (s *speculation) discard() {
	if s == nil {
		return
	}
	for _, f := range []*future{s.svc, s.prod, s.next} {
		f.cancel()
		<-f.done
	}
}
