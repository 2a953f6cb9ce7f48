// Package worker hosts stateless request/response tasks off the caller's
// goroutine. Metadata extraction and content search run here so large
// binary parsing never blocks interactive request handling.
//
// Workers communicate exclusively through message envelopes; no state is
// shared across calls. The request id is caller-supplied and opaque, which
// lets callers discriminate stale responses (last request wins at the call
// site, not in the worker).
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/inkwellapp/inkwell-server/internal/logger"
)

// Request is a unit of work submitted to the pool.
type Request struct {
	ID      string // caller-chosen, echoed back verbatim
	Kind    string // selects the registered handler
	Payload any
}

// Response is the completion envelope for a request. Exactly one of
// Payload or Error is meaningful, discriminated by OK.
type Response struct {
	ID      string `json:"request_id"`
	OK      bool   `json:"ok"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Handler executes one request kind. Handlers must be stateless; the pool
// gives no ordering guarantees relative to submission order.
type Handler func(ctx context.Context, payload any) (any, error)

type task struct {
	ctx     context.Context
	request Request
	result  chan Response
}

// Pool is a fixed-size worker pool with per-kind handlers.
type Pool struct {
	handlers map[string]Handler
	mu       sync.RWMutex

	tasks  chan task
	wg     sync.WaitGroup
	logger *logger.Logger

	// stopMu is read-held across the task send so Stop cannot close the
	// channel mid-submit. Late submitters get a failure envelope instead
	// of a panic; extraction goroutines can outlive the HTTP server
	// during shutdown.
	stopMu   sync.RWMutex
	stopped  bool
	stopOnce sync.Once
}

// NewPool creates and starts a pool with the given number of workers.
func NewPool(workers int, logger *logger.Logger) *Pool {
	if workers <= 0 {
		workers = 2
	}
	p := &Pool{
		handlers: make(map[string]Handler),
		tasks:    make(chan task),
		logger:   logger,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Register installs the handler for a request kind. Must be called before
// requests of that kind are submitted.
func (p *Pool) Register(kind string, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = handler
}

// Submit queues a request and returns a channel that receives exactly one
// response. Errors and panics inside handlers are converted to failure
// envelopes tagged with the request id; nothing is thrown across the
// worker boundary.
func (p *Pool) Submit(ctx context.Context, request Request) <-chan Response {
	result := make(chan Response, 1)

	p.stopMu.RLock()
	defer p.stopMu.RUnlock()
	if p.stopped {
		result <- Response{ID: request.ID, OK: false, Error: "worker pool stopped"}
		return result
	}

	select {
	case p.tasks <- task{ctx: ctx, request: request, result: result}:
	case <-ctx.Done():
		result <- Response{ID: request.ID, OK: false, Error: ctx.Err().Error()}
	}
	return result
}

// Do submits a request and blocks for its response.
func (p *Pool) Do(ctx context.Context, request Request) Response {
	select {
	case resp := <-p.Submit(ctx, request):
		return resp
	case <-ctx.Done():
		return Response{ID: request.ID, OK: false, Error: ctx.Err().Error()}
	}
}

// Stop shuts the pool down after in-flight tasks complete. Submissions
// arriving afterwards receive a failure envelope.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.stopMu.Lock()
		p.stopped = true
		p.stopMu.Unlock()
		close(p.tasks)
	})
	p.wg.Wait()
}

func (p *Pool) run() {
	defer p.wg.Done()
	for t := range p.tasks {
		t.result <- p.execute(t.ctx, t.request)
	}
}

// execute runs one request, converting every failure mode into an
// envelope.
func (p *Pool) execute(ctx context.Context, request Request) (resp Response) {
	resp = Response{ID: request.ID}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker handler panicked",
				"kind", request.Kind,
				"request_id", request.ID,
				"panic", r,
			)
			resp = Response{ID: request.ID, OK: false, Error: fmt.Sprintf("internal: %v", r)}
		}
	}()

	p.mu.RLock()
	handler, ok := p.handlers[request.Kind]
	p.mu.RUnlock()
	if !ok {
		resp.Error = fmt.Sprintf("unknown request kind %q", request.Kind)
		return resp
	}

	payload, err := handler(ctx, request.Payload)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}

	resp.OK = true
	resp.Payload = payload
	return resp
}
