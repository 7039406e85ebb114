package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/toolbroker/pkg/domain"
	"github.com/aretw0/toolbroker/pkg/protocol"
)

// Result is the outcome of one tool execution.
// Err is a *domain.ToolError when the provider reported a failure.
type Result struct {
	Value any
	Err   error
}

type pendingExecution struct {
	id      string
	tool    string
	owner   string
	started time.Time
	timer   *time.Timer
	result  chan Result
}

// Execute dispatches a call of the named tool to its owner and returns a
// channel that receives exactly one Result: the provider's answer,
// domain.ErrExecutionTimeout, domain.ErrProviderDisconnected or
// domain.ErrShuttingDown. It never waits for the provider.
//
// Lookup failures are returned directly and leave no pending entry.
func (b *Broker) Execute(ctx context.Context, name string, args map[string]any) (<-chan Result, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, domain.ErrShuttingDown
	}
	status, ok := b.registry.Get(name)
	switch {
	case !ok:
		b.mu.Unlock()
		return nil, fmt.Errorf("tool %s: %w", name, domain.ErrNotFound)
	case status.Disabled:
		b.mu.Unlock()
		return nil, fmt.Errorf("tool %s: %w", name, domain.ErrDisabled)
	case !status.Online:
		b.mu.Unlock()
		return nil, fmt.Errorf("tool %s: %w", name, domain.ErrOffline)
	}
	ch, ok := b.providers[status.OwnerID]
	if !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("tool %s: provider %s: %w", name, status.OwnerID, domain.ErrNoActiveConnection)
	}

	p := &pendingExecution{
		id:      b.newID(),
		tool:    name,
		owner:   status.OwnerID,
		started: b.now(),
		result:  make(chan Result, 1),
	}
	p.timer = time.AfterFunc(b.executionTimeout, func() { b.expire(p.id) })
	b.pending[p.id] = p
	b.mu.Unlock()

	if b.hooks.OnExecutionStart != nil {
		b.hooks.OnExecutionStart(ctx, &domain.ExecutionEvent{
			Timestamp:   p.started,
			ExecutionID: p.id,
			ToolName:    p.tool,
			OwnerID:     p.owner,
		})
	}

	if args == nil {
		args = map[string]any{}
	}
	b.logger.Debug("Dispatching tool execution", "tool", name, "execution_id", p.id, "provider", p.owner)
	if err := ch.Send(protocol.EventToolExecute, protocol.Execute{
		ToolName:    name,
		Args:        args,
		ExecutionID: p.id,
	}); err != nil {
		b.finish(p.id, domain.OutcomeDisconnected, func(p *pendingExecution) Result {
			return Result{Err: fmt.Errorf("tool %s: %w: %v", p.tool, domain.ErrProviderDisconnected, err)}
		})
	}
	return p.result, nil
}

// Call executes a tool and waits for its result. When ctx ends first Call
// returns ctx.Err(); the execution itself still resolves in the background.
func (b *Broker) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	results, err := b.Execute(ctx, name, args)
	if err != nil {
		return nil, err
	}
	select {
	case res := <-results:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HandleResult resolves a pending execution with a provider's answer.
// A non-empty errMsg is delivered verbatim as a *domain.ToolError.
// It reports false when no execution is pending under id (unknown, or
// already timed out); the answer is then discarded.
func (b *Broker) HandleResult(id string, result any, errMsg string) bool {
	outcome := domain.OutcomeSuccess
	if errMsg != "" {
		outcome = domain.OutcomeToolError
	}
	ok := b.finish(id, outcome, func(p *pendingExecution) Result {
		if errMsg != "" {
			return Result{Err: &domain.ToolError{Tool: p.tool, Message: errMsg}}
		}
		return Result{Value: result}
	})
	if !ok {
		b.logger.Debug("Discarding result of unknown execution", "execution_id", id)
	}
	return ok
}

// Pending returns the number of in-flight executions.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Broker) expire(id string) {
	ok := b.finish(id, domain.OutcomeTimeout, func(p *pendingExecution) Result {
		return Result{Err: fmt.Errorf("tool %s: %w", p.tool, domain.ErrExecutionTimeout)}
	})
	if ok {
		b.logger.Warn("Tool execution timed out", "execution_id", id, "timeout", b.executionTimeout)
	}
}

// finish removes a pending execution and delivers its result.
// Only the first caller for an id wins.
func (b *Broker) finish(id string, outcome domain.Outcome, build func(*pendingExecution) Result) bool {
	b.mu.Lock()
	p, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
		p.timer.Stop()
	}
	b.mu.Unlock()

	if !ok {
		return false
	}
	b.deliver(p, build(p), outcome)
	return true
}

// takePendingLocked removes and returns the pending executions for which match is true.
// b.mu must be held.
func (b *Broker) takePendingLocked(match func(*pendingExecution) bool) []*pendingExecution {
	var out []*pendingExecution
	for id, p := range b.pending {
		if !match(p) {
			continue
		}
		p.timer.Stop()
		delete(b.pending, id)
		out = append(out, p)
	}
	return out
}

func (b *Broker) deliver(p *pendingExecution, res Result, outcome domain.Outcome) {
	p.result <- res
	close(p.result)

	if b.hooks.OnExecutionEnd != nil {
		b.hooks.OnExecutionEnd(context.Background(), &domain.ExecutionEvent{
			Timestamp:   b.now(),
			ExecutionID: p.id,
			ToolName:    p.tool,
			OwnerID:     p.owner,
			Outcome:     outcome,
			Duration:    b.now().Sub(p.started),
		})
	}
}
