package testsupport

import (
	"context"
	"fmt"
	"sync"
)

// Responder produces the raw completion for one prompt invocation.
type Responder func(ctx context.Context, vars map[string]any) (string, error)

// Call records one invocation seen by a FakeInvoker.
type Call struct {
	Phase string
	Vars  map[string]any
}

// FakeInvoker is an in-memory prompt invoker. Phases without a responder fail.
type FakeInvoker struct {
	mu         sync.Mutex
	responders map[string]Responder
	calls      []Call
}

// NewFakeInvoker returns an empty fake.
func NewFakeInvoker() *FakeInvoker {
	return &FakeInvoker{responders: make(map[string]Responder)}
}

// On registers a responder for phase, replacing any earlier one.
func (f *FakeInvoker) On(phase string, responder Responder) *FakeInvoker {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responders[phase] = responder
	return f
}

// Reply registers a fixed reply for phase.
func (f *FakeInvoker) Reply(phase, body string) *FakeInvoker {
	return f.On(phase, func(context.Context, map[string]any) (string, error) {
		return body, nil
	})
}

// Fail registers an error for phase.
func (f *FakeInvoker) Fail(phase string, err error) *FakeInvoker {
	return f.On(phase, func(context.Context, map[string]any) (string, error) {
		return "", err
	})
}

// Invoke satisfies llm.Invoker.
func (f *FakeInvoker) Invoke(ctx context.Context, phase string, vars map[string]any) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Phase: phase, Vars: vars})
	responder := f.responders[phase]
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if responder == nil {
		return "", fmt.Errorf("fake invoker: no responder for phase %q", phase)
	}
	return responder(ctx, vars)
}

// Calls returns the phases invoked so far, in order.
func (f *FakeInvoker) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount reports how many times phase was invoked.
func (f *FakeInvoker) CallCount(phase string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.calls {
		if call.Phase == phase {
			count++
		}
	}
	return count
}
