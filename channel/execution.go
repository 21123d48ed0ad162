package channel

import (
	"context"
	"slices"

	"github.com/pme-sh/lrpc/fn"
)

// Execution identifies the invocation a handler is serving.
type Execution struct {
	Channel *Channel
	ID      fn.ExecutionId
	Head    fn.HeadExecutionId
}

// Nested reports whether the execution runs on behalf of another one.
func (e Execution) Nested() bool { return fn.HeadExecutionId(e.ID) != e.Head }

// chain lists the executions a call is made on behalf of, outermost first. It
// spans channels: a handler relaying a callback onto another channel still
// finds the execution it was originally invoked under.
type chain []Execution

func (ch chain) on(c *Channel) (Execution, bool) {
	for i := len(ch) - 1; i >= 0; i-- {
		if ch[i].Channel == c {
			return ch[i], true
		}
	}
	return Execution{}, false
}

type executionKey struct{}

func withChain(ctx context.Context, ch chain, e Execution) context.Context {
	return context.WithValue(ctx, executionKey{}, append(slices.Clip(ch), e))
}

func chainOf(ctx context.Context) chain {
	ch, _ := ctx.Value(executionKey{}).(chain)
	return ch
}

// FromContext returns the execution served by the handler owning ctx.
func FromContext(ctx context.Context) (e Execution, ok bool) {
	if ch := chainOf(ctx); len(ch) != 0 {
		return ch[len(ch)-1], true
	}
	return
}
