package conn

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rpcerr"

	"github.com/samber/lo"
)

// Resolver picks the endpoint a call to a service goes to.
type Resolver interface {
	Resolve(ctx context.Context, sid fn.ServiceId) (fn.Endpoint, error)
}

type ResolverFunc func(ctx context.Context, sid fn.ServiceId) (fn.Endpoint, error)

func (f ResolverFunc) Resolve(ctx context.Context, sid fn.ServiceId) (fn.Endpoint, error) {
	return f(ctx, sid)
}

type Strategy uint8

const (
	StrategyRandom Strategy = iota
	StrategyRoundRobin
)

func (s Strategy) String() string {
	if s == StrategyRoundRobin {
		return "round-robin"
	}
	return "random"
}
func (s Strategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *Strategy) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "random":
		*s = StrategyRandom
	case "round-robin":
		*s = StrategyRoundRobin
	default:
		return fmt.Errorf("unknown strategy %q", text)
	}
	return nil
}

// picker chooses among a service's endpoints.
type picker struct {
	strategy Strategy
	counter  atomic.Uint32
}

func (p *picker) pick(sid fn.ServiceId, eps []fn.Endpoint) (fn.Endpoint, error) {
	switch len(eps) {
	case 0:
		return fn.Endpoint{}, rpcerr.Errorf(rpcerr.ConnectionUnavailable, "no endpoints for service %s", sid)
	case 1:
		return eps[0], nil
	}
	if p.strategy == StrategyRoundRobin {
		return eps[p.counter.Add(1)%uint32(len(eps))], nil
	}
	return eps[rand.IntN(len(eps))], nil
}

// Static resolves from a fixed table.
type Static struct {
	picker
	mu    sync.RWMutex
	table map[fn.ServiceId][]fn.Endpoint
}

func NewStatic(strategy Strategy) *Static {
	s := &Static{table: make(map[fn.ServiceId][]fn.Endpoint)}
	s.strategy = strategy
	return s
}

// ParseStatic builds a table from service id to "host:port" lists.
func ParseStatic(strategy Strategy, services map[string][]string) (*Static, error) {
	s := NewStatic(strategy)
	for id, addrs := range services {
		sid, err := fn.ParseServiceId(id)
		if err != nil {
			return nil, err
		}
		for _, addr := range addrs {
			ep, err := fn.ParseEndpoint(addr)
			if err != nil {
				return nil, err
			}
			s.Add(sid, ep)
		}
	}
	return s, nil
}

func (s *Static) Add(sid fn.ServiceId, eps ...fn.Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table[sid] = lo.Uniq(append(s.table[sid], eps...))
}
func (s *Static) Remove(sid fn.ServiceId, ep fn.Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rest := lo.Without(s.table[sid], ep); len(rest) != 0 {
		s.table[sid] = rest
	} else {
		delete(s.table, sid)
	}
}
func (s *Static) Endpoints(sid fn.ServiceId) []fn.Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]fn.Endpoint(nil), s.table[sid]...)
}
func (s *Static) Services() []fn.ServiceId {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Keys(s.table)
}

func (s *Static) Resolve(_ context.Context, sid fn.ServiceId) (fn.Endpoint, error) {
	s.mu.RLock()
	eps := s.table[sid]
	s.mu.RUnlock()
	return s.pick(sid, eps)
}

// Chain tries each resolver in order and returns the first endpoint found.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, sid fn.ServiceId) (ep fn.Endpoint, err error) {
	err = rpcerr.Errorf(rpcerr.ConnectionUnavailable, "no endpoints for service %s", sid)
	for _, r := range c {
		if ep, err = r.Resolve(ctx, sid); err == nil {
			return
		}
	}
	return
}
