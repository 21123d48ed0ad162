package registry

import (
	"strconv"
	"sync/atomic"

	"github.com/pme-sh/lrpc/concurrent"
	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rpcerr"
)

// Registry maps access names to local callables for one owner (a channel or a
// service). Lookups never take a lock and registration never blocks on I/O.
type Registry[V any] struct {
	prefix  string
	seq     atomic.Uint64
	n       atomic.Int64
	closed  atomic.Bool
	entries concurrent.Map[fn.AccessName, V]
}

// New creates a registry whose minted names start with prefix.
func New[V any](prefix string) *Registry[V] {
	return &Registry[V]{prefix: prefix}
}

// Register stores v under a freshly minted name. Registering the same value
// twice yields two names.
func (r *Registry[V]) Register(v V) (fn.AccessName, error) {
	if r.closed.Load() {
		return "", rpcerr.New(rpcerr.RegistryClosed, "")
	}
	name := fn.AccessName(r.prefix + strconv.FormatUint(r.seq.Add(1), 36))
	r.entries.Store(name, v)
	r.n.Add(1)

	// Lost the race against Invalidate, undo.
	if r.closed.Load() {
		if _, ok := r.entries.LoadAndDelete(name); ok {
			r.n.Add(-1)
		}
		return "", rpcerr.New(rpcerr.RegistryClosed, "")
	}
	return name, nil
}

// Define stores v under a caller chosen name. Names cannot be redefined.
func (r *Registry[V]) Define(name fn.AccessName, v V) error {
	if r.closed.Load() {
		return rpcerr.New(rpcerr.RegistryClosed, "")
	}
	if name == "" {
		return rpcerr.New(rpcerr.ProtocolViolation, "empty access name")
	}
	if _, loaded := r.entries.LoadOrStore(name, v); loaded {
		return rpcerr.Errorf(rpcerr.ProtocolViolation, "duplicate registration of %q", name)
	}
	r.n.Add(1)
	return nil
}

func (r *Registry[V]) Lookup(name fn.AccessName) (v V, err error) {
	if r.closed.Load() {
		return v, rpcerr.New(rpcerr.RegistryClosed, string(name))
	}
	v, ok := r.entries.Load(name)
	if !ok {
		return v, rpcerr.New(rpcerr.UnknownFunction, string(name))
	}
	return v, nil
}

// Remove deletes a single entry, reporting whether it existed.
func (r *Registry[V]) Remove(name fn.AccessName) bool {
	if _, ok := r.entries.LoadAndDelete(name); ok {
		r.n.Add(-1)
		return true
	}
	return false
}

// Invalidate drops every entry; all later lookups fail with RegistryClosed.
func (r *Registry[V]) Invalidate() {
	if r.closed.Swap(true) {
		return
	}
	r.entries.Range(func(name fn.AccessName, _ V) bool {
		r.Remove(name)
		return true
	})
}

func (r *Registry[V]) Closed() bool { return r.closed.Load() }
func (r *Registry[V]) Len() int     { return int(r.n.Load()) }
func (r *Registry[V]) Names() []fn.AccessName {
	return r.entries.Keys()
}
