package coder

import (
	"encoding/json"
	"reflect"
	"sync"

	"github.com/pme-sh/lrpc/rpcerr"
	"github.com/pme-sh/lrpc/wire"

	"github.com/valyala/fastjson"
)

func dataOf(e wire.Entity) ([]byte, error) {
	if e.Function != nil {
		return nil, malformed("expected data, got %s function", e.Function.Kind)
	}
	if len(e.Data) == 0 {
		return nil, malformed("entity carries no data")
	}
	return e.Data, nil
}

var parsers fastjson.ParserPool

// nullInto rejects a null payload for a T that has no nil value, which
// encoding/json would otherwise decode as T's zero value.
func nullInto[T any](data []byte) error {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return nil
	}
	p := parsers.Get()
	defer parsers.Put(p)
	v, err := p.ParseBytes(data)
	if err != nil {
		return rpcerr.Wrap(rpcerr.MalformedEntity, err)
	}
	if v.Type() == fastjson.TypeNull {
		return malformed("expected %s, got null", reflect.TypeFor[T]())
	}
	return nil
}

type jsonCoder[T any] struct{}

// JSON codes any value encoding/json can represent.
func JSON[T any]() Coder[T] { return jsonCoder[T]{} }

func (jsonCoder[T]) Encode(v T, _ *Context) (wire.Entity, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return wire.Entity{}, rpcerr.Wrap(rpcerr.UnknownType, err)
	}
	return wire.DataEntity(data), nil
}
func (jsonCoder[T]) Decode(e wire.Entity, _ *Context) (v T, err error) {
	data, err := dataOf(e)
	if err != nil {
		return
	}
	if err = nullInto[T](data); err != nil {
		return
	}
	if err = json.Unmarshal(data, &v); err != nil {
		err = rpcerr.Wrap(rpcerr.MalformedEntity, err)
	}
	return
}

type rawCoder struct{}

// Raw passes JSON payloads through untouched.
func Raw() Coder[json.RawMessage] { return rawCoder{} }

func (rawCoder) Encode(v json.RawMessage, _ *Context) (wire.Entity, error) {
	if len(v) == 0 {
		v = json.RawMessage("null")
	}
	return wire.DataEntity(v), nil
}
func (rawCoder) Decode(e wire.Entity, _ *Context) (json.RawMessage, error) {
	return dataOf(e)
}

// Shorthands for common payloads.
var (
	Int    = JSON[int]()
	Float  = JSON[float64]()
	String = JSON[string]()
	Bool   = JSON[bool]()
	Ints   = JSON[[]int]()
)

type namedCoder[T any] struct {
	name string
	c    Coder[T]
}

// Named stamps entities with a type tag and refuses entities tagged otherwise.
func Named[T any](name string, c Coder[T]) Coder[T] {
	return namedCoder[T]{name, c}
}

func (n namedCoder[T]) Encode(v T, cc *Context) (wire.Entity, error) {
	e, err := n.c.Encode(v, cc)
	if err == nil && e.Function == nil {
		e.Type = n.name
	}
	return e, err
}
func (n namedCoder[T]) Decode(e wire.Entity, cc *Context) (v T, err error) {
	if e.Type != "" && e.Type != n.name {
		err = rpcerr.Errorf(rpcerr.UnknownType, "expected %q, got %q", n.name, e.Type)
		return
	}
	return n.c.Decode(e, cc)
}

// Tagged is a value together with the name of the coder for it.
type Tagged struct {
	Type  string
	Value any
}

// Union codes values of several registered types, picking the coder by tag.
type Union struct {
	mu     sync.RWMutex
	coders map[string]Coder[any]
}

func NewUnion() *Union {
	return &Union{coders: map[string]Coder[any]{}}
}

func Register[T any](u *Union, name string, c Coder[T]) *Union {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.coders[name] = Erase(c)
	return u
}

func (u *Union) lookup(name string) (Coder[any], error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if c, ok := u.coders[name]; ok {
		return c, nil
	}
	if name == "" {
		return nil, malformed("untagged entity for a union")
	}
	return nil, rpcerr.Errorf(rpcerr.UnknownType, "no coder registered for %q", name)
}

func (u *Union) Encode(v Tagged, cc *Context) (wire.Entity, error) {
	c, err := u.lookup(v.Type)
	if err != nil {
		return wire.Entity{}, err
	}
	e, err := c.Encode(v.Value, cc)
	if err == nil && e.Function == nil {
		e.Type = v.Type
	}
	return e, err
}
func (u *Union) Decode(e wire.Entity, cc *Context) (Tagged, error) {
	c, err := u.lookup(e.Type)
	if err != nil {
		return Tagged{}, err
	}
	v, err := c.Decode(e, cc)
	return Tagged{Type: e.Type, Value: v}, err
}

// Bytes codes opaque binary payloads as base64 strings.
func Bytes() Coder[[]byte] { return JSON[[]byte]() }
