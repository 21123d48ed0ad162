// Package demo is a small arithmetic service used by the CLI and the end to end
// tests. Several of its functions take or return functions.
package demo

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/pme-sh/lrpc/coder"
	"github.com/pme-sh/lrpc/dsl"
	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/revision"
	"github.com/pme-sh/lrpc/service"

	"github.com/samber/lo"
)

// ID is the service id of the demo service.
const ID fn.ServiceId = "9b5ba1f0-3c43-4c1e-8f0a-6a0d3b7e21c4"

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

var (
	PointCoder  = coder.JSON[Point]()
	PointsCoder = coder.JSON[[]Point]()

	intFn   = coder.Func1(coder.Int, coder.Int)
	intOp   = coder.Func2(coder.Int, coder.Int, coder.Int)
	pointFn = coder.Func1(PointCoder, PointCoder)
	promise = coder.PromiseOf(coder.Int)
)

var (
	Version       = dsl.Declare0(ID, "version", coder.String)
	Add5          = dsl.Declare1(ID, "add5", coder.Int, coder.Int)
	Eval5         = dsl.Declare1(ID, "eval5", intFn, coder.Int)
	SpecializeAdd = dsl.Declare1(ID, "specializeAdd", coder.Int, intFn)
	ExecuteAndAdd = dsl.Declare1(ID, "executeAndAdd", intFn, intFn)
	MapInts       = dsl.Declare2(ID, "mapInts", coder.Ints, intFn, coder.Ints)
	FoldInts      = dsl.Declare3(ID, "foldInts", coder.Ints, coder.Int, intOp, coder.Int)
	Distance      = dsl.Declare2(ID, "distance", PointCoder, PointCoder, coder.Float)
	MapPoints     = dsl.Declare2(ID, "mapPoints", PointsCoder, pointFn, PointsCoder)
	Poly          = dsl.Declare5(ID, "poly", coder.Int, coder.Int, coder.Int, coder.Int, coder.Int, coder.Int)

	LazyConst = dsl.Declare1(ID, "lazyConst", coder.Int, promise)
	LazyAdd   = dsl.Declare2(ID, "lazyAdd", promise, promise, promise)
	LazyMul   = dsl.Declare2(ID, "lazyMul", promise, coder.Int, promise)
)

// Catalog indexes the declarations by name for untyped callers such as the CLI.
var Catalog = lo.KeyBy([]dsl.Declaration{
	Version.Declaration, Add5.Declaration, Eval5.Declaration, SpecializeAdd.Declaration,
	ExecuteAndAdd.Declaration, MapInts.Declaration, FoldInts.Declaration, Distance.Declaration,
	MapPoints.Declaration, Poly.Declaration, LazyConst.Declaration, LazyAdd.Declaration,
	LazyMul.Declaration,
}, func(d dsl.Declaration) fn.AccessName { return d.Name })

// Counters observes the lazy functions from the outside.
type Counters struct {
	Evaluations atomic.Int64 // Promise bodies run so far.
}

// Expose defines every demo function on s, which must have the demo ID.
func Expose(s *service.Service) (*Counters, error) {
	n := &Counters{}
	defs := []func() error{
		func() error {
			return Version.Expose(s, func(context.Context) (string, error) {
				return revision.GetVersion(), nil
			})
		},
		func() error {
			return Add5.Expose(s, func(_ context.Context, x int) (int, error) { return x + 5, nil })
		},
		func() error {
			return Eval5.Expose(s, func(ctx context.Context, f coder.Fn1[int, int]) (int, error) {
				return f.Call(ctx, 5)
			})
		},
		func() error {
			return SpecializeAdd.Expose(s, func(_ context.Context, n int) (coder.Fn1[int, int], error) {
				return coder.Lambda1(func(_ context.Context, x int) (int, error) { return x + n, nil }), nil
			})
		},
		func() error {
			// f runs while the call is in flight; the returned function only
			// keeps its result, so it outlives the caller's callback.
			return ExecuteAndAdd.Expose(s, func(ctx context.Context, f coder.Fn1[int, int]) (coder.Fn1[int, int], error) {
				k, err := f.Call(ctx, 5)
				if err != nil {
					return coder.Fn1[int, int]{}, err
				}
				return coder.Lambda1(func(_ context.Context, x int) (int, error) { return x + k, nil }), nil
			})
		},
		func() error {
			return MapInts.Expose(s, func(ctx context.Context, xs []int, f coder.Fn1[int, int]) ([]int, error) {
				out := make([]int, len(xs))
				for i, x := range xs {
					y, err := f.Call(ctx, x)
					if err != nil {
						return nil, err
					}
					out[i] = y
				}
				return out, nil
			})
		},
		func() error {
			return FoldInts.Expose(s, func(ctx context.Context, xs []int, acc int, op coder.Fn2[int, int, int]) (int, error) {
				for _, x := range xs {
					var err error
					if acc, err = op.Call(ctx, acc, x); err != nil {
						return 0, err
					}
				}
				return acc, nil
			})
		},
		func() error {
			return Distance.Expose(s, func(_ context.Context, a, b Point) (float64, error) {
				return math.Hypot(a.X-b.X, a.Y-b.Y), nil
			})
		},
		func() error {
			return MapPoints.Expose(s, func(ctx context.Context, ps []Point, f coder.Fn1[Point, Point]) ([]Point, error) {
				out := make([]Point, len(ps))
				for i, p := range ps {
					q, err := f.Call(ctx, p)
					if err != nil {
						return nil, err
					}
					out[i] = q
				}
				return out, nil
			})
		},
		func() error {
			return Poly.Expose(s, func(_ context.Context, x, a, b, c, d int) (int, error) {
				return ((a*x+b)*x+c)*x + d, nil
			})
		},
		func() error {
			return LazyConst.Expose(s, func(_ context.Context, v int) (coder.Promise[int], error) {
				return coder.Lazy(func(context.Context) (int, error) {
					n.Evaluations.Add(1)
					return v, nil
				}), nil
			})
		},
		func() error {
			return LazyAdd.Expose(s, func(_ context.Context, p, q coder.Promise[int]) (coder.Promise[int], error) {
				return coder.Lazy(func(ctx context.Context) (int, error) {
					n.Evaluations.Add(1)
					a, err := coder.Await(ctx, p)
					if err != nil {
						return 0, err
					}
					b, err := coder.Await(ctx, q)
					return a + b, err
				}), nil
			})
		},
		func() error {
			return LazyMul.Expose(s, func(_ context.Context, p coder.Promise[int], k int) (coder.Promise[int], error) {
				return coder.Lazy(func(ctx context.Context) (int, error) {
					n.Evaluations.Add(1)
					a, err := coder.Await(ctx, p)
					return a * k, err
				}), nil
			})
		},
	}
	for _, def := range defs {
		if err := def(); err != nil {
			return nil, err
		}
	}
	return n, nil
}
