package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/pme-sh/lrpc/coder"
	"github.com/pme-sh/lrpc/config"
	"github.com/pme-sh/lrpc/demo"
	"github.com/pme-sh/lrpc/dsl"
	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/wire"

	"github.com/google/shlex"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/valyala/fastjson"
)

func lookup(name string) (dsl.Declaration, error) {
	d, ok := demo.Catalog[fn.AccessName(name)]
	if !ok {
		names := lo.Map(lo.Keys(demo.Catalog), func(n fn.AccessName, _ int) string { return n.String() })
		slices.Sort(names)
		return d, fmt.Errorf("unknown function %q, expected one of: %s", name, strings.Join(names, ", "))
	}
	return d, nil
}

// decodeArgs reads one JSON value per argument. Text that is not valid JSON is
// taken as a string.
func decodeArgs(d dsl.Declaration, raw []string) ([]any, error) {
	if len(raw) != d.Sig.Arity() {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", d, d.Sig.Arity(), len(raw))
	}
	cc := &coder.Context{}
	args := make([]any, len(raw))
	for i, r := range raw {
		data := []byte(r)
		if fastjson.ValidateBytes(data) != nil {
			data, _ = json.Marshal(r)
		}
		v, err := d.Sig.Args[i].Decode(wire.DataEntity(data), cc)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i+1, d, err)
		}
		args[i] = v
	}
	return args, nil
}

// render prints functions as their prototype and everything else as JSON.
func render(v any) (string, error) {
	var out []byte
	var err error
	if f, ok := v.(coder.Value); ok && f.Function() != nil {
		out, err = json.Marshal(f.Function().Prototype())
	} else {
		out, err = json.Marshal(v)
	}
	return string(out), err
}

type caller struct {
	cfg   *config.Config
	ctx   context.Context
	await bool
}

func (c *caller) call(name string, raw []string) (string, error) {
	d, err := lookup(name)
	if err != nil {
		return "", err
	}
	args, err := decodeArgs(d, raw)
	if err != nil {
		return "", err
	}

	ctx, cancel := c.cfg.CallTimeout.Timeout(c.ctx)
	defer cancel()
	var res any
	err = c.cfg.Retry.Run(ctx, func(ctx context.Context) (err error) {
		res, err = d.Invoke(ctx, args...)
		if err == nil && c.await {
			// Promises resolve by calling them without arguments.
			if p, ok := res.(coder.Value); ok && p.Function().Prototype().Kind != fn.KindLocal {
				res, err = p.Function().Invoke(ctx)
			}
		}
		return
	})
	if err != nil {
		return "", err
	}
	return render(res)
}

func (c *caller) repl(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		words, err := shlex.Split(scanner.Text())
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			continue
		}
		if len(words) == 0 {
			continue
		}
		if words[0] == "exit" || words[0] == "quit" {
			return nil
		}
		res, err := c.call(words[0], words[1:])
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			continue
		}
		fmt.Fprintln(out, res)
	}
}

func newCaller(cmd *cobra.Command, await bool) (*caller, *node, error) {
	cfg, err := config.Get()
	if err != nil {
		return nil, nil, err
	}
	n, err := openNode(cmd.Context(), cfg, false)
	if err != nil {
		return nil, nil, err
	}
	n.warm(cmd.Context())
	return &caller{cfg: cfg, ctx: dsl.WithConnector(cmd.Context(), n.connector), await: await}, n, nil
}

func init() {
	var await bool
	callCmd := &cobra.Command{
		Use:     "call <function> [args...]",
		Short:   "Call a function of the demo service, arguments are JSON values",
		Args:    cobra.MinimumNArgs(1),
		GroupID: refGroup("node", "Node Commands"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, n, err := newCaller(cmd, await)
			if err != nil {
				return err
			}
			defer n.Close()
			res, err := c.call(args[0], args[1:])
			if err != nil {
				return err
			}
			cmd.Println(res)
			return nil
		},
	}
	callCmd.Flags().BoolVarP(&await, "await", "a", false, "Call a returned promise and print its value")

	replCmd := &cobra.Command{
		Use:     "repl",
		Short:   "Read calls from standard input, one per line",
		Args:    cobra.NoArgs,
		GroupID: refGroup("node", "Node Commands"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, n, err := newCaller(cmd, await)
			if err != nil {
				return err
			}
			defer n.Close()
			return c.repl(os.Stdin, cmd.OutOrStdout())
		},
	}
	replCmd.Flags().BoolVarP(&await, "await", "a", false, "Call returned promises and print their value")

	listCmd := &cobra.Command{
		Use:     "list",
		Short:   "List the functions of the demo service",
		Args:    cobra.NoArgs,
		GroupID: refGroup("node", "Node Commands"),
		Run: func(cmd *cobra.Command, args []string) {
			decls := lo.Values(demo.Catalog)
			slices.SortFunc(decls, func(a, b dsl.Declaration) int { return strings.Compare(string(a.Name), string(b.Name)) })
			for _, d := range decls {
				cmd.Printf("%-14s %d args\n", d.Name, d.Sig.Arity())
			}
		},
	}
	config.RootCommand.AddCommand(callCmd, replCmd, listCmd)
}
