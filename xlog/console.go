package xlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pme-sh/lrpc/config"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Fields channel events carry. The console folds them into the gutter next to
// the domain instead of listing them after the message.
const (
	SideFieldName   = "side"
	IDFieldName     = "id"
	HeadFieldName   = "head"
	TargetFieldName = "target"
)

const (
	domainMaxW = 24
	domainMinW = 8
)

// domainW is the widest domain printed so far; the gutter only ever grows so
// consecutive lines stay aligned.
var domainW atomic.Int32

func padDomain(name string) string {
	w := int32(len(name))
	for {
		seen := domainW.Load()
		if seen >= w {
			w = seen
			break
		}
		if domainW.CompareAndSwap(seen, w) {
			break
		}
	}
	n := max(min(int(w), domainMaxW), domainMinW)
	if len(name) > n {
		return name[:n-1] + "…"
	}
	return name + strings.Repeat(" ", n-len(name))
}

// gutter replaces the domain field once the channel fields are folded in.
type gutter struct {
	domain string
	exec   string
}

// execution renders "side id^head target", leaving out the head of top-level
// executions and whatever the event does not carry.
func execution(evt map[string]any) string {
	take := func(k string) string {
		v, ok := evt[k]
		if !ok {
			return ""
		}
		delete(evt, k)
		return fmt.Sprint(v)
	}
	side, id, head, target := take(SideFieldName), take(IDFieldName), take(HeadFieldName), take(TargetFieldName)
	if id != "" {
		id = "#" + id
		if head != "" && head != strings.TrimPrefix(id, "#") {
			id += "^" + head
		}
	}
	var parts []string
	for _, p := range []string{side, id, target} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func kitchenTime(i any) string {
	ms, _ := i.(json.Number)
	msi, _ := ms.Int64()
	if msi == 0 {
		return ""
	}
	ts := time.UnixMilli(msi)
	switch now := time.Now(); {
	case ts.Year() != now.Year():
		return ts.Format("2006-01-02 15:04:05")
	case ts.YearDay() != now.YearDay():
		return ts.Format("01-02 15:04:05")
	default:
		return ts.Format(time.Kitchen)
	}
}

func stackTrace(m map[string]any, b *bytes.Buffer) error {
	frames, _ := m[zerolog.ErrorStackFieldName].([]any)
	started := false
	for _, f := range frames {
		frame, ok := f.(map[string]any)
		if !ok {
			continue
		}
		if !started {
			b.WriteString("\n│ \x1b[1mStack\x1b[0m\n")
			started = true
		}
		fn, _ := frame["func"].(string)
		line, _ := frame["line"].(string)
		source, _ := frame["source"].(string)
		fmt.Fprintf(b, "│ %-24s \x1b[1m%s()\x1b[0m\n", source+":"+line, fn)
	}
	return nil
}

// console builds the terminal renderer. Events of a channel show which side
// and execution they belong to in the gutter:
//
//	3:04PM DBG │ lrpc.channel │ acceptor #8^7 s:inc │ invocation failed error=...
func console(out io.Writer, color bool) *zerolog.ConsoleWriter {
	bold, dim, reset := "\x1b[1m", "\x1b[2m", "\x1b[0m"
	if !color {
		bold, dim, reset = "", "", ""
	}
	return &zerolog.ConsoleWriter{
		Out:             out,
		NoColor:         !color,
		FormatTimestamp: kitchenTime,
		FieldsExclude:   []string{zerolog.ErrorStackFieldName},
		FormatExtra:     stackTrace,
		FormatPrepare: func(evt map[string]any) error {
			dom, _ := evt[zerolog.CallerFieldName].(string)
			if exec := execution(evt); exec != "" || dom != "" {
				evt[zerolog.CallerFieldName] = gutter{dom, exec}
			}
			return nil
		},
		FormatCaller: func(i any) string {
			g, ok := i.(gutter)
			if !ok {
				return ""
			}
			s := "│ " + bold + padDomain(g.domain) + reset
			if g.exec != "" {
				s += " │ " + dim + g.exec + reset
			}
			return s + " │"
		},
	}
}

// NewConsoleWriter pretty prints to terminals and passes JSON through otherwise.
// Debug output is filtered out unless verbose logging is enabled.
func NewConsoleWriter(f io.Writer) LevelWriter {
	file, ok := f.(*os.File)
	if !ok || !term.IsTerminal(int(file.Fd())) || *config.Dumb {
		return zerolog.LevelWriterAdapter{Writer: f}
	}
	w := zerolog.LevelWriterAdapter{Writer: console(f, true)}
	if *config.Verbose {
		return w
	}
	return &zerolog.FilteredLevelWriter{Level: LevelInfo, Writer: w}
}

func StdoutWriter() LevelWriter { return NewConsoleWriter(os.Stdout) }
func StderrWriter() LevelWriter { return NewConsoleWriter(os.Stderr) }
