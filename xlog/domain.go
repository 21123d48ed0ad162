package xlog

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rs/zerolog"
)

// Domains name the component a logger speaks for ("lrpc", "lrpc.channel"). The
// name is stamped into every event under DomainFieldName.
const (
	DomainFieldName = "dom"
)

type Domain struct {
	name        string
	encodedName []byte
	logger      Logger
}

func (d *Domain) String() string { return d.name }

// Implement zerolog.Hook
func (d *Domain) Run(e *Event, level Level, msg string) {
	e.Timestamp()
	if e.Enabled() {
		e.RawJSON(DomainFieldName, d.encodedName)
	}
}

// NewDomain creates a logger for the named domain writing to w, or to the default
// output when w is empty.
func NewDomain(name string, w ...io.Writer) (l *Logger) {
	if len(w) == 0 {
		w = append(w, DefaultWriter{})
	}
	dom := &Domain{name: name}
	dom.encodedName, _ = json.Marshal(name)
	dom.logger = zerolog.New(zerolog.MultiLevelWriter(w...)).Hook(dom)
	return &dom.logger
}

// Sub creates a child domain of the default logger's domain.
func Sub(name string) *Logger {
	return NewDomain("lrpc." + name)
}

// WithContext attaches l to ctx; Ctx retrieves it.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return l.WithContext(ctx)
}
