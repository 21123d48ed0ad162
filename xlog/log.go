package xlog

import (
	"context"
	"fmt"
	"io"
	llog "log"
	"log/slog"

	pkgerr "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

type Logger = zerolog.Logger
type Level = zerolog.Level
type LevelWriter = zerolog.LevelWriter
type Context = zerolog.Context
type Event = zerolog.Event

const (
	LevelTrace    = zerolog.TraceLevel
	LevelDebug    = zerolog.DebugLevel
	LevelInfo     = zerolog.InfoLevel
	LevelWarn     = zerolog.WarnLevel
	LevelError    = zerolog.ErrorLevel
	LevelFatal    = zerolog.FatalLevel
	LevelSuppress = zerolog.Disabled
)

var defaultOutput io.Writer = StderrWriter()

type DefaultWriter struct{}

func (DefaultWriter) Write(p []byte) (n int, err error) { return defaultOutput.Write(p) }

func Default() *Logger { return &log.Logger }

// SetDefaultOutput replaces where DefaultWriter goes. Not safe for concurrent use.
func SetDefaultOutput(w ...io.Writer) {
	defaultOutput = zerolog.MultiLevelWriter(w...)
}

func WrapStackError(err error) error {
	return pkgerr.WithStack(err)
}

func init() {
	log.Logger = *NewDomain("lrpc", DefaultWriter{})

	slog.SetDefault(ToSlog(&log.Logger))
	llog.Default().SetFlags(0)
	llog.Default().SetOutput(ToLineWriter(&log.Logger, LevelInfo))

	zerolog.LevelFieldName = "l"
	zerolog.TimestampFieldName = "t"
	zerolog.MessageFieldName = "msg"
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zerolog.CallerFieldName = DomainFieldName
	zerolog.DefaultContextLogger = &log.Logger
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
}

func SetLoggerLevel(level Level) {
	zerolog.SetGlobalLevel(level)
}

func With() Context {
	return log.Logger.With()
}

// Err starts an error level event carrying err, or an info level one if err is nil.
func Err(err error) *Event {
	return log.Logger.Err(err)
}

// ErrStack is Err with the stack trace of err attached.
func ErrStack(err any) *Event {
	if err == nil {
		return log.Logger.Info()
	}
	e, ok := err.(error)
	if !ok {
		e = pkgerr.New(fmt.Sprint(err))
	} else {
		e = WrapStackError(e)
	}
	return log.Logger.Error().Stack().Err(e)
}

func Trace() *Event { return log.Logger.Trace() }
func Debug() *Event { return log.Logger.Debug() }
func Info() *Event  { return log.Logger.Info() }
func Warn() *Event  { return log.Logger.Warn() }
func Error() *Event { return log.Logger.Error() }
func Fatal() *Event { return log.Logger.Fatal() }

func DebugC(ctx context.Context) *Event { return Ctx(ctx).Debug() }
func WarnC(ctx context.Context) *Event  { return Ctx(ctx).Warn() }

// Ctx returns the Logger associated with ctx, or the default logger.
func Ctx(ctx context.Context) *Logger {
	return zerolog.Ctx(ctx)
}
