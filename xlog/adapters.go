package xlog

import (
	"bytes"
	"log/slog"
	"sync"

	slogzerolog "github.com/samber/slog-zerolog/v2"
)

// LineWriter turns writes of plain text into one event per line.
type LineWriter struct {
	logger *Logger
	level  Level
	mu     sync.Mutex
	buf    bytes.Buffer
}

func (w *LineWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, rest, ok := bytes.Cut(w.buf.Bytes(), []byte{'\n'})
		if !ok {
			break
		}
		if line = bytes.TrimRight(line, "\r"); len(line) != 0 {
			w.logger.WithLevel(w.level).Msg(string(line))
		}
		w.buf.Next(len(w.buf.Bytes()) - len(rest))
	}
	return len(p), nil
}

func ToLineWriter(logger *Logger, level Level) *LineWriter {
	return &LineWriter{logger: logger, level: level}
}

// ToSlog creates a slog.Logger that writes to logger.
func ToSlog(logger *Logger) *slog.Logger {
	return slog.New(slogzerolog.Option{
		Logger: logger,
	}.NewZerologHandler())
}
