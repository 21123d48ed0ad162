package xlog

import (
	"io"
	"path/filepath"
	"time"

	"github.com/pme-sh/lrpc/config"
	"github.com/pme-sh/lrpc/lru"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LogRetentionDays = 14
	LogMaxSizeMB     = 16
)

var rotators = lru.Cache[string, *lumberjack.Logger]{
	Expiry:          5 * time.Minute,
	CleanupInterval: 10 * time.Minute,
	New: func(s string, e *lru.Entry[*lumberjack.Logger]) error {
		e.Value = &lumberjack.Logger{
			Filename: s,
			MaxSize:  LogMaxSizeMB,
			MaxAge:   LogRetentionDays,
		}
		return nil
	},
	Evict: func(_ string, l *lumberjack.Logger) {
		l.Close()
	},
}

// sharedFile holds a reference on a rotating file so that every writer of the
// same path shares one lumberjack.Logger.
type sharedFile struct {
	entry *lru.Entry[*lumberjack.Logger]
}

func (s sharedFile) Close() error {
	s.entry.Release()
	return nil
}
func (s sharedFile) Write(p []byte) (int, error) {
	return s.entry.Value.Write(p)
}

type noCloser struct {
	io.Writer
}

func (noCloser) Close() error { return nil }

// FileWriter opens a rotating log file. Relative names go under the log directory,
// "stderr" is the default output and "null" discards.
func FileWriter(name string) (io.WriteCloser, error) {
	switch name {
	case "", "stderr", "stdout":
		return noCloser{DefaultWriter{}}, nil
	case "null", "/dev/null":
		return noCloser{io.Discard}, nil
	}
	if !filepath.IsAbs(name) {
		name = config.LogDir.File(name)
	}
	entry, err := rotators.Acquire(name)
	if err != nil {
		return nil, err
	}
	return sharedFile{entry}, nil
}
