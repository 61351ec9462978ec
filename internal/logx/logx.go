// Package logx is the leveled logging surface shared by the compositor and
// filesystem cores. The teacher logs with plain fmt.Printf at call sites
// (video_compositor.go's "Compositor: Error ..." prints, file_io.go's
// silent error returns); this generalizes that habit into one small
// logger so CRITICAL-severity fatal conditions (spec §7) are visible
// without panicking the process.
package logx

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	Critical
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Critical:
		return "CRITICAL"
	default:
		return "?"
	}
}

// Logger writes leveled, tagged lines to an output stream. Safe for
// concurrent use by multiple loopers.
type Logger struct {
	mu  sync.Mutex
	out io.Writer
	min Level
	tag string
}

// New returns a Logger that writes to out, filtering below min.
func New(out io.Writer, min Level) *Logger {
	return &Logger{out: out, min: min}
}

// Default returns a Logger writing to stderr at Info and above.
func Default() *Logger { return New(os.Stderr, Info) }

// With returns a derived Logger prefixing every line with tag, e.g.
// log.With("fat.volume") or log.With("appserver").
func (l *Logger) With(tag string) *Logger {
	nt := tag
	if l.tag != "" {
		nt = l.tag + "." + tag
	}
	return &Logger{out: l.out, min: l.min, tag: nt}
}

func (l *Logger) log(lvl Level, format string, args ...any) {
	if lvl < l.min {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().Format("15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	if l.tag != "" {
		fmt.Fprintf(l.out, "%s [%s] %s: %s\n", ts, lvl, l.tag, msg)
	} else {
		fmt.Fprintf(l.out, "%s [%s] %s\n", ts, lvl, msg)
	}
}

func (l *Logger) Debugf(format string, args ...any)    { l.log(Debug, format, args...) }
func (l *Logger) Infof(format string, args ...any)     { l.log(Info, format, args...) }
func (l *Logger) Warnf(format string, args ...any)     { l.log(Warn, format, args...) }
func (l *Logger) Errorf(format string, args ...any)    { l.log(Error, format, args...) }
func (l *Logger) Criticalf(format string, args ...any) { l.log(Critical, format, args...) }
