package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

type Kind string

const (
	KindDebug Kind = "DEBUG"
	KindInfo  Kind = "INFO"
	KindWarn  Kind = "WARN"
	KindError Kind = "ERROR"
	KindJob   Kind = "JOB"
	KindStage Kind = "STAGE"
	KindSched Kind = "SCHED"
)

// Logger writes timestamped lines to an optional file and the terminal.
// A nil *Logger discards everything.
type Logger struct {
	mu sync.Mutex

	file io.Writer
	term io.Writer

	termColor bool
	debug     bool
	now       func() time.Time
}

type Options struct {
	File  io.Writer
	Term  io.Writer
	Color bool
	Debug bool
}

func New(opts Options) *Logger {
	return &Logger{
		file:      opts.File,
		term:      opts.Term,
		termColor: opts.Color,
		debug:     opts.Debug,
		now:       time.Now,
	}
}

// Open builds a logger for the daemon: stdout plus, when path is set, an append-only log file.
func Open(path string, debug bool) (*Logger, error) {
	opts := Options{Term: os.Stdout, Color: TermColorEnabled(os.Stdout), Debug: debug}
	if p := strings.TrimSpace(path); p != "" {
		f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", p, err)
		}
		opts.File = f
	}
	return New(opts), nil
}

func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.file.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func TermColorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	termEnv := strings.TrimSpace(os.Getenv("TERM"))
	if termEnv == "" || termEnv == "dumb" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func (l *Logger) Logf(kind Kind, format string, args ...any) {
	if l == nil {
		return
	}
	l.Log(kind, fmt.Sprintf(format, args...))
}

func (l *Logger) Log(kind Kind, msg string) {
	if l == nil {
		return
	}
	if kind == KindDebug && !l.debug {
		return
	}
	text := strings.TrimRight(msg, "\n")
	if strings.TrimSpace(text) == "" {
		return
	}

	ts := l.now().Format("2006-01-02 15:04:05.000")
	line := fmt.Sprintf("[%s] [%s] %s\n", ts, kind, text)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		_, _ = io.WriteString(l.file, line)
	}
	if l.term != nil {
		if l.termColor {
			_, _ = io.WriteString(l.term, colorize(kind, line))
		} else {
			_, _ = io.WriteString(l.term, line)
		}
	}
}

func (l *Logger) Infof(format string, args ...any)  { l.Logf(KindInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.Logf(KindWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.Logf(KindError, format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.Logf(KindDebug, format, args...) }

const (
	ansiReset   = "\x1b[0m"
	ansiBold    = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiCyan    = "\x1b[36m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiRed     = "\x1b[31m"
	ansiMagenta = "\x1b[35m"
)

func colorize(kind Kind, line string) string {
	code := ""
	switch kind {
	case KindDebug:
		code = ansiDim
	case KindInfo:
		code = ansiCyan
	case KindWarn:
		code = ansiYellow
	case KindError:
		code = ansiRed
	case KindJob:
		code = ansiBold + ansiGreen
	case KindStage:
		code = ansiGreen
	case KindSched:
		code = ansiMagenta
	default:
		return line
	}
	return code + line + ansiReset
}

// Preview flattens raw to a single line of at most max bytes.
func Preview(raw string, max int) string {
	if max <= 0 {
		return ""
	}
	text := strings.Join(strings.Fields(raw), " ")
	if len(text) <= max {
		return text
	}
	if max < 20 {
		return text[:max]
	}
	return text[:max-16] + " ... (truncated)"
}
