package framework

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// Logger is a minimal logging interface so components can write debug output
// either to the console or to a test's captured output.
type Logger interface {
	Printf(message string, args ...interface{})
}

type nullLogger struct{}

func (n nullLogger) Printf(message string, args ...interface{}) {}

// NullLogger returns a Logger that discards all output.
func NullLogger() Logger { return nullLogger{} }

// PrefixedLogger returns a Logger that prepends a fixed prefix to every
// message before passing it on, to distinguish interleaved sources.
func PrefixedLogger(wrapped Logger, prefix string) Logger {
	return prefixedLogger{wrapped: wrapped, prefix: prefix}
}

type prefixedLogger struct {
	wrapped Logger
	prefix  string
}

func (p prefixedLogger) Printf(message string, args ...interface{}) {
	p.wrapped.Printf("%s%s", p.prefix, fmt.Sprintf(message, args...))
}

type CapturedMessage struct {
	Time    time.Time
	Message string
}

type CapturedOutput []CapturedMessage

// CapturingLogger accumulates messages in memory. Each test has one, so its
// debug output can be dumped only if the test fails.
type CapturingLogger struct {
	output []CapturedMessage
	lock   sync.Mutex
}

func (l *CapturingLogger) Printf(message string, args ...interface{}) {
	l.lock.Lock()
	l.output = append(l.output, CapturedMessage{Time: time.Now(), Message: fmt.Sprintf(message, args...)})
	l.lock.Unlock()
}

func (l *CapturingLogger) Output() CapturedOutput {
	l.lock.Lock()
	ret := append([]CapturedMessage(nil), l.output...)
	l.lock.Unlock()
	return ret
}

func (output CapturedOutput) Dump(dest io.Writer, prefix string) {
	for _, m := range output {
		fmt.Fprintf(dest, "%s[%s] %s\n",
			prefix,
			m.Time.Format(timestampFormat),
			m.Message,
		)
	}
}
