package host

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/platinummonkey/toolhost/pkg/observability"
)

// Console is the user-facing output of the hosting script
type Console interface {
	Println(msg string)
	PrintStackTrace(err error, stack []byte)
}

// WriterConsole writes console lines to an io.Writer and mirrors each line
// to the structured logger
type WriterConsole struct {
	out    io.Writer
	logger *observability.Logger
	mu     sync.Mutex
}

// NewWriterConsole creates a console writing to out. A nil writer means
// stdout, a nil logger disables mirroring.
func NewWriterConsole(out io.Writer, logger *observability.Logger) *WriterConsole {
	if out == nil {
		out = os.Stdout
	}
	return &WriterConsole{out: out, logger: logger}
}

// Println writes a single line
func (c *WriterConsole) Println(msg string) {
	c.mu.Lock()
	fmt.Fprintln(c.out, msg)
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.WithField("source", "console").Info(msg)
	}
}

// PrintStackTrace writes the error followed by the stack, one frame line
// per console line
func (c *WriterConsole) PrintStackTrace(err error, stack []byte) {
	c.mu.Lock()
	if err != nil {
		fmt.Fprintln(c.out, err.Error())
	}
	if len(stack) > 0 {
		trace := strings.TrimRight(string(stack), "\n")
		fmt.Fprintln(c.out, trace)
	}
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.WithError(err).
			WithField("source", "console").
			WithField("stack", string(stack)).
			Error("stack trace")
	}
}

// BufferConsole records console output in memory
type BufferConsole struct {
	lines []string
	mu    sync.Mutex
}

// Println records a line
func (c *BufferConsole) Println(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, msg)
}

// PrintStackTrace records the error and each line of the stack
func (c *BufferConsole) PrintStackTrace(err error, stack []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lines = append(c.lines, err.Error())
	}
	for _, line := range strings.Split(strings.TrimRight(string(stack), "\n"), "\n") {
		if line != "" {
			c.lines = append(c.lines, line)
		}
	}
}

// Lines returns a copy of every recorded line
func (c *BufferConsole) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// String returns the recorded output joined by newlines
func (c *BufferConsole) String() string {
	return strings.Join(c.Lines(), "\n")
}
