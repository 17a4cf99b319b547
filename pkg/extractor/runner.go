package extractor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"sync"
	"time"
)

// DefaultMaxBufferSize bounds captured stdout and stderr
const DefaultMaxBufferSize = 1024 * 1024

// limitedBuffer wraps bytes.Buffer with a size limit to prevent memory exhaustion
type limitedBuffer struct {
	bytes.Buffer
	limit int
}

func (lb *limitedBuffer) Write(p []byte) (n int, err error) {
	if lb.Len()+len(p) > lb.limit {
		remaining := lb.limit - lb.Len()
		if remaining > 0 {
			lb.Buffer.Write(p[:remaining])
		}
		return len(p), nil // pretend we wrote it all
	}
	return lb.Buffer.Write(p)
}

// lineWriter calls fn for every complete line written to it. A line longer
// than limit is cut at limit bytes and the rest of it is discarded.
type lineWriter struct {
	mu      sync.Mutex
	pending []byte
	limit   int
	fn      func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(p)
	limit := w.limit
	if limit <= 0 {
		limit = DefaultMaxBufferSize
	}

	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		chunk := p
		if i >= 0 {
			chunk = p[:i]
		}
		if room := limit - len(w.pending); room > 0 {
			if len(chunk) > room {
				chunk = chunk[:room]
			}
			w.pending = append(w.pending, chunk...)
		}
		if i < 0 {
			break
		}
		w.fn(string(bytes.TrimRight(w.pending, "\r")))
		w.pending = w.pending[:0]
		p = p[i+1:]
	}
	return n, nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) > 0 {
		w.fn(string(bytes.TrimRight(w.pending, "\r")))
		w.pending = nil
	}
}

// CommandOutput holds the output from a command execution
type CommandOutput struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// CommandRunner executes a command, streaming stdout lines to onLine
type CommandRunner interface {
	RunWithOutputAndContext(ctx context.Context, command []string, onLine func(string)) (CommandOutput, error)
}

// SystemCommandRunner implements CommandRunner using os/exec
type SystemCommandRunner struct {
	// MaxBufferSize caps each captured stream; 0 uses DefaultMaxBufferSize.
	MaxBufferSize int
}

// RunWithOutputAndContext executes a command with context and captures output.
// A non-zero exit is reported through ExitCode with a nil error.
func (r *SystemCommandRunner) RunWithOutputAndContext(ctx context.Context, command []string, onLine func(string)) (CommandOutput, error) {
	if len(command) == 0 {
		return CommandOutput{ExitCode: -1}, errors.New("empty command")
	}

	limit := r.MaxBufferSize
	if limit <= 0 {
		limit = DefaultMaxBufferSize
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.WaitDelay = 5 * time.Second

	stdoutBuf := &limitedBuffer{limit: limit}
	stderrBuf := &limitedBuffer{limit: limit}
	var lines *lineWriter
	if onLine != nil {
		lines = &lineWriter{fn: onLine, limit: limit}
		cmd.Stdout = io.MultiWriter(stdoutBuf, lines)
	} else {
		cmd.Stdout = stdoutBuf
	}
	cmd.Stderr = stderrBuf

	err := cmd.Run()
	if lines != nil {
		lines.flush()
	}

	output := CommandOutput{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			output.ExitCode = -1
			return output, ctxErr
		}
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			output.ExitCode = exitError.ExitCode()
			return output, nil
		}
		output.ExitCode = -1
		return output, err
	}

	output.ExitCode = 0
	return output, nil
}
