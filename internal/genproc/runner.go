package genproc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"chatrelay/internal/logger"
)

var (
	ErrNotStarted     = errors.New("generator process not started")
	ErrAlreadyStarted = errors.New("generator process already started")
	ErrFeedTimeout    = errors.New("writing prompt to generator timed out")
)

// Generator is one external text-generation invocation. Implementations spawn
// the process, accept the whole prompt over its input channel, and expose the
// output as an ordered incremental stream while accumulating the full reply.
type Generator interface {
	// Start spawns the process. A failure here is fatal for the request.
	Start(ctx context.Context) error
	// Feed writes the entire prompt to the process stdin and closes it,
	// signalling end-of-input. The write is bounded so a large prompt can
	// never deadlock against a process that is not yet consuming.
	Feed(prompt string) error
	// Chunks yields output increments in emission order; closed at end of
	// stream. Receivers must drain it to completion.
	Chunks() <-chan string
	// Wait reaps the process after the chunk channel closes and reports a
	// non-zero exit status as an error.
	Wait() error
	// Accumulated is the ordered concatenation of every chunk produced so
	// far. After Chunks closes it equals the full reply.
	Accumulated() string
}

// Factory produces one Generator per request.
type Factory interface {
	New() Generator
}

// ProcessRunner runs a generation binary as a child process with dedicated
// stdin/stdout/stderr pipes. Output is forwarded line-buffered; stderr is
// always drained so the child can never block on a full pipe.
type ProcessRunner struct {
	binary      string
	args        []string
	feedTimeout time.Duration
	log         *logger.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	chunks chan string

	mu   sync.Mutex
	full strings.Builder

	drained sync.WaitGroup
}

func NewProcessRunner(binary string, args []string, feedTimeout time.Duration, log *logger.Logger) *ProcessRunner {
	if feedTimeout <= 0 {
		feedTimeout = 30 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ProcessRunner{
		binary:      binary,
		args:        args,
		feedTimeout: feedTimeout,
		log:         log,
		chunks:      make(chan string, 64),
	}
}

func (r *ProcessRunner) Start(ctx context.Context) error {
	if r.cmd != nil {
		return ErrAlreadyStarted
	}

	cmd := exec.CommandContext(ctx, r.binary, r.args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin pipe failed: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open stdout pipe failed: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("open stderr pipe failed: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn generator %q failed: %w", r.binary, err)
	}

	r.cmd = cmd
	r.stdin = stdin

	r.drained.Add(2)
	go r.drainStdout(stdout)
	go r.drainStderr(stderr)

	return nil
}

func (r *ProcessRunner) Feed(prompt string) error {
	if r.cmd == nil {
		return ErrNotStarted
	}

	errc := make(chan error, 1)
	go func() {
		_, writeErr := io.WriteString(r.stdin, prompt)
		closeErr := r.stdin.Close()
		if writeErr == nil {
			writeErr = closeErr
		}
		errc <- writeErr
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("feed prompt failed: %w", err)
		}
		return nil
	case <-time.After(r.feedTimeout):
		// The writer goroutine stays blocked until the process dies; Wait
		// unblocks it by tearing the pipes down.
		return ErrFeedTimeout
	}
}

func (r *ProcessRunner) Chunks() <-chan string {
	return r.chunks
}

func (r *ProcessRunner) Wait() error {
	if r.cmd == nil {
		return ErrNotStarted
	}

	r.drained.Wait()
	if err := r.cmd.Wait(); err != nil {
		return fmt.Errorf("generator exited abnormally: %w", err)
	}
	return nil
}

func (r *ProcessRunner) Accumulated() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.full.String()
}

func (r *ProcessRunner) drainStdout(stdout io.Reader) {
	defer r.drained.Done()
	defer close(r.chunks)

	reader := bufio.NewReader(stdout)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			r.mu.Lock()
			r.full.WriteString(line)
			r.mu.Unlock()
			r.chunks <- line
		}
		if err != nil {
			return
		}
	}
}

func (r *ProcessRunner) drainStderr(stderr io.Reader) {
	defer r.drained.Done()

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		r.log.Debug("generator stderr", "line", scanner.Text())
	}
}
