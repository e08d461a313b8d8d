package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/indigo-web/origin/config"
	"github.com/indigo-web/origin/http"
	"github.com/indigo-web/origin/internal/bounded"
)

var (
	ErrOutsideRoot = errors.New("script is outside of the document root")
	ErrNoOutput    = errors.New("no output before the deadline")
	ErrStalled     = errors.New("output isn't finished before the drain deadline")
	ErrTruncated   = errors.New("output exceeds the limit")
)

const (
	readSize     = 4096
	stderrLength = 512
)

// Guard tells whether a canonical path lies within the document root.
type Guard interface {
	Contains(canonical string) bool
}

// Executor runs scripts through an external interpreter, one subprocess per invocation.
// The interpreter's standard output is the only channel back, and it's drained with a
// fixed deadline for the first byte, then until it's closed. No subprocess outlives
// the Run call
type Executor struct {
	guard       Guard
	interpreter string
	timeout     time.Duration
	drain       time.Duration
	grace       time.Duration
	maxOutput   int
	extraEnv    []string
}

func NewExecutor(cfg config.Script, guard Guard) *Executor {
	keys := make([]string, 0, len(cfg.Env))
	for key := range cfg.Env {
		keys = append(keys, key)
	}

	sort.Strings(keys)
	extraEnv := make([]string, 0, len(keys))
	for _, key := range keys {
		extraEnv = append(extraEnv, key+"="+cfg.Env[key])
	}

	return &Executor{
		guard:       guard,
		interpreter: cfg.Interpreter,
		timeout:     cfg.Timeout.Std(),
		drain:       max(cfg.DrainTimeout.Std(), cfg.Timeout.Std()),
		grace:       cfg.ReapGrace.Std(),
		maxOutput:   cfg.MaxOutput,
		extraEnv:    extraEnv,
	}
}

// Run executes the script and returns everything it has written to its standard output.
// A nil error means the interpreter exited normally with zero status. The output is
// returned even on failure, as it might be useful for diagnostics.
//
// Cancelling the context kills the interpreter.
func (e *Executor) Run(ctx context.Context, script string, request *http.Request) ([]byte, error) {
	canonical, err := filepath.EvalSymlinks(script)
	if err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}

	if !e.guard.Contains(canonical) {
		return nil, fmt.Errorf("script: %s: %w", canonical, ErrOutsideRoot)
	}

	now := time.Now()
	ready, drained := now.Add(e.timeout), now.Add(e.drain)
	// the hard deadline kills the interpreter even if the pipe doesn't support deadlines
	ctx, cancel := context.WithDeadline(ctx, drained.Add(e.grace))
	defer cancel()

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("script: pipe: %w", err)
	}

	stderr := newTail(stderrLength)
	cmd := exec.CommandContext(ctx, e.interpreter, canonical)
	cmd.Dir = filepath.Dir(canonical)
	cmd.Env = e.environ(canonical, request)
	cmd.Stdout = w
	cmd.Stderr = stderr
	cmd.WaitDelay = e.grace
	if len(request.Body) > 0 {
		cmd.Stdin = bytes.NewReader(request.Body)
	}

	if err = cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, fmt.Errorf("script: start %s: %w", e.interpreter, err)
	}

	// only the child must hold the write end, otherwise no EOF will ever be seen
	_ = w.Close()

	output, readErr := e.collect(r, ready, drained)
	// closing the read end before reaping makes the child fail on writes instead of blocking
	_ = r.Close()

	late := errors.Is(readErr, ErrNoOutput) || errors.Is(readErr, ErrStalled)
	if late {
		cancel()
	}

	waitErr := e.reap(cmd, cancel)

	switch {
	case late:
		return output, fmt.Errorf("script: %s: %w", canonical, readErr)
	case errors.Is(readErr, bounded.ErrLimitReached) && waitErr != nil:
		return output, fmt.Errorf("script: %s: %w", canonical, ErrTruncated)
	case waitErr != nil:
		return output, fmt.Errorf("script: %s: %w%s", canonical, waitErr, stderr.Describe())
	case readErr != nil && !errors.Is(readErr, bounded.ErrLimitReached):
		return output, fmt.Errorf("script: %s: read: %w", canonical, readErr)
	}

	return output, nil
}

// collect waits until the first byte is ready, then drains the output until EOF, the
// limit or the drain deadline
func (e *Executor) collect(r *os.File, ready, drained time.Time) ([]byte, error) {
	collector := bounded.NewCollector(readSize)

	output, err := collector.Collect(r, nil, e.maxOutput, ready, hasOutput)
	switch {
	case errors.Is(err, io.EOF):
		// closed without writing anything
		return output, nil
	case bounded.IsTimeout(err):
		return output, ErrNoOutput
	case err != nil:
		return output, err
	}

	output, err = collector.Collect(r, output, e.maxOutput, drained, nil)
	if bounded.IsTimeout(err) {
		return output, ErrStalled
	}

	return output, err
}

func hasOutput(collected []byte) bool {
	return len(collected) > 0
}

// reap waits for the interpreter to exit. If it lingers longer than the grace period,
// it's killed. Without the grace period, it's waited for until the hard deadline
func (e *Executor) reap(cmd *exec.Cmd, kill context.CancelFunc) error {
	if e.grace <= 0 {
		return cmd.Wait()
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(e.grace)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		kill()
		return <-done
	}
}

// environ builds the interpreter's environment from scratch. Nothing is inherited
// from the server process
func (e *Executor) environ(script string, request *http.Request) []string {
	env := make([]string, 0, 5+len(e.extraEnv))
	env = append(env,
		"REQUEST_METHOD="+request.Method.String(),
		"SCRIPT_FILENAME="+script,
		"REQUEST_URI="+request.Target,
	)

	if len(request.Body) > 0 {
		env = append(env, "CONTENT_LENGTH="+strconv.Itoa(len(request.Body)))

		if contentType, found := request.Header("content-type"); found {
			env = append(env, "CONTENT_TYPE="+contentType)
		}
	}

	return append(env, e.extraEnv...)
}
