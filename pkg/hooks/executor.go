package hooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/vanderheijden86/chartsync/pkg/eventlog"
)

// maxOutput bounds the stdout/stderr kept per hook result.
const maxOutput = 4096

// Result is the outcome of one hook execution.
type Result struct {
	Hook     Hook
	Phase    Phase
	Success  bool
	Stdout   string
	Stderr   string
	Error    error
	Duration time.Duration
}

// Executor runs configured hooks and keeps their results.
type Executor struct {
	config Config
	log    *eventlog.Logger

	mu      sync.Mutex
	results []Result
}

// NewExecutor creates an executor for cfg. A nil logger discards output.
func NewExecutor(cfg Config, log *eventlog.Logger) *Executor {
	return &Executor{config: cfg, log: log.Named("hooks")}
}

// Run executes the hooks of phase in order. A failing hook with
// on_error=fail stops the remaining hooks and its error is returned; other
// failures are recorded and skipped.
func (e *Executor) Run(ctx context.Context, phase Phase, pc PassContext) error {
	for _, h := range e.config.Get(phase) {
		res := e.runHook(ctx, h, phase, pc)
		e.mu.Lock()
		e.results = append(e.results, res)
		e.mu.Unlock()

		if res.Success {
			e.log.Debug("hook_ok", map[string]any{"hook": h.Name, "phase": string(phase), "ms": res.Duration.Milliseconds()})
			continue
		}
		e.log.Warn("hook_failed", map[string]any{
			"hook":   h.Name,
			"phase":  string(phase),
			"error":  res.Error,
			"stderr": truncate(res.Stderr, 200),
		})
		if h.OnError == OnErrorFail {
			return fmt.Errorf("%s hook %q failed: %w", phase, h.Name, res.Error)
		}
	}
	return nil
}

func (e *Executor) runHook(ctx context.Context, h Hook, phase Phase, pc PassContext) Result {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	passEnv := pc.ToEnv()
	env := append(os.Environ(), passEnv...)
	for k, v := range h.Env {
		env = append(env, k+"="+expandWith(v, passEnv))
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", h.Command)
	cmd.Env = env
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Hook:     h,
		Phase:    phase,
		Stdout:   truncate(strings.TrimSpace(stdout.String()), maxOutput),
		Stderr:   truncate(strings.TrimSpace(stderr.String()), maxOutput),
		Duration: time.Since(start),
	}
	switch {
	case err == nil:
		res.Success = true
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Error = fmt.Errorf("timed out after %s", timeout)
	default:
		res.Error = err
	}
	return res
}

// Results returns a copy of the results recorded so far.
func (e *Executor) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Result(nil), e.results...)
}

// Summary returns a one-line tally of hook outcomes.
func (e *Executor) Summary() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.results) == 0 {
		return "no hooks run"
	}
	var ok, failed int
	for _, r := range e.results {
		if r.Success {
			ok++
		} else {
			failed++
		}
	}
	return fmt.Sprintf("hooks: %d succeeded, %d failed", ok, failed)
}

// expandWith expands $VAR references against vars first, then the process
// environment.
func expandWith(s string, vars []string) string {
	return os.Expand(s, func(key string) string {
		for _, kv := range vars {
			if k, v, ok := strings.Cut(kv, "="); ok && k == key {
				return v
			}
		}
		return os.Getenv(key)
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
