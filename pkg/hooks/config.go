// Package hooks runs shell commands after refresh passes.
// Hooks are declared under the hooks key of config.yaml and run once per
// completed pass (post-render, post-redraw).
package hooks

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Phase represents when a hook runs
type Phase string

const (
	// PostRender runs after a render pass settles.
	PostRender Phase = "post-render"
	// PostRedraw runs after a redraw pass settles.
	PostRedraw Phase = "post-redraw"
)

// Error policies.
const (
	OnErrorContinue = "continue"
	OnErrorFail     = "fail"
)

// Hook defines a single hook configuration
type Hook struct {
	Name    string            `yaml:"name" json:"name"`
	Command string            `yaml:"command" json:"command"`                       // run with sh -c
	Timeout time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`   // default: 30s
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`           // values may reference $CHARTSYNC_* vars
	OnError string            `yaml:"on_error,omitempty" json:"on_error,omitempty"` // "continue" (default) or "fail"
}

// Config holds hooks by phase.
type Config struct {
	PostRender []Hook `yaml:"post-render,omitempty" json:"post-render,omitempty"`
	PostRedraw []Hook `yaml:"post-redraw,omitempty" json:"post-redraw,omitempty"`
}

// PassContext describes the finished pass to hook processes.
type PassContext struct {
	Kind      string    // CHARTSYNC_PASS_KIND
	PassID    uint64    // CHARTSYNC_PASS_ID
	Scope     string    // CHARTSYNC_PASS_SCOPE
	Charts    int       // CHARTSYNC_CHART_COUNT
	Rows      float64   // CHARTSYNC_ROWS: filtered row count, -1 when unknown
	Failed    bool      // CHARTSYNC_PASS_FAILED
	Timestamp time.Time // CHARTSYNC_TIMESTAMP (RFC3339)
}

// ToEnv converts the pass context to environment variables
func (c PassContext) ToEnv() []string {
	return []string{
		fmt.Sprintf("CHARTSYNC_PASS_KIND=%s", c.Kind),
		fmt.Sprintf("CHARTSYNC_PASS_ID=%d", c.PassID),
		fmt.Sprintf("CHARTSYNC_PASS_SCOPE=%s", c.Scope),
		fmt.Sprintf("CHARTSYNC_CHART_COUNT=%d", c.Charts),
		fmt.Sprintf("CHARTSYNC_ROWS=%g", c.Rows),
		fmt.Sprintf("CHARTSYNC_PASS_FAILED=%t", c.Failed),
		fmt.Sprintf("CHARTSYNC_TIMESTAMP=%s", c.Timestamp.Format(time.RFC3339)),
	}
}

// DefaultTimeout is the default hook execution timeout
const DefaultTimeout = 30 * time.Second

// Normalize applies defaults, drops hooks with empty commands, and returns
// a warning per dropped hook.
func (c *Config) Normalize() []string {
	var warnings []string
	c.PostRender, warnings = normalizeHooks(c.PostRender, PostRender, warnings)
	c.PostRedraw, warnings = normalizeHooks(c.PostRedraw, PostRedraw, warnings)
	return warnings
}

// Validate rejects unknown error policies.
func (c Config) Validate() error {
	for _, phase := range []Phase{PostRender, PostRedraw} {
		for _, h := range c.Get(phase) {
			switch h.OnError {
			case "", OnErrorContinue, OnErrorFail:
			default:
				return fmt.Errorf("%s hook %q: on_error must be %q or %q", phase, h.Name, OnErrorContinue, OnErrorFail)
			}
		}
	}
	return nil
}

func normalizeHooks(hooks []Hook, phase Phase, warnings []string) ([]Hook, []string) {
	var out []Hook
	for i := range hooks {
		hook := hooks[i]
		if strings.TrimSpace(hook.Command) == "" {
			warnings = append(warnings, fmt.Sprintf("%s hook %d has empty command; skipping", phase, i+1))
			continue
		}
		if hook.Timeout == 0 {
			hook.Timeout = DefaultTimeout
		}
		if hook.OnError == "" {
			hook.OnError = OnErrorContinue
		}
		if hook.Name == "" {
			hook.Name = fmt.Sprintf("%s-%d", phase, i+1)
		}
		out = append(out, hook)
	}
	return out, warnings
}

// Empty reports whether no hooks are configured.
func (c Config) Empty() bool {
	return len(c.PostRender) == 0 && len(c.PostRedraw) == 0
}

// Get returns hooks for a specific phase
func (c Config) Get(phase Phase) []Hook {
	switch phase {
	case PostRender:
		return c.PostRender
	case PostRedraw:
		return c.PostRedraw
	default:
		return nil
	}
}

// PhaseFor maps a pass kind name ("render", "redraw") to its phase.
func PhaseFor(kind string) (Phase, bool) {
	switch kind {
	case "render":
		return PostRender, true
	case "redraw":
		return PostRedraw, true
	default:
		return "", false
	}
}

// MarshalYAML writes the timeout as a duration string so it reads back.
func (h Hook) MarshalYAML() (any, error) {
	type hookDTO struct {
		Name    string            `yaml:"name,omitempty"`
		Command string            `yaml:"command"`
		Timeout string            `yaml:"timeout,omitempty"`
		Env     map[string]string `yaml:"env,omitempty"`
		OnError string            `yaml:"on_error,omitempty"`
	}
	dto := hookDTO{Name: h.Name, Command: h.Command, Env: h.Env, OnError: h.OnError}
	if h.Timeout > 0 {
		dto.Timeout = h.Timeout.String()
	}
	return dto, nil
}

// UnmarshalYAML accepts timeouts as durations ("5s") or bare seconds ("30").
func (h *Hook) UnmarshalYAML(node *yaml.Node) error {
	// Mirrors Hook except for Timeout.
	type hookDTO struct {
		Name    string            `yaml:"name"`
		Command string            `yaml:"command"`
		Timeout string            `yaml:"timeout,omitempty"`
		Env     map[string]string `yaml:"env,omitempty"`
		OnError string            `yaml:"on_error,omitempty"`
	}

	var dto hookDTO
	if err := node.Decode(&dto); err != nil {
		return err
	}

	h.Name = dto.Name
	h.Command = dto.Command
	h.Env = dto.Env
	h.OnError = dto.OnError

	if dto.Timeout != "" {
		d, err := time.ParseDuration(dto.Timeout)
		if err == nil {
			h.Timeout = d
		} else {
			var seconds float64
			if _, scanErr := fmt.Sscanf(dto.Timeout, "%f", &seconds); scanErr == nil {
				h.Timeout = time.Duration(seconds * float64(time.Second))
			} else {
				return fmt.Errorf("invalid timeout %q: %w", dto.Timeout, err)
			}
		}
	}

	return nil
}
