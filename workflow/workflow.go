package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	obs "github.com/KamdynS/bedrock-agents/observability"
)

// StepFunc is the function executed by a step. It receives the previous output and returns the next output.
type StepFunc func(ctx context.Context, input any) (any, error)

// ConditionFunc decides whether the step/edge should execute.
type ConditionFunc func(ctx context.Context, input any, previousOutput any) bool

// MergeFunc combines outputs from multiple branches, in branch declaration order.
type MergeFunc func(ctx context.Context, inputs []any) (any, error)

// Event types emitted during Run.
const (
	EventStart   = "start_step"
	EventEnd     = "end_step"
	EventError   = "error"
	EventSkipped = "skipped"
	EventSuspend = "suspended"
)

// Event represents a single execution event for observability/streaming.
type Event struct {
	Type      string        `json:"type"`
	Step      string        `json:"step"`
	Status    string        `json:"status"` // "ok" or "error"
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration,omitempty"`
	Output    any           `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Option configures workflow runs.
type Option func(*runConfig)

type runConfig struct {
	events    chan<- Event
	suspender Suspender
}

// WithEvents streams events to the provided channel during Run. Sends never block.
func WithEvents(events chan<- Event) Option { return func(rc *runConfig) { rc.events = events } }

// WithSuspender persists the state of a step that calls RequestSuspend.
func WithSuspender(s Suspender) Option { return func(rc *runConfig) { rc.suspender = s } }

// Typed adapts a typed function to a StepFunc. A mismatched input type is an error.
func Typed[In, Out any](fn func(ctx context.Context, in In) (Out, error)) StepFunc {
	return func(ctx context.Context, input any) (any, error) {
		in, ok := input.(In)
		if !ok {
			var zero In
			return nil, fmt.Errorf("step input: got %T, want %T", input, zero)
		}
		return fn(ctx, in)
	}
}

type step struct {
	name     string
	fn       StepFunc
	precond  ConditionFunc
	next     *step
	branches []*step
	brConds  []ConditionFunc
	merge    *mergeStep
	pass     bool
}

type mergeStep struct {
	name string
	fn   MergeFunc
	next *step
}

// Builder constructs a workflow graph using a fluent API.
type Builder struct {
	name          string
	root          *step
	current       *step
	branchParent  *step
	lastBranchIdx int
}

// New creates a workflow builder.
func New() *Builder { return &Builder{lastBranchIdx: -1} }

// Named creates a workflow builder whose workflow reports name in spans and logs.
func Named(name string) *Builder { return &Builder{name: name, lastBranchIdx: -1} }

// Branch creates a new branch builder with a single root step.
func Branch(name string, fn StepFunc) *Builder {
	return New().Step(name, fn)
}

// Step adds a step. The first step becomes the root; later steps chain after the current one.
func (b *Builder) Step(name string, fn StepFunc) *Builder {
	s := &step{name: name, fn: fn}
	if b.root == nil {
		b.root = s
	} else {
		b.current.next = s
	}
	b.current = s
	b.branchParent = nil
	b.lastBranchIdx = -1
	return b
}

// Then is an alias for Step.
func (b *Builder) Then(name string, fn StepFunc) *Builder { return b.Step(name, fn) }

// When applies a condition to the last attached branch edge, or else to the current step.
// A skipped step passes its input through unchanged.
func (b *Builder) When(cond ConditionFunc) *Builder {
	if cond == nil {
		return b
	}
	if p := b.branchParent; p != nil && b.lastBranchIdx >= 0 {
		for len(p.brConds) < len(p.branches) {
			p.brConds = append(p.brConds, nil)
		}
		p.brConds[b.lastBranchIdx] = cond
		return b
	}
	if b.current != nil {
		b.current.precond = cond
	}
	return b
}

// Branch attaches branches to the current step. Branches run concurrently; use Merge to combine them.
func (b *Builder) Branch(branches ...*Builder) *Builder {
	if b.current == nil {
		return b
	}
	for _, child := range branches {
		if child == nil || child.root == nil {
			continue
		}
		b.current.branches = append(b.current.branches, child.root)
		b.branchParent = b.current
		b.lastBranchIdx = len(b.current.branches) - 1
	}
	return b
}

// Merge combines the outputs of the current step's branches. Later Then calls chain after the merge.
func (b *Builder) Merge(name string, fn MergeFunc) *Builder {
	parent := b.current
	if parent == nil || len(parent.branches) == 0 || parent.merge != nil {
		return b
	}
	parent.merge = &mergeStep{name: name, fn: fn}
	// passthrough node so Then can chain after the merge
	pass := &step{name: name, pass: true, fn: func(ctx context.Context, in any) (any, error) { return in, nil }}
	parent.merge.next = pass
	b.current = pass
	b.branchParent = nil
	b.lastBranchIdx = -1
	return b
}

// Build finalizes the workflow and returns a runnable Workflow.
func (b *Builder) Build() *Workflow { return &Workflow{name: b.name, root: b.root} }

// Workflow executes a built graph.
type Workflow struct {
	name string
	root *step
}

// Name returns the name given to Named, or "".
func (w *Workflow) Name() string {
	if w == nil {
		return ""
	}
	return w.name
}

// Run executes the workflow from its root.
func (w *Workflow) Run(ctx context.Context, input any, opts ...Option) (any, error) {
	if w == nil || w.root == nil {
		return input, nil
	}
	return w.run(ctx, w.root, input, opts)
}

// Resume continues a suspended run after the step recorded in state.Cursor, feeding it state.Data.
func (w *Workflow) Resume(ctx context.Context, state *SuspendState, opts ...Option) (any, error) {
	if state == nil {
		return nil, errors.New("nil suspend state")
	}
	if w == nil || w.root == nil {
		return nil, ErrNoRoot
	}
	s := w.find(state.Cursor)
	if s == nil {
		return nil, fmt.Errorf("resume: unknown step %q", state.Cursor)
	}
	if s.next == nil {
		return state.Data, nil
	}
	return w.run(ctx, s.next, state.Data, opts)
}

func (w *Workflow) run(ctx context.Context, from *step, input any, opts []Option) (any, error) {
	rc := &runConfig{}
	for _, o := range opts {
		o(rc)
	}
	span, ctx := obs.TracerImpl.StartSpan(ctx, "workflow.run")
	span.SetAttribute("workflow.name", w.name)
	defer span.End()

	out, err := w.execChain(ctx, from, input, rc)
	if err != nil {
		var se *suspendError
		if errors.As(err, &se) {
			if rc.suspender != nil {
				if serr := rc.suspender.Save(ctx, &se.state); serr != nil {
					return nil, fmt.Errorf("save suspended state: %w", serr)
				}
			}
			span.SetStatus(obs.StatusCodeOk, "suspended")
			return nil, err
		}
		span.SetStatus(obs.StatusCodeError, err.Error())
		return nil, err
	}
	span.SetStatus(obs.StatusCodeOk, "")
	return out, nil
}

func (w *Workflow) execChain(ctx context.Context, s *step, in any, rc *runConfig) (any, error) {
	prev := in
	for cur := s; cur != nil; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cur.precond != nil && !cur.precond(ctx, in, prev) {
			emit(rc, Event{Type: EventSkipped, Step: cur.name, Status: "ok", Timestamp: time.Now()})
			cur = cur.next
			continue
		}
		if cur.pass {
			cur = cur.next
			continue
		}
		out, err := w.execStep(ctx, cur.name, func(ctx context.Context) (any, error) { return cur.fn(ctx, prev) }, rc)
		if err != nil {
			return nil, err
		}
		if len(cur.branches) == 0 {
			in, prev = prev, out
			cur = cur.next
			continue
		}

		results, err := w.execBranches(ctx, cur, out, rc)
		if err != nil {
			return nil, err
		}
		if cur.merge == nil {
			if len(results) > 0 {
				return results[len(results)-1], nil
			}
			return out, nil
		}
		m := cur.merge
		merged, err := w.execStep(ctx, m.name, func(ctx context.Context) (any, error) { return m.fn(ctx, results) }, rc)
		if err != nil {
			return nil, err
		}
		in, prev = out, merged
		cur = m.next
	}
	return prev, nil
}

// execBranches runs the eligible branches concurrently and returns their outputs in declaration order.
func (w *Workflow) execBranches(ctx context.Context, parent *step, out any, rc *runConfig) ([]any, error) {
	results := make([]any, len(parent.branches))
	ran := make([]bool, len(parent.branches))
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range parent.branches {
		if i < len(parent.brConds) && parent.brConds[i] != nil && !parent.brConds[i](ctx, out, out) {
			emit(rc, Event{Type: EventSkipped, Step: child.name, Status: "ok", Timestamp: time.Now()})
			continue
		}
		ran[i] = true
		g.Go(func() error {
			r, err := w.execChain(gctx, child, out, rc)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	kept := results[:0]
	for i, r := range results {
		if ran[i] {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

func (w *Workflow) execStep(ctx context.Context, name string, fn func(context.Context) (any, error), rc *runConfig) (any, error) {
	start := time.Now()
	span, ctx := obs.TracerImpl.StartSpan(ctx, "workflow.step")
	span.SetAttribute("workflow.step", name)
	defer span.End()

	emit(rc, Event{Type: EventStart, Step: name, Status: "ok", Timestamp: start})
	out, err := fn(ctx)
	elapsed := time.Since(start)
	if err != nil {
		var se *suspendError
		if errors.As(err, &se) {
			if se.state.Cursor == "" {
				se.state.Cursor = name
			}
			emit(rc, Event{Type: EventSuspend, Step: name, Status: "ok", Timestamp: time.Now(), Duration: elapsed})
			return nil, err
		}
		span.SetStatus(obs.StatusCodeError, err.Error())
		emit(rc, Event{Type: EventError, Step: name, Status: "error", Timestamp: time.Now(), Duration: elapsed, Error: err.Error()})
		slog.DebugContext(ctx, "workflow step failed", "workflow", w.name, "step", name, "error", err)
		return nil, fmt.Errorf("step %s: %w", name, err)
	}
	span.SetStatus(obs.StatusCodeOk, "")
	emit(rc, Event{Type: EventEnd, Step: name, Status: "ok", Timestamp: time.Now(), Duration: elapsed, Output: out})
	return out, nil
}

// find locates a step by name along the main chain, branches and merges.
func (w *Workflow) find(name string) *step {
	seen := map[*step]bool{}
	var walk func(s *step) *step
	walk = func(s *step) *step {
		for ; s != nil && !seen[s]; s = s.next {
			seen[s] = true
			if s.name == name {
				return s
			}
			for _, c := range s.branches {
				if f := walk(c); f != nil {
					return f
				}
			}
			if s.merge != nil {
				if f := walk(s.merge.next); f != nil {
					return f
				}
			}
		}
		return nil
	}
	return walk(w.root)
}

func emit(rc *runConfig, e Event) {
	if rc != nil && rc.events != nil {
		select {
		case rc.events <- e:
		default:
		}
	}
}

// ErrNoRoot is returned when resuming a workflow with no steps.
var ErrNoRoot = errors.New("workflow has no root step")
