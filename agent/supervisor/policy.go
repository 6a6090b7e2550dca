package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	core "github.com/KamdynS/bedrock-agents/agent/core"
)

// Policy defines how a supervisor coordinates agents.
type Policy interface {
	Execute(ctx context.Context, prompt string, agents []core.Agent) (string, error)
}

// SequentialPolicy calls agents one by one, feeding previous output to next.
type SequentialPolicy struct{}

func (SequentialPolicy) Execute(ctx context.Context, prompt string, agents []core.Agent) (string, error) {
	input := prompt
	for i, a := range agents {
		out, err := a.Run(ctx, core.Message{Role: "user", Content: input})
		if err != nil {
			return "", fmt.Errorf("agent %d: %w", i, err)
		}
		input = out.Content
	}
	return input, nil
}

// FanOutFirst wins: run all agents in parallel and return the first successful response.
// The others are canceled once a winner is known.
type FanOutFirst struct{}

func (FanOutFirst) Execute(ctx context.Context, prompt string, agents []core.Agent) (string, error) {
	if len(agents) == 0 {
		return "", errors.New("no agents")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type res struct {
		s   string
		err error
	}
	ch := make(chan res, len(agents))
	for _, a := range agents {
		go func(ag core.Agent) {
			out, err := ag.Run(ctx, core.Message{Role: "user", Content: prompt})
			ch <- res{out.Content, err}
		}(a)
	}
	var errs []error
	for range agents {
		r := <-ch
		if r.err == nil {
			return r.s, nil
		}
		errs = append(errs, r.err)
	}
	return "", errors.Join(errs...)
}

// FanOutAll runs every agent in parallel and joins their answers in agent order.
// Failed agents are reported inline; the call fails only when every agent fails.
type FanOutAll struct {
	// Labels name the sections, by agent index. Missing labels become "agent N".
	Labels []string
	// Separator joins sections. Defaults to a blank line.
	Separator string
}

func (p FanOutAll) Execute(ctx context.Context, prompt string, agents []core.Agent) (string, error) {
	if len(agents) == 0 {
		return "", errors.New("no agents")
	}
	outs := make([]string, len(agents))
	errs := make([]error, len(agents))
	var g errgroup.Group
	for i, a := range agents {
		g.Go(func() error {
			out, err := a.Run(ctx, core.Message{Role: "user", Content: prompt})
			outs[i], errs[i] = out.Content, err
			return nil
		})
	}
	_ = g.Wait()

	sep := p.Separator
	if sep == "" {
		sep = "\n\n"
	}
	sections := make([]string, 0, len(agents))
	failed := 0
	for i := range agents {
		label := fmt.Sprintf("agent %d", i+1)
		if i < len(p.Labels) && p.Labels[i] != "" {
			label = p.Labels[i]
		}
		if errs[i] != nil {
			failed++
			sections = append(sections, fmt.Sprintf("[%s] unavailable: %v", label, errs[i]))
			continue
		}
		sections = append(sections, fmt.Sprintf("[%s]\n%s", label, strings.TrimSpace(outs[i])))
	}
	if failed == len(agents) {
		return "", errors.Join(errs...)
	}
	return strings.Join(sections, sep), nil
}
