package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KamdynS/bedrock-agents/tools"
)

// Loader connects to a set of MCP servers and merges their tools into one registry.
type Loader struct {
	// Strict makes any server failure fail the whole load. Otherwise failed
	// servers are logged and skipped.
	Strict bool
	// ConnectTimeout bounds connect plus tool listing per server. Defaults to 30s.
	ConnectTimeout time.Duration
	Logger         *slog.Logger

	dial func(ctx context.Context, name string, cfg ServerConfig) (*Session, error)
}

// Loaded holds the open sessions behind the registered proxies.
type Loaded struct {
	Sessions []*Session
	// Tools maps each server to the registry names its tools were registered under.
	Tools map[string][]string
	// Failed maps skipped servers to their error.
	Failed map[string]error
}

// Close closes every session.
func (l *Loaded) Close() error {
	var errs []error
	for _, s := range l.Sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

type serverTools struct {
	session *Session
	reg     *tools.DefaultRegistry
	err     error
}

// Load connects every enabled server concurrently, then registers their tools into
// reg in server-name order. A tool whose name is already taken is registered as
// "<server>__<tool>".
func (l *Loader) Load(ctx context.Context, cfg *Config, reg *tools.DefaultRegistry) (*Loaded, error) {
	if cfg == nil || reg == nil {
		return nil, fmt.Errorf("nil config or registry")
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := l.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	dial := l.dial
	if dial == nil {
		dial = Connect
	}

	names := cfg.Names()
	results := make([]serverTools, len(names))
	var mu sync.Mutex
	opened := []*Session{}

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		sc := cfg.Servers[name]
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			s, err := dial(cctx, name, sc)
			if err == nil {
				mu.Lock()
				opened = append(opened, s)
				mu.Unlock()
				local := tools.NewRegistry()
				if _, err = RegisterAllTools(cctx, local, s, name); err == nil {
					results[i] = serverTools{session: s, reg: local}
					return nil
				}
			}
			results[i] = serverTools{err: err}
			if l.Strict {
				return fmt.Errorf("mcp server %s: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, s := range opened {
			_ = s.Close()
		}
		return nil, err
	}

	out := &Loaded{Tools: map[string][]string{}, Failed: map[string]error{}}
	for i, name := range names {
		r := results[i]
		if r.err != nil {
			logger.Warn("mcp server skipped", "server", name, "error", r.err)
			out.Failed[name] = r.err
			continue
		}
		added, err := reg.Merge(prefixFor(name), r.reg)
		out.Sessions = append(out.Sessions, r.session)
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("mcp server %s: register tools: %w", name, err)
		}
		out.Tools[name] = added
		logger.Info("mcp server loaded", "server", name, "tools", len(added))
	}
	// sessions whose tool listing failed were opened but are not kept
	for _, s := range opened {
		if !contains(out.Sessions, s) {
			_ = s.Close()
		}
	}
	return out, nil
}

// prefixFor maps a server name onto the characters allowed in tool names.
func prefixFor(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, name)
}

func contains(list []*Session, s *Session) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
