package workflow

import (
	"net/http"
	"strings"
)

// DiagramPath is where servers mount DiagramHandler.
const DiagramPath = "/debug/workflows/mermaid"

// DiagramHandler serves the Builtin catalog.
func DiagramHandler() http.Handler { return Builtin.Handler() }

// Handler renders the catalog's workflows as Mermaid. Query parameters: name (required),
// dir (TD, LR, BT, RL) and conds=1 for condition markers. Without a name it lists the
// names, one per line.
func (c *Catalog) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		q := r.URL.Query()
		name := q.Get("name")
		if name == "" {
			_, _ = w.Write([]byte(strings.Join(c.Names(), "\n") + "\n"))
			return
		}
		wf, ok := c.Lookup(name)
		if !ok {
			http.Error(w, "unknown workflow: "+name, http.StatusNotFound)
			return
		}
		var opts []MermaidOption
		if dir := q.Get("dir"); dir != "" {
			opts = append(opts, WithDirection(dir))
		}
		if c := q.Get("conds"); c == "1" || c == "true" {
			opts = append(opts, WithConditionIndicators(true))
		}
		_, _ = w.Write([]byte(wf.MermaidFlowchart(opts...)))
	})
}
