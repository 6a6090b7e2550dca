package wafquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/KamdynS/bedrock-agents/llm"
	"github.com/KamdynS/bedrock-agents/tools"
	"github.com/KamdynS/bedrock-agents/workflow"
)

// Step names of the pipeline workflow.
const (
	StepGenerateSQL    = "generate_sql"
	StepValidateSQL    = "validate_sql"
	StepApprove        = "approve"
	StepExecute        = "execute"
	StepFormatResponse = "format_response"
)

// SQLQuery is the structured output of the SQL generation step.
type SQLQuery struct {
	SQL         string `json:"sql" description:"One ClickHouse SELECT statement"`
	Explanation string `json:"explanation,omitempty" description:"One sentence on what the query computes"`
}

func (q SQLQuery) Validate() error {
	if strings.TrimSpace(q.SQL) == "" {
		return errors.New("sql cannot be empty")
	}
	return nil
}

func (q SQLQuery) JSONSchema() map[string]interface{} { return llm.SchemaOf(q) }

// Answer is the outcome of one question.
type Answer struct {
	RunID    string  `json:"run_id"`
	Question string  `json:"question"`
	SQL      string  `json:"sql,omitempty"`
	Result   *Result `json:"result,omitempty"`
	Text     string  `json:"text,omitempty"`
	// Pending is set when the run waits for Approve.
	Pending bool `json:"pending,omitempty"`
}

// ErrNoPendingRun is returned by Approve and Reject for unknown run ids.
var ErrNoPendingRun = errors.New("no pending run")

// Pipeline chains SQL generation, validation, execution and summarisation.
type Pipeline struct {
	Model   llm.Client
	Exec    Executor
	Table   string
	Columns []Column
	MaxRows int
	// RequireApproval suspends every run before execution until Approve is called.
	RequireApproval bool
	// Suspender stores suspended runs; defaults to process memory.
	Suspender  workflow.Suspender
	MaxRetries int
	Logger     *slog.Logger

	once sync.Once
	wf   *workflow.Workflow
}

// Build wires the workflow on first use.
func (p *Pipeline) Build() *workflow.Workflow {
	p.once.Do(p.build)
	return p.wf
}

func (p *Pipeline) build() {
	if p.Suspender == nil {
		p.Suspender = workflow.NewMemorySuspender()
	}
	if p.Columns == nil {
		p.Columns = WAFLogColumns
	}
	p.wf = workflow.Named("waf_query").
		Step(StepGenerateSQL, p.stateStep(p.generateSQL)).
		Then(StepValidateSQL, p.stateStep(p.validateSQL)).
		Then(StepApprove, p.stateStep(p.approve)).
		When(func(context.Context, any, any) bool { return p.RequireApproval }).
		Then(StepExecute, p.stateStep(p.execute)).
		Then(StepFormatResponse, p.stateStep(p.formatResponse)).
		Build()
}

// Ask answers question. With RequireApproval the returned answer is Pending and carries the
// SQL to review.
func (p *Pipeline) Ask(ctx context.Context, question string, opts ...workflow.Option) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("empty question")
	}
	wf := p.Build()
	st := &Answer{RunID: uuid.NewString(), Question: question}
	opts = append(opts, workflow.WithSuspender(p.Suspender))
	out, err := wf.Run(ctx, st, opts...)
	if sus, ok := workflow.Suspended(err); ok {
		saved, cerr := asAnswer(sus.Data)
		if cerr != nil {
			return nil, cerr
		}
		pending := *saved
		pending.Pending = true
		p.logger().InfoContext(ctx, "waf query awaiting approval", "run_id", pending.RunID, "sql", pending.SQL)
		return &pending, nil
	}
	if err != nil {
		return nil, err
	}
	return asAnswer(out)
}

// Approve executes a run suspended for approval.
func (p *Pipeline) Approve(ctx context.Context, runID string, opts ...workflow.Option) (*Answer, error) {
	wf := p.Build()
	st, err := p.Suspender.Load(ctx, runID)
	if errors.Is(err, workflow.ErrStateNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoPendingRun, runID)
	}
	if err != nil {
		return nil, err
	}
	if err := p.Suspender.Delete(ctx, runID); err != nil {
		return nil, err
	}
	out, err := wf.Resume(ctx, st, opts...)
	if err != nil {
		return nil, err
	}
	return asAnswer(out)
}

// Reject discards a run suspended for approval.
func (p *Pipeline) Reject(ctx context.Context, runID string) error {
	p.Build()
	if _, err := p.Suspender.Load(ctx, runID); err != nil {
		if errors.Is(err, workflow.ErrStateNotFound) {
			return fmt.Errorf("%w: %s", ErrNoPendingRun, runID)
		}
		return err
	}
	return p.Suspender.Delete(ctx, runID)
}

func (p *Pipeline) stateStep(fn func(ctx context.Context, a *Answer) (*Answer, error)) workflow.StepFunc {
	return func(ctx context.Context, in any) (any, error) {
		a, err := asAnswer(in)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a)
	}
}

// asAnswer accepts *Answer or its JSON form, which is what a stored suspension decodes to.
// A bare string is a new question, as passed by AskTool.
func asAnswer(v any) (*Answer, error) {
	switch a := v.(type) {
	case *Answer:
		return a, nil
	case string:
		if strings.TrimSpace(a) == "" {
			return nil, errors.New("empty question")
		}
		return &Answer{RunID: uuid.NewString(), Question: strings.TrimSpace(a)}, nil
	case nil:
		return nil, errors.New("missing pipeline state")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("pipeline state: %w", err)
	}
	var a Answer
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("pipeline state: %w", err)
	}
	return &a, nil
}

const sqlPrompt = `You translate questions about AWS WAF traffic into ClickHouse SQL.
Write exactly one read-only SELECT statement against the table below. Use only the listed
columns. Prefer aggregates (count(), uniq()) with GROUP BY and ORDER BY for "top" questions,
and filter on timestamp with now() - INTERVAL for relative time ranges.

`

func (p *Pipeline) generateSQL(ctx context.Context, a *Answer) (*Answer, error) {
	req := &llm.ChatRequest{
		SystemPrompt: sqlPrompt + SchemaPrompt(p.Table, p.Columns),
		Messages:     []llm.Message{{Role: "user", Content: a.Question}},
	}
	out, err := llm.StructuredChat(ctx, p.Model, req, SQLQuery{}, p.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("generate sql: %w", err)
	}
	a.SQL = out.Data.SQL
	return a, nil
}

func (p *Pipeline) validateSQL(ctx context.Context, a *Answer) (*Answer, error) {
	safe, err := ValidateSQL(a.SQL, []string{p.Table}, p.MaxRows)
	if err != nil {
		p.logger().WarnContext(ctx, "generated sql rejected", "sql", a.SQL, "error", err)
		return nil, err
	}
	a.SQL = safe
	return a, nil
}

func (p *Pipeline) approve(_ context.Context, a *Answer) (*Answer, error) {
	return nil, workflow.RequestSuspend(a.RunID, "", a)
}

func (p *Pipeline) execute(ctx context.Context, a *Answer) (*Answer, error) {
	res, err := p.Exec.Query(ctx, a.SQL)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	a.Result = res
	return a, nil
}

const summaryPrompt = `You are a security analyst. Answer the user's question about their WAF
traffic from the query result. Be concise, quote the key numbers, and say so when the result
is empty.`

func (p *Pipeline) formatResponse(ctx context.Context, a *Answer) (*Answer, error) {
	content := fmt.Sprintf("Question: %s\n\nSQL:\n%s\n\nResult:\n%s", a.Question, a.SQL, a.Result.Table(p.MaxRows))
	resp, err := p.Model.Chat(ctx, &llm.ChatRequest{
		SystemPrompt: summaryPrompt,
		Messages:     []llm.Message{{Role: "user", Content: content}},
	})
	if err != nil {
		return nil, fmt.Errorf("format response: %w", err)
	}
	a.Text = strings.TrimSpace(resp.Content)
	return a, nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// AskTool exposes the whole pipeline as one tool taking the question as "input". The
// pipeline must not require approval since a tool call cannot wait for one.
func AskTool(p *Pipeline) (tools.Tool, error) {
	if p.RequireApproval {
		return nil, errors.New("ask tool needs a pipeline without approval")
	}
	t := tools.NewWorkflowTool("ask_waf_logs",
		"Answer a natural-language question about WAF traffic. Generates, checks and runs the SQL and returns the answer with the query.",
		p.Build())
	t.InputDescription = "The question, e.g. which IPs were blocked most in the last hour"
	return t, nil
}
