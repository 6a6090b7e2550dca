package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCard = AgentCard{
	Name:        "MarketAnalysisAgent",
	Description: "Analyses market conditions",
	URL:         "http://localhost:9001",
	Version:     "1.0.0",
	Skills:      []AgentSkill{{ID: "market_summary", Name: "Market summary", Description: "Summarise a sector"}},
}

// scriptedExecutor answers "fail" with an error, "qty?" with an input request and anything
// else with an echo.
func scriptedExecutor() Executor {
	return ExecutorFunc(func(ctx context.Context, task *Task, in Message) (Message, error) {
		switch in.Text() {
		case "fail":
			return Message{}, errors.New("research service throttled")
		case "qty?":
			return Message{}, InputRequired("How many shares?")
		}
		return NewTextMessage(RoleAgent, "echo: "+in.Text()), nil
	})
}

func rpc(t *testing.T, h http.Handler, method string, params any) Response {
	t.Helper()
	p, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(Request{JSONRPC: "2.0", ID: 1, Method: method, Params: p})
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func taskOf(t *testing.T, resp Response) Task {
	t.Helper()
	require.Nil(t, resp.Error)
	var task Task
	require.NoError(t, json.Unmarshal(resp.Result, &task))
	return task
}

func TestAgentCardAndHealth(t *testing.T) {
	h := NewServer(testCard, scriptedExecutor(), nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var card AgentCard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &card))
	assert.Equal(t, "MarketAnalysisAgent", card.Name)
	assert.Equal(t, []string{"text"}, card.DefaultInputModes)
	assert.True(t, card.Capabilities.StateTransitionHistory)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSendCompletesTask(t *testing.T) {
	h := NewServer(testCard, scriptedExecutor(), nil).Handler()

	task := taskOf(t, rpc(t, h, MethodSend, TaskSendParams{ID: "t1", SessionID: "s1", Message: NewTextMessage(RoleUser, "tech sector")}))
	assert.Equal(t, TaskStateCompleted, task.Status.State)
	assert.Equal(t, "echo: tech sector", task.Text())
	assert.Equal(t, "s1", task.SessionID)
	require.Len(t, task.History, 2)
	assert.Equal(t, RoleAgent, task.History[1].Role)

	var states []TaskState
	for _, tr := range task.Transitions {
		states = append(states, tr.State)
	}
	assert.Equal(t, []TaskState{TaskStateSubmitted, TaskStateWorking, TaskStateCompleted}, states)

	got := taskOf(t, rpc(t, h, MethodGet, TaskQueryParams{ID: "t1"}))
	assert.Equal(t, TaskStateCompleted, got.Status.State)

	one := 1
	trimmed := taskOf(t, rpc(t, h, MethodGet, TaskQueryParams{ID: "t1", HistoryLength: &one}))
	require.Len(t, trimmed.History, 1)
	assert.Equal(t, RoleAgent, trimmed.History[0].Role)
}

func TestSendAssignsIDs(t *testing.T) {
	h := NewServer(testCard, scriptedExecutor(), nil).Handler()
	task := taskOf(t, rpc(t, h, MethodSend, TaskSendParams{Message: NewTextMessage("", "hi")}))
	assert.NotEmpty(t, task.ID)
	assert.NotEmpty(t, task.SessionID)
	assert.Equal(t, RoleUser, task.History[0].Role)
}

func TestSendExecutorFailure(t *testing.T) {
	h := NewServer(testCard, scriptedExecutor(), nil).Handler()
	task := taskOf(t, rpc(t, h, MethodSend, TaskSendParams{ID: "t2", Message: NewTextMessage(RoleUser, "fail")}))
	assert.Equal(t, TaskStateFailed, task.Status.State)
	assert.Contains(t, task.Text(), "throttled")

	resp := rpc(t, h, MethodSend, TaskSendParams{ID: "t2", Message: NewTextMessage(RoleUser, "again")})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestInputRequiredThenContinue(t *testing.T) {
	h := NewServer(testCard, scriptedExecutor(), nil).Handler()
	task := taskOf(t, rpc(t, h, MethodSend, TaskSendParams{ID: "t3", Message: NewTextMessage(RoleUser, "qty?")}))
	assert.Equal(t, TaskStateInputRequired, task.Status.State)
	assert.Equal(t, "How many shares?", task.Status.Message.Text())

	task = taskOf(t, rpc(t, h, MethodSend, TaskSendParams{ID: "t3", Message: NewTextMessage(RoleUser, "10")}))
	assert.Equal(t, TaskStateCompleted, task.Status.State)
	assert.Len(t, task.History, 4)
}

func TestCancel(t *testing.T) {
	h := NewServer(testCard, scriptedExecutor(), nil).Handler()

	resp := rpc(t, h, MethodCancel, TaskIDParams{ID: "missing"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTaskNotFound, resp.Error.Code)

	taskOf(t, rpc(t, h, MethodSend, TaskSendParams{ID: "done", Message: NewTextMessage(RoleUser, "x")}))
	resp = rpc(t, h, MethodCancel, TaskIDParams{ID: "done"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTaskNotCancelable, resp.Error.Code)

	taskOf(t, rpc(t, h, MethodSend, TaskSendParams{ID: "waiting", Message: NewTextMessage(RoleUser, "qty?")}))
	task := taskOf(t, rpc(t, h, MethodCancel, TaskIDParams{ID: "waiting"}))
	assert.Equal(t, TaskStateCanceled, task.Status.State)
}

func TestCancelRunningTask(t *testing.T) {
	started := make(chan struct{})
	exec := ExecutorFunc(func(ctx context.Context, task *Task, in Message) (Message, error) {
		close(started)
		<-ctx.Done()
		return Message{}, ctx.Err()
	})
	h := NewServer(testCard, exec, nil).Handler()

	body := `{"jsonrpc":"2.0","id":1,"method":"tasks/send","params":{"id":"slow","message":{"role":"user","parts":[{"type":"text","text":"x"}]}}}`
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		done <- rec
	}()
	<-started
	rpc(t, h, MethodCancel, TaskIDParams{ID: "slow"})
	rec := <-done
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	task := taskOf(t, resp)
	assert.Equal(t, TaskStateCanceled, task.Status.State)
}

func TestRPCErrors(t *testing.T) {
	h := NewServer(testCard, scriptedExecutor(), nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{")))
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, CodeParseError, resp.Error.Code)

	resp = rpc(t, h, "tasks/resubscribe", TaskIDParams{ID: "x"})
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)

	resp = rpc(t, h, MethodSend, TaskSendParams{ID: "x"})
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)

	resp = rpc(t, h, MethodGet, TaskQueryParams{ID: "nope"})
	assert.Equal(t, CodeTaskNotFound, resp.Error.Code)
}

func TestRPCMiddlewareOnlyGuardsRPC(t *testing.T) {
	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
	h := NewServer(testCard, scriptedExecutor(), nil).Handler(deny)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/agent.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
