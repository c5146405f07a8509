package recommend

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/compass/pkg/audit"
	"mercator-hq/compass/pkg/lifecycle"
	"mercator-hq/compass/pkg/rules"
)

// fakeExecutor returns a fixed result and counts calls.
type fakeExecutor struct {
	result *ActionResult
	err    error
	delay  time.Duration
	calls  atomic.Int32
	last   atomic.Pointer[Action]
}

func (f *fakeExecutor) Execute(ctx context.Context, action *Action) (*ActionResult, error) {
	f.calls.Add(1)
	f.last.Store(action)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

func TestExecute_AfterAcceptance(t *testing.T) {
	exec := &fakeExecutor{result: &ActionResult{Success: true, Details: map[string]any{"task_id": "T-1"}}}
	env := newTestEnv(t, []*rules.Rule{rule("a", 80)}, WithExecutor(exec))
	ctx := context.Background()
	id := recommendationFor(t, env)

	if _, _, err := env.svc.RecordResponse(ctx, id, true, "u-1"); err != nil {
		t.Fatalf("RecordResponse() error = %v", err)
	}

	first, applied, err := env.svc.Execute(ctx, &ExecuteRequest{RecommendationID: id, Payload: map[string]any{"due": "tomorrow"}, ActorID: "u-1"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !applied || first.Status != ExecutionSuccess || first.Outcome != lifecycle.OutcomeSuccess {
		t.Errorf("Execute() = %+v, want a new success", first)
	}
	if first.Details["task_id"] != "T-1" {
		t.Errorf("Details = %v", first.Details)
	}
	if got := exec.last.Load(); got.ActionType != "create_task" || got.Payload["due"] != "tomorrow" || got.ContextID != "opp-1" {
		t.Errorf("executor saw %+v", got)
	}

	second, applied, err := env.svc.Execute(ctx, &ExecuteRequest{RecommendationID: id, ActorID: "u-1"})
	if err != nil {
		t.Fatalf("second Execute() error = %v", err)
	}
	if applied {
		t.Error("second Execute() applied = true, want false")
	}
	if !reflect.DeepEqual(second, first) {
		t.Errorf("second Execute() = %+v, want %+v", second, first)
	}
	if n := exec.calls.Load(); n != 1 {
		t.Errorf("executor calls = %d, want 1", n)
	}
	if n := countAudit(t, env.sink, id, audit.StatusExecuted); n != 1 {
		t.Errorf("executed events = %d, want 1", n)
	}
	if n := countAudit(t, env.sink, id, audit.StatusSucceeded); n != 1 {
		t.Errorf("succeeded events = %d, want 1", n)
	}
}

func TestExecute_WhileShownWithoutDirectExecution(t *testing.T) {
	exec := &fakeExecutor{result: &ActionResult{Success: true}}
	env := newTestEnv(t, []*rules.Rule{rule("a", 80)}, WithExecutor(exec))
	ctx := context.Background()
	id := recommendationFor(t, env)

	_, _, err := env.svc.Execute(ctx, &ExecuteRequest{RecommendationID: id})
	if !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("Execute() error = %v, want ErrInvalidTransition", err)
	}

	rec, _ := env.svc.Recommendation(ctx, id)
	if rec.Status != lifecycle.StatusShown {
		t.Errorf("Status = %v, want %v", rec.Status, lifecycle.StatusShown)
	}
	if n := exec.calls.Load(); n != 0 {
		t.Errorf("executor calls = %d, want 0", n)
	}
}

func TestExecute_DirectExecutionAllowed(t *testing.T) {
	r := rule("a", 80)
	r.ExecutionStrategy.AllowDirect = true
	env := newTestEnv(t, []*rules.Rule{r})
	id := recommendationFor(t, env)

	res, _, err := env.svc.Execute(context.Background(), &ExecuteRequest{RecommendationID: id})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Status != ExecutionSuccess {
		t.Errorf("Status = %q, want %q", res.Status, ExecutionSuccess)
	}
	if res.Details["executor"] != ExecutorLog {
		t.Errorf("Details = %v", res.Details)
	}
}

func TestExecute_Failures(t *testing.T) {
	tests := []struct {
		name    string
		exec    *fakeExecutor
		timeout time.Duration
		wantErr string
	}{
		{
			name:    "executor error",
			exec:    &fakeExecutor{err: errors.New("crm rejected the update")},
			wantErr: "crm rejected the update",
		},
		{
			name:    "unsuccessful result",
			exec:    &fakeExecutor{result: &ActionResult{Message: "record locked"}},
			wantErr: "record locked",
		},
		{
			name:    "timeout",
			exec:    &fakeExecutor{result: &ActionResult{Success: true}, delay: time.Second},
			timeout: 20 * time.Millisecond,
			wantErr: "execution timed out after 20ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rule("a", 80)
			r.ExecutionStrategy = rules.ExecutionStrategy{AllowDirect: true, Timeout: tt.timeout}
			env := newTestEnv(t, []*rules.Rule{r}, WithExecutor(tt.exec))
			ctx := context.Background()
			id := recommendationFor(t, env)

			res, _, err := env.svc.Execute(ctx, &ExecuteRequest{RecommendationID: id})
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if res.Status != ExecutionError || res.Outcome != lifecycle.OutcomeFailure {
				t.Errorf("Execute() = %+v, want error/failure", res)
			}
			if res.Details["error"] != tt.wantErr {
				t.Errorf("Details[error] = %v, want %q", res.Details["error"], tt.wantErr)
			}

			rec, _ := env.svc.Recommendation(ctx, id)
			if rec.Status != lifecycle.StatusFailed {
				t.Errorf("Status = %v, want %v", rec.Status, lifecycle.StatusFailed)
			}

			again, applied, err := env.svc.Execute(ctx, &ExecuteRequest{RecommendationID: id})
			if err != nil || applied || !reflect.DeepEqual(again, res) {
				t.Errorf("repeated Execute() = %+v, %v, %v, want %+v replayed", again, applied, err, res)
			}
		})
	}
}

func TestExecute_PendingThenReported(t *testing.T) {
	exec := &fakeExecutor{result: &ActionResult{Pending: true, Details: map[string]any{"workflow": "wf-1"}}}
	r := rule("a", 80)
	r.ExecutionStrategy = rules.ExecutionStrategy{Kind: "workflow", AllowDirect: true}
	env := newTestEnv(t, []*rules.Rule{r}, WithExecutor(exec))
	ctx := context.Background()
	id := recommendationFor(t, env)

	res, _, err := env.svc.Execute(ctx, &ExecuteRequest{RecommendationID: id})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Status != ExecutionPending {
		t.Fatalf("Status = %q, want %q", res.Status, ExecutionPending)
	}

	again, applied, err := env.svc.Execute(ctx, &ExecuteRequest{RecommendationID: id})
	if err != nil || applied || !reflect.DeepEqual(again, res) {
		t.Errorf("Execute() while pending = %+v, %v, %v, want %+v replayed", again, applied, err, res)
	}

	done, applied, err := env.svc.RecordExecuted(ctx, id, ExecutionReport{Success: true, Details: map[string]any{"steps": 3}}, "workflow-engine")
	if err != nil {
		t.Fatalf("RecordExecuted() error = %v", err)
	}
	if !applied || done.Status != ExecutionSuccess {
		t.Errorf("RecordExecuted() = %+v, want a new success", done)
	}

	dup, applied, err := env.svc.RecordExecuted(ctx, id, ExecutionReport{Success: true}, "workflow-engine")
	if err != nil {
		t.Fatalf("repeated RecordExecuted() error = %v", err)
	}
	if applied || !reflect.DeepEqual(dup, done) {
		t.Errorf("repeated RecordExecuted() = %+v, want duplicate success", dup)
	}
	if n := exec.calls.Load(); n != 1 {
		t.Errorf("executor calls = %d, want 1", n)
	}
}

func TestRecordExecuted_FromAccepted(t *testing.T) {
	env := newTestEnv(t, []*rules.Rule{rule("a", 80)})
	ctx := context.Background()
	id := recommendationFor(t, env)

	if _, _, err := env.svc.RecordResponse(ctx, id, true, "u-1"); err != nil {
		t.Fatalf("RecordResponse() error = %v", err)
	}
	res, _, err := env.svc.RecordExecuted(ctx, id, ExecutionReport{Error: "mailbox full"}, "mailer")
	if err != nil {
		t.Fatalf("RecordExecuted() error = %v", err)
	}
	if res.Status != ExecutionError || res.Details["error"] != "mailbox full" {
		t.Errorf("RecordExecuted() = %+v", res)
	}
	if n := countAudit(t, env.sink, id, audit.StatusExecuted); n != 1 {
		t.Errorf("executed events = %d, want 1", n)
	}
	if n := countAudit(t, env.sink, id, audit.StatusFailed); n != 1 {
		t.Errorf("failed events = %d, want 1", n)
	}
}

func TestRecordExecuted_Rejected(t *testing.T) {
	env := newTestEnv(t, []*rules.Rule{rule("a", 80)})
	ctx := context.Background()
	id := recommendationFor(t, env)

	if _, _, err := env.svc.RecordResponse(ctx, id, false, "u-1"); err != nil {
		t.Fatalf("RecordResponse() error = %v", err)
	}
	_, _, err := env.svc.RecordExecuted(ctx, id, ExecutionReport{Success: true}, "u-1")
	if !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Errorf("RecordExecuted() error = %v, want ErrInvalidTransition", err)
	}
}

func TestRecordShown(t *testing.T) {
	env := newTestEnv(t, []*rules.Rule{rule("a", 80), rule("b", 70)})
	ctx := context.Background()
	res := evaluateOne(t, env.svc, &EvaluateRequest{Contexts: []*rules.Context{dealContext("opp-1")}})
	ids := []string{res.Items[0].RecommendationID, res.Items[1].RecommendationID}

	for i := 0; i < 2; i++ {
		recs, err := env.svc.RecordShown(ctx, ids, "u-1")
		if err != nil {
			t.Fatalf("RecordShown() error = %v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("len(RecordShown()) = %d, want 2", len(recs))
		}
	}
	for _, id := range ids {
		if n := countAudit(t, env.sink, id, audit.StatusShown); n != 1 {
			t.Errorf("shown events for %s = %d, want 1", id, n)
		}
	}

	recs, err := env.svc.RecordShown(ctx, append(ids, "missing"), "u-1")
	if !errors.Is(err, lifecycle.ErrNotFound) {
		t.Errorf("RecordShown() error = %v, want ErrNotFound", err)
	}
	if len(recs) != 2 {
		t.Errorf("len(RecordShown()) = %d, want 2", len(recs))
	}

	if _, err := env.svc.RecordShown(ctx, nil, "u-1"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("RecordShown(nil) error = %v, want ErrInvalidRequest", err)
	}
}

func TestRecordResponse(t *testing.T) {
	env := newTestEnv(t, []*rules.Rule{rule("a", 80)})
	ctx := context.Background()
	id := recommendationFor(t, env)

	rec, applied, err := env.svc.RecordResponse(ctx, id, false, "u-1")
	if err != nil || !applied || rec.Status != lifecycle.StatusRejected {
		t.Fatalf("RecordResponse() = %v, %v, %v", rec, applied, err)
	}
	_, _, err = env.svc.RecordResponse(ctx, id, true, "u-1")
	var terr *lifecycle.TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("RecordResponse(accept after reject) error = %v, want *TransitionError", err)
	}
	if terr.From != lifecycle.StatusRejected {
		t.Errorf("From = %v, want %v", terr.From, lifecycle.StatusRejected)
	}
}

func TestExecute_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, _, err := env.svc.Execute(ctx, &ExecuteRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Execute() error = %v, want ErrInvalidRequest", err)
	}
	if _, _, err := env.svc.Execute(ctx, &ExecuteRequest{RecommendationID: "missing"}); !errors.Is(err, lifecycle.ErrNotFound) {
		t.Errorf("Execute() error = %v, want ErrNotFound", err)
	}
}
