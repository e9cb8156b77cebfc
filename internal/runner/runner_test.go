package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/reqflow/internal/httpclient"
	"github.com/unkn0wn-root/reqflow/internal/jsonval"
	"github.com/unkn0wn-root/reqflow/internal/restfile"
	"github.com/unkn0wn-root/reqflow/internal/vars"
)

// fakeExecutor builds each request for real and answers from a table keyed
// by request ID.
type fakeExecutor struct {
	mu        sync.Mutex
	responses map[string]restfile.Result
	block     map[string]chan struct{}
	started   chan string
	seen      []vars.Set
}

func (f *fakeExecutor) Execute(ctx context.Context, req *restfile.Request, set vars.Set) httpclient.Exchange {
	f.mu.Lock()
	f.seen = append(f.seen, set.Clone())
	wait := f.block[req.ID]
	started := f.started
	resp := f.responses[req.ID]
	f.mu.Unlock()

	if started != nil {
		started <- req.ID
	}
	if wait != nil {
		<-wait
	}

	prepared, err := httpclient.Build(req, set)
	if err != nil {
		return httpclient.Exchange{Result: &restfile.Failure{Message: err.Error()}}
	}
	prepared.URL = httpclient.InjectAuth(prepared.Headers, req.Auth, set, req, prepared.URL)
	if resp == nil {
		resp = reply(200, `{}`)
	}
	return httpclient.Exchange{Prepared: prepared, Result: resp}
}

func reply(status int, body string) *restfile.Success {
	data, parsed := jsonval.Parse(body)
	if !parsed {
		data = jsonval.StringValue(body)
	}
	return &restfile.Success{Status: status, StatusText: "", Time: 5, Data: data}
}

func req(id, url string) *restfile.Request {
	return &restfile.Request{ID: id, Name: "req " + id, Method: "GET", URL: url}
}

func TestRunChainsExtractedValues(t *testing.T) {
	t.Parallel()
	exec := &fakeExecutor{responses: map[string]restfile.Result{
		"login": reply(200, `{"token":"abc","extra":"ignored"}`),
	}}
	env := vars.Set{"token": "", "base": "http://api.test"}
	r := New(exec, env)

	second := req("me", "{{base}}/me?t={{token}}")
	second.Auth = restfile.BearerAuth{Token: "{{token}}"}
	results, err := r.Run(context.Background(), []*restfile.Request{req("login", "{{base}}/login"), second}, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].EndpointID != "login" || results[1].EndpointID != "me" {
		t.Fatalf("results out of order: %+v", results)
	}
	if results[1].URL != "http://api.test/me?t=abc" {
		t.Fatalf("second step must see the extracted token, got %q", results[1].URL)
	}
	if exec.seen[1]["token"] != "abc" {
		t.Fatalf("executor saw %v", exec.seen[1])
	}
	if env["token"] != "" {
		t.Fatalf("environment scope must not be mutated, got %v", env)
	}
	if _, added := r.Vars()["extra"]; added {
		t.Fatalf("extraction must not introduce new names: %v", r.Vars())
	}
}

func TestExtractNestedDataAndNulls(t *testing.T) {
	t.Parallel()
	scope := vars.Set{"id": "old", "name": "keep", "{{count}}": "0", "absent": "x"}
	extract(scope, reply(200, `{"name":null,"data":{"id":7,"name":"nested"},"count":3}`))
	if scope["id"] != "7" {
		t.Fatalf("expected nested id, got %q", scope["id"])
	}
	if scope["name"] != "keep" {
		t.Fatalf("null top-level value must not overwrite, got %q", scope["name"])
	}
	if scope["{{count}}"] != "3" {
		t.Fatalf("braced keys match their bare name, got %v", scope)
	}
	if scope["absent"] != "x" {
		t.Fatalf("missing values must be left alone, got %v", scope)
	}
	if len(scope) != 4 {
		t.Fatalf("extraction must not add names: %v", scope)
	}
}

func TestExtractIgnoresNonObjects(t *testing.T) {
	t.Parallel()
	scope := vars.Set{"a": "1"}
	extract(scope, reply(200, `[{"a":2}]`))
	extract(scope, &restfile.Failure{Message: "boom"})
	if scope["a"] != "1" {
		t.Fatalf("unexpected scope %v", scope)
	}
}

func TestCapturesMayAddNames(t *testing.T) {
	t.Parallel()
	scope := vars.Set{}
	applyCaptures(scope, []restfile.Capture{
		{Name: "first", Path: "items.0.id"},
		{Name: "count", Path: "items.#"},
		{Name: "missing", Path: "nope"},
		{Name: "nothing", Path: "gone"},
	}, reply(200, `{"items":[{"id":"a1"},{"id":"b2"}],"gone":null}`))
	if scope["first"] != "a1" || scope["count"] != "2" {
		t.Fatalf("unexpected captures %v", scope)
	}
	if _, ok := scope["missing"]; ok {
		t.Fatalf("missing paths must not be captured")
	}
	if _, ok := scope["nothing"]; ok {
		t.Fatalf("null values must not be captured")
	}
}

func TestRunRecordsFailuresAndContinues(t *testing.T) {
	t.Parallel()
	exec := &fakeExecutor{responses: map[string]restfile.Result{
		"a": &restfile.Failure{Message: "dial tcp: connection refused"},
		"b": reply(302, `""`),
		"c": reply(404, `{}`),
	}}
	results, err := New(exec, nil).Run(context.Background(), []*restfile.Request{
		req("a", "http://x/a"), req("b", "http://x/b"), req("c", "http://x/c"),
	}, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected every step to run, got %d", len(results))
	}
	if results[0].Status != nil || results[0].Passed || results[0].Error == "" {
		t.Fatalf("failed step must have no status and an error: %+v", results[0])
	}
	if !results[1].Passed {
		t.Fatalf("3xx counts as passed: %+v", results[1])
	}
	if results[2].Passed || *results[2].Status != 404 {
		t.Fatalf("4xx is not passed: %+v", results[2])
	}

	sum := Summarize(results)
	if sum.Total != 3 || sum.Passed != 1 || sum.Failed != 2 || sum.Errors != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.TimeMillis != 10 {
		t.Fatalf("expected summed time, got %d", sum.TimeMillis)
	}
}

func TestStopIsCooperative(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	exec := &fakeExecutor{
		block:   map[string]chan struct{}{"2": release},
		started: make(chan string, 5),
	}
	r := New(exec, nil)
	var reqs []*restfile.Request
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		reqs = append(reqs, req(id, "http://x/"+id))
	}
	if err := r.Start(context.Background(), reqs, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	for id := range exec.started {
		if id == "2" {
			break
		}
	}
	if r.CurrentIndex() != 1 {
		t.Fatalf("expected current index 1, got %d", r.CurrentIndex())
	}

	r.Stop()
	if r.Running() {
		t.Fatalf("runner must report not-running right after Stop")
	}
	close(release)
	r.Wait()

	results := r.Results()
	if len(results) != 2 {
		t.Fatalf("expected the in-flight step to be recorded and nothing after, got %d", len(results))
	}
	if results[1].EndpointID != "2" {
		t.Fatalf("unexpected last result %+v", results[1])
	}
}

func TestStopEndsDelayEarly(t *testing.T) {
	t.Parallel()
	exec := &fakeExecutor{started: make(chan string, 2)}
	r := New(exec, nil)
	if err := r.Start(context.Background(), []*restfile.Request{req("1", "http://x"), req("2", "http://x")}, time.Hour); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-exec.started

	deadline := time.Now().Add(5 * time.Second)
	for len(r.Results()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("stop did not interrupt the delay")
	}
	if got := len(r.Results()); got != 1 {
		t.Fatalf("expected 1 result, got %d", got)
	}
}

func TestStartWhileRunning(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	exec := &fakeExecutor{block: map[string]chan struct{}{"1": release}, started: make(chan string, 1)}
	r := New(exec, vars.Set{"a": "1"})
	if err := r.Start(context.Background(), []*restfile.Request{req("1", "http://x")}, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-exec.started
	if err := r.Start(context.Background(), []*restfile.Request{req("other", "http://x")}, 0); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	close(release)
	r.Wait()
	if got := r.Results(); len(got) != 1 || got[0].EndpointID != "1" {
		t.Fatalf("rejected start must not disturb the run: %+v", got)
	}
	if r.Running() {
		t.Fatalf("runner should be idle after the run")
	}
}

func TestObserverEventsInOrder(t *testing.T) {
	t.Parallel()
	var kinds []EventKind
	var indexes []int
	observer := func(evt Event) {
		kinds = append(kinds, evt.Kind)
		indexes = append(indexes, evt.Index)
	}
	r := New(&fakeExecutor{}, nil, WithObserver(observer))
	if _, err := r.Run(context.Background(), []*restfile.Request{req("1", "http://x"), req("2", "http://x")}, 0); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []EventKind{StepStarted, StepFinished, StepStarted, StepFinished, RunFinished}
	if len(kinds) != len(want) {
		t.Fatalf("unexpected events %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, kinds[i], want[i])
		}
	}
	if indexes[2] != 1 || indexes[4] != 2 {
		t.Fatalf("unexpected indexes %v", indexes)
	}
}

func TestRunWithCanceledParent(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := New(&fakeExecutor{}, nil).Run(ctx, []*restfile.Request{req("1", "http://x")}, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("a canceled run must not execute steps, got %d", len(results))
	}
}

func TestNewRunResultUsesResolvedURLOnBuildFailure(t *testing.T) {
	t.Parallel()
	r := req("x", "{{base}}/a")
	res := newRunResult(r, httpclient.Exchange{Result: &restfile.Failure{Message: "bad"}}, vars.Set{"base": "http://h"})
	if res.URL != "http://h/a" || res.Method != "GET" || res.Error != "bad" {
		t.Fatalf("unexpected result %+v", res)
	}
}
