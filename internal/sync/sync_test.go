package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	stdsync "sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stitionai/devika-go/internal/cache"
	"github.com/stitionai/devika-go/internal/store"
)

// testBackend serves both the REST API and the websocket endpoint.
type testBackend struct {
	srv *httptest.Server

	mu       stdsync.Mutex
	requests []string
	messages []store.Message

	conns chan *websocket.Conn
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()

	b := &testBackend{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}

	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, r.Method+" "+r.URL.Path)
		b.mu.Unlock()

		switch r.URL.Path {
		case "/ws":
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				t.Errorf("upgrade: %v", err)
				return
			}
			b.conns <- conn
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		case "/api/data":
			json.NewEncoder(w).Encode(map[string]any{
				"projects":       []string{"alpha"},
				"models":         []string{"gpt-4"},
				"search_engines": []string{"Bing", "Google", "DuckDuckGo"},
			})
		case "/api/messages":
			b.mu.Lock()
			msgs := b.messages
			b.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]any{"messages": msgs})
		case "/api/execute-agent":
			json.NewEncoder(w).Encode(map[string]any{"message": "agent started"})
		case "/api/get-agent-state":
			w.Write([]byte(`{"state": null}`))
		case "/api/token-usage":
			w.Write([]byte(`{"token_usage": 42}`))
		case "/api/status":
			w.Write([]byte(`{"status": "server is running!"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

// send pushes one event frame over the websocket to the client.
func (b *testBackend) send(t *testing.T, event string, data any) {
	t.Helper()
	select {
	case conn := <-b.conns:
		b.conns <- conn
		raw, _ := json.Marshal(data)
		msg := map[string]json.RawMessage{
			"event": json.RawMessage(`"` + event + `"`),
			"data":  raw,
		}
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("backend write: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection")
	}
}

// countRequests counts REST calls matching the given method+path.
func (b *testBackend) countRequests(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.requests {
		if r == key {
			n++
		}
	}
	return n
}

// recordingPresenter captures routed advisories.
type recordingPresenter struct {
	mu       stdsync.Mutex
	errors   []string
	warnings []string
	infos    []string
}

func (p *recordingPresenter) Error(m string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, m)
}

func (p *recordingPresenter) Warning(m string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warnings = append(p.warnings, m)
}

func (p *recordingPresenter) Info(m string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.infos = append(p.infos, m)
}

func (p *recordingPresenter) warningCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.warnings)
}

func (p *recordingPresenter) errorCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.errors)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fixture struct {
	backend    *testBackend
	store      *store.Store
	cache      *cache.Cache
	presenter  *recordingPresenter
	reconciler *Reconciler

	monoMu     stdsync.Mutex
	monologues []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		backend:   newTestBackend(t),
		store:     store.New(),
		cache:     cache.New(cache.NewMemoryKV()),
		presenter: &recordingPresenter{},
	}
	f.reconciler = New(Config{
		BaseURL:   f.backend.srv.URL,
		Store:     f.store,
		Cache:     f.cache,
		Presenter: f.presenter,
		OnMonologue: func(v string) {
			f.monoMu.Lock()
			defer f.monoMu.Unlock()
			f.monologues = append(f.monologues, v)
		},
	})
	t.Cleanup(func() { f.reconciler.Close() })
	return f
}

func (f *fixture) monologueValues() []string {
	f.monoMu.Lock()
	defer f.monoMu.Unlock()
	return append([]string(nil), f.monologues...)
}

func TestAgentStateBatch_LastElementWins(t *testing.T) {
	f := newFixture(t)
	if err := f.reconciler.Attach(context.Background()); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	f.store.SetSending(true)

	f.backend.send(t, "agent-state", []map[string]any{
		{"internal_monologue": "thinking", "completed": false},
		{"internal_monologue": "thinking", "completed": true},
	})

	waitFor(t, "agent state", func() bool { return f.store.AgentState() != nil })

	state := f.store.AgentState()
	if !state.Completed || state.InternalMonologue != "thinking" {
		t.Errorf("state = %+v, want the batch's last element", state)
	}
	if f.store.Sending() {
		t.Error("sending flag still set after terminal state")
	}
	if got := f.monologueValues(); len(got) != 1 || got[0] != "thinking" {
		t.Errorf("monologue notifications = %v, want exactly one 'thinking'", got)
	}
}

func TestAgentState_TerminalClearIsIdempotent(t *testing.T) {
	f := newFixture(t)
	if err := f.reconciler.Attach(context.Background()); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	// Sending is already false; a terminal state must not blow up or
	// produce a spurious transition.
	f.backend.send(t, "agent-state", []map[string]any{
		{"internal_monologue": "", "completed": true},
	})

	waitFor(t, "agent state", func() bool { return f.store.AgentState() != nil })
	if f.store.Sending() {
		t.Error("sending flag set")
	}
	if got := f.monologueValues(); len(got) != 0 {
		t.Errorf("empty monologue produced notifications: %v", got)
	}
}

func TestInferenceError_ClearsSending(t *testing.T) {
	f := newFixture(t)
	if err := f.reconciler.Attach(context.Background()); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	f.store.SetSending(true)
	f.backend.send(t, "inference", map[string]string{
		"type": "error", "message": "model unavailable",
	})

	waitFor(t, "sending cleared", func() bool { return !f.store.Sending() })
	if f.presenter.errorCount() != 1 {
		t.Errorf("error advisories = %d, want 1", f.presenter.errorCount())
	}
	// Independent of agent state: none ever arrived.
	if f.store.AgentState() != nil {
		t.Error("agent state should be untouched")
	}
}

func TestInfoWarning_LeavesSendingAlone(t *testing.T) {
	f := newFixture(t)
	if err := f.reconciler.Attach(context.Background()); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	f.store.SetSending(true)
	f.backend.send(t, "info", map[string]string{
		"type": "warning", "message": "slow network",
	})

	waitFor(t, "warning advisory", func() bool { return f.presenter.warningCount() == 1 })
	if !f.store.Sending() {
		t.Error("warning advisory cleared the sending flag")
	}
}

func TestUnknownAdvisoryKind_Dropped(t *testing.T) {
	f := newFixture(t)
	if err := f.reconciler.Attach(context.Background()); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	f.store.SetSending(true)
	f.backend.send(t, "info", map[string]string{
		"type": "fatal", "message": "from the future",
	})
	// A recognized event afterwards proves the unknown one was consumed.
	f.backend.send(t, "tokens", map[string]any{"token_usage": 9})

	waitFor(t, "tokens", func() bool { return f.store.TokenUsage() == 9 })
	if f.presenter.errorCount() != 0 || f.presenter.warningCount() != 0 {
		t.Error("unknown advisory kind was presented")
	}
	if !f.store.Sending() {
		t.Error("unknown advisory kind cleared the sending flag")
	}
}

func TestServerMessage_Appends(t *testing.T) {
	f := newFixture(t)
	if err := f.reconciler.Attach(context.Background()); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	f.backend.send(t, "server-message", map[string]any{
		"messages": map[string]any{"from_devika": true, "message": "one"},
	})
	f.backend.send(t, "server-message", map[string]any{
		"messages": map[string]any{"from_devika": true, "message": "two"},
	})

	waitFor(t, "two messages", func() bool { return len(f.store.Messages()) == 2 })
	msgs := f.store.Messages()
	if msgs[0].Message != "one" || msgs[1].Message != "two" {
		t.Errorf("messages = %+v, want arrival order preserved", msgs)
	}
}

func TestTokens_ReplacedNotAccumulated(t *testing.T) {
	f := newFixture(t)
	if err := f.reconciler.Attach(context.Background()); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	f.backend.send(t, "tokens", map[string]any{"token_usage": 100})
	waitFor(t, "first total", func() bool { return f.store.TokenUsage() == 100 })

	f.backend.send(t, "tokens", map[string]any{"token_usage": 70})
	waitFor(t, "second total", func() bool { return f.store.TokenUsage() == 70 })
}

func TestExecute_NoModel_NoNetworkNoMutation(t *testing.T) {
	f := newFixture(t)

	err := f.reconciler.Execute("build something")
	if err != ErrNoModelSelected {
		t.Fatalf("Execute = %v, want ErrNoModelSelected", err)
	}

	f.backend.mu.Lock()
	calls := len(f.backend.requests)
	f.backend.mu.Unlock()
	if calls != 0 {
		t.Errorf("Execute made %d network calls, want 0", calls)
	}
	if f.store.Sending() || len(f.store.Messages()) != 0 {
		t.Error("store mutated by a rejected invocation")
	}
}

func TestExecute_PlaceholderModelRejected(t *testing.T) {
	f := newFixture(t)
	f.store.SetSelection(store.Selection{
		Project: "alpha", Model: cache.DefaultModel, SearchEngine: "google",
	})

	if err := f.reconciler.Execute("prompt"); err != ErrNoModelSelected {
		t.Fatalf("Execute = %v, want ErrNoModelSelected", err)
	}
	if got := f.backend.countRequests("POST /api/execute-agent"); got != 0 {
		t.Errorf("execute-agent called %d times, want 0", got)
	}
}

func TestExecute_Success_ExactlyOneReplace(t *testing.T) {
	f := newFixture(t)
	f.backend.mu.Lock()
	f.backend.messages = []store.Message{{FromDevika: false, Message: "prompt"}}
	f.backend.mu.Unlock()

	f.store.SetSelection(store.Selection{
		Project: "alpha", Model: "gpt-4", SearchEngine: "google",
	})
	f.store.AppendMessage(store.Message{Message: "optimistic local entry"})

	if err := f.reconciler.Execute("prompt"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := f.backend.countRequests("POST /api/execute-agent"); got != 1 {
		t.Errorf("execute-agent called %d times, want 1", got)
	}
	if got := f.backend.countRequests("POST /api/messages"); got != 1 {
		t.Errorf("message refetch happened %d times, want 1", got)
	}
	msgs := f.store.Messages()
	if len(msgs) != 1 || msgs[0].Message != "prompt" {
		t.Errorf("messages = %+v, want the server-side log", msgs)
	}
	if !f.store.Sending() {
		t.Error("sending flag should stay set until a terminal signal arrives")
	}
}

func TestBootstrap_SeedsCacheAndSelection(t *testing.T) {
	f := newFixture(t)

	data, err := f.reconciler.Bootstrap()
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if len(data.Projects) != 1 || data.Projects[0] != "alpha" {
		t.Errorf("data = %+v", data)
	}

	cached, found, err := f.cache.Bootstrap()
	if err != nil || !found {
		t.Fatalf("cache bootstrap: found=%v err=%v", found, err)
	}
	if len(cached.SearchEngines) != 3 {
		t.Errorf("cached bootstrap = %+v", cached)
	}

	sel := f.store.Selection()
	if sel.Project != cache.DefaultProject || sel.Model != cache.DefaultModel {
		t.Errorf("selection = %+v, want placeholder defaults on first run", sel)
	}
}

func TestSelection_WritesThroughToCache(t *testing.T) {
	f := newFixture(t)

	f.reconciler.SelectProject("alpha")
	f.reconciler.SelectModel("gpt-4")

	if got, _ := f.cache.SelectedProject(); got != "alpha" {
		t.Errorf("cached project = %q", got)
	}
	if got, _ := f.cache.SelectedModel(); got != "gpt-4" {
		t.Errorf("cached model = %q", got)
	}
}

func TestLoadProject_ConvergesWithFetchPath(t *testing.T) {
	f := newFixture(t)
	f.backend.mu.Lock()
	f.backend.messages = []store.Message{{Message: "from server"}}
	f.backend.mu.Unlock()

	f.store.AppendMessage(store.Message{Message: "stale"})
	if err := f.reconciler.LoadProject("alpha"); err != nil {
		t.Fatalf("LoadProject: %v", err)
	}

	msgs := f.store.Messages()
	if len(msgs) != 1 || msgs[0].Message != "from server" {
		t.Errorf("messages = %+v, want fetch replace", msgs)
	}
	if f.store.TokenUsage() != 42 {
		t.Errorf("token usage = %d, want 42", f.store.TokenUsage())
	}
}

func TestMonologue_SeededAtAttach(t *testing.T) {
	f := newFixture(t)

	// A value already known (and shown) before the channel attaches.
	f.store.SetAgentState(&store.AgentState{InternalMonologue: "resuming"})
	if err := f.reconciler.Attach(context.Background()); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	f.backend.send(t, "agent-state", []map[string]any{
		{"internal_monologue": "resuming", "completed": false},
	})
	f.backend.send(t, "tokens", map[string]any{"token_usage": 1})

	waitFor(t, "tokens", func() bool { return f.store.TokenUsage() == 1 })
	if got := f.monologueValues(); len(got) != 0 {
		t.Errorf("seeded value re-fired after attach: %v", got)
	}
}

func TestPoller_SetsConnectivity(t *testing.T) {
	f := newFixture(t)

	p := NewPoller(f.reconciler, time.Minute)
	p.Start(context.Background())
	waitFor(t, "connected", func() bool { return f.store.Connected() })
	p.Stop()
}

func TestPoller_UnreachableBackend(t *testing.T) {
	backend := newTestBackend(t)
	backend.srv.Close()

	st := store.New()
	st.SetConnected(true)
	r := New(Config{
		BaseURL:   backend.srv.URL,
		Store:     st,
		Cache:     cache.New(cache.NewMemoryKV()),
		Presenter: &recordingPresenter{},
	})
	defer r.Close()

	p := NewPoller(r, time.Minute)
	p.Start(context.Background())
	waitFor(t, "disconnected", func() bool { return !st.Connected() })
	p.Stop()
}
