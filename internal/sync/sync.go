// Package sync reconciles the event stream, the REST API, and the
// snapshot cache into one convergent session view. It binds the fixed
// channel events to session store mutations, owns the invoke flow, and
// keeps the snapshot cache in step with selection changes.
package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/stitionai/devika-go/internal/cache"
	"github.com/stitionai/devika-go/internal/channel"
	"github.com/stitionai/devika-go/internal/gateway"
	"github.com/stitionai/devika-go/internal/logging"
	"github.com/stitionai/devika-go/internal/notify"
	"github.com/stitionai/devika-go/internal/store"
)

// ErrNoModelSelected is returned when an invocation is attempted
// without a model. The rejection happens locally, before any network
// call.
var ErrNoModelSelected = errors.New("no model selected")

// Config assembles a Reconciler.
type Config struct {
	// BaseURL is the backend address (e.g., "http://localhost:1337").
	BaseURL string

	// Store is the session store. Required.
	Store *store.Store

	// Cache is the durable snapshot cache. Required.
	Cache *cache.Cache

	// Presenter renders advisories. Defaults to a log presenter.
	Presenter notify.Presenter

	// OnMonologue receives each new distinct internal-monologue value.
	// Optional; defaults to an info advisory through the presenter.
	OnMonologue func(value string)

	// Gateway overrides the REST client, for tests. Defaults to a
	// client against BaseURL.
	Gateway *gateway.Client
}

// Reconciler merges the independently-arriving event streams and the
// fetch path into the session store without duplicate side effects.
type Reconciler struct {
	store     *store.Store
	cache     *cache.Cache
	gw        *gateway.Client
	ch        *channel.Manager
	router    *notify.Router
	monologue *notify.Monologue
}

// New wires a reconciler. The channel is not connected until Attach.
func New(cfg Config) *Reconciler {
	presenter := cfg.Presenter
	if presenter == nil {
		presenter = notify.NewLogPresenter(nil)
	}

	r := &Reconciler{
		store: cfg.Store,
		cache: cfg.Cache,
		gw:    cfg.Gateway,
	}
	if r.gw == nil {
		r.gw = gateway.New(cfg.BaseURL)
	}

	// An error advisory terminates the sending phase; clearing an
	// already-clear flag is a no-op in the store.
	r.router = notify.NewRouter(presenter, func() {
		r.store.SetSending(false)
	})

	onMonologue := cfg.OnMonologue
	if onMonologue == nil {
		onMonologue = func(value string) { presenter.Info(value) }
	}
	r.monologue = notify.NewMonologue(onMonologue)

	r.ch = channel.New(cfg.BaseURL, channel.Events{
		OnServerMessage: r.applyServerMessage,
		OnAgentState:    r.applyAgentState,
		OnTokens:        r.applyTokens,
		OnInference:     r.router.Route,
		OnInfo:          r.router.Route,
		OnHelloAck: func(string) {
			r.store.SetConnected(true)
		},
		OnDisconnected: func(err error) {
			logging.Sync().Warn("channel disconnected", "error", err)
			r.store.SetConnected(false)
		},
	})

	// Write selection changes through to the snapshot cache.
	r.store.Subscribe(func(c store.Change) {
		if c.Kind != store.ChangeSelection {
			return
		}
		r.persistSelection(r.store.Selection())
	})

	return r
}

// Channel exposes the event channel for ad-hoc event registration and
// outbound emissions.
func (r *Reconciler) Channel() *channel.Manager {
	return r.ch
}

// Gateway exposes the REST client for operations with no store effect.
func (r *Reconciler) Gateway() *gateway.Client {
	return r.gw
}

// Attach connects the channel and re-seeds the monologue deduplicator
// from whatever agent state is present, so a value shown before a
// reconnect does not re-fire.
func (r *Reconciler) Attach(ctx context.Context) error {
	if err := r.ch.Attach(ctx); err != nil {
		return err
	}
	if state := r.store.AgentState(); state != nil {
		r.monologue.Seed(state.InternalMonologue)
	} else {
		r.monologue.Seed("")
	}
	return nil
}

// Detach unregisters the channel handlers. In-flight fetches are not
// cancelled; their completions still mutate the store.
func (r *Reconciler) Detach() {
	r.ch.Detach()
}

// Close disconnects the channel transport.
func (r *Reconciler) Close() error {
	return r.ch.Close()
}

// Bootstrap performs the initial load: fetches the full dataset, writes
// the durable snapshot copy, and seeds the store's selection context
// from the cache (applying placeholder defaults on first run).
func (r *Reconciler) Bootstrap() (*gateway.Data, error) {
	data, err := r.gw.FetchData()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	if err := r.cache.SetBootstrap(cache.Bootstrap{
		Projects:      data.Projects,
		Models:        data.Models,
		SearchEngines: data.SearchEngines,
	}); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	sel, err := r.restoreSelection()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	r.store.SetSelection(sel)

	logging.Sync().Debug("bootstrap complete",
		"projects", len(data.Projects), "models", len(data.Models))
	return data, nil
}

// LoadProject refreshes the message log, agent state, and token usage
// for a project through the fetch path. The result converges with the
// streaming path: every field is replaced wholesale.
func (r *Reconciler) LoadProject(project string) error {
	msgs, err := r.gw.FetchMessages(project)
	if err != nil {
		return err
	}
	r.store.ReplaceMessages(msgs)

	state, err := r.gw.FetchAgentState(project)
	if err != nil {
		return err
	}
	r.store.SetAgentState(state)
	if state != nil {
		if state.Completed {
			r.store.SetSending(false)
		}
		r.monologue.Seed(state.InternalMonologue)
	}

	usage, err := r.gw.TokenUsage(project)
	if err != nil {
		return err
	}
	r.store.SetTokenUsage(usage)
	return nil
}

// Execute dispatches an agent invocation with the current selection.
// A missing model rejects locally before any network call and leaves
// the store untouched. On success, exactly one full message-log
// refetch replaces the in-memory log, so the view reflects server-side
// truth rather than optimistic local state.
func (r *Reconciler) Execute(prompt string) error {
	sel := r.store.Selection()
	if sel.Model == "" || sel.Model == cache.DefaultModel {
		return ErrNoModelSelected
	}

	r.store.SetSending(true)
	err := r.gw.ExecuteAgent(gateway.ExecuteRequest{
		Prompt:       prompt,
		BaseModel:    sel.Model,
		ProjectName:  sel.Project,
		SearchEngine: sel.SearchEngine,
	})
	if err != nil {
		r.store.SetSending(false)
		return err
	}

	msgs, err := r.gw.FetchMessages(sel.Project)
	if err != nil {
		return err
	}
	r.store.ReplaceMessages(msgs)
	return nil
}

// SelectProject updates the active project in the store; the cache
// write-through happens via the store subscription.
func (r *Reconciler) SelectProject(name string) {
	sel := r.store.Selection()
	sel.Project = name
	r.store.SetSelection(sel)
}

// SelectModel updates the active model.
func (r *Reconciler) SelectModel(name string) {
	sel := r.store.Selection()
	sel.Model = name
	r.store.SetSelection(sel)
}

// SelectSearchEngine updates the active search engine.
func (r *Reconciler) SelectSearchEngine(name string) {
	sel := r.store.Selection()
	sel.SearchEngine = name
	r.store.SetSelection(sel)
}

// applyServerMessage appends one streamed message. Streaming appends
// never reorder existing entries.
func (r *Reconciler) applyServerMessage(msg store.Message) {
	r.store.AppendMessage(msg)
}

// applyAgentState applies a batched snapshot array: last write wins,
// intermediate elements are never observable. A terminal snapshot
// clears the sending flag; the monologue deduplicator sees the
// surviving value only.
func (r *Reconciler) applyAgentState(states []store.AgentState) {
	last := states[len(states)-1]
	r.store.SetAgentState(&last)
	if last.Completed {
		r.store.SetSending(false)
	}
	r.monologue.Observe(last.InternalMonologue)
}

func (r *Reconciler) applyTokens(usage int) {
	r.store.SetTokenUsage(usage)
}

// restoreSelection reads the persisted selection, defaulting absent
// keys to their placeholders.
func (r *Reconciler) restoreSelection() (store.Selection, error) {
	project, err := r.cache.SelectedProject()
	if err != nil {
		return store.Selection{}, err
	}
	model, err := r.cache.SelectedModel()
	if err != nil {
		return store.Selection{}, err
	}
	engine, err := r.cache.SelectedSearchEngine()
	if err != nil {
		return store.Selection{}, err
	}
	return store.Selection{Project: project, Model: model, SearchEngine: engine}, nil
}

// persistSelection mirrors the selection into the snapshot cache.
func (r *Reconciler) persistSelection(sel store.Selection) {
	log := logging.Sync()
	if sel.Project != "" {
		if err := r.cache.SetSelectedProject(sel.Project); err != nil {
			log.Warn("persist project selection", "error", err)
		}
	}
	if sel.Model != "" {
		if err := r.cache.SetSelectedModel(sel.Model); err != nil {
			log.Warn("persist model selection", "error", err)
		}
	}
	if sel.SearchEngine != "" {
		if err := r.cache.SetSelectedSearchEngine(sel.SearchEngine); err != nil {
			log.Warn("persist search engine selection", "error", err)
		}
	}
}
