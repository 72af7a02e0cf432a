package store

import "encoding/json"

// Message is a single entry in the conversation log. The timestamp is
// kept as the server-provided string; the client never interprets it.
type Message struct {
	FromDevika bool   `json:"from_devika"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

// AgentState is the latest snapshot describing what the remote agent is
// doing. Snapshots are replaced wholesale; the client never merges two
// snapshots field by field. Raw preserves the exact server payload so
// agent-defined fields beyond the typed ones survive the round trip.
type AgentState struct {
	Step              int    `json:"step"`
	InternalMonologue string `json:"internal_monologue"`
	BrowserSession    string `json:"browser_session"`
	TerminalSession   string `json:"terminal_session"`
	AgentIsActive     bool   `json:"agent_is_active"`
	TokenUsage        int    `json:"token_usage"`
	Completed         bool   `json:"completed"`
	Timestamp         string `json:"timestamp"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the typed fields and keeps a copy of the raw
// payload in Raw.
func (a *AgentState) UnmarshalJSON(data []byte) error {
	type plain AgentState
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = AgentState(p)
	a.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Selection holds the active project, model, and search engine. It is
// persisted across restarts through the snapshot cache.
type Selection struct {
	Project      string `json:"project"`
	Model        string `json:"model"`
	SearchEngine string `json:"search_engine"`
}

// ChangeKind identifies which store field a change notification is for.
type ChangeKind string

const (
	ChangeMessages   ChangeKind = "messages"
	ChangeAgentState ChangeKind = "agent_state"
	ChangeTokenUsage ChangeKind = "token_usage"
	ChangeSending    ChangeKind = "sending"
	ChangeConnected  ChangeKind = "connected"
	ChangeSelection  ChangeKind = "selection"
)

// Change is delivered to subscribers after a store mutation. Observers
// read the new value back from the store; the change record only names
// the field that moved.
type Change struct {
	Kind ChangeKind
}
