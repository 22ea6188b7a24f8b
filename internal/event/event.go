package event

import "encoding/json"

// Event type constants.
const (
	TypeSession    = "session"
	TypeFileTouch  = "file_touch"
	TypeToolCall   = "tool_call"
	TypeAgentState = "agent_state"
	TypeUnknown    = "unknown"
)

// Enum values for variant fields.
const (
	KindRead  = "read"
	KindWrite = "write"

	PhaseStart = "start"
	PhaseEnd   = "end"

	SessionStart     = "start"
	SessionStop      = "stop"
	SessionInterrupt = "interrupt"
	SessionCrash     = "crash"

	AgentThinking   = "thinking"
	AgentResponding = "responding"
)

// Event represents a single normalized activity event. The variant fields
// below are flat; which ones are meaningful depends on Type. Events are
// immutable after validation.
type Event struct {
	V         int     `json:"v"`
	TS        float64 `json:"ts"`
	Type      string  `json:"type"`
	SessionID string  `json:"session_id"`

	// ID is the canonical identifier, assigned by the watcher from the
	// event's byte offset in the append log. Producers never set it.
	ID string `json:"id,omitempty"`

	// file_touch
	Path string `json:"path,omitempty"`
	Kind string `json:"kind,omitempty"`

	// tool_call
	Tool    string `json:"tool,omitempty"`
	Phase   string `json:"phase,omitempty"`
	Command string `json:"command,omitempty"`

	// session / agent_state
	State    string `json:"state,omitempty"`
	RepoRoot string `json:"repo_root,omitempty"`

	// unknown
	PayloadKeys   []string `json:"payload_keys,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	HookEventName string   `json:"hook_event_name,omitempty"`

	// Gap markers only (synthesized by the fan-out queue, never by producers).
	GapType      string `json:"gap_type,omitempty"`
	DroppedCount int    `json:"dropped_count,omitempty"`
	FromEventID  string `json:"from_event_id,omitempty"`
	ToOffset     int64  `json:"to_offset,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`

	// Extra holds unknown top-level fields from the wire form. They are
	// preserved through a marshal round-trip but never interpreted.
	Extra map[string]json.RawMessage `json:"-"`
}

// knownFields are the top-level JSON keys owned by Event itself. Anything
// else lands in Extra.
var knownFields = map[string]struct{}{
	"v": {}, "ts": {}, "type": {}, "session_id": {}, "id": {},
	"path": {}, "kind": {},
	"tool": {}, "phase": {}, "command": {},
	"state": {}, "repo_root": {},
	"payload_keys": {}, "reason": {}, "hook_event_name": {},
	"gap_type": {}, "dropped_count": {}, "from_event_id": {}, "to_offset": {},
	"metadata": {},
}

// alias prevents MarshalJSON/UnmarshalJSON recursion.
type alias Event

// MarshalJSON emits the canonical wire form, folding preserved unknown
// fields back in. Known fields win on key collision.
func (e Event) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(alias(e))
	if err != nil {
		return nil, err
	}
	if len(e.Extra) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range e.Extra {
		if _, known := knownFields[k]; known {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON parses the wire form, diverting unknown top-level fields
// into Extra.
func (e *Event) UnmarshalJSON(data []byte) error {
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range raw {
		if _, known := knownFields[k]; known {
			delete(raw, k)
		}
	}
	if len(raw) > 0 {
		a.Extra = raw
	}

	*e = Event(a)
	return nil
}
